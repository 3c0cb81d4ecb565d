// Package errors provides structured error handling for satchel.
// It defines sentinel errors, exit codes, and helpers for adding
// context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess  = 0 // Successful execution
	ExitGeneral  = 1 // General/unknown error
	ExitInput    = 2 // Invalid input
	ExitNetwork  = 3 // Remote providers unavailable or rejecting
	ExitNotFound = 4 // Resource not found
	ExitFunds    = 5 // Insufficient funds
)

// Detail keys carried by wallet errors.
const (
	DetailNeeded    = "needed"
	DetailHave      = "have"
	DetailProviders = "providers"
	DetailOperation = "operation"
	DetailProvider  = "provider"
	DetailStatus    = "status"
)

// SatchelError is the structured error type for satchel.
type SatchelError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *SatchelError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *SatchelError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for SatchelError.
func (e *SatchelError) Is(target error) bool {
	var t *SatchelError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &SatchelError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &SatchelError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrNotFound = &SatchelError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	// Wallet errors.
	ErrInvalidPhrase = &SatchelError{
		Code:     "INVALID_PHRASE",
		Message:  "invalid recovery phrase",
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &SatchelError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address for network",
		ExitCode: ExitInput,
	}

	ErrInsufficientFunds = &SatchelError{
		Code:     "INSUFFICIENT_FUNDS",
		Message:  "insufficient funds for transaction",
		ExitCode: ExitFunds,
	}

	ErrDerivationFailure = &SatchelError{
		Code:     "DERIVATION_FAILURE",
		Message:  "derived key does not match the output being spent",
		ExitCode: ExitGeneral,
	}

	ErrInvalidAmount = &SatchelError{
		Code:     "INVALID_AMOUNT",
		Message:  "invalid amount",
		ExitCode: ExitInput,
	}

	ErrInvalidFeeRate = &SatchelError{
		Code:     "INVALID_FEE_RATE",
		Message:  "invalid fee rate",
		ExitCode: ExitInput,
	}

	ErrNoUTXOs = &SatchelError{
		Code:     "NO_UTXOS",
		Message:  "no UTXOs available",
		ExitCode: ExitFunds,
	}

	// Provider errors.
	ErrNetworkError = &SatchelError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitNetwork,
	}

	ErrAllProvidersFailed = &SatchelError{
		Code:     "ALL_PROVIDERS_FAILED",
		Message:  "all providers failed",
		ExitCode: ExitNetwork,
	}

	ErrBroadcastRejected = &SatchelError{
		Code:     "BROADCAST_REJECTED",
		Message:  "transaction rejected by provider",
		ExitCode: ExitNetwork,
	}

	ErrUnknownNetwork = &SatchelError{
		Code:     "UNKNOWN_NETWORK",
		Message:  "unknown network",
		ExitCode: ExitInput,
	}

	// Config errors.
	ErrConfigNotFound = &SatchelError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &SatchelError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	ErrUnknownConfigKey = &SatchelError{
		Code:     "UNKNOWN_CONFIG_KEY",
		Message:  "unknown config key",
		ExitCode: ExitInput,
	}
)

// New creates a new SatchelError with the given code and message.
func New(code, message string) *SatchelError {
	return &SatchelError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// InsufficientFunds returns ErrInsufficientFunds carrying the needed and
// available amounts in satoshis.
func InsufficientFunds(needed, have uint64) error {
	return &SatchelError{
		Code:    ErrInsufficientFunds.Code,
		Message: ErrInsufficientFunds.Message,
		Details: map[string]string{
			DetailNeeded: strconv.FormatUint(needed, 10),
			DetailHave:   strconv.FormatUint(have, 10),
		},
		Suggestion: "send a smaller amount or lower the fee rate",
		ExitCode:   ErrInsufficientFunds.ExitCode,
	}
}

// InsufficientFundsAmounts extracts the needed and available amounts from an
// insufficient funds error anywhere in the chain.
func InsufficientFundsAmounts(err error) (needed, have uint64, ok bool) {
	var se *SatchelError
	if !errors.As(err, &se) || se.Code != ErrInsufficientFunds.Code {
		return 0, 0, false
	}
	needed, errNeeded := strconv.ParseUint(se.Details[DetailNeeded], 10, 64)
	have, errHave := strconv.ParseUint(se.Details[DetailHave], 10, 64)
	if errNeeded != nil || errHave != nil {
		return 0, 0, false
	}
	return needed, have, true
}

// AllProvidersFailed returns ErrAllProvidersFailed for an operation that was
// attempted against the given number of providers. cause should join every
// attempt's error so none are lost.
func AllProvidersFailed(operation string, providers int, cause error) error {
	return &SatchelError{
		Code:    ErrAllProvidersFailed.Code,
		Message: ErrAllProvidersFailed.Message,
		Details: map[string]string{
			DetailOperation: operation,
			DetailProviders: strconv.Itoa(providers),
		},
		Suggestion: "check connectivity or configure additional providers",
		Cause:      cause,
		ExitCode:   ErrAllProvidersFailed.ExitCode,
	}
}

// ProviderCount returns the number of providers recorded on an
// all-providers-failed error.
func ProviderCount(err error) (int, bool) {
	var se *SatchelError
	if !errors.As(err, &se) || se.Code != ErrAllProvidersFailed.Code {
		return 0, false
	}
	n, convErr := strconv.Atoi(se.Details[DetailProviders])
	if convErr != nil {
		return 0, false
	}
	return n, true
}

// BroadcastRejected returns ErrBroadcastRejected for an explicit rejection by
// a provider. message is the provider's response body.
func BroadcastRejected(provider string, status int, message string) error {
	msg := ErrBroadcastRejected.Message
	if message != "" {
		msg = fmt.Sprintf("%s: %s", msg, message)
	}
	return &SatchelError{
		Code:    ErrBroadcastRejected.Code,
		Message: msg,
		Details: map[string]string{
			DetailProvider: provider,
			DetailStatus:   strconv.Itoa(status),
		},
		ExitCode: ErrBroadcastRejected.ExitCode,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var se *SatchelError
	if errors.As(err, &se) {
		return &SatchelError{
			Code:       se.Code,
			Message:    fmt.Sprintf("%s: %s", msg, se.Message),
			Details:    se.Details,
			Suggestion: se.Suggestion,
			Cause:      err,
			ExitCode:   se.ExitCode,
		}
	}

	return &SatchelError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var se *SatchelError
	if errors.As(err, &se) {
		return &SatchelError{
			Code:       se.Code,
			Message:    se.Message,
			Details:    details,
			Suggestion: se.Suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &SatchelError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var se *SatchelError
	if errors.As(err, &se) {
		return &SatchelError{
			Code:       se.Code,
			Message:    se.Message,
			Details:    se.Details,
			Suggestion: suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &SatchelError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var se *SatchelError
	if errors.As(err, &se) {
		return se.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var se *SatchelError
	if errors.As(err, &se) {
		return se.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
