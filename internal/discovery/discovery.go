// Package discovery finds the used addresses of a recovery phrase by
// walking BIP84 chains until a run of unused addresses (the gap limit) is
// seen, and walks accounts until one has no history at all.
package discovery

import (
	"context"
	"strconv"
	"time"

	"github.com/mrz1836/satchel/internal/chain"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Default scanning parameters.
const (
	// DefaultGapLimit is the standard HD wallet gap limit.
	DefaultGapLimit = 20

	// DefaultMaxAccounts caps account discovery.
	DefaultMaxAccounts = 5

	// DefaultMaxConcurrent limits parallel address queries.
	DefaultMaxConcurrent = 4

	maxGapLimit = 1000
)

// Errors specific to discovery.
var (
	// ErrInvalidGapLimit indicates the gap limit is out of range.
	ErrInvalidGapLimit = &satchelerr.SatchelError{
		Code:     "INVALID_GAP_LIMIT",
		Message:  "gap limit must be between 1 and 1000",
		ExitCode: satchelerr.ExitInput,
	}

	// ErrInvalidMaxAccounts indicates the account cap is not positive.
	ErrInvalidMaxAccounts = &satchelerr.SatchelError{
		Code:     "INVALID_MAX_ACCOUNTS",
		Message:  "max accounts must be positive",
		ExitCode: satchelerr.ExitInput,
	}

	// ErrInvalidSeed indicates an empty seed.
	ErrInvalidSeed = &satchelerr.SatchelError{
		Code:     "INVALID_SEED",
		Message:  "invalid seed for derivation",
		ExitCode: satchelerr.ExitInput,
	}
)

// ProgressUpdate reports scanning progress.
type ProgressUpdate struct {
	Account uint32
	Change  bool
	Scanned int
	Used    int
}

// ProgressCallback is called after every batch of queries.
type ProgressCallback func(ProgressUpdate)

// Options configures a scan.
type Options struct {
	// GapLimit is the number of consecutive unused addresses that ends a
	// chain.
	GapLimit int

	// StartAccount is the first account scanned.
	StartAccount uint32

	// MaxAccounts caps how many accounts are scanned.
	MaxAccounts int

	// MaxConcurrent limits parallel queries.
	MaxConcurrent int

	// ProgressCallback receives updates during scanning.
	ProgressCallback ProgressCallback
}

// DefaultOptions returns options with the standard gap limit.
func DefaultOptions() *Options {
	return &Options{
		GapLimit:      DefaultGapLimit,
		MaxAccounts:   DefaultMaxAccounts,
		MaxConcurrent: DefaultMaxConcurrent,
	}
}

// Validate checks that the options are usable.
func (o *Options) Validate() error {
	if o.GapLimit <= 0 || o.GapLimit > maxGapLimit {
		return satchelerr.WithDetails(ErrInvalidGapLimit, map[string]string{"value": strconv.Itoa(o.GapLimit)})
	}
	if o.MaxAccounts <= 0 {
		return satchelerr.WithDetails(ErrInvalidMaxAccounts, map[string]string{"value": strconv.Itoa(o.MaxAccounts)})
	}
	return nil
}

// DiscoveredAddress is an address with on-chain history.
type DiscoveredAddress struct {
	Address     string `json:"address"`
	Path        string `json:"path"`
	Account     uint32 `json:"account"`
	Index       uint32 `json:"index"`
	Change      bool   `json:"change"`
	TxCount     uint64 `json:"tx_count"`
	Confirmed   uint64 `json:"confirmed"`
	Unconfirmed int64  `json:"unconfirmed"`
}

// AccountResult is the scan of one account.
type AccountResult struct {
	Account     uint32              `json:"account"`
	Used        []DiscoveredAddress `json:"used"`
	NextReceive uint32              `json:"next_receive"` // first receive index after the last used one
	NextChange  uint32              `json:"next_change"`
	Confirmed   uint64              `json:"confirmed"`
	Unconfirmed int64               `json:"unconfirmed"`
	Scanned     int                 `json:"scanned"`
}

// IsUsed reports whether any address of the account has history.
func (a *AccountResult) IsUsed() bool {
	return len(a.Used) > 0
}

// Result is a complete scan.
type Result struct {
	Accounts         []AccountResult `json:"accounts"`
	AddressesScanned int             `json:"addresses_scanned"`
	GapLimit         int             `json:"gap_limit"`
	Duration         time.Duration   `json:"-"`
	DurationMS       int64           `json:"duration_ms"`
}

// Total returns the confirmed balance across every account.
func (r *Result) Total() uint64 {
	var total uint64
	for _, a := range r.Accounts {
		total += a.Confirmed
	}
	return total
}

// HasHistory reports whether any address of any account has been used.
func (r *Result) HasHistory() bool {
	for i := range r.Accounts {
		if r.Accounts[i].IsUsed() {
			return true
		}
	}
	return false
}

// AllAddresses returns every used address in scan order.
func (r *Result) AllAddresses() []DiscoveredAddress {
	var all []DiscoveredAddress
	for _, a := range r.Accounts {
		all = append(all, a.Used...)
	}
	return all
}

// ChainClient looks up address statistics. Satisfied by *esplora.Gateway.
type ChainClient interface {
	GetBalance(ctx context.Context, address string, providers []chain.Endpoint) (*chain.Balance, error)
}
