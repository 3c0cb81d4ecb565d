package btc

import (
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/mrz1836/go-sanitize"

	"github.com/mrz1836/satchel/internal/chain"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// DecodeAddress parses address and checks that it belongs to network.
func DecodeAddress(address string, network chain.Network) (btcutil.Address, error) {
	trimmed := strings.TrimSpace(address)
	invalid := func() error {
		return satchelerr.WithSuggestion(
			satchelerr.WithDetails(satchelerr.ErrInvalidAddress, map[string]string{
				"address": trimmed,
				"network": network.Name(),
			}),
			"check the address was created for "+network.Name(),
		)
	}
	if trimmed == "" || network.IsZero() {
		return nil, invalid()
	}

	addr, err := btcutil.DecodeAddress(trimmed, network.Params())
	if err != nil || !addr.IsForNet(network.Params()) {
		return nil, invalid()
	}
	return addr, nil
}

// SanitizeAddress strips copy-paste artifacts such as whitespace, quotes and
// a "bitcoin:" prefix from user input. The result still has to be decoded.
func SanitizeAddress(input string) string {
	s := strings.TrimSpace(input)
	if len(s) > len(uriScheme) && strings.EqualFold(s[:len(uriScheme)], uriScheme) {
		s = s[len(uriScheme):]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return sanitize.AlphaNumeric(s, false)
}

const uriScheme = "bitcoin:"

// ValidateAddress reports whether address is usable on network.
func ValidateAddress(address string, network chain.Network) error {
	_, err := DecodeAddress(address, network)
	return err
}

// PayToAddress returns the output script paying address on network.
func PayToAddress(address string, network chain.Network) ([]byte, error) {
	addr, err := DecodeAddress(address, network)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}
