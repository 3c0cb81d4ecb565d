package chain

import (
	"strings"

	"github.com/shopspring/decimal"

	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// SatsPerBTC is the number of satoshis in one bitcoin.
const SatsPerBTC = 100_000_000

// MaxSupplySats caps parsed amounts at the 21M BTC supply.
const MaxSupplySats uint64 = 21_000_000 * SatsPerBTC

// AmountAll is the literal accepted in place of an amount to sweep everything.
const AmountAll = "all"

//nolint:gochecknoglobals // Conversion factor
var satsPerBTC = decimal.NewFromInt(SatsPerBTC)

// IsAmountAll reports whether s requests a full sweep.
func IsAmountAll(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), AmountAll)
}

// ParseBTC converts a decimal BTC string such as "0.0015" into satoshis.
// More than eight decimal places is an error.
func ParseBTC(s string) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, satchelerr.WithDetails(satchelerr.ErrInvalidAmount, map[string]string{"amount": s})
	}
	sats := d.Mul(satsPerBTC)
	if !sats.Equal(sats.Truncate(0)) {
		return 0, satchelerr.WithSuggestion(
			satchelerr.WithDetails(satchelerr.ErrInvalidAmount, map[string]string{"amount": s}),
			"bitcoin amounts have at most 8 decimal places",
		)
	}
	return checkSats(sats, s)
}

// ParseAmount accepts either a BTC value ("0.5") or a satoshi value with a
// "sat" or "sats" suffix ("50000sat").
func ParseAmount(s string) (uint64, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, suffix := range []string{"sats", "sat"} {
		if !strings.HasSuffix(v, suffix) {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(v, suffix)))
		if err != nil || !d.Equal(d.Truncate(0)) {
			return 0, satchelerr.WithDetails(satchelerr.ErrInvalidAmount, map[string]string{"amount": s})
		}
		return checkSats(d, s)
	}
	return ParseBTC(v)
}

func checkSats(sats decimal.Decimal, raw string) (uint64, error) {
	if !sats.IsPositive() || sats.GreaterThan(decimal.NewFromInt(int64(MaxSupplySats))) { //nolint:gosec // constant fits
		return 0, satchelerr.WithDetails(satchelerr.ErrInvalidAmount, map[string]string{"amount": raw})
	}
	return uint64(sats.IntPart()), nil //nolint:gosec // bounded above
}

// FormatBTC renders satoshis as a BTC string with eight decimals.
func FormatBTC(sats uint64) string {
	return decimal.NewFromInt(int64(sats)).Div(satsPerBTC).StringFixed(8) //nolint:gosec // bounded by supply
}

// FormatSignedBTC renders a signed satoshi delta, such as an unconfirmed
// balance, as BTC.
func FormatSignedBTC(sats int64) string {
	return decimal.NewFromInt(sats).Div(satsPerBTC).StringFixed(8)
}
