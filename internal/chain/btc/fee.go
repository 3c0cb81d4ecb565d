// Package btc selects inputs, computes fees, and builds signed P2WPKH
// transactions. Nothing in this package touches the network.
package btc

import (
	"strconv"

	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Virtual sizes used by the fee model, in vbytes. The fixed overhead is
// 10.5 vB, so sizes are tracked in half-vbytes to stay in integers.
const (
	InputVSize  = 68 // P2WPKH input
	OutputVSize = 31 // P2WPKH output

	overheadHalfVBytes = 21
)

// DustLimit is the smallest change output worth creating, in satoshis.
const DustLimit uint64 = 546

// MaxFeeRate caps accepted fee rates in sat/vB.
const MaxFeeRate uint64 = 10_000

// EstimateVSize returns ceil(inputs*68 + outputs*31 + 10.5).
func EstimateVSize(inputs, outputs int) uint64 {
	return (halfVBytes(inputs, outputs) + 1) / 2
}

// EstimateFee returns ceil((inputs*68 + outputs*31 + 10.5) * rate) in
// satoshis.
func EstimateFee(inputs, outputs int, rate uint64) uint64 {
	return (halfVBytes(inputs, outputs)*rate + 1) / 2
}

func halfVBytes(inputs, outputs int) uint64 {
	//nolint:gosec // counts are never negative
	return 2*(uint64(inputs)*InputVSize+uint64(outputs)*OutputVSize) + overheadHalfVBytes
}

// ValidateFeeRate accepts rates in (0, MaxFeeRate].
func ValidateFeeRate(rate uint64) error {
	if rate == 0 || rate > MaxFeeRate {
		return satchelerr.WithSuggestion(
			satchelerr.WithDetails(satchelerr.ErrInvalidFeeRate, map[string]string{"rate": strconv.FormatUint(rate, 10)}),
			"fee rate must be between 1 and "+strconv.FormatUint(MaxFeeRate, 10)+" sat/vB",
		)
	}
	return nil
}
