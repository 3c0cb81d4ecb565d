package chain

import (
	"strings"

	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Speed selects a fee recommendation tier.
type Speed string

// Fee tiers.
const (
	SpeedFast   Speed = "fast"
	SpeedMedium Speed = "medium"
	SpeedSlow   Speed = "slow"
)

// Fallback fee recommendations (sat/vB) used when no provider answers.
const (
	DefaultFastestFee  uint64 = 10
	DefaultHalfHourFee uint64 = 8
	DefaultHourFee     uint64 = 6
	DefaultEconomyFee  uint64 = 4
	DefaultMinimumFee  uint64 = 1
)

// FeeEstimates are recommended fee rates in sat/vB.
type FeeEstimates struct {
	Fastest  uint64 `json:"fastest"`
	HalfHour uint64 `json:"half_hour"`
	Hour     uint64 `json:"hour"`
	Economy  uint64 `json:"economy"`
	Minimum  uint64 `json:"minimum"`
	Fallback bool   `json:"fallback,omitempty"` // true when no provider answered
}

// DefaultFeeEstimates returns the built-in recommendations.
func DefaultFeeEstimates() FeeEstimates {
	return FeeEstimates{
		Fastest:  DefaultFastestFee,
		HalfHour: DefaultHalfHourFee,
		Hour:     DefaultHourFee,
		Economy:  DefaultEconomyFee,
		Minimum:  DefaultMinimumFee,
		Fallback: true,
	}
}

// ForSpeed maps a tier to a rate. Zero-valued tiers fall back to the next
// slower one, and finally to the minimum of 1 sat/vB.
func (f FeeEstimates) ForSpeed(s Speed) uint64 {
	var rate uint64
	switch s {
	case SpeedFast:
		rate = firstNonZero(f.Fastest, f.HalfHour, f.Hour)
	case SpeedSlow:
		rate = firstNonZero(f.Economy, f.Minimum)
	default:
		rate = firstNonZero(f.HalfHour, f.Hour, f.Economy)
	}
	if rate == 0 {
		return DefaultMinimumFee
	}
	return rate
}

// ParseSpeed parses a fee tier name.
func ParseSpeed(s string) (Speed, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast", "fastest", "high":
		return SpeedFast, nil
	case "", "medium", "normal":
		return SpeedMedium, nil
	case "slow", "economy", "low":
		return SpeedSlow, nil
	default:
		return "", satchelerr.WithSuggestion(satchelerr.ErrInvalidFeeRate, "speed must be fast, medium, or slow")
	}
}

func firstNonZero(vals ...uint64) uint64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
