package chain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/chain"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

func TestFeeEstimates_ForSpeed(t *testing.T) {
	t.Parallel()

	est := chain.FeeEstimates{Fastest: 25, HalfHour: 18, Hour: 12, Economy: 5, Minimum: 1}
	assert.Equal(t, uint64(25), est.ForSpeed(chain.SpeedFast))
	assert.Equal(t, uint64(18), est.ForSpeed(chain.SpeedMedium))
	assert.Equal(t, uint64(5), est.ForSpeed(chain.SpeedSlow))

	sparse := chain.FeeEstimates{Hour: 7}
	assert.Equal(t, uint64(7), sparse.ForSpeed(chain.SpeedFast))
	assert.Equal(t, uint64(7), sparse.ForSpeed(chain.SpeedMedium))
	assert.Equal(t, chain.DefaultMinimumFee, sparse.ForSpeed(chain.SpeedSlow))

	def := chain.DefaultFeeEstimates()
	assert.True(t, def.Fallback)
	assert.Equal(t, chain.DefaultFastestFee, def.ForSpeed(chain.SpeedFast))
}

func TestParseSpeed(t *testing.T) {
	t.Parallel()

	tests := map[string]chain.Speed{
		"fast":    chain.SpeedFast,
		"HIGH":    chain.SpeedFast,
		"":        chain.SpeedMedium,
		"medium":  chain.SpeedMedium,
		"economy": chain.SpeedSlow,
		"slow":    chain.SpeedSlow,
	}
	for in, want := range tests {
		got, err := chain.ParseSpeed(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := chain.ParseSpeed("ludicrous")
	require.ErrorIs(t, err, satchelerr.ErrInvalidFeeRate)
}
