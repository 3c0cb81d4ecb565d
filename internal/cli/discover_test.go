package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/discovery"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

func TestRunDiscover(t *testing.T) {
	env := newTestEnv(t)
	discoverGapLimit = 3

	require.NoError(t, runDiscover(env.cmd, nil))
	resp := decodeJSON[DiscoverResponse](t, env.stdout)
	assert.Equal(t, "mainnet", resp.Network)
	require.NotNil(t, resp.Result)
	require.Len(t, resp.Accounts, 2)

	first := resp.Accounts[0]
	require.Len(t, first.Used, 1)
	assert.Equal(t, receive0Addr, first.Used[0].Address)
	assert.Equal(t, uint64(2), first.Used[0].TxCount)
	assert.Equal(t, uint64(fundAmount), first.Confirmed)
	assert.Equal(t, int64(2000), first.Unconfirmed)
	assert.Equal(t, uint32(1), first.NextReceive)
	assert.Zero(t, first.NextChange)
	assert.Equal(t, 7, first.Scanned)
	assert.False(t, resp.Accounts[1].IsUsed())

	assert.Equal(t, 13, resp.AddressesScanned)
	assert.Equal(t, "0.00150000", resp.TotalBTC)
	assert.Equal(t, 1, resp.SuggestedReceive)
	assert.Equal(t, 1, resp.SuggestedChange)
}

func TestRunDiscover_Text(t *testing.T) {
	env := newTestEnv(t)
	env.text()
	discoverGapLimit = 2
	discoverAccounts = 1

	require.NoError(t, runDiscover(env.cmd, nil))
	out := env.stdout.String()
	assert.Contains(t, out, "Scanned 5 addresses (mainnet, gap limit 2)")
	assert.Contains(t, out, receive0Addr)
	assert.Contains(t, out, "receive")
	assert.NotContains(t, out, "derivation.receive_count")

	env.stdout.Reset()
	env.cc.Cfg.Derivation.ReceiveCount = 0
	require.NoError(t, runDiscover(env.cmd, nil))
	assert.Contains(t, env.stdout.String(), "derivation.receive_count to 1")
}

func TestRunDiscover_NoHistory(t *testing.T) {
	env := newTestEnv(t)
	env.text()
	discoverGapLimit = 2
	discoverStart = 3

	require.NoError(t, runDiscover(env.cmd, nil))
	assert.Contains(t, env.stdout.String(), "No used addresses found.")
}

func TestRunDiscover_Errors(t *testing.T) {
	t.Run("invalid gap limit", func(t *testing.T) {
		env := newTestEnv(t)
		discoverGapLimit = 0
		err := runDiscover(env.cmd, nil)
		require.ErrorIs(t, err, discovery.ErrInvalidGapLimit)
		assert.Equal(t, satchelerr.ExitInput, satchelerr.ExitCode(err))
	})

	t.Run("providers down", func(t *testing.T) {
		env := newTestEnv(t)
		env.cc.Network = deadNetwork()
		discoverGapLimit = 2
		err := runDiscover(env.cmd, nil)
		require.ErrorIs(t, err, satchelerr.ErrAllProvidersFailed)
		assert.Equal(t, satchelerr.ExitNetwork, satchelerr.ExitCode(err))
	})
}
