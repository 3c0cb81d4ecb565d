package cli

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/service/transaction"
	"github.com/mrz1836/satchel/internal/utxostore"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// deadNetwork returns mainnet pointed at a provider that refuses connections.
func deadNetwork() chain.Network {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return chain.Mainnet().WithEndpoints(chain.NewEndpoint(srv.URL, chain.RoleAll))
}

func TestRunBalance(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, runBalance(env.cmd, nil))
	resp := decodeJSON[BalanceResponse](t, env.stdout)
	assert.Equal(t, chain.NameMainnet, resp.Network)
	assert.Equal(t, "Account 0", resp.Account)
	assert.Equal(t, uint64(fundAmount), resp.Confirmed)
	assert.Equal(t, int64(2000), resp.Unconfirmed)
	assert.Equal(t, "0.00150000", resp.ConfirmedBTC)
	require.Len(t, resp.Addresses, 1)
	assert.Equal(t, receive0Addr, resp.Addresses[0].Address)
	assert.Equal(t, uint64(2), resp.Addresses[0].TxCount)
	assert.Empty(t, resp.Failures)

	balanceAll = true
	require.NoError(t, runBalance(env.cmd, nil))
	resp = decodeJSON[BalanceResponse](t, env.stdout)
	assert.Len(t, resp.Addresses, 4)
	assert.Equal(t, uint64(fundAmount), resp.Confirmed)
}

func TestRunBalance_Text(t *testing.T) {
	env := newTestEnv(t)
	env.text()

	require.NoError(t, runBalance(env.cmd, nil))
	out := env.stdout.String()
	assert.Contains(t, out, "Confirmed:   0.00150000 BTC")
	assert.Contains(t, out, "Unconfirmed:")
	assert.Contains(t, out, receive0Addr)
	assert.NotContains(t, out, receive1Addr)
}

func TestRunBalance_AllProvidersDown(t *testing.T) {
	env := newTestEnv(t)
	env.cc.Network = deadNetwork()

	err := runBalance(env.cmd, nil)
	require.ErrorIs(t, err, satchelerr.ErrAllProvidersFailed)
	assert.Equal(t, satchelerr.ExitNetwork, ExitCode(err))
	assert.Empty(t, env.stdout.String())
}

func TestRunUTXOList(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, runUTXOList(env.cmd, nil))
	resp := decodeJSON[UTXOResponse](t, env.stdout)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, uint64(fundAmount), resp.Total)
	assert.Equal(t, "0.00150000", resp.TotalBTC)
	assert.Empty(t, resp.Saved)
	require.Len(t, resp.UTXOs, 1)

	u := resp.UTXOs[0]
	assert.Equal(t, fundTxID, u.UTXO.TxID)
	assert.Equal(t, uint32(testTip-fundHeight+1), u.UTXO.Confirmations)
	assert.Equal(t, receive0Addr, u.Owner.Address)
	assert.Equal(t, "m/84'/0'/0'/0/0", u.Owner.Path)
	assert.NotEmpty(t, u.Owner.PublicKey)
}

func TestRunUTXOList_Save(t *testing.T) {
	env := newTestEnv(t)
	utxoSave = defaultSnapshot

	require.NoError(t, runUTXOList(env.cmd, nil))
	resp := decodeJSON[UTXOResponse](t, env.stdout)
	want := utxostore.DefaultPath(env.home, chain.NameMainnet)
	assert.Equal(t, want, resp.Saved)

	store := utxostore.New(want)
	require.NoError(t, store.LoadFor(chain.NameMainnet))
	assert.Equal(t, 1, store.Count())
	assert.Equal(t, chain.NameMainnet, store.Network())
	require.Len(t, store.Spendables(), 1)
	assert.Equal(t, receive0Addr, store.Spendables()[0].Owner.Address)
}

func TestRunUTXOList_SaveCustomPath(t *testing.T) {
	env := newTestEnv(t)
	env.text()
	utxoSave = env.home + "/custom/utxos.json"

	require.NoError(t, runUTXOList(env.cmd, nil))
	assert.Contains(t, env.stdout.String(), "Snapshot written to "+utxoSave)
	assert.Contains(t, env.stdout.String(), fundTxID+":0")

	store := utxostore.New(utxoSave)
	require.NoError(t, store.Load())
	assert.Equal(t, 1, store.Count())
}

// broadcastSpend sends from the funded output so the default snapshot marks
// it spent, and returns the txid.
func broadcastSpend(t *testing.T, env *testEnv) string {
	t.Helper()
	txTo, txAmount, txFeeRate = receive1Addr, "50000sat", 2
	require.NoError(t, runTxSend(env.cmd, nil))
	result := decodeJSON[transaction.SendResult](t, env.stdout)
	require.True(t, result.Broadcast)
	txTo, txAmount, txFeeRate = "", "", 0
	return result.TxID
}

func TestRunUTXOList_ReleasesUnknownSpends(t *testing.T) {
	env := newTestEnv(t)
	txid := broadcastSpend(t, env)

	require.NoError(t, runUTXOList(env.cmd, nil))
	resp := decodeJSON[UTXOResponse](t, env.stdout)
	assert.Zero(t, resp.Count)
	assert.Empty(t, resp.Released)

	env.server.drop(txid)
	require.NoError(t, runUTXOList(env.cmd, nil))
	resp = decodeJSON[UTXOResponse](t, env.stdout)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, []string{txid}, resp.Released)
	assert.Contains(t, env.stderr.String(), "no provider knows "+txid)

	store := utxostore.New(utxostore.DefaultPath(env.home, chain.NameMainnet))
	require.NoError(t, store.LoadFor(chain.NameMainnet))
	assert.False(t, store.IsSpent(fundTxID, 0))
}

func TestRunUTXOList_ResetSpent(t *testing.T) {
	env := newTestEnv(t)
	broadcastSpend(t, env)

	utxoResetSpent = true
	env.text()
	require.NoError(t, runUTXOList(env.cmd, nil))
	assert.Contains(t, env.stdout.String(), fundTxID+":0")
	assert.Contains(t, env.stdout.String(), "Cleared 1 spent marks")

	store := utxostore.New(utxostore.DefaultPath(env.home, chain.NameMainnet))
	require.NoError(t, store.LoadFor(chain.NameMainnet))
	assert.False(t, store.IsSpent(fundTxID, 0))
	assert.Empty(t, store.PendingSpends())
}
