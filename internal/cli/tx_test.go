package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/service/transaction"
	"github.com/mrz1836/satchel/internal/utxostore"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// signedHex builds a dry-run payment of 50000 sat to receive1Addr and returns
// its hex.
func signedHex(t *testing.T, env *testEnv) string {
	t.Helper()
	txTo, txAmount, txFeeRate, txDryRun = receive1Addr, "50000sat", 2, true
	require.NoError(t, runTxSend(env.cmd, nil))
	result := decodeJSON[transaction.SendResult](t, env.stdout)
	require.NotNil(t, result.SignedTransaction)
	txTo, txAmount, txFeeRate, txDryRun = "", "", 0, false
	return result.Hex
}

func TestRunTxSend_DryRun(t *testing.T) {
	env := newTestEnv(t)
	txTo = "bitcoin:" + receive1Addr
	txAmount = "50000sat"
	txFeeRate = 2
	txDryRun = true

	require.NoError(t, runTxSend(env.cmd, nil))
	result := decodeJSON[transaction.SendResult](t, env.stdout)
	require.NotNil(t, result.SignedTransaction)
	assert.False(t, result.Broadcast)
	assert.Empty(t, result.ExplorerURL)
	assert.Equal(t, receive1Addr, result.To)
	assert.Equal(t, uint64(50000), result.Amount)
	assert.Equal(t, uint64(2), result.FeeRate)
	assert.Equal(t, transaction.FeeFromFlag, result.FeeSource)
	assert.Positive(t, result.Fee)
	assert.Equal(t, uint64(fundAmount)-50000-result.Fee, result.Change)
	require.Len(t, result.Inputs, 1)
	assert.Equal(t, fundTxID, result.Inputs[0].UTXO.TxID)
	assert.Zero(t, env.server.broadcastCount())

	decoded, err := decodeTransaction(result.Hex, env.cc.Network)
	require.NoError(t, err)
	assert.Equal(t, result.TxID, decoded.TxID)
	addrs := make([]string, 0, len(decoded.Outputs))
	for _, o := range decoded.Outputs {
		addrs = append(addrs, o.Address)
	}
	assert.ElementsMatch(t, []string{receive1Addr, change0Addr}, addrs)
}

func TestRunTxSend_SpeedFromProviders(t *testing.T) {
	env := newTestEnv(t)
	txTo, txAmount, txSpeed, txDryRun = receive1Addr, "0.0005", "fast", true

	require.NoError(t, runTxSend(env.cmd, nil))
	result := decodeJSON[transaction.SendResult](t, env.stdout)
	assert.Equal(t, uint64(20), result.FeeRate)
	assert.Equal(t, transaction.FeeFromProvider, result.FeeSource)
}

func TestRunTxSend_BroadcastMarksSpent(t *testing.T) {
	env := newTestEnv(t)
	txTo, txAmount, txFeeRate = receive1Addr, "50000sat", 2

	require.NoError(t, runTxSend(env.cmd, nil))
	result := decodeJSON[transaction.SendResult](t, env.stdout)
	assert.True(t, result.Broadcast)
	assert.Equal(t, testExplorer+"/tx/"+result.TxID, result.ExplorerURL)
	assert.Equal(t, 1, env.server.broadcastCount())
	assert.Equal(t, 1.0, env.cc.Metrics.Summary()["satchel_broadcasts_total{outcome=ok}"])

	store := utxostore.New(utxostore.DefaultPath(env.home, chain.NameMainnet))
	require.NoError(t, store.LoadFor(chain.NameMainnet))
	assert.True(t, store.IsSpent(fundTxID, 0))

	// The indexer still reports the output; the spent mark keeps it out.
	err := runTxSend(env.cmd, nil)
	require.ErrorIs(t, err, satchelerr.ErrNoUTXOs)
	assert.Equal(t, satchelerr.ExitFunds, ExitCode(err))
	assert.Equal(t, 1, env.server.broadcastCount())

	require.NoError(t, runUTXOList(env.cmd, nil))
	assert.Zero(t, decodeJSON[UTXOResponse](t, env.stdout).Count)
}

func TestRunTxSend_DroppedBroadcastRetries(t *testing.T) {
	env := newTestEnv(t)
	txTo, txAmount, txFeeRate = receive1Addr, "50000sat", 2

	require.NoError(t, runTxSend(env.cmd, nil))
	first := decodeJSON[transaction.SendResult](t, env.stdout)
	env.server.drop(first.TxID)

	require.NoError(t, runTxSend(env.cmd, nil))
	second := decodeJSON[transaction.SendResult](t, env.stdout)
	assert.True(t, second.Broadcast)
	require.Len(t, second.Inputs, 1)
	assert.Equal(t, fundTxID, second.Inputs[0].UTXO.TxID)
	assert.Equal(t, 2, env.server.broadcastCount())
}

func TestRunTxSend_FromSnapshot(t *testing.T) {
	env := newTestEnv(t)
	utxoSave = defaultSnapshot
	require.NoError(t, runUTXOList(env.cmd, nil))
	env.stdout.Reset()

	// Nothing below may reach a provider.
	env.cc.Network = deadNetwork()
	txTo, txAmount, txFeeRate, txDryRun = receive1Addr, "all", 3, true
	txUTXOFile = defaultSnapshot

	require.NoError(t, runTxSend(env.cmd, nil))
	result := decodeJSON[transaction.SendResult](t, env.stdout)
	assert.Zero(t, result.Change)
	assert.Equal(t, uint64(fundAmount), result.Amount+result.Fee)
	require.Len(t, result.Outputs, 1)
	assert.Equal(t, receive1Addr, result.Outputs[0].Address)
}

func TestRunTxSend_Validation(t *testing.T) {
	tests := []struct {
		name  string
		setup func(env *testEnv)
		want  error
	}{
		{
			name:  "malformed recipient",
			setup: func(*testEnv) { txTo, txAmount = "not-an-address", "0.001" },
			want:  satchelerr.ErrInvalidAddress,
		},
		{
			name:  "recipient on another network",
			setup: func(*testEnv) { txTo, txAmount = "tb1q6rz28mcfaxtmd6v789l9rrlrusdprr9pqcpvkl", "0.001" },
			want:  satchelerr.ErrInvalidAddress,
		},
		{
			name: "fee rate above max",
			setup: func(env *testEnv) {
				txTo, txAmount, txFeeRate = receive1Addr, "0.001", env.cc.Cfg.Fees.MaxRate+1
			},
			want: satchelerr.ErrInvalidFeeRate,
		},
		{
			name: "empty snapshot",
			setup: func(env *testEnv) {
				txTo, txAmount, txUTXOFile = receive1Addr, "0.001", env.home+"/missing.json"
			},
			want: satchelerr.ErrNoUTXOs,
		},
		{
			name:  "bad amount",
			setup: func(*testEnv) { txTo, txAmount, txDryRun = receive1Addr, "0.1.2", true },
			want:  satchelerr.ErrInvalidAmount,
		},
		{
			name:  "more than the wallet holds",
			setup: func(*testEnv) { txTo, txAmount, txFeeRate, txDryRun = receive1Addr, "1", 2, true },
			want:  satchelerr.ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.setup(env)

			err := runTxSend(env.cmd, nil)
			require.ErrorIs(t, err, tt.want)
			assert.Zero(t, env.server.broadcastCount())
			assert.Empty(t, env.stdout.String())
		})
	}
}

func TestRunTxBroadcast(t *testing.T) {
	env := newTestEnv(t)
	rawHex := signedHex(t, env)

	require.NoError(t, runTxBroadcast(env.cmd, []string{rawHex}))
	resp := decodeJSON[BroadcastResponse](t, env.stdout)
	assert.Len(t, resp.TxID, 64)
	assert.Equal(t, env.server.URL, resp.Provider)
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, testExplorer+"/tx/"+resp.TxID, resp.ExplorerURL)

	env.cc.Stdin = strings.NewReader(rawHex + "\n")
	require.NoError(t, runTxBroadcast(env.cmd, []string{"-"}))
	assert.Equal(t, resp.TxID, decodeJSON[BroadcastResponse](t, env.stdout).TxID)
	assert.Equal(t, 2, env.server.broadcastCount())
}

func TestRunTxBroadcast_Rejected(t *testing.T) {
	env := newTestEnv(t)
	rawHex := signedHex(t, env)
	env.server.setReject(true)

	err := runTxBroadcast(env.cmd, []string{rawHex})
	require.ErrorIs(t, err, satchelerr.ErrAllProvidersFailed)
	require.ErrorIs(t, err, satchelerr.ErrBroadcastRejected)
	assert.Contains(t, err.Error(), "bad-txns-inputs-missingorspent")
	assert.Equal(t, satchelerr.ExitNetwork, ExitCode(err))
}

func TestRunTxBroadcast_BadInput(t *testing.T) {
	env := newTestEnv(t)

	require.Error(t, runTxBroadcast(env.cmd, []string{"zz"}))

	env.cc.Stdin = strings.NewReader("")
	err := runTxBroadcast(env.cmd, []string{"-"})
	require.ErrorIs(t, err, satchelerr.ErrInvalidInput)
	assert.Zero(t, env.server.broadcastCount())
}

func TestRunTxStatus(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, runTxStatus(env.cmd, []string{fundTxID}))
	resp := decodeJSON[StatusResponse](t, env.stdout)
	assert.Equal(t, fundTxID, resp.TxID)
	assert.True(t, resp.Confirmed)
	assert.Equal(t, int64(fundHeight), resp.BlockHeight)
	assert.Equal(t, int64(testTip-fundHeight+1), resp.Confirmations)

	env.text()
	require.NoError(t, runTxStatus(env.cmd, []string{fundTxID}))
	assert.Contains(t, env.stdout.String(), "(10 confirmations)")
}

func TestRunTxStatus_InvalidTxID(t *testing.T) {
	env := newTestEnv(t)
	for _, arg := range []string{"xyz", fundTxID[:62], fundTxID + "ab"} {
		err := runTxStatus(env.cmd, []string{arg})
		require.ErrorIs(t, err, satchelerr.ErrInvalidInput, arg)
	}
}

func TestRunTxDecode(t *testing.T) {
	env := newTestEnv(t)
	rawHex := signedHex(t, env)

	require.NoError(t, runTxDecode(env.cmd, []string{rawHex}))
	resp := decodeJSON[DecodeResponse](t, env.stdout)
	assert.Len(t, resp.TxID, 64)
	assert.Positive(t, resp.VSize)
	require.Len(t, resp.Inputs, 1)
	assert.Equal(t, fundTxID+":0", resp.Inputs[0].Outpoint)
	assert.Equal(t, uint32(0xfffffffe), resp.Inputs[0].Sequence)
	assert.Equal(t, 2, resp.Inputs[0].Witness)
	require.Len(t, resp.Outputs, 2)
	for _, o := range resp.Outputs {
		assert.Equal(t, "witness_v0_keyhash", o.Script)
	}
	assert.Less(t, resp.Total, uint64(fundAmount))

	env.text()
	require.NoError(t, runTxDecode(env.cmd, []string{rawHex}))
	assert.Contains(t, env.stdout.String(), "fffffffe")
	assert.Contains(t, env.stdout.String(), receive1Addr)
}
