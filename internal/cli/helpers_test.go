package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/chain/btc"
	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/discovery"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/wallet"
)

const (
	testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

	// BIP84 mainnet addresses of testPhrase, account 0.
	receive0Addr = "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"
	receive1Addr = "bc1qnjg0jd8228aq7egyzacy8cys3knf9xvrerkf9g"
	change0Addr  = "bc1q8c6fshw2dlwun7ekn9qwf37cu2rn755upcp6el"

	fundTxID     = "abababababababababababababababababababababababababababababababab"
	fundAmount   = 150000
	fundHeight   = 799991
	testTip      = 800000
	testExplorer = "https://mempool.space"
)

// fakeEsplora answers the esplora routes for a wallet whose only funds are
// one confirmed output paying receive0Addr.
type fakeEsplora struct {
	*httptest.Server

	mu         sync.Mutex
	reject     bool
	broadcasts []string
	// dropped txids answer 404 on their status route.
	dropped map[string]bool
}

func newFakeEsplora(t *testing.T) *fakeEsplora {
	t.Helper()
	f := &fakeEsplora{}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeEsplora) setReject(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reject = v
}

// drop makes the server forget txid, as after a mempool eviction.
func (f *fakeEsplora) drop(txid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dropped == nil {
		f.dropped = map[string]bool{}
	}
	f.dropped[txid] = true
}

func (f *fakeEsplora) broadcastCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.broadcasts)
}

func (f *fakeEsplora) serve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/blocks/tip/height":
		_, _ = fmt.Fprint(w, testTip)

	case path == "/api/v1/fees/recommended":
		_, _ = fmt.Fprint(w, `{"fastestFee":20,"halfHourFee":12,"hourFee":8,"economyFee":3,"minimumFee":1}`)

	case r.Method == http.MethodPost && path == "/api/tx":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		reject := f.reject
		f.mu.Unlock()
		tx, err := btc.DecodeTransaction(string(body))
		if reject || err != nil {
			http.Error(w, "bad-txns-inputs-missingorspent", http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.broadcasts = append(f.broadcasts, string(body))
		f.mu.Unlock()
		_, _ = fmt.Fprint(w, tx.TxHash().String())

	case strings.HasPrefix(path, "/api/tx/") && strings.HasSuffix(path, "/status"):
		f.mu.Lock()
		dropped := f.dropped[strings.TrimSuffix(strings.TrimPrefix(path, "/api/tx/"), "/status")]
		f.mu.Unlock()
		if dropped {
			http.Error(w, "Transaction not found", http.StatusNotFound)
			return
		}
		_, _ = fmt.Fprintf(w, `{"confirmed":true,"block_height":%d,"block_hash":"0000beef","block_time":1700000000}`, fundHeight)

	case strings.HasPrefix(path, "/api/address/") && strings.HasSuffix(path, "/utxo"):
		addr := strings.TrimSuffix(strings.TrimPrefix(path, "/api/address/"), "/utxo")
		if addr != receive0Addr {
			_, _ = fmt.Fprint(w, "[]")
			return
		}
		_, _ = fmt.Fprintf(w, `[{"txid":%q,"vout":0,"value":%d,"status":{"confirmed":true,"block_height":%d}}]`,
			fundTxID, fundAmount, fundHeight)

	case strings.HasPrefix(path, "/api/address/"):
		addr := strings.TrimPrefix(path, "/api/address/")
		if addr != receive0Addr {
			_, _ = fmt.Fprintf(w, `{"address":%q,"chain_stats":{},"mempool_stats":{}}`, addr)
			return
		}
		_, _ = fmt.Fprintf(w, `{"address":%q,`+
			`"chain_stats":{"funded_txo_count":1,"funded_txo_sum":%d,"spent_txo_count":0,"spent_txo_sum":0,"tx_count":1},`+
			`"mempool_stats":{"funded_txo_count":1,"funded_txo_sum":2000,"spent_txo_count":0,"spent_txo_sum":0,"tx_count":1}}`,
			addr, fundAmount)

	default:
		http.NotFound(w, r)
	}
}

// testEnv is a command context wired to a fakeEsplora on mainnet with JSON
// output captured in stdout.
type testEnv struct {
	cc     *CommandContext
	cmd    *cobra.Command
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	server *fakeEsplora
	home   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	resetFlags(t)

	srv := newFakeEsplora(t)
	home := t.TempDir()

	cfg := config.Defaults()
	cfg.Home = home
	cfg.Derivation.ReceiveCount = 2
	cfg.Derivation.ChangeCount = 2
	cfg.Performance.RatePerSecond = 0

	env := &testEnv{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		server: srv,
		home:   home,
	}
	env.cc = NewCommandContext(cfg, config.NullLogger(), output.NewFormatter(output.FormatJSON, env.stdout))
	env.cc.Network = chain.Mainnet().
		WithEndpoints(chain.NewEndpoint(srv.URL, chain.RoleAll)).
		WithExplorer(testExplorer)
	env.cc.Metrics = metrics.New()
	env.cc.Stdin = strings.NewReader("")
	env.cc.Stderr = env.stderr

	env.cmd = &cobra.Command{}
	env.cmd.SetContext(context.Background())
	SetCmdContext(env.cmd, env.cc)

	phrasePath := filepath.Join(home, "phrase.txt")
	require.NoError(t, os.WriteFile(phrasePath, []byte(testPhrase+"\n"), 0o600))
	phraseFile = phrasePath
	return env
}

// text switches the environment to text output.
func (e *testEnv) text() {
	e.cc.Fmt = output.NewFormatter(output.FormatText, e.stdout)
}

// resetFlags restores every command flag variable to its default now and
// when the test ends.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		homeDir, networkName, outputFormat, verbose = "", "", string(output.FormatAuto), false
		cmdCtx = nil

		phraseFile, askPassphrase = "", false
		phraseWords = wallet.WordsShort
		addrAccount, addrReceive, addrChange = -1, 0, 0
		receiveIndex, receiveQR, receiveAmount = 0, false, ""
		balanceAll = false
		utxoSave = ""
		utxoResetSpent = false
		txTo, txAmount, txFeeRate, txSpeed = "", "", 0, ""
		txUTXOFile, txChange, txDryRun = "", "", false
		configForce = false
		discoverGapLimit, discoverAccounts, discoverStart = discovery.DefaultGapLimit, discovery.DefaultMaxAccounts, 0
		promptSecretFn = promptSecret
	}
	reset()
	t.Cleanup(reset)
}

func decodeJSON[T any](t *testing.T, buf *bytes.Buffer) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(buf.Bytes(), &v), buf.String())
	buf.Reset()
	return v
}
