package cli

import (
	"context"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/utxostore"
	"github.com/mrz1836/satchel/internal/wallet"
)

// defaultSnapshot is the --save value meaning the default snapshot path.
const defaultSnapshot = "default"

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// utxoSave is where to write the snapshot; empty means do not save.
	utxoSave string
	// utxoResetSpent drops every spent mark before listing.
	utxoResetSpent bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var utxoCmd = &cobra.Command{
	Use:   "utxo",
	Short: "Manage unspent outputs",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var utxoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the unspent outputs of an account",
	Long: `List the unspent outputs of every derived address, tagged with the
address and derivation path that can spend them.

With --save the set is written as a snapshot that 'tx send --utxos' can build
from without querying providers. Outputs spent by an earlier 'tx send' stay
marked spent in the snapshot until the indexers stop reporting them. A mark
is cleared early when no provider knows the spending transaction, and lapses
after 14 days regardless. --reset-spent clears every mark at once.

Examples:
  satchel utxo list --phrase-file ./phrase.txt
  satchel utxo list --save
  satchel utxo list --save ./utxos.json -o json
  satchel utxo list --reset-spent`,
	Args: cobra.NoArgs,
	RunE: runUTXOList,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(utxoCmd)
	utxoCmd.AddCommand(utxoListCmd)

	utxoListCmd.Flags().StringVar(&utxoSave, "save", "", "write a snapshot to FILE (no value: the default snapshot)")
	utxoListCmd.Flags().Lookup("save").NoOptDefVal = defaultSnapshot
	utxoListCmd.Flags().BoolVar(&utxoResetSpent, "reset-spent", false, "forget the spent marks left by earlier sends")
	utxoListCmd.Flags().IntVar(&addrAccount, "account", -1, "account index (default: derivation.account)")
	addSecretFlags(utxoListCmd.Flags())
}

// snapshotPath resolves a snapshot flag value.
func snapshotPath(cc *CommandContext, value string) string {
	if value == "" || value == defaultSnapshot {
		return utxostore.DefaultPath(cc.Cfg.GetHome(), cc.Network.Name())
	}
	return config.ExpandPath(value)
}

// openSpentStore loads the default snapshot, which carries the spent marks
// of earlier sends.
func openSpentStore(cc *CommandContext) (*utxostore.Store, error) {
	store := utxostore.New(snapshotPath(cc, ""))
	if err := store.LoadFor(cc.Network.Name()); err != nil {
		return nil, err
	}
	return store, nil
}

// txLookup reports whether the query providers know a transaction.
func txLookup(cc *CommandContext) utxostore.TxLookup {
	return func(ctx context.Context, txid string) (bool, error) {
		return cc.Gateway().TxKnown(ctx, txid, cc.QueryProviders())
	}
}

// UTXOResponse is the JSON result of utxo list.
type UTXOResponse struct {
	Network  string             `json:"network"`
	Count    int                `json:"count"`
	Total    uint64             `json:"total"`
	TotalBTC string             `json:"total_btc"`
	UTXOs    []wallet.Spendable `json:"utxos"`
	Failures []FailureResult    `json:"failures,omitempty"`
	Saved    string             `json:"saved,omitempty"`
	Released []string           `json:"released,omitempty"` // spends no provider knows
	Reset    int                `json:"reset,omitempty"`
}

func runUTXOList(cmd *cobra.Command, _ []string) error {
	cc, err := GetCmdContext(cmd)
	if err != nil {
		return err
	}
	sec, err := readSecrets(cc)
	if err != nil {
		return err
	}
	acct, err := deriveAccount(cc, sec)
	if err != nil {
		return err
	}
	spent, err := openSpentStore(cc)
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout(cc.Cfg.QueryTimeout()))
	defer cancel()

	agg, err := cc.Balances().GetAggregateUTXOs(ctx, acct.Addresses(), cc.QueryProviders())
	if err != nil {
		return err
	}
	if err = allFailed(agg.Failures, len(acct.Addresses())-len(agg.Failures)); err != nil {
		return err
	}

	resp := UTXOResponse{
		Network:  cc.Network.Name(),
		Failures: failureResults(agg.Failures),
	}
	if utxoResetSpent {
		resp.Reset = spent.ResetSpent()
	} else if resp.Released, err = spent.Reconcile(ctx, agg.Spendables, txLookup(cc)); err != nil {
		return err
	}
	if resp.Reset > 0 || len(resp.Released) > 0 {
		if err = spent.Save(); err != nil {
			return err
		}
		cc.Log.Debug("utxo: cleared spent marks (reset %d, released %v)", resp.Reset, resp.Released)
	}

	spendables := spent.FilterSpent(agg.Spendables)
	resp.Count = len(spendables)
	resp.Total = wallet.TotalSpendable(spendables)
	resp.UTXOs = spendables
	resp.TotalBTC = chain.FormatBTC(resp.Total)

	if utxoSave != "" {
		target := spent
		if path := snapshotPath(cc, utxoSave); path != spent.Path() {
			target = utxostore.New(path)
		}
		// Replace keeps spent marks, so the unfiltered set is stored.
		target.Replace(cc.Network.Name(), agg.Spendables)
		if err = target.Save(); err != nil {
			return err
		}
		resp.Saved = target.Path()
		cc.Log.Debug("utxo: saved %d outputs to %s", target.Count(), target.Path())
	}

	return cc.Fmt.Emit(resp, func(w io.Writer) error {
		if resp.Count == 0 {
			outln(w, "No unspent outputs.")
		} else {
			tbl := output.NewTable("OUTPOINT", "AMOUNT", "CONF", "ADDRESS", "PATH").AlignRight(1, 2)
			for _, s := range spendables {
				tbl.AddRow(s.UTXO.Outpoint(), chain.FormatBTC(s.UTXO.Amount),
					strconv.FormatUint(uint64(s.UTXO.Confirmations), 10), s.Owner.Address, s.Owner.Path)
			}
			if err := tbl.Render(w); err != nil {
				return err
			}
			outf(w, "\n%d outputs, %s BTC\n", resp.Count, resp.TotalBTC)
		}
		if resp.Saved != "" {
			outf(w, "Snapshot written to %s\n", resp.Saved)
		}
		if resp.Reset > 0 {
			outf(w, "Cleared %d spent marks\n", resp.Reset)
		}
		for _, txid := range resp.Released {
			output.Warnf(cc.Stderr, "no provider knows %s; its inputs are spendable again", txid)
		}
		warnFailures(cc, resp.Failures)
		return nil
	})
}
