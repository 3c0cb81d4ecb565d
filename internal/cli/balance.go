package cli

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/service/balance"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// balanceAll lists empty addresses too.
	balanceAll bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the balance of an account",
	Long: `Query every derived receive and change address of the account and sum
the confirmed and pending balances.

Addresses that no provider could answer for are listed as failures and left
out of the totals.

Examples:
  satchel balance --phrase-file ./phrase.txt
  satchel balance --all -o json`,
	Args: cobra.NoArgs,
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(balanceCmd)

	balanceCmd.Flags().BoolVar(&balanceAll, "all", false, "list addresses with no balance")
	balanceCmd.Flags().IntVar(&addrAccount, "account", -1, "account index (default: derivation.account)")
	addSecretFlags(balanceCmd.Flags())
}

// BalanceResponse is the JSON result of balance.
type BalanceResponse struct {
	Network      string                   `json:"network"`
	Account      string                   `json:"account"`
	Confirmed    uint64                   `json:"confirmed"`
	Unconfirmed  int64                    `json:"unconfirmed"`
	ConfirmedBTC string                   `json:"confirmed_btc"`
	Addresses    []balance.AddressBalance `json:"addresses"`
	Failures     []FailureResult          `json:"failures,omitempty"`
}

// FailureResult is an address no provider answered for.
type FailureResult struct {
	Address string `json:"address"`
	Error   string `json:"error"`
}

func failureResults(failures []balance.AddressFailure) []FailureResult {
	out := make([]FailureResult, 0, len(failures))
	for _, f := range failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		out = append(out, FailureResult{Address: f.Address, Error: msg})
	}
	return out
}

// allFailed returns the first failure, wrapped, when no address succeeded.
func allFailed(failures []balance.AddressFailure, succeeded int) error {
	if succeeded > 0 || len(failures) == 0 {
		return nil
	}
	return satchelerr.Wrap(failures[0].Err, "querying %d addresses", len(failures))
}

func runBalance(cmd *cobra.Command, _ []string) error {
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

	records := acct.Addresses()
	addresses := make([]string, 0, len(records))
	for _, r := range records {
		addresses = append(addresses, r.Address)
	}

	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout(cc.Cfg.QueryTimeout()))
	defer cancel()

	agg, err := cc.Balances().GetAggregateBalance(ctx, addresses, cc.QueryProviders())
	if err != nil {
		return err
	}
	if err = allFailed(agg.Failures, len(agg.PerAddress)); err != nil {
		return err
	}

	listed := agg.PerAddress
	if !balanceAll {
		listed = agg.Funded()
	}
	resp := BalanceResponse{
		Network:      cc.Network.Name(),
		Account:      acct.Name,
		Confirmed:    agg.Total,
		Unconfirmed:  agg.Unconfirmed,
		ConfirmedBTC: chain.FormatBTC(agg.Total),
		Addresses:    listed,
		Failures:     failureResults(agg.Failures),
	}
	return cc.Fmt.Emit(resp, func(w io.Writer) error {
		outf(w, "%s (%s)\n", resp.Account, resp.Network)
		outf(w, "Confirmed:   %s BTC\n", resp.ConfirmedBTC)
		if resp.Unconfirmed != 0 {
			outf(w, "Unconfirmed: %s BTC\n", chain.FormatSignedBTC(resp.Unconfirmed))
		}
		if len(listed) > 0 {
			outln(w)
			tbl := output.NewTable("ADDRESS", "CONFIRMED", "UNCONFIRMED", "TXS").AlignRight(1, 2, 3)
			for _, b := range listed {
				tbl.AddRow(b.Address, chain.FormatBTC(b.Confirmed), chain.FormatSignedBTC(b.Unconfirmed),
					strconv.FormatUint(b.TxCount, 10))
			}
			if err := tbl.Render(w); err != nil {
				return err
			}
		}
		warnFailures(cc, resp.Failures)
		return nil
	})
}

func warnFailures(cc *CommandContext, failures []FailureResult) {
	for _, f := range failures {
		output.Warnf(cc.Stderr, "%s: %s", f.Address, f.Error)
	}
}
