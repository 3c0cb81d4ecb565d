package cli

import (
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/discovery"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/wallet"
)

// discoverTimeout bounds a whole scan. Each query is still bounded by the
// per-attempt timeout.
const discoverTimeout = 15 * time.Minute

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// discoverGapLimit is the run of unused addresses that ends a chain.
	discoverGapLimit int
	// discoverAccounts caps how many accounts are scanned.
	discoverAccounts int
	// discoverStart is the first account scanned.
	discoverStart uint32
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find the used addresses of a recovery phrase",
	Long: `Walk the receive and change chains of each account until --gap-limit
consecutive addresses have no history, then move to the next account.
Scanning stops at the first account with no history at all.

Use the result to size derivation.receive_count and derivation.change_count
after restoring a phrase that was used elsewhere.

Examples:
  satchel discover --phrase-file ./phrase.txt
  satchel discover --gap-limit 50 --accounts 10 -o json`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().IntVar(&discoverGapLimit, "gap-limit", discovery.DefaultGapLimit, "consecutive unused addresses that end a chain")
	discoverCmd.Flags().IntVar(&discoverAccounts, "accounts", discovery.DefaultMaxAccounts, "maximum accounts to scan")
	discoverCmd.Flags().Uint32Var(&discoverStart, "start-account", 0, "first account to scan")
	addSecretFlags(discoverCmd.Flags())
}

// DiscoverResponse is the JSON result of discover.
type DiscoverResponse struct {
	Network string `json:"network"`
	*discovery.Result
	TotalBTC string `json:"total_btc"`
	// Suggested counts cover every used address of the first account scanned.
	SuggestedReceive int `json:"suggested_receive_count"`
	SuggestedChange  int `json:"suggested_change_count"`
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	cc, err := GetCmdContext(cmd)
	if err != nil {
		return err
	}
	sec, err := readSecrets(cc)
	if err != nil {
		return err
	}

	opts := discovery.DefaultOptions()
	opts.GapLimit = discoverGapLimit
	opts.MaxAccounts = discoverAccounts
	opts.StartAccount = discoverStart
	if cc.Cfg.Performance.Concurrency > 0 {
		opts.MaxConcurrent = cc.Cfg.Performance.Concurrency
	}
	opts.ProgressCallback = func(u discovery.ProgressUpdate) {
		cc.Log.Debug("discover: account %d change=%t scanned %d, used %d", u.Account, u.Change, u.Scanned, u.Used)
	}
	if err = opts.Validate(); err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, discoverTimeout)
	defer cancel()

	scanner := discovery.NewScanner(cc.Gateway(), cc.Network, opts)
	var result *discovery.Result
	err = wallet.WithSeed(sec.phrase, sec.passphrase, func(seed []byte) error {
		var scanErr error
		result, scanErr = scanner.Scan(ctx, seed)
		return scanErr
	})
	if err != nil {
		return err
	}
	cc.Log.Info("discover: scanned %d addresses across %d accounts in %dms",
		result.AddressesScanned, len(result.Accounts), result.DurationMS)

	resp := DiscoverResponse{
		Network:  cc.Network.Name(),
		Result:   result,
		TotalBTC: chain.FormatBTC(result.Total()),
	}
	if len(result.Accounts) > 0 {
		first := result.Accounts[0]
		resp.SuggestedReceive = max(int(first.NextReceive), 1)
		resp.SuggestedChange = max(int(first.NextChange), 1)
	}

	return cc.Fmt.Emit(resp, func(w io.Writer) error {
		outf(w, "Scanned %d addresses (%s, gap limit %d)\n", result.AddressesScanned, resp.Network, result.GapLimit)
		if !result.HasHistory() {
			outln(w, "No used addresses found.")
			return nil
		}
		outf(w, "Total confirmed: %s BTC\n\n", resp.TotalBTC)

		tbl := output.NewTable("ACCOUNT", "TYPE", "INDEX", "ADDRESS", "TXS", "CONFIRMED").AlignRight(0, 2, 4, 5)
		for _, d := range result.AllAddresses() {
			kind := "receive"
			if d.Change {
				kind = "change"
			}
			tbl.AddRow(strconv.FormatUint(uint64(d.Account), 10), kind, strconv.FormatUint(uint64(d.Index), 10),
				d.Address, strconv.FormatUint(d.TxCount, 10), chain.FormatBTC(d.Confirmed))
		}
		if err := tbl.Render(w); err != nil {
			return err
		}

		d := cc.Cfg.Derivation
		if resp.SuggestedReceive > d.ReceiveCount || resp.SuggestedChange > d.ChangeCount {
			outf(w, "\nSet derivation.receive_count to %d and derivation.change_count to %d to include every used address.\n",
				max(resp.SuggestedReceive, d.ReceiveCount), max(resp.SuggestedChange, d.ChangeCount))
		}
		return nil
	})
}
