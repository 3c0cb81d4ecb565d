package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/wallet"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// addrAccount overrides derivation.account.
	addrAccount int
	// addrReceive overrides derivation.receive_count.
	addrReceive int
	// addrChange overrides derivation.change_count.
	addrChange int

	// receiveIndex is the receive address index to show.
	receiveIndex uint32
	// receiveQR renders the address as a QR code.
	receiveQR bool
	// receiveAmount adds an amount to the payment URI.
	receiveAmount string
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "Derive the addresses of an account",
	Long: `Derive the receive and change addresses of a BIP84 account
(m/84'/coin'/account'/chain/index) from the recovery phrase.

Examples:
  satchel addresses --phrase-file ./phrase.txt
  satchel addresses --account 1 --receive 5 --change 5 -o json`,
	Args: cobra.NoArgs,
	RunE: runAddresses,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Show a receiving address",
	Long: `Show one receive address of the configured account. With --qr and a
terminal on stdout, a QR code of the bitcoin: payment URI is drawn below it.

Examples:
  satchel receive --phrase-file ./phrase.txt
  satchel receive --index 3 --qr --amount 0.0005`,
	Args: cobra.NoArgs,
	RunE: runReceive,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(addressesCmd, receiveCmd)

	addressesCmd.Flags().IntVar(&addrAccount, "account", -1, "account index (default: derivation.account)")
	addressesCmd.Flags().IntVar(&addrReceive, "receive", 0, "receive addresses to derive (default: derivation.receive_count)")
	addressesCmd.Flags().IntVar(&addrChange, "change", 0, "change addresses to derive (default: derivation.change_count)")
	addSecretFlags(addressesCmd.Flags())

	receiveCmd.Flags().Uint32Var(&receiveIndex, "index", 0, "receive address index")
	receiveCmd.Flags().BoolVar(&receiveQR, "qr", false, "draw a QR code on a terminal")
	receiveCmd.Flags().StringVar(&receiveAmount, "amount", "", "requested amount for the payment URI")
	addSecretFlags(receiveCmd.Flags())
}

// derivationSettings returns the account and counts to derive, with flag
// overrides applied.
func derivationSettings(cc *CommandContext) (account uint32, receive, change int, err error) {
	d := cc.Cfg.Derivation
	account, receive, change = d.Account, d.ReceiveCount, d.ChangeCount
	if addrAccount >= 0 {
		if addrAccount > int(^uint32(0)>>1) {
			return 0, 0, 0, usageError("--account must be below 2^31")
		}
		account = uint32(addrAccount) //nolint:gosec // bounded above
	}
	if addrReceive > 0 {
		receive = addrReceive
	}
	if addrChange > 0 {
		change = addrChange
	}
	return account, receive, change, nil
}

// deriveAccount derives the configured account.
func deriveAccount(cc *CommandContext, sec secrets) (*wallet.Account, error) {
	account, receive, change, err := derivationSettings(cc)
	if err != nil {
		return nil, err
	}
	cc.Log.Debug("deriving account %d on %s: %d receive, %d change", account, cc.Network.Name(), receive, change)
	return wallet.DeriveAccount(sec.phrase, sec.passphrase, cc.Network, account, receive, change)
}

func runAddresses(cmd *cobra.Command, _ []string) error {
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

	return cc.Fmt.Emit(acct, func(w io.Writer) error {
		outf(w, "%s (%s)\n\n", acct.Name, acct.Network)
		tbl := output.NewTable("TYPE", "INDEX", "ADDRESS", "PATH").AlignRight(1)
		for _, r := range acct.Addresses() {
			kind := "receive"
			if r.Change {
				kind = "change"
			}
			tbl.AddRow(kind, fmt.Sprint(r.Index), r.Address, r.Path)
		}
		return tbl.Render(w)
	})
}

// ReceiveResponse is the JSON result of receive.
type ReceiveResponse struct {
	Address     string `json:"address"`
	Path        string `json:"path"`
	Index       uint32 `json:"index"`
	URI         string `json:"uri"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

func runReceive(cmd *cobra.Command, _ []string) error {
	cc, err := GetCmdContext(cmd)
	if err != nil {
		return err
	}
	account, _, _, err := derivationSettings(cc)
	if err != nil {
		return err
	}
	var sats uint64
	if receiveAmount != "" {
		if sats, err = parseAmountFlag(receiveAmount); err != nil {
			return err
		}
	}

	sec, err := readSecrets(cc)
	if err != nil {
		return err
	}

	var rec wallet.AddressRecord
	err = wallet.WithSeed(sec.phrase, sec.passphrase, func(seed []byte) error {
		var deriveErr error
		rec, deriveErr = wallet.DeriveAddress(seed, cc.Network, account, wallet.ChainReceive, receiveIndex)
		return deriveErr
	})
	if err != nil {
		return err
	}

	resp := ReceiveResponse{
		Address:     rec.Address,
		Path:        rec.Path,
		Index:       rec.Index,
		URI:         output.PaymentURI(rec.Address, sats),
		ExplorerURL: cc.Network.AddressURL(rec.Address),
	}
	return cc.Fmt.Emit(resp, func(w io.Writer) error {
		outf(w, "Address: %s\n", resp.Address)
		outf(w, "Path:    %s\n", resp.Path)
		if sats > 0 {
			outf(w, "URI:     %s\n", resp.URI)
		}
		if receiveQR {
			outln(w)
			if !output.RenderQR(w, resp.URI, output.DefaultQRConfig()) {
				output.Warnf(cc.Stderr, "QR code skipped: output is not a terminal")
			}
		}
		return nil
	})
}
