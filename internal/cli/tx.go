package cli

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/chain/btc"
	"github.com/mrz1836/satchel/internal/chain/esplora"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/service/transaction"
	"github.com/mrz1836/satchel/internal/utxostore"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// txTo is the recipient address.
	txTo string
	// txAmount is the amount to send, or "all".
	txAmount string
	// txFeeRate is an explicit fee rate in sat/vB.
	txFeeRate uint64
	// txSpeed is the fee tier used when no rate is given.
	txSpeed string
	// txUTXOFile builds from a saved snapshot instead of querying providers.
	txUTXOFile string
	// txChange overrides the change address.
	txChange string
	// txDryRun builds and signs without broadcasting.
	txDryRun bool
)

// txCmd is the parent command for transaction operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Send and inspect transactions",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send bitcoin",
	Long: `Build, sign, and broadcast a payment from the account's addresses.

Inputs are chosen largest first. Change goes to the first change address
unless it would be dust, in which case it is added to the fee.

Amounts are BTC ("0.001") or satoshis ("5000sat"). Use --amount all to sweep
every output to the recipient, paying the fee from the total.

Examples:
  # Send with the configured fee tier
  satchel tx send --to bc1q... --amount 0.001

  # Explicit rate, preview only
  satchel tx send --to bc1q... --amount 25000sat --fee-rate 12 --dry-run

  # Sweep from a saved snapshot
  satchel tx send --to bc1q... --amount all --utxos ~/.satchel/mainnet/utxos.json`,
	Args: cobra.NoArgs,
	RunE: runTxSend,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txBroadcastCmd = &cobra.Command{
	Use:   "broadcast HEX",
	Short: "Broadcast a signed transaction",
	Long: `Submit a signed raw transaction to the broadcast providers in order.
Pass "-" to read the hex from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runTxBroadcast,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txStatusCmd = &cobra.Command{
	Use:   "status TXID",
	Short: "Show the confirmation status of a transaction",
	Args:  cobra.ExactArgs(1),
	RunE:  runTxStatus,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txDecodeCmd = &cobra.Command{
	Use:   "decode HEX",
	Short: "Decode a raw transaction",
	Long:  `Show the inputs, outputs, and size of a raw transaction. Pass "-" to read the hex from stdin.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runTxDecode,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(txCmd)
	txCmd.AddCommand(txSendCmd, txBroadcastCmd, txStatusCmd, txDecodeCmd)

	txSendCmd.Flags().StringVar(&txTo, "to", "", "recipient address (required)")
	txSendCmd.Flags().StringVar(&txAmount, "amount", "", "amount in BTC, satoshis with a 'sat' suffix, or 'all' (required)")
	txSendCmd.Flags().Uint64Var(&txFeeRate, "fee-rate", 0, "fee rate in sat/vB (overrides --speed)")
	txSendCmd.Flags().StringVar(&txSpeed, "speed", "", "fee tier: slow, medium, fast (default: fees.speed)")
	txSendCmd.Flags().StringVar(&txUTXOFile, "utxos", "", "build from a snapshot written by 'utxo list --save'")
	txSendCmd.Flags().StringVar(&txChange, "change", "", "change address (default: first change address)")
	txSendCmd.Flags().BoolVar(&txDryRun, "dry-run", false, "build and sign without broadcasting")
	txSendCmd.Flags().IntVar(&addrAccount, "account", -1, "account index (default: derivation.account)")
	addSecretFlags(txSendCmd.Flags())

	_ = txSendCmd.MarkFlagRequired("to")
	_ = txSendCmd.MarkFlagRequired("amount")
}

// parseAmountFlag parses a positive BTC or satoshi amount.
func parseAmountFlag(s string) (uint64, error) {
	sats, err := chain.ParseAmount(s)
	if err != nil {
		return 0, satchelerr.WithSuggestion(err, `use BTC ("0.001") or satoshis ("5000sat")`)
	}
	return sats, nil
}

// readHexArg returns arg, or the first line of stdin for "-".
func readHexArg(cc *CommandContext, arg string) (string, error) {
	if arg != "-" {
		return strings.TrimSpace(arg), nil
	}
	line, err := bufio.NewReader(cc.Stdin).ReadString('\n')
	if strings.TrimSpace(line) == "" && err != nil {
		return "", usageError("no transaction hex on stdin")
	}
	return strings.TrimSpace(line), nil
}

//nolint:gocyclo // CLI flow involves validation and routing
func runTxSend(cmd *cobra.Command, _ []string) error {
	cc, err := GetCmdContext(cmd)
	if err != nil {
		return err
	}

	to := btc.SanitizeAddress(txTo)
	if err = btc.ValidateAddress(to, cc.Network); err != nil {
		return err
	}
	if txFeeRate > cc.Cfg.Fees.MaxRate {
		return satchelerr.WithSuggestion(
			satchelerr.WithDetails(satchelerr.ErrInvalidFeeRate, map[string]string{
				"rate": strconv.FormatUint(txFeeRate, 10),
				"max":  strconv.FormatUint(cc.Cfg.Fees.MaxRate, 10),
			}),
			"raise fees.max_rate in the config file if this rate is intended",
		)
	}
	speed := txSpeed
	if speed == "" {
		speed = cc.Cfg.Fees.Speed
	}

	spent, err := openSpentStore(cc)
	if err != nil {
		return err
	}

	var snapshot []wallet.Spendable
	if txUTXOFile != "" {
		snap := spent
		if path := snapshotPath(cc, txUTXOFile); path != spent.Path() {
			snap = utxostore.New(path)
			if err = snap.LoadFor(cc.Network.Name()); err != nil {
				return err
			}
		}
		if snap.IsEmpty() {
			return satchelerr.WithSuggestion(satchelerr.ErrNoUTXOs, "write a snapshot first with 'satchel utxo list --save'")
		}
		snapshot = snap.Spendables()
		cc.Log.Debug("send: snapshot %s from %s", snap.Path(), snap.UpdatedAt().Format("2006-01-02 15:04:05"))
	}

	sec, err := readSecrets(cc)
	if err != nil {
		return err
	}
	acct, err := deriveAccount(cc, sec)
	if err != nil {
		return err
	}
	change := btc.SanitizeAddress(txChange)
	if change == "" {
		if rec, ok := acct.ChangeAddress(); ok {
			change = rec.Address
		}
	}

	svc := transaction.NewService(&transaction.Config{
		UTXOs:       cc.Balances(),
		Fees:        configuredFees{cc: cc},
		Broadcaster: esplora.Broadcaster{Gateway: cc.Gateway()},
		Store:       spent,
		TxKnown:     txLookup(cc),
		Metrics:     cc.Metrics,
		Logger:      cc.Log,
	})

	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout(cc.Cfg.BroadcastTimeout()))
	defer cancel()

	result, err := svc.Send(ctx, &transaction.SendRequest{
		Phrase:        sec.phrase,
		Passphrase:    sec.passphrase,
		Network:       cc.Network,
		To:            to,
		AmountStr:     txAmount,
		FeeRate:       txFeeRate,
		Speed:         speed,
		Records:       acct.Addresses(),
		ChangeAddress: change,
		Snapshot:      snapshot,
		DryRun:        txDryRun,
	})
	if err != nil {
		return err
	}

	return cc.Fmt.Emit(result, func(w io.Writer) error {
		return renderSendResult(w, result)
	})
}

func renderSendResult(w io.Writer, r *transaction.SendResult) error {
	if r.Broadcast {
		output.Successf(w, "Transaction broadcast")
	} else {
		outln(w, "Dry run: transaction signed but not broadcast")
	}
	outf(w, "TxID:     %s\n", r.TxID)
	outf(w, "Amount:   %s BTC to %s\n", chain.FormatBTC(r.Amount), r.To)
	outf(w, "Fee:      %d sat (%d sat/vB, %s; %.2f effective)\n", r.Fee, r.FeeRate, r.FeeSource, r.SignedTransaction.FeeRate())
	outf(w, "Size:     %d vB, %d inputs\n", r.VSize, len(r.Inputs))
	if r.Change > 0 {
		outf(w, "Change:   %s BTC\n", chain.FormatBTC(r.Change))
	}
	if r.ExplorerURL != "" {
		outf(w, "Explorer: %s\n", r.ExplorerURL)
	}
	if !r.Broadcast {
		outln(w)
		outln(w, r.Hex)
	}
	return nil
}

// BroadcastResponse is the JSON result of tx broadcast.
type BroadcastResponse struct {
	TxID        string `json:"txid"`
	Provider    string `json:"provider"`
	Attempts    int    `json:"attempts"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

func runTxBroadcast(cmd *cobra.Command, args []string) error {
	cc, err := GetCmdContext(cmd)
	if err != nil {
		return err
	}
	rawHex, err := readHexArg(cc, args[0])
	if err != nil {
		return err
	}
	tx, err := btc.DecodeTransaction(rawHex)
	if err != nil {
		return err
	}
	local := tx.TxHash().String()

	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout(cc.Cfg.BroadcastTimeout()))
	defer cancel()

	out := cc.Gateway().Broadcast(ctx, rawHex, cc.BroadcastProviders())
	if err = out.Err(); err != nil {
		return err
	}
	if out.Value != local {
		cc.Log.Error("broadcast: provider reported txid %s for %s", out.Value, local)
	}

	resp := BroadcastResponse{
		TxID:        local,
		Provider:    out.Attempts[out.Index].Endpoint.URL,
		Attempts:    len(out.Attempts),
		ExplorerURL: cc.Network.TxURL(local),
	}
	return cc.Fmt.Emit(resp, func(w io.Writer) error {
		output.Successf(w, "Broadcast %s via %s", resp.TxID, resp.Provider)
		if resp.ExplorerURL != "" {
			outf(w, "Explorer: %s\n", resp.ExplorerURL)
		}
		return nil
	})
}

// StatusResponse is the JSON result of tx status.
type StatusResponse struct {
	chain.TxStatus
	Confirmations int64 `json:"confirmations"`
}

func runTxStatus(cmd *cobra.Command, args []string) error {
	cc, err := GetCmdContext(cmd)
	if err != nil {
		return err
	}
	hash, err := chainhash.NewHashFromStr(strings.TrimSpace(args[0]))
	if err != nil || len(strings.TrimSpace(args[0])) != chainhash.MaxHashStringSize {
		return satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"txid": args[0]})
	}

	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout(cc.Cfg.QueryTimeout()))
	defer cancel()

	status, err := cc.Gateway().TxStatus(ctx, hash.String(), cc.QueryProviders())
	if err != nil {
		return err
	}
	resp := StatusResponse{TxStatus: *status}
	if status.Confirmed && status.BlockHeight > 0 {
		resp.Confirmations = 1
		if tip, tipErr := cc.Gateway().TipHeight(ctx, cc.QueryProviders()); tipErr == nil && tip >= status.BlockHeight {
			resp.Confirmations = tip - status.BlockHeight + 1
		}
	}

	return cc.Fmt.Emit(resp, func(w io.Writer) error {
		if !resp.Confirmed {
			outf(w, "%s: unconfirmed\n", resp.TxID)
			return nil
		}
		outf(w, "%s: confirmed in block %d (%d confirmations)\n", resp.TxID, resp.BlockHeight, resp.Confirmations)
		return nil
	})
}

// DecodedInput is one input of a decoded transaction.
type DecodedInput struct {
	Outpoint string `json:"outpoint"`
	Sequence uint32 `json:"sequence"`
	Witness  int    `json:"witness_items"`
}

// DecodedOutput is one output of a decoded transaction.
type DecodedOutput struct {
	Index   int    `json:"index"`
	Amount  uint64 `json:"amount"`
	Address string `json:"address,omitempty"`
	Script  string `json:"script_class"`
}

// DecodeResponse is the JSON result of tx decode.
type DecodeResponse struct {
	TxID     string          `json:"txid"`
	Version  int32           `json:"version"`
	LockTime uint32          `json:"locktime"`
	VSize    int64           `json:"vsize"`
	Inputs   []DecodedInput  `json:"inputs"`
	Outputs  []DecodedOutput `json:"outputs"`
	Total    uint64          `json:"total_out"`
}

func runTxDecode(cmd *cobra.Command, args []string) error {
	cc, err := GetCmdContext(cmd)
	if err != nil {
		return err
	}
	rawHex, err := readHexArg(cc, args[0])
	if err != nil {
		return err
	}
	resp, err := decodeTransaction(rawHex, cc.Network)
	if err != nil {
		return err
	}

	return cc.Fmt.Emit(resp, func(w io.Writer) error {
		outf(w, "TxID:  %s\n", resp.TxID)
		outf(w, "Size:  %d vB, version %d, locktime %d\n\n", resp.VSize, resp.Version, resp.LockTime)
		in := output.NewTable("INPUT", "SEQUENCE")
		for _, i := range resp.Inputs {
			in.AddRow(i.Outpoint, strconv.FormatUint(uint64(i.Sequence), 16))
		}
		if err := in.Render(w); err != nil {
			return err
		}
		outln(w)
		outs := output.NewTable("#", "AMOUNT", "ADDRESS", "TYPE").AlignRight(0, 1)
		for _, o := range resp.Outputs {
			outs.AddRow(strconv.Itoa(o.Index), chain.FormatBTC(o.Amount), o.Address, o.Script)
		}
		return outs.Render(w)
	})
}

func decodeTransaction(rawHex string, network chain.Network) (*DecodeResponse, error) {
	tx, err := btc.DecodeTransaction(rawHex)
	if err != nil {
		return nil, err
	}
	resp := &DecodeResponse{
		TxID:     tx.TxHash().String(),
		Version:  tx.Version,
		LockTime: tx.LockTime,
		VSize:    btc.VirtualSize(tx),
	}
	for _, in := range tx.TxIn {
		resp.Inputs = append(resp.Inputs, DecodedInput{
			Outpoint: in.PreviousOutPoint.String(),
			Sequence: in.Sequence,
			Witness:  len(in.Witness),
		})
	}
	for i, o := range tx.TxOut {
		class, addrs, _, _ := txscript.ExtractPkScriptAddrs(o.PkScript, network.Params())
		d := DecodedOutput{Index: i, Amount: uint64(o.Value), Script: class.String()} //nolint:gosec // output values are non-negative
		if len(addrs) == 1 {
			d.Address = addrs[0].EncodeAddress()
		}
		resp.Total += d.Amount
		resp.Outputs = append(resp.Outputs, d)
	}
	return resp, nil
}
