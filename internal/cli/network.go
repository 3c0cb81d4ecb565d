package cli

import (
	"context"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/output"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var feesCmd = &cobra.Command{
	Use:   "fees",
	Short: "Show fee rate recommendations",
	Long: `Show the recommended fee rates in sat/vB from the first provider that
answers. When none answers the built-in defaults are shown and marked as such.

The speed tiers used by 'tx send --speed' map to: fast = fastest,
medium = half hour, slow = economy.`,
	Args: cobra.NoArgs,
	RunE: runFees,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var heightCmd = &cobra.Command{
	Use:   "height",
	Short: "Show the current block height",
	Args:  cobra.NoArgs,
	RunE:  runHeight,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(feesCmd, heightCmd)
}

// configuredFees applies fees.default_rate to the medium tier of fallback
// estimates.
type configuredFees struct {
	cc *CommandContext
}

// FeeEstimates implements transaction.FeeSource.
func (f configuredFees) FeeEstimates(ctx context.Context, providers []chain.Endpoint) chain.FeeEstimates {
	est := f.cc.Gateway().FeeEstimates(ctx, providers)
	if est.Fallback && f.cc.Cfg.Fees.DefaultRate > 0 {
		est.HalfHour = f.cc.Cfg.Fees.DefaultRate
	}
	return est
}

// FeesResponse is the JSON result of fees.
type FeesResponse struct {
	Network string `json:"network"`
	chain.FeeEstimates
	Fast   uint64 `json:"fast"`
	Medium uint64 `json:"medium"`
	Slow   uint64 `json:"slow"`
}

func runFees(cmd *cobra.Command, _ []string) error {
	cc, err := GetCmdContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout(cc.Cfg.QueryTimeout()))
	defer cancel()

	est := configuredFees{cc: cc}.FeeEstimates(ctx, cc.QueryProviders())
	resp := FeesResponse{
		Network:      cc.Network.Name(),
		FeeEstimates: est,
		Fast:         est.ForSpeed(chain.SpeedFast),
		Medium:       est.ForSpeed(chain.SpeedMedium),
		Slow:         est.ForSpeed(chain.SpeedSlow),
	}
	return cc.Fmt.Emit(resp, func(w io.Writer) error {
		tbl := output.NewTable("TARGET", "SAT/VB").AlignRight(1)
		tbl.AddRow("fastest", strconv.FormatUint(est.Fastest, 10))
		tbl.AddRow("half hour", strconv.FormatUint(est.HalfHour, 10))
		tbl.AddRow("hour", strconv.FormatUint(est.Hour, 10))
		tbl.AddRow("economy", strconv.FormatUint(est.Economy, 10))
		tbl.AddRow("minimum", strconv.FormatUint(est.Minimum, 10))
		if err := tbl.Render(w); err != nil {
			return err
		}
		if est.Fallback {
			output.Warnf(cc.Stderr, "no provider answered; showing default rates")
		}
		return nil
	})
}

// HeightResponse is the JSON result of height.
type HeightResponse struct {
	Network string `json:"network"`
	Height  int64  `json:"height"`
}

func runHeight(cmd *cobra.Command, _ []string) error {
	cc, err := GetCmdContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout(cc.Cfg.QueryTimeout()))
	defer cancel()

	height, err := cc.Gateway().TipHeight(ctx, cc.QueryProviders())
	if err != nil {
		return err
	}
	resp := HeightResponse{Network: cc.Network.Name(), Height: height}
	return cc.Fmt.Emit(resp, func(w io.Writer) error {
		outln(w, height)
		return nil
	})
}
