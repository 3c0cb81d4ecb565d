// Package cli implements the satchel command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"errors"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/output"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

var (
	// Global flags
	homeDir      string
	networkName  string
	outputFormat string
	verbose      bool

	// Global state initialized in PersistentPreRunE
	cmdCtx *CommandContext
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "satchel",
	Short: "A Bitcoin wallet core for the terminal",
	Long: `Satchel derives native segwit (BIP84) addresses from a recovery phrase,
queries esplora-compatible indexers for balances and UTXOs, and builds,
signs, and broadcasts transactions.

Nothing is stored except an optional UTXO snapshot; the recovery phrase is
read from a file or a hidden prompt on every run.

Example:
  satchel phrase generate --words 24
  satchel balance --phrase-file ./phrase.txt
  satchel tx send --to bc1q... --amount 0.001 --speed fast`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cc, err := initGlobals(cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		cmdCtx = cc
		SetCmdContext(cmd, cc)
		cc.Log.Debug("command: %s", cmd.CommandPath())
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		format := output.FormatText
		if cmdCtx != nil {
			format = cmdCtx.Fmt.Format()
			cmdCtx.Log.Error("%s", err)
			cleanup()
		}
		_ = output.FormatError(os.Stderr, err, format)
		return err
	}
	return nil
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return satchelerr.ExitCode(err)
}

// initGlobals loads configuration and builds the command context. A missing
// config file is not an error; the defaults apply.
func initGlobals(stdout, stderr io.Writer) (*CommandContext, error) {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}
	home = config.ExpandPath(home)

	cfg, err := config.LoadOrDefaults(config.Path(home))
	if err != nil {
		return nil, err
	}
	cfg.Home = home

	// SATCHEL_PROVIDERS targets the network chosen by --network.
	flagNetwork := strings.ToLower(strings.TrimSpace(networkName))
	if flagNetwork != "" {
		cfg.Network = flagNetwork
	}
	config.ApplyEnvironment(cfg)

	// Flags beat the environment.
	if homeDir != "" {
		cfg.Home = homeDir
	}
	if flagNetwork != "" {
		cfg.Network = flagNetwork
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = config.LogLevelDebug.String()
	}
	if outputFormat != "" && outputFormat != string(output.FormatAuto) {
		cfg.Output.DefaultFormat = outputFormat
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	network, err := cfg.GetNetwork()
	if err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.GetLoggingFile())
	if err != nil {
		logger = config.NullLogger()
	}

	cc := NewCommandContext(cfg, logger, output.NewFormatter(output.ParseFormat(cfg.Output.DefaultFormat), stdout))
	cc.Network = network
	cc.Metrics = metrics.Global
	cc.Stderr = stderr
	return cc, nil
}

// cleanup logs the run's metrics and releases resources.
func cleanup() {
	if cmdCtx == nil {
		return
	}
	logMetrics(cmdCtx.Log, cmdCtx.Metrics)
	_ = cmdCtx.Log.Close()
	cmdCtx = nil
}

// logMetrics writes every non-zero metric of the run at debug level.
func logMetrics(log LogWriter, m *metrics.Metrics) {
	summary := m.Summary()
	keys := make([]string, 0, len(summary))
	for k, v := range summary {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		log.Debug("metric %s = %g", k, summary[k])
	}
}

// usageError returns an input error with a suggestion.
func usageError(suggestion string) error {
	return satchelerr.WithSuggestion(satchelerr.ErrInvalidInput, suggestion)
}

var errNoCommandContext = errors.New("command context not initialized")

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "satchel data directory (default: ~/.satchel)")
	rootCmd.PersistentFlags().StringVar(&networkName, "network", "", "network: mainnet, testnet, regtest")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
