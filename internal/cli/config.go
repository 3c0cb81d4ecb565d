package cli

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/output"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// configForce overwrites an existing config file.
	configForce bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default configuration to <home>/config.yaml. Use --network to
make a different network the default.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after the config file, SATCHEL_* environment
variables, and command-line flags have been applied.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config file")
}

// ConfigInitResponse is the JSON result of config init.
type ConfigInitResponse struct {
	Path    string `json:"path"`
	Network string `json:"network"`
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc, err := GetCmdContext(cmd)
	if err != nil {
		return err
	}

	home := cc.Cfg.GetHome()
	path := config.Path(home)
	if _, statErr := os.Stat(path); statErr == nil && !configForce {
		return satchelerr.WithSuggestion(
			satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"path": path}),
			"a config file already exists; pass --force to overwrite it",
		)
	} else if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
		return statErr
	}

	cfg := config.Defaults()
	cfg.Home = home
	cfg.Network = cc.Network.Name()
	if err = config.Save(cfg, path); err != nil {
		return err
	}
	cc.Log.Debug("config: wrote %s", path)

	resp := ConfigInitResponse{Path: path, Network: cfg.Network}
	return cc.Fmt.Emit(resp, func(w io.Writer) error {
		output.Successf(w, "Wrote %s (network: %s)", resp.Path, resp.Network)
		return nil
	})
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc, err := GetCmdContext(cmd)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cc.Cfg)
	if err != nil {
		return err
	}
	// Round-trip through a map so JSON output uses the YAML key names.
	var view map[string]any
	if err = yaml.Unmarshal(data, &view); err != nil {
		return err
	}
	return cc.Fmt.Emit(view, func(w io.Writer) error {
		_, werr := w.Write(data)
		return werr
	})
}
