package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/version"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, _ []string) error {
	cc, err := GetCmdContext(cmd)
	if err != nil {
		return err
	}
	info := version.Get()
	return cc.Fmt.Emit(info, func(w io.Writer) error {
		outf(w, "satchel %s\n", info)
		outf(w, "%s %s\n", info.GoVersion, info.Platform)
		return nil
	})
}
