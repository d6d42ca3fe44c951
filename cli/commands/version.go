package commands

import (
	"github.com/spf13/cobra"

	"github.com/satishbabariya/relq/cli/internal/ui"
	"github.com/satishbabariya/relq/cli/internal/version"
)

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersionInfo()
		},
	}
}

func printVersionInfo() {
	info := version.Get()
	ui.PrintFields([][2]string{
		{"Version", info.Version},
		{"Protocol", info.Protocol},
		{"Git Commit", info.GitCommit},
		{"Build Date", info.BuildDate},
		{"Go Version", info.GoVersion},
		{"OS/Arch", info.Platform},
	})
}
