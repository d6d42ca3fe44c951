// Package commands implements the relq CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/relq/cli/internal/ui"
	"github.com/satishbabariya/relq/cli/internal/version"
	"github.com/satishbabariya/relq/internal/config"
	"github.com/satishbabariya/relq/internal/debug"
)

// app is the state shared by every command.
type app struct {
	configFile string
	debug      bool

	// Client overrides.
	endpoint      string
	configuration string

	cfg *config.Config
}

// NewRootCommand creates the relq command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "relq",
		Short:         "Relational query service",
		Long:          "relq hosts database configurations over HTTP and builds association joins against them",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configFile, "config", "", "Path to config file (default: .relq.yaml in . or $HOME)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newInfoCommand(a))
	cmd.AddCommand(newBatchCommand(a))
	cmd.AddCommand(newSQLCommand(a))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// Execute runs the CLI and prints the error, if any.
func Execute() error {
	if err := NewRootCommand().Execute(); err != nil {
		ui.PrintError("%v", err)
		return err
	}
	return nil
}

func (a *app) load() error {
	if a.debug {
		debug.Init(true)
	} else {
		debug.InitFromEnv()
	}

	var opts []config.LoadOption
	if a.configFile != "" {
		opts = append(opts, config.WithConfigFile(a.configFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.File != "" {
		debug.Debug("loaded config", "file", cfg.File)
	}
	a.cfg = cfg
	return nil
}

// addClientFlags registers the flags of commands that talk to a server.
func (a *app) addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.endpoint, "endpoint", "", "Server URL (overrides client.endpoint)")
	cmd.Flags().StringVarP(&a.configuration, "configuration", "c", "", "Configuration name (overrides client.configuration)")
}
