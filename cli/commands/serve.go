package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/relq/cli/internal/ui"
	"github.com/satishbabariya/relq/cli/internal/watch"
	"github.com/satishbabariya/relq/internal/config"
	"github.com/satishbabariya/relq/internal/debug"
	"github.com/satishbabariya/relq/mapping"
	"github.com/satishbabariya/relq/service"
	"github.com/satishbabariya/relq/transport/httptransport"
)

type serveOptions struct {
	listen       string
	allowUpdates bool
	watch        bool
}

func newServeCommand(a *app) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured databases over HTTP",
		Long:  "Open every configuration under server.configurations and expose it to remote data contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if opts.listen != "" {
				cfg.Server.Listen = opts.listen
			}
			if cmd.Flags().Changed("allow-updates") {
				cfg.Server.AllowUpdates = opts.allowUpdates
			}
			return runServe(cmd.Context(), cfg, opts.watch)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "", "Address to listen on (overrides server.listen)")
	cmd.Flags().BoolVar(&opts.allowUpdates, "allow-updates", false, "Accept non-query commands and batches")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload mapping files when they change")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, watchMappings bool) error {
	if err := errors.Join(cfg.ValidateMappings(), cfg.Server.Validate()); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(cfg.Server.Configurations) == 0 {
		return errors.New("no configurations to serve: add server.configurations to the config file")
	}
	if err := config.RegisterMappings(config.AppFs, cfg.Mappings); err != nil {
		return err
	}

	svc := service.New(
		service.WithAllowUpdates(cfg.Server.AllowUpdates),
		service.WithLogger(debug.Component("service")),
	)
	defer svc.Close()

	if err := addConfigurations(svc, cfg.Server.Configurations); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var background []func(context.Context) error
	if watchMappings && len(cfg.Mappings) > 0 {
		paths := make([]string, len(cfg.Mappings))
		for i, m := range cfg.Mappings {
			paths[i] = m.Path
		}
		logger := debug.Component("watch")
		w, err := watch.NewWatcher(paths, func(changed string) error {
			typ, err := reloadMapping(config.AppFs, cfg.Mappings, changed)
			if err != nil {
				ui.PrintWarning("mapping %s not reloaded: %v", changed, err)
				return err
			}
			ui.PrintSuccess("Reloaded mapping schema type %s", typ)
			return nil
		}, logger)
		if err != nil {
			return err
		}
		background = append(background, w.Run)
	}

	ui.PrintHeader("relq serve", fmt.Sprintf("listening on %s", cfg.Server.Listen))
	rows := make([][]string, 0, len(cfg.Server.Configurations))
	for _, c := range cfg.Server.Configurations {
		rows = append(rows, []string{c.Name, c.Provider, schemaTypeOf(c)})
	}
	if err := ui.PrintTable([]string{"Configuration", "Provider", "Mapping schema"}, rows); err != nil {
		return err
	}
	if !cfg.Server.AllowUpdates {
		ui.PrintWarning("updates are disabled; nonquery and batch requests are rejected")
	}

	srv := &httptransport.Server{
		Addr:    cfg.Server.Listen,
		Service: svc,
		Logger:  debug.Component("server"),
	}
	return srv.Serve(ctx, background...)
}

func schemaTypeOf(c config.Configuration) string {
	if c.MappingSchemaType == "" {
		return mapping.DefaultSchemaType
	}
	return c.MappingSchemaType
}

func addConfigurations(svc *service.Service, configs []config.Configuration) error {
	for _, c := range configs {
		opts, err := c.ParsedTableOptions()
		if err != nil {
			return err
		}
		db, err := service.OpenDB(c.Provider, c.ResolvedURL())
		if err != nil {
			return fmt.Errorf("configuration %s: %w", c.Name, err)
		}
		_, err = svc.Add(service.Configuration{
			Name:              c.Name,
			Provider:          c.Provider,
			DB:                db,
			MappingSchemaType: c.MappingSchemaType,
			SqlBuilderType:    c.SqlBuilderType,
			SqlOptimizerType:  c.SqlOptimizerType,
			Flags:             c.Flags,
			TableOptions:      opts,
		})
		if err != nil {
			db.Close()
			return err
		}
	}
	return nil
}

// reloadMapping re-reads the mapping file at changed and registers it
// again under its schema type, which it returns.
func reloadMapping(fs afero.Fs, files []config.MappingFile, changed string) (string, error) {
	for _, m := range files {
		abs, err := filepath.Abs(m.Path)
		if err != nil || abs != changed {
			continue
		}
		ms, err := m.Load(fs)
		if err != nil {
			return "", err
		}
		mapping.RegisterSchema(m.Type, ms)
		return m.Type, nil
	}
	return "", fmt.Errorf("%s is not a configured mapping file", changed)
}
