package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/relq/cli/internal/ui"
	"github.com/satishbabariya/relq/query/builder"
	"github.com/satishbabariya/relq/runtime/remote"
)

type sqlOptions struct {
	builderType string
}

func newSQLCommand(a *app) *cobra.Command {
	var opts sqlOptions

	cmd := &cobra.Command{
		Use:   "sql ENTITY [PATH...]",
		Short: "Print the SELECT the association paths of an entity produce",
		Long: `Build a query over ENTITY and resolve every PATH against it. A path whose
last segment is an association adds its joins; one ending in a column also
selects it. For example:

  relq sql Order Customer.Region Employee.LastName`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(cmd.Context(), a, args[0], args[1:], opts)
		},
	}

	a.addClientFlags(cmd)
	cmd.Flags().StringVar(&opts.builderType, "builder", "", "SQL builder type to use instead of the one the server reports")

	return cmd
}

func runSQL(ctx context.Context, a *app, entity string, paths []string, opts sqlOptions) error {
	var remoteOpts []remote.Option
	if opts.builderType != "" {
		remoteOpts = append(remoteOpts, remote.WithSqlBuilderType(opts.builderType))
	}
	dc, client, err := a.dataContext(remoteOpts...)
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()
	defer dc.Close()

	sql, err := buildSQL(ctx, dc, entity, paths)
	if err != nil {
		return err
	}
	ui.PrintSQL(sql)
	return nil
}

func buildSQL(ctx context.Context, dc *remote.DataContext, entity string, paths []string) (string, error) {
	eb, err := dc.NewExpressionBuilder(ctx)
	if err != nil {
		return "", err
	}
	if !eb.MappingSchema().HasEntity(entity) {
		return "", fmt.Errorf("entity %s is not mapped in configuration %s", entity, dc.Configuration())
	}

	table := eb.NewTableContext(entity)
	for _, p := range paths {
		if err := addPath(eb, table, p); err != nil {
			return "", err
		}
	}

	sb, err := dc.NewSqlBuilder(ctx)
	if err != nil {
		return "", err
	}
	return sb.BuildSelect(table.SelectQuery())
}

func addPath(eb *builder.ExpressionBuilder, table *builder.TableContext, path string) error {
	e, err := eb.MemberPath(table, path)
	if err != nil {
		return err
	}
	if e.Type() == "" {
		return eb.Select(table, e)
	}
	_, _, err = eb.MakeAssociation(e)
	return err
}
