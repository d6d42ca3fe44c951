package commands

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/relq/cli/internal/ui"
	"github.com/satishbabariya/relq/cli/internal/version"
	"github.com/satishbabariya/relq/dialect"
	"github.com/satishbabariya/relq/runtime/remote"
)

func newInfoCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info [configuration...]",
		Short: "Show what the server reports for its configurations",
		Long:  "Print the builder, optimizer, provider flags and protocol version of each configuration. With no arguments every configuration the server hosts is shown.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.Context(), a, args)
		},
	}
	a.addClientFlags(cmd)
	return cmd
}

func runInfo(ctx context.Context, a *app, names []string) error {
	client, err := a.httpClient()
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	if len(names) == 0 && a.configuration != "" {
		names = []string{a.configuration}
	}
	if len(names) == 0 {
		names, err = client.Configurations(ctx)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			ui.PrintWarning("the server hosts no configurations")
			return nil
		}
	}

	for _, name := range names {
		info, err := client.GetInfo(ctx, name)
		if err != nil {
			return err
		}
		if err := printInfo(name, info); err != nil {
			return err
		}
	}
	return nil
}

func printInfo(name string, info *remote.ServiceInfo) error {
	ui.PrintHeader(name, "protocol "+info.ProtocolVersion)
	ui.PrintFields([][2]string{
		{"Mapping schema", info.MappingSchemaType},
		{"SQL builder", info.SqlBuilderType},
		{"SQL optimizer", info.SqlOptimizerType},
		{"Table options", info.SupportedTableOptions.String()},
	})

	if err := ui.PrintTable([]string{"Flag", "Value"}, flagRows(info.SqlProviderFlags)); err != nil {
		return err
	}

	compat := version.Check(info.ProtocolVersion)
	switch {
	case compat.Err != nil:
		ui.PrintError("incompatible protocol: %v", compat.Err)
	case compat.ServerNewer:
		ui.PrintWarning("server speaks protocol %s, client %s", compat.Server, compat.Client)
	default:
		ui.PrintSuccess("protocol %s compatible", compat.Server)
	}
	return nil
}

func flagRows(f dialect.ProviderFlags) [][]string {
	return [][]string{
		{"parameter_order_dependent", strconv.FormatBool(f.IsParameterOrderDependent)},
		{"accepts_take_as_parameter", strconv.FormatBool(f.AcceptsTakeAsParameter)},
		{"subquery_column_supported", strconv.FormatBool(f.IsSubQueryColumnSupported)},
		{"apply_join_supported", strconv.FormatBool(f.IsApplyJoinSupported)},
		{"update_from_supported", strconv.FormatBool(f.IsUpdateFromSupported)},
		{"max_in_list_values", strconv.Itoa(f.MaxInListValuesCount)},
	}
}
