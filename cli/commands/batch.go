package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/relq/cli/internal/ui"
	"github.com/satishbabariya/relq/internal/config"
	"github.com/satishbabariya/relq/runtime/remote"
)

type batchOptions struct {
	hints  []string
	dryRun bool
}

func newBatchCommand(a *app) *cobra.Command {
	var opts batchOptions

	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Run the statements in a SQL file as one batch",
		Long:  "Split FILE on semicolons and send every statement to the server in a single batch, which it runs in one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), a, args[0], opts)
		},
	}

	a.addClientFlags(cmd)
	cmd.Flags().StringArrayVar(&opts.hints, "hint", nil, "Query hint sent ahead of every statement (repeatable)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the statements without sending them")

	return cmd
}

func runBatch(ctx context.Context, a *app, path string, opts batchOptions) error {
	data, err := afero.ReadFile(config.AppFs, path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	statements := splitStatements(string(data))
	if len(statements) == 0 {
		ui.PrintWarning("%s contains no statements", path)
		return nil
	}

	if opts.dryRun {
		for _, s := range statements {
			ui.PrintSQL(s)
		}
		return nil
	}

	dc, client, err := a.dataContext()
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()
	defer dc.Close()
	dc.AddQueryHints(opts.hints...)

	spinner := ui.StartSpinner(fmt.Sprintf("Running %d statements against %s", len(statements), dc.Configuration()))
	err = sendBatch(ctx, dc, statements)
	if spinner != nil {
		if err != nil {
			spinner.Fail(err.Error())
		} else {
			spinner.Success(fmt.Sprintf("Ran %d statements", len(statements)))
		}
	}
	return err
}

func sendBatch(ctx context.Context, dc *remote.DataContext, statements []string) error {
	if err := dc.BeginBatch(); err != nil {
		return err
	}
	for _, s := range statements {
		if _, err := dc.ExecuteNonQuery(ctx, remote.NewCommand(s)); err != nil {
			return err
		}
	}
	return dc.CommitBatchContext(ctx)
}

// splitStatements splits a SQL script on semicolons that are outside
// quotes. Line comments starting with -- are dropped.
func splitStatements(script string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			cur.WriteRune('\n')
			continue
		case r == ';':
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return out
}
