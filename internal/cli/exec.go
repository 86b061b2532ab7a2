package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/bawdo/querytree/executor"
	"github.com/bawdo/querytree/internal/database"
	"github.com/bawdo/querytree/internal/querydoc"
	"github.com/bawdo/querytree/visitors"
)

// ErrNoDSN is returned by exec without a configured data source.
var ErrNoDSN = errors.New("no dsn configured (use --dsn, QUERYTREE_DSN or dsn: in querytree.yaml)")

func newExecCmd() *cobra.Command {
	var count bool
	cmd := &cobra.Command{
		Use:   "exec <file|->",
		Short: "Render a query document and run it",
		Long: `Render a YAML query document and run it against the configured database.

Selects print their rows as a table, capped at max_rows. Insert, update and
delete documents print the number of affected rows.`,
		Example: `  querytree exec --engine sqlite --dsn ./app.db users.yaml
  QUERYTREE_DSN=postgres://localhost/app querytree exec --count users.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := EnvFrom(cmd.Context())
			doc, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			if env.Config.DSN == "" {
				return ErrNoDSN
			}
			conn, err := database.Open(cmd.Context(), env.Config.Engine, env.Config.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()
			env.Log.Debug("connected", "conn", conn)
			return runExec(cmd.Context(), env, conn, doc, count, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&count, "count", false, "print the row count instead of the rows")
	return cmd
}

func runExec(ctx context.Context, env *Env, q executor.Queryer, doc *querydoc.Document, count bool, w io.Writer) error {
	built, err := doc.Build()
	if err != nil {
		return err
	}
	// Executed statements always bind their parameters.
	d, err := env.Dialect()
	if err != nil {
		return err
	}
	ex := executor.New(q, visitors.NewSerializer(d),
		executor.WithLogger(env.Log),
		executor.WithMaxRows(env.Config.MaxRows))
	return built.Execute(ctx, ex, count, w)
}
