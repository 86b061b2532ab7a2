package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bawdo/querytree/executor"
	"github.com/bawdo/querytree/internal/querydoc"
	"github.com/bawdo/querytree/templates"
)

type renderOptions struct {
	count  bool
	dot    bool
	inline bool
}

func newRenderCmd() *cobra.Command {
	var opts renderOptions
	cmd := &cobra.Command{
		Use:   "render <file|->",
		Short: "Render a query document to SQL",
		Long: `Render a YAML query document to SQL for the configured dialect.

Bound parameters are listed after the statement as SQL comments.`,
		Example: `  # Render for postgres, one clause per line
  querytree render --pretty users.yaml

  # Render the row count query for MySQL, reading stdin
  cat users.yaml | querytree render --dialect mysql --count -

  # Graphviz output
  querytree render --dot users.yaml | dot -Tpng > users.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := EnvFrom(cmd.Context())
			doc, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			return runRender(env, doc, opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.count, "count", false, "render the row count query")
	f.BoolVar(&opts.dot, "dot", false, "emit a Graphviz digraph instead of SQL")
	f.BoolVar(&opts.inline, "inline", false, "inline constants as literals")
	cmd.MarkFlagsMutuallyExclusive("dot", "count")
	return cmd
}

func readDocument(cmd *cobra.Command, path string) (*querydoc.Document, error) {
	if path == "-" {
		return querydoc.Decode(cmd.InOrStdin())
	}
	return querydoc.ReadFile(path)
}

func runRender(env *Env, doc *querydoc.Document, opts renderOptions, w io.Writer) error {
	q, err := doc.Build()
	if err != nil {
		return err
	}
	if opts.dot {
		dot, err := q.Dot()
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, dot)
		return err
	}

	s, err := env.Serializer(opts.inline)
	if err != nil {
		return err
	}
	render := q.ToSQL
	if opts.count {
		render = q.ToCountSQL
	}
	sql, params, err := render(s)
	if err != nil {
		return err
	}
	env.Log.Debug("rendered", "kind", q.Kind, "dialect", s.Dialect().Name(), "params", len(params))
	if _, err := fmt.Fprintln(w, sql); err != nil {
		return err
	}
	return writeParams(w, s.Dialect(), params)
}

func writeParams(w io.Writer, d *templates.Dialect, params []any) error {
	for i, p := range params {
		if _, err := fmt.Fprintf(w, "-- %s = %s\n", d.Placeholder(i+1), executor.Cell(p)); err != nil {
			return err
		}
	}
	return nil
}
