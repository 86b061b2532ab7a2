package cli

import (
	"github.com/spf13/cobra"

	"github.com/bawdo/querytree/internal/repl"
)

func newREPLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Build queries interactively",
		Long: `Start an interactive session that builds a query document one clause at a
time. Type 'help' inside the session for the command list. When a dsn is
configured the session connects on start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := EnvFrom(cmd.Context())
			return repl.Run(cmd.Context(), repl.Options{
				Config:   env.Config,
				Registry: env.Registry,
				Log:      env.Log,
				Stdin:    cmd.InOrStdin(),
				Stdout:   cmd.OutOrStdout(),
				Stderr:   cmd.ErrOrStderr(),
			})
		},
	}
}
