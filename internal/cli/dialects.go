package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDialectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dialects",
		Short: "List the available dialects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := EnvFrom(cmd.Context())
			selected := env.Config.DialectName()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tNAME\tPARENT\tOPERATORS")
			for _, name := range env.Registry.Names() {
				d, err := env.Registry.Dialect(name)
				if err != nil {
					return err
				}
				mark := ""
				if name == selected {
					mark = "*"
				}
				parent := d.Parent()
				if parent == "" {
					parent = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", mark, name, parent, len(d.Table().Operators()))
			}
			return tw.Flush()
		},
	}
}

func newTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates [dialect]",
		Short: "List the operator templates of a dialect",
		Long: `List every operator template of a dialect with its precedence. Without an
argument the configured dialect is listed. Overrides from the templates:
section of the config file are included.`,
		Args: cobra.MaximumNArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			if env := EnvFrom(cmd.Context()); env != nil {
				return env.Registry.Names(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			env := EnvFrom(cmd.Context())
			name := env.Config.DialectName()
			if len(args) == 1 {
				name = args[0]
			}
			d, err := env.Registry.Dialect(name)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "OPERATOR\tPRECEDENCE\tTEMPLATE")
			for _, op := range d.Table().Operators() {
				tmpl, ok := d.Table().Lookup(op)
				if !ok {
					continue
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", op, tmpl.Precedence(), tmpl.Pattern())
			}
			return tw.Flush()
		},
	}
}
