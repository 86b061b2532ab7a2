// Package cli provides the querytree command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bawdo/querytree/internal/config"
	"github.com/bawdo/querytree/templates"
	"github.com/bawdo/querytree/visitors"
)

// Version is set at build time.
var Version = "dev"

type envKey struct{}

// Env is what every command runs with: the resolved configuration, a
// logger at the configured level and the template registry with overrides
// applied.
type Env struct {
	Config   *config.Config
	Log      *slog.Logger
	Registry *templates.Registry
}

// Dialect resolves the configured dialect.
func (e *Env) Dialect() (*templates.Dialect, error) {
	return e.Registry.Dialect(e.Config.DialectName())
}

// Serializer returns a serializer for the configured dialect. Constants
// are inlined when inline is set or strict is off in the config.
func (e *Env) Serializer(inline bool) (*visitors.Serializer, error) {
	d, err := e.Dialect()
	if err != nil {
		return nil, err
	}
	var opts []visitors.Option
	if inline || !e.Config.Strict {
		opts = append(opts, visitors.WithoutParams())
	}
	if e.Config.Pretty {
		opts = append(opts, visitors.WithPrettyPrint())
	}
	return visitors.NewSerializer(d, opts...), nil
}

// EnvFrom returns the Env stored by the root command.
func EnvFrom(ctx context.Context) *Env {
	if e, ok := ctx.Value(envKey{}).(*Env); ok {
		return e
	}
	return nil
}

func newEnv(cfg *config.Config, stderr io.Writer) (*Env, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	if _, err := reg.Dialect(cfg.DialectName()); err != nil {
		return nil, err
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	return &Env{Config: cfg, Log: log, Registry: reg}, nil
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "querytree",
		Short: "Build, render and run SQL from typed expression trees",
		Long: `querytree renders YAML query documents into dialect-specific SQL with
bound parameters, runs them against PostgreSQL, MySQL or SQLite, and offers
an interactive query builder.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion", "__complete":
				return nil
			}
			cfg, err := config.Load("", cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			env, err := newEnv(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.File != "" {
				env.Log.Debug("config loaded", "file", cfg.File)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, env))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.BindFlags(root.PersistentFlags())

	_ = root.RegisterFlagCompletionFunc("engine", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return config.Engines, cobra.ShellCompDirectiveNoFileComp
	})
	_ = root.RegisterFlagCompletionFunc("dialect", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return templates.NewRegistry().Names(), cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newRenderCmd(),
		newExecCmd(),
		newDialectsCmd(),
		newTemplatesCmd(),
		newREPLCmd(),
	)
	return root
}

// Execute runs the root command and reports an error on stderr.
func Execute(ctx context.Context) error {
	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
