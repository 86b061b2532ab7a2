// Command querytree renders YAML query documents to SQL, runs them and
// hosts the interactive query builder.
//
// Usage:
//
//	querytree render users.yaml
//	querytree exec --engine sqlite --dsn ./app.db users.yaml
//	querytree repl
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bawdo/querytree/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
