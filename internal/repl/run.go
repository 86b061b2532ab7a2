package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"github.com/mattn/go-isatty"
)

const (
	prompt       = "querytree> "
	historyLimit = 500
)

// Run starts a session. A terminal on Stdin gets line editing, history
// and completion; any other reader is run as a script, one command per
// line, stopping at the first failing command.
func Run(ctx context.Context, opts Options) error {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	sess := NewSession(ctx, opts)
	defer func() { _ = sess.Close() }()

	if sess.cfg.DSN != "" {
		if err := sess.cmdConnect(""); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "  Warning: connect failed: %v\n", err)
		}
	}

	if f, ok := opts.Stdin.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return interactive(ctx, sess, opts.Stderr)
	}
	return script(ctx, sess, opts.Stdin)
}

func interactive(ctx context.Context, sess *Session, stderr io.Writer) error {
	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyPath(),
		HistoryLimit:    historyLimit,
		AutoComplete:    &completer{sess: sess},
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer func() { _ = rl.Close() }()

	sess.printf("querytree: type 'help' for commands, 'exit' to quit\n\n")
	for ctx.Err() == nil {
		line, err := rl.ReadLine()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			break
		}
		if isExit(line) {
			break
		}
		if err := sess.Execute(line); err != nil {
			_, _ = fmt.Fprintf(stderr, "  Error: %v\n", err)
		}
	}
	sess.printf("\n")
	return nil
}

func script(ctx context.Context, sess *Session, r io.Reader) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		line := sc.Text()
		if isExit(line) {
			return nil
		}
		if err := sess.Execute(line); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

func isExit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "exit", "quit":
		return true
	}
	return false
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".querytree_history")
}
