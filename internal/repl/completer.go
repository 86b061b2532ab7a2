package repl

import (
	"slices"
	"strings"

	"github.com/bawdo/querytree/internal/config"
)

type completionContext int

const (
	contextNone completionContext = iota
	contextCommand
	contextTableName
	contextColumnRef
	contextEngine
	contextDialect
	contextPlugin
	contextPluginOff
	contextOrderDir
	contextOperator
)

var orderDirs = []string{"asc", "desc", "nulls first", "nulls last"}

var operators = []string{
	"!=", "%", "*", "+", "-", "/", "<", "<=", "<>", "=", ">", ">=", "||",
	"and", "between", "in", "is", "like", "not", "or",
}

var functionNames = []string{
	"abs(", "add_days(", "avg(", "concat(", "contains(", "count(", "count(distinct ",
	"day(", "ends_with(", "iequals(", "length(", "lower(", "max(", "min(", "mod(",
	"month(", "starts_with(", "sum(", "trim(", "upper(", "year(",
}

// completer implements readline.AutoCompleter.
type completer struct {
	sess *Session
}

// Do returns the suffixes completing the word before pos and the length of
// that word.
func (c *completer) Do(line []rune, pos int) (newLine [][]rune, length int) {
	ctx, prefix := c.parseContext(string(line[:pos]))

	var candidates []string
	switch ctx {
	case contextCommand:
		candidates = filterPrefix(c.sess.commandNames(), prefix)
	case contextTableName:
		candidates = filterPrefix(c.tableNames(), prefix)
	case contextColumnRef:
		candidates = c.columnRefs(prefix)
	case contextEngine:
		candidates = filterPrefix(config.Engines, prefix)
	case contextDialect:
		candidates = filterPrefix(c.sess.registry.Names(), prefix)
	case contextPlugin:
		candidates = filterPrefix(append([]string{"off"}, pluginNames()...), prefix)
	case contextPluginOff:
		candidates = filterPrefix(pluginNames(), prefix)
	case contextOrderDir:
		candidates = filterPrefix(orderDirs, prefix)
	case contextOperator:
		candidates = filterPrefix(operators, prefix)
	}

	for _, cand := range candidates {
		suffix := cand[len(prefix):]
		if !strings.HasSuffix(cand, "(") {
			suffix += " "
		}
		newLine = append(newLine, []rune(suffix))
	}
	return newLine, len([]rune(prefix))
}

func (c *completer) parseContext(line string) (completionContext, string) {
	lower := strings.ToLower(line)
	for _, cmd := range c.sess.commands {
		if cmd.completer == nil || !strings.HasSuffix(cmd.prefix, " ") {
			continue
		}
		if strings.HasPrefix(lower, cmd.prefix) {
			return cmd.completer(line[len(cmd.prefix):])
		}
	}
	return contextCommand, strings.TrimLeft(line, " ")
}

// tableNames are the aliases of the query plus the database tables.
func (c *completer) tableNames() []string {
	names := c.sess.aliases()
	if c.sess.conn != nil {
		if tables, err := c.sess.conn.Tables(c.sess.ctx); err == nil {
			names = append(names, tables...)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// columnRefs completes "alias.col" after a dot and tables or functions
// before one.
func (c *completer) columnRefs(prefix string) []string {
	alias, _, dotted := strings.Cut(prefix, ".")
	if !dotted {
		return append(filterPrefix(c.tableNames(), prefix), filterPrefix(functionNames, prefix)...)
	}
	candidates := []string{alias + ".*"}
	if c.sess.conn != nil {
		table := alias
		if scope, err := c.sess.scope(); err == nil {
			if e, ok := scope.Entity(alias); ok {
				table = e.Table()
			}
		}
		if cols, err := c.sess.conn.Columns(c.sess.ctx, table); err == nil {
			for _, col := range cols {
				candidates = append(candidates, alias+"."+col)
			}
		}
	}
	return filterPrefix(candidates, prefix)
}

// filterPrefix returns the items starting with prefix, ignoring case.
func filterPrefix(items []string, prefix string) []string {
	lower := strings.ToLower(prefix)
	var out []string
	for _, item := range items {
		if strings.HasPrefix(strings.ToLower(item), lower) {
			out = append(out, item)
		}
	}
	return out
}

// lastToken returns the text after the last space or comma.
func lastToken(s string) string {
	if i := strings.LastIndexAny(s, " ,\t("); i >= 0 {
		return s[i+1:]
	}
	return s
}

func completeTableArgs(args string) (completionContext, string) {
	if !strings.Contains(strings.TrimLeft(args, " "), " ") {
		return contextTableName, strings.TrimSpace(args)
	}
	return contextNone, ""
}

// completeJoinArgs walks table, then "on", then the condition.
func completeJoinArgs(args string) (completionContext, string) {
	words := strings.Fields(args)
	if len(words) == 0 || (len(words) == 1 && !strings.HasSuffix(args, " ")) {
		return contextTableName, strings.TrimSpace(args)
	}
	if !slices.ContainsFunc(words, func(w string) bool { return strings.EqualFold(w, "on") }) {
		return contextNone, ""
	}
	return completeColumnArgs(args)
}

func completeColumnArgs(args string) (completionContext, string) {
	if strings.HasSuffix(args, " ") {
		words := strings.Fields(args)
		if len(words) > 0 && strings.Contains(words[len(words)-1], ".") {
			return contextOperator, ""
		}
		return contextColumnRef, ""
	}
	return contextColumnRef, lastToken(args)
}

func completeOrderArgs(args string) (completionContext, string) {
	if strings.HasSuffix(args, " ") {
		words := strings.Fields(args)
		if len(words) > 0 && !strings.HasSuffix(words[len(words)-1], ",") {
			return contextOrderDir, ""
		}
		return contextColumnRef, ""
	}
	last := lastToken(args)
	words := strings.Fields(args)
	if len(words) > 1 && !strings.HasSuffix(words[len(words)-2], ",") {
		return contextOrderDir, last
	}
	return contextColumnRef, last
}

func completeEngineArgs(args string) (completionContext, string) {
	return contextEngine, strings.TrimSpace(args)
}

func completeDialectArgs(args string) (completionContext, string) {
	return contextDialect, strings.TrimSpace(args)
}

func completePluginArgs(args string) (completionContext, string) {
	if strings.HasPrefix(strings.ToLower(args), "off ") {
		return contextPluginOff, strings.TrimSpace(args[4:])
	}
	if arg := strings.TrimSpace(args); !strings.Contains(arg, " ") {
		return contextPlugin, arg
	}
	return contextNone, ""
}
