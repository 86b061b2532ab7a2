package repl

import (
	"slices"
	"strings"
)

// commandEntry maps a prefix to its handler. Prefixes ending in a space
// take arguments; the others match the whole line.
type commandEntry struct {
	prefix    string
	handler   func(args string) error
	completer func(args string) (completionContext, string)
	hidden    bool
}

func (s *Session) initCommands() {
	s.commands = []commandEntry{
		{prefix: "sql", handler: func(string) error { return s.cmdSQL(false) }},
		{prefix: "tosql", handler: func(string) error { return s.cmdSQL(false) }, hidden: true},
		{prefix: "count", handler: func(string) error { return s.cmdSQL(true) }},
		{prefix: "doc", handler: func(string) error { return s.cmdDoc() }},
		{prefix: "dot ", handler: s.cmdDot},
		{prefix: "dot", handler: s.cmdDot},
		{prefix: "save ", handler: s.cmdSave},
		{prefix: "load ", handler: s.cmdLoad},
		{prefix: "reset", handler: func(string) error { return s.cmdReset() }},
		{prefix: "tables", handler: func(string) error { return s.cmdTables() }},
		{prefix: "help", handler: func(string) error { s.cmdHelp(); return nil }},
		{prefix: "expr ", handler: s.cmdExpr, completer: completeColumnArgs},

		{prefix: "from ", handler: s.cmdFrom, completer: completeTableArgs},
		{prefix: "select ", handler: s.cmdSelect, completer: completeColumnArgs},
		{prefix: "where ", handler: s.cmdWhere, completer: completeColumnArgs},
		{prefix: "group ", handler: func(a string) error { return s.appendList("group", &s.doc.Group, a) }, completer: completeColumnArgs},
		{prefix: "having ", handler: s.cmdHaving, completer: completeColumnArgs},
		{prefix: "order ", handler: func(a string) error { return s.appendList("order", &s.doc.Order, a) }, completer: completeOrderArgs},
		{prefix: "limit ", handler: func(a string) error { return s.cmdLimit(a, false) }},
		{prefix: "offset ", handler: func(a string) error { return s.cmdLimit(a, true) }},
		{prefix: "distinct", handler: func(string) error { return s.cmdDistinct() }},
		{prefix: "for update", handler: func(string) error { return s.cmdLock("update") }},
		{prefix: "for share", handler: func(string) error { return s.cmdLock("share") }},
		{prefix: "comment ", handler: s.cmdComment},

		{prefix: "lateral left join ", handler: func(a string) error { return s.cmdJoin(a, "left", true) }, completer: completeJoinArgs},
		{prefix: "lateral join ", handler: func(a string) error { return s.cmdJoin(a, "inner", true) }, completer: completeJoinArgs},
		{prefix: "right join ", handler: func(a string) error { return s.cmdJoin(a, "right", false) }, completer: completeJoinArgs},
		{prefix: "cross join ", handler: func(a string) error { return s.cmdJoin(a, "cross", false) }, completer: completeTableArgs},
		{prefix: "left join ", handler: func(a string) error { return s.cmdJoin(a, "left", false) }, completer: completeJoinArgs},
		{prefix: "full join ", handler: func(a string) error { return s.cmdJoin(a, "full", false) }, completer: completeJoinArgs},
		{prefix: "join ", handler: func(a string) error { return s.cmdJoin(a, "inner", false) }, completer: completeJoinArgs},

		{prefix: "union all", handler: func(string) error { return s.cmdSetOp(true) }},
		{prefix: "union", handler: func(string) error { return s.cmdSetOp(false) }},

		{prefix: "param ", handler: s.cmdParam},
		{prefix: "insert into ", handler: s.cmdInsertInto, completer: completeTableArgs},
		{prefix: "columns ", handler: s.cmdColumns, completer: completeColumnArgs},
		{prefix: "values ", handler: s.cmdValues},
		{prefix: "update ", handler: s.cmdUpdate, completer: completeTableArgs},
		{prefix: "set ", handler: s.cmdSet, completer: completeColumnArgs},
		{prefix: "delete from ", handler: s.cmdDeleteFrom, completer: completeTableArgs},

		{prefix: "dialect ", handler: s.cmdDialect, completer: completeDialectArgs},
		{prefix: "dialect", handler: s.cmdDialect},
		{prefix: "engine ", handler: s.cmdEngine, completer: completeEngineArgs},
		{prefix: "inline", handler: func(string) error { return s.cmdInline() }},
		{prefix: "pretty", handler: func(string) error { return s.cmdPretty() }},
		{prefix: "plugin ", handler: s.cmdPlugin, completer: completePluginArgs},
		{prefix: "plugins", handler: func(string) error { return s.cmdPlugins() }},

		{prefix: "connect ", handler: s.cmdConnect},
		{prefix: "connect", handler: s.cmdConnect},
		{prefix: "disconnect", handler: func(string) error { return s.cmdDisconnect() }},
		{prefix: "exec", handler: func(string) error { return s.cmdExec(false) }},
		{prefix: "run", handler: func(string) error { return s.cmdExec(false) }, hidden: true},
		{prefix: "exec count", handler: func(string) error { return s.cmdExec(true) }},
	}

	// Longest prefixes match first.
	slices.SortStableFunc(s.commands, func(a, b commandEntry) int {
		return len(b.prefix) - len(a.prefix)
	})
}

// commandNames lists the visible commands for completion.
func (s *Session) commandNames() []string {
	names := []string{"exit", "quit"}
	for _, cmd := range s.commands {
		if !cmd.hidden {
			names = append(names, strings.TrimRight(cmd.prefix, " "))
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

const helpText = `  Query building:
    from <table> [alias][, ...]        Start a select over one or more tables
    select <expr>[, ...]               Set the projection
    where <condition>                  Add a filter (ANDed)
    group <expr>[, ...]                Add group by expressions
    having <condition>                 Add a group filter
    order <expr> [asc|desc] [nulls first|last][, ...]
    limit <n> | offset <n>             Page the result
    distinct                           Toggle SELECT DISTINCT
    for update | for share             Lock the selected rows
    comment <text>                     Prefix the statement with a comment
    [left|right|full] join <table> [alias] on <condition>
    lateral [left] join <table> on <condition>
    cross join <table> [alias]
    union | union all                  Combine with the next query

  Insert, update and delete:
    insert into <table> [(col, ...)]   Start an insert
    columns <col>[, ...]               Set insert columns
    values <v>[, ...]                  Add a row (prefix "=" for an expression)
    update <table>                     Start an update
    set <col> = <value>                Assign a column ("= =expr" for an expression)
    delete from <table>                Start a delete
    param <name> <value>               Bind :name

  Output:
    sql | count                        Render the statement or its row count
    doc                                Print the query document
    dot <file>                         Write a Graphviz DOT file
    save <file> | load <file>          Save or load the query document
    expr <expr>                        Render one expression and its type
    dialect [name] | engine <name>     Switch the rendering dialect or engine
    inline                             Toggle inlined constants
    pretty                             Toggle one clause per line
    plugin softdelete [args]           Filter soft-deleted rows
    plugin policy <table> <condition>  Restrict rows of a table
    plugin policy deny <table>         Reject queries touching a table
    plugin off [name] | plugins        Disable or list plugins
    reset                              Clear the query

  Database:
    connect [dsn] | disconnect
    exec | exec count                  Run the query
    tables                             List tables

    help                               Show this help
    exit | quit                        Leave
`

func (s *Session) cmdHelp() {
	s.printf("%s", helpText)
}
