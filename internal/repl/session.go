// Package repl is an interactive query builder. Each command edits a
// query document; sql renders it and exec runs it on the connected
// database.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bawdo/querytree/executor"
	"github.com/bawdo/querytree/internal/config"
	"github.com/bawdo/querytree/internal/database"
	"github.com/bawdo/querytree/internal/querydoc"
	"github.com/bawdo/querytree/templates"
	"github.com/bawdo/querytree/visitors"
)

var errNoQuery = errors.New("no query defined (use 'from <table>' first)")

// Options configure a Session.
type Options struct {
	Config   *config.Config
	Registry *templates.Registry
	Log      *slog.Logger
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
}

// setOp is a finished select waiting to be combined with the next one.
type setOp struct {
	all bool
	doc *querydoc.Document
}

// Session holds the document under construction and the connection.
type Session struct {
	ctx      context.Context
	cfg      config.Config
	registry *templates.Registry
	log      *slog.Logger
	out      io.Writer

	doc      *querydoc.Document
	setOps   []setOp
	engine   string
	dialect  string
	inline   bool
	pretty   bool
	conn     *database.Conn
	commands []commandEntry
}

// NewSession returns a session with an empty document.
func NewSession(ctx context.Context, opts Options) *Session {
	s := &Session{
		ctx:      ctx,
		registry: opts.Registry,
		log:      opts.Log,
		out:      opts.Stdout,
		doc:      &querydoc.Document{},
	}
	if opts.Config != nil {
		s.cfg = *opts.Config
	} else {
		s.cfg = config.Config{Engine: config.DefaultEngine, Strict: true, MaxRows: config.DefaultMaxRows}
	}
	if s.registry == nil {
		s.registry = templates.NewRegistry()
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	s.engine = s.cfg.Engine
	s.dialect = s.cfg.DialectName()
	s.inline = !s.cfg.Strict
	s.pretty = s.cfg.Pretty
	s.initCommands()
	return s
}

// Close drops the connection, if any.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Session) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

// Execute runs one command line.
func (s *Session) Execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "--") {
		return nil
	}
	lower := strings.ToLower(line)
	for _, cmd := range s.commands {
		if strings.HasSuffix(cmd.prefix, " ") {
			if strings.HasPrefix(lower, cmd.prefix) {
				return cmd.handler(strings.TrimSpace(line[len(cmd.prefix):]))
			}
		} else if lower == cmd.prefix {
			return cmd.handler("")
		}
	}
	return fmt.Errorf("unknown command: %s (type 'help' for commands)", strings.Fields(line)[0])
}

// Document returns the document the session renders, with pending set
// operations folded in.
func (s *Session) Document() *querydoc.Document {
	if len(s.setOps) == 0 {
		return s.doc
	}
	base := *s.setOps[0].doc
	base.Union = slices.Clone(base.Union)
	base.UnionAll = slices.Clone(base.UnionAll)
	members := make([]*querydoc.Document, 0, len(s.setOps))
	for _, op := range s.setOps[1:] {
		members = append(members, op.doc)
	}
	members = append(members, s.doc)
	for i, m := range members {
		if s.setOps[i].all {
			base.UnionAll = append(base.UnionAll, m)
		} else {
			base.Union = append(base.Union, m)
		}
	}
	return &base
}

func (s *Session) build() (*querydoc.Query, error) {
	d := s.Document()
	if _, err := d.Kind(); errors.Is(err, querydoc.ErrNoStatement) {
		return nil, errNoQuery
	}
	return d.Build()
}

func (s *Session) serializer() (*visitors.Serializer, error) {
	d, err := s.registry.Dialect(s.dialect)
	if err != nil {
		return nil, err
	}
	var opts []visitors.Option
	if s.inline {
		opts = append(opts, visitors.WithoutParams())
	}
	if s.pretty {
		opts = append(opts, visitors.WithPrettyPrint())
	}
	return visitors.NewSerializer(d, opts...), nil
}

// GenerateSQL renders the current document.
func (s *Session) GenerateSQL() (string, []any, error) {
	q, err := s.build()
	if err != nil {
		return "", nil, err
	}
	ser, err := s.serializer()
	if err != nil {
		return "", nil, err
	}
	return q.ToSQL(ser)
}

// --- Display ---

func (s *Session) cmdSQL(count bool) error {
	q, err := s.build()
	if err != nil {
		return err
	}
	ser, err := s.serializer()
	if err != nil {
		return err
	}
	render := q.ToSQL
	if count {
		render = q.ToCountSQL
	}
	sql, params, err := render(ser)
	if err != nil {
		return err
	}
	s.printf("  %s\n", strings.ReplaceAll(sql, "\n", "\n  "))
	for i, p := range params {
		s.printf("  -- %s = %s\n", ser.Dialect().Placeholder(i+1), executor.Cell(p))
	}
	return nil
}

func (s *Session) cmdDoc() error {
	out, err := s.Document().Marshal()
	if err != nil {
		return err
	}
	s.printf("%s", out)
	return nil
}

func (s *Session) cmdDot(path string) error {
	if path == "" {
		return errors.New("usage: dot <filepath>")
	}
	q, err := s.build()
	if err != nil {
		return err
	}
	dot, err := q.Dot()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(dot), 0o600); err != nil {
		return fmt.Errorf("failed to write DOT file: %w", err)
	}
	s.printf("  Wrote DOT to %s\n", path)
	return nil
}

func (s *Session) cmdSave(path string) error {
	if path == "" {
		return errors.New("usage: save <filepath>")
	}
	out, err := s.Document().Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return err
	}
	s.printf("  Saved to %s\n", path)
	return nil
}

func (s *Session) cmdLoad(path string) error {
	if path == "" {
		return errors.New("usage: load <filepath>")
	}
	d, err := querydoc.ReadFile(path)
	if err != nil {
		return err
	}
	s.doc, s.setOps = d, nil
	s.printf("  Loaded %s\n", path)
	return nil
}

func (s *Session) cmdReset() error {
	s.doc, s.setOps = &querydoc.Document{}, nil
	s.printf("  Query cleared\n")
	return nil
}

func (s *Session) cmdExpr(src string) error {
	scope, err := s.scope()
	if err != nil {
		return err
	}
	e, err := scope.Expr(src)
	if err != nil {
		return err
	}
	ser, err := s.serializer()
	if err != nil {
		return err
	}
	st, err := ser.SerializeExpression(e, nil)
	if err != nil {
		return err
	}
	s.printf("  %s\n", st.SQL)
	s.printf("  type: %s\n", e.Type())
	return nil
}

// scope is the tables the current document names.
func (s *Session) scope() (*querydoc.Scope, error) {
	scope, err := querydoc.NewScope()
	if err != nil {
		return nil, err
	}
	for _, ref := range s.tableRefs() {
		e, err := querydoc.ParseEntity(ref)
		if err != nil {
			return nil, err
		}
		if err := scope.Add(e); err != nil {
			return nil, err
		}
	}
	return scope, nil
}

func (s *Session) tableRefs() []string {
	d := s.doc
	var refs []string
	switch {
	case d.Insert != nil:
		refs = append(refs, d.Insert.Into)
	case d.Update != nil:
		refs = append(refs, d.Update.Table)
	case d.Delete != nil:
		refs = append(refs, d.Delete.From)
	default:
		refs = append(refs, d.From...)
		for _, j := range d.Joins {
			refs = append(refs, j.Table)
		}
	}
	return refs
}

// aliases lists the names columns of the document can be qualified with.
func (s *Session) aliases() []string {
	var out []string
	for _, ref := range s.tableRefs() {
		if e, err := querydoc.ParseEntity(ref); err == nil {
			out = append(out, e.Name())
		}
	}
	return out
}

func (s *Session) cmdTables() error {
	if s.conn != nil {
		tables, err := s.conn.Tables(s.ctx)
		if err != nil {
			return err
		}
		for _, t := range tables {
			s.printf("  %s\n", t)
		}
		return nil
	}
	refs := s.tableRefs()
	if len(refs) == 0 {
		s.printf("  No tables in the query\n")
		return nil
	}
	for _, r := range refs {
		s.printf("  %s\n", r)
	}
	return nil
}

// --- Select building ---

func (s *Session) clearDML() {
	s.doc.Insert, s.doc.Update, s.doc.Delete = nil, nil, nil
}

func (s *Session) requireSelect() error {
	if len(s.doc.From) == 0 {
		return errNoQuery
	}
	return nil
}

func (s *Session) cmdFrom(args string) error {
	refs := querydoc.SplitList(args)
	if len(refs) == 0 {
		return errors.New("usage: from <table> [alias][, <table> [alias]...]")
	}
	for _, r := range refs {
		if _, err := querydoc.ParseEntity(r); err != nil {
			return err
		}
	}
	s.clearDML()
	s.doc.From = refs
	s.printf("  FROM %s\n", strings.Join(refs, ", "))
	return nil
}

func (s *Session) cmdSelect(args string) error {
	if err := s.requireSelect(); err != nil {
		return err
	}
	items := querydoc.SplitList(args)
	if len(items) == 0 {
		return errors.New("usage: select <expr>[, <expr>...]")
	}
	s.doc.Select = items
	s.printf("  SELECT %s\n", strings.Join(items, ", "))
	return nil
}

func (s *Session) cmdWhere(args string) error {
	if args == "" {
		return errors.New("usage: where <condition>")
	}
	switch {
	case s.doc.Update != nil:
		s.doc.Update.Where = append(s.doc.Update.Where, args)
	case s.doc.Delete != nil:
		s.doc.Delete.Where = append(s.doc.Delete.Where, args)
	case len(s.doc.From) > 0:
		s.doc.Where = append(s.doc.Where, args)
	default:
		return errNoQuery
	}
	s.printf("  WHERE %s\n", args)
	return nil
}

func (s *Session) appendList(clause string, dst *querydoc.Strings, args string) error {
	if err := s.requireSelect(); err != nil {
		return err
	}
	items := querydoc.SplitList(args)
	if len(items) == 0 {
		return fmt.Errorf("usage: %s <expr>[, <expr>...]", clause)
	}
	*dst = append(*dst, items...)
	s.printf("  %s %s\n", strings.ToUpper(clause), strings.Join(items, ", "))
	return nil
}

func (s *Session) cmdHaving(args string) error {
	if err := s.requireSelect(); err != nil {
		return err
	}
	if args == "" {
		return errors.New("usage: having <condition>")
	}
	s.doc.Having = append(s.doc.Having, args)
	s.printf("  HAVING %s\n", args)
	return nil
}

func (s *Session) cmdLimit(args string, offset bool) error {
	if err := s.requireSelect(); err != nil {
		return err
	}
	n, err := strconv.Atoi(args)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid number: %q", args)
	}
	if offset {
		s.doc.Offset = &n
		s.printf("  OFFSET %d\n", n)
	} else {
		s.doc.Limit = &n
		s.printf("  LIMIT %d\n", n)
	}
	return nil
}

func (s *Session) cmdDistinct() error {
	if err := s.requireSelect(); err != nil {
		return err
	}
	s.doc.Distinct = !s.doc.Distinct
	if s.doc.Distinct {
		s.printf("  DISTINCT on\n")
	} else {
		s.printf("  DISTINCT off\n")
	}
	return nil
}

func (s *Session) cmdLock(lock string) error {
	if err := s.requireSelect(); err != nil {
		return err
	}
	s.doc.Lock = lock
	s.printf("  FOR %s\n", strings.ToUpper(lock))
	return nil
}

func (s *Session) cmdComment(text string) error {
	if err := s.requireSelect(); err != nil {
		return err
	}
	s.doc.Comment = text
	s.printf("  Comment set\n")
	return nil
}

// cmdJoin handles "<table> [alias] on <condition>".
func (s *Session) cmdJoin(args, kind string, lateral bool) error {
	if err := s.requireSelect(); err != nil {
		return err
	}
	j := querydoc.Join{Type: kind, Lateral: lateral}
	if kind == "cross" {
		j.Table = args
	} else {
		idx := strings.Index(strings.ToLower(args), " on ")
		if idx < 0 {
			return errors.New("usage: [left|right|full] join <table> [alias] on <condition>")
		}
		j.Table, j.On = strings.TrimSpace(args[:idx]), strings.TrimSpace(args[idx+4:])
	}
	if _, err := querydoc.ParseEntity(j.Table); err != nil {
		return err
	}
	s.doc.Joins = append(s.doc.Joins, j)
	label := strings.ToUpper(kind) + " JOIN"
	if lateral {
		label += " LATERAL"
	}
	s.printf("  %s %s\n", label, j.Table)
	return nil
}

func (s *Session) cmdSetOp(all bool) error {
	if err := s.requireSelect(); err != nil {
		return err
	}
	s.setOps = append(s.setOps, setOp{all: all, doc: s.doc})
	s.doc = &querydoc.Document{}
	s.printf("  Query pushed; build the next member with 'from'\n")
	return nil
}

// --- Parameters ---

// parseValue reads a YAML scalar: numbers, booleans, null and strings.
// Strings starting with "=" stay strings so documents parse them as
// expressions.
func parseValue(src string) (any, error) {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "=") {
		return src, nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(src), &v); err != nil {
		return nil, fmt.Errorf("bad value %q: %w", src, err)
	}
	switch v.(type) {
	case map[string]any, []any:
		return nil, fmt.Errorf("bad value %q: scalar expected", src)
	}
	return v, nil
}

func (s *Session) cmdParam(args string) error {
	name, raw, ok := strings.Cut(args, " ")
	if !ok || name == "" {
		return errors.New("usage: param <name> <value>")
	}
	name = strings.TrimPrefix(name, ":")
	v, err := parseValue(strings.TrimPrefix(strings.TrimSpace(raw), "= "))
	if err != nil {
		return err
	}
	if s.doc.Params == nil {
		s.doc.Params = make(map[string]any)
	}
	s.doc.Params[name] = v
	s.printf("  :%s = %v\n", name, executor.Cell(v))
	return nil
}

// --- Insert, update, delete ---

func (s *Session) resetDML() {
	s.setOps = nil
	s.doc = &querydoc.Document{Params: s.doc.Params, SoftDelete: s.doc.SoftDelete, Policy: s.doc.Policy}
}

func (s *Session) cmdInsertInto(args string) error {
	table, cols, hasCols := strings.Cut(args, "(")
	table = strings.TrimSpace(table)
	if table == "" {
		return errors.New("usage: insert into <table> [(col, ...)]")
	}
	s.resetDML()
	s.doc.Insert = &querydoc.Insert{Into: table}
	if hasCols {
		s.doc.Insert.Columns = querydoc.SplitList(strings.TrimSuffix(strings.TrimSpace(cols), ")"))
	}
	s.printf("  INSERT INTO %s\n", table)
	return nil
}

func (s *Session) cmdColumns(args string) error {
	if s.doc.Insert == nil {
		return errors.New("no INSERT query (use 'insert into <table>' first)")
	}
	s.doc.Insert.Columns = querydoc.SplitList(args)
	s.printf("  Columns: %s\n", strings.Join(s.doc.Insert.Columns, ", "))
	return nil
}

func (s *Session) cmdValues(args string) error {
	if s.doc.Insert == nil {
		return errors.New("no INSERT query (use 'insert into <table>' first)")
	}
	items := querydoc.SplitList(args)
	if n := len(s.doc.Insert.Columns); n > 0 && len(items) != n {
		return fmt.Errorf("got %d values for %d columns", len(items), n)
	}
	row := make([]any, len(items))
	for i, item := range items {
		v, err := parseValue(item)
		if err != nil {
			return err
		}
		row[i] = v
	}
	s.doc.Insert.Values = append(s.doc.Insert.Values, row)
	s.printf("  Row %d added\n", len(s.doc.Insert.Values))
	return nil
}

func (s *Session) cmdUpdate(table string) error {
	if table == "" {
		return errors.New("usage: update <table>")
	}
	s.resetDML()
	s.doc.Update = &querydoc.Update{Table: table}
	s.printf("  UPDATE %s\n", table)
	return nil
}

func (s *Session) cmdSet(args string) error {
	if s.doc.Update == nil {
		return errors.New("no UPDATE query (use 'update <table>' first)")
	}
	col, raw, ok := strings.Cut(args, "=")
	col = strings.TrimSpace(col)
	if !ok || col == "" {
		return errors.New("usage: set <column> = <value>")
	}
	v, err := parseValue(raw)
	if err != nil {
		return err
	}
	set := s.doc.Update.Set
	if i := slices.IndexFunc(set, func(a querydoc.Assignment) bool { return a.Column == col }); i >= 0 {
		set[i].Value = v
	} else {
		s.doc.Update.Set = append(set, querydoc.Assignment{Column: col, Value: v})
	}
	s.printf("  SET %s\n", col)
	return nil
}

func (s *Session) cmdDeleteFrom(table string) error {
	if table == "" {
		return errors.New("usage: delete from <table>")
	}
	s.resetDML()
	s.doc.Delete = &querydoc.Delete{From: table}
	s.printf("  DELETE FROM %s\n", table)
	return nil
}

// --- Rendering settings ---

func (s *Session) cmdDialect(name string) error {
	if name == "" {
		s.printf("  Dialect: %s\n", s.dialect)
		return nil
	}
	if _, err := s.registry.Dialect(name); err != nil {
		return err
	}
	s.dialect = name
	s.printf("  Dialect: %s\n", name)
	return nil
}

func (s *Session) cmdEngine(name string) error {
	name = strings.ToLower(name)
	if !slices.Contains(config.Engines, name) {
		return fmt.Errorf("unknown engine %q (want one of %s)", name, strings.Join(config.Engines, ", "))
	}
	s.engine = name
	c := s.cfg
	c.Engine, c.Dialect = name, ""
	s.dialect = c.DialectName()
	s.printf("  Engine: %s (dialect %s)\n", name, s.dialect)
	return nil
}

func (s *Session) cmdInline() error {
	s.inline = !s.inline
	if s.inline {
		s.printf("  Constants inlined\n")
	} else {
		s.printf("  Constants bound as parameters\n")
	}
	return nil
}

func (s *Session) cmdPretty() error {
	s.pretty = !s.pretty
	s.printf("  Pretty printing %s\n", map[bool]string{true: "on", false: "off"}[s.pretty])
	return nil
}

// --- Database ---

func (s *Session) cmdConnect(dsn string) error {
	if dsn == "" {
		dsn = s.cfg.DSN
	}
	if dsn == "" {
		return errors.New("usage: connect <dsn>")
	}
	conn, err := database.Open(s.ctx, s.engine, dsn)
	if err != nil {
		return err
	}
	_ = s.Close()
	s.conn = conn
	s.cfg.DSN = dsn
	s.log.Info("connected", "conn", conn)
	s.printf("  Connected to %s (%s)\n", database.SanitizeDSN(dsn), s.engine)
	return nil
}

func (s *Session) cmdDisconnect() error {
	if s.conn == nil {
		return errors.New("not connected")
	}
	if err := s.Close(); err != nil {
		return err
	}
	s.printf("  Disconnected\n")
	return nil
}

func (s *Session) cmdExec(count bool) error {
	if s.conn == nil {
		return errors.New("not connected (use 'connect <dsn>' first)")
	}
	q, err := s.build()
	if err != nil {
		return err
	}
	d, err := s.registry.Dialect(s.dialect)
	if err != nil {
		return err
	}
	ex := executor.New(s.conn, visitors.NewSerializer(d),
		executor.WithLogger(s.log),
		executor.WithMaxRows(s.cfg.MaxRows))
	if err := q.Execute(s.ctx, ex, count, s.out); err != nil {
		return err
	}
	if q.Kind != querydoc.KindSelect {
		s.conn.Forget()
	}
	return nil
}
