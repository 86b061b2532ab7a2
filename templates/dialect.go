package templates

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bawdo/querytree/internal/quoting"
	"github.com/bawdo/querytree/nodes"
)

// Entries is one layer of operator templates.
type Entries map[nodes.Operator]Template

// Table is an immutable stack of template layers. Lookup consults the most
// specific layer first.
type Table struct {
	parent  *Table
	entries Entries
}

// NewTable returns a single-layer table.
func NewTable(entries Entries) *Table {
	return &Table{entries: maps.Clone(entries)}
}

// Extend returns a table layering entries over t. t is unchanged.
func (t *Table) Extend(entries Entries) *Table {
	return &Table{parent: t, entries: maps.Clone(entries)}
}

// Lookup returns the most specific template for op.
func (t *Table) Lookup(op nodes.Operator) (Template, bool) {
	for l := t; l != nil; l = l.parent {
		if tmpl, ok := l.entries[op]; ok {
			return tmpl, !tmpl.IsZero()
		}
	}
	return Template{}, false
}

// Operators lists every operator with a template, sorted.
func (t *Table) Operators() []nodes.Operator {
	seen := make(map[nodes.Operator]struct{})
	for l := t; l != nil; l = l.parent {
		for op := range l.entries {
			seen[op] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// PlaceholderStyle selects bind placeholder syntax.
type PlaceholderStyle uint8

const (
	// PlaceholderQuestion renders ?.
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar renders $1, $2, ...
	PlaceholderDollar
)

// QuoteMode selects when identifiers are quoted.
type QuoteMode uint8

const (
	QuoteNever QuoteMode = iota
	QuoteAlways
	// QuoteWhenNeeded quotes reserved words and identifiers that are not
	// plain lower-case names.
	QuoteWhenNeeded
)

// Keywords are the clause words a dialect emits.
type Keywords struct {
	With, WithRecursive             string
	Select, Distinct, From, Where   string
	GroupBy, Having, OrderBy, On    string
	InsertInto, Values, Update, Set string
	DeleteFrom, Null                string
	Joins                           [7]string
}

var upperKeywords = Keywords{
	With: "WITH", WithRecursive: "WITH RECURSIVE",
	Select: "SELECT", Distinct: "DISTINCT", From: "FROM", Where: "WHERE",
	GroupBy: "GROUP BY", Having: "HAVING", OrderBy: "ORDER BY", On: "ON",
	InsertInto: "INSERT INTO", Values: "VALUES", Update: "UPDATE", Set: "SET",
	DeleteFrom: "DELETE FROM", Null: "NULL",
	Joins: [7]string{
		nodes.DefaultJoin: ",",
		nodes.InnerJoin:   "INNER JOIN",
		nodes.PlainJoin:   "JOIN",
		nodes.LeftJoin:    "LEFT JOIN",
		nodes.RightJoin:   "RIGHT JOIN",
		nodes.FullJoin:    "FULL JOIN",
		nodes.CrossJoin:   "CROSS JOIN",
	},
}

func lowerKeywords() Keywords {
	k := upperKeywords
	for _, s := range []*string{&k.With, &k.WithRecursive, &k.Select, &k.Distinct, &k.From,
		&k.Where, &k.GroupBy, &k.Having, &k.OrderBy, &k.On, &k.InsertInto, &k.Values,
		&k.Update, &k.Set, &k.DeleteFrom, &k.Null} {
		*s = strings.ToLower(*s)
	}
	for i := range k.Joins {
		k.Joins[i] = strings.ToLower(k.Joins[i])
	}
	return k
}

// Dialect is a named, immutable template table plus the rendering rules of
// one SQL flavor.
type Dialect struct {
	name           string
	parent         string
	table          *Table
	placeholder    PlaceholderStyle
	quoteMode      QuoteMode
	quote          func(string) string
	reserved       map[string]struct{}
	keywords       Keywords
	wrapUnions     bool
	trueLit        string
	falseLit       string
	dateTimePrefix string
	datePrefix     string
	likeEscape     byte
}

// Option configures a dialect under construction.
type Option func(*Dialect)

// WithPlaceholder sets the bind placeholder style.
func WithPlaceholder(s PlaceholderStyle) Option {
	return func(d *Dialect) { d.placeholder = s }
}

// WithQuoting sets the identifier quoting mode and quote function.
func WithQuoting(mode QuoteMode, quote func(string) string) Option {
	return func(d *Dialect) {
		d.quoteMode = mode
		if quote != nil {
			d.quote = quote
		}
	}
}

// WithReserved adds reserved words quoted under QuoteWhenNeeded.
func WithReserved(words ...string) Option {
	return func(d *Dialect) {
		d.reserved = maps.Clone(d.reserved)
		if d.reserved == nil {
			d.reserved = make(map[string]struct{}, len(words))
		}
		for _, w := range words {
			d.reserved[strings.ToLower(w)] = struct{}{}
		}
	}
}

// WithKeywords replaces the clause keywords.
func WithKeywords(k Keywords) Option {
	return func(d *Dialect) { d.keywords = k }
}

// WithUnionMembersWrapped controls whether set-operation members are
// parenthesized.
func WithUnionMembersWrapped(wrap bool) Option {
	return func(d *Dialect) { d.wrapUnions = wrap }
}

// WithBooleanLiterals sets the inline forms of true and false.
func WithBooleanLiterals(t, f string) Option {
	return func(d *Dialect) { d.trueLit, d.falseLit = t, f }
}

// WithDateTimePrefixes sets the keywords written before inline timestamp
// and date literals, such as "TIMESTAMP ".
func WithDateTimePrefixes(dateTime, date string) Option {
	return func(d *Dialect) { d.dateTimePrefix, d.datePrefix = dateTime, date }
}

// NewDialect builds a root dialect over entries.
func NewDialect(name string, entries Entries, opts ...Option) *Dialect {
	d := &Dialect{
		name:       name,
		table:      NewTable(entries),
		quote:      quoting.DoubleQuote,
		keywords:   upperKeywords,
		wrapUnions: true,
		trueLit:    "TRUE",
		falseLit:   "FALSE",
		likeEscape: '\\',
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Derive returns a dialect that inherits every template and rule of d and
// layers entries and opts on top. d is unchanged.
func (d *Dialect) Derive(name string, entries Entries, opts ...Option) *Dialect {
	c := *d
	c.name = name
	c.parent = d.name
	if len(entries) > 0 {
		c.table = d.table.Extend(entries)
	}
	for _, o := range opts {
		o(&c)
	}
	return &c
}

// WithTemplate returns a copy of d, under the same name, with one added or
// replaced template.
func (d *Dialect) WithTemplate(op nodes.Operator, t Template) *Dialect {
	c := *d
	c.table = d.table.Extend(Entries{op: t})
	return &c
}

func (d *Dialect) Name() string       { return d.name }
func (d *Dialect) Parent() string     { return d.parent }
func (d *Dialect) Keywords() Keywords { return d.keywords }
func (d *Dialect) Table() *Table      { return d.table }

// WrapUnionMembers reports whether set-operation members are parenthesized.
func (d *Dialect) WrapUnionMembers() bool { return d.wrapUnions }

// LikeEscape is the escape character used by LIKE slot transforms.
func (d *Dialect) LikeEscape() byte { return d.likeEscape }

// Lookup returns the template for op or an *UnsupportedOperationError.
func (d *Dialect) Lookup(op nodes.Operator) (Template, error) {
	if t, ok := d.table.Lookup(op); ok {
		return t, nil
	}
	return Template{}, &UnsupportedOperationError{Operator: op, Dialect: d.name}
}

// Supports reports whether op has a template.
func (d *Dialect) Supports(op nodes.Operator) bool {
	_, ok := d.table.Lookup(op)
	return ok
}

// Placeholder returns the bind placeholder for the 1-based parameter i.
func (d *Dialect) Placeholder(i int) string {
	if d.placeholder == PlaceholderDollar {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

// QuoteIdentifier renders a table, alias or column name.
func (d *Dialect) QuoteIdentifier(s string) string {
	switch d.quoteMode {
	case QuoteAlways:
		return d.quote(s)
	case QuoteWhenNeeded:
		if _, ok := d.reserved[strings.ToLower(s)]; ok || !quoting.IsPlainIdentifier(s) {
			return d.quote(s)
		}
	}
	return s
}

// BoolLiteral renders an inline boolean.
func (d *Dialect) BoolLiteral(b bool) string {
	if b {
		return d.trueLit
	}
	return d.falseLit
}

// DateTimeLiteral renders an inline timestamp.
func (d *Dialect) DateTimeLiteral(t time.Time) string {
	return d.dateTimePrefix + "'" + t.Format("2006-01-02 15:04:05") + "'"
}

// DateLiteral renders an inline date.
func (d *Dialect) DateLiteral(t time.Time) string {
	return d.datePrefix + "'" + t.Format("2006-01-02") + "'"
}

func (d *Dialect) String() string { return fmt.Sprintf("Dialect(%s)", d.name) }
