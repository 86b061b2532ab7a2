package querydoc

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bawdo/querytree/managers"
	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/plugins"
	"github.com/bawdo/querytree/plugins/policy"
	"github.com/bawdo/querytree/plugins/softdelete"
	"github.com/bawdo/querytree/visitors"
)

// Kind is the statement a document describes.
type Kind uint8

const (
	KindSelect Kind = iota
	KindInsert
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	return [...]string{"select", "insert", "update", "delete"}[k]
}

var (
	// ErrNoStatement is returned for a document with neither from nor a DML
	// section.
	ErrNoStatement = errors.New("querydoc: document needs from, insert, update or delete")
	// ErrNotSelect is returned when a row count is asked of a DML document.
	ErrNotSelect = errors.New("querydoc: only select documents have a row count")
)

// Query is a built document.
type Query struct {
	Kind   Kind
	Select *managers.SelectManager
	Insert *managers.InsertManager
	Update *managers.UpdateManager
	Delete *managers.DeleteManager

	plugins []namedTransformer
}

// namedTransformer is a transformer with the DOT cluster it reports under.
type namedTransformer struct {
	name, color string
	t           plugins.Transformer
}

// ToSQL renders the statement.
func (q *Query) ToSQL(s *visitors.Serializer) (string, []any, error) {
	switch q.Kind {
	case KindInsert:
		return q.Insert.ToSQL(s)
	case KindUpdate:
		return q.Update.ToSQL(s)
	case KindDelete:
		return q.Delete.ToSQL(s)
	}
	return q.Select.ToSQL(s)
}

// ToCountSQL renders the row count form of a select.
func (q *Query) ToCountSQL(s *visitors.Serializer) (string, []any, error) {
	if q.Kind != KindSelect {
		return "", nil, ErrNotSelect
	}
	return q.Select.ToCountSQL(s)
}

// Dot renders the transformed select as a Graphviz digraph. Conditions a
// transformer added are grouped in a cluster named after it.
func (q *Query) Dot() (string, error) {
	if q.Kind != KindSelect {
		return "", ErrNotSelect
	}
	if _, err := q.Select.Transformed(); err != nil {
		return "", err
	}
	md := q.Select.Metadata().Clone()
	seen := make(map[uint64]bool)
	for _, c := range conjuncts(md.Where()) {
		seen[c.Hash()] = true
	}
	prov := visitors.NewPluginProvenance()
	for _, p := range q.plugins {
		var err error
		if md, err = p.t.TransformSelect(md); err != nil {
			return "", err
		}
		for _, c := range conjuncts(md.Where()) {
			if !seen[c.Hash()] {
				seen[c.Hash()] = true
				prov.AddWhere(p.name, p.color, c)
			}
		}
	}
	dv := visitors.NewDotVisitor()
	dv.SetProvenance(prov)
	dv.AddQuery(md)
	return dv.ToDot(), nil
}

func conjuncts(e nodes.Expression) []nodes.Expression {
	if e == nil {
		return nil
	}
	if o, ok := e.(*nodes.Operation); ok && o.Operator() == nodes.OpAnd {
		return append(conjuncts(o.Arg(0)), conjuncts(o.Arg(1))...)
	}
	return []nodes.Expression{e}
}

// Kind reports the statement d describes.
func (d *Document) Kind() (Kind, error) {
	var kinds []Kind
	if len(d.From) > 0 {
		kinds = append(kinds, KindSelect)
	}
	if d.Insert != nil {
		kinds = append(kinds, KindInsert)
	}
	if d.Update != nil {
		kinds = append(kinds, KindUpdate)
	}
	if d.Delete != nil {
		kinds = append(kinds, KindDelete)
	}
	switch len(kinds) {
	case 0:
		return 0, ErrNoStatement
	case 1:
		return kinds[0], nil
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return 0, fmt.Errorf("querydoc: document mixes %s", strings.Join(names, " and "))
}

// Build turns d into a manager ready to render.
func (d *Document) Build() (*Query, error) {
	kind, err := d.Kind()
	if err != nil {
		return nil, err
	}
	q := &Query{Kind: kind}
	if q.plugins, err = d.transformers(); err != nil {
		return nil, err
	}
	switch kind {
	case KindSelect:
		q.Select, err = d.buildSelect()
	case KindInsert:
		q.Insert, err = d.buildInsert()
	case KindUpdate:
		q.Update, err = d.buildUpdate()
	case KindDelete:
		q.Delete, err = d.buildDelete()
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// SoftDeleteTransformer returns the configured transformer, or nil.
func (d *Document) SoftDeleteTransformer() *softdelete.SoftDelete {
	sd := d.SoftDelete
	if sd == nil {
		return nil
	}
	var opts []softdelete.Option
	if sd.Column != "" {
		opts = append(opts, softdelete.WithColumn(sd.Column))
	}
	if len(sd.Tables) > 0 {
		opts = append(opts, softdelete.WithTables(sd.Tables...))
	}
	for _, t := range slices.Sorted(maps.Keys(sd.Columns)) {
		opts = append(opts, softdelete.WithTableColumn(t, sd.Columns[t]))
	}
	return softdelete.New(opts...)
}

// PolicyTransformer returns the configured policy, or nil. Conditions are
// checked against each listed table before the policy is returned.
func (d *Document) PolicyTransformer() (*policy.Policy, error) {
	pol := d.Policy
	if pol == nil {
		return nil, nil
	}
	for _, table := range slices.Sorted(maps.Keys(pol.Where)) {
		if _, err := pol.conditions(nodes.NewEntity(table, "")); err != nil {
			return nil, err
		}
	}
	return policy.New(func(ref plugins.TableRef) ([]nodes.Expression, error) {
		if slices.Contains(pol.Deny, ref.Name) {
			return nil, policy.Deny(ref.Name)
		}
		return pol.conditions(ref.Entity)
	}), nil
}

func (d *Document) transformers() ([]namedTransformer, error) {
	var out []namedTransformer
	if sd := d.SoftDeleteTransformer(); sd != nil {
		out = append(out, namedTransformer{softdelete.Name, softdelete.Color, sd})
	}
	pol, err := d.PolicyTransformer()
	if err != nil {
		return nil, err
	}
	if pol != nil {
		out = append(out, namedTransformer{policy.Name, policy.Color, pol})
	}
	return out, nil
}

func (d *Document) params() []*nodes.Param {
	out := make([]*nodes.Param, 0, len(d.Params))
	for _, name := range slices.Sorted(maps.Keys(d.Params)) {
		out = append(out, nodes.NewParam(name, nodes.TypeAny))
	}
	return out
}

var joinTypes = map[string]nodes.JoinType{
	"":      nodes.InnerJoin,
	"inner": nodes.InnerJoin,
	"join":  nodes.PlainJoin,
	"left":  nodes.LeftJoin,
	"right": nodes.RightJoin,
	"full":  nodes.FullJoin,
	"cross": nodes.CrossJoin,
}

func (d *Document) buildSelect() (*managers.SelectManager, error) {
	if len(d.From) == 0 {
		return nil, errors.New("querydoc: select needs from")
	}
	scope, err := NewScope()
	if err != nil {
		return nil, err
	}
	var m *managers.SelectManager
	for _, ref := range d.From {
		e, err := ParseEntity(ref)
		if err != nil {
			return nil, err
		}
		if err := scope.Add(e); err != nil {
			return nil, err
		}
		if m == nil {
			m = managers.NewSelectManager(e)
		} else {
			m.From(e)
		}
	}

	for i, j := range d.Joins {
		jt, ok := joinTypes[strings.ToLower(j.Type)]
		if !ok {
			return nil, fmt.Errorf("querydoc: joins[%d]: unknown join type %q", i, j.Type)
		}
		e, err := ParseEntity(j.Table)
		if err != nil {
			return nil, fmt.Errorf("querydoc: joins[%d]: %w", i, err)
		}
		if err := scope.Add(e); err != nil {
			return nil, fmt.Errorf("querydoc: joins[%d]: %w", i, err)
		}
		if jt == nodes.CrossJoin {
			if j.On != "" {
				return nil, fmt.Errorf("querydoc: joins[%d]: cross joins take no condition", i)
			}
			m.CrossJoin(e)
			continue
		}
		if j.On == "" {
			return nil, fmt.Errorf("querydoc: joins[%d]: on is required", i)
		}
		on, err := scope.Expr(j.On)
		if err != nil {
			return nil, fmt.Errorf("querydoc: joins[%d]: %w", i, err)
		}
		if j.Lateral {
			m.LateralJoin(e, jt).On(on)
		} else {
			m.Join(e, jt).On(on)
		}
	}

	items, err := d.selectItems(scope)
	if err != nil {
		return nil, err
	}
	m.Select(items...)
	if d.Distinct {
		m.Distinct()
	}

	where, err := exprs(scope, "where", d.Where)
	if err != nil {
		return nil, err
	}
	m.Where(where...)
	group, err := exprs(scope, "group", d.Group)
	if err != nil {
		return nil, err
	}
	m.Group(group...)
	having, err := exprs(scope, "having", d.Having)
	if err != nil {
		return nil, err
	}
	m.Having(having...)

	for i, src := range d.Order {
		spec, err := scope.OrderItem(src)
		if err != nil {
			return nil, fmt.Errorf("querydoc: order[%d]: %w", i, err)
		}
		m.Order(spec)
	}
	if d.Limit != nil {
		m.Limit(*d.Limit)
	}
	if d.Offset != nil {
		m.Offset(*d.Offset)
	}

	switch strings.ToLower(d.Lock) {
	case "":
	case "update":
		m.ForUpdate()
	case "share":
		m.ForShare()
	default:
		return nil, fmt.Errorf("querydoc: unknown lock %q, want update or share", d.Lock)
	}
	if d.Comment != "" {
		m.Comment(d.Comment)
	}

	for _, p := range d.params() {
		m.Set(p, d.Params[p.Name()])
	}
	ts, err := d.transformers()
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		m.Use(t.t)
	}
	if len(d.Union) == 0 && len(d.UnionAll) == 0 {
		return m, nil
	}

	// Members are frozen with their transformers applied, so each one
	// inherits the plugins and params of the document unless it sets its own.
	for _, set := range []struct {
		docs []*Document
		all  bool
	}{{d.Union, false}, {d.UnionAll, true}} {
		for i, member := range set.docs {
			if member == nil {
				continue
			}
			sm, err := d.inherit(member).buildSelect()
			if err != nil {
				return nil, fmt.Errorf("querydoc: union member %d: %w", i, err)
			}
			if set.all {
				m = m.UnionAll(sm)
			} else {
				m = m.Union(sm)
			}
		}
	}
	for _, p := range d.params() {
		m.Set(p, d.Params[p.Name()])
	}
	return m, nil
}

// inherit returns a copy of member carrying the plugin settings and params
// of d that member leaves unset.
func (d *Document) inherit(member *Document) *Document {
	c := *member
	if c.SoftDelete == nil {
		c.SoftDelete = d.SoftDelete
	}
	if c.Policy == nil {
		c.Policy = d.Policy
	}
	if len(d.Params) > 0 {
		c.Params = make(map[string]any, len(d.Params)+len(member.Params))
		maps.Copy(c.Params, d.Params)
		maps.Copy(c.Params, member.Params)
	}
	return &c
}

func (d *Document) selectItems(scope *Scope) ([]nodes.Expression, error) {
	var items []nodes.Expression
	for i, src := range d.Select {
		e, err := scope.SelectItem(src)
		if err != nil {
			return nil, fmt.Errorf("querydoc: select[%d]: %w", i, err)
		}
		if e == nil {
			if len(d.Select) > 1 {
				return nil, fmt.Errorf("querydoc: select[%d]: * cannot be combined with other items", i)
			}
			return nil, nil
		}
		items = append(items, e)
	}
	return items, nil
}

func exprs(scope *Scope, clause string, srcs []string) ([]nodes.Expression, error) {
	out := make([]nodes.Expression, 0, len(srcs))
	for i, src := range srcs {
		e, err := scope.Expr(src)
		if err != nil {
			return nil, fmt.Errorf("querydoc: %s[%d]: %w", clause, i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// value converts a YAML value to an expression. Strings starting with "="
// are parsed; anything else is a literal.
func value(scope *Scope, v any, hint nodes.Type) (nodes.Expression, error) {
	if s, ok := v.(string); ok && strings.HasPrefix(s, "=") {
		return scope.Expr(strings.TrimPrefix(s, "="))
	}
	if _, ok := v.(map[string]any); ok {
		return nil, fmt.Errorf("querydoc: mappings are not values")
	}
	return nodes.ValueOf(v, hint), nil
}

func (d *Document) buildInsert() (*managers.InsertManager, error) {
	in := d.Insert
	into, err := ParseEntity(in.Into)
	if err != nil {
		return nil, err
	}
	scope, err := NewScope(into)
	if err != nil {
		return nil, err
	}
	cols := make([]*nodes.Path, len(in.Columns))
	for i, c := range in.Columns {
		cols[i] = into.Col(c)
	}
	m := managers.NewInsertManager(into).Columns(cols...)

	switch {
	case in.Select != nil && len(in.Values) > 0:
		return nil, errors.New("querydoc: insert takes values or select, not both")
	case in.Select != nil:
		sm, err := in.Select.buildSelect()
		if err != nil {
			return nil, fmt.Errorf("querydoc: insert select: %w", err)
		}
		m.FromSelect(sm)
	case len(in.Values) == 0:
		return nil, errors.New("querydoc: insert needs values or select")
	}
	for r, row := range in.Values {
		vals := make([]any, len(row))
		for i, v := range row {
			e, err := value(scope, v, nodes.TypeAny)
			if err != nil {
				return nil, fmt.Errorf("querydoc: values[%d][%d]: %w", r, i, err)
			}
			vals[i] = e
		}
		m.Values(vals...)
	}
	ts, err := d.transformers()
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		m.Use(t.t)
	}
	return m, nil
}

func (d *Document) buildUpdate() (*managers.UpdateManager, error) {
	up := d.Update
	table, err := ParseEntity(up.Table)
	if err != nil {
		return nil, err
	}
	if len(up.Set) == 0 {
		return nil, errors.New("querydoc: update needs set")
	}
	scope, err := NewScope(table)
	if err != nil {
		return nil, err
	}
	m := managers.NewUpdateManager(table)
	for _, a := range up.Set {
		e, err := value(scope, a.Value, nodes.TypeAny)
		if err != nil {
			return nil, fmt.Errorf("querydoc: set %s: %w", a.Column, err)
		}
		m.Set(table.Col(a.Column), e)
	}
	where, err := exprs(scope, "where", up.Where)
	if err != nil {
		return nil, err
	}
	m.Where(where...)
	for _, p := range d.params() {
		m.Bind(p, d.Params[p.Name()])
	}
	ts, err := d.transformers()
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		m.Use(t.t)
	}
	return m, nil
}

func (d *Document) buildDelete() (*managers.DeleteManager, error) {
	del := d.Delete
	from, err := ParseEntity(del.From)
	if err != nil {
		return nil, err
	}
	scope, err := NewScope(from)
	if err != nil {
		return nil, err
	}
	where, err := exprs(scope, "where", del.Where)
	if err != nil {
		return nil, err
	}
	m := managers.NewDeleteManager(from).Where(where...)
	for _, p := range d.params() {
		m.Bind(p, d.Params[p.Name()])
	}
	ts, err := d.transformers()
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		m.Use(t.t)
	}
	return m, nil
}
