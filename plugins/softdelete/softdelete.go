// Package softdelete provides a Transformer that injects "column IS NULL"
// conditions into SELECT queries, filtering out soft-deleted rows.
//
// By default it conjoins "deleted_at" IS NULL for every entity referenced
// in the FROM list and joins. Both the column name and the set of tables
// can be customised via options.
//
// # Basic usage
//
//	sd := softdelete.New()
//	query := managers.NewSelectManager(users).Use(sd)
//	// SELECT * FROM "users" WHERE "users"."deleted_at" IS NULL
//
// # Restrict to specific tables
//
//	sd := softdelete.New(softdelete.WithTables("users"))
//
// # Per-table columns
//
//	sd := softdelete.New(
//	    softdelete.WithTableColumn("users", "deleted_at"),
//	    softdelete.WithTableColumn("posts", "removed_at"),
//	)
//
// # REPL usage
//
//	querytree> plugin softdelete
//	querytree> plugin softdelete removed_at
//	querytree> plugin softdelete removed_at on users posts
//	querytree> plugin softdelete users.deleted_at, posts.removed_at
//	querytree> plugin off softdelete
package softdelete

import (
	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/plugins"
)

// Name identifies the plugin in registries and DOT clusters.
const Name = "softdelete"

// Color is the DOT cluster color for conditions added by the plugin.
const Color = "#FF6961"

// SoftDelete is a Transformer that conjoins IS NULL conditions for a
// soft-delete column on every referenced entity (or a configured subset).
type SoftDelete struct {
	plugins.BaseTransformer
	Column  string
	Columns map[string]string // per-table column overrides (table name → column name)
	tables  map[string]bool   // nil means apply to all tables
}

// Option configures a SoftDelete transformer.
type Option func(*SoftDelete)

// WithColumn sets the soft-delete column name. Default is "deleted_at".
func WithColumn(name string) Option {
	return func(sd *SoftDelete) { sd.Column = name }
}

// WithTables restricts the plugin to the named tables.
func WithTables(names ...string) Option {
	return func(sd *SoftDelete) {
		sd.tables = make(map[string]bool, len(names))
		for _, n := range names {
			sd.tables[n] = true
		}
	}
}

// WithTableColumn sets a per-table column override. The table is added to
// the whitelist, restricting the plugin's scope.
func WithTableColumn(table, column string) Option {
	return func(sd *SoftDelete) {
		if sd.Columns == nil {
			sd.Columns = make(map[string]string)
		}
		sd.Columns[table] = column
		if sd.tables == nil {
			sd.tables = make(map[string]bool)
		}
		sd.tables[table] = true
	}
}

// New creates a SoftDelete transformer with the given options.
func New(opts ...Option) *SoftDelete {
	sd := &SoftDelete{Column: "deleted_at"}
	for _, o := range opts {
		o(sd)
	}
	return sd
}

// Conditions returns the predicates the plugin adds to md, one per
// matching entity, in source order.
func (sd *SoftDelete) Conditions(md *nodes.QueryMetadata) []nodes.Expression {
	var preds []nodes.Expression
	for _, ref := range plugins.CollectTables(md) {
		if sd.appliesTo(ref.Name) {
			preds = append(preds, ref.Entity.Col(sd.columnFor(ref.Name)).IsNull())
		}
	}
	return preds
}

// TransformSelect conjoins the soft-delete conditions onto WHERE.
func (sd *SoftDelete) TransformSelect(md *nodes.QueryMetadata) (*nodes.QueryMetadata, error) {
	if preds := sd.Conditions(md); len(preds) > 0 {
		md.AddWhere(preds...)
	}
	return md, nil
}

// TransformUpdate restricts an UPDATE to rows that are not soft-deleted.
func (sd *SoftDelete) TransformUpdate(stmt *nodes.UpdateClause) (*nodes.UpdateClause, error) {
	if stmt != nil && stmt.Entity != nil && sd.appliesTo(stmt.Entity.Table()) {
		stmt.Where = nodes.AllOf(stmt.Where, stmt.Entity.Col(sd.columnFor(stmt.Entity.Table())).IsNull())
	}
	return stmt, nil
}

func (sd *SoftDelete) appliesTo(tableName string) bool {
	if sd.tables == nil {
		return true
	}
	return sd.tables[tableName]
}

// columnFor returns the column name to use for the given table.
func (sd *SoftDelete) columnFor(tableName string) string {
	if col, ok := sd.Columns[tableName]; ok {
		return col
	}
	return sd.Column
}
