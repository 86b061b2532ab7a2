package templates

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/bawdo/querytree/nodes"
)

type definition struct {
	parent    string
	entries   Entries
	opts      []Option
	overrides Entries
	root      *Dialect
}

// Registry holds named dialect definitions and runtime template overrides.
// Dialects it returns are immutable snapshots; RegisterTemplate affects the
// named dialect and every dialect derived from it in later snapshots.
// A Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]*definition
	cache map[string]*Dialect
}

// NewRegistry returns a registry holding the built-in dialects.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]*definition), cache: make(map[string]*Dialect)}
	r.defs[DefaultName] = &definition{root: Default()}
	r.defs[ANSIName] = &definition{parent: DefaultName, root: ANSI()}
	r.defs[PostgresName] = &definition{parent: ANSIName, root: Postgres()}
	r.defs[MySQLName] = &definition{parent: ANSIName, root: MySQL()}
	r.defs[SQLiteName] = &definition{parent: ANSIName, root: SQLite()}
	return r
}

// Define adds a dialect deriving from parent with the given entries and
// options.
func (r *Registry) Define(name, parent string, entries Entries, opts ...Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[name]; ok {
		return fmt.Errorf("querytree: dialect %q already defined", name)
	}
	if _, ok := r.defs[parent]; !ok {
		return fmt.Errorf("%w: parent %q", ErrUnknownDialect, parent)
	}
	r.defs[name] = &definition{parent: parent, entries: maps.Clone(entries), opts: opts}
	clear(r.cache)
	return nil
}

// RegisterTemplate adds or replaces the template of op in the named dialect.
// The operator need not be built in.
func (r *Registry) RegisterTemplate(dialect string, op nodes.Operator, pattern string, precedence int) error {
	tmpl, err := Parse(pattern, precedence)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.defs[dialect]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}
	if def.overrides == nil {
		def.overrides = make(Entries)
	}
	def.overrides[op] = tmpl
	clear(r.cache)
	return nil
}

// Dialect returns the current snapshot of the named dialect.
func (r *Registry) Dialect(name string) (*Dialect, error) {
	r.mu.RLock()
	d, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolve(name, nil)
}

func (r *Registry) resolve(name string, seen []string) (*Dialect, error) {
	if d, ok := r.cache[name]; ok {
		return d, nil
	}
	if slices.Contains(seen, name) {
		return nil, fmt.Errorf("querytree: dialect inheritance cycle through %q", name)
	}
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
	var d *Dialect
	switch {
	case def.root != nil && def.parent == "":
		d = def.root
	case def.root != nil:
		// A built-in child: re-layer its own entries on the parent snapshot
		// so parent overrides show through.
		parent, err := r.resolve(def.parent, append(seen, name))
		if err != nil {
			return nil, err
		}
		d = rebase(def.root, parent)
	default:
		parent, err := r.resolve(def.parent, append(seen, name))
		if err != nil {
			return nil, err
		}
		d = parent.Derive(name, def.entries, def.opts...)
	}
	if len(def.overrides) > 0 {
		c := *d
		c.table = d.table.Extend(def.overrides)
		d = &c
	}
	r.cache[name] = d
	return d, nil
}

// rebase returns child with its own template layer moved on top of parent.
// Rendering options of child are kept.
func rebase(child, parent *Dialect) *Dialect {
	c := *child
	c.table = parent.table.Extend(child.table.entries)
	return &c
}

// Names lists the defined dialects, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.defs))
}
