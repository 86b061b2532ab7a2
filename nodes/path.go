package nodes

import (
	"strconv"
	"strings"
)

// PathKind discriminates how a path is derived from its parent.
type PathKind uint8

const (
	PathVariable PathKind = iota
	PathProperty
	PathArrayIndex
	PathMapKey
	PathCollectionAny
)

// PathMetadata is the structural identity of a path.
type PathMetadata struct {
	Kind   PathKind
	Parent *Path
	// Name is the variable name, property name or map key.
	Name string
	// Index is the array position for PathArrayIndex.
	Index int
}

// Path is a typed reference into a schema: a root variable, a property of a
// parent path, an indexed or keyed element, or any element of a collection.
// Parents are shared back-references.
type Path struct {
	Predications
	meta  PathMetadata
	table string
	typ   Type
	key   string
	hash  uint64
}

func (*Path) expression() {}

// NewPath builds a path from its metadata. A non-variable path requires a
// parent.
func NewPath(meta PathMetadata, t Type) (*Path, error) {
	if meta.Kind != PathVariable && meta.Parent == nil {
		return nil, malformed("", "path %q requires a parent", meta.Name)
	}
	if meta.Kind == PathVariable && meta.Name == "" {
		return nil, malformed("", "variable path requires a name")
	}
	return buildPath(meta, t, ""), nil
}

func buildPath(meta PathMetadata, t Type, table string) *Path {
	p := &Path{meta: meta, typ: t, table: table}
	p.self = p
	p.key = pathKey(meta)
	h := newHasher(tagPath).u64(uint64(meta.Kind))
	if meta.Parent != nil {
		h.expr(meta.Parent)
	}
	p.hash = h.str(meta.Name).u64(uint64(meta.Index)).str(table).sum()
	return p
}

func mustPath(meta PathMetadata, t Type) *Path {
	p, err := NewPath(meta, t)
	if err != nil {
		panic(err)
	}
	return p
}

func pathKey(m PathMetadata) string {
	switch m.Kind {
	case PathProperty:
		return m.Parent.key + "." + m.Name
	case PathArrayIndex:
		return m.Parent.key + "[" + strconv.Itoa(m.Index) + "]"
	case PathMapKey:
		return m.Parent.key + "[" + strconv.Quote(m.Name) + "]"
	case PathCollectionAny:
		return "any(" + m.Parent.key + ")"
	}
	return m.Name
}

// Var returns a root variable path.
func Var(name string, t Type) *Path {
	return mustPath(PathMetadata{Kind: PathVariable, Name: name}, t)
}

// StringVar returns a root string variable.
func StringVar(name string) *Path { return Var(name, TypeString) }

// NumberVar returns a root numeric variable.
func NumberVar(name string) *Path { return Var(name, TypeNumber) }

// BoolVar returns a root boolean variable.
func BoolVar(name string) *Path { return Var(name, TypeBoolean) }

// DateTimeVar returns a root timestamp variable.
func DateTimeVar(name string) *Path { return Var(name, TypeDateTime) }

// NewEntity returns a root path over a table. alias is the variable used to
// qualify its columns; an empty alias reuses the table name.
func NewEntity(table, alias string) *Path {
	if alias == "" {
		alias = table
	}
	if alias == "" {
		panic(malformed("", "entity requires a table name"))
	}
	return buildPath(PathMetadata{Kind: PathVariable, Name: alias}, TypeEntity, table)
}

// Alias returns the same entity under another variable name.
func (p *Path) Alias(alias string) *Path {
	return NewEntity(p.Table(), alias)
}

// Property returns the child path name of p.
func (p *Path) Property(name string, t Type) *Path {
	return mustPath(PathMetadata{Kind: PathProperty, Parent: p, Name: name}, t)
}

// Col returns an untyped property, the usual way to reference a column.
func (p *Path) Col(name string) *Path { return p.Property(name, TypeAny) }

func (p *Path) StringProp(name string) *Path   { return p.Property(name, TypeString) }
func (p *Path) NumberProp(name string) *Path   { return p.Property(name, TypeNumber) }
func (p *Path) BoolProp(name string) *Path     { return p.Property(name, TypeBoolean) }
func (p *Path) DateProp(name string) *Path     { return p.Property(name, TypeDate) }
func (p *Path) DateTimeProp(name string) *Path { return p.Property(name, TypeDateTime) }

// ArrayProp returns an array-typed property with elements of kind elem.
func (p *Path) ArrayProp(name string, elem Kind) *Path { return p.Property(name, ArrayOf(elem)) }

// CollectionProp returns a collection-typed property.
func (p *Path) CollectionProp(name string, elem Kind) *Path {
	return p.Property(name, CollectionOf(elem))
}

// MapProp returns a map-typed property with values of kind elem.
func (p *Path) MapProp(name string, elem Kind) *Path { return p.Property(name, MapOf(elem)) }

// Index returns the element at position i of an array or collection path.
func (p *Path) Index(i int) *Path {
	if !p.typ.IsContainer() && p.typ.Kind != KindAny {
		panic(malformed("", "index access on non-array path %s of type %s", p.key, p.typ))
	}
	if i < 0 {
		panic(malformed("", "negative index %d on %s", i, p.key))
	}
	return mustPath(PathMetadata{Kind: PathArrayIndex, Parent: p, Index: i}, Type{Kind: p.typ.Elem})
}

// Key returns the value stored under k in a map path.
func (p *Path) Key(k string) *Path {
	if p.typ.Kind != KindMap && p.typ.Kind != KindAny {
		panic(malformed("", "key access on non-map path %s", p.key))
	}
	return mustPath(PathMetadata{Kind: PathMapKey, Parent: p, Name: k}, Type{Kind: p.typ.Elem})
}

// Any returns a path standing for any element of a collection path.
func (p *Path) Any() *Path {
	if !p.typ.IsContainer() {
		panic(malformed("", "any() on non-collection path %s", p.key))
	}
	return mustPath(PathMetadata{Kind: PathCollectionAny, Parent: p}, Type{Kind: p.typ.Elem})
}

// Size returns the element count of an array or collection path.
func (p *Path) Size() *Operation {
	if p.typ.Kind == KindArray {
		return MustOperation(OpArraySize, p)
	}
	return MustOperation(OpColSize, p)
}

// IsEmpty tests a collection path for emptiness.
func (p *Path) IsEmpty() *Operation { return MustOperation(OpColEmpty, p) }

// Star selects every column of an entity path.
func (p *Path) Star() *Operation {
	return MustTypedOperation(TypeAny, OpAllColumns, p)
}

func (p *Path) Type() Type             { return p.typ }
func (p *Path) Hash() uint64           { return p.hash }
func (p *Path) Metadata() PathMetadata { return p.meta }
func (p *Path) Kind() PathKind         { return p.meta.Kind }
func (p *Path) Parent() *Path          { return p.meta.Parent }
func (p *Path) Name() string           { return p.meta.Name }

// String returns the canonical text of the path, such as "u.tags[0]".
func (p *Path) String() string { return p.key }

// Table returns the table name of an entity root, or "".
func (p *Path) Table() string { return p.table }

// IsEntity reports whether p is a root over a table.
func (p *Path) IsEntity() bool { return p.table != "" }

// Root follows parent links to the root variable.
func (p *Path) Root() *Path {
	r := p
	for r.meta.Parent != nil {
		r = r.meta.Parent
	}
	return r
}

// Depth returns the number of parent links from p to its root.
func (p *Path) Depth() int {
	n := 0
	for r := p.meta.Parent; r != nil; r = r.meta.Parent {
		n++
	}
	return n
}

// HasPrefix reports whether q appears in the parent chain of p, or is p.
func (p *Path) HasPrefix(q *Path) bool {
	for r := p; r != nil; r = r.meta.Parent {
		if Equal(r, q) {
			return true
		}
	}
	return false
}

// ParsePath parses a dotted reference such as "u.name" into a path of
// untyped columns under a root variable.
func ParsePath(s string) (*Path, error) {
	parts := strings.Split(s, ".")
	for _, part := range parts {
		if part == "" {
			return nil, malformed("", "invalid path %q", s)
		}
	}
	p, err := NewPath(PathMetadata{Kind: PathVariable, Name: parts[0]}, TypeAny)
	if err != nil {
		return nil, err
	}
	for _, part := range parts[1:] {
		if p, err = NewPath(PathMetadata{Kind: PathProperty, Parent: p, Name: part}, TypeAny); err != nil {
			return nil, err
		}
	}
	return p, nil
}
