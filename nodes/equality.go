package nodes

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// hasher accumulates a canonical encoding of a node. Each node writes a tag
// byte followed by its discriminators and the hashes of its children, so the
// result never depends on allocation order.
type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newHasher(tag byte) *hasher {
	h := &hasher{d: xxhash.New()}
	_, _ = h.d.Write([]byte{tag})
	return h
}

func (h *hasher) str(s string) *hasher {
	h.u64(uint64(len(s)))
	_, _ = h.d.WriteString(s)
	return h
}

func (h *hasher) u64(v uint64) *hasher {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
	return h
}

func (h *hasher) typ(t Type) *hasher {
	return h.u64(uint64(t.Kind)<<8 | uint64(t.Elem))
}

func (h *hasher) expr(e Expression) *hasher {
	if e == nil {
		return h.u64(0)
	}
	return h.u64(e.Hash())
}

func (h *hasher) sum() uint64 { return h.d.Sum64() }

const (
	tagPath byte = iota + 1
	tagConstant
	tagNull
	tagParam
	tagOperation
	tagTemplate
	tagSubQuery
	tagFactory
	tagMetadata
)

// Hash returns the structural hash of e, or 0 for nil.
func Hash(e Expression) uint64 {
	if e == nil {
		return 0
	}
	return e.Hash()
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b Expression) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Hash() != b.Hash() {
		return false
	}
	// Paths compare by kind, parent and discriminator only.
	if x, ok := a.(*Path); ok {
		y, ok := b.(*Path)
		return ok && x.key == y.key && x.Root().table == y.Root().table
	}
	if a.Type() != b.Type() {
		return false
	}
	switch x := a.(type) {
	case *Constant:
		y, ok := b.(*Constant)
		return ok && x.canon == y.canon
	case *Null:
		_, ok := b.(*Null)
		return ok
	case *Param:
		y, ok := b.(*Param)
		return ok && x.name == y.name
	case *Operation:
		y, ok := b.(*Operation)
		return ok && x.op == y.op && equalAll(x.args, y.args)
	case *TemplateExpr:
		y, ok := b.(*TemplateExpr)
		return ok && x.pattern == y.pattern && equalAll(x.args, y.args)
	case *SubQuery:
		y, ok := b.(*SubQuery)
		return ok && (x.md == y.md || x.md.equal(y.md))
	case *Factory:
		y, ok := b.(*Factory)
		return ok && x.name == y.name && x.skipNulls == y.skipNulls && equalAll(x.args, y.args)
	}
	return false
}

func equalAll(a, b []Expression) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// CanonicalValue renders a constant value into the stable text used for
// constant equality and hashing.
func CanonicalValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return "s:" + x
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	case decimal.Decimal:
		return "d:" + x.String()
	case uuid.UUID:
		return "u:" + x.String()
	case []byte:
		return fmt.Sprintf("b:%x", x)
	case []any:
		s := "l:"
		for i, e := range x {
			if i > 0 {
				s += ","
			}
			s += CanonicalValue(e)
		}
		return s
	}
	return fmt.Sprintf("%T:%v", v, v)
}
