package nodes

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind classifies the static type of an expression.
type Kind uint8

const (
	KindAny Kind = iota
	KindString
	KindNumber
	KindBoolean
	KindDate
	KindDateTime
	KindTime
	KindComparable
	KindEntity
	KindCollection
	KindArray
	KindMap
	KindTuple
)

var kindNames = [...]string{
	KindAny:        "any",
	KindString:     "string",
	KindNumber:     "number",
	KindBoolean:    "boolean",
	KindDate:       "date",
	KindDateTime:   "datetime",
	KindTime:       "time",
	KindComparable: "comparable",
	KindEntity:     "entity",
	KindCollection: "collection",
	KindArray:      "array",
	KindMap:        "map",
	KindTuple:      "tuple",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Type is the static type of an expression. Elem is the element kind of
// collections and arrays and the value kind of maps.
type Type struct {
	Kind Kind
	Elem Kind
}

// Common types.
var (
	TypeAny      = Type{Kind: KindAny}
	TypeString   = Type{Kind: KindString}
	TypeNumber   = Type{Kind: KindNumber}
	TypeBoolean  = Type{Kind: KindBoolean}
	TypeDate     = Type{Kind: KindDate}
	TypeDateTime = Type{Kind: KindDateTime}
	TypeTime     = Type{Kind: KindTime}
	TypeEntity   = Type{Kind: KindEntity}
	TypeTuple    = Type{Kind: KindTuple}
)

// CollectionOf returns the collection type with the given element kind.
func CollectionOf(elem Kind) Type { return Type{Kind: KindCollection, Elem: elem} }

// ArrayOf returns the array type with the given element kind.
func ArrayOf(elem Kind) Type { return Type{Kind: KindArray, Elem: elem} }

// MapOf returns the map type with the given value kind.
func MapOf(elem Kind) Type { return Type{Kind: KindMap, Elem: elem} }

func (t Type) String() string {
	switch t.Kind {
	case KindCollection, KindArray, KindMap:
		return t.Kind.String() + "<" + t.Elem.String() + ">"
	}
	return t.Kind.String()
}

// IsContainer reports whether t holds elements.
func (t Type) IsContainer() bool {
	return t.Kind == KindCollection || t.Kind == KindArray || t.Kind == KindMap
}

// AssignableTo reports whether a value of type t may be passed where an
// argument of kind want is declared.
func (t Type) AssignableTo(want Kind) bool {
	if want == KindAny || t.Kind == KindAny || t.Kind == want {
		return true
	}
	switch want {
	case KindComparable:
		switch t.Kind {
		case KindString, KindNumber, KindDate, KindDateTime, KindTime, KindBoolean:
			return true
		}
	case KindCollection:
		return t.Kind == KindArray
	case KindDateTime:
		return t.Kind == KindDate
	}
	return false
}

// TypeOfValue infers the static type of a Go value.
func TypeOfValue(v any) Type {
	switch x := v.(type) {
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, decimal.Decimal:
		return TypeNumber
	case time.Time:
		return TypeDateTime
	case time.Duration:
		return TypeNumber
	case uuid.UUID:
		return TypeString
	case []string:
		return CollectionOf(KindString)
	case []int, []int64, []int32, []float64, []decimal.Decimal:
		return CollectionOf(KindNumber)
	case []any:
		if len(x) > 0 {
			return CollectionOf(TypeOfValue(x[0]).Kind)
		}
		return CollectionOf(KindAny)
	case []byte:
		return TypeAny
	}
	return TypeAny
}
