package nodes

// Operator names an operation. The built-in operators below carry a
// Signature; any other name is a custom operator whose rendering is supplied
// by a registered template.
type Operator string

// Logical operators.
const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
	OpNot Operator = "NOT"
)

// Comparison operators.
const (
	OpEq           Operator = "EQ"
	OpNe           Operator = "NE"
	OpGt           Operator = "GT"
	OpGoe          Operator = "GOE"
	OpLt           Operator = "LT"
	OpLoe          Operator = "LOE"
	OpBetween      Operator = "BETWEEN"
	OpIn           Operator = "IN"
	OpNotIn        Operator = "NOT_IN"
	OpIsNull       Operator = "IS_NULL"
	OpIsNotNull    Operator = "IS_NOT_NULL"
	OpLike         Operator = "LIKE"
	OpNotLike      Operator = "NOT_LIKE"
	OpStartsWith   Operator = "STARTS_WITH"
	OpEndsWith     Operator = "ENDS_WITH"
	OpContains     Operator = "STRING_CONTAINS"
	OpEqIgnoreCase Operator = "EQ_IGNORE_CASE"
	OpExists       Operator = "EXISTS"
)

// String operators.
const (
	OpConcat Operator = "CONCAT"
	OpLower  Operator = "LOWER"
	OpUpper  Operator = "UPPER"
	OpTrim   Operator = "TRIM"
	OpLength Operator = "STRING_LENGTH"
)

// Arithmetic operators.
const (
	OpAdd    Operator = "ADD"
	OpSub    Operator = "SUB"
	OpMult   Operator = "MULT"
	OpDiv    Operator = "DIV"
	OpMod    Operator = "MOD"
	OpNegate Operator = "NEGATE"
	OpAbs    Operator = "ABS"
)

// Aggregates.
const (
	OpCount         Operator = "COUNT_AGG"
	OpCountDistinct Operator = "COUNT_DISTINCT_AGG"
	OpCountAll      Operator = "COUNT_ALL_AGG"
	OpSum           Operator = "SUM_AGG"
	OpAvg           Operator = "AVG_AGG"
	OpMin           Operator = "MIN_AGG"
	OpMax           Operator = "MAX_AGG"
)

// Date and time operators.
const (
	OpAddDays          Operator = "ADD_DAYS"
	OpYear             Operator = "YEAR"
	OpMonth            Operator = "MONTH"
	OpDayOfMonth       Operator = "DAY_OF_MONTH"
	OpCurrentDate      Operator = "CURRENT_DATE"
	OpCurrentTimestamp Operator = "CURRENT_TIMESTAMP"
)

// Structural operators.
const (
	OpAlias     Operator = "ALIAS"
	OpWithAlias Operator = "WITH_ALIAS"
	OpList      Operator = "LIST"
	OpCoalesce  Operator = "COALESCE"
	OpCast      Operator = "CAST"
	OpArraySize Operator = "ARRAY_SIZE"
	OpColSize   Operator = "COL_SIZE"
	OpColEmpty  Operator = "COL_IS_EMPTY"
)

// Set operators.
const (
	OpUnion     Operator = "UNION"
	OpUnionAll  Operator = "UNION_ALL"
	OpIntersect Operator = "INTERSECT"
	OpExcept    Operator = "EXCEPT"
)

// Conditional operators. A CASE holds its WHEN branches followed by an
// optional ELSE; the simple form starts with the compared operand.
const (
	OpCase       Operator = "CASE"
	OpCaseSimple Operator = "CASE_SIMPLE"
	OpCaseWhen   Operator = "CASE_WHEN"
	OpCaseElse   Operator = "CASE_ELSE"
)

// Window operators. OVER holds the function followed by its window clauses.
const (
	OpOver               Operator = "OVER"
	OpOverNamed          Operator = "OVER_NAMED"
	OpPartitionBy        Operator = "PARTITION_BY"
	OpWindowOrder        Operator = "WINDOW_ORDER"
	OpRows               Operator = "FRAME_ROWS"
	OpRowsBetween        Operator = "FRAME_ROWS_BETWEEN"
	OpRange              Operator = "FRAME_RANGE"
	OpRangeBetween       Operator = "FRAME_RANGE_BETWEEN"
	OpUnboundedPreceding Operator = "UNBOUNDED_PRECEDING"
	OpPreceding          Operator = "PRECEDING"
	OpCurrentRow         Operator = "CURRENT_ROW"
	OpFollowing          Operator = "FOLLOWING"
	OpUnboundedFollowing Operator = "UNBOUNDED_FOLLOWING"

	OpRowNumber   Operator = "ROW_NUMBER"
	OpRank        Operator = "RANK"
	OpDenseRank   Operator = "DENSE_RANK"
	OpPercentRank Operator = "PERCENT_RANK"
	OpCumeDist    Operator = "CUME_DIST"
	OpNtile       Operator = "NTILE"
	OpLag         Operator = "LAG"
	OpLead        Operator = "LEAD"
	OpFirstValue  Operator = "FIRST_VALUE"
	OpLastValue   Operator = "LAST_VALUE"
	OpNthValue    Operator = "NTH_VALUE"
)

// Grouping operators for GROUP BY.
const (
	OpRollup           Operator = "ROLLUP"
	OpCube             Operator = "CUBE"
	OpGroupingSets     Operator = "GROUPING_SETS"
	OpGroupingSet      Operator = "GROUPING_SET"
	OpEmptyGroupingSet Operator = "EMPTY_GROUPING_SET"
)

// Path rendering and clause operators. The serializer looks them up to
// render paths, ordering, limits and locking. They carry no signature.
const (
	OpPathProperty Operator = "PATH_PROPERTY"
	OpPathIndex    Operator = "PATH_INDEX"
	OpPathMapKey   Operator = "PATH_MAP_KEY"
	OpPathAny      Operator = "PATH_ANY"
	OpTableAlias   Operator = "TABLE_ALIAS"
	OpAllColumns   Operator = "ALL_COLUMNS"
	OpAsc          Operator = "ORDER_ASC"
	OpDesc         Operator = "ORDER_DESC"
	OpNullsFirst   Operator = "NULLS_FIRST"
	OpNullsLast    Operator = "NULLS_LAST"
	OpLimit        Operator = "LIMIT"
	OpOffset       Operator = "OFFSET"
	OpLimitOffset  Operator = "LIMIT_OFFSET"
	OpForUpdate    Operator = "FOR_UPDATE"
	OpForShare     Operator = "FOR_SHARE"
)

// Associativity governs parenthesization of equal-precedence children.
type Associativity uint8

const (
	LeftAssoc Associativity = iota
	RightAssoc
)

// Variadic marks a Signature accepting any number of arguments.
const Variadic = -1

// Signature is the operator registry entry for a built-in operator.
type Signature struct {
	// Arity is the exact argument count, or Variadic.
	Arity int
	// Params lists the accepted kind per position. A variadic signature
	// declares a single kind applied to every argument.
	Params []Kind
	// Returns is the static return type unless DeriveReturn is set, in which
	// case the type of the first argument is returned.
	Returns      Type
	DeriveReturn bool
	Assoc        Associativity
}

func sig(arity int, ret Type, params ...Kind) Signature {
	return Signature{Arity: arity, Params: params, Returns: ret}
}

func variadic(ret Type) Signature {
	return Signature{Arity: Variadic, Params: []Kind{KindAny}, Returns: ret}
}

func derived(arity int, params ...Kind) Signature {
	return Signature{Arity: arity, Params: params, DeriveReturn: true}
}

var signatures = map[Operator]Signature{
	OpAnd: sig(2, TypeBoolean, KindBoolean, KindBoolean),
	OpOr:  sig(2, TypeBoolean, KindBoolean, KindBoolean),
	OpNot: {Arity: 1, Params: []Kind{KindBoolean}, Returns: TypeBoolean, Assoc: RightAssoc},

	OpEq:           sig(2, TypeBoolean, KindAny, KindAny),
	OpNe:           sig(2, TypeBoolean, KindAny, KindAny),
	OpGt:           sig(2, TypeBoolean, KindComparable, KindComparable),
	OpGoe:          sig(2, TypeBoolean, KindComparable, KindComparable),
	OpLt:           sig(2, TypeBoolean, KindComparable, KindComparable),
	OpLoe:          sig(2, TypeBoolean, KindComparable, KindComparable),
	OpBetween:      sig(3, TypeBoolean, KindComparable, KindComparable, KindComparable),
	OpIn:           sig(2, TypeBoolean, KindAny, KindCollection),
	OpNotIn:        sig(2, TypeBoolean, KindAny, KindCollection),
	OpIsNull:       sig(1, TypeBoolean, KindAny),
	OpIsNotNull:    sig(1, TypeBoolean, KindAny),
	OpLike:         sig(2, TypeBoolean, KindString, KindString),
	OpNotLike:      sig(2, TypeBoolean, KindString, KindString),
	OpStartsWith:   sig(2, TypeBoolean, KindString, KindString),
	OpEndsWith:     sig(2, TypeBoolean, KindString, KindString),
	OpContains:     sig(2, TypeBoolean, KindString, KindString),
	OpEqIgnoreCase: sig(2, TypeBoolean, KindString, KindString),
	OpExists:       sig(1, TypeBoolean, KindAny),

	OpConcat: sig(2, TypeString, KindString, KindString),
	OpLower:  sig(1, TypeString, KindString),
	OpUpper:  sig(1, TypeString, KindString),
	OpTrim:   sig(1, TypeString, KindString),
	OpLength: sig(1, TypeNumber, KindString),

	OpAdd:    sig(2, TypeNumber, KindNumber, KindNumber),
	OpSub:    sig(2, TypeNumber, KindNumber, KindNumber),
	OpMult:   sig(2, TypeNumber, KindNumber, KindNumber),
	OpDiv:    sig(2, TypeNumber, KindNumber, KindNumber),
	OpMod:    sig(2, TypeNumber, KindNumber, KindNumber),
	OpNegate: {Arity: 1, Params: []Kind{KindNumber}, Returns: TypeNumber, Assoc: RightAssoc},
	OpAbs:    sig(1, TypeNumber, KindNumber),

	OpCount:         sig(1, TypeNumber, KindAny),
	OpCountDistinct: sig(1, TypeNumber, KindAny),
	OpCountAll:      sig(0, TypeNumber),
	OpSum:           derived(1, KindNumber),
	OpAvg:           sig(1, TypeNumber, KindNumber),
	OpMin:           derived(1, KindComparable),
	OpMax:           derived(1, KindComparable),

	OpAddDays:          derived(2, KindDateTime, KindNumber),
	OpYear:             sig(1, TypeNumber, KindDateTime),
	OpMonth:            sig(1, TypeNumber, KindDateTime),
	OpDayOfMonth:       sig(1, TypeNumber, KindDateTime),
	OpCurrentDate:      sig(0, TypeDate),
	OpCurrentTimestamp: sig(0, TypeDateTime),

	OpAlias:     derived(2, KindAny, KindAny),
	OpWithAlias: derived(2, KindAny, KindAny),
	OpList:      sig(2, TypeAny, KindAny, KindAny),
	OpCoalesce:  {Arity: Variadic, Params: []Kind{KindAny}, DeriveReturn: true},
	OpCast:      sig(2, TypeAny, KindAny, KindString),
	OpArraySize: sig(1, TypeNumber, KindArray),
	OpColSize:   sig(1, TypeNumber, KindCollection),
	OpColEmpty:  sig(1, TypeBoolean, KindCollection),

	OpCase:       variadic(TypeAny),
	OpCaseSimple: variadic(TypeAny),
	OpCaseWhen:   sig(2, TypeAny, KindAny, KindAny),
	OpCaseElse:   derived(1, KindAny),

	OpOver:               {Arity: Variadic, Params: []Kind{KindAny}, DeriveReturn: true},
	OpOverNamed:          derived(2, KindAny, KindAny),
	OpPartitionBy:        variadic(TypeAny),
	OpWindowOrder:        variadic(TypeAny),
	OpRows:               sig(1, TypeAny, KindAny),
	OpRowsBetween:        sig(2, TypeAny, KindAny, KindAny),
	OpRange:              sig(1, TypeAny, KindAny),
	OpRangeBetween:       sig(2, TypeAny, KindAny, KindAny),
	OpUnboundedPreceding: sig(0, TypeAny),
	OpPreceding:          sig(1, TypeAny, KindNumber),
	OpCurrentRow:         sig(0, TypeAny),
	OpFollowing:          sig(1, TypeAny, KindNumber),
	OpUnboundedFollowing: sig(0, TypeAny),

	OpRowNumber:   sig(0, TypeNumber),
	OpRank:        sig(0, TypeNumber),
	OpDenseRank:   sig(0, TypeNumber),
	OpPercentRank: sig(0, TypeNumber),
	OpCumeDist:    sig(0, TypeNumber),
	OpNtile:       sig(1, TypeNumber, KindNumber),
	OpLag:         {Arity: Variadic, Params: []Kind{KindAny}, DeriveReturn: true},
	OpLead:        {Arity: Variadic, Params: []Kind{KindAny}, DeriveReturn: true},
	OpFirstValue:  derived(1, KindAny),
	OpLastValue:   derived(1, KindAny),
	OpNthValue:    derived(2, KindAny, KindNumber),

	OpRollup:           variadic(TypeAny),
	OpCube:             variadic(TypeAny),
	OpGroupingSets:     variadic(TypeAny),
	OpGroupingSet:      variadic(TypeAny),
	OpEmptyGroupingSet: sig(0, TypeAny),

	OpUnion:     derived(2, KindCollection, KindCollection),
	OpUnionAll:  derived(2, KindCollection, KindCollection),
	OpIntersect: derived(2, KindCollection, KindCollection),
	OpExcept:    derived(2, KindCollection, KindCollection),
}

// SignatureOf returns the registry entry for op. Custom operators have none.
func SignatureOf(op Operator) (Signature, bool) {
	s, ok := signatures[op]
	return s, ok
}

// Builtin reports whether op is a built-in operator.
func Builtin(op Operator) bool {
	_, ok := signatures[op]
	return ok
}

// IsSetOperator reports whether op combines subqueries.
func IsSetOperator(op Operator) bool {
	switch op {
	case OpUnion, OpUnionAll, OpIntersect, OpExcept:
		return true
	}
	return false
}

func (s Signature) check(op Operator, args []Expression) *MalformedExpressionError {
	if s.Arity != Variadic && len(args) != s.Arity {
		return malformed(op, "expected %d arguments, got %d", s.Arity, len(args))
	}
	if s.Arity == Variadic && len(args) == 0 {
		return malformed(op, "expected at least one argument")
	}
	for i, a := range args {
		if a == nil {
			return malformed(op, "argument %d is nil", i)
		}
		want := KindAny
		switch {
		case s.Arity == Variadic && len(s.Params) > 0:
			want = s.Params[0]
		case i < len(s.Params):
			want = s.Params[i]
		}
		if !a.Type().AssignableTo(want) {
			return malformed(op, "argument %d has type %s, want %s", i, a.Type(), want)
		}
	}
	return nil
}

func (s Signature) returnType(args []Expression) Type {
	if s.DeriveReturn && len(args) > 0 {
		return args[0].Type()
	}
	return s.Returns
}
