package templates

import (
	"sync"

	"github.com/bawdo/querytree/internal/quoting"
	n "github.com/bawdo/querytree/nodes"
)

// Names of the built-in dialects.
const (
	DefaultName  = "default"
	ANSIName     = "sql"
	PostgresName = "postgres"
	MySQLName    = "mysql"
	SQLiteName   = "sqlite"
)

func t(pattern string, precedence int) Template { return MustParse(pattern, precedence) }

const (
	lowest     = PrecedenceLowest
	highest    = PrecedenceHighest
	comparison = PrecedenceComparison
	addition   = PrecedenceAddition
	multiply   = PrecedenceMultiply
)

// defaultEntries render the diagnostic form used by ToString.
var defaultEntries = Entries{
	n.OpAnd: t("{0} && {1}", PrecedenceAnd),
	n.OpOr:  t("{0} || {1}", PrecedenceOr),
	n.OpNot: t("!{0}", PrecedenceNot),

	n.OpEq:           t("{0} = {1}", comparison),
	n.OpNe:           t("{0} != {1}", comparison),
	n.OpGt:           t("{0} > {1}", comparison),
	n.OpGoe:          t("{0} >= {1}", comparison),
	n.OpLt:           t("{0} < {1}", comparison),
	n.OpLoe:          t("{0} <= {1}", comparison),
	n.OpBetween:      t("{0} between {1} and {2}", comparison),
	n.OpIn:           t("{0} in {1}", comparison),
	n.OpNotIn:        t("{0} not in {1}", comparison),
	n.OpIsNull:       t("{0} is null", comparison),
	n.OpIsNotNull:    t("{0} is not null", comparison),
	n.OpLike:         t("{0} like {1}", comparison),
	n.OpNotLike:      t("{0} not like {1}", comparison),
	n.OpStartsWith:   t("startsWith({0},{1})", highest),
	n.OpEndsWith:     t("endsWith({0},{1})", highest),
	n.OpContains:     t("contains({0},{1})", highest),
	n.OpEqIgnoreCase: t("eqIc({0},{1})", highest),
	n.OpExists:       t("exists({0})", highest),

	n.OpConcat: t("concat({0},{1})", highest),
	n.OpLower:  t("lower({0})", highest),
	n.OpUpper:  t("upper({0})", highest),
	n.OpTrim:   t("trim({0})", highest),
	n.OpLength: t("length({0})", highest),

	n.OpAdd:    t("{0} + {1}", addition),
	n.OpSub:    t("{0} - {1}", addition),
	n.OpMult:   t("{0} * {1}", multiply),
	n.OpDiv:    t("{0} / {1}", multiply),
	n.OpMod:    t("{0} % {1}", multiply),
	n.OpNegate: t("-{0}", PrecedenceUnary),
	n.OpAbs:    t("abs({0})", highest),

	n.OpCount:         t("count({0})", highest),
	n.OpCountDistinct: t("count(distinct {0})", highest),
	n.OpCountAll:      t("count(*)", highest),
	n.OpSum:           t("sum({0})", highest),
	n.OpAvg:           t("avg({0})", highest),
	n.OpMin:           t("min({0})", highest),
	n.OpMax:           t("max({0})", highest),

	n.OpAddDays:          t("addDays({0},{1})", highest),
	n.OpYear:             t("year({0})", highest),
	n.OpMonth:            t("month({0})", highest),
	n.OpDayOfMonth:       t("dayofmonth({0})", highest),
	n.OpCurrentDate:      t("current_date()", highest),
	n.OpCurrentTimestamp: t("current_timestamp()", highest),

	n.OpAlias:     t("{0} as {1}", lowest),
	n.OpWithAlias: t("{0} as {1}", lowest),
	n.OpList:      t("{0}, {1}", lowest),
	n.OpCoalesce:  t("coalesce({*})", highest),
	n.OpCast:      t("cast({0},{1s})", highest),
	n.OpArraySize: t("size({0})", highest),
	n.OpColSize:   t("size({0})", highest),
	n.OpColEmpty:  t("empty({0})", highest),

	n.OpCase:       t("case {0} end", highest),
	n.OpCaseSimple: t("case {0} {1} end", highest),
	n.OpCaseWhen:   t("when {0} then {1}", lowest),
	n.OpCaseElse:   t("else {0}", lowest),

	n.OpOver:               t("{0} over ({1})", highest),
	n.OpOverNamed:          t("{0} over {1}", highest),
	n.OpPartitionBy:        t("partition by {*}", highest),
	n.OpWindowOrder:        t("order by {*}", highest),
	n.OpRows:               t("rows {0}", highest),
	n.OpRowsBetween:        t("rows between {0} and {1}", highest),
	n.OpRange:              t("range {0}", highest),
	n.OpRangeBetween:       t("range between {0} and {1}", highest),
	n.OpUnboundedPreceding: t("unbounded preceding", highest),
	n.OpPreceding:          t("{0} preceding", highest),
	n.OpCurrentRow:         t("current row", highest),
	n.OpFollowing:          t("{0} following", highest),
	n.OpUnboundedFollowing: t("unbounded following", highest),

	n.OpRowNumber:   t("row_number()", highest),
	n.OpRank:        t("rank()", highest),
	n.OpDenseRank:   t("dense_rank()", highest),
	n.OpPercentRank: t("percent_rank()", highest),
	n.OpCumeDist:    t("cume_dist()", highest),
	n.OpNtile:       t("ntile({0})", highest),
	n.OpLag:         t("lag({*})", highest),
	n.OpLead:        t("lead({*})", highest),
	n.OpFirstValue:  t("first_value({0})", highest),
	n.OpLastValue:   t("last_value({0})", highest),
	n.OpNthValue:    t("nth_value({0},{1})", highest),

	n.OpRollup:           t("rollup({*})", highest),
	n.OpCube:             t("cube({*})", highest),
	n.OpGroupingSets:     t("grouping sets({*})", highest),
	n.OpGroupingSet:      t("({*})", highest),
	n.OpEmptyGroupingSet: t("()", highest),

	n.OpUnion:     t("{0}\nunion\n{1}", PrecedenceSetOp),
	n.OpUnionAll:  t("{0}\nunion all\n{1}", PrecedenceSetOp),
	n.OpIntersect: t("{0}\nintersect\n{1}", PrecedenceSetOp),
	n.OpExcept:    t("{0}\nexcept\n{1}", PrecedenceSetOp),

	n.OpPathProperty: t("{0}.{1}", highest),
	n.OpPathIndex:    t("{0}.get({1})", highest),
	n.OpPathMapKey:   t("{0}.get({1})", highest),
	n.OpPathAny:      t("any({0})", highest),
	n.OpTableAlias:   t("{0} {1}", highest),
	n.OpAllColumns:   t("{0}.*", highest),
	n.OpAsc:          t("{0} asc", lowest),
	n.OpDesc:         t("{0} desc", lowest),
	n.OpNullsFirst:   t("{0} nulls first", lowest),
	n.OpNullsLast:    t("{0} nulls last", lowest),
	n.OpLimit:        t("limit {0}", lowest),
	n.OpOffset:       t("offset {0}", lowest),
	n.OpLimitOffset:  t("limit {0} offset {1}", lowest),
	n.OpForUpdate:    t("for update", lowest),
	n.OpForShare:     t("for share", lowest),
}

// ansiEntries render standard SQL.
var ansiEntries = Entries{
	n.OpAnd: t("{0} AND {1}", PrecedenceAnd),
	n.OpOr:  t("{0} OR {1}", PrecedenceOr),
	n.OpNot: t("NOT {0}", PrecedenceNot),

	n.OpNe:           t("{0} <> {1}", comparison),
	n.OpBetween:      t("{0} BETWEEN {1} AND {2}", comparison),
	n.OpIn:           t("{0} IN {1}", comparison),
	n.OpNotIn:        t("{0} NOT IN {1}", comparison),
	n.OpIsNull:       t("{0} IS NULL", comparison),
	n.OpIsNotNull:    t("{0} IS NOT NULL", comparison),
	n.OpLike:         t("{0} LIKE {1}", comparison),
	n.OpNotLike:      t("{0} NOT LIKE {1}", comparison),
	n.OpStartsWith:   t("{0} LIKE {1%} ESCAPE '\\'", comparison),
	n.OpEndsWith:     t("{0} LIKE {%1} ESCAPE '\\'", comparison),
	n.OpContains:     t("{0} LIKE {%1%} ESCAPE '\\'", comparison),
	n.OpEqIgnoreCase: t("{0l} = {1l}", comparison),
	n.OpExists:       t("EXISTS {0}", highest),

	n.OpConcat: t("{0} || {1}", addition),
	n.OpLower:  t("LOWER({0})", highest),
	n.OpUpper:  t("UPPER({0})", highest),
	n.OpTrim:   t("TRIM({0})", highest),
	n.OpLength: t("CHAR_LENGTH({0})", highest),

	n.OpMod: t("MOD({0}, {1})", highest),
	n.OpAbs: t("ABS({0})", highest),

	n.OpCount:         t("COUNT({0})", highest),
	n.OpCountDistinct: t("COUNT(DISTINCT {0})", highest),
	n.OpCountAll:      t("COUNT(*)", highest),
	n.OpSum:           t("SUM({0})", highest),
	n.OpAvg:           t("AVG({0})", highest),
	n.OpMin:           t("MIN({0})", highest),
	n.OpMax:           t("MAX({0})", highest),

	n.OpAddDays:          t("{0} + {1} * INTERVAL '1' DAY", addition),
	n.OpYear:             t("EXTRACT(YEAR FROM {0})", highest),
	n.OpMonth:            t("EXTRACT(MONTH FROM {0})", highest),
	n.OpDayOfMonth:       t("EXTRACT(DAY FROM {0})", highest),
	n.OpCurrentDate:      t("CURRENT_DATE", highest),
	n.OpCurrentTimestamp: t("CURRENT_TIMESTAMP", highest),

	n.OpAlias:     t("{0} AS {1}", lowest),
	n.OpWithAlias: t("{0} AS {1}", lowest),
	n.OpCoalesce:  t("COALESCE({*})", highest),
	n.OpCast:      t("CAST({0} AS {1s})", highest),
	n.OpArraySize: t("CARDINALITY({0})", highest),
	n.OpColSize:   t("CARDINALITY({0})", highest),
	n.OpColEmpty:  t("CARDINALITY({0}) = 0", comparison),

	n.OpCase:       t("CASE {0} END", highest),
	n.OpCaseSimple: t("CASE {0} {1} END", highest),
	n.OpCaseWhen:   t("WHEN {0} THEN {1}", lowest),
	n.OpCaseElse:   t("ELSE {0}", lowest),

	n.OpOver:               t("{0} OVER ({1})", highest),
	n.OpOverNamed:          t("{0} OVER {1}", highest),
	n.OpPartitionBy:        t("PARTITION BY {*}", highest),
	n.OpWindowOrder:        t("ORDER BY {*}", highest),
	n.OpRows:               t("ROWS {0}", highest),
	n.OpRowsBetween:        t("ROWS BETWEEN {0} AND {1}", highest),
	n.OpRange:              t("RANGE {0}", highest),
	n.OpRangeBetween:       t("RANGE BETWEEN {0} AND {1}", highest),
	n.OpUnboundedPreceding: t("UNBOUNDED PRECEDING", highest),
	n.OpPreceding:          t("{0} PRECEDING", highest),
	n.OpCurrentRow:         t("CURRENT ROW", highest),
	n.OpFollowing:          t("{0} FOLLOWING", highest),
	n.OpUnboundedFollowing: t("UNBOUNDED FOLLOWING", highest),

	n.OpRowNumber:   t("ROW_NUMBER()", highest),
	n.OpRank:        t("RANK()", highest),
	n.OpDenseRank:   t("DENSE_RANK()", highest),
	n.OpPercentRank: t("PERCENT_RANK()", highest),
	n.OpCumeDist:    t("CUME_DIST()", highest),
	n.OpNtile:       t("NTILE({0})", highest),
	n.OpLag:         t("LAG({*})", highest),
	n.OpLead:        t("LEAD({*})", highest),
	n.OpFirstValue:  t("FIRST_VALUE({0})", highest),
	n.OpLastValue:   t("LAST_VALUE({0})", highest),
	n.OpNthValue:    t("NTH_VALUE({0}, {1})", highest),

	n.OpRollup:       t("ROLLUP({*})", highest),
	n.OpCube:         t("CUBE({*})", highest),
	n.OpGroupingSets: t("GROUPING SETS ({*})", highest),

	n.OpUnion:     t("{0} UNION {1}", PrecedenceSetOp),
	n.OpUnionAll:  t("{0} UNION ALL {1}", PrecedenceSetOp),
	n.OpIntersect: t("{0} INTERSECT {1}", PrecedenceSetOp),
	n.OpExcept:    t("{0} EXCEPT {1}", PrecedenceSetOp),

	n.OpPathIndex:   t("{0}[{1}]", highest),
	n.OpPathAny:     t("ANY({0})", highest),
	n.OpAsc:         t("{0} ASC", lowest),
	n.OpDesc:        t("{0} DESC", lowest),
	n.OpNullsFirst:  t("{0} NULLS FIRST", lowest),
	n.OpNullsLast:   t("{0} NULLS LAST", lowest),
	n.OpLimit:       t("FETCH FIRST {0} ROWS ONLY", lowest),
	n.OpOffset:      t("OFFSET {0} ROWS", lowest),
	n.OpLimitOffset: t("OFFSET {1} ROWS FETCH FIRST {0} ROWS ONLY", lowest),
	n.OpForUpdate:   t("FOR UPDATE", lowest),
	n.OpForShare:    t("FOR SHARE", lowest),
}

var sqlReserved = []string{
	"all", "and", "any", "as", "asc", "between", "by", "case", "check", "column",
	"constraint", "create", "cross", "current_date", "current_timestamp", "default",
	"delete", "desc", "distinct", "drop", "else", "end", "except", "exists", "false",
	"fetch", "for", "foreign", "from", "full", "group", "having", "in", "inner",
	"insert", "intersect", "into", "is", "join", "key", "left", "like", "limit",
	"not", "null", "offset", "on", "or", "order", "outer", "primary", "references",
	"right", "select", "set", "table", "then", "to", "true", "union", "unique",
	"update", "user", "using", "values", "when", "where", "with",
}

var postgresEntries = Entries{
	n.OpAddDays:     t("{0} + {1} * INTERVAL '1 day'", addition),
	n.OpPathMapKey:  t("{0}->>{1}", highest),
	n.OpLimit:       t("LIMIT {0}", lowest),
	n.OpOffset:      t("OFFSET {0}", lowest),
	n.OpLimitOffset: t("LIMIT {0} OFFSET {1}", lowest),
}

var mysqlEntries = Entries{
	n.OpConcat:       t("CONCAT({0}, {1})", highest),
	n.OpStartsWith:   t("{0} LIKE {1%}", comparison),
	n.OpEndsWith:     t("{0} LIKE {%1}", comparison),
	n.OpContains:     t("{0} LIKE {%1%}", comparison),
	n.OpMod:          t("{0} % {1}", multiply),
	n.OpAddDays:      t("DATE_ADD({0}, INTERVAL {1} DAY)", highest),
	n.OpYear:         t("YEAR({0})", highest),
	n.OpMonth:        t("MONTH({0})", highest),
	n.OpDayOfMonth:   t("DAYOFMONTH({0})", highest),
	n.OpArraySize:    t("JSON_LENGTH({0})", highest),
	n.OpColSize:      t("JSON_LENGTH({0})", highest),
	n.OpColEmpty:     t("JSON_LENGTH({0}) = 0", comparison),
	n.OpPathMapKey:   t("{0}->>{1}", highest),
	n.OpNullsFirst:   t("{1} IS NULL DESC, {0}", lowest),
	n.OpNullsLast:    t("{1} IS NULL, {0}", lowest),
	n.OpLimit:        t("LIMIT {0}", lowest),
	n.OpOffset:       t("LIMIT 18446744073709551615 OFFSET {0}", lowest),
	n.OpLimitOffset:  t("LIMIT {0} OFFSET {1}", lowest),
	n.OpCast:         t("CAST({0} AS {1s})", highest),
	n.OpEqIgnoreCase: t("{0l} = {1l}", comparison),
	n.OpRollup:       t("{*} WITH ROLLUP", highest),
}

var sqliteEntries = Entries{
	n.OpLength:      t("LENGTH({0})", highest),
	n.OpMod:         t("{0} % {1}", multiply),
	n.OpAddDays:     t("datetime({0}, '+' || {1} || ' days')", highest),
	n.OpYear:        t("CAST(strftime('%Y', {0}) AS INTEGER)", highest),
	n.OpMonth:       t("CAST(strftime('%m', {0}) AS INTEGER)", highest),
	n.OpDayOfMonth:  t("CAST(strftime('%d', {0}) AS INTEGER)", highest),
	n.OpArraySize:   t("json_array_length({0})", highest),
	n.OpColSize:     t("json_array_length({0})", highest),
	n.OpColEmpty:    t("json_array_length({0}) = 0", comparison),
	n.OpPathMapKey:  t("{0}->>{1}", highest),
	n.OpLimit:       t("LIMIT {0}", lowest),
	n.OpOffset:      t("LIMIT -1 OFFSET {0}", lowest),
	n.OpLimitOffset: t("LIMIT {0} OFFSET {1}", lowest),
}

// Operators a dialect does not support are shadowed with a zero Template,
// which Lookup treats as absent.
var (
	mysqlRemoved  = []n.Operator{n.OpPathIndex, n.OpPathAny, n.OpCube, n.OpGroupingSets}
	sqliteRemoved = []n.Operator{
		n.OpPathIndex, n.OpPathAny, n.OpForUpdate, n.OpForShare,
		n.OpRollup, n.OpCube, n.OpGroupingSets,
	}
)

var (
	defaultDialect = sync.OnceValue(func() *Dialect {
		return NewDialect(DefaultName, defaultEntries,
			WithQuoting(QuoteNever, nil),
			WithKeywords(lowerKeywords()),
			WithBooleanLiterals("true", "false"),
		)
	})
	ansiDialect = sync.OnceValue(func() *Dialect {
		return defaultDialect().Derive(ANSIName, ansiEntries,
			WithQuoting(QuoteWhenNeeded, quoting.DoubleQuote),
			WithReserved(sqlReserved...),
			WithKeywords(upperKeywords),
			WithBooleanLiterals("TRUE", "FALSE"),
			WithDateTimePrefixes("TIMESTAMP ", "DATE "),
		)
	})
	postgresDialect = sync.OnceValue(func() *Dialect {
		return ansiDialect().Derive(PostgresName, postgresEntries,
			WithPlaceholder(PlaceholderDollar),
			WithQuoting(QuoteAlways, quoting.DoubleQuote),
		)
	})
	mysqlDialect = sync.OnceValue(func() *Dialect {
		return ansiDialect().Derive(MySQLName, withRemoved(mysqlEntries, mysqlRemoved),
			WithQuoting(QuoteAlways, quoting.Backtick),
			WithDateTimePrefixes("", ""),
		)
	})
	sqliteDialect = sync.OnceValue(func() *Dialect {
		return ansiDialect().Derive(SQLiteName, withRemoved(sqliteEntries, sqliteRemoved),
			WithQuoting(QuoteAlways, quoting.DoubleQuote),
			WithUnionMembersWrapped(false),
			WithBooleanLiterals("1", "0"),
			WithDateTimePrefixes("", ""),
		)
	})
)

func withRemoved(e Entries, removed []n.Operator) Entries {
	out := make(Entries, len(e)+len(removed))
	for op, tmpl := range e {
		out[op] = tmpl
	}
	for _, op := range removed {
		out[op] = Template{}
	}
	return out
}

// Default returns the diagnostic dialect used for ToString output.
func Default() *Dialect { return defaultDialect() }

// ANSI returns standard SQL.
func ANSI() *Dialect { return ansiDialect() }

// Postgres returns PostgreSQL: $n placeholders, double-quoted identifiers.
func Postgres() *Dialect { return postgresDialect() }

// MySQL returns MySQL: ? placeholders, backtick identifiers, CONCAT().
func MySQL() *Dialect { return mysqlDialect() }

// SQLite returns SQLite: ? placeholders, unparenthesized union members.
func SQLite() *Dialect { return sqliteDialect() }
