package nodes

// RecursiveFlag marks a PositionWith flag list as WITH RECURSIVE.
var RecursiveFlag = Raw("recursive")

// Assignment sets a column in an UPDATE.
type Assignment struct {
	Column *Path
	Value  Expression
}

// InsertClause is an INSERT statement. Rows and Select are exclusive.
type InsertClause struct {
	Entity  *Path
	Columns []*Path
	Rows    [][]Expression
	Select  *SubQuery
}

// UpdateClause is an UPDATE statement.
type UpdateClause struct {
	Entity *Path
	Set    []Assignment
	Where  Expression
}

// DeleteClause is a DELETE statement.
type DeleteClause struct {
	Entity *Path
	Where  Expression
}
