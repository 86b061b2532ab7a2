package visitors

import (
	"errors"

	"github.com/bawdo/querytree/nodes"
)

var (
	errNoEntity = errors.New("querytree: statement has no target entity")
	errNoRows   = errors.New("querytree: insert has no rows")
)

// SerializeInsert renders an INSERT with either VALUES rows or a SELECT.
func (s *Serializer) SerializeInsert(ins *nodes.InsertClause, md *nodes.QueryMetadata) (*Statement, error) {
	if ins.Entity == nil {
		return nil, errNoEntity
	}
	st := s.newState(md)
	st.clause(st.kw.InsertInto)
	st.write(" ")
	st.ident(ins.Entity.Table())
	if len(ins.Columns) > 0 {
		st.write(" (")
		for i, c := range ins.Columns {
			if i > 0 {
				st.write(", ")
			}
			st.ident(c.Name())
		}
		st.write(")")
	}
	if ins.Select != nil {
		sub := ins.Select.Metadata()
		c := st.child(sub)
		if err := c.query(sub, false); err != nil {
			return nil, err
		}
		st.sep()
		st.splice(c)
		return st.statement(), nil
	}
	if len(ins.Rows) == 0 {
		return nil, errNoRows
	}
	st.clause(st.kw.Values)
	st.write(" ")
	for i, row := range ins.Rows {
		if i > 0 {
			st.write(", ")
		}
		st.write("(")
		if err := st.list(row, ", "); err != nil {
			return nil, err
		}
		st.write(")")
	}
	return st.statement(), nil
}

// SerializeUpdate renders an UPDATE. Assigned columns are unqualified.
func (s *Serializer) SerializeUpdate(upd *nodes.UpdateClause, md *nodes.QueryMetadata) (*Statement, error) {
	if upd.Entity == nil {
		return nil, errNoEntity
	}
	st := s.newState(md)
	st.clause(st.kw.Update)
	st.write(" ")
	if err := st.source(upd.Entity); err != nil {
		return nil, err
	}
	st.clause(st.kw.Set)
	st.write(" ")
	for i, a := range upd.Set {
		if i > 0 {
			st.write(", ")
		}
		st.ident(a.Column.Name())
		st.write(" = ")
		if err := st.expr(a.Value); err != nil {
			return nil, err
		}
	}
	if err := st.predicate(st.kw.Where, upd.Where); err != nil {
		return nil, err
	}
	return st.statement(), nil
}

// SerializeDelete renders a DELETE.
func (s *Serializer) SerializeDelete(del *nodes.DeleteClause, md *nodes.QueryMetadata) (*Statement, error) {
	if del.Entity == nil {
		return nil, errNoEntity
	}
	st := s.newState(md)
	st.clause(st.kw.DeleteFrom)
	st.write(" ")
	if err := st.source(del.Entity); err != nil {
		return nil, err
	}
	if err := st.predicate(st.kw.Where, del.Where); err != nil {
		return nil, err
	}
	return st.statement(), nil
}
