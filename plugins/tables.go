package plugins

import "github.com/bawdo/querytree/nodes"

// TableRef holds an entity source and its underlying table name. Entity is
// used to build column paths (preserving the alias), Name for matching.
type TableRef struct {
	Entity *nodes.Path
	Name   string
}

// CollectTables returns the entities referenced as sources of md, the FROM
// list and join targets, in insertion order. Subqueries and other
// non-entity sources are skipped.
func CollectTables(md *nodes.QueryMetadata) []TableRef {
	if md == nil {
		return nil
	}
	var refs []TableRef
	for _, j := range md.Joins() {
		if p, ok := j.Target.(*nodes.Path); ok && p.IsEntity() {
			refs = append(refs, TableRef{Entity: p, Name: p.Table()})
		}
	}
	return refs
}
