// Package plugins defines the Transformer interface for query middleware.
package plugins

import "github.com/bawdo/querytree/nodes"

// Transformer rewrites statements before they are serialized. Managers
// hand each transformer a clone, so a transformer may mutate its input.
// Plugins embed BaseTransformer and override only the methods they need.
type Transformer interface {
	TransformSelect(md *nodes.QueryMetadata) (*nodes.QueryMetadata, error)
	TransformInsert(stmt *nodes.InsertClause) (*nodes.InsertClause, error)
	TransformUpdate(stmt *nodes.UpdateClause) (*nodes.UpdateClause, error)
	TransformDelete(stmt *nodes.DeleteClause) (*nodes.DeleteClause, error)
}

// BaseTransformer provides no-op defaults for all Transformer methods.
type BaseTransformer struct{}

func (BaseTransformer) TransformSelect(md *nodes.QueryMetadata) (*nodes.QueryMetadata, error) {
	return md, nil
}
func (BaseTransformer) TransformInsert(s *nodes.InsertClause) (*nodes.InsertClause, error) {
	return s, nil
}
func (BaseTransformer) TransformUpdate(s *nodes.UpdateClause) (*nodes.UpdateClause, error) {
	return s, nil
}
func (BaseTransformer) TransformDelete(s *nodes.DeleteClause) (*nodes.DeleteClause, error) {
	return s, nil
}
