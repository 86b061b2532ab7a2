// Package managers provides fluent builders over query metadata and DML
// clauses. Builders apply transformer plugins to a clone before
// serialization, so the builder itself is never rewritten.
package managers

import (
	"github.com/bawdo/querytree/plugins"
	"github.com/bawdo/querytree/visitors"
)

// treeManager is the shared base for all manager types. It holds the
// transformer pipeline and the first construction error, which is
// reported by ToSQL.
type treeManager struct {
	transformers []plugins.Transformer
	err          error
}

// addTransformer appends a transformer plugin to the pipeline.
func (tm *treeManager) addTransformer(t plugins.Transformer) {
	tm.transformers = append(tm.transformers, t)
}

// Transformers returns the registered transformer pipeline.
func (tm *treeManager) Transformers() []plugins.Transformer {
	return tm.transformers
}

// Err returns the first error recorded while building, if any.
func (tm *treeManager) Err() error { return tm.err }

func (tm *treeManager) fail(err error) {
	if tm.err == nil && err != nil {
		tm.err = err
	}
}

// unpack splits a rendered statement into SQL and params.
func unpack(st *visitors.Statement, err error) (string, []any, error) {
	if err != nil {
		return "", nil, err
	}
	return st.SQL, st.Params, nil
}
