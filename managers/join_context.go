package managers

import "github.com/bawdo/querytree/nodes"

// JoinContext is returned by the SelectManager join methods and expects
// the join condition via On before building continues.
type JoinContext struct {
	manager *SelectManager
}

// On conjoins the join conditions and returns the SelectManager for
// continued method chaining.
func (jc *JoinContext) On(conditions ...nodes.Expression) *SelectManager {
	for _, c := range conditions {
		jc.manager.fail(jc.manager.md.AddJoinCondition(c))
	}
	return jc.manager
}

// Flag attaches a flag to the join at pos.
func (jc *JoinContext) Flag(flag nodes.Expression, pos nodes.JoinFlagPosition) *JoinContext {
	jc.manager.fail(jc.manager.md.AddJoinFlag(flag, pos))
	return jc
}
