package testutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertSQL fails the test unless err is nil and got renders as want.
func AssertSQL(t *testing.T, got fmt.Stringer, err error, want string) {
	t.Helper()
	require.NoError(t, err)
	assert.Equal(t, want, got.String())
}

// AssertParams compares bind parameters in placeholder order.
func AssertParams(t *testing.T, got []any, want ...any) {
	t.Helper()
	if len(want) == 0 {
		assert.Empty(t, got)
		return
	}
	assert.Equal(t, want, got)
}
