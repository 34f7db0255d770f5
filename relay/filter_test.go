package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGlobFilterEmptyPatterns(t *testing.T) {
	filter, err := NewGlobFilter(nil, nil)
	require.NoError(t, err)

	assert.True(t, filter.Match("orders", "o-1"))
	assert.True(t, filter.Match("", ""))
}

func TestGlobFilterWildcard(t *testing.T) {
	filter, err := NewGlobFilter([]string{"user:*"}, []string{"prod-*"})
	require.NoError(t, err)

	assert.True(t, filter.Match("prod-accounts", "user:42"))
	assert.False(t, filter.Match("staging-accounts", "user:42"))
	assert.False(t, filter.Match("prod-accounts", "order:42"))
}

func TestGlobFilterMultiplePatterns(t *testing.T) {
	filter, err := NewGlobFilter([]string{"a*", "b?"}, nil)
	require.NoError(t, err)

	assert.True(t, filter.Match("any", "apple"))
	assert.True(t, filter.Match("any", "bx"))
	assert.False(t, filter.Match("any", "bxx"))
}

func TestGlobFilterInvalidPattern(t *testing.T) {
	_, err := NewGlobFilter([]string{"[unclosed"}, nil)
	assert.ErrorContains(t, err, "invalid key pattern")

	_, err = NewGlobFilter(nil, []string{"[unclosed"})
	assert.ErrorContains(t, err, "invalid cache pattern")
}
