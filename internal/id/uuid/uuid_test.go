package uuid

import (
	"sort"
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsVersion7(t *testing.T) {
	t.Parallel()

	id, err := New().NewID()
	require.NoError(t, err)
	parsed, err := goUUID.Parse(id)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed.Version())
}

// Task ids double as a creation-order tiebreak in listings.
func TestNewIDSortsByCreation(t *testing.T) {
	t.Parallel()

	gen := New()
	ids := make([]string, 0, 50)
	seen := make(map[string]struct{}, 50)
	for range 50 {
		id, err := gen.NewID()
		require.NoError(t, err)
		require.NotContains(t, seen, id)
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	require.True(t, sort.StringsAreSorted(ids))
}
