package state_test

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbarrios/gastosync/internal/events"
	"github.com/mbarrios/gastosync/internal/state"
)

func newTestStore(t *testing.T) *state.SQLiteStore {
	t.Helper()

	logger := events.NewTestLogger(events.ErrorLevel, "text", io.Discard)
	s, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "checkpoints.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCheckpointDefaultsToZero(t *testing.T) {
	s := newTestStore(t)

	millis, err := s.Checkpoint("uid-1", "categories")
	require.NoError(t, err)
	assert.Equal(t, int64(0), millis)
}

func TestAdvanceIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	owner := "uid-1"

	require.NoError(t, s.Advance(owner, "categories", 1000))

	millis, err := s.Checkpoint(owner, "categories")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), millis)

	// A lower value never moves the cursor backwards.
	require.NoError(t, s.Advance(owner, "categories", 500))
	millis, err = s.Checkpoint(owner, "categories")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), millis)

	require.NoError(t, s.Advance(owner, "categories", 2000))
	millis, err = s.Checkpoint(owner, "categories")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), millis)
}

func TestCheckpointsScopedByOwnerAndKind(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Advance("uid-1", "categories", 1000))
	require.NoError(t, s.Advance("uid-1", "expenses", 2000))
	require.NoError(t, s.Advance("uid-2", "categories", 3000))

	cases := []struct {
		owner, kind string
		want        int64
	}{
		{"uid-1", "categories", 1000},
		{"uid-1", "expenses", 2000},
		{"uid-2", "categories", 3000},
		{"uid-2", "expenses", 0},
	}
	for _, tc := range cases {
		got, err := s.Checkpoint(tc.owner, tc.kind)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s/%s", tc.owner, tc.kind)
	}
}

func TestResetDropsOnlyOneOwner(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Advance("uid-1", "categories", 1000))
	require.NoError(t, s.Advance("uid-2", "categories", 2000))

	require.NoError(t, s.Reset("uid-1"))

	got, err := s.Checkpoint("uid-1", "categories")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	got, err = s.Checkpoint("uid-2", "categories")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got)
}

func TestLastSyncMillis(t *testing.T) {
	s := newTestStore(t)
	owner := "uid-1"

	millis, err := s.LastSyncMillis(owner)
	require.NoError(t, err)
	assert.Equal(t, int64(0), millis)

	require.NoError(t, s.SetLastSyncMillis(owner, 1234))
	require.NoError(t, s.SetLastSyncMillis(owner, 999)) // not monotonic, pure wall clock

	millis, err = s.LastSyncMillis(owner)
	require.NoError(t, err)
	assert.Equal(t, int64(999), millis)
}
