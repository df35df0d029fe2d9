package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartage/bomtrack/pkg/types"
)

func update(id string, status types.ComponentStatus, at time.Time) *types.ComponentUpdate {
	return &types.ComponentUpdate{
		ComponentID: id,
		Status:      status,
		UpdatedAt:   at,
	}
}

func TestUpsertInsertAndGet(t *testing.T) {
	l := New(10)
	now := time.Now()

	assert.True(t, l.Upsert(update("C-1", types.ComponentStatusEnriching, now)))
	assert.Equal(t, 1, l.Len())

	got, ok := l.Get("C-1")
	require.True(t, ok)
	assert.Equal(t, types.ComponentStatusEnriching, got.Status)

	_, ok = l.Get("C-2")
	assert.False(t, ok)
}

func TestUpsertLastWriterWins(t *testing.T) {
	l := New(10)
	now := time.Now()

	require.True(t, l.Upsert(update("C-1", types.ComponentStatusEnriched, now)))

	// Older write is rejected
	assert.False(t, l.Upsert(update("C-1", types.ComponentStatusFailed, now.Add(-time.Second))))
	got, _ := l.Get("C-1")
	assert.Equal(t, types.ComponentStatusEnriched, got.Status)

	// Strictly newer write wins, even a regression to non-terminal
	assert.True(t, l.Upsert(update("C-1", types.ComponentStatusEnriching, now.Add(time.Second))))
	got, _ = l.Get("C-1")
	assert.Equal(t, types.ComponentStatusEnriching, got.Status)
}

func TestUpsertEqualTimestamp(t *testing.T) {
	l := New(10)
	now := time.Now()

	require.True(t, l.Upsert(update("C-1", types.ComponentStatusEnriched, now)))

	// Identical replay is a no-op
	assert.False(t, l.Upsert(update("C-1", types.ComponentStatusEnriched, now)))
	assert.Equal(t, 1, l.Len())

	// Same timestamp cannot regress a terminal status
	assert.False(t, l.Upsert(update("C-1", types.ComponentStatusPending, now)))

	// Same timestamp may move forward between terminal statuses
	assert.True(t, l.Upsert(update("C-1", types.ComponentStatusFailed, now)))
}

func TestEvictionDropsLeastRecentlyWritten(t *testing.T) {
	l := New(3)
	now := time.Now()

	for i := 1; i <= 3; i++ {
		require.True(t, l.Upsert(update(fmt.Sprintf("C-%d", i), types.ComponentStatusEnriched, now.Add(time.Duration(i)*time.Millisecond))))
	}

	// Refresh C-1 so C-2 becomes the oldest
	require.True(t, l.Upsert(update("C-1", types.ComponentStatusEnriched, now.Add(10*time.Millisecond))))

	// Overflow: C-2 must go, the entry just written must stay
	require.True(t, l.Upsert(update("C-4", types.ComponentStatusEnriched, now.Add(11*time.Millisecond))))
	assert.Equal(t, 3, l.Len())

	_, ok := l.Get("C-2")
	assert.False(t, ok)
	for _, id := range []string{"C-1", "C-3", "C-4"} {
		_, ok := l.Get(id)
		assert.True(t, ok, "expected %s to survive eviction", id)
	}
}

func TestSnapshotOrder(t *testing.T) {
	l := New(5)
	now := time.Now()

	l.Upsert(update("C-1", types.ComponentStatusEnriched, now))
	l.Upsert(update("C-2", types.ComponentStatusEnriched, now.Add(time.Millisecond)))
	l.Upsert(update("C-1", types.ComponentStatusFailed, now.Add(2*time.Millisecond)))

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "C-2", snap[0].ComponentID)
	assert.Equal(t, "C-1", snap[1].ComponentID)
}

func TestSnapshotReturnsCopies(t *testing.T) {
	l := New(5)
	l.Upsert(&types.ComponentUpdate{
		ComponentID: "C-1",
		Status:      types.ComponentStatusEnriched,
		Result:      &types.ComponentResult{Supplier: "digikey"},
		UpdatedAt:   time.Now(),
	})

	snap := l.Snapshot()
	snap[0].Result.Supplier = "mutated"

	got, _ := l.Get("C-1")
	assert.Equal(t, "digikey", got.Result.Supplier)
}

func TestUpsertRejectsInvalid(t *testing.T) {
	l := New(5)
	assert.False(t, l.Upsert(nil))
	assert.False(t, l.Upsert(&types.ComponentUpdate{Status: types.ComponentStatusEnriched}))
	assert.Zero(t, l.Len())
}

func TestDefaultCapacity(t *testing.T) {
	l := New(0)
	assert.Equal(t, DefaultCapacity, l.Capacity())
}
