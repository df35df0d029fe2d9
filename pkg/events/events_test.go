package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartage/bomtrack/pkg/types"
)

// collector records notifications for assertions
type collector struct {
	mu       sync.Mutex
	started  []*types.ProgressState
	progress []*types.ProgressState
	complete []*types.ProgressState
	errs     []error
}

func (c *collector) handler() Handler {
	return Handler{
		OnStarted: func(s *types.ProgressState) {
			c.mu.Lock()
			c.started = append(c.started, s)
			c.mu.Unlock()
		},
		OnProgress: func(s *types.ProgressState) {
			c.mu.Lock()
			c.progress = append(c.progress, s)
			c.mu.Unlock()
		},
		OnComplete: func(s *types.ProgressState) {
			c.mu.Lock()
			c.complete = append(c.complete, s)
			c.mu.Unlock()
		},
		OnError: func(err error) {
			c.mu.Lock()
			c.errs = append(c.errs, err)
			c.mu.Unlock()
		},
	}
}

func (c *collector) progressCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.progress)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNotifierDispatch(t *testing.T) {
	n := NewNotifier()
	n.Start()
	defer n.Stop()

	c := &collector{}
	sub := n.Subscribe(c.handler())
	defer n.Unsubscribe(sub)

	state := &types.ProgressState{JobID: "job-1", Status: types.JobStatusEnriching, EnrichedItems: 5}
	n.EmitProgress(state)

	waitFor(t, func() bool { return c.progressCount() == 1 })
	assert.Equal(t, 5, c.progress[0].EnrichedItems)

	// Emitted state is a clone; mutating the source must not leak through
	state.EnrichedItems = 99
	assert.Equal(t, 5, c.progress[0].EnrichedItems)
}

func TestNotifierMultipleSubscribers(t *testing.T) {
	n := NewNotifier()
	n.Start()
	defer n.Stop()

	a, b := &collector{}, &collector{}
	subA := n.Subscribe(a.handler())
	subB := n.Subscribe(b.handler())
	defer n.Unsubscribe(subA)
	defer n.Unsubscribe(subB)

	assert.Equal(t, 2, n.SubscriberCount())

	n.EmitProgress(&types.ProgressState{EnrichedItems: 1})
	waitFor(t, func() bool { return a.progressCount() == 1 && b.progressCount() == 1 })
}

func TestNotifierNilCallbacksSkipped(t *testing.T) {
	n := NewNotifier()
	n.Start()
	defer n.Stop()

	sub := n.Subscribe(Handler{}) // no callbacks at all
	defer n.Unsubscribe(sub)

	// Must not panic
	n.EmitStarted(&types.ProgressState{})
	n.EmitError(errors.New("boom"))
	n.EmitComponentCompleted(&types.ComponentUpdate{ComponentID: "C-1"})

	time.Sleep(20 * time.Millisecond)
}

func TestSubscriptionUpdateKeepsIdentity(t *testing.T) {
	n := NewNotifier()
	n.Start()
	defer n.Stop()

	first := &collector{}
	sub := n.Subscribe(first.handler())
	id := sub.ID()

	second := &collector{}
	sub.Update(second.handler())

	assert.Equal(t, id, sub.ID())
	assert.Equal(t, 1, n.SubscriberCount())

	n.EmitProgress(&types.ProgressState{EnrichedItems: 7})
	waitFor(t, func() bool { return second.progressCount() == 1 })
	assert.Zero(t, first.progressCount())
}

func TestNotifierStopDrainsQueued(t *testing.T) {
	n := NewNotifier()

	c := &collector{}
	n.Subscribe(c.handler())

	// Queue before the loop starts, then start and stop immediately
	n.EmitProgress(&types.ProgressState{EnrichedItems: 1})
	n.EmitProgress(&types.ProgressState{EnrichedItems: 2})
	n.Start()
	n.Stop()

	require.Equal(t, 2, c.progressCount())
	assert.Equal(t, 2, c.progress[1].EnrichedItems)
}

func TestUnsubscribeIdempotent(t *testing.T) {
	n := NewNotifier()
	n.Start()
	defer n.Stop()

	sub := n.Subscribe(Handler{})
	n.Unsubscribe(sub)
	n.Unsubscribe(sub)
	n.Unsubscribe(nil)

	assert.Zero(t, n.SubscriberCount())
}
