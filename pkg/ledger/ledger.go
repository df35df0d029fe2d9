package ledger

import (
	"sync"

	"github.com/cartage/bomtrack/pkg/types"
)

// DefaultCapacity is the ledger size used when none is configured
const DefaultCapacity = 50

// Ledger is a fixed-capacity store of the most recent update per component,
// keyed by component id. Writes merge last-writer-wins by the
// server-assigned UpdatedAt; on overflow the least recently written entry
// is evicted, never the entry being written.
type Ledger struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]*types.ComponentUpdate
	order    []string // component ids, least recently written first
}

// New creates a ledger with the given capacity
func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		capacity: capacity,
		entries:  make(map[string]*types.ComponentUpdate, capacity),
	}
}

// Upsert merges an update into the ledger and reports whether it was
// applied. Updates are rejected when they are older than the stored entry,
// or when they would regress a terminal status without being strictly
// newer. Replaying the stored entry verbatim is a no-op.
func (l *Ledger) Upsert(update *types.ComponentUpdate) bool {
	if update == nil || update.ComponentID == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.entries[update.ComponentID]
	if ok {
		if update.UpdatedAt.Before(existing.UpdatedAt) {
			return false
		}
		if update.UpdatedAt.Equal(existing.UpdatedAt) {
			if update.Status == existing.Status {
				return false
			}
			if existing.Status.IsTerminal() && !update.Status.IsTerminal() {
				return false
			}
		}
		l.entries[update.ComponentID] = update.Clone()
		l.touch(update.ComponentID)
		return true
	}

	if len(l.entries) >= l.capacity {
		l.evictOldest()
	}
	l.entries[update.ComponentID] = update.Clone()
	l.order = append(l.order, update.ComponentID)
	return true
}

// touch moves a component id to the most-recent end of the order
func (l *Ledger) touch(id string) {
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	l.order = append(l.order, id)
}

func (l *Ledger) evictOldest() {
	if len(l.order) == 0 {
		return
	}
	oldest := l.order[0]
	l.order = l.order[1:]
	delete(l.entries, oldest)
}

// Get returns the stored update for a component id
func (l *Ledger) Get(id string) (*types.ComponentUpdate, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	u, ok := l.entries[id]
	if !ok {
		return nil, false
	}
	return u.Clone(), true
}

// Snapshot returns all stored updates, least recently written first
func (l *Ledger) Snapshot() []*types.ComponentUpdate {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*types.ComponentUpdate, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.entries[id].Clone())
	}
	return out
}

// Len returns the number of stored entries
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Capacity returns the configured capacity
func (l *Ledger) Capacity() int {
	return l.capacity
}
