package tracker

import (
	"errors"
	"sync"

	"github.com/cartage/bomtrack/pkg/config"
	"github.com/cartage/bomtrack/pkg/events"
	"github.com/cartage/bomtrack/pkg/storage"
	"github.com/cartage/bomtrack/pkg/transport"
)

// ErrRegistryClosed is returned by Attach after Close
var ErrRegistryClosed = errors.New("tracker registry is closed")

// Registry shares trackers between callers interested in the same job.
// Attach returns the existing session when one is already running, so two
// views of one job ride a single pair of transports. Sessions are
// refcounted; the last detach disposes the tracker.
type Registry struct {
	store storage.Store
	creds transport.CredentialProvider

	mu      sync.Mutex
	entries map[string]*registryEntry
	closed  bool
}

type registryEntry struct {
	tracker *Tracker
	refs    int
}

// NewRegistry creates a registry. Both the store and the credential
// provider may be nil and are passed through to every tracker it creates.
func NewRegistry(store storage.Store, creds transport.CredentialProvider) *Registry {
	return &Registry{
		store:   store,
		creds:   creds,
		entries: make(map[string]*registryEntry),
	}
}

// Attach subscribes a handler to the job's tracker, creating the tracking
// session on first use. The returned subscription must be passed back to
// Detach when the caller is done.
func (r *Registry) Attach(cfg config.Config, h events.Handler) (*Tracker, *events.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, nil, ErrRegistryClosed
	}

	entry, ok := r.entries[cfg.JobID]
	if !ok {
		t, err := New(cfg, r.store, r.creds)
		if err != nil {
			return nil, nil, err
		}
		entry = &registryEntry{tracker: t}
		r.entries[cfg.JobID] = entry
	}
	entry.refs++

	// Subscribe before the transports open so the first attach cannot
	// miss the session's first transition
	sub := entry.tracker.Subscribe(h)
	entry.tracker.Start()
	return entry.tracker, sub, nil
}

// Detach removes a subscription and releases its reference. The tracker is
// disposed when the last reference goes away. Safe to call with a job that
// was never attached.
func (r *Registry) Detach(jobID string, sub *events.Subscription) {
	r.mu.Lock()
	entry, ok := r.entries[jobID]
	if !ok {
		r.mu.Unlock()
		return
	}
	entry.tracker.Unsubscribe(sub)
	entry.refs--
	last := entry.refs <= 0
	if last {
		delete(r.entries, jobID)
	}
	r.mu.Unlock()

	if last {
		entry.tracker.Dispose()
	}
}

// Tracker returns the running tracker for a job, or nil
func (r *Registry) Tracker(jobID string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[jobID]; ok {
		return entry.tracker
	}
	return nil
}

// Len returns the number of active tracking sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close disposes every session. Further attaches fail.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := make([]*registryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.tracker.Dispose()
	}
}
