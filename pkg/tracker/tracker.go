package tracker

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cartage/bomtrack/pkg/config"
	"github.com/cartage/bomtrack/pkg/events"
	"github.com/cartage/bomtrack/pkg/ledger"
	"github.com/cartage/bomtrack/pkg/log"
	"github.com/cartage/bomtrack/pkg/reconciler"
	"github.com/cartage/bomtrack/pkg/storage"
	"github.com/cartage/bomtrack/pkg/supervisor"
	"github.com/cartage/bomtrack/pkg/transport"
	"github.com/cartage/bomtrack/pkg/types"
)

// Tracker is the top-level handle for one tracked enrichment job. It wires
// the notifier, the reconciler, the component ledger and the transport
// supervisor together and exposes the caller-facing surface: subscribe,
// read state, force a reconnect, dispose.
type Tracker struct {
	cfg      config.Config
	notifier *events.Notifier
	rec      *reconciler.Reconciler
	sup      *supervisor.Supervisor
	logger   zerolog.Logger

	mu       sync.Mutex
	started  bool
	disposed bool
}

// New creates a tracker without opening any transport, so callers can
// subscribe before the first transition can possibly fire; Start begins
// the session. A nil credential provider falls back to the configured
// bearer token; a nil store disables checkpoints.
func New(cfg config.Config, store storage.Store, creds transport.CredentialProvider) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tracker: invalid config: %w", err)
	}
	streamURL, err := cfg.ResolveStreamURL()
	if err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}
	if creds == nil && cfg.BearerToken != "" {
		creds = transport.StaticCredentials(cfg.BearerToken)
	}

	notifier := events.NewNotifier()
	rec := reconciler.New(cfg.JobID, notifier, ledger.New(cfg.LedgerCapacity), store)
	snapshots := transport.NewSnapshotClient(cfg.APIBaseURL, creds)

	sup, err := supervisor.New(supervisor.Config{
		JobID:             cfg.JobID,
		StreamURL:         streamURL,
		Credentials:       creds,
		PollFallbackAfter: cfg.PollFallbackAfter,
		PollInterval:      cfg.PollInterval,
		BackoffBase:       cfg.PushBackoffBase,
		BackoffCap:        cfg.PushBackoffCap,
	}, rec, snapshots, notifier)
	if err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}

	t := &Tracker{
		cfg:      cfg,
		notifier: notifier,
		rec:      rec,
		sup:      sup,
		logger:   log.WithComponent("tracker").With().Str("job_id", cfg.JobID).Logger(),
	}

	notifier.Start()
	return t, nil
}

// Start opens the session's transports. Idempotent; a no-op when tracking
// is disabled in the config or the tracker was disposed.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.started || t.disposed {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	if !t.cfg.Enabled {
		t.logger.Info().Msg("tracking disabled, session not started")
		return
	}
	t.sup.Start()
	t.logger.Info().Msg("tracking session started")
}

// JobID returns the tracked job id
func (t *Tracker) JobID() string {
	return t.cfg.JobID
}

// Subscribe registers a handler set and returns its stable subscription
// handle. Callbacks fire on the notifier's dispatch goroutine in publish
// order.
func (t *Tracker) Subscribe(h events.Handler) *events.Subscription {
	return t.notifier.Subscribe(h)
}

// Unsubscribe removes a subscription
func (t *Tracker) Unsubscribe(sub *events.Subscription) {
	t.notifier.Unsubscribe(sub)
}

// CurrentState returns a copy of the canonical progress state
func (t *Tracker) CurrentState() *types.ProgressState {
	return t.rec.CurrentState()
}

// Components returns the retained per-component updates, most recent first
func (t *Tracker) Components() []*types.ComponentUpdate {
	return t.rec.Ledger().Snapshot()
}

// ConnectionState returns a point-in-time view of the transport layer
func (t *Tracker) ConnectionState() types.ConnectionState {
	return t.sup.ConnectionState()
}

// Reconnect bounces the active channel and re-arms push with a fresh retry
// budget. The only way back from a poll failover.
func (t *Tracker) Reconnect() {
	t.sup.Reconnect()
}

// Dispose tears the session down: transports closed, reconciler sealed,
// notifier drained and stopped. Idempotent; the handle stays readable.
func (t *Tracker) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	t.mu.Unlock()

	t.sup.Stop()
	t.notifier.Stop()
	t.logger.Info().Msg("tracking session disposed")
}
