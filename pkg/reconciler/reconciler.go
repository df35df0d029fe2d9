package reconciler

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartage/bomtrack/pkg/events"
	"github.com/cartage/bomtrack/pkg/ledger"
	"github.com/cartage/bomtrack/pkg/log"
	"github.com/cartage/bomtrack/pkg/metrics"
	"github.com/cartage/bomtrack/pkg/storage"
	"github.com/cartage/bomtrack/pkg/types"
)

// dedupWindow bounds the remembered event ids. Duplicates normally arrive
// close together (reconnect replay), so a small window suffices.
const dedupWindow = 256

// TerminalFunc is invoked once when the job reaches a terminal status, so
// the supervisor can close whichever transport is still open.
type TerminalFunc func(state *types.ProgressState)

// Reconciler is the single authority merging the baseline snapshot, push
// events and poll snapshots into one canonical ProgressState and the
// component ledger. It alone decides when a notification fires.
type Reconciler struct {
	jobID    string
	notifier *events.Notifier
	ledger   *ledger.Ledger
	store    storage.Store // nil disables checkpoints
	logger   zerolog.Logger

	mu         sync.Mutex
	state      *types.ProgressState
	seen       map[string]struct{}
	seenOrder  []string
	onTerminal TerminalFunc
	closed     bool
}

// New creates a reconciler for one tracking session. The store may be nil.
func New(jobID string, notifier *events.Notifier, ldg *ledger.Ledger, store storage.Store) *Reconciler {
	return &Reconciler{
		jobID:    jobID,
		notifier: notifier,
		ledger:   ldg,
		store:    store,
		logger:   log.WithComponent("reconciler").With().Str("job_id", jobID).Logger(),
		state: &types.ProgressState{
			JobID:  jobID,
			Status: types.JobStatusIdle,
		},
		seen: make(map[string]struct{}, dedupWindow),
	}
}

// SetTerminalFunc registers the supervisor hook. Must be called before any
// transport starts feeding the reconciler.
func (r *Reconciler) SetTerminalFunc(fn TerminalFunc) {
	r.mu.Lock()
	r.onTerminal = fn
	r.mu.Unlock()
}

// CurrentState returns a copy of the canonical progress state
func (r *Reconciler) CurrentState() *types.ProgressState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Ledger returns the component ledger
func (r *Reconciler) Ledger() *ledger.Ledger {
	return r.ledger
}

// Close marks the reconciler disposed. Any data still in flight on a
// transport goroutine is discarded when it arrives.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// ApplySnapshot merges an authoritative snapshot from the query endpoint.
// Snapshots always supersede prior state; they are read from the store of
// record, so no monotonicity veto applies. Used for both the baseline fetch
// and poll-mode fallback.
func (r *Reconciler) ApplySnapshot(snap *types.ProgressState) error {
	if snap == nil {
		return types.ErrMalformedEvent
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return types.ErrDisposed
	}
	if r.state.Status.IsTerminal() {
		r.mu.Unlock()
		metrics.EventsTotal.WithLabelValues("snapshot", "rejected").Inc()
		return nil
	}

	next := snap.Clone()
	next.JobID = r.jobID
	derivePercent(next)
	carryTimestamps(next, r.state)

	if !progressChanged(r.state, next) {
		r.mu.Unlock()
		metrics.EventsTotal.WithLabelValues("snapshot", "duplicate").Inc()
		return nil
	}

	prev := r.state
	r.state = next
	r.checkpointLocked()
	terminal := next.Status.IsTerminal()
	fn := r.onTerminal
	r.mu.Unlock()

	metrics.EventsTotal.WithLabelValues("snapshot", "accepted").Inc()

	switch {
	case next.Status == types.JobStatusFailed:
		r.emitJobFailed(next)
	case next.Status == types.JobStatusCompleted:
		r.emit(events.KindComplete)
		r.notifier.EmitComplete(next)
	case isStartTransition(prev, next):
		r.emit(events.KindStarted)
		r.notifier.EmitStarted(next)
	default:
		r.emit(events.KindProgress)
		r.notifier.EmitProgress(next)
	}

	if terminal && fn != nil {
		go fn(next.Clone())
	}
	return nil
}

// ApplyEvent merges one push channel event. Events are hints: duplicates
// are suppressed by event id, and progress payloads are accepted only when
// their counters do not regress or they enter a terminal status.
func (r *Reconciler) ApplyEvent(ev *types.StreamEvent) error {
	if err := validateEvent(ev, r.jobID); err != nil {
		metrics.EventsTotal.WithLabelValues(eventLabel(ev), "malformed").Inc()
		r.logger.Debug().Err(err).Msg("discarding malformed event")
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return types.ErrDisposed
	}
	if r.state.Status.IsTerminal() {
		// Terminal absorption: everything after completed/failed is a no-op
		r.mu.Unlock()
		metrics.EventsTotal.WithLabelValues(string(ev.Type), "rejected").Inc()
		return nil
	}
	if r.isDuplicateLocked(ev.EventID) {
		r.mu.Unlock()
		metrics.EventsTotal.WithLabelValues(string(ev.Type), "duplicate").Inc()
		r.logger.Debug().Str("event_id", ev.EventID).Msg("suppressing duplicate event")
		return nil
	}

	switch ev.Type {
	case types.EventStarted:
		r.applyStartedLocked(ev)
	case types.EventProgress:
		r.applyProgressLocked(ev)
	case types.EventComponentCompleted, types.EventComponentFailed:
		r.applyComponentLocked(ev)
	case types.EventCompleted:
		r.applyCompletedLocked(ev)
	case types.EventError:
		r.applyErrorLocked(ev)
	}
	return nil
}

// applyStartedLocked handles the job's start announcement. Releases r.mu.
func (r *Reconciler) applyStartedLocked(ev *types.StreamEvent) {
	next := r.mergedProgressLocked(ev.Progress)
	if next == nil {
		r.mu.Unlock()
		metrics.EventsTotal.WithLabelValues(string(ev.Type), "rejected").Inc()
		return
	}
	if next.Status == types.JobStatusIdle || next.Status == types.JobStatusConnecting {
		next.Status = types.JobStatusEnriching
	}
	if next.StartedAt == nil {
		at := ev.CreatedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		next.StartedAt = &at
	}
	if !isStartTransition(r.state, next) && !progressChanged(r.state, next) {
		// Replayed start announcement with a fresh event id
		r.mu.Unlock()
		metrics.EventsTotal.WithLabelValues(string(ev.Type), "rejected").Inc()
		return
	}

	r.state = next
	r.checkpointLocked()
	r.mu.Unlock()

	metrics.EventsTotal.WithLabelValues(string(ev.Type), "accepted").Inc()
	r.emit(events.KindStarted)
	r.notifier.EmitStarted(next)
}

// applyProgressLocked handles a counter advance. Releases r.mu.
func (r *Reconciler) applyProgressLocked(ev *types.StreamEvent) {
	next := r.mergedProgressLocked(ev.Progress)
	if next == nil || !progressChanged(r.state, next) {
		r.mu.Unlock()
		metrics.EventsTotal.WithLabelValues(string(ev.Type), "rejected").Inc()
		return
	}

	r.state = next
	r.checkpointLocked()
	terminal := next.Status.IsTerminal()
	fn := r.onTerminal
	r.mu.Unlock()

	metrics.EventsTotal.WithLabelValues(string(ev.Type), "accepted").Inc()

	switch next.Status {
	case types.JobStatusFailed:
		r.emitJobFailed(next)
	case types.JobStatusCompleted:
		r.emit(events.KindComplete)
		r.notifier.EmitComplete(next)
	default:
		r.emit(events.KindProgress)
		r.notifier.EmitProgress(next)
	}

	if terminal && fn != nil {
		go fn(next.Clone())
	}
}

// applyComponentLocked handles per-line-item results. Releases r.mu.
func (r *Reconciler) applyComponentLocked(ev *types.StreamEvent) {
	applied := r.ledger.Upsert(ev.Component)
	if !applied {
		r.mu.Unlock()
		metrics.EventsTotal.WithLabelValues(string(ev.Type), "rejected").Inc()
		return
	}

	// Component events may carry a piggybacked progress snapshot; fold it
	// in silently so the component notification stays the single dispatch
	// for this event. Terminal payloads are never folded: the terminal
	// transition belongs to the explicit completed/error event, which
	// would otherwise be absorbed with no completion ever dispatched.
	if next := r.mergedProgressLocked(ev.Progress); next != nil && !next.Status.IsTerminal() {
		r.state = next
	}
	r.checkpointComponentLocked(ev.Component)
	r.checkpointLocked()
	r.mu.Unlock()

	metrics.EventsTotal.WithLabelValues(string(ev.Type), "accepted").Inc()
	if ev.Type == types.EventComponentCompleted {
		r.emit(events.KindComponentCompleted)
		r.notifier.EmitComponentCompleted(ev.Component)
	} else {
		r.emit(events.KindComponentFailed)
		r.notifier.EmitComponentFailed(ev.Component)
	}
}

// applyCompletedLocked handles the job's terminal completion. Releases r.mu.
func (r *Reconciler) applyCompletedLocked(ev *types.StreamEvent) {
	next := r.state.Clone()
	if ev.Progress != nil {
		next = ev.Progress.Clone()
		next.JobID = r.jobID
		carryTimestamps(next, r.state)
	}
	next.Status = types.JobStatusCompleted
	if next.PercentComplete < 100 && next.TotalItems > 0 &&
		next.EnrichedItems+next.FailedItems+next.NotFoundItems >= next.TotalItems {
		next.PercentComplete = 100
	}
	if next.CompletedAt == nil {
		at := ev.CreatedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		next.CompletedAt = &at
	}

	r.state = next
	r.checkpointLocked()
	fn := r.onTerminal
	r.mu.Unlock()

	metrics.EventsTotal.WithLabelValues(string(ev.Type), "accepted").Inc()
	r.emit(events.KindComplete)
	r.notifier.EmitComplete(next)
	if fn != nil {
		go fn(next.Clone())
	}
}

// applyErrorLocked handles a server-reported job failure. Releases r.mu.
func (r *Reconciler) applyErrorLocked(ev *types.StreamEvent) {
	next := r.state.Clone()
	if ev.Progress != nil {
		next = ev.Progress.Clone()
		next.JobID = r.jobID
		carryTimestamps(next, r.state)
	}
	next.Status = types.JobStatusFailed
	next.ErrorMessage = ev.Error
	if next.FailedAt == nil {
		at := ev.CreatedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		next.FailedAt = &at
	}

	r.state = next
	r.checkpointLocked()
	fn := r.onTerminal
	r.mu.Unlock()

	metrics.EventsTotal.WithLabelValues(string(ev.Type), "accepted").Inc()
	r.emitJobFailed(next)
	if fn != nil {
		go fn(next.Clone())
	}
}

// mergedProgressLocked applies the push merge rule to an embedded progress
// payload. Returns nil when the payload is absent or vetoed: a push event
// may only move counters forward, or carry the job into a terminal status.
func (r *Reconciler) mergedProgressLocked(snap *types.ProgressState) *types.ProgressState {
	if snap == nil {
		return nil
	}

	next := snap.Clone()
	next.JobID = r.jobID
	derivePercent(next)

	if !next.Status.IsTerminal() && !monotonic(r.state, next) {
		r.logger.Debug().
			Int("current_enriched", r.state.EnrichedItems).
			Int("incoming_enriched", next.EnrichedItems).
			Msg("vetoing regressing progress payload")
		return nil
	}

	carryTimestamps(next, r.state)
	return next
}

// isDuplicateLocked records the event id and reports whether it was already
// seen inside the dedup window
func (r *Reconciler) isDuplicateLocked(eventID string) bool {
	if eventID == "" {
		return false
	}
	if _, ok := r.seen[eventID]; ok {
		return true
	}
	r.seen[eventID] = struct{}{}
	r.seenOrder = append(r.seenOrder, eventID)
	if len(r.seenOrder) > dedupWindow {
		delete(r.seen, r.seenOrder[0])
		r.seenOrder = r.seenOrder[1:]
	}
	return false
}

func (r *Reconciler) checkpointLocked() {
	if r.store == nil {
		return
	}
	if err := r.store.SaveProgress(r.state); err != nil {
		r.logger.Warn().Err(err).Msg("failed to checkpoint progress")
	}
}

func (r *Reconciler) checkpointComponentLocked(update *types.ComponentUpdate) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveComponent(r.jobID, update); err != nil {
		r.logger.Warn().Err(err).Msg("failed to checkpoint component")
	}
}

func (r *Reconciler) emit(kind events.Kind) {
	metrics.NotificationsTotal.WithLabelValues(string(kind)).Inc()
}

func (r *Reconciler) emitJobFailed(state *types.ProgressState) {
	r.emit(events.KindError)
	if state.ErrorMessage != "" {
		r.notifier.EmitError(fmt.Errorf("%w: %s", types.ErrJobFailed, state.ErrorMessage))
	} else {
		r.notifier.EmitError(types.ErrJobFailed)
	}
}

// validateEvent checks the envelope before any state is touched
func validateEvent(ev *types.StreamEvent, jobID string) error {
	if ev == nil || !ev.Type.Valid() {
		return types.ErrMalformedEvent
	}
	if ev.JobID != "" && ev.JobID != jobID {
		return fmt.Errorf("%w: event for job %q on session for %q",
			types.ErrMalformedEvent, ev.JobID, jobID)
	}
	switch ev.Type {
	case types.EventStarted, types.EventProgress:
		if ev.Progress == nil {
			return fmt.Errorf("%w: %s event without progress payload",
				types.ErrMalformedEvent, ev.Type)
		}
	case types.EventComponentCompleted, types.EventComponentFailed:
		if ev.Component == nil || ev.Component.ComponentID == "" {
			return fmt.Errorf("%w: %s event without component payload",
				types.ErrMalformedEvent, ev.Type)
		}
	}
	return nil
}

func eventLabel(ev *types.StreamEvent) string {
	if ev == nil || ev.Type == "" {
		return "unknown"
	}
	return string(ev.Type)
}

// monotonic reports whether next does not regress any counter relative to
// cur. Totals may grow (late BOM rows) but never shrink.
func monotonic(cur, next *types.ProgressState) bool {
	return next.EnrichedItems >= cur.EnrichedItems &&
		next.FailedItems >= cur.FailedItems &&
		next.NotFoundItems >= cur.NotFoundItems &&
		next.TotalItems >= cur.TotalItems &&
		next.PercentComplete >= cur.PercentComplete
}

// progressChanged reports whether two states differ in any externally
// observable field
func progressChanged(cur, next *types.ProgressState) bool {
	return cur.Status != next.Status ||
		cur.TotalItems != next.TotalItems ||
		cur.EnrichedItems != next.EnrichedItems ||
		cur.FailedItems != next.FailedItems ||
		cur.NotFoundItems != next.NotFoundItems ||
		cur.PendingItems != next.PendingItems ||
		cur.PercentComplete != next.PercentComplete ||
		cur.Stage != next.Stage ||
		cur.CurrentBatch != next.CurrentBatch ||
		cur.ErrorMessage != next.ErrorMessage
}

// isStartTransition reports whether the job just left its pre-run statuses
func isStartTransition(prev, next *types.ProgressState) bool {
	started := prev.Status == types.JobStatusIdle || prev.Status == types.JobStatusConnecting
	return started && next.Status == types.JobStatusEnriching
}

// derivePercent fills in PercentComplete when the server omitted it
func derivePercent(s *types.ProgressState) {
	if s.PercentComplete == 0 && s.TotalItems > 0 {
		done := s.EnrichedItems + s.FailedItems + s.NotFoundItems
		s.PercentComplete = float64(done) / float64(s.TotalItems) * 100
	}
}

// carryTimestamps preserves session timestamps a partial payload omitted
func carryTimestamps(next, prev *types.ProgressState) {
	if next.StartedAt == nil {
		next.StartedAt = prev.StartedAt
	}
	if next.CompletedAt == nil && next.Status == types.JobStatusCompleted {
		next.CompletedAt = prev.CompletedAt
	}
	if next.FailedAt == nil && next.Status == types.JobStatusFailed {
		next.FailedAt = prev.FailedAt
	}
}
