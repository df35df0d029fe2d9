package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartage/bomtrack/pkg/events"
	"github.com/cartage/bomtrack/pkg/log"
	"github.com/cartage/bomtrack/pkg/metrics"
	"github.com/cartage/bomtrack/pkg/reconciler"
	"github.com/cartage/bomtrack/pkg/transport"
	"github.com/cartage/bomtrack/pkg/transport/poll"
	"github.com/cartage/bomtrack/pkg/transport/push"
	"github.com/cartage/bomtrack/pkg/types"
)

// Phase represents the supervisor's transport posture
type Phase string

const (
	PhaseUnstarted    Phase = "unstarted"
	PhaseBootstrap    Phase = "bootstrap"
	PhasePushActive   Phase = "push_active"
	PhasePushRetrying Phase = "push_retrying"
	PhasePollActive   Phase = "poll_active"
	PhaseDisposed     Phase = "disposed"
)

// Config holds supervisor configuration
type Config struct {
	// JobID selects the tracking session
	JobID string

	// StreamURL is the websocket endpoint for the push channel
	StreamURL string

	// Credentials resolves the bearer token for both channels
	Credentials transport.CredentialProvider

	// PollFallbackAfter is the consecutive push-failure budget before the
	// session falls over to polling
	PollFallbackAfter int

	// PollInterval is the poll channel cadence, also used as the baseline
	// fetch retry cadence
	PollInterval time.Duration

	// BackoffBase is the initial push reconnect delay
	BackoffBase time.Duration

	// BackoffCap bounds the push reconnect delay
	BackoffCap time.Duration
}

// Supervisor owns the transport lifecycle for one tracking session. It
// seeds the reconciler with a baseline snapshot, runs the push channel
// until its retry budget is spent, falls over to polling one way, and
// tears every transport down when the job reaches a terminal status.
// Failover is never reversed on its own; only an explicit Reconnect
// re-arms the push channel.
type Supervisor struct {
	cfg       Config
	rec       *reconciler.Reconciler
	snapshots *transport.SnapshotClient
	notifier  *events.Notifier
	logger    zerolog.Logger

	mu     sync.Mutex
	phase  Phase
	conn   types.ConnectionState
	pushC  *push.Client
	pollC  *poll.Poller
	stopCh chan struct{}
}

// New creates a supervisor. It registers itself as the reconciler's
// terminal hook, so it must be created before any transport feeds the
// reconciler.
func New(cfg Config, rec *reconciler.Reconciler, snapshots *transport.SnapshotClient, notifier *events.Notifier) (*Supervisor, error) {
	if cfg.JobID == "" {
		return nil, fmt.Errorf("supervisor: job id is required")
	}
	if cfg.StreamURL == "" {
		return nil, fmt.Errorf("supervisor: stream url is required")
	}
	if rec == nil || snapshots == nil || notifier == nil {
		return nil, fmt.Errorf("supervisor: reconciler, snapshot client and notifier are required")
	}
	if cfg.PollFallbackAfter <= 0 {
		cfg.PollFallbackAfter = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}

	s := &Supervisor{
		cfg:       cfg,
		rec:       rec,
		snapshots: snapshots,
		notifier:  notifier,
		logger:    log.WithComponent("supervisor").With().Str("job_id", cfg.JobID).Logger(),
		phase:     PhaseUnstarted,
		conn: types.ConnectionState{
			Transport: types.TransportNone,
			Health:    types.ConnectionRetrying,
		},
		stopCh: make(chan struct{}),
	}
	rec.SetTerminalFunc(s.handleTerminal)
	return s, nil
}

// Phase returns the current transport posture
func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// ConnectionState returns a point-in-time view of the transport layer
func (s *Supervisor) ConnectionState() types.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Start begins the session. Non-blocking; the baseline fetch and the push
// channel come up in the background.
func (s *Supervisor) Start() {
	s.mu.Lock()
	if s.phase != PhaseUnstarted {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseBootstrap
	s.mu.Unlock()

	go s.bootstrap()
}

// Stop tears the session down. Idempotent; both transports are closed and
// the reconciler stops accepting data.
func (s *Supervisor) Stop() {
	s.teardown(true)
}

// Reconnect closes whatever channel is active and re-arms the push channel
// with a fresh retry budget. The one call that reverses a poll failover.
// No-op after disposal.
func (s *Supervisor) Reconnect() {
	s.mu.Lock()
	if s.phase == PhaseDisposed || s.phase == PhaseUnstarted {
		s.mu.Unlock()
		return
	}
	pushC, pollC := s.pushC, s.pollC
	s.pushC, s.pollC = nil, nil
	s.mu.Unlock()

	if pushC != nil {
		pushC.Close()
	}
	if pollC != nil {
		pollC.Stop()
	}

	s.logger.Info().Msg("explicit reconnect, re-arming push channel")
	s.startPush()
}

// bootstrap fetches the baseline snapshot, retrying on the poll cadence
// until it succeeds, then opens the push channel. Events that raced ahead
// of the baseline are reconciled by the same merge rules as everything
// else, so ordering here is about promptness, not correctness.
func (s *Supervisor) bootstrap() {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PollInterval*2)
		snap, err := s.snapshots.Fetch(ctx, s.cfg.JobID)
		cancel()

		if err == nil {
			metrics.SnapshotFetchesTotal.WithLabelValues("ok").Inc()
			if err := s.rec.ApplySnapshot(snap); err != nil {
				s.logger.Warn().Err(err).Msg("baseline snapshot rejected")
			}
			break
		}

		metrics.SnapshotFetchesTotal.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Msg("baseline fetch failed, retrying")
		select {
		case <-time.After(s.cfg.PollInterval):
		case <-s.stopCh:
			return
		}
	}

	// A terminal baseline means the job finished before we attached; the
	// terminal hook already tore the session down
	if s.rec.CurrentState().Status.IsTerminal() {
		return
	}
	s.startPush()
}

func (s *Supervisor) startPush() {
	s.mu.Lock()
	if s.phase == PhaseDisposed {
		s.mu.Unlock()
		return
	}
	// One active transport at a time. An early Reconnect can race the
	// bootstrap goroutine into a second startPush; the later call yields.
	if s.pushC != nil {
		s.mu.Unlock()
		return
	}

	client, err := push.New(push.Config{
		JobID:       s.cfg.JobID,
		StreamURL:   s.cfg.StreamURL,
		Credentials: s.cfg.Credentials,
		BackoffBase: s.cfg.BackoffBase,
		BackoffCap:  s.cfg.BackoffCap,
		MaxFailures: s.cfg.PollFallbackAfter,
		OnEvent:     s.onPushEvent,
		OnConnected: s.onPushConnected,
		OnRetry:     s.onPushRetry,
		OnExhausted: s.onPushExhausted,
	})
	if err != nil {
		// Config was validated in New; this cannot happen in practice
		s.mu.Unlock()
		s.logger.Error().Err(err).Msg("failed to build push client")
		return
	}

	s.pushC = client
	s.phase = PhasePushRetrying
	s.conn = types.ConnectionState{
		Transport: types.TransportPush,
		Health:    types.ConnectionRetrying,
	}
	s.mu.Unlock()

	metrics.SetActiveTransport(s.cfg.JobID, string(types.TransportPush))
	client.Start()
}

func (s *Supervisor) startPoll() {
	s.mu.Lock()
	if s.phase == PhaseDisposed {
		s.mu.Unlock()
		return
	}

	poller, err := poll.New(poll.Config{
		JobID:      s.cfg.JobID,
		Interval:   s.cfg.PollInterval,
		Snapshots:  s.snapshots,
		OnSnapshot: s.onPollSnapshot,
	})
	if err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Msg("failed to build poller")
		return
	}

	s.pollC = poller
	s.phase = PhasePollActive
	s.conn = types.ConnectionState{
		Transport: types.TransportPoll,
		Health:    types.ConnectionConnected,
	}
	s.mu.Unlock()

	metrics.SetActiveTransport(s.cfg.JobID, string(types.TransportPoll))
	poller.Start()
}

func (s *Supervisor) onPushEvent(ev *types.StreamEvent) {
	if err := s.rec.ApplyEvent(ev); err != nil {
		s.logger.Debug().Err(err).Msg("push event discarded")
	}
}

func (s *Supervisor) onPushConnected() {
	s.mu.Lock()
	if s.phase == PhaseDisposed {
		s.mu.Unlock()
		return
	}
	s.phase = PhasePushActive
	s.conn = types.ConnectionState{
		Transport: types.TransportPush,
		Health:    types.ConnectionConnected,
	}
	s.mu.Unlock()
}

func (s *Supervisor) onPushRetry(failures int, nextAttempt time.Time) {
	s.mu.Lock()
	if s.phase == PhaseDisposed {
		s.mu.Unlock()
		return
	}
	s.phase = PhasePushRetrying
	s.conn = types.ConnectionState{
		Transport:   types.TransportPush,
		Health:      types.ConnectionRetrying,
		RetryCount:  failures,
		NextRetryAt: &nextAttempt,
	}
	s.mu.Unlock()
}

// onPushExhausted performs the one-way failover to polling
func (s *Supervisor) onPushExhausted(err error) {
	s.mu.Lock()
	if s.phase == PhaseDisposed {
		s.mu.Unlock()
		return
	}
	pushC := s.pushC
	s.pushC = nil
	s.conn = types.ConnectionState{
		Transport:  types.TransportPush,
		Health:     types.ConnectionFailed,
		RetryCount: s.cfg.PollFallbackAfter,
	}
	s.mu.Unlock()

	if pushC != nil {
		pushC.Close()
	}

	metrics.FailoversTotal.Inc()
	s.logger.Warn().Err(err).Msg("push channel exhausted, falling over to poll")
	s.notifier.EmitError(err)
	s.startPoll()
}

func (s *Supervisor) onPollSnapshot(snap *types.ProgressState) {
	if err := s.rec.ApplySnapshot(snap); err != nil {
		s.logger.Debug().Err(err).Msg("poll snapshot discarded")
	}
}

// handleTerminal is the reconciler's terminal hook. Runs off the
// reconciler's lock on its own goroutine.
func (s *Supervisor) handleTerminal(state *types.ProgressState) {
	s.logger.Info().Str("status", string(state.Status)).Msg("job reached terminal status, closing transports")
	s.teardown(false)
}

// teardown closes both transports exactly once. Closing the reconciler is
// reserved for an explicit Stop; a terminal job keeps its final state
// readable.
func (s *Supervisor) teardown(closeReconciler bool) {
	s.mu.Lock()
	if s.phase == PhaseDisposed {
		s.mu.Unlock()
		if closeReconciler {
			s.rec.Close()
		}
		return
	}
	s.phase = PhaseDisposed
	pushC, pollC := s.pushC, s.pollC
	s.pushC, s.pollC = nil, nil
	s.conn = types.ConnectionState{
		Transport: types.TransportNone,
		Health:    types.ConnectionFailed,
	}
	close(s.stopCh)
	s.mu.Unlock()

	if pushC != nil {
		pushC.Close()
	}
	if pollC != nil {
		pollC.Stop()
	}
	metrics.SetActiveTransport(s.cfg.JobID, string(types.TransportNone))

	if closeReconciler {
		s.rec.Close()
	}
}
