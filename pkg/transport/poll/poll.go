package poll

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartage/bomtrack/pkg/log"
	"github.com/cartage/bomtrack/pkg/metrics"
	"github.com/cartage/bomtrack/pkg/transport"
	"github.com/cartage/bomtrack/pkg/types"
)

const defaultInterval = 3 * time.Second

// Config holds poll channel configuration
type Config struct {
	// JobID selects the job to poll
	JobID string

	// Interval is the tick cadence
	Interval time.Duration

	// Snapshots fetches the authoritative progress snapshot
	Snapshots *transport.SnapshotClient

	// OnSnapshot receives every successfully fetched snapshot. Terminal
	// handling belongs to the consumer; the poller only stops itself.
	OnSnapshot func(snap *types.ProgressState)
}

// Poller is the fallback transport. It fetches a snapshot every interval,
// skips ticks while a fetch is still in flight, absorbs fetch failures, and
// stops itself when a snapshot reports a terminal status.
type Poller struct {
	cfg    Config
	logger zerolog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	inFlight atomic.Bool
}

// New creates a poller
func New(cfg Config) (*Poller, error) {
	if cfg.JobID == "" {
		return nil, fmt.Errorf("poll: job id is required")
	}
	if cfg.Snapshots == nil {
		return nil, fmt.Errorf("poll: snapshot client is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}

	return &Poller{
		cfg:    cfg,
		logger: log.WithComponent("poll").With().Str("job_id", cfg.JobID).Logger(),
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins ticking. Non-blocking.
func (p *Poller) Start() {
	go p.run()
}

// Stop cancels the tick loop. Idempotent; no timer survives it.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}

func (p *Poller) run() {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Fetch immediately on start so failover produces a snapshot within
	// one interval
	go p.fetch()

	for {
		select {
		case <-ticker.C:
			go p.fetch()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Poller) fetch() {
	// Never overlap requests: skip the tick, don't queue it
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug().Msg("previous fetch still in flight, skipping tick")
		return
	}
	defer p.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Interval*2)
	defer cancel()

	snap, err := p.cfg.Snapshots.Fetch(ctx, p.cfg.JobID)
	if err != nil {
		// Transient by definition; the next tick is an independent
		// idempotent request
		metrics.SnapshotFetchesTotal.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Msg("snapshot fetch failed")
		return
	}
	metrics.SnapshotFetchesTotal.WithLabelValues("ok").Inc()

	select {
	case <-p.stopCh:
		// Response raced a stop; discard it
		return
	default:
	}

	if p.cfg.OnSnapshot != nil {
		p.cfg.OnSnapshot(snap)
	}

	if snap.Status.IsTerminal() {
		p.logger.Info().Str("status", string(snap.Status)).Msg("job reached terminal status, stopping poller")
		p.Stop()
	}
}
