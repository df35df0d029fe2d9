package push

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cartage/bomtrack/pkg/log"
	"github.com/cartage/bomtrack/pkg/metrics"
	"github.com/cartage/bomtrack/pkg/transport"
	"github.com/cartage/bomtrack/pkg/types"
)

const (
	defaultBackoffBase = time.Second
	defaultBackoffCap  = 30 * time.Second
	defaultMaxFailures = 3
	handshakeTimeout   = 10 * time.Second
)

// Config holds push channel configuration
type Config struct {
	// JobID selects the event stream
	JobID string

	// StreamURL is the websocket endpoint
	StreamURL string

	// Credentials resolves the bearer token at connect time
	Credentials transport.CredentialProvider

	// BackoffBase is the initial reconnect delay
	BackoffBase time.Duration

	// BackoffCap bounds the reconnect delay
	BackoffCap time.Duration

	// MaxFailures is the consecutive-failure budget. When spent, the
	// client gives up and reports exhaustion instead of retrying.
	// Aligned with the supervisor's failover threshold.
	MaxFailures int

	// OnEvent receives every parsed stream event, unmodified
	OnEvent func(ev *types.StreamEvent)

	// OnConnected fires after each successful handshake
	OnConnected func()

	// OnRetry fires when a reconnect attempt has been scheduled
	OnRetry func(failures int, nextAttempt time.Time)

	// OnExhausted fires once when the retry budget is spent
	OnExhausted func(err error)
}

// Client maintains one continuous server-to-client push connection with
// reconnect and backoff. All signals surface through the Config callbacks;
// the client never interprets events itself.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	retryTimer *time.Timer
	failures   int
	closed     bool
}

// New creates a push channel client
func New(cfg Config) (*Client, error) {
	if cfg.JobID == "" {
		return nil, fmt.Errorf("push: job id is required")
	}
	if cfg.StreamURL == "" {
		return nil, fmt.Errorf("push: stream url is required")
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}

	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		logger: log.WithComponent("push").With().Str("job_id", cfg.JobID).Logger(),
	}, nil
}

// Start opens the connection. Non-blocking; connection progress surfaces
// through the callbacks.
func (c *Client) Start() {
	go c.connect()
}

// Failures returns the current consecutive-failure count
func (c *Client) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// Close tears the connection down and cancels any scheduled reconnect.
// Idempotent; no timer or socket survives it.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.mu.Unlock()

	// Credential is resolved fresh on every attempt
	header := http.Header{}
	if c.cfg.Credentials != nil {
		token, err := c.cfg.Credentials.Token()
		if err != nil {
			c.logger.Warn().Err(err).Msg("credential resolution failed")
			c.connectionFailed(fmt.Errorf("failed to resolve credential: %w", err))
			return
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, _, err := c.dialer.Dial(c.streamURL(), header)
	if err != nil {
		c.logger.Warn().Err(err).Msg("push connection failed")
		c.connectionFailed(err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.failures = 0 // A successful connection resets the budget
	c.mu.Unlock()

	metrics.PushConnectsTotal.Inc()
	c.logger.Info().Msg("push channel connected")
	if c.cfg.OnConnected != nil {
		c.cfg.OnConnected()
	}

	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			c.logger.Warn().Err(err).Msg("push connection lost")
			c.connectionFailed(err)
			return
		}

		var ev types.StreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// Unparsable frames are dropped; they do not count
			// against connection health
			c.logger.Debug().Err(err).Msg("discarding unparsable frame")
			continue
		}

		if c.cfg.OnEvent != nil {
			c.cfg.OnEvent(&ev)
		}
	}
}

// connectionFailed records a failure and either schedules the next attempt
// or reports exhaustion
func (c *Client) connectionFailed(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	c.failures++
	failures := c.failures
	metrics.PushRetriesTotal.Inc()

	if failures >= c.cfg.MaxFailures {
		c.mu.Unlock()
		c.logger.Warn().Int("failures", failures).Msg("push retry budget exhausted")
		if c.cfg.OnExhausted != nil {
			c.cfg.OnExhausted(fmt.Errorf("%w: %v", types.ErrPushExhausted, cause))
		}
		return
	}

	delay := backoffDelay(c.cfg.BackoffBase, c.cfg.BackoffCap, failures)
	nextAttempt := time.Now().Add(delay)
	c.retryTimer = time.AfterFunc(delay, c.connect)
	c.mu.Unlock()

	c.logger.Info().
		Int("failures", failures).
		Dur("delay", delay).
		Msg("push reconnect scheduled")
	if c.cfg.OnRetry != nil {
		c.cfg.OnRetry(failures, nextAttempt)
	}
}

func (c *Client) streamURL() string {
	return c.cfg.StreamURL + "?job_id=" + url.QueryEscape(c.cfg.JobID)
}

// backoffDelay computes the exponential delay for the nth consecutive
// failure, capped and with ±25% jitter
func backoffDelay(base, limit time.Duration, failures int) time.Duration {
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= limit {
			delay = limit
			break
		}
	}
	if delay > limit {
		delay = limit
	}

	jitter := delay / 4
	if jitter > 0 {
		delay = delay - jitter + time.Duration(rand.Int63n(int64(2*jitter)))
	}
	return delay
}
