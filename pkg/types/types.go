package types

import (
	"errors"
	"time"
)

// JobStatus represents the overall status of an enrichment job
type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusConnecting JobStatus = "connecting"
	JobStatusEnriching  JobStatus = "enriching"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusPaused     JobStatus = "paused"
	JobStatusStopped    JobStatus = "stopped"
)

// IsTerminal reports whether the status is absorbing. Once a job reaches a
// terminal status no further mutation of its progress state is permitted.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ProgressState is the canonical progress view of one enrichment job
type ProgressState struct {
	JobID           string     `json:"job_id"`
	Status          JobStatus  `json:"status"`
	TotalItems      int        `json:"total_items"`
	EnrichedItems   int        `json:"enriched_items"`
	FailedItems     int        `json:"failed_items"`
	NotFoundItems   int        `json:"not_found_items"`
	PendingItems    int        `json:"pending_items"`
	PercentComplete float64    `json:"percent_complete"`
	Stage           string     `json:"stage,omitempty"`
	CurrentBatch    int        `json:"current_batch,omitempty"`
	TotalBatches    int        `json:"total_batches,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	FailedAt        *time.Time `json:"failed_at,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// Clone returns a deep copy of the progress state
func (p *ProgressState) Clone() *ProgressState {
	if p == nil {
		return nil
	}
	c := *p
	c.StartedAt = cloneTime(p.StartedAt)
	c.CompletedAt = cloneTime(p.CompletedAt)
	c.FailedAt = cloneTime(p.FailedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// ComponentStatus represents the per-line-item enrichment status
type ComponentStatus string

const (
	ComponentStatusPending   ComponentStatus = "pending"
	ComponentStatusEnriching ComponentStatus = "enriching"
	ComponentStatusEnriched  ComponentStatus = "enriched"
	ComponentStatusFailed    ComponentStatus = "failed"
	ComponentStatusNotFound  ComponentStatus = "not_found"
)

// IsTerminal reports whether a per-component status is final
func (s ComponentStatus) IsTerminal() bool {
	switch s {
	case ComponentStatusEnriched, ComponentStatusFailed, ComponentStatusNotFound:
		return true
	}
	return false
}

// ComponentResult carries the externally sourced enrichment data for one
// line item
type ComponentResult struct {
	Supplier        string  `json:"supplier,omitempty"`
	Price           float64 `json:"price,omitempty"`
	Stock           int     `json:"stock,omitempty"`
	ReferenceURL    string  `json:"reference_url,omitempty"`
	LifecycleStatus string  `json:"lifecycle_status,omitempty"`
	Category        string  `json:"category,omitempty"`
}

// ComponentUpdate identifies one line item's enrichment result.
// Updates are idempotent and keyed by ComponentID; UpdatedAt is assigned by
// the server and drives last-writer-wins merging.
type ComponentUpdate struct {
	ComponentID string           `json:"component_id"`
	Status      ComponentStatus  `json:"status"`
	Result      *ComponentResult `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Clone returns a deep copy of the component update
func (u *ComponentUpdate) Clone() *ComponentUpdate {
	if u == nil {
		return nil
	}
	c := *u
	if u.Result != nil {
		r := *u.Result
		c.Result = &r
	}
	return &c
}

// EventType represents the type of a stream event
type EventType string

const (
	EventStarted            EventType = "started"
	EventProgress           EventType = "progress"
	EventComponentCompleted EventType = "component.completed"
	EventComponentFailed    EventType = "component.failed"
	EventCompleted          EventType = "completed"
	EventError              EventType = "error"
)

// Valid reports whether the event type is one the client understands
func (t EventType) Valid() bool {
	switch t {
	case EventStarted, EventProgress, EventComponentCompleted,
		EventComponentFailed, EventCompleted, EventError:
		return true
	}
	return false
}

// StreamEvent is the envelope delivered over the push channel.
// Delivery is at-least-once and possibly out of order; EventID is the
// dedup key and may repeat.
type StreamEvent struct {
	EventID   string           `json:"event_id"`
	Type      EventType        `json:"event_type"`
	JobID     string           `json:"job_id"`
	Progress  *ProgressState   `json:"progress,omitempty"`
	Component *ComponentUpdate `json:"component,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Transport identifies which channel is currently feeding the reconciler
type Transport string

const (
	TransportPush Transport = "push"
	TransportPoll Transport = "poll"
	TransportNone Transport = "none"
)

// ConnectionHealth represents the health of the active transport
type ConnectionHealth string

const (
	ConnectionConnected ConnectionHealth = "connected"
	ConnectionRetrying  ConnectionHealth = "retrying"
	ConnectionFailed    ConnectionHealth = "failed"
)

// ConnectionState is a point-in-time view of the transport layer
type ConnectionState struct {
	Transport   Transport        `json:"transport"`
	Health      ConnectionHealth `json:"health"`
	RetryCount  int              `json:"retry_count"`
	NextRetryAt *time.Time       `json:"next_retry_at,omitempty"`
}

// Error taxonomy. Only ErrJobFailed and a retry-exhausted transport error
// are ever surfaced to callers; everything else is absorbed internally.
var (
	// ErrMalformedEvent marks an inbound payload that could not be parsed
	// or fails envelope validation. Discarded without touching
	// connection-health counters.
	ErrMalformedEvent = errors.New("malformed stream event")

	// ErrStaleUpdate marks an update rejected by the merge rules
	// (older timestamp, regressing counters, or duplicate event id).
	ErrStaleUpdate = errors.New("stale update")

	// ErrDisposed marks data arriving after disposal. Silently discarded.
	ErrDisposed = errors.New("tracker disposed")

	// ErrJobFailed reports that the server declared the job itself failed.
	// Never retried.
	ErrJobFailed = errors.New("enrichment job failed")

	// ErrPushExhausted reports that the push channel exhausted its retry
	// budget and the supervisor has failed over to polling.
	ErrPushExhausted = errors.New("push channel retry budget exhausted")
)
