package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusIdle, false},
		{JobStatusConnecting, false},
		{JobStatusEnriching, false},
		{JobStatusPaused, false},
		{JobStatusStopped, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestComponentStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   ComponentStatus
		terminal bool
	}{
		{ComponentStatusPending, false},
		{ComponentStatusEnriching, false},
		{ComponentStatusEnriched, true},
		{ComponentStatusFailed, true},
		{ComponentStatusNotFound, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestEventTypeValid(t *testing.T) {
	valid := []EventType{
		EventStarted, EventProgress, EventComponentCompleted,
		EventComponentFailed, EventCompleted, EventError,
	}
	for _, et := range valid {
		assert.True(t, et.Valid(), "expected %q to be valid", et)
	}

	assert.False(t, EventType("").Valid())
	assert.False(t, EventType("component.started").Valid())
}

func TestProgressStateClone(t *testing.T) {
	started := time.Now()
	orig := &ProgressState{
		JobID:         "job-1",
		Status:        JobStatusEnriching,
		TotalItems:    100,
		EnrichedItems: 40,
		StartedAt:     &started,
	}

	c := orig.Clone()
	assert.Equal(t, orig, c)

	// Mutating the clone must not touch the original
	c.EnrichedItems = 50
	*c.StartedAt = started.Add(time.Hour)
	assert.Equal(t, 40, orig.EnrichedItems)
	assert.Equal(t, started, *orig.StartedAt)

	var nilState *ProgressState
	assert.Nil(t, nilState.Clone())
}

func TestComponentUpdateClone(t *testing.T) {
	orig := &ComponentUpdate{
		ComponentID: "C-42",
		Status:      ComponentStatusEnriched,
		Result:      &ComponentResult{Supplier: "mouser", Price: 0.42},
		UpdatedAt:   time.Now(),
	}

	c := orig.Clone()
	assert.Equal(t, orig, c)

	c.Result.Price = 9.99
	assert.Equal(t, 0.42, orig.Result.Price)
}
