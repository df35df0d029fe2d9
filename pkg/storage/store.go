package storage

import (
	"errors"

	"github.com/cartage/bomtrack/pkg/types"
)

// ErrNotFound is returned when no checkpoint exists for a job
var ErrNotFound = errors.New("not found")

// Store defines the interface for checkpoint persistence.
// Implemented by the BoltDB-backed store; a tracker runs without
// checkpoints when no store is supplied.
type Store interface {
	// Progress checkpoints
	SaveProgress(state *types.ProgressState) error
	GetProgress(jobID string) (*types.ProgressState, error)

	// Component ledger entries
	SaveComponent(jobID string, update *types.ComponentUpdate) error
	ListComponents(jobID string) ([]*types.ComponentUpdate, error)

	// DeleteJob removes all checkpoint data for a job
	DeleteJob(jobID string) error

	// Utility
	Close() error
}
