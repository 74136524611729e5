package storage

import (
	"time"

	"github.com/pvcship/pvcship/pkg/types"
)

// RunRecord is the persisted history entry for one batch run.
type RunRecord struct {
	ID          string             `json:"id"`
	Direction   types.Direction    `json:"direction"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Interrupted bool               `json:"interrupted"`
	Outcomes    []types.JobOutcome `json:"outcomes"`
}

// Store defines the interface for run-history persistence
// This is implemented by BoltDB-backed storage
type Store interface {
	SaveRun(rec *RunRecord) error
	GetRun(id string) (*RunRecord, error)
	ListRuns() ([]*RunRecord, error)
	Close() error
}
