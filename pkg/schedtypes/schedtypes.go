// Package schedtypes defines the domain model shared between the job and
// scheduler packages: identity, lifecycle phase, and the sentinel
// conditions documented at the scheduler's public boundary.
package schedtypes

import (
	"errors"

	"github.com/google/uuid"
)

// JobID uniquely identifies a Job for its entire lifetime.
type JobID = uuid.UUID

// NewJobID assigns a fresh, universally-unique job identifier.
func NewJobID() JobID {
	return uuid.New()
}

// Phase is one of the four mutually-exclusive job states.
type Phase int

const (
	// Pending jobs are admitted but not yet running.
	Pending Phase = iota
	// Running jobs have had Run called and are awaiting a completion signal.
	Running
	// Completed jobs finished successfully; the result holds the value produced.
	Completed
	// Failed jobs finished unsuccessfully; the result holds an error sentinel.
	Failed
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Result failure sentinels, written into a job's result on the matching
// failure path and observable by callers/tests.
const (
	TimeoutError        = "Timeout"
	NoTriesLeftError     = "No tries left"
	ManuallyFailedError  = "Manually failed"
	InternalJobError     = "Internal job error"
)

// Error kinds exposed as distinct conditions at the public boundary.
var (
	// ErrIncorrectJobState is raised by any job or scheduler operation
	// invoked in a phase that does not permit it.
	ErrIncorrectJobState = errors.New("incorrect job state")
	// ErrPoolSize is raised by Scheduler.Schedule when admission would
	// exceed the configured pool size.
	ErrPoolSize = errors.New("scheduler pool size exceeded")
	// ErrJobTwiceScheduling is raised by Scheduler.Schedule when the job
	// is already known to the scheduler in any partition.
	ErrJobTwiceScheduling = errors.New("job already scheduled")
)
