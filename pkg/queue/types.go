package queue

import (
	"context"
	"errors"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/models"
)

// ErrNoJobsAvailable indicates the polled job type has nothing queued.
var ErrNoJobsAvailable = errors.New("no jobs available")

// NonRetriable wraps a Handler error that must route straight to
// dead_letter instead of the normal backoff-and-retry path, per
// SPEC_FULL.md §7's InputMalformed and PolicyViolation handling policies:
// a malformed payload or a consent/revocation violation will not resolve
// itself on retry, so retrying just burns the job's attempt budget before
// landing in the same place.
type NonRetriable struct{ Err error }

func (e *NonRetriable) Error() string { return e.Err.Error() }
func (e *NonRetriable) Unwrap() error { return e.Err }

// MarkNonRetriable wraps err so the Worker Pool dead-letters it on the
// first failure.
func MarkNonRetriable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetriable{Err: err}
}

// isNonRetriable reports whether err (or anything it wraps) is a
// NonRetriable.
func isNonRetriable(err error) bool {
	var nr *NonRetriable
	return errors.As(err, &nr)
}

// Handler processes one claimed job and returns its result payload (stored
// verbatim as job_queue.result) or an error that sends the job to retry or
// dead-letter. Unlike the teacher's single hard-coded SessionExecutor, a
// distinct Handler is registered per job type, so one pool drives every
// kind of deferred work the core needs.
type Handler func(ctx context.Context, job *models.Job) (resultJSON string, err error)

// Registration binds a job type to the handler and concurrency it runs
// under.
type Registration struct {
	Type          models.JobType
	Handler       Handler
	Concurrency   int
	LeaseDuration time.Duration
}

// WorkerStatus mirrors the teacher's idle/working worker states.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// PoolHealth reports the health of the entire worker pool, carried over
// field-for-field from the teacher's PoolHealth (session vocabulary
// renamed to job vocabulary).
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	DBReachable   bool           `json:"db_reachable"`
	DBError       string         `json:"db_error,omitempty"`
	HostID        string         `json:"host_id"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	QueueDepth    map[string]int `json:"queue_depth"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth reports the health of a single worker.
type WorkerHealth struct {
	ID             string    `json:"id"`
	JobType        string    `json:"job_type"`
	Status         string    `json:"status"`
	CurrentJobID   string    `json:"current_job_id,omitempty"`
	JobsProcessed  int       `json:"jobs_processed"`
	JobsFailed     int       `json:"jobs_failed"`
	LastActivity   time.Time `json:"last_activity"`
}
