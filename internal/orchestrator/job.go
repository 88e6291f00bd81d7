package orchestrator

import (
	"sync"
	"sync/atomic"

	"github.com/storyloom/orchestrator/internal/domain"
)

// Job is the handle for one submitted batch. The orchestrator owns the
// items until the job reaches a terminal state; results are then read
// through Snapshot.
type Job struct {
	ID        string
	SessionID string

	items []domain.WorkItem

	mu        sync.Mutex
	status    domain.JobStatus
	outcomes  map[string]domain.Outcome
	completed int
	failed    int

	progress  chan domain.ProgressEvent
	done      chan struct{}
	cancelled atomic.Bool
}

// Result is a point-in-time view of a job.
type Result struct {
	JobID     string                    `json:"job_id"`
	Status    domain.JobStatus          `json:"status"`
	Completed int                       `json:"completed"`
	Failed    int                       `json:"failed"`
	Total     int                       `json:"total"`
	Outcomes  map[string]domain.Outcome `json:"outcomes"`
}

func newJob(id, sessionID string, items []domain.WorkItem, batches int) *Job {
	return &Job{
		ID:        id,
		SessionID: sessionID,
		items:     items,
		status:    domain.JobPending,
		outcomes:  make(map[string]domain.Outcome, len(items)),
		// Buffered for one event per batch so the producer never blocks
		// on a slow consumer.
		progress: make(chan domain.ProgressEvent, batches),
		done:     make(chan struct{}),
	}
}

// Progress returns the push-based progress stream: one event per completed
// batch. The channel is closed when the job reaches a terminal state.
func (j *Job) Progress() <-chan domain.ProgressEvent {
	return j.progress
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Status returns the current lifecycle state.
func (j *Job) Status() domain.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Snapshot copies the job's current counters and outcomes.
func (j *Job) Snapshot() Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	outcomes := make(map[string]domain.Outcome, len(j.outcomes))
	for k, v := range j.outcomes {
		outcomes[k] = v
	}
	return Result{
		JobID:     j.ID,
		Status:    j.status,
		Completed: j.completed,
		Failed:    j.failed,
		Total:     len(j.items),
		Outcomes:  outcomes,
	}
}

func (j *Job) setStatus(s domain.JobStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

// record stores one outcome and advances the counters.
func (j *Job) record(o domain.Outcome) {
	j.mu.Lock()
	j.outcomes[o.ItemID] = o
	if o.OK {
		j.completed++
	} else {
		j.failed++
	}
	j.mu.Unlock()
}

func (j *Job) counts() (completed, failed int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.completed, j.failed
}
