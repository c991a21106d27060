package export

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Result is delivered once per job to the completion callback.
type Result struct {
	JobID   string
	Path    string
	Success bool
	Status  Status
	Err     error
	// FileReplaceErr is set when a pre-existing output could not be removed.
	FileReplaceErr error
}

type Callback func(Result)

// OnSuccess returns a callback that runs next only for successful exports.
func OnSuccess(next func(path string)) Callback {
	return func(r Result) {
		if r.Success {
			next(r.Path)
		}
	}
}

// Job tracks one export from creation to its single terminal state.
type Job struct {
	ID        string
	Path      string
	CreatedAt time.Time

	mu             sync.Mutex
	status         Status
	err            error
	fileReplaceErr error
	startedAt      time.Time
	finishedAt     time.Time

	cancel          context.CancelFunc
	cancelRequested atomic.Bool
	done            chan struct{}
}

func newJob(path string) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Path:      path,
		CreatedAt: time.Now(),
		status:    StatusPending,
		done:      make(chan struct{}),
	}
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Job) FileReplaceErr() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileReplaceErr
}

func (j *Job) Elapsed() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.startedAt.IsZero() {
		return 0
	}
	if j.finishedAt.IsZero() {
		return time.Since(j.startedAt)
	}
	return j.finishedAt.Sub(j.startedAt)
}

// Done is closed after the completion callback has returned.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Cancel asks a pending or running export to stop. The job then finishes
// as cancelled. Cancelling a finished job has no effect.
func (j *Job) Cancel() {
	j.mu.Lock()
	terminal := j.status.IsTerminal()
	j.mu.Unlock()
	if terminal {
		return
	}
	j.cancelRequested.Store(true)
	if j.cancel != nil {
		j.cancel()
	}
}

// Wait blocks until the job is done or ctx ends.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.done:
		return j.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (j *Job) Result() Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Result{
		JobID:          j.ID,
		Path:           j.Path,
		Success:        j.status == StatusSucceeded,
		Status:         j.status,
		Err:            j.err,
		FileReplaceErr: j.fileReplaceErr,
	}
}

func (j *Job) start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusRunning
	j.startedAt = time.Now()
}

func (j *Job) setFileReplaceErr(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileReplaceErr = err
}

func (j *Job) finish(status Status, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.IsTerminal() {
		return
	}
	j.status = status
	j.err = err
	j.finishedAt = time.Now()
}
