package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/heimdex/heimdex-composer/internal/logging"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

var (
	ErrExportInProgress  = errors.New("an export is already running on this coordinator")
	ErrExportFailed      = errors.New("export failed")
	ErrFileReplaceFailed = errors.New("could not remove existing output file")
	ErrCancelled         = errors.New("export cancelled")
	ErrEmptyTimeline     = errors.New("timeline has no segments")
)

// Preset and Container are fixed for every export.
const (
	Preset    = "highest_quality"
	Container = "mov"
)

// Encoder renders a finished timeline to a movie file. Implementations must
// stop promptly when ctx is cancelled.
type Encoder interface {
	Encode(ctx context.Context, tl *timeline.Timeline, outputPath string) error
}

type State string

const (
	StateIdle      State = "idle"
	StateExporting State = "exporting"
)

// Coordinator runs at most one export at a time. Different coordinators
// share no state and may export concurrently.
type Coordinator struct {
	encoder Encoder
	logger  *slog.Logger
	timeout time.Duration
	remove  func(path string) error

	mu     sync.Mutex
	active *Job
}

type Option func(*Coordinator)

// WithTimeout bounds each export. A timed out export fails.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

func NewCoordinator(encoder Encoder, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		encoder: encoder,
		logger:  logging.WithComponent(logger, "export"),
		remove:  os.Remove,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return StateExporting
	}
	return StateIdle
}

// Active returns the running job, or nil when idle.
func (c *Coordinator) Active() *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Export starts rendering tl to outputPath on a new goroutine and returns
// the job immediately. onDone, if not nil, is called exactly once on the
// worker goroutine when the job reaches a terminal state. tl must not be
// mutated until then.
func (c *Coordinator) Export(ctx context.Context, tl *timeline.Timeline, outputPath string, onDone Callback) (*Job, error) {
	if tl == nil || tl.IsEmpty() {
		return nil, ErrEmptyTimeline
	}

	c.mu.Lock()
	if c.active != nil {
		activeID := c.active.ID
		c.mu.Unlock()
		c.logger.Warn("export rejected, coordinator busy", "active_job_id", activeID, "output", logging.SanitizePath(outputPath))
		return nil, ErrExportInProgress
	}

	job := newJob(outputPath)
	var jobCtx context.Context
	if c.timeout > 0 {
		jobCtx, job.cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		jobCtx, job.cancel = context.WithCancel(ctx)
	}
	c.active = job
	c.mu.Unlock()

	go c.run(jobCtx, job, tl, onDone)
	return job, nil
}

func (c *Coordinator) run(ctx context.Context, job *Job, tl *timeline.Timeline, onDone Callback) {
	logger := logging.WithJobID(c.logger, job.ID)
	defer job.cancel()

	job.start()
	logger.Info("export started",
		"output", logging.SanitizePath(job.Path),
		"duration_s", tl.Duration().Seconds(),
		"segments", tl.Len(),
		"preset", Preset,
	)

	if _, err := os.Stat(job.Path); err == nil {
		if err := c.remove(job.Path); err != nil {
			logger.Warn("failed to remove existing output, exporting anyway",
				"output", logging.SanitizePath(job.Path), "error", err)
			job.setFileReplaceErr(fmt.Errorf("%w: %v", ErrFileReplaceFailed, err))
		}
	}

	err := c.encode(ctx, tl, job.Path)

	status, finalErr := StatusSucceeded, error(nil)
	switch {
	case job.cancelRequested.Load() || errors.Is(ctx.Err(), context.Canceled):
		status, finalErr = StatusCancelled, ErrCancelled
	case err != nil:
		status, finalErr = StatusFailed, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	if status != StatusSucceeded {
		if rmErr := os.Remove(job.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("failed to remove partial output", "error", rmErr)
		}
	}

	job.finish(status, finalErr)

	c.mu.Lock()
	if c.active == job {
		c.active = nil
	}
	c.mu.Unlock()

	if finalErr != nil {
		logger.Warn("export finished", "status", status, "error", finalErr)
	} else {
		logger.Info("export finished", "status", status, "elapsed_ms", job.Elapsed().Milliseconds())
	}

	if onDone != nil {
		onDone(job.Result())
	}
	close(job.done)
}

// encode shields the coordinator from a panicking encoder so every job still
// reaches exactly one terminal state.
func (c *Coordinator) encode(ctx context.Context, tl *timeline.Timeline, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("encoder panic", "error", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("encoder panic: %v", r)
		}
	}()
	return c.encoder.Encode(ctx, tl, path)
}
