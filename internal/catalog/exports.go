package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heimdex/heimdex-composer/internal/export"
	"github.com/heimdex/heimdex-composer/internal/logging"
)

// EncoderFactory returns the encoder for one composition. paths maps source
// IDs to files.
type EncoderFactory func(paths map[string]string) export.Encoder

// ExportManager owns one export.Coordinator per composition and keeps the
// exports table in step with the jobs they run.
type ExportManager struct {
	service    *Service
	repo       Repository
	newEncoder EncoderFactory
	timeout    time.Duration
	logger     *slog.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	paused  atomic.Bool

	mu           sync.Mutex
	coordinators map[string]*export.Coordinator
	jobs         map[string]*export.Job
	listeners    []func(ExportRecord)
}

func NewExportManager(service *Service, repo Repository, newEncoder EncoderFactory, timeout time.Duration, logger *slog.Logger) *ExportManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, stop := context.WithCancel(context.Background())
	return &ExportManager{
		service:      service,
		repo:         repo,
		newEncoder:   newEncoder,
		timeout:      timeout,
		logger:       logging.WithComponent(logger, "exports"),
		baseCtx:      ctx,
		stop:         stop,
		coordinators: make(map[string]*export.Coordinator),
		jobs:         make(map[string]*export.Job),
	}
}

// OnFinish registers fn to run after every export reaches a terminal state
// and its record is updated.
func (m *ExportManager) OnFinish(fn func(ExportRecord)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *ExportManager) Pause() {
	m.paused.Store(true)
	m.logger.Info("exports paused")
}

func (m *ExportManager) Resume() {
	m.paused.Store(false)
	m.logger.Info("exports resumed")
}

func (m *ExportManager) IsPaused() bool {
	return m.paused.Load()
}

// Start renders the composition to outputPath. A composition renders one
// export at a time; a second request while one runs fails with
// export.ErrExportInProgress. Different compositions export concurrently.
func (m *ExportManager) Start(ctx context.Context, compositionID, outputPath string) (*ExportRecord, error) {
	if m.paused.Load() {
		return nil, ErrExportsPaused
	}
	if err := export.ValidateOutputPath(outputPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	tl, sources, err := m.service.LoadTimeline(ctx, compositionID)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]string, len(sources))
	for id, src := range sources {
		paths[id] = src.Path
	}

	// The record must exist before the completion callback updates it.
	ready := make(chan struct{})
	job, err := m.coordinator(compositionID, paths).Export(m.baseCtx, tl, outputPath, func(res export.Result) {
		<-ready
		m.finish(compositionID, res)
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rec := &ExportRecord{
		ID:            job.ID,
		CompositionID: compositionID,
		OutputPath:    outputPath,
		Status:        ExportStatusRunning,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	createErr := m.repo.CreateExport(context.WithoutCancel(ctx), rec)
	close(ready)
	if createErr != nil {
		job.Cancel()
		return nil, fmt.Errorf("record export: %w", createErr)
	}

	logging.WithJobID(m.logger, job.ID).Info("export queued",
		"composition_id", compositionID,
		"output", logging.SanitizePath(outputPath),
	)
	return rec, nil
}

func (m *ExportManager) coordinator(compositionID string, paths map[string]string) *export.Coordinator {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.coordinators[compositionID]; ok {
		return c
	}
	var opts []export.Option
	if m.timeout > 0 {
		opts = append(opts, export.WithTimeout(m.timeout))
	}
	c := export.NewCoordinator(m.newEncoder(paths), logging.WithCompositionID(m.logger, compositionID), opts...)
	m.coordinators[compositionID] = c
	return c
}

func (m *ExportManager) finish(compositionID string, res export.Result) {
	m.mu.Lock()
	delete(m.jobs, res.JobID)
	listeners := append([]func(ExportRecord)(nil), m.listeners...)
	m.mu.Unlock()

	var errMsg, replaceMsg string
	if res.Err != nil {
		errMsg = res.Err.Error()
	}
	if res.FileReplaceErr != nil {
		replaceMsg = res.FileReplaceErr.Error()
	}

	ctx := context.Background()
	logger := logging.WithJobID(m.logger, res.JobID)
	if err := m.repo.UpdateExportStatus(ctx, res.JobID, string(res.Status), errMsg, replaceMsg); err != nil {
		logger.Error("failed to record export result", "status", res.Status, "error", err)
		return
	}

	rec, err := m.repo.GetExport(ctx, res.JobID)
	if err != nil || rec == nil {
		logger.Warn("export record missing after update", "composition_id", compositionID, "error", err)
		return
	}
	for _, fn := range listeners {
		fn(*rec)
	}
}

// Get returns the stored export record, or ErrExportNotFound.
func (m *ExportManager) Get(ctx context.Context, id string) (*ExportRecord, error) {
	rec, err := m.repo.GetExport(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrExportNotFound
	}
	return rec, nil
}

func (m *ExportManager) List(ctx context.Context, compositionID string) ([]*ExportRecord, error) {
	return m.repo.ListExports(ctx, compositionID, 50)
}

// Job returns the live job of a running export.
func (m *ExportManager) Job(id string) (*export.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	return job, ok
}

// Cancel requests cancellation of a running export. The record turns
// cancelled once the encoder has stopped.
func (m *ExportManager) Cancel(ctx context.Context, id string) error {
	if job, ok := m.Job(id); ok {
		job.Cancel()
		return nil
	}
	rec, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.IsTerminal() {
		return ErrExportFinished
	}
	return nil
}

func (m *ExportManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Shutdown cancels running exports and waits for their callbacks.
func (m *ExportManager) Shutdown(ctx context.Context) error {
	m.stop()

	m.mu.Lock()
	jobs := make([]*export.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.Unlock()

	for _, job := range jobs {
		if _, err := job.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
