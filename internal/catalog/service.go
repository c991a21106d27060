package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/heimdex/heimdex-composer/internal/export"
	"github.com/heimdex/heimdex-composer/internal/logging"
	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/pipeline"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

const defaultEDLFrameRate = 30.0

type CatalogService interface {
	AddSource(ctx context.Context, path, displayName string) (*Source, error)
	RemoveSource(ctx context.Context, id string) error
	GetSources(ctx context.Context) ([]*Source, error)
	GetSource(ctx context.Context, id string) (*Source, error)
	Compose(ctx context.Context, name string, sourceIDs []string, opts ComposeOptions) (*Composition, error)
	GetComposition(ctx context.Context, id string) (*Composition, error)
	ListCompositions(ctx context.Context) ([]*Composition, error)
	LoadTimeline(ctx context.Context, compositionID string) (*timeline.Timeline, map[string]*Source, error)
	WriteEDL(ctx context.Context, compositionID, outputDir string, frameRate float64) (string, error)
}

type ComposeOptions struct {
	// SkipMissingVideo drops video-less sources instead of rejecting the
	// composition.
	SkipMissingVideo bool
}

type Service struct {
	repo   Repository
	ff     pipeline.FFmpeg
	logger *slog.Logger
}

func NewService(repo Repository, ff pipeline.FFmpeg, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, ff: ff, logger: logging.WithComponent(logger, "catalog")}
}

// AddSource probes a clip and stores it. Adding a path twice returns the
// stored source.
func (s *Service) AddSource(ctx context.Context, path, displayName string) (*Source, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotAFile
	}

	existing, err := s.repo.GetSourceByPath(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if displayName == "" {
		displayName = strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))
	}

	id := NewID()
	src, probe, err := pipeline.ProbeSource(ctx, s.ff, id, absPath)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", logging.SanitizePath(absPath), err)
	}

	source := &Source{
		ID:          id,
		Path:        absPath,
		DisplayName: displayName,
		Duration:    src.Duration,
		HasVideo:    src.HasVideoTrack(),
		HasAudio:    src.HasAudioTrack(),
		Tracks:      src.Tracks,
		CreatedAt:   time.Now(),
	}
	if size, ok := src.FrameSize(); ok {
		source.Width, source.Height = size.Width, size.Height
	}
	for _, st := range probe.Streams {
		if st.CodecType == "video" && st.Disposition["attached_pic"] != 1 {
			source.FrameRate = st.FrameRate()
			break
		}
	}

	if err := s.repo.CreateSource(ctx, source); err != nil {
		return nil, err
	}

	logging.WithSourceID(s.logger, source.ID).Info("source added",
		"path", logging.SanitizePath(absPath),
		"duration", source.Duration.String(),
		"video", source.HasVideo,
		"audio", source.HasAudio,
	)
	return source, nil
}

func (s *Service) RemoveSource(ctx context.Context, id string) error {
	src, err := s.repo.GetSource(ctx, id)
	if err != nil {
		return err
	}
	if src == nil {
		return ErrSourceNotFound
	}
	inUse, err := s.repo.SourceInUse(ctx, id)
	if err != nil {
		return err
	}
	if inUse {
		return ErrSourceInUse
	}
	return s.repo.DeleteSource(ctx, id)
}

func (s *Service) GetSources(ctx context.Context) ([]*Source, error) {
	return s.repo.ListSources(ctx)
}

func (s *Service) GetSource(ctx context.Context, id string) (*Source, error) {
	return s.repo.GetSource(ctx, id)
}

// Compose builds a timeline from the sources in the given order and stores
// the result. Timeline errors such as timeline.ErrMissingVideoTrack are
// returned unchanged in the chain.
func (s *Service) Compose(ctx context.Context, name string, sourceIDs []string, opts ComposeOptions) (*Composition, error) {
	sources, err := s.loadSources(ctx, sourceIDs)
	if err != nil {
		return nil, err
	}

	var buildOpts []timeline.BuildOption
	if opts.SkipMissingVideo {
		buildOpts = append(buildOpts, timeline.SkipMissingVideo())
	}

	tl, err := timeline.Build(mediaSources(sources), buildOpts...)
	if err != nil {
		return nil, err
	}

	skipped := make(map[string]bool, len(tl.Skipped()))
	for _, id := range tl.Skipped() {
		skipped[id] = true
	}
	used := make([]string, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		if !skipped[id] {
			used = append(used, id)
		}
	}

	if strings.TrimSpace(name) == "" {
		name = "composition " + time.Now().Format("2006-01-02 15:04")
	}

	size, _ := tl.FrameSize()
	comp := &Composition{
		ID:        NewID(),
		Name:      name,
		SourceIDs: used,
		Duration:  tl.Duration(),
		FrameSize: size,
		Timeline:  tl.Snapshot(),
		CreatedAt: time.Now(),
	}
	if err := s.repo.CreateComposition(ctx, comp); err != nil {
		return nil, err
	}

	logging.WithCompositionID(s.logger, comp.ID).Info("composition created",
		"sources", len(used),
		"skipped", len(skipped),
		"duration_s", comp.Duration.Seconds(),
		"frame_size", size.String(),
	)
	return comp, nil
}

func (s *Service) GetComposition(ctx context.Context, id string) (*Composition, error) {
	return s.repo.GetComposition(ctx, id)
}

func (s *Service) ListCompositions(ctx context.Context) ([]*Composition, error) {
	return s.repo.ListCompositions(ctx, 50)
}

// LoadTimeline rebuilds the timeline of a stored composition from its
// sources. The returned map is keyed by source ID.
func (s *Service) LoadTimeline(ctx context.Context, compositionID string) (*timeline.Timeline, map[string]*Source, error) {
	comp, err := s.repo.GetComposition(ctx, compositionID)
	if err != nil {
		return nil, nil, err
	}
	if comp == nil {
		return nil, nil, ErrCompositionNotFound
	}

	sources, err := s.loadSources(ctx, comp.SourceIDs)
	if err != nil {
		return nil, nil, err
	}
	tl, err := timeline.Build(mediaSources(sources))
	if err != nil {
		return nil, nil, fmt.Errorf("rebuild composition %s: %w", compositionID, err)
	}

	byID := make(map[string]*Source, len(sources))
	for _, src := range sources {
		byID[src.ID] = src
	}
	return tl, byID, nil
}

// WriteEDL writes a CMX3600 edit decision list for the composition into
// outputDir and returns the file path.
func (s *Service) WriteEDL(ctx context.Context, compositionID, outputDir string, frameRate float64) (string, error) {
	if err := export.ValidateOutputDir(outputDir); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	comp, err := s.repo.GetComposition(ctx, compositionID)
	if err != nil {
		return "", err
	}
	if comp == nil {
		return "", ErrCompositionNotFound
	}
	tl, sources, err := s.LoadTimeline(ctx, compositionID)
	if err != nil {
		return "", err
	}

	if frameRate <= 0 {
		frameRate = defaultEDLFrameRate
	}

	clips := make(map[string]export.ClipInfo, len(sources))
	for id, src := range sources {
		clips[id] = export.ClipInfo{Name: export.SanitizeName(src.DisplayName, 160), Path: src.Path}
	}

	title := export.SanitizeName(comp.Name, 120)
	if title == "" {
		title = "heimdex_composition"
	}

	outputPath := filepath.Join(outputDir, title+".edl")
	edl := export.GenerateEDL(tl, clips, title, frameRate)
	if err := os.WriteFile(outputPath, []byte(edl), 0o644); err != nil {
		return "", fmt.Errorf("write edl: %w", err)
	}

	logging.WithCompositionID(s.logger, compositionID).Info("edl written", "path", logging.SanitizePath(outputPath))
	return outputPath, nil
}

func (s *Service) loadSources(ctx context.Context, ids []string) ([]*Source, error) {
	if len(ids) == 0 {
		return nil, timeline.ErrNoSources
	}
	sources := make([]*Source, 0, len(ids))
	for _, id := range ids {
		src, err := s.repo.GetSource(ctx, id)
		if err != nil {
			return nil, err
		}
		if src == nil {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func mediaSources(sources []*Source) []media.Source {
	out := make([]media.Source, len(sources))
	for i, src := range sources {
		out[i] = src.Media()
	}
	return out
}

// IsNotFound reports whether err means a requested catalog entity is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSourceNotFound) ||
		errors.Is(err, ErrCompositionNotFound) ||
		errors.Is(err, ErrExportNotFound)
}
