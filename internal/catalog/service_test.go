package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/heimdex/heimdex-composer/internal/db"
	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/pipeline"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

func setupTestDB(t *testing.T) (*db.DB, Repository) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database, NewRepository(database.Conn())
}

// fakeFFmpeg answers probes from a table keyed by file base name.
type fakeFFmpeg struct {
	probeCalls atomic.Int32

	mu     sync.Mutex
	probes map[string]*pipeline.ProbeResult
}

func (f *fakeFFmpeg) Probe(ctx context.Context, filePath string) (*pipeline.ProbeResult, error) {
	f.probeCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.probes[filepath.Base(filePath)]
	if !ok {
		return nil, fmt.Errorf("ffprobe: invalid data found when processing input")
	}
	return p, nil
}

func (f *fakeFFmpeg) Run(ctx context.Context, args ...string) (pipeline.RunResult, error) {
	return pipeline.RunResult{}, nil
}

func (f *fakeFFmpeg) Doctor(ctx context.Context) (*pipeline.Capabilities, error) {
	return &pipeline.Capabilities{HasFFmpeg: true, HasFFprobe: true}, nil
}

func clipProbe(duration string, width, height int, withAudio bool) *pipeline.ProbeResult {
	p := &pipeline.ProbeResult{Format: pipeline.ProbeFormat{Duration: duration}}
	if width > 0 {
		p.Streams = append(p.Streams, pipeline.ProbeStream{
			Index: 0, CodecType: "video", CodecName: "h264",
			Width: width, Height: height, AvgFrameRate: "30/1",
		})
	}
	if withAudio {
		p.Streams = append(p.Streams, pipeline.ProbeStream{Index: len(p.Streams), CodecType: "audio", CodecName: "aac"})
	}
	return p
}

// newTestService returns a service whose fake probe knows a.mov (2s,
// 1920x1080, audio), b.mov (3s, 1280x720, silent), c.mov (0.5s, audio) and
// voice.m4a (audio only).
func newTestService(t *testing.T) (*Service, Repository, *fakeFFmpeg, string) {
	t.Helper()
	_, repo := setupTestDB(t)
	ff := &fakeFFmpeg{probes: map[string]*pipeline.ProbeResult{
		"a.mov":     clipProbe("2.000000", 1920, 1080, true),
		"b.mov":     clipProbe("3.000000", 1280, 720, false),
		"c.mov":     clipProbe("0.500000", 1920, 1080, true),
		"voice.m4a": clipProbe("4.000000", 0, 0, true),
	}}

	dir := t.TempDir()
	for name := range ff.probes {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("media"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return NewService(repo, ff, nil), repo, ff, dir
}

func addSources(t *testing.T, svc *Service, dir string, names ...string) []string {
	t.Helper()
	ids := make([]string, len(names))
	for i, name := range names {
		src, err := svc.AddSource(context.Background(), filepath.Join(dir, name), "")
		if err != nil {
			t.Fatalf("AddSource(%s) error = %v", name, err)
		}
		ids[i] = src.ID
	}
	return ids
}

func TestService_AddSource(t *testing.T) {
	svc, _, ff, dir := newTestService(t)
	ctx := context.Background()

	src, err := svc.AddSource(ctx, filepath.Join(dir, "a.mov"), "")
	if err != nil {
		t.Fatalf("AddSource() error = %v", err)
	}
	if src.ID == "" {
		t.Error("source.ID is empty")
	}
	if src.DisplayName != "a" {
		t.Errorf("DisplayName = %q, want a", src.DisplayName)
	}
	if !src.Duration.Equal(media.NewTime(2, 1)) {
		t.Errorf("Duration = %s, want 2s", src.Duration)
	}
	if !src.HasVideo || !src.HasAudio {
		t.Errorf("HasVideo=%v HasAudio=%v, want both", src.HasVideo, src.HasAudio)
	}
	if src.Width != 1920 || src.Height != 1080 || src.FrameRate != 30 {
		t.Errorf("size %vx%v @ %v, want 1920x1080 @ 30", src.Width, src.Height, src.FrameRate)
	}

	stored, err := svc.GetSource(ctx, src.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetSource() = %v, %v", stored, err)
	}
	if len(stored.Tracks) != 2 || stored.Tracks[0].Type != media.TypeVideo {
		t.Errorf("stored tracks = %+v", stored.Tracks)
	}

	again, err := svc.AddSource(ctx, filepath.Join(dir, "a.mov"), "other name")
	if err != nil {
		t.Fatalf("second AddSource() error = %v", err)
	}
	if again.ID != src.ID {
		t.Errorf("re-adding path created %s, want existing %s", again.ID, src.ID)
	}
	if ff.probeCalls.Load() != 1 {
		t.Errorf("probe calls = %d, want 1", ff.probeCalls.Load())
	}
}

func TestService_AddSource_Invalid(t *testing.T) {
	svc, _, _, dir := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddSource(ctx, "/nonexistent/clip.mov", ""); err == nil {
		t.Error("AddSource() should fail for a missing file")
	}
	if _, err := svc.AddSource(ctx, dir, ""); !errors.Is(err, ErrNotAFile) {
		t.Errorf("AddSource(dir) error = %v, want ErrNotAFile", err)
	}

	broken := filepath.Join(dir, "broken.mov")
	os.WriteFile(broken, []byte("junk"), 0o644)
	if _, err := svc.AddSource(ctx, broken, ""); err == nil {
		t.Error("AddSource() should fail when probing fails")
	}

	sources, _ := svc.GetSources(ctx)
	if len(sources) != 0 {
		t.Errorf("sources stored after failures = %d, want 0", len(sources))
	}
}

func TestService_Compose(t *testing.T) {
	svc, _, _, dir := newTestService(t)
	ctx := context.Background()
	ids := addSources(t, svc, dir, "a.mov", "b.mov", "c.mov")

	comp, err := svc.Compose(ctx, "holiday", ids, ComposeOptions{})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	if !comp.Duration.Equal(media.NewTime(11, 2)) {
		t.Errorf("Duration = %s, want 11/2", comp.Duration)
	}
	if comp.FrameSize != (media.Size{Width: 1920, Height: 1080}) {
		t.Errorf("FrameSize = %v, want first clip's 1920x1080", comp.FrameSize)
	}
	if len(comp.Timeline.Video) != 3 || len(comp.Timeline.Audio) != 2 {
		t.Errorf("segments video=%d audio=%d, want 3/2", len(comp.Timeline.Video), len(comp.Timeline.Audio))
	}

	stored, err := svc.GetComposition(ctx, comp.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetComposition() = %v, %v", stored, err)
	}
	if strings.Join(stored.SourceIDs, ",") != strings.Join(ids, ",") {
		t.Errorf("stored SourceIDs = %v, want %v", stored.SourceIDs, ids)
	}
	if !stored.Duration.Equal(comp.Duration) || stored.Name != "holiday" {
		t.Errorf("stored composition = %+v", stored)
	}
	if !stored.Timeline.Audio[1].Offset.Equal(media.NewTime(5, 1)) {
		t.Errorf("third clip audio offset = %s, want 5", stored.Timeline.Audio[1].Offset)
	}
}

func TestService_Compose_SameSourceTwice(t *testing.T) {
	svc, _, _, dir := newTestService(t)
	ids := addSources(t, svc, dir, "a.mov")

	comp, err := svc.Compose(context.Background(), "loop", []string{ids[0], ids[0]}, ComposeOptions{})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !comp.Duration.Equal(media.NewTime(4, 1)) || len(comp.SourceIDs) != 2 {
		t.Errorf("composition = %s over %v", comp.Duration, comp.SourceIDs)
	}
}

func TestService_Compose_MissingVideo(t *testing.T) {
	svc, _, _, dir := newTestService(t)
	ctx := context.Background()
	ids := addSources(t, svc, dir, "a.mov", "voice.m4a", "b.mov")

	if _, err := svc.Compose(ctx, "", ids, ComposeOptions{}); !errors.Is(err, timeline.ErrMissingVideoTrack) {
		t.Fatalf("Compose() error = %v, want ErrMissingVideoTrack", err)
	}
	comps, _ := svc.ListCompositions(ctx)
	if len(comps) != 0 {
		t.Errorf("failed compose stored %d compositions", len(comps))
	}

	comp, err := svc.Compose(ctx, "", ids, ComposeOptions{SkipMissingVideo: true})
	if err != nil {
		t.Fatalf("Compose(skip) error = %v", err)
	}
	if len(comp.SourceIDs) != 2 || comp.SourceIDs[0] != ids[0] || comp.SourceIDs[1] != ids[2] {
		t.Errorf("SourceIDs = %v, want voice clip dropped", comp.SourceIDs)
	}
	if comp.Name == "" {
		t.Error("default name not set")
	}
}

func TestService_Compose_Errors(t *testing.T) {
	svc, _, _, dir := newTestService(t)
	ctx := context.Background()
	ids := addSources(t, svc, dir, "a.mov")

	if _, err := svc.Compose(ctx, "x", nil, ComposeOptions{}); !errors.Is(err, timeline.ErrNoSources) {
		t.Errorf("Compose(nil) error = %v, want ErrNoSources", err)
	}
	if _, err := svc.Compose(ctx, "x", []string{ids[0], "missing"}, ComposeOptions{}); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("Compose(unknown) error = %v, want ErrSourceNotFound", err)
	}
}

func TestService_RemoveSource(t *testing.T) {
	svc, _, _, dir := newTestService(t)
	ctx := context.Background()
	ids := addSources(t, svc, dir, "a.mov", "b.mov")

	if _, err := svc.Compose(ctx, "x", ids[:1], ComposeOptions{}); err != nil {
		t.Fatal(err)
	}

	if err := svc.RemoveSource(ctx, ids[0]); !errors.Is(err, ErrSourceInUse) {
		t.Errorf("RemoveSource(in use) error = %v, want ErrSourceInUse", err)
	}
	if err := svc.RemoveSource(ctx, ids[1]); err != nil {
		t.Errorf("RemoveSource() error = %v", err)
	}
	if err := svc.RemoveSource(ctx, ids[1]); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("RemoveSource(removed) error = %v, want ErrSourceNotFound", err)
	}
}

func TestService_LoadTimeline(t *testing.T) {
	svc, _, _, dir := newTestService(t)
	ctx := context.Background()
	ids := addSources(t, svc, dir, "b.mov", "a.mov")

	comp, err := svc.Compose(ctx, "x", ids, ComposeOptions{})
	if err != nil {
		t.Fatal(err)
	}

	tl, sources, err := svc.LoadTimeline(ctx, comp.ID)
	if err != nil {
		t.Fatalf("LoadTimeline() error = %v", err)
	}
	if !tl.Duration().Equal(comp.Duration) || tl.Len() != 2 {
		t.Errorf("rebuilt timeline %s/%d, want %s/2", tl.Duration(), tl.Len(), comp.Duration)
	}
	if len(sources) != 2 || sources[ids[0]].Path != filepath.Join(dir, "b.mov") {
		t.Errorf("sources = %v", sources)
	}

	if _, _, err := svc.LoadTimeline(ctx, "missing"); !errors.Is(err, ErrCompositionNotFound) {
		t.Errorf("LoadTimeline(missing) error = %v, want ErrCompositionNotFound", err)
	}
}

func TestService_WriteEDL(t *testing.T) {
	svc, _, _, dir := newTestService(t)
	ctx := context.Background()
	ids := addSources(t, svc, dir, "a.mov", "b.mov")

	comp, err := svc.Compose(ctx, "road trip", ids, ComposeOptions{})
	if err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	path, err := svc.WriteEDL(ctx, comp.ID, outDir, 0)
	if err != nil {
		t.Fatalf("WriteEDL() error = %v", err)
	}
	if filepath.Dir(path) != outDir || filepath.Ext(path) != ".edl" {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	edl := string(data)
	if !strings.HasPrefix(edl, "TITLE: road trip") {
		t.Errorf("edl header = %q", strings.SplitN(edl, "\n", 2)[0])
	}
	if !strings.Contains(edl, "FROM CLIP NAME:  a") || !strings.Contains(edl, "FROM CLIP NAME:  b") {
		t.Errorf("edl missing clip names:\n%s", edl)
	}

	if _, err := svc.WriteEDL(ctx, comp.ID, filepath.Join(outDir, "missing"), 0); !errors.Is(err, ErrInvalidOutput) {
		t.Errorf("WriteEDL(bad dir) error = %v, want ErrInvalidOutput", err)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("load: %w", ErrCompositionNotFound)) {
		t.Error("wrapped ErrCompositionNotFound should be not found")
	}
	if IsNotFound(ErrSourceInUse) {
		t.Error("ErrSourceInUse is not a not-found error")
	}
}
