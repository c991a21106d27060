package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/heimdex/heimdex-composer/internal/config"
	"github.com/heimdex/heimdex-composer/internal/export"
	"github.com/heimdex/heimdex-composer/internal/logging"
	"github.com/heimdex/heimdex-composer/internal/manifest"
	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/pipeline"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

// joinJob is a parsed `composer join` invocation.
type joinJob struct {
	output           string
	clips            []manifest.Clip
	skipMissingVideo bool
	edlDir           string
	edlFrameRate     float64
	logLevel         string
}

func parseJoinArgs(args []string, stderr io.Writer) (*joinJob, error) {
	fs := flag.NewFlagSet("join", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: composer join -o out.mov clip1 clip2 ...")
		fmt.Fprintln(stderr, "       composer join -f manifest.yaml")
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "output movie path")
	manifestPath := fs.String("f", "", "YAML manifest listing the clips")
	skip := fs.Bool("skip-missing-video", false, "drop clips without a video track instead of failing")
	edlDir := fs.String("edl", "", "also write a CMX3600 EDL into this directory")
	fps := fs.Float64("fps", 0, "EDL frame rate (default: first clip's rate, else 30)")
	logLevel := fs.String("log-level", "warn", "log level")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	job := &joinJob{
		output:           *output,
		skipMissingVideo: *skip,
		edlDir:           *edlDir,
		edlFrameRate:     *fps,
		logLevel:         *logLevel,
	}

	if *manifestPath != "" {
		if fs.NArg() > 0 {
			return nil, errors.New("clips are given either on the command line or in the manifest, not both")
		}
		m, err := manifest.Load(*manifestPath)
		if err != nil {
			return nil, err
		}
		job.clips = m.Clips
		job.skipMissingVideo = job.skipMissingVideo || m.SkipMissingVideo
		if job.output == "" {
			job.output = m.Output
		}
		if m.EDL != nil && job.edlDir == "" {
			job.edlDir = m.EDL.Dir
			if job.edlFrameRate == 0 {
				job.edlFrameRate = m.EDL.FrameRate
			}
		}
	} else {
		for _, p := range fs.Args() {
			job.clips = append(job.clips, manifest.Clip{Path: p})
		}
	}

	if len(job.clips) == 0 {
		fs.Usage()
		return nil, errors.New("no clips to join")
	}
	if job.output == "" {
		return nil, errors.New("-o is required")
	}

	abs, err := filepath.Abs(job.output)
	if err != nil {
		return nil, err
	}
	job.output = abs
	if err := export.ValidateOutputPath(job.output); err != nil {
		return nil, err
	}
	if job.edlDir != "" {
		if job.edlDir, err = filepath.Abs(job.edlDir); err != nil {
			return nil, err
		}
		if err := export.ValidateOutputDir(job.edlDir); err != nil {
			return nil, err
		}
	}
	return job, nil
}

// runJoin composes the clips on the command line into one movie without
// touching the agent database.
func runJoin(args []string) error {
	job, err := parseJoinArgs(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(config.DefaultEnvFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLoggerTo(os.Stderr, job.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ff := pipeline.NewRunner(pipeline.Config{
		FFmpegPath:   cfg.FFmpegPath(),
		FFprobePath:  cfg.FFprobePath(),
		ProbeTimeout: cfg.ProbeTimeout(),
		Logger:       logger,
		DebugPaths:   cfg.DebugPaths(),
	})

	sources, probes, err := probeClips(ctx, ff, job.clips)
	if err != nil {
		return err
	}

	var opts []timeline.BuildOption
	if job.skipMissingVideo {
		opts = append(opts, timeline.SkipMissingVideo())
	}
	tl, err := timeline.Build(sources, opts...)
	if err != nil {
		return err
	}
	for _, id := range tl.Skipped() {
		fmt.Fprintf(os.Stderr, "skipped %s: no video track\n", id)
	}

	paths := make(map[string]string, len(sources))
	for _, src := range sources {
		paths[src.ID] = src.Path
	}

	coord := export.NewCoordinator(pipeline.NewEncoder(ff, paths, logger), logger, export.WithTimeout(cfg.ExportTimeout()))
	running, err := coord.Export(ctx, tl, job.output, nil)
	if err != nil {
		return err
	}

	size, _ := tl.FrameSize()
	fmt.Fprintf(os.Stderr, "rendering %d clips, %.2fs at %s -> %s\n",
		tl.Len(), tl.Duration().Seconds(), size, job.output)

	res, _ := running.Wait(context.Background())
	if res.FileReplaceErr != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", res.FileReplaceErr)
	}
	if !res.Success {
		return fmt.Errorf("export %s: %w", res.Status, res.Err)
	}
	fmt.Println(res.Path)

	if job.edlDir != "" {
		path, err := writeJoinEDL(tl, job, probes, logger)
		if err != nil {
			return err
		}
		fmt.Println(path)
	}
	return nil
}

// clipProbe keeps what the EDL needs from a probed clip.
type clipProbe struct {
	name      string
	path      string
	frameRate float64
}

func probeClips(ctx context.Context, ff pipeline.FFmpeg, clips []manifest.Clip) ([]media.Source, map[string]clipProbe, error) {
	sources := make([]media.Source, 0, len(clips))
	probes := make(map[string]clipProbe, len(clips))
	for i, c := range clips {
		abs, err := filepath.Abs(c.Path)
		if err != nil {
			return nil, nil, err
		}
		name := c.Name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
		}
		id := fmt.Sprintf("%03d-%s", i+1, name)

		src, probe, err := pipeline.ProbeSource(ctx, ff, id, abs)
		if err != nil {
			return nil, nil, fmt.Errorf("probe %s: %w", c.Path, err)
		}
		cp := clipProbe{name: name, path: abs}
		for _, st := range probe.Streams {
			if st.CodecType == "video" && st.Disposition["attached_pic"] != 1 {
				cp.frameRate = st.FrameRate()
				break
			}
		}
		sources = append(sources, src)
		probes[id] = cp
	}
	return sources, probes, nil
}

func writeJoinEDL(tl *timeline.Timeline, job *joinJob, probes map[string]clipProbe, logger *slog.Logger) (string, error) {
	fps := job.edlFrameRate
	clips := make(map[string]export.ClipInfo, len(probes))
	for _, seg := range tl.VideoSegments() {
		p := probes[seg.SourceID]
		if fps == 0 && p.frameRate > 0 {
			fps = p.frameRate
		}
		clips[seg.SourceID] = export.ClipInfo{Name: export.SanitizeName(p.name, 160), Path: p.path}
	}
	if fps == 0 {
		fps = 30
	}

	title := export.SanitizeName(strings.TrimSuffix(filepath.Base(job.output), filepath.Ext(job.output)), 120)
	if title == "" {
		title = "heimdex_composition"
	}
	path := filepath.Join(job.edlDir, title+".edl")
	if err := os.WriteFile(path, []byte(export.GenerateEDL(tl, clips, title, fps)), 0o644); err != nil {
		return "", fmt.Errorf("write edl: %w", err)
	}
	logger.Info("edl written", "path", logging.SanitizePath(path), "frame_rate", fps)
	return path, nil
}
