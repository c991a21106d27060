package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/heimdex/heimdex-composer/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// FFmpeg is the subprocess contract used by the composer.
type FFmpeg interface {
	// Probe runs ffprobe on a media file.
	Probe(ctx context.Context, filePath string) (*ProbeResult, error)

	// Run executes ffmpeg with the given arguments.
	Run(ctx context.Context, args ...string) (RunResult, error)

	// Doctor reports which tools are installed.
	Doctor(ctx context.Context) (*Capabilities, error)
}

// Config holds the runner's configuration.
type Config struct {
	FFmpegPath   string        // path to ffmpeg; empty = look up on PATH
	FFprobePath  string        // path to ffprobe; empty = look up on PATH
	ProbeTimeout time.Duration // timeout for ffprobe and -version calls
	Logger       *slog.Logger
	DebugPaths   bool // if true, log full file paths; otherwise sanitise
}

func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		ProbeTimeout: 30 * time.Second,
		Logger:       logger,
	}
}

// Runner is the production implementation of FFmpeg.
type Runner struct {
	cfg     Config
	ffmpeg  string
	ffprobe string
}

// NewRunner resolves tool paths. Missing tools are not an error here; the
// doctor reports them and calls that need them fail.
func NewRunner(cfg Config) *Runner {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}
	cfg.Logger = logging.WithComponent(cfg.Logger, "ffmpeg")

	ffmpeg, err := resolveTool(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		cfg.Logger.Warn("ffmpeg not found", "error", err)
	}
	ffprobe, err := resolveTool(cfg.FFprobePath, "ffprobe")
	if err != nil {
		cfg.Logger.Warn("ffprobe not found", "error", err)
	}

	cfg.Logger.Info("ffmpeg runner initialised", "ffmpeg", ffmpeg, "ffprobe", ffprobe)
	return &Runner{cfg: cfg, ffmpeg: ffmpeg, ffprobe: ffprobe}
}

func (r *Runner) Probe(ctx context.Context, filePath string) (*ProbeResult, error) {
	if r.ffprobe == "" {
		return nil, fmt.Errorf("ffprobe is not installed")
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	result := r.exec(ctx, r.ffprobe, true,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)
	if !result.IsSuccess() {
		return nil, fmt.Errorf("ffprobe %s exited %d: %s", r.safePath(filePath), result.ExitCode, truncate(result.StderrTail, 512))
	}

	var probe ProbeResult
	if err := json.Unmarshal(result.Stdout, &probe); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}
	return &probe, nil
}

func (r *Runner) Run(ctx context.Context, args ...string) (RunResult, error) {
	if r.ffmpeg == "" {
		return RunResult{ExitCode: -1}, fmt.Errorf("ffmpeg is not installed")
	}
	return r.exec(ctx, r.ffmpeg, false, args...), nil
}

func (r *Runner) Doctor(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	caps := &Capabilities{
		FFmpegPath:  r.ffmpeg,
		FFprobePath: r.ffprobe,
		ProbedAt:    time.Now(),
	}

	if r.ffmpeg != "" {
		res := r.exec(ctx, r.ffmpeg, true, "-hide_banner", "-version")
		if res.IsSuccess() {
			caps.HasFFmpeg = true
			caps.FFmpegVersion = firstLine(res.Stdout)
			caps.HasLibx264 = bytes.Contains(res.Stdout, []byte("--enable-libx264"))
		}
	}
	if r.ffprobe != "" {
		res := r.exec(ctx, r.ffprobe, true, "-hide_banner", "-version")
		if res.IsSuccess() {
			caps.HasFFprobe = true
			caps.FFprobeVersion = firstLine(res.Stdout)
		}
	}

	if !caps.HasFFmpeg && !caps.HasFFprobe {
		return caps, fmt.Errorf("neither ffmpeg nor ffprobe is usable")
	}

	r.cfg.Logger.Info("doctor probe complete",
		"ffmpeg", caps.HasFFmpeg,
		"ffprobe", caps.HasFFprobe,
		"libx264", caps.HasLibx264,
	)
	return caps, nil
}

// exec is the core subprocess execution helper.
func (r *Runner) exec(ctx context.Context, bin string, captureStdout bool, args ...string) RunResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)

	var stderrBuf, stdoutBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})
	if captureStdout {
		cmd.Stdout = &stdoutBuf
	} else {
		cmd.Stdout = io.Discard
	}

	r.cfg.Logger.Debug("executing command", "bin", bin, "args", r.safeArgs(args))

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			stderrBuf.WriteString(err.Error())
		}
	}

	stderrTail := stderrBuf.String()

	if exitCode != 0 {
		r.cfg.Logger.Warn("command failed",
			"bin", bin,
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		r.cfg.Logger.Debug("command succeeded", "bin", bin, "duration_ms", elapsed.Milliseconds())
	}

	return RunResult{
		ExitCode:   exitCode,
		Stdout:     stdoutBuf.Bytes(),
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func (r *Runner) safePath(path string) string {
	if r.cfg.DebugPaths {
		return path
	}
	return logging.SanitizePath(path)
}

func (r *Runner) safeArgs(args []string) []string {
	if r.cfg.DebugPaths {
		return args
	}
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = logging.SanitizePath(a)
	}
	return out
}

func resolveTool(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("no %s binary found on PATH", name)
	}
	return p, nil
}

func firstLine(b []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(b))
	if sc.Scan() {
		return strings.TrimSpace(sc.Text())
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
