package pipeline

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunResult_IsSuccess(t *testing.T) {
	tests := []struct {
		exitCode int
		want     bool
	}{
		{0, true},
		{1, false},
		{-1, false},
		{127, false},
	}
	for _, tt := range tests {
		r := RunResult{ExitCode: tt.exitCode}
		if got := r.IsSuccess(); got != tt.want {
			t.Errorf("RunResult{ExitCode: %d}.IsSuccess() = %v, want %v", tt.exitCode, got, tt.want)
		}
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	if got, want := buf.String(), " test data"; got != want {
		t.Errorf("after overflow got %q, want %q", got, want)
	}
}

func TestLimitedWriter_ExactLimit(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 5}

	n, err := lw.Write([]byte("12345"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n != 5 {
		t.Errorf("Write returned %d, want 5", n)
	}
	if buf.String() != "12345" {
		t.Errorf("got %q, want %q", buf.String(), "12345")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "...world"},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestFirstLine(t *testing.T) {
	got := firstLine([]byte("ffmpeg version 6.1.1 Copyright (c)\nbuilt with gcc\n"))
	if got != "ffmpeg version 6.1.1 Copyright (c)" {
		t.Errorf("firstLine() = %q", got)
	}
	if firstLine(nil) != "" {
		t.Error("firstLine(nil) should be empty")
	}
}

func TestResolveTool_PreferredNotFound(t *testing.T) {
	if _, err := resolveTool("/nonexistent/ffmpeg999", "ffmpeg"); err == nil {
		t.Fatal("expected error for nonexistent ffmpeg")
	}
}

func TestRunner_MissingToolsFailCalls(t *testing.T) {
	r := NewRunner(Config{
		FFmpegPath:  "/nonexistent/ffmpeg999",
		FFprobePath: "/nonexistent/ffprobe999",
		Logger:      testLogger(),
	})

	if _, err := r.Probe(context.Background(), "/tmp/x.mp4"); err == nil {
		t.Error("Probe() should fail without ffprobe")
	}
	if _, err := r.Run(context.Background(), "-version"); err == nil {
		t.Error("Run() should fail without ffmpeg")
	}
	caps, err := r.Doctor(context.Background())
	if err == nil {
		t.Error("Doctor() should fail without any tool")
	}
	if caps == nil || caps.CanCompose() {
		t.Errorf("caps = %+v, want non-nil and unable to compose", caps)
	}
}

func TestRunner_DoctorWithRealFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not on PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not on PATH")
	}

	r := NewRunner(DefaultConfig(testLogger()))
	caps, err := r.Doctor(context.Background())
	if err != nil {
		t.Fatalf("Doctor() error = %v", err)
	}
	if !caps.CanCompose() {
		t.Errorf("caps = %+v, want compose capable", caps)
	}
	if caps.FFmpegVersion == "" {
		t.Error("ffmpeg version is empty")
	}
}
