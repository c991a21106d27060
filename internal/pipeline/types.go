// Package pipeline runs ffprobe and ffmpeg as subprocesses: probing clips
// into media sources and rendering composed timelines to movie files.
package pipeline

import (
	"strconv"
	"time"
)

// ProbeResult mirrors the parts of `ffprobe -print_format json -show_format
// -show_streams` the composer reads.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

type ProbeStream struct {
	Index        int               `json:"index"`
	CodecType    string            `json:"codec_type"`
	CodecName    string            `json:"codec_name"`
	Width        int               `json:"width,omitempty"`
	Height       int               `json:"height,omitempty"`
	TimeBase     string            `json:"time_base"`
	DurationTS   int64             `json:"duration_ts,omitempty"`
	Duration     string            `json:"duration,omitempty"`
	AvgFrameRate string            `json:"avg_frame_rate,omitempty"`
	SampleRate   string            `json:"sample_rate,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	Disposition  map[string]int    `json:"disposition,omitempty"`
	SideDataList []SideData        `json:"side_data_list,omitempty"`
}

type SideData struct {
	SideDataType string  `json:"side_data_type"`
	Rotation     float64 `json:"rotation"`
}

// Rotation returns the clockwise display rotation in degrees. Newer ffprobe
// builds report a display matrix (counter-clockwise), older ones a rotate tag.
func (s ProbeStream) Rotation() float64 {
	for _, sd := range s.SideDataList {
		if sd.SideDataType == "Display Matrix" {
			return -sd.Rotation
		}
	}
	if v, ok := s.Tags["rotate"]; ok {
		if deg, err := strconv.ParseFloat(v, 64); err == nil {
			return deg
		}
	}
	return 0
}

// FrameRate parses avg_frame_rate ("30000/1001"). Zero when unknown.
func (s ProbeStream) FrameRate() float64 {
	num, den, ok := parseFraction(s.AvgFrameRate)
	if !ok || den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// RunResult is the structured outcome of executing an ffmpeg subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	Stdout     []byte        `json:"-"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// Capabilities reports which tools are installed, as found by the doctor probe.
type Capabilities struct {
	FFmpegPath     string    `json:"ffmpeg_path,omitempty"`
	FFmpegVersion  string    `json:"ffmpeg_version,omitempty"`
	FFprobePath    string    `json:"ffprobe_path,omitempty"`
	FFprobeVersion string    `json:"ffprobe_version,omitempty"`
	HasFFmpeg      bool      `json:"has_ffmpeg"`
	HasFFprobe     bool      `json:"has_ffprobe"`
	HasLibx264     bool      `json:"has_libx264"`
	ProbedAt       time.Time `json:"probed_at"`
}

// CanCompose is true when both probing and encoding are possible.
func (c Capabilities) CanCompose() bool {
	return c.HasFFmpeg && c.HasFFprobe
}
