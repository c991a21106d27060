package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/heimdex/heimdex-composer/internal/media"
)

const portraitProbeJSON = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "h264",
      "codec_type": "video",
      "width": 1920,
      "height": 1080,
      "time_base": "1/600",
      "duration_ts": 1201,
      "duration": "2.001667",
      "avg_frame_rate": "30/1",
      "side_data_list": [{"side_data_type": "Display Matrix", "rotation": -90}]
    },
    {
      "index": 1,
      "codec_name": "aac",
      "codec_type": "audio",
      "time_base": "1/44100",
      "duration_ts": 88200,
      "duration": "2.000000",
      "sample_rate": "44100"
    },
    {
      "index": 2,
      "codec_name": "bin_data",
      "codec_type": "data",
      "time_base": "1/600"
    }
  ],
  "format": {
    "filename": "/clips/a.mov",
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "duration": "2.001667"
  }
}`

func mustProbe(t *testing.T, s string) *ProbeResult {
	t.Helper()
	var p ProbeResult
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		t.Fatalf("unmarshal probe fixture: %v", err)
	}
	return &p
}

func TestSourceFromProbe_Portrait(t *testing.T) {
	src, err := SourceFromProbe("a", "/clips/a.mov", mustProbe(t, portraitProbeJSON))
	if err != nil {
		t.Fatalf("SourceFromProbe() error = %v", err)
	}

	if len(src.Tracks) != 2 {
		t.Fatalf("tracks = %d, want 2 (data stream ignored)", len(src.Tracks))
	}
	if !src.HasVideoTrack() || !src.HasAudioTrack() {
		t.Fatalf("source = %+v, want video and audio", src)
	}
	if !src.Duration.Equal(media.NewTime(2001667, 1000000)) {
		t.Errorf("duration = %s, want 2.001667s exactly", src.Duration)
	}

	size, _ := src.FrameSize()
	if size != (media.Size{Width: 1080, Height: 1920}) {
		t.Errorf("frame size = %v, want 1080x1920", size)
	}

	v, _ := src.FirstTrack(media.TypeVideo)
	if !v.TimeRange.Duration.Equal(media.NewTime(1201, 600)) {
		t.Errorf("video track duration = %s, want 1201/600", v.TimeRange.Duration)
	}
	a, _ := src.FirstTrack(media.TypeAudio)
	if !a.TimeRange.Duration.Equal(media.NewTime(2, 1)) {
		t.Errorf("audio track duration = %s, want 2s", a.TimeRange.Duration)
	}
}

func TestSourceFromProbe_AudioOnlyAndCoverArt(t *testing.T) {
	probe := &ProbeResult{
		Format: ProbeFormat{Duration: "3.5"},
		Streams: []ProbeStream{
			{Index: 0, CodecType: "audio", CodecName: "mp3"},
			{Index: 1, CodecType: "video", CodecName: "mjpeg", Width: 500, Height: 500, Disposition: map[string]int{"attached_pic": 1}},
		},
	}

	src, err := SourceFromProbe("song", "/x.mp3", probe)
	if err != nil {
		t.Fatalf("SourceFromProbe() error = %v", err)
	}
	if src.HasVideoTrack() {
		t.Error("cover art should not count as a video track")
	}
	if !src.Duration.Equal(media.NewTime(7, 2)) {
		t.Errorf("duration = %s, want 7/2", src.Duration)
	}
}

func TestSourceFromProbe_FallsBackToVideoDuration(t *testing.T) {
	probe := &ProbeResult{
		Format: ProbeFormat{Duration: "N/A"},
		Streams: []ProbeStream{
			{Index: 0, CodecType: "video", Width: 640, Height: 480, TimeBase: "1/90000", DurationTS: 180000},
		},
	}

	src, err := SourceFromProbe("raw", "/x.h264", probe)
	if err != nil {
		t.Fatalf("SourceFromProbe() error = %v", err)
	}
	if !src.Duration.Equal(media.NewTime(2, 1)) {
		t.Errorf("duration = %s, want 2s", src.Duration)
	}
}

func TestSourceFromProbe_NoDuration(t *testing.T) {
	probe := &ProbeResult{Streams: []ProbeStream{{CodecType: "video", Width: 10, Height: 10}}}
	if _, err := SourceFromProbe("x", "/x", probe); !errors.Is(err, ErrNoDuration) {
		t.Fatalf("SourceFromProbe() error = %v, want ErrNoDuration", err)
	}
}

func TestParseDecimalTime(t *testing.T) {
	tests := []struct {
		in     string
		want   media.Time
		wantOK bool
	}{
		{"2.002000", media.NewTime(1001, 500), true},
		{"10", media.NewTime(10, 1), true},
		{"0.5", media.NewTime(1, 2), true},
		{"-1.25", media.NewTime(-5, 4), true},
		{".25", media.NewTime(1, 4), true},
		{"", media.Time{}, false},
		{"N/A", media.Time{}, false},
		{"abc", media.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseDecimalTime(tt.in)
		if ok != tt.wantOK {
			t.Errorf("ParseDecimalTime(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParseDecimalTime(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestProbeStream_Rotation(t *testing.T) {
	tests := []struct {
		name   string
		stream ProbeStream
		want   float64
	}{
		{"none", ProbeStream{}, 0},
		{"display matrix", ProbeStream{SideDataList: []SideData{{SideDataType: "Display Matrix", Rotation: -90}}}, 90},
		{"rotate tag", ProbeStream{Tags: map[string]string{"rotate": "270"}}, 270},
		{"bad tag", ProbeStream{Tags: map[string]string{"rotate": "sideways"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stream.Rotation(); got != tt.want {
				t.Errorf("Rotation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProbeStream_FrameRate(t *testing.T) {
	s := ProbeStream{AvgFrameRate: "30000/1001"}
	if got := s.FrameRate(); got < 29.96 || got > 29.98 {
		t.Errorf("FrameRate() = %v, want ~29.97", got)
	}
	if (ProbeStream{AvgFrameRate: "0/0"}).FrameRate() != 0 {
		t.Error("0/0 frame rate should be 0")
	}
}

func TestProbeSource_UsesFFmpeg(t *testing.T) {
	ff := &fakeFFmpeg{probe: mustProbe(t, portraitProbeJSON)}

	src, probe, err := ProbeSource(context.Background(), ff, "id-1", "/clips/a.mov")
	if err != nil {
		t.Fatalf("ProbeSource() error = %v", err)
	}
	if probe == nil || src.ID != "id-1" || src.Path != "/clips/a.mov" {
		t.Errorf("ProbeSource() = %+v, %v", src, probe)
	}
	if ff.probeCalls.Load() != 1 {
		t.Errorf("probe called %d times, want 1", ff.probeCalls.Load())
	}
}
