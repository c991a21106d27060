package api

import (
	"time"

	"github.com/heimdex/heimdex-composer/internal/catalog"
	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State             string               `json:"state"`
	LastError         string               `json:"last_error,omitempty"`
	SourcesCount      int                  `json:"sources_count"`
	CompositionsCount int                  `json:"compositions_count"`
	ExportsRunning    int                  `json:"exports_running"`
	PreviewsOpen      int                  `json:"previews_open"`
	Tools             *ToolsStatusResponse `json:"tools,omitempty"`
}

type ToolsStatusResponse struct {
	HasFFmpeg     bool   `json:"has_ffmpeg"`
	HasFFprobe    bool   `json:"has_ffprobe"`
	HasLibx264    bool   `json:"has_libx264"`
	CanCompose    bool   `json:"can_compose"`
	FFmpegVersion string `json:"ffmpeg_version,omitempty"`
	LastProbeAt   string `json:"last_probe_at,omitempty"`
}

// TimeResponse carries both the exact rational time and its value in
// seconds for clients that only need the latter.
type TimeResponse struct {
	Value   int64   `json:"value"`
	Scale   int64   `json:"scale"`
	Seconds float64 `json:"seconds"`
}

type SizeResponse struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type AddSourceRequest struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name,omitempty"`
}

type SourceResponse struct {
	ID          string       `json:"id"`
	Path        string       `json:"path"`
	DisplayName string       `json:"display_name"`
	Duration    TimeResponse `json:"duration"`
	Width       float64      `json:"width"`
	Height      float64      `json:"height"`
	HasVideo    bool         `json:"has_video"`
	HasAudio    bool         `json:"has_audio"`
	FrameRate   float64      `json:"frame_rate,omitempty"`
	CreatedAt   string       `json:"created_at"`
}

type SourcesResponse struct {
	Sources []SourceResponse `json:"sources"`
}

type ComposeRequest struct {
	Name             string   `json:"name"`
	SourceIDs        []string `json:"source_ids"`
	SkipMissingVideo bool     `json:"skip_missing_video,omitempty"`
}

type SegmentResponse struct {
	SourceID    string       `json:"source_id"`
	TrackID     int          `json:"track_id"`
	Type        string       `json:"type"`
	SourceStart TimeResponse `json:"source_start"`
	Duration    TimeResponse `json:"duration"`
	Offset      TimeResponse `json:"offset"`
}

type CompositionResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	SourceIDs []string          `json:"source_ids"`
	Duration  TimeResponse      `json:"duration"`
	FrameSize SizeResponse      `json:"frame_size"`
	Video     []SegmentResponse `json:"video"`
	Audio     []SegmentResponse `json:"audio"`
	Skipped   []string          `json:"skipped,omitempty"`
	CreatedAt string            `json:"created_at"`
}

type CompositionsResponse struct {
	Compositions []CompositionResponse `json:"compositions"`
}

type ExportRequest struct {
	OutputPath string `json:"output_path"`
}

type EDLRequest struct {
	OutputDir string  `json:"output_dir"`
	FrameRate float64 `json:"frame_rate,omitempty"`
}

type EDLResponse struct {
	Path string `json:"path"`
}

type ExportResponse struct {
	ID               string `json:"id"`
	CompositionID    string `json:"composition_id"`
	OutputPath       string `json:"output_path"`
	Status           string `json:"status"`
	Error            string `json:"error,omitempty"`
	FileReplaceError string `json:"file_replace_error,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
	FinishedAt       string `json:"finished_at,omitempty"`
}

type ExportsResponse struct {
	Exports []ExportResponse `json:"exports"`
}

type PreviewRequest struct {
	ExportID string `json:"export_id"`
	Loop     *bool  `json:"loop,omitempty"`
	Muted    *bool  `json:"muted,omitempty"`
}

type PreviewResponse struct {
	ID        string  `json:"id"`
	ExportID  string  `json:"export_id"`
	Playing   bool    `json:"playing"`
	PositionS float64 `json:"position_s"`
	DurationS float64 `json:"duration_s"`
	Plays     int     `json:"plays"`
	Loop      bool    `json:"loop"`
	Muted     bool    `json:"muted"`
	StreamURL string  `json:"stream_url"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func TimeToResponse(t media.Time) TimeResponse {
	return TimeResponse{Value: t.Value, Scale: t.Scale, Seconds: t.Seconds()}
}

func SourceToResponse(s *catalog.Source) SourceResponse {
	return SourceResponse{
		ID:          s.ID,
		Path:        s.Path,
		DisplayName: s.DisplayName,
		Duration:    TimeToResponse(s.Duration),
		Width:       s.Width,
		Height:      s.Height,
		HasVideo:    s.HasVideo,
		HasAudio:    s.HasAudio,
		FrameRate:   s.FrameRate,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
	}
}

func segmentsToResponse(segs []timeline.Segment) []SegmentResponse {
	out := make([]SegmentResponse, len(segs))
	for i, s := range segs {
		out[i] = SegmentResponse{
			SourceID:    s.SourceID,
			TrackID:     s.TrackID,
			Type:        string(s.Type),
			SourceStart: TimeToResponse(s.SourceRange.Start),
			Duration:    TimeToResponse(s.SourceRange.Duration),
			Offset:      TimeToResponse(s.Offset),
		}
	}
	return out
}

func CompositionToResponse(c *catalog.Composition) CompositionResponse {
	ids := c.SourceIDs
	if ids == nil {
		ids = []string{}
	}
	return CompositionResponse{
		ID:        c.ID,
		Name:      c.Name,
		SourceIDs: ids,
		Duration:  TimeToResponse(c.Duration),
		FrameSize: SizeResponse{Width: c.FrameSize.Width, Height: c.FrameSize.Height},
		Video:     segmentsToResponse(c.Timeline.Video),
		Audio:     segmentsToResponse(c.Timeline.Audio),
		Skipped:   c.Timeline.Skipped,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func ExportToResponse(e *catalog.ExportRecord) ExportResponse {
	resp := ExportResponse{
		ID:               e.ID,
		CompositionID:    e.CompositionID,
		OutputPath:       e.OutputPath,
		Status:           e.Status,
		Error:            e.Error,
		FileReplaceError: e.FileReplaceError,
		CreatedAt:        e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        e.UpdatedAt.Format(time.RFC3339),
	}
	if e.FinishedAt != nil {
		resp.FinishedAt = e.FinishedAt.Format(time.RFC3339)
	}
	return resp
}
