package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

var (
	ErrSourceNotFound      = errors.New("source not found")
	ErrSourceInUse         = errors.New("source is used by a composition")
	ErrNotAFile            = errors.New("path is not a regular file")
	ErrCompositionNotFound = errors.New("composition not found")
	ErrExportNotFound      = errors.New("export not found")
	ErrExportFinished      = errors.New("export already finished")
	ErrExportsPaused       = errors.New("exports are paused")
	ErrInvalidOutput       = errors.New("invalid output path")
)

// Source is a probed clip. Width and Height are the orientation-corrected
// frame size and stay zero for audio-only files.
type Source struct {
	ID          string        `json:"id"`
	Path        string        `json:"path"`
	DisplayName string        `json:"display_name"`
	Duration    media.Time    `json:"duration"`
	Width       float64       `json:"width"`
	Height      float64       `json:"height"`
	HasVideo    bool          `json:"has_video"`
	HasAudio    bool          `json:"has_audio"`
	FrameRate   float64       `json:"frame_rate,omitempty"`
	Tracks      []media.Track `json:"tracks"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Media returns the engine view of the clip.
func (s *Source) Media() media.Source {
	return media.Source{
		ID:       s.ID,
		Path:     s.Path,
		Duration: s.Duration,
		Tracks:   append([]media.Track(nil), s.Tracks...),
	}
}

// Composition is an ordered list of sources and the timeline built from it.
// SourceIDs only lists the sources that made it onto the timeline.
type Composition struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	SourceIDs []string          `json:"source_ids"`
	Duration  media.Time        `json:"duration"`
	FrameSize media.Size        `json:"frame_size"`
	Timeline  timeline.Snapshot `json:"timeline"`
	CreatedAt time.Time         `json:"created_at"`
}

const (
	ExportStatusPending   = "pending"
	ExportStatusRunning   = "running"
	ExportStatusSucceeded = "succeeded"
	ExportStatusFailed    = "failed"
	ExportStatusCancelled = "cancelled"
)

type ExportRecord struct {
	ID               string     `json:"id"`
	CompositionID    string     `json:"composition_id"`
	OutputPath       string     `json:"output_path"`
	Status           string     `json:"status"`
	Error            string     `json:"error,omitempty"`
	FileReplaceError string     `json:"file_replace_error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

func (e *ExportRecord) IsTerminal() bool {
	switch e.Status {
	case ExportStatusSucceeded, ExportStatusFailed, ExportStatusCancelled:
		return true
	}
	return false
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func NewID() string {
	return uuid.NewString()
}
