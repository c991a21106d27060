package timeline

import (
	"fmt"

	"github.com/heimdex/heimdex-composer/internal/media"
)

// Timeline is the composed destination built by appending sources in order.
// The zero value is an empty timeline ready for Append. It is not safe for
// concurrent use; build it on one goroutine and hand it to the exporter only
// once it is complete.
type Timeline struct {
	duration     media.Time
	frameSize    media.Size
	frameSizeSet bool
	video        []Segment
	audio        []Segment
	skipped      []string
}

func New() *Timeline {
	return &Timeline{duration: media.Zero}
}

// Append places the whole of src at the end of the timeline.
//
// The call is all or nothing: on error nothing is committed. The first
// video-bearing source fixes the frame size; later sources are placed
// without rescaling. A source without audio leaves a silent gap of its
// full duration on the audio track.
func (t *Timeline) Append(src media.Source) error {
	video, ok := src.FirstTrack(media.TypeVideo)
	if !ok {
		return fmt.Errorf("%w: source %q", ErrMissingVideoTrack, src.ID)
	}

	cursor := t.cursor()
	srcRange := media.TimeRange{Start: media.Zero, Duration: src.Duration}

	vseg, err := Place(src.ID, video, media.TypeVideo, srcRange, cursor, cursor)
	if err != nil {
		return fmt.Errorf("place video of %q: %w", src.ID, err)
	}

	var aseg *Segment
	if audio, ok := src.FirstTrack(media.TypeAudio); ok {
		seg, err := Place(src.ID, audio, media.TypeAudio, srcRange, cursor, cursor)
		if err != nil {
			return fmt.Errorf("place audio of %q: %w", src.ID, err)
		}
		aseg = &seg
	}

	end, err := cursor.Add(src.Duration)
	if err != nil {
		return fmt.Errorf("advance cursor past %q: %w", src.ID, err)
	}

	if !t.frameSizeSet {
		t.frameSize = video.OrientedSize()
		t.frameSizeSet = true
	}
	t.video = append(t.video, vseg)
	if aseg != nil {
		t.audio = append(t.audio, *aseg)
	}
	t.duration = end
	return nil
}

// Duration is the composed length, which is also the insertion cursor.
func (t *Timeline) Duration() media.Time {
	return t.cursor()
}

func (t *Timeline) cursor() media.Time {
	if !t.duration.Valid() {
		return media.Zero
	}
	return t.duration
}

// FrameSize reports the canonical render size and whether it has been set.
func (t *Timeline) FrameSize() (media.Size, bool) {
	return t.frameSize, t.frameSizeSet
}

func (t *Timeline) VideoSegments() []Segment {
	return append([]Segment(nil), t.video...)
}

func (t *Timeline) AudioSegments() []Segment {
	return append([]Segment(nil), t.audio...)
}

func (t *Timeline) Len() int {
	return len(t.video)
}

func (t *Timeline) IsEmpty() bool {
	return len(t.video) == 0
}

// Skipped lists source IDs dropped by Build with SkipMissingVideo.
func (t *Timeline) Skipped() []string {
	return append([]string(nil), t.skipped...)
}

// AudioGaps returns the ranges of the composed timeline that have no audio
// segment. Exporters fill them with silence.
func (t *Timeline) AudioGaps() ([]media.TimeRange, error) {
	var gaps []media.TimeRange
	pos := media.Zero
	for _, seg := range t.audio {
		if pos.Before(seg.Offset) {
			d, err := seg.Offset.Sub(pos)
			if err != nil {
				return nil, err
			}
			gaps = append(gaps, media.TimeRange{Start: pos, Duration: d})
		}
		end, err := seg.End()
		if err != nil {
			return nil, err
		}
		pos = end
	}
	if end := t.cursor(); pos.Before(end) {
		d, err := end.Sub(pos)
		if err != nil {
			return nil, err
		}
		gaps = append(gaps, media.TimeRange{Start: pos, Duration: d})
	}
	return gaps, nil
}

// Snapshot is a detached copy of the timeline state, used for persistence
// and API responses.
type Snapshot struct {
	Duration     media.Time `json:"duration"`
	FrameSize    media.Size `json:"frame_size"`
	FrameSizeSet bool       `json:"frame_size_set"`
	Video        []Segment  `json:"video"`
	Audio        []Segment  `json:"audio"`
	Skipped      []string   `json:"skipped,omitempty"`
}

func (t *Timeline) Snapshot() Snapshot {
	return Snapshot{
		Duration:     t.cursor(),
		FrameSize:    t.frameSize,
		FrameSizeSet: t.frameSizeSet,
		Video:        t.VideoSegments(),
		Audio:        t.AudioSegments(),
		Skipped:      t.Skipped(),
	}
}

// BuildOption tunes Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	skipMissingVideo bool
}

// SkipMissingVideo makes Build drop sources without a video track instead of
// failing. Dropped IDs are reported by Timeline.Skipped.
func SkipMissingVideo() BuildOption {
	return func(o *buildOptions) { o.skipMissingVideo = true }
}

// Build appends sources in order and returns the composed timeline.
func Build(sources []media.Source, opts ...BuildOption) (*Timeline, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	t := New()
	for i, src := range sources {
		if o.skipMissingVideo && !src.HasVideoTrack() {
			t.skipped = append(t.skipped, src.ID)
			continue
		}
		if err := t.Append(src); err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
	}

	if t.IsEmpty() {
		return nil, ErrNoSources
	}
	return t, nil
}
