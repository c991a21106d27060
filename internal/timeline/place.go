// Package timeline composes ordered media sources into a single timeline of
// time-placed video and audio segments.
package timeline

import (
	"errors"
	"fmt"

	"github.com/heimdex/heimdex-composer/internal/media"
)

var (
	ErrMissingVideoTrack  = errors.New("source has no video track")
	ErrTrackTypeMismatch  = errors.New("track type does not match destination track")
	ErrNonMonotonicOffset = errors.New("destination offset is before the timeline cursor")
	ErrInvalidDuration    = errors.New("source range duration must be positive")
	ErrNoSources          = errors.New("no sources to compose")
)

// Segment is one placed piece of a source track on the composed timeline.
type Segment struct {
	SourceID    string          `json:"source_id"`
	TrackID     int             `json:"track_id"`
	Type        media.Type      `json:"type"`
	SourceRange media.TimeRange `json:"source_range"`
	Offset      media.Time      `json:"offset"`
}

// End is the destination time right after the segment.
func (s Segment) End() (media.Time, error) {
	return s.Offset.Add(s.SourceRange.Duration)
}

// Place maps srcRange of a source track onto a destination track of type
// dest at offset. cursor is the timeline's current end; placing before it
// would reorder content and is rejected. Place has no side effects.
func Place(sourceID string, track media.Track, dest media.Type, srcRange media.TimeRange, offset, cursor media.Time) (Segment, error) {
	if track.Type != dest {
		return Segment{}, fmt.Errorf("%w: %s track into %s track", ErrTrackTypeMismatch, track.Type, dest)
	}
	if !srcRange.Duration.IsPositive() {
		return Segment{}, fmt.Errorf("%w: got %s", ErrInvalidDuration, srcRange.Duration)
	}
	if !srcRange.Start.Valid() || !offset.Valid() || !cursor.Valid() {
		return Segment{}, media.ErrInvalidTimescale
	}
	if offset.Before(cursor) {
		return Segment{}, fmt.Errorf("%w: offset %s, cursor %s", ErrNonMonotonicOffset, offset, cursor)
	}

	return Segment{
		SourceID:    sourceID,
		TrackID:     track.ID,
		Type:        dest,
		SourceRange: srcRange,
		Offset:      offset,
	}, nil
}
