package timeline

import (
	"errors"
	"testing"

	"github.com/heimdex/heimdex-composer/internal/media"
)

func TestPlace(t *testing.T) {
	full := media.TimeRange{Start: media.Zero, Duration: media.NewTime(2, 1)}

	tests := []struct {
		name    string
		track   media.Track
		dest    media.Type
		rng     media.TimeRange
		offset  media.Time
		cursor  media.Time
		wantErr error
	}{
		{
			name:   "video at cursor",
			track:  media.Track{Type: media.TypeVideo},
			dest:   media.TypeVideo,
			rng:    full,
			offset: media.NewTime(3, 1),
			cursor: media.NewTime(1800, 600),
		},
		{
			name:   "offset after cursor",
			track:  media.Track{Type: media.TypeAudio},
			dest:   media.TypeAudio,
			rng:    full,
			offset: media.NewTime(48000*4, 48000),
			cursor: media.NewTime(3, 1),
		},
		{
			name:    "audio into video",
			track:   media.Track{Type: media.TypeAudio},
			dest:    media.TypeVideo,
			rng:     full,
			offset:  media.Zero,
			cursor:  media.Zero,
			wantErr: ErrTrackTypeMismatch,
		},
		{
			name:    "video into audio",
			track:   media.Track{Type: media.TypeVideo},
			dest:    media.TypeAudio,
			rng:     full,
			offset:  media.Zero,
			cursor:  media.Zero,
			wantErr: ErrTrackTypeMismatch,
		},
		{
			name:    "zero duration",
			track:   media.Track{Type: media.TypeVideo},
			dest:    media.TypeVideo,
			rng:     media.TimeRange{Start: media.Zero, Duration: media.NewTime(0, 600)},
			offset:  media.Zero,
			cursor:  media.Zero,
			wantErr: ErrInvalidDuration,
		},
		{
			name:    "negative duration",
			track:   media.Track{Type: media.TypeVideo},
			dest:    media.TypeVideo,
			rng:     media.TimeRange{Start: media.Zero, Duration: media.NewTime(-5, 600)},
			offset:  media.Zero,
			cursor:  media.Zero,
			wantErr: ErrInvalidDuration,
		},
		{
			name:    "offset before cursor across timescales",
			track:   media.Track{Type: media.TypeVideo},
			dest:    media.TypeVideo,
			rng:     full,
			offset:  media.NewTime(1199, 600),
			cursor:  media.NewTime(2, 1),
			wantErr: ErrNonMonotonicOffset,
		},
		{
			name:    "invalid timescale",
			track:   media.Track{Type: media.TypeVideo},
			dest:    media.TypeVideo,
			rng:     full,
			offset:  media.NewTime(1, 0),
			cursor:  media.Zero,
			wantErr: media.ErrInvalidTimescale,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seg, err := Place("src", tc.track, tc.dest, tc.rng, tc.offset, tc.cursor)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Place() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Place() unexpected error: %v", err)
			}
			if seg.SourceID != "src" || seg.Type != tc.dest || !seg.Offset.Equal(tc.offset) {
				t.Errorf("Place() = %+v", seg)
			}
		})
	}
}
