package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/heimdex/heimdex-composer/internal/media"
)

var ErrNoDuration = errors.New("media has no usable duration")

// ProbeSource probes filePath and converts the result into a media.Source.
func ProbeSource(ctx context.Context, ff FFmpeg, id, filePath string) (media.Source, *ProbeResult, error) {
	probe, err := ff.Probe(ctx, filePath)
	if err != nil {
		return media.Source{}, nil, err
	}
	src, err := SourceFromProbe(id, filePath, probe)
	if err != nil {
		return media.Source{}, probe, err
	}
	return src, probe, nil
}

// SourceFromProbe maps ffprobe output onto the engine's source description.
// The clip duration is the container duration; when the container does not
// report one, the first video stream's duration is used.
func SourceFromProbe(id, filePath string, probe *ProbeResult) (media.Source, error) {
	if probe == nil {
		return media.Source{}, fmt.Errorf("nil probe result for %s", id)
	}

	src := media.Source{ID: id, Path: filePath}

	for _, s := range probe.Streams {
		var typ media.Type
		switch s.CodecType {
		case "video":
			// Cover art is reported as a single-frame video stream.
			if s.Disposition["attached_pic"] == 1 {
				continue
			}
			typ = media.TypeVideo
		case "audio":
			typ = media.TypeAudio
		default:
			continue
		}

		track := media.Track{
			ID:   s.Index,
			Type: typ,
		}
		if typ == media.TypeVideo {
			track.NaturalSize = media.Size{Width: float64(s.Width), Height: float64(s.Height)}
			track.Transform = media.Rotation(s.Rotation())
		}
		if d, ok := streamDuration(s); ok {
			track.TimeRange = media.TimeRange{Start: media.Zero, Duration: d}
		}
		src.Tracks = append(src.Tracks, track)
	}

	if d, ok := ParseDecimalTime(probe.Format.Duration); ok && d.IsPositive() {
		src.Duration = d
	} else if v, ok := src.FirstTrack(media.TypeVideo); ok && v.TimeRange.Duration.IsPositive() {
		src.Duration = v.TimeRange.Duration
	} else {
		return media.Source{}, fmt.Errorf("%w: %s", ErrNoDuration, id)
	}

	return src, nil
}

// streamDuration prefers the exact duration_ts in the stream time base.
func streamDuration(s ProbeStream) (media.Time, bool) {
	if num, den, ok := parseFraction(s.TimeBase); ok && s.DurationTS > 0 && num > 0 && den > 0 {
		return media.NewTime(s.DurationTS*num, den).Normalize(), true
	}
	return ParseDecimalTime(s.Duration)
}

// ParseDecimalTime converts a decimal seconds string such as "2.002000"
// into exact rational time.
func ParseDecimalTime(s string) (media.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return media.Time{}, false
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 9 {
		frac = frac[:9]
	}
	digits := whole + frac
	if digits == "" {
		return media.Time{}, false
	}
	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return media.Time{}, false
	}
	scale := int64(1)
	for range frac {
		scale *= 10
	}
	if neg {
		value = -value
	}
	return media.NewTime(value, scale).Normalize(), true
}

func parseFraction(s string) (num, den int64, ok bool) {
	n, d, found := strings.Cut(s, "/")
	if !found {
		return 0, 0, false
	}
	num, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	den, err = strconv.ParseInt(strings.TrimSpace(d), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return num, den, true
}
