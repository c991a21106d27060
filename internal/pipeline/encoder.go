package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sort"
	"strings"

	"github.com/heimdex/heimdex-composer/internal/logging"
	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

// Fixed render settings: the highest quality libx264 preset into a
// QuickTime container, regardless of the output file extension.
const (
	videoCodec      = "libx264"
	videoPreset     = "veryslow"
	videoCRF        = "16"
	audioCodec      = "aac"
	audioBitrate    = "256k"
	audioSampleRate = 48000
	containerFormat = "mov"
)

// Encoder renders a composed timeline with ffmpeg. It satisfies
// export.Encoder.
type Encoder struct {
	ff     FFmpeg
	paths  map[string]string
	logger *slog.Logger
}

// NewEncoder returns an encoder that resolves timeline source IDs to files
// through paths.
func NewEncoder(ff FFmpeg, paths map[string]string, logger *slog.Logger) *Encoder {
	return &Encoder{ff: ff, paths: paths, logger: logging.WithComponent(logger, "encoder")}
}

func (e *Encoder) Encode(ctx context.Context, tl *timeline.Timeline, outputPath string) error {
	args, err := e.BuildArgs(tl, outputPath)
	if err != nil {
		return err
	}

	res, err := e.ff.Run(ctx, args...)
	if err != nil {
		return err
	}
	if !res.IsSuccess() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg exited %d: %s", res.ExitCode, truncate(res.StderrTail, 512))
	}

	e.logger.Info("render complete", "output", logging.SanitizePath(outputPath), "duration_ms", res.Duration.Milliseconds())
	return nil
}

// audioPiece is either a source audio segment or a silent gap.
type audioPiece struct {
	start media.Time
	input int // -1 for silence
	seg   timeline.Segment
	gap   media.TimeRange
}

// BuildArgs assembles the ffmpeg command line. Each video segment becomes one
// input, and every segment reads the stream whose index is its TrackID.
// Frames are placed at the top-left of the canonical canvas without
// scaling: larger frames are cropped, smaller ones padded. Audio-less ranges
// are filled with generated silence.
func (e *Encoder) BuildArgs(tl *timeline.Timeline, outputPath string) ([]string, error) {
	video := tl.VideoSegments()
	if len(video) == 0 {
		return nil, fmt.Errorf("timeline has no video segments")
	}
	size, _ := tl.FrameSize()
	w, h := evenDim(size.Width), evenDim(size.Height)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("invalid canvas size %s", size)
	}

	args := []string{"-hide_banner", "-nostdin", "-y"}
	filters := make([]string, 0, len(video)*2+2)

	for i, seg := range video {
		path, ok := e.paths[seg.SourceID]
		if !ok || path == "" {
			return nil, fmt.Errorf("no file for source %q", seg.SourceID)
		}
		args = append(args, "-i", path)
		filters = append(filters, fmt.Sprintf(
			"[%d:%d]trim=start=%s:duration=%s,setpts=PTS-STARTPTS,crop=w='min(iw,%d)':h='min(ih,%d)':x=0:y=0,pad=%d:%d:0:0:black,setsar=1,format=yuv420p[v%d]",
			i, seg.TrackID, secondsArg(seg.SourceRange.Start), secondsArg(seg.SourceRange.Duration), w, h, w, h, i))
	}

	pieces, err := audioPieces(tl, video)
	if err != nil {
		return nil, err
	}
	for i, p := range pieces {
		if p.input < 0 {
			filters = append(filters, fmt.Sprintf(
				"anullsrc=r=%d:cl=stereo,atrim=duration=%s[a%d]",
				audioSampleRate, secondsArg(p.gap.Duration), i))
			continue
		}
		filters = append(filters, fmt.Sprintf(
			"[%d:%d]atrim=start=%s:duration=%s,asetpts=PTS-STARTPTS,aformat=sample_rates=%d:channel_layouts=stereo[a%d]",
			p.input, p.seg.TrackID, secondsArg(p.seg.SourceRange.Start), secondsArg(p.seg.SourceRange.Duration), audioSampleRate, i))
	}

	var vin, ain strings.Builder
	for i := range video {
		fmt.Fprintf(&vin, "[v%d]", i)
	}
	for i := range pieces {
		fmt.Fprintf(&ain, "[a%d]", i)
	}
	filters = append(filters,
		fmt.Sprintf("%sconcat=n=%d:v=1:a=0[vout]", vin.String(), len(video)),
		fmt.Sprintf("%sconcat=n=%d:v=0:a=1[aout]", ain.String(), len(pieces)),
	)

	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:v", videoCodec,
		"-preset", videoPreset,
		"-crf", videoCRF,
		"-pix_fmt", "yuv420p",
		"-c:a", audioCodec,
		"-b:a", audioBitrate,
		"-movflags", "+faststart",
		"-f", containerFormat,
		outputPath,
	)
	return args, nil
}

func audioPieces(tl *timeline.Timeline, video []timeline.Segment) ([]audioPiece, error) {
	var pieces []audioPiece
	for _, seg := range tl.AudioSegments() {
		input := -1
		for i, v := range video {
			if v.SourceID == seg.SourceID && v.Offset.Equal(seg.Offset) {
				input = i
				break
			}
		}
		if input < 0 {
			return nil, fmt.Errorf("audio segment of %q has no matching video input", seg.SourceID)
		}
		pieces = append(pieces, audioPiece{start: seg.Offset, input: input, seg: seg})
	}

	gaps, err := tl.AudioGaps()
	if err != nil {
		return nil, err
	}
	for _, g := range gaps {
		pieces = append(pieces, audioPiece{start: g.Start, input: -1, gap: g})
	}

	sort.SliceStable(pieces, func(i, j int) bool {
		return pieces[i].start.Before(pieces[j].start)
	})
	return pieces, nil
}

// secondsArg renders t in seconds rounded to the nearest microsecond, the
// resolution ffmpeg keeps for duration options.
func secondsArg(t media.Time) string {
	if !t.Valid() {
		return "0.000000"
	}
	return new(big.Rat).SetFrac64(t.Value, t.Scale).FloatString(6)
}

func evenDim(v float64) int {
	n := int(math.Round(v))
	if n%2 == 1 {
		n++
	}
	return n
}
