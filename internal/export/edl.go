package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

// ClipInfo names a source in an EDL.
type ClipInfo struct {
	Name string
	Path string
}

// GenerateEDL writes the composed timeline as a CMX3600 edit decision list.
// Video segments become V events, audio segments A events, each with the
// source range as source in/out and the timeline offset as record in/out.
func GenerateEDL(tl *timeline.Timeline, clips map[string]ClipInfo, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	event := 0
	write := func(seg timeline.Segment, channel string) {
		event++
		srcEnd, _ := seg.SourceRange.End()
		recEnd, _ := seg.End()

		info, ok := clips[seg.SourceID]
		if !ok || info.Name == "" {
			info.Name = seg.SourceID
		}
		reel := "AX"

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", event, reel, channel,
				timecode(seg.SourceRange.Start, fps), timecode(srcEnd, fps),
				timecode(seg.Offset, fps), timecode(recEnd, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", info.Name),
		)
		if info.Path != "" {
			lines = append(lines, fmt.Sprintf("* MEDIA PATH:  %s", info.Path))
		}
	}

	for _, seg := range tl.VideoSegments() {
		write(seg, "V")
	}
	for _, seg := range tl.AudioSegments() {
		write(seg, "A")
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// timecode renders rational time as HH:MM:SS:FF, rounding to the nearest frame.
func timecode(t media.Time, fps int) string {
	totalFrames := 0
	if t.Valid() {
		totalFrames = int(math.Round(float64(t.Value) * float64(fps) / float64(t.Scale)))
	}
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
