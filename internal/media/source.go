package media

import (
	"fmt"
	"math"
)

// Type is the media kind of a track.
type Type string

const (
	TypeVideo Type = "video"
	TypeAudio Type = "audio"
)

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

func (s Size) String() string {
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

// Transform is the affine display matrix stored with a video track:
//
//	| A  B  0 |
//	| C  D  0 |
//	| TX TY 1 |
type Transform struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	TX float64 `json:"tx"`
	TY float64 `json:"ty"`
}

var Identity = Transform{A: 1, D: 1}

// Rotation returns the display matrix for a clockwise capture rotation.
// Right angles are exact.
func Rotation(degrees float64) Transform {
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}
	switch d {
	case 0:
		return Identity
	case 90:
		return Transform{A: 0, B: 1, C: -1, D: 0}
	case 180:
		return Transform{A: -1, B: 0, C: 0, D: -1}
	case 270:
		return Transform{A: 0, B: -1, C: 1, D: 0}
	}
	rad := d * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	return Transform{A: cos, B: sin, C: -sin, D: cos}
}

func (t Transform) IsZero() bool {
	return t == Transform{}
}

// Apply maps a natural size through the transform and returns the absolute
// display width and height.
func (t Transform) Apply(s Size) Size {
	if t.IsZero() {
		t = Identity
	}
	w := t.A*s.Width + t.C*s.Height
	h := t.B*s.Width + t.D*s.Height
	return Size{Width: math.Abs(w), Height: math.Abs(h)}
}

// Track is one media stream of a source.
type Track struct {
	ID          int       `json:"id"`
	Type        Type      `json:"type"`
	NaturalSize Size      `json:"natural_size"`
	Transform   Transform `json:"transform"`
	TimeRange   TimeRange `json:"time_range"`
}

// OrientedSize is the display-correct size of the track.
func (t Track) OrientedSize() Size {
	return t.Transform.Apply(t.NaturalSize)
}

// Source is a read-only description of one input clip.
type Source struct {
	ID       string  `json:"id"`
	Path     string  `json:"path,omitempty"`
	Duration Time    `json:"duration"`
	Tracks   []Track `json:"tracks"`
}

// FirstTrack returns the first track of the given type.
func (s Source) FirstTrack(typ Type) (Track, bool) {
	for _, t := range s.Tracks {
		if t.Type == typ {
			return t, true
		}
	}
	return Track{}, false
}

func (s Source) HasVideoTrack() bool {
	_, ok := s.FirstTrack(TypeVideo)
	return ok
}

func (s Source) HasAudioTrack() bool {
	_, ok := s.FirstTrack(TypeAudio)
	return ok
}

// FrameSize returns the orientation-corrected size of the first video track.
func (s Source) FrameSize() (Size, bool) {
	v, ok := s.FirstTrack(TypeVideo)
	if !ok {
		return Size{}, false
	}
	return v.OrientedSize(), true
}
