package media

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromote_UsesLeastCommonMultiple(t *testing.T) {
	a, b, err := Promote(NewTime(1, 600), NewTime(1, 44100))
	require.NoError(t, err)

	assert.Equal(t, int64(88200), a.Scale)
	assert.Equal(t, int64(88200), b.Scale)
	assert.Equal(t, int64(147), a.Value)
	assert.Equal(t, int64(2), b.Value)
}

func TestPromote_InvalidScale(t *testing.T) {
	_, _, err := Promote(NewTime(1, 0), NewTime(1, 600))
	assert.ErrorIs(t, err, ErrInvalidTimescale)
}

func TestAdd_MixedTimescalesIsExact(t *testing.T) {
	// 1/3 s a thousand times must land on exactly 1000/3 s.
	sum := Zero
	third := NewTime(1, 3)
	frame := NewTime(1001, 30000)
	var err error
	for i := 0; i < 1000; i++ {
		sum, err = sum.Add(third)
		require.NoError(t, err)
		sum, err = sum.Add(frame)
		require.NoError(t, err)
	}

	want, err := NewTime(1000, 3).Add(NewTime(1001*1000, 30000))
	require.NoError(t, err)
	assert.True(t, sum.Equal(want), "sum %s != %s", sum, want)
}

func TestSub(t *testing.T) {
	got, err := NewTime(5, 1).Sub(NewTime(1200, 600))
	require.NoError(t, err)
	assert.True(t, got.Equal(NewTime(3, 1)))
}

func TestAdd_ReducesToLowestTerms(t *testing.T) {
	const p, q = 1_000_000_007, 1_000_000_009

	sum, err := NewTime(10*p, p).Add(NewTime(5*q, q))
	require.NoError(t, err)
	assert.Equal(t, NewTime(15, 1), sum)

	sum, err = NewTime(1, 600).Add(NewTime(599, 600))
	require.NoError(t, err)
	assert.Equal(t, NewTime(1, 1), sum)
}

func TestArithmetic_Overflow(t *testing.T) {
	const p, q = 1_000_000_007, 1_000_000_009
	a := NewTime(10*p+1, p)
	b := NewTime(5*q+1, q)

	_, err := a.Add(b)
	assert.ErrorIs(t, err, ErrTimeOverflow)

	_, err = a.Sub(b)
	assert.ErrorIs(t, err, ErrTimeOverflow)

	_, _, err = Promote(a, b)
	assert.ErrorIs(t, err, ErrTimeOverflow)

	_, err = NewTime(math.MaxInt64, 1).Add(NewTime(1, 1))
	assert.ErrorIs(t, err, ErrTimeOverflow)

	_, err = NewTime(math.MinInt64+1, 1).Sub(NewTime(2, 1))
	assert.ErrorIs(t, err, ErrTimeOverflow)
}

func TestCompare_BeyondCommonScale(t *testing.T) {
	const p, q = 1_000_000_007, 1_000_000_009
	a := NewTime(10*p+1, p)
	b := NewTime(5*q+1, q)

	assert.Equal(t, 1, a.Compare(b))
	assert.Equal(t, -1, b.Compare(a))
	assert.True(t, a.Equal(a))
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Time
		want int
	}{
		{"equal across scales", NewTime(2, 1), NewTime(1200, 600), 0},
		{"less", NewTime(1, 2), NewTime(2, 3), -1},
		{"greater", NewTime(48001, 48000), NewTime(1, 1), 1},
		{"invalid before valid", NewTime(5, 0), NewTime(0, 1), -1},
		{"both invalid", NewTime(5, 0), NewTime(3, 0), 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Compare(tc.b))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, NewTime(5, 2), NewTime(1500, 600).Normalize())
	assert.Equal(t, Zero, NewTime(0, 90000).Normalize())
	assert.Equal(t, NewTime(-1, 3), NewTime(-200, 600).Normalize())
}

func TestTimeDuration(t *testing.T) {
	assert.Equal(t, 5002*time.Millisecond, NewTime(5002, 1000).Duration())
	assert.Equal(t, 1001*time.Second/30000, NewTime(1001, 30000).Duration())
	assert.Equal(t, time.Duration(0), NewTime(5, 0).Duration())
}

func TestTimeFromSeconds(t *testing.T) {
	assert.Equal(t, NewTime(1200, 600), TimeFromSeconds(2, 600))
	assert.Equal(t, NewTime(1335, 600), TimeFromSeconds(2.225, 0))
	assert.InDelta(t, 2.225, TimeFromSeconds(2.225, 600).Seconds(), 1e-9)
}

func TestTimeRange_End(t *testing.T) {
	end, err := TimeRange{Start: NewTime(2, 1), Duration: NewTime(1500, 600)}.End()
	require.NoError(t, err)
	assert.True(t, end.Equal(NewTime(9, 2)))
}

func TestRotation_OrientedSize(t *testing.T) {
	natural := Size{Width: 1920, Height: 1080}

	tests := []struct {
		degrees float64
		want    Size
	}{
		{0, Size{Width: 1920, Height: 1080}},
		{90, Size{Width: 1080, Height: 1920}},
		{180, Size{Width: 1920, Height: 1080}},
		{-90, Size{Width: 1080, Height: 1920}},
		{270, Size{Width: 1080, Height: 1920}},
	}

	for _, tc := range tests {
		got := Rotation(tc.degrees).Apply(natural)
		assert.Equal(t, tc.want, got, "rotation %v", tc.degrees)
	}
}

func TestTransform_ZeroIsIdentity(t *testing.T) {
	assert.Equal(t, Size{Width: 640, Height: 480}, Transform{}.Apply(Size{Width: 640, Height: 480}))
}

func TestSource_Tracks(t *testing.T) {
	src := Source{
		ID:       "a",
		Duration: NewTime(2, 1),
		Tracks: []Track{
			{ID: 2, Type: TypeAudio},
			{ID: 1, Type: TypeVideo, NaturalSize: Size{Width: 1280, Height: 720}, Transform: Rotation(90)},
		},
	}

	assert.True(t, src.HasVideoTrack())
	assert.True(t, src.HasAudioTrack())

	size, ok := src.FrameSize()
	require.True(t, ok)
	assert.Equal(t, Size{Width: 720, Height: 1280}, size)

	noVideo := Source{ID: "b", Tracks: []Track{{Type: TypeAudio}}}
	_, ok = noVideo.FrameSize()
	assert.False(t, ok)
	assert.False(t, noVideo.HasVideoTrack())
}
