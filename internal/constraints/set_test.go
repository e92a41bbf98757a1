package constraints

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSet_Required(t *testing.T) {
	s := NewSet(MediaTrackConstraintSet{
		Width:      Long(640),
		Height:     LongRange(240, 1080),
		FrameRate:  ExactDouble(30),
		FacingMode: Strings("user"),
		DeviceID:   ExactStrings("cam-1"),
	}, false)

	require.True(t, s.Width.HasIdeal)
	require.Equal(t, int32(640), s.Width.Ideal)
	require.Equal(t, int32(math.MinInt32+1), s.Width.Min)
	require.Equal(t, int32(240), s.Height.Min)
	require.Equal(t, int32(1080), s.Height.Max)
	require.Equal(t, 30.0, s.FrameRate.Min)
	require.Equal(t, 30.0, s.FrameRate.Max)
	require.Empty(t, s.FacingMode.Exact)
	require.Equal(t, []string{"user"}, s.FacingMode.Ideal)
	require.Equal(t, []string{"cam-1"}, s.DeviceID.Exact)
	require.Equal(t, []string{DefaultMediaSource}, s.MediaSource.Ideal)
}

func TestNewSet_Advanced(t *testing.T) {
	s := NewSet(MediaTrackConstraintSet{
		Width:            Long(640),
		FacingMode:       Strings("environment"),
		EchoCancellation: Bool(true),
		DeviceID:         ExactStrings("cam-1"),
		GroupID:          Strings("g"),
		MediaSource:      "screen",
	}, true)

	require.Equal(t, int32(640), s.Width.Min)
	require.Equal(t, int32(640), s.Width.Max)
	require.False(t, s.Width.HasIdeal)
	require.Equal(t, []string{"environment"}, s.FacingMode.Exact)
	require.True(t, s.EchoCancellation.Min)
	require.True(t, s.EchoCancellation.Max)

	// identity stays soft in advanced sets
	require.Empty(t, s.DeviceID.Exact)
	require.Equal(t, []string{"cam-1"}, s.DeviceID.Ideal)
	require.Empty(t, s.GroupID.Exact)
	require.Equal(t, []string{"g"}, s.GroupID.Ideal)
	require.Equal(t, []string{"screen"}, s.MediaSource.Ideal)
}

func TestNewSet_Equal(t *testing.T) {
	raw := MediaTrackConstraintSet{Width: IdealLong(1280), DeviceID: Strings("b", "a")}
	a := NewSet(raw, false)
	b := NewSet(MediaTrackConstraintSet{Width: IdealLong(1280), DeviceID: Strings("a", "b")}, false)
	require.True(t, a.Equal(b))

	c := NewSet(MediaTrackConstraintSet{Width: IdealLong(1281)}, false)
	require.False(t, a.Equal(c))
}

func TestMergeConstraints(t *testing.T) {
	a := Normalize(MediaTrackConstraints{
		MediaTrackConstraintSet: MediaTrackConstraintSet{Width: IdealLong(640)},
		Advanced:                []MediaTrackConstraintSet{{FacingMode: Strings("user")}},
	})
	b := Normalize(MediaTrackConstraints{
		MediaTrackConstraintSet: MediaTrackConstraintSet{Width: IdealLong(1280), Height: LongRange(100, 500)},
		Advanced:                []MediaTrackConstraintSet{{Height: Long(480)}},
	})

	merged, bad := MergeConstraints([]*NormalizedConstraints{a, b})
	require.Empty(t, bad)
	require.NotNil(t, merged)
	require.Equal(t, int32(960), merged.Width.Ideal)
	require.Equal(t, int32(100), merged.Height.Min)
	require.Equal(t, int32(500), merged.Height.Max)
	require.Len(t, merged.Advanced, 2)

	// inputs are untouched
	require.Equal(t, int32(640), a.Width.Ideal)
	require.Len(t, a.Advanced, 1)
}

func TestMergeConstraints_BadConstraint(t *testing.T) {
	a := Normalize(MediaTrackConstraints{MediaTrackConstraintSet: MediaTrackConstraintSet{DeviceID: ExactStrings("a")}})
	b := Normalize(MediaTrackConstraints{MediaTrackConstraintSet: MediaTrackConstraintSet{DeviceID: ExactStrings("b")}})

	merged, bad := MergeConstraints([]*NormalizedConstraints{a, b})
	require.Nil(t, merged)
	require.Equal(t, "deviceId", bad)
}

func TestMergeConstraints_Single(t *testing.T) {
	a := Normalize(MediaTrackConstraints{MediaTrackConstraintSet: MediaTrackConstraintSet{Width: IdealLong(640)}})
	merged, bad := MergeConstraints([]*NormalizedConstraints{a})
	require.Empty(t, bad)
	require.True(t, merged.Equal(a))
}

func TestFlatten(t *testing.T) {
	c := Normalize(MediaTrackConstraints{
		MediaTrackConstraintSet: MediaTrackConstraintSet{Width: LongRange(0, 1920)},
		Advanced: []MediaTrackConstraintSet{
			{Width: Long(640), Height: Long(480)},
			{Width: Long(4000)},
			{ChannelCount: Long(2)},
		},
	})

	f := Flatten(c)
	require.Equal(t, int32(640), f.Width.Min)
	require.Equal(t, int32(640), f.Width.Max)
	require.Equal(t, int32(480), f.Height.Min)
	require.Equal(t, int32(2), f.ChannelCount.Min)
	require.Equal(t, int32(2), f.ChannelCount.Max)

	// required set of the source is not modified
	require.Equal(t, int32(0), c.Width.Min)
}

func TestFlatten_SkipsOverconstrainingGroup(t *testing.T) {
	c := Normalize(MediaTrackConstraints{
		MediaTrackConstraintSet: MediaTrackConstraintSet{Width: LongRange(1000, 2000)},
		Advanced: []MediaTrackConstraintSet{
			{Width: Long(640), FrameRate: Double(15)},
		},
	})

	f := Flatten(c)
	require.Equal(t, int32(1000), f.Width.Min)
	require.Equal(t, int32(2000), f.Width.Max)
	require.True(t, math.IsInf(f.FrameRate.Min, -1), "frameRate must not be narrowed when the group is skipped")
}
