package constraints

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	doc := `{
		"audio": true,
		"video": {
			"width": {"ideal": 1280},
			"height": {"min": 480, "max": 1080},
			"frameRate": 29.97,
			"facingMode": ["user", "environment"],
			"advanced": [{"deviceId": "abc"}, {"echoCancellation": {"exact": false}}]
		}
	}`

	c, err := ParseJSON([]byte(doc))
	require.NoError(t, err)
	require.True(t, c.Audio.Requested)
	require.True(t, c.Video.Requested)

	v := c.Video.Constraints
	require.NotNil(t, v.Width.Ideal)
	require.Equal(t, int32(1280), *v.Width.Ideal)
	require.Equal(t, int32(480), *v.Height.Min)
	require.Equal(t, int32(1080), *v.Height.Max)
	require.InDelta(t, 29.97, *v.FrameRate.Value, 0.0001)
	require.Equal(t, []string{"user", "environment"}, v.FacingMode.Value)
	require.Len(t, v.Advanced, 2)
	require.Equal(t, []string{"abc"}, v.Advanced[0].DeviceID.Value)
	require.NotNil(t, v.Advanced[1].EchoCancellation.Exact)
	require.False(t, *v.Advanced[1].EchoCancellation.Exact)
}

func TestParseJSON_MalformedValuesAreUnconstrained(t *testing.T) {
	c, err := ParseJSON([]byte(`{"video": {"width": "wide", "deviceId": 7, "frameRate": {"ideal": "fast"}}}`))
	require.NoError(t, err)
	require.True(t, c.Video.Requested)
	require.Equal(t, ConstrainLong{}, c.Video.Constraints.Width)
	require.Equal(t, ConstrainDOMString{}, c.Video.Constraints.DeviceID)
	require.Nil(t, c.Video.Constraints.FrameRate.Ideal)

	n := Normalize(c.Video.Constraints)
	require.False(t, n.Width.HasIdeal)
}

func TestParseJSON_SyntaxError(t *testing.T) {
	_, err := ParseJSON([]byte(`{"video": `))
	require.Error(t, err)
}

func TestParseJSON_MistypedFlagsDegrade(t *testing.T) {
	c, err := ParseJSON([]byte(`{"fake": "yes", "picture": 1, "video": true}`))
	require.NoError(t, err)
	require.True(t, c.Video.Requested)
	require.False(t, c.Audio.Requested)
	require.False(t, c.Fake)
	require.False(t, c.Picture)

	c, err = ParseJSON([]byte(`["video"]`))
	require.NoError(t, err, "a non-object document requests nothing")
	require.Equal(t, MediaStreamConstraints{}, c)

	c, err = ParseYAML([]byte("fake: [1]\npicture: true\naudio: true\n"))
	require.NoError(t, err)
	require.True(t, c.Audio.Requested)
	require.False(t, c.Fake)
	require.True(t, c.Picture)
}

func TestParseYAML(t *testing.T) {
	doc := `
audio: false
video:
  width: 640
  mediaSource: screen
  deviceId:
    exact: [cam-1, cam-2]
  advanced:
    - width: 1280
      height: 720
`
	c, err := ParseYAML([]byte(doc))
	require.NoError(t, err)
	require.False(t, c.Audio.Requested)
	require.True(t, c.Video.Requested)

	v := c.Video.Constraints
	require.Equal(t, int32(640), *v.Width.Value)
	require.Equal(t, "screen", v.MediaSource)
	require.Equal(t, []string{"cam-1", "cam-2"}, v.DeviceID.Exact)
	require.Len(t, v.Advanced, 1)
	require.Equal(t, int32(720), *v.Advanced[0].Height.Value)
}

func TestFromAny(t *testing.T) {
	c := FromAny(map[string]any{
		"video": map[string]any{"width": map[string]any{"exact": 320.0}},
		"fake":  true,
	})
	require.True(t, c.Fake)
	require.False(t, c.Audio.Requested)
	require.True(t, c.Video.Requested)
	require.Equal(t, int32(320), *c.Video.Constraints.Width.Exact)
}
