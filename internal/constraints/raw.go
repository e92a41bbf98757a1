package constraints

import (
	"bytes"
	"encoding/json"
	"math"

	"gopkg.in/yaml.v3"
)

// ConstrainLong is a bare integer or {min, max, exact, ideal}.
type ConstrainLong struct {
	Value *int32
	Min   *int32
	Max   *int32
	Exact *int32
	Ideal *int32
}

// ConstrainDouble is a bare number or {min, max, exact, ideal}.
type ConstrainDouble struct {
	Value *float64
	Min   *float64
	Max   *float64
	Exact *float64
	Ideal *float64
}

// ConstrainBoolean is a bare boolean or {exact, ideal}.
type ConstrainBoolean struct {
	Value *bool
	Exact *bool
	Ideal *bool
}

// ConstrainDOMString is a string, a list of strings, or {exact, ideal} of either.
type ConstrainDOMString struct {
	Value []string
	Exact []string
	Ideal []string
}

// MediaTrackConstraintSet is one raw, caller-supplied constraint set.
type MediaTrackConstraintSet struct {
	Width            ConstrainLong      `json:"width" yaml:"width"`
	Height           ConstrainLong      `json:"height" yaml:"height"`
	FrameRate        ConstrainDouble    `json:"frameRate" yaml:"frameRate"`
	FacingMode       ConstrainDOMString `json:"facingMode" yaml:"facingMode"`
	MediaSource      string             `json:"mediaSource,omitempty" yaml:"mediaSource,omitempty"`
	BrowserWindow    *int64             `json:"browserWindow,omitempty" yaml:"browserWindow,omitempty"`
	ScrollWithPage   *bool              `json:"scrollWithPage,omitempty" yaml:"scrollWithPage,omitempty"`
	DeviceID         ConstrainDOMString `json:"deviceId" yaml:"deviceId"`
	GroupID          ConstrainDOMString `json:"groupId" yaml:"groupId"`
	ViewportOffsetX  ConstrainLong      `json:"viewportOffsetX" yaml:"viewportOffsetX"`
	ViewportOffsetY  ConstrainLong      `json:"viewportOffsetY" yaml:"viewportOffsetY"`
	ViewportWidth    ConstrainLong      `json:"viewportWidth" yaml:"viewportWidth"`
	ViewportHeight   ConstrainLong      `json:"viewportHeight" yaml:"viewportHeight"`
	EchoCancellation ConstrainBoolean   `json:"echoCancellation" yaml:"echoCancellation"`
	NoiseSuppression ConstrainBoolean   `json:"noiseSuppression" yaml:"noiseSuppression"`
	AutoGainControl  ConstrainBoolean   `json:"autoGainControl" yaml:"autoGainControl"`
	ChannelCount     ConstrainLong      `json:"channelCount" yaml:"channelCount"`
}

// MediaTrackConstraints is a required set plus ordered advanced sets.
type MediaTrackConstraints struct {
	MediaTrackConstraintSet `yaml:",inline"`
	Advanced                []MediaTrackConstraintSet `json:"advanced,omitempty" yaml:"advanced,omitempty"`
}

// TrackRequest is `true`, `false`, or a constraints object for one track kind.
type TrackRequest struct {
	Requested   bool
	Constraints MediaTrackConstraints
}

// MediaStreamConstraints is the top-level request document.
type MediaStreamConstraints struct {
	Audio   TrackRequest `json:"audio" yaml:"audio"`
	Video   TrackRequest `json:"video" yaml:"video"`
	Fake    bool         `json:"fake,omitempty" yaml:"fake,omitempty"`
	Picture bool         `json:"picture,omitempty" yaml:"picture,omitempty"`
}

// ParseJSON decodes a request document. Only syntax errors fail; values of
// the wrong type, top-level flags included, degrade to their defaults.
func ParseJSON(data []byte) (MediaStreamConstraints, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return MediaStreamConstraints{}, err
	}
	return FromAny(v), nil
}

// ParseYAML decodes a request document written in YAML, with the same
// leniency as ParseJSON.
func ParseYAML(data []byte) (MediaStreamConstraints, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return MediaStreamConstraints{}, err
	}
	return FromAny(v), nil
}

// FromAny converts a generic decoded document (as produced by encoding/json or
// yaml.v3 into `any`) into MediaStreamConstraints.
func FromAny(v any) MediaStreamConstraints {
	var c MediaStreamConstraints
	m, ok := v.(map[string]any)
	if !ok {
		return c
	}
	c.Audio.fromAny(m["audio"])
	c.Video.fromAny(m["video"])
	c.Fake, _ = m["fake"].(bool)
	c.Picture, _ = m["picture"].(bool)
	return c
}

func (t *TrackRequest) fromAny(v any) {
	*t = TrackRequest{}
	switch x := v.(type) {
	case bool:
		t.Requested = x
	case map[string]any:
		t.Requested = true
		t.Constraints.fromAny(x)
	}
}

func (c *MediaTrackConstraints) fromAny(m map[string]any) {
	c.MediaTrackConstraintSet.fromAny(m)
	c.Advanced = nil
	list, _ := m["advanced"].([]any)
	for _, item := range list {
		var set MediaTrackConstraintSet
		if sm, ok := item.(map[string]any); ok {
			set.fromAny(sm)
		}
		c.Advanced = append(c.Advanced, set)
	}
}

func (s *MediaTrackConstraintSet) fromAny(m map[string]any) {
	*s = MediaTrackConstraintSet{}
	s.Width.fromAny(m["width"])
	s.Height.fromAny(m["height"])
	s.FrameRate.fromAny(m["frameRate"])
	s.FacingMode.fromAny(m["facingMode"])
	s.MediaSource, _ = m["mediaSource"].(string)
	if n, ok := toFloat(m["browserWindow"]); ok {
		w := int64(n)
		s.BrowserWindow = &w
	}
	if b, ok := m["scrollWithPage"].(bool); ok {
		s.ScrollWithPage = &b
	}
	s.DeviceID.fromAny(m["deviceId"])
	s.GroupID.fromAny(m["groupId"])
	s.ViewportOffsetX.fromAny(m["viewportOffsetX"])
	s.ViewportOffsetY.fromAny(m["viewportOffsetY"])
	s.ViewportWidth.fromAny(m["viewportWidth"])
	s.ViewportHeight.fromAny(m["viewportHeight"])
	s.EchoCancellation.fromAny(m["echoCancellation"])
	s.NoiseSuppression.fromAny(m["noiseSuppression"])
	s.AutoGainControl.fromAny(m["autoGainControl"])
	s.ChannelCount.fromAny(m["channelCount"])
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toLong(v any) (*int32, bool) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) {
		return nil, false
	}
	f = math.Trunc(max(math.MinInt32, min(math.MaxInt32, f)))
	n := int32(f)
	return &n, true
}

func toDouble(v any) (*float64, bool) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) {
		return nil, false
	}
	return &f, true
}

func toStrings(v any) ([]string, bool) {
	switch x := v.(type) {
	case string:
		return []string{x}, true
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case []string:
		return x, true
	}
	return nil, false
}

func (c *ConstrainLong) fromAny(v any) {
	*c = ConstrainLong{}
	if n, ok := toLong(v); ok {
		c.Value = n
		return
	}
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	c.Min, _ = toLong(m["min"])
	c.Max, _ = toLong(m["max"])
	c.Exact, _ = toLong(m["exact"])
	c.Ideal, _ = toLong(m["ideal"])
}

func (c *ConstrainDouble) fromAny(v any) {
	*c = ConstrainDouble{}
	if n, ok := toDouble(v); ok {
		c.Value = n
		return
	}
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	c.Min, _ = toDouble(m["min"])
	c.Max, _ = toDouble(m["max"])
	c.Exact, _ = toDouble(m["exact"])
	c.Ideal, _ = toDouble(m["ideal"])
}

func toBool(v any) *bool {
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}

func (c *ConstrainBoolean) fromAny(v any) {
	*c = ConstrainBoolean{}
	if b := toBool(v); b != nil {
		c.Value = b
		return
	}
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	c.Exact = toBool(m["exact"])
	c.Ideal = toBool(m["ideal"])
}

func (c *ConstrainDOMString) fromAny(v any) {
	*c = ConstrainDOMString{}
	if s, ok := toStrings(v); ok {
		c.Value = s
		return
	}
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	c.Exact, _ = toStrings(m["exact"])
	c.Ideal, _ = toStrings(m["ideal"])
}

// decodeJSONValue reads any JSON value; syntax errors were already rejected
// by the outer decoder, so failures here only mean "unconstrained".
func decodeJSONValue(data []byte) any {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

func decodeYAMLValue(n *yaml.Node) any {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil
	}
	return v
}

// UnmarshalJSON never fails; a value of the wrong shape leaves c unconstrained.
func (c *ConstrainLong) UnmarshalJSON(data []byte) error {
	c.fromAny(decodeJSONValue(data))
	return nil
}

// UnmarshalYAML reads n the way UnmarshalJSON reads JSON.
func (c *ConstrainLong) UnmarshalYAML(n *yaml.Node) error {
	c.fromAny(decodeYAMLValue(n))
	return nil
}

// UnmarshalJSON never fails; a value of the wrong shape leaves c unconstrained.
func (c *ConstrainDouble) UnmarshalJSON(data []byte) error {
	c.fromAny(decodeJSONValue(data))
	return nil
}

// UnmarshalYAML reads n the way UnmarshalJSON reads JSON.
func (c *ConstrainDouble) UnmarshalYAML(n *yaml.Node) error {
	c.fromAny(decodeYAMLValue(n))
	return nil
}

// UnmarshalJSON never fails; a value of the wrong shape leaves c unconstrained.
func (c *ConstrainBoolean) UnmarshalJSON(data []byte) error {
	c.fromAny(decodeJSONValue(data))
	return nil
}

// UnmarshalYAML reads n the way UnmarshalJSON reads JSON.
func (c *ConstrainBoolean) UnmarshalYAML(n *yaml.Node) error {
	c.fromAny(decodeYAMLValue(n))
	return nil
}

// UnmarshalJSON never fails; a value of the wrong shape leaves c unconstrained.
func (c *ConstrainDOMString) UnmarshalJSON(data []byte) error {
	c.fromAny(decodeJSONValue(data))
	return nil
}

// UnmarshalYAML reads n the way UnmarshalJSON reads JSON.
func (c *ConstrainDOMString) UnmarshalYAML(n *yaml.Node) error {
	c.fromAny(decodeYAMLValue(n))
	return nil
}

// UnmarshalJSON accepts true, false or a constraints object; anything else
// means the kind is not requested.
func (t *TrackRequest) UnmarshalJSON(data []byte) error {
	t.fromAny(decodeJSONValue(data))
	return nil
}

// UnmarshalYAML reads n the way UnmarshalJSON reads JSON.
func (t *TrackRequest) UnmarshalYAML(n *yaml.Node) error {
	t.fromAny(decodeYAMLValue(n))
	return nil
}

// Long is a bare integer: ideal in a required set, exact in an advanced one.
func Long(v int32) ConstrainLong { return ConstrainLong{Value: &v} }

// IdealLong is {ideal: v}.
func IdealLong(v int32) ConstrainLong { return ConstrainLong{Ideal: &v} }

// ExactLong is {exact: v}.
func ExactLong(v int32) ConstrainLong { return ConstrainLong{Exact: &v} }

// LongRange is {min, max}.
func LongRange(lo, hi int32) ConstrainLong { return ConstrainLong{Min: &lo, Max: &hi} }

// Double is a bare number, read like Long.
func Double(v float64) ConstrainDouble { return ConstrainDouble{Value: &v} }

// IdealDouble is {ideal: v}.
func IdealDouble(v float64) ConstrainDouble { return ConstrainDouble{Ideal: &v} }

// ExactDouble is {exact: v}.
func ExactDouble(v float64) ConstrainDouble { return ConstrainDouble{Exact: &v} }

// Bool is a bare boolean, read like Long.
func Bool(v bool) ConstrainBoolean { return ConstrainBoolean{Value: &v} }

// ExactBool is {exact: v}.
func ExactBool(v bool) ConstrainBoolean { return ConstrainBoolean{Exact: &v} }

// Strings is a bare string or list of strings, read like Long.
func Strings(v ...string) ConstrainDOMString { return ConstrainDOMString{Value: v} }

// IdealStrings is {ideal: v}.
func IdealStrings(v ...string) ConstrainDOMString { return ConstrainDOMString{Ideal: v} }

// ExactStrings is {exact: v}.
func ExactStrings(v ...string) ConstrainDOMString { return ConstrainDOMString{Exact: v} }
