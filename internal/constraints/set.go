package constraints

import (
	"reflect"
	"slices"
)

// DefaultMediaSource is assumed when a set names no mediaSource.
const DefaultMediaSource = "camera"

// NormalizedConstraintSet is a flat record of ranges built once from a raw set.
type NormalizedConstraintSet struct {
	Width            Range[int32]
	Height           Range[int32]
	FrameRate        Range[float64]
	FacingMode       StringRange
	MediaSource      StringRange
	BrowserWindow    Range[int64]
	ScrollWithPage   BoolRange
	DeviceID         StringRange
	GroupID          StringRange
	ViewportOffsetX  Range[int32]
	ViewportOffsetY  Range[int32]
	ViewportWidth    Range[int32]
	ViewportHeight   Range[int32]
	EchoCancellation BoolRange
	NoiseSuppression BoolRange
	AutoGainControl  BoolRange
	ChannelCount     Range[int32]
}

// NewSet normalizes a raw set. In advanced sets bare values are hard
// requirements, except deviceId and groupId which stay preferences.
func NewSet(raw MediaTrackConstraintSet, advanced bool) NormalizedConstraintSet {
	source := raw.MediaSource
	if source == "" {
		source = DefaultMediaSource
	}
	s := NormalizedConstraintSet{
		Width:            fromLong("width", raw.Width, advanced),
		Height:           fromLong("height", raw.Height, advanced),
		FrameRate:        fromDouble("frameRate", raw.FrameRate, advanced),
		FacingMode:       fromDOMString("facingMode", raw.FacingMode, advanced, false),
		MediaSource:      StringRange{Name: "mediaSource", Ideal: []string{source}},
		BrowserWindow:    newLongLongRange("browserWindow"),
		ScrollWithPage:   newBoolRange("scrollWithPage"),
		DeviceID:         fromDOMString("deviceId", raw.DeviceID, advanced, true),
		GroupID:          fromDOMString("groupId", raw.GroupID, advanced, true),
		ViewportOffsetX:  fromLong("viewportOffsetX", raw.ViewportOffsetX, advanced),
		ViewportOffsetY:  fromLong("viewportOffsetY", raw.ViewportOffsetY, advanced),
		ViewportWidth:    fromLong("viewportWidth", raw.ViewportWidth, advanced),
		ViewportHeight:   fromLong("viewportHeight", raw.ViewportHeight, advanced),
		EchoCancellation: fromBoolean("echoCancellation", raw.EchoCancellation, advanced),
		NoiseSuppression: fromBoolean("noiseSuppression", raw.NoiseSuppression, advanced),
		AutoGainControl:  fromBoolean("autoGainControl", raw.AutoGainControl, advanced),
		ChannelCount:     fromLong("channelCount", raw.ChannelCount, advanced),
	}
	if raw.BrowserWindow != nil {
		s.BrowserWindow.Ideal, s.BrowserWindow.HasIdeal = *raw.BrowserWindow, true
	}
	if raw.ScrollWithPage != nil {
		s.ScrollWithPage.Ideal, s.ScrollWithPage.HasIdeal = *raw.ScrollWithPage, true
	}
	return s
}

func fromNumber[T Number](r Range[T], value, lo, hi, exact, ideal *T, advanced bool) Range[T] {
	if value != nil {
		if advanced {
			r.Min, r.Max = *value, *value
		} else {
			r.Ideal, r.HasIdeal = *value, true
		}
		return r
	}
	if ideal != nil {
		r.Ideal, r.HasIdeal = *ideal, true
	}
	if exact != nil {
		r.Min, r.Max = *exact, *exact
		return r
	}
	if lo != nil {
		r.Min = *lo
	}
	if hi != nil {
		r.Max = *hi
	}
	return r
}

func fromLong(name string, c ConstrainLong, advanced bool) Range[int32] {
	return fromNumber(newLongRange(name), c.Value, c.Min, c.Max, c.Exact, c.Ideal, advanced)
}

func fromDouble(name string, c ConstrainDouble, advanced bool) Range[float64] {
	return fromNumber(newDoubleRange(name), c.Value, c.Min, c.Max, c.Exact, c.Ideal, advanced)
}

func fromBoolean(name string, c ConstrainBoolean, advanced bool) BoolRange {
	r := newBoolRange(name)
	switch {
	case c.Value != nil && advanced:
		r.Min, r.Max = *c.Value, *c.Value
	case c.Value != nil:
		r.Ideal, r.HasIdeal = *c.Value, true
	default:
		if c.Ideal != nil {
			r.Ideal, r.HasIdeal = *c.Ideal, true
		}
		if c.Exact != nil {
			r.Min, r.Max = *c.Exact, *c.Exact
		}
	}
	return r
}

// identity ranges (soft) never become hard filters inside advanced sets.
func fromDOMString(name string, c ConstrainDOMString, advanced, identity bool) StringRange {
	r := newStringRange(name)
	soft := advanced && identity
	switch {
	case c.Value != nil && advanced && !soft:
		r.Exact = stringSet(c.Value...)
	case c.Value != nil:
		r.Ideal = stringSet(c.Value...)
	case soft:
		r.Ideal = stringSet(append(slices.Clone(c.Exact), c.Ideal...)...)
	default:
		r.Exact = stringSet(c.Exact...)
		r.Ideal = stringSet(c.Ideal...)
	}
	return r
}

// members lists every range in a fixed order so two sets can be zipped.
func (s *NormalizedConstraintSet) members() []member {
	return []member{
		&s.Width, &s.Height, &s.FrameRate, &s.FacingMode, &s.MediaSource,
		&s.BrowserWindow, &s.ScrollWithPage, &s.DeviceID, &s.GroupID,
		&s.ViewportOffsetX, &s.ViewportOffsetY, &s.ViewportWidth, &s.ViewportHeight,
		&s.EchoCancellation, &s.NoiseSuppression, &s.AutoGainControl, &s.ChannelCount,
	}
}

// Equal reports field-by-field equality.
func (s NormalizedConstraintSet) Equal(o NormalizedConstraintSet) bool {
	return reflect.DeepEqual(s, o)
}

// NormalizedConstraints is a required set plus ordered advanced sets.
type NormalizedConstraints struct {
	NormalizedConstraintSet
	Advanced []NormalizedConstraintSet
}

// Normalize builds NormalizedConstraints from raw track constraints.
func Normalize(raw MediaTrackConstraints) *NormalizedConstraints {
	n := &NormalizedConstraints{NormalizedConstraintSet: NewSet(raw.MediaTrackConstraintSet, false)}
	for _, set := range raw.Advanced {
		n.Advanced = append(n.Advanced, NewSet(set, true))
	}
	return n
}

// Clone returns a copy that shares nothing mutable with c.
func (c *NormalizedConstraints) Clone() *NormalizedConstraints {
	return &NormalizedConstraints{
		NormalizedConstraintSet: c.NormalizedConstraintSet,
		Advanced:                slices.Clone(c.Advanced),
	}
}

// Equal reports structural equality including advanced sets.
func (c *NormalizedConstraints) Equal(o *NormalizedConstraints) bool {
	if c == nil || o == nil {
		return c == o
	}
	return reflect.DeepEqual(c, o)
}

// MergeConstraints intersects the required sets of concurrent requests on one
// device, averages their ideals and concatenates their advanced sets.
// On failure it returns nil and the name of the first range that refused to merge.
func MergeConstraints(list []*NormalizedConstraints) (*NormalizedConstraints, string) {
	if len(list) == 0 {
		return &NormalizedConstraints{NormalizedConstraintSet: NewSet(MediaTrackConstraintSet{}, false)}, ""
	}
	merged := list[0].Clone()
	for _, other := range list[1:] {
		theirs := other.members()
		for i, m := range merged.members() {
			if !m.mergeMember(theirs[i]) {
				return nil, m.name()
			}
		}
		merged.Advanced = append(merged.Advanced, other.Advanced...)
	}
	for _, m := range merged.members() {
		m.finalizeMember()
	}
	return merged, ""
}

// FlattenedConstraints is a single set for callers that cannot evaluate
// advanced sets one at a time.
type FlattenedConstraints struct {
	NormalizedConstraintSet
}

// Flatten folds every advanced set that does not overconstrain into the
// required set. Video dimensions are treated as a group.
func Flatten(c *NormalizedConstraints) FlattenedConstraints {
	f := FlattenedConstraints{NormalizedConstraintSet: c.NormalizedConstraintSet}
	for _, set := range c.Advanced {
		if f.Width.Intersects(set.Width) &&
			f.Height.Intersects(set.Height) &&
			f.FrameRate.Intersects(set.FrameRate) {
			f.Width.Intersect(set.Width)
			f.Height.Intersect(set.Height)
			f.FrameRate.Intersect(set.FrameRate)
		}
		if f.EchoCancellation.Intersects(set.EchoCancellation) {
			f.EchoCancellation.Intersect(set.EchoCancellation)
		}
		if f.NoiseSuppression.Intersects(set.NoiseSuppression) {
			f.NoiseSuppression.Intersect(set.NoiseSuppression)
		}
		if f.AutoGainControl.Intersects(set.AutoGainControl) {
			f.AutoGainControl.Intersect(set.AutoGainControl)
		}
		if f.ChannelCount.Intersects(set.ChannelCount) {
			f.ChannelCount.Intersect(set.ChannelCount)
		}
	}
	return f
}

// Stack returns the required set followed by the advanced sets, the form
// distance functions consume.
func (c *NormalizedConstraints) Stack() []NormalizedConstraintSet {
	out := make([]NormalizedConstraintSet, 0, 1+len(c.Advanced))
	out = append(out, c.NormalizedConstraintSet)
	return append(out, c.Advanced...)
}
