package device

import (
	"cmp"
	"slices"

	"github.com/hpungsan/mediamgr/internal/constraints"
	"github.com/hpungsan/mediamgr/internal/engine"
	"github.com/hpungsan/mediamgr/internal/errors"
)

// Enumerator lists backend sources of one kind, e.g. Engine.EnumerateVideoDevices.
type Enumerator func(engine.MediaSource) []engine.Source

// GetSources enumerates devices in backend order. A non-empty nameFilter
// keeps only the first device with exactly that name.
func GetSources(enumerate Enumerator, src engine.MediaSource, nameFilter string) []*Device {
	var out []*Device
	for _, s := range enumerate(src) {
		if nameFilter != "" {
			if s.Name() == nameFilter {
				return []*Device{New(s)}
			}
			continue
		}
		out = append(out, New(s))
	}
	return out
}

type scored struct {
	device   *Device
	distance uint32
}

// SelectSettings filters devices through the required set and orders them by
// ascending fitness distance, ties kept in input order. Each advanced set then
// narrows the list unless it would remove every device, in which case it is
// skipped. When no device satisfies the required set the result is empty and
// badConstraint names the culprit, if a single one is to blame.
func SelectSettings(c *constraints.NormalizedConstraints, devices []*Device, privileged bool) (selected []*Device, badConstraint string) {
	stack := []constraints.NormalizedConstraintSet{c.NormalizedConstraintSet}

	var ranked []scored
	for _, d := range devices {
		dist := d.BestFitnessDistance(stack, privileged)
		if dist != constraints.MaxDistance {
			ranked = append(ranked, scored{device: d, distance: dist})
		}
	}
	if len(ranked) == 0 {
		return nil, FindBadConstraint(c, devices, privileged)
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(a.distance, b.distance)
	})
	for _, r := range ranked {
		selected = append(selected, r.device)
	}

	for _, adv := range c.Advanced {
		stack = append(stack, adv)
		var passed []*Device
		for _, d := range selected {
			if d.BestFitnessDistance(stack, privileged) != constraints.MaxDistance {
				passed = append(passed, d)
			}
		}
		if len(passed) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		selected = passed
	}
	return selected, ""
}

func someSettingsFit(set constraints.NormalizedConstraintSet, devices []*Device, privileged bool) bool {
	stack := []constraints.NormalizedConstraintSet{set}
	for _, d := range devices {
		if d.BestFitnessDistance(stack, privileged) != constraints.MaxDistance {
			return true
		}
	}
	return false
}

// FindBadConstraint returns the first of deviceId, width, height, frameRate
// and facingMode that no device satisfies on its own. It returns "" when the
// devices fail even without constraints or no single constraint is to blame.
func FindBadConstraint(c *constraints.NormalizedConstraints, devices []*Device, privileged bool) string {
	empty := constraints.NewSet(constraints.MediaTrackConstraintSet{}, false)
	empty.MediaSource = c.MediaSource
	if len(devices) == 0 || !someSettingsFit(empty, devices, privileged) {
		return ""
	}

	checks := []struct {
		name  string
		apply func(s *constraints.NormalizedConstraintSet)
	}{
		{"deviceId", func(s *constraints.NormalizedConstraintSet) { s.DeviceID = c.DeviceID }},
		{"width", func(s *constraints.NormalizedConstraintSet) { s.Width = c.Width }},
		{"height", func(s *constraints.NormalizedConstraintSet) { s.Height = c.Height }},
		{"frameRate", func(s *constraints.NormalizedConstraintSet) { s.FrameRate = c.FrameRate }},
		{"facingMode", func(s *constraints.NormalizedConstraintSet) { s.FacingMode = c.FacingMode }},
	}
	for _, check := range checks {
		fresh := empty
		check.apply(&fresh)
		if !someSettingsFit(fresh, devices, privileged) {
			return check.name
		}
	}
	return ""
}

// Select enumerates one kind and runs SelectSettings over it.
func Select(enumerate Enumerator, c *constraints.NormalizedConstraints, src engine.MediaSource, nameFilter string, privileged bool) ([]*Device, string) {
	return SelectSettings(c, GetSources(enumerate, src, nameFilter), privileged)
}

// Distances reports each device's distance against the required set, for display.
func Distances(c *constraints.NormalizedConstraints, devices []*Device, privileged bool) []uint32 {
	stack := []constraints.NormalizedConstraintSet{c.NormalizedConstraintSet}
	out := make([]uint32, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.BestFitnessDistance(stack, privileged))
	}
	return out
}

// Ranked is one selected device with its distance against the required set.
type Ranked struct {
	Info
	Distance uint32 `json:"distance"`
}

// Rank runs SelectSettings and pairs each survivor with its distance, best
// first. It never returns a nil slice.
func Rank(c *constraints.NormalizedConstraints, devices []*Device, privileged bool) ([]Ranked, string) {
	selected, bad := SelectSettings(c, devices, privileged)
	distances := Distances(c, selected, privileged)
	out := make([]Ranked, 0, len(selected))
	for i, d := range selected {
		out = append(out, Ranked{Info: d.Info(), Distance: distances[i]})
	}
	return out, bad
}

// RankKind enumerates kind on eng and ranks the devices against raw without
// allocating anything. A non-empty key anonymizes ids first and turns off raw
// id matching.
func RankKind(eng engine.Engine, kind engine.Kind, raw constraints.MediaTrackConstraints, key string) ([]Ranked, string, error) {
	var enumerate Enumerator
	var src engine.MediaSource
	switch kind {
	case engine.KindVideo:
		enumerate, src = eng.EnumerateVideoDevices, engine.SourceCamera
	case engine.KindAudio:
		enumerate, src = eng.EnumerateAudioDevices, engine.SourceMicrophone
	default:
		return nil, "", errors.NewInvalidRequest("kind must be video or audio")
	}
	if raw.MediaSource != "" {
		ms, ok := engine.ParseMediaSource(raw.MediaSource)
		if !ok {
			return nil, "", errors.NewNotFound("unknown media source "+raw.MediaSource, "mediaSource")
		}
		src = ms
	}

	devices := GetSources(enumerate, src, "")
	if key != "" {
		devices = AnonymizeDevices(devices, key)
	}
	ranked, bad := Rank(constraints.Normalize(raw), devices, key == "")
	return ranked, bad, nil
}
