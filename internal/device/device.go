// Package device pairs backend sources with identity and selects among them.
package device

import (
	"github.com/hpungsan/mediamgr/internal/constraints"
	"github.com/hpungsan/mediamgr/internal/engine"
)

// Device is a backend source with its identity. ID and GroupID are raw
// backend values until anonymized for an origin; RawID and RawGroupID never change.
type Device struct {
	ID          string
	RawID       string
	GroupID     string
	RawGroupID  string
	Name        string
	Kind        engine.Kind
	MediaSource engine.MediaSource
	Source      engine.Source
}

// New wraps a backend source.
func New(src engine.Source) *Device {
	return &Device{
		ID:          src.UUID(),
		RawID:       src.UUID(),
		GroupID:     src.GroupID(),
		RawGroupID:  src.GroupID(),
		Name:        src.Name(),
		Kind:        src.Kind(),
		MediaSource: src.MediaSource(),
		Source:      src,
	}
}

// Info is the caller-visible view of a device.
type Info struct {
	ID          string `json:"device_id"`
	GroupID     string `json:"group_id,omitempty"`
	Name        string `json:"label"`
	Kind        string `json:"kind"`
	MediaSource string `json:"media_source"`
}

// Info returns the caller-visible view of d.
func (d *Device) Info() Info {
	return Info{
		ID:          d.ID,
		GroupID:     d.GroupID,
		Name:        d.Name,
		Kind:        string(d.Kind),
		MediaSource: string(d.MediaSource),
	}
}

// Infos maps devices to their caller-visible views.
func Infos(devices []*Device) []Info {
	out := make([]Info, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Info())
	}
	return out
}

// BestFitnessDistance scores d against a stack of sets. Identity is checked
// here; per-mode distance comes from the source. Privileged callers match
// deviceId against raw ids.
func (d *Device) BestFitnessDistance(sets []constraints.NormalizedConstraintSet, privileged bool) uint32 {
	if len(sets) == 0 {
		return 0
	}
	// mediaSource defaults to camera, so it means nothing for microphones
	if d.MediaSource != engine.SourceMicrophone {
		for i := range sets {
			if !sets[i].MediaSource.HasIdeal(string(d.MediaSource)) {
				return constraints.MaxDistance
			}
		}
	}

	id, groupID := d.ID, d.GroupID
	if privileged {
		id, groupID = d.RawID, d.RawGroupID
	}
	var identity uint32
	for i := range sets {
		dist := constraints.SumDistance(
			constraints.StringFitnessDistance(id, true, sets[i].DeviceID),
			constraints.StringFitnessDistance(groupID, groupID != "", sets[i].GroupID),
		)
		if dist == constraints.MaxDistance {
			return constraints.MaxDistance
		}
		if i == 0 {
			identity = dist
		}
	}
	return constraints.SumDistance(identity, d.Source.BestFitnessDistance(sets))
}
