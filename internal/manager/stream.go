package manager

import (
	"github.com/hpungsan/mediamgr/internal/engine"
)

// Track describes one running device of a stream.
type Track struct {
	Kind        engine.Kind        `json:"kind"`
	Label       string             `json:"label"`
	DeviceID    string             `json:"device_id"`
	MediaSource engine.MediaSource `json:"media_source"`
	Settings    engine.Settings    `json:"settings"`
}

func newTrack(t *track) *Track {
	if t == nil {
		return nil
	}
	return &Track{
		Kind:        t.device.Kind,
		Label:       t.device.Name,
		DeviceID:    t.device.ID,
		MediaSource: t.device.MediaSource,
		Settings:    t.settings,
	}
}

// Stream is the result of a granted GetUserMedia call.
type Stream struct {
	WindowID   uint64 `json:"window_id"`
	ListenerID uint64 `json:"stream_id"`
	Audio      *Track `json:"audio,omitempty"`
	Video      *Track `json:"video,omitempty"`

	m *Manager
}

// Stop releases the stream's devices.
func (s *Stream) Stop() error {
	return s.m.Stop(s.WindowID, s.ListenerID)
}

// WindowState is a snapshot of one window.
type WindowState struct {
	WindowInfo
	Listeners int      `json:"listeners"`
	Audio     bool     `json:"audio"`
	Video     bool     `json:"video"`
	CallIDs   []string `json:"call_ids,omitempty"`
	StreamIDs []uint64 `json:"stream_ids,omitempty"`
}

// PendingCall is a snapshot of a request waiting for Allow or Deny.
type PendingCall struct {
	CallID      string `json:"call_id"`
	WindowID    uint64 `json:"window_id"`
	Origin      string `json:"origin"`
	Audio       bool   `json:"audio"`
	Video       bool   `json:"video"`
	MediaSource string `json:"media_source"`
}

// Stats counts the manager's tables.
type Stats struct {
	Windows             int `json:"windows"`
	ActiveCalls         int `json:"active_calls"`
	PendingEnumerations int `json:"pending_enumerations"`
	PendingRequests     int `json:"pending_requests"`
}

// Windows returns every registered window ordered by id.
func (m *Manager) Windows() []WindowState {
	var out []WindowState
	m.owner.call(func() {
		for _, w := range m.windowList() {
			st := WindowState{
				WindowInfo: w.WindowInfo,
				Listeners:  len(w.listeners),
				CallIDs:    append([]string(nil), m.callIDs[w.ID]...),
			}
			for _, l := range w.listeners {
				if l.active {
					st.StreamIDs = append(st.StreamIDs, l.id)
					st.Audio = st.Audio || l.audio != nil
					st.Video = st.Video || l.video != nil
				}
			}
			out = append(out, st)
		}
	})
	return out
}

// HasActiveRequest reports whether windowID has any pending or active listener.
func (m *Manager) HasActiveRequest(windowID uint64) bool {
	var ok bool
	m.owner.call(func() {
		w, found := m.windows[windowID]
		ok = found && len(w.listeners) > 0
	})
	return ok
}

// PendingCalls returns the parked calls in window order.
func (m *Manager) PendingCalls() []PendingCall {
	var out []PendingCall
	m.owner.call(func() {
		for _, w := range m.windowList() {
			for _, id := range m.callIDs[w.ID] {
				r := m.activeCalls[id]
				if r == nil {
					continue
				}
				pc := PendingCall{
					CallID:   id,
					WindowID: w.ID,
					Origin:   w.Origin,
					Audio:    r.audio != nil,
					Video:    r.video != nil,
				}
				if r.video != nil {
					pc.MediaSource = string(r.video.source)
				} else {
					pc.MediaSource = string(r.audio.source)
				}
				out = append(out, pc)
			}
		}
	})
	return out
}

// Stats returns table sizes, mostly for tests and the status page.
func (m *Manager) Stats() Stats {
	var s Stats
	m.owner.call(func() {
		s = Stats{
			Windows:             len(m.windows),
			ActiveCalls:         len(m.activeCalls),
			PendingEnumerations: m.enumerations.len(),
			PendingRequests:     m.requests.len(),
		}
	})
	return s
}
