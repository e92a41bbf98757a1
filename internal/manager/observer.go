package manager

import (
	"time"

	"github.com/hpungsan/mediamgr/internal/device"
)

// Notification topics.
const (
	TopicRequest      = "getUserMedia:request"
	TopicDeviceEvents = "recording-device-events"
	TopicWindowEnded  = "recording-window-ended"
)

// Notification is delivered to the Observer for prompts and capture state.
type Notification struct {
	Topic    string    `json:"topic"`
	WindowID uint64    `json:"window_id"`
	Origin   string    `json:"origin"`
	Time     time.Time `json:"time"`

	// Request prompts only.
	CallID      string        `json:"call_id,omitempty"`
	MediaSource string        `json:"media_source,omitempty"`
	Devices     []device.Info `json:"devices,omitempty"`

	// Requested kinds for prompts, in-use kinds for device events.
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

// Observer receives notifications on the manager's loop. Implementations must
// not block and must not call back into the Manager synchronously.
type Observer interface {
	Notify(n Notification)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Notification)

// Notify calls f(n).
func (f ObserverFunc) Notify(n Notification) { f(n) }

// Observers fans a notification out to several observers in order.
type Observers []Observer

// Notify forwards n to every observer.
func (o Observers) Notify(n Notification) {
	for _, obs := range o {
		if obs != nil {
			obs.Notify(n)
		}
	}
}
