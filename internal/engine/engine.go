// Package engine defines the device backend contract and its implementations.
package engine

import (
	stderrors "errors"

	"github.com/hpungsan/mediamgr/internal/constraints"
)

// MediaSource is the kind of capture source a device represents.
type MediaSource string

const (
	SourceCamera       MediaSource = "camera"
	SourceScreen       MediaSource = "screen"
	SourceApplication  MediaSource = "application"
	SourceWindow       MediaSource = "window"
	SourceBrowser      MediaSource = "browser"
	SourceMicrophone   MediaSource = "microphone"
	SourceAudioCapture MediaSource = "audioCapture"
	SourceOther        MediaSource = "other"
)

// ParseMediaSource maps a mediaSource constraint value to a MediaSource.
// Unknown values report false.
func ParseMediaSource(s string) (MediaSource, bool) {
	switch ms := MediaSource(s); ms {
	case SourceCamera, SourceScreen, SourceApplication, SourceWindow,
		SourceBrowser, SourceMicrophone, SourceAudioCapture, SourceOther:
		return ms, true
	}
	return "", false
}

// IsScreenShare reports whether the source captures the desktop or its parts.
func (m MediaSource) IsScreenShare() bool {
	return m == SourceScreen || m == SourceApplication || m == SourceWindow
}

// Kind is the track kind a device produces.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Prefs are the user agent defaults used when constraints leave a choice.
type Prefs struct {
	Width    int32
	Height   int32
	FPS      float64
	Channels int32

	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultPrefs returns 640x480 at 30fps, mono audio with processing on.
func DefaultPrefs() Prefs {
	return Prefs{
		Width:            640,
		Height:           480,
		FPS:              30,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Settings describe what a started source actually delivers.
type Settings struct {
	Width            int32   `json:"width,omitempty"`
	Height           int32   `json:"height,omitempty"`
	FrameRate        float64 `json:"frame_rate,omitempty"`
	FacingMode       string  `json:"facing_mode,omitempty"`
	ChannelCount     int32   `json:"channel_count,omitempty"`
	EchoCancellation bool    `json:"echo_cancellation,omitempty"`
	NoiseSuppression bool    `json:"noise_suppression,omitempty"`
	AutoGainControl  bool    `json:"auto_gain_control,omitempty"`
}

// AllocationHandle is one consumer's claim on a shared source.
type AllocationHandle struct {
	ID          uint64
	Constraints *constraints.NormalizedConstraints
	Prefs       Prefs
	DeviceID    string

	started bool
}

// ErrAllocation is wrapped by every Allocate failure.
var ErrAllocation = stderrors.New("allocation failed")

// Engine enumerates capture sources of one backend.
type Engine interface {
	EnumerateVideoDevices(src MediaSource) []Source
	EnumerateAudioDevices(src MediaSource) []Source
	Shutdown()
}

// Source is one capture device as seen by the backend.
type Source interface {
	Name() string
	UUID() string
	GroupID() string
	Kind() Kind
	MediaSource() MediaSource

	// BestFitnessDistance scores the best capability mode against a stack of
	// sets: the required set first, then any advanced sets being tested.
	BestFitnessDistance(sets []constraints.NormalizedConstraintSet) uint32

	Allocate(c *constraints.NormalizedConstraints, prefs Prefs, deviceID string) (*AllocationHandle, error)
	Deallocate(h *AllocationHandle) error
	Start(h *AllocationHandle) error
	Stop(h *AllocationHandle) error
	Settings() Settings
}
