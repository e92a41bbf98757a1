package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hpungsan/mediamgr/internal/constraints"
)

// BadDeviceID as a deviceId ideal makes a fake source fail to allocate.
const BadDeviceID = "bad device"

// FakeDevice configures one device of a Fake engine.
type FakeDevice struct {
	Name         string
	GroupID      string
	Kind         Kind
	MediaSource  MediaSource
	FacingMode   string
	Capabilities []Capability
}

// Fake is an in-memory engine for tests and fake-stream requests.
type Fake struct {
	mu      sync.Mutex
	sources []*fakeSource
	closed  bool
}

// NewFake returns an engine with the given devices, or with one default
// camera and one default microphone when none are given.
func NewFake(devices ...FakeDevice) *Fake {
	if len(devices) == 0 {
		devices = []FakeDevice{
			{Name: "Default Video Device", Kind: KindVideo, MediaSource: SourceCamera},
			{Name: "Default Audio Device", Kind: KindAudio, MediaSource: SourceMicrophone},
		}
	}
	f := &Fake{}
	for _, d := range devices {
		f.sources = append(f.sources, newFakeSource(d))
	}
	return f
}

func newFakeSource(d FakeDevice) *fakeSource {
	if d.Kind == "" {
		d.Kind = KindVideo
		if d.MediaSource == SourceMicrophone || d.MediaSource == SourceAudioCapture {
			d.Kind = KindAudio
		}
	}
	if d.MediaSource == "" {
		d.MediaSource = SourceCamera
		if d.Kind == KindAudio {
			d.MediaSource = SourceMicrophone
		}
	}
	s := &fakeSource{
		baseSource: baseSource{
			name:        d.Name,
			uuid:        uuid.NewString(),
			groupID:     d.GroupID,
			kind:        d.Kind,
			mediaSource: d.MediaSource,
			caps:        newCapabilitySet(d.Capabilities, d.FacingMode, d.Kind == KindVideo),
			bounds:      anyBounds{minWidth: 160, maxWidth: 4096, minHeight: 90, maxHeight: 2160},
		},
	}
	return s
}

func (f *Fake) enumerate(kind Kind, src MediaSource) []Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	var out []Source
	for _, s := range f.sources {
		if s.kind == kind && s.mediaSource == src {
			out = append(out, s)
		}
	}
	return out
}

// EnumerateVideoDevices returns video sources of the given media source.
func (f *Fake) EnumerateVideoDevices(src MediaSource) []Source {
	return f.enumerate(KindVideo, src)
}

// EnumerateAudioDevices returns audio sources of the given media source.
func (f *Fake) EnumerateAudioDevices(src MediaSource) []Source {
	return f.enumerate(KindAudio, src)
}

// Shutdown stops enumeration; allocated sources stay usable until released.
func (f *Fake) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// Running reports how many fake sources are currently started.
func (f *Fake) Running() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sources {
		s.alloc.mu.Lock()
		if s.alloc.running > 0 {
			n++
		}
		s.alloc.mu.Unlock()
	}
	return n
}

// Allocated reports how many allocation handles are live across all sources.
func (f *Fake) Allocated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sources {
		s.alloc.mu.Lock()
		n += len(s.alloc.handles)
		s.alloc.mu.Unlock()
	}
	return n
}

type fakeSource struct {
	baseSource
}

func (s *fakeSource) Allocate(c *constraints.NormalizedConstraints, prefs Prefs, deviceID string) (*AllocationHandle, error) {
	if constraints.Flatten(c).DeviceID.HasIdeal(BadDeviceID) {
		return nil, fmt.Errorf("%w: %s refused", ErrAllocation, s.name)
	}
	return s.alloc.allocate(s.caps, c, prefs, deviceID)
}

func (s *fakeSource) Deallocate(h *AllocationHandle) error {
	_, err := s.alloc.deallocate(s.caps, h)
	return err
}

func (s *fakeSource) Start(h *AllocationHandle) error {
	_, err := s.alloc.start(h)
	return err
}

func (s *fakeSource) Stop(h *AllocationHandle) error {
	_, err := s.alloc.stop(h)
	return err
}
