package engine

import (
	"fmt"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/mediadevices/pkg/driver"

	"github.com/hpungsan/mediamgr/internal/constraints"
)

// Pion adapts the drivers registered with pion/mediadevices. Drivers must be
// registered by blank-importing their packages, e.g. pkg/driver/camera.
type Pion struct {
	log logging.LeveledLogger

	mu      sync.Mutex
	sources map[string]*pionSource
	closed  bool
}

// NewPion returns an engine over the global pion driver manager.
func NewPion(log logging.LeveledLogger) *Pion {
	return &Pion{log: log, sources: make(map[string]*pionSource)}
}

// EnumerateVideoDevices returns cameras or screens.
func (p *Pion) EnumerateVideoDevices(src MediaSource) []Source {
	var deviceType driver.DeviceType
	switch src {
	case SourceCamera:
		deviceType = driver.Camera
	case SourceScreen:
		deviceType = driver.Screen
	default:
		return nil
	}
	return p.enumerate(driver.FilterAnd(driver.FilterVideoRecorder(), driver.FilterDeviceType(deviceType)), KindVideo, src)
}

// EnumerateAudioDevices returns microphones.
func (p *Pion) EnumerateAudioDevices(src MediaSource) []Source {
	if src != SourceMicrophone {
		return nil
	}
	return p.enumerate(driver.FilterAnd(driver.FilterAudioRecorder(), driver.FilterDeviceType(driver.Microphone)), KindAudio, src)
}

func (p *Pion) enumerate(filter driver.FilterFn, kind Kind, src MediaSource) []Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	var out []Source
	for _, d := range driver.GetManager().Query(filter) {
		s, ok := p.sources[d.ID()]
		if !ok {
			caps, err := queryCapabilities(d)
			if err != nil {
				p.log.Warnf("skipping driver %s: %v", d.ID(), err)
				continue
			}
			s = &pionSource{
				baseSource: baseSource{
					name:        d.Info().Label,
					uuid:        d.ID(),
					kind:        kind,
					mediaSource: src,
					caps:        newCapabilitySet(caps, "", kind == KindVideo),
				},
				driver: d,
				log:    p.log,
			}
			p.sources[d.ID()] = s
		}
		out = append(out, s)
	}
	p.log.Debugf("enumerated %d %s devices for %s", len(out), kind, src)
	return out
}

// queryCapabilities opens a closed driver just long enough to read its modes.
func queryCapabilities(d driver.Driver) ([]Capability, error) {
	if d.Status() == driver.StateClosed {
		if err := d.Open(); err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		defer d.Close()
	}
	var caps []Capability
	for _, m := range d.Properties() {
		caps = append(caps, Capability{
			Width:    int32(m.Width),
			Height:   int32(m.Height),
			FPS:      float64(m.FrameRate),
			Channels: int32(m.ChannelCount),
			Format:   string(m.FrameFormat),
		})
	}
	return caps, nil
}

// Shutdown closes every driver left open and stops enumeration.
func (p *Pion) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, s := range p.sources {
		if s.driver.Status() != driver.StateClosed {
			if err := s.driver.Close(); err != nil {
				p.log.Warnf("close driver %s: %v", id, err)
			}
		}
	}
}

type pionSource struct {
	baseSource
	driver driver.Driver
	log    logging.LeveledLogger
}

func (s *pionSource) Allocate(c *constraints.NormalizedConstraints, prefs Prefs, deviceID string) (*AllocationHandle, error) {
	return s.alloc.allocate(s.caps, c, prefs, deviceID)
}

func (s *pionSource) Deallocate(h *AllocationHandle) error {
	last, err := s.alloc.deallocate(s.caps, h)
	if err != nil {
		return err
	}
	if last && s.driver.Status() != driver.StateClosed {
		return s.driver.Close()
	}
	return nil
}

// Start opens the driver for the first running handle.
func (s *pionSource) Start(h *AllocationHandle) error {
	first, err := s.alloc.start(h)
	if err != nil || !first {
		return err
	}
	if s.driver.Status() == driver.StateClosed {
		if err := s.driver.Open(); err != nil {
			_, _ = s.alloc.stop(h)
			return fmt.Errorf("open %s: %w", s.name, err)
		}
	}
	s.log.Infof("started %s (%s)", s.name, s.uuid)
	return nil
}

// Stop closes the driver once no handle is running.
func (s *pionSource) Stop(h *AllocationHandle) error {
	last, err := s.alloc.stop(h)
	if err != nil || !last {
		return err
	}
	s.log.Infof("stopped %s (%s)", s.name, s.uuid)
	if s.driver.Status() != driver.StateClosed {
		return s.driver.Close()
	}
	return nil
}
