package manager

import (
	"github.com/hpungsan/mediamgr/internal/constraints"
	"github.com/hpungsan/mediamgr/internal/device"
	"github.com/hpungsan/mediamgr/internal/engine"
	"github.com/hpungsan/mediamgr/internal/errors"
)

// Messages handled by the worker. Each carries copies of what it needs and a
// reply that runs back on the owner loop.
type workerRequest interface {
	workerRequest()
}

type enumerateRequest struct {
	fake          bool
	videoSource   engine.MediaSource
	audioSource   engine.MediaSource
	videoLoopback string
	audioLoopback string
	reply         func(devices []*device.Device, err error)
}

type trackSelection struct {
	constraints *constraints.NormalizedConstraints
	devices     []*device.Device
}

type selectRequest struct {
	video      *trackSelection
	audio      *trackSelection
	privileged bool
	reply      func(video, audio []*device.Device, err error)
}

// track is one allocated device of a listener. handle and settings are
// written on the worker and read on the owner after the reply.
type track struct {
	device      *device.Device
	constraints *constraints.NormalizedConstraints
	handle      *engine.AllocationHandle
	started     bool
	settings    engine.Settings
}

type allocateRequest struct {
	tracks []*track
	prefs  engine.Prefs
	reply  func(err error)
}

type startRequest struct {
	tracks []*track
	reply  func(err error)
}

type stopRequest struct {
	tracks []*track
}

func (enumerateRequest) workerRequest() {}
func (selectRequest) workerRequest()    {}
func (allocateRequest) workerRequest()  {}
func (startRequest) workerRequest()     {}
func (stopRequest) workerRequest()      {}

// postWorker queues req unless shutdown has begun.
func (m *Manager) postWorker(req workerRequest) bool {
	if m.shuttingDown.Load() {
		m.log.Debugf("dropping %T after shutdown", req)
		return false
	}
	return m.worker.post(req)
}

// reply hands fn back to the owner loop. The worker never waits for it.
func (m *Manager) reply(fn func()) {
	if !m.owner.post(fn) {
		m.log.Debugf("owner loop closed, dropping reply")
	}
}

func (m *Manager) handle(req workerRequest) {
	switch r := req.(type) {
	case enumerateRequest:
		m.enumerateRaw(r)
	case selectRequest:
		m.selectSources(r)
	case allocateRequest:
		m.allocateTracks(r)
	case startRequest:
		m.startTracks(r)
	case stopRequest:
		m.stopTracks(r.tracks)
	}
}

func (m *Manager) enumerateRaw(r enumerateRequest) {
	eng, err := m.backends.get(r.fake)
	var devices []*device.Device
	if err == nil {
		if r.videoSource != "" {
			devices = append(devices, device.GetSources(eng.EnumerateVideoDevices, r.videoSource, r.videoLoopback)...)
		}
		if r.audioSource != "" {
			devices = append(devices, device.GetSources(eng.EnumerateAudioDevices, r.audioSource, r.audioLoopback)...)
		}
		m.log.Debugf("enumerated %d devices", len(devices))
	}
	m.reply(func() { r.reply(devices, err) })
}

func (m *Manager) selectSources(r selectRequest) {
	var video, audio []*device.Device
	var err error
	if r.video != nil {
		var bad string
		video, bad = device.SelectSettings(r.video.constraints, r.video.devices, r.privileged)
		if len(video) == 0 {
			err = errors.NewNotFound("no video device satisfies the constraints", bad)
		}
	}
	if err == nil && r.audio != nil {
		var bad string
		audio, bad = device.SelectSettings(r.audio.constraints, r.audio.devices, r.privileged)
		if len(audio) == 0 {
			err = errors.NewNotFound("no audio device satisfies the constraints", bad)
		}
	}
	m.reply(func() { r.reply(video, audio, err) })
}

// allocateTracks allocates in order. If one fails, those already allocated
// are released so no partial allocation survives.
func (m *Manager) allocateTracks(r allocateRequest) {
	var err error
	for i, t := range r.tracks {
		h, aerr := t.device.Source.Allocate(t.constraints, r.prefs, t.device.ID)
		if aerr != nil {
			m.log.Warnf("allocate %s: %v", t.device.Name, aerr)
			err = errors.NewSourceUnavailable("failed to allocate "+t.device.Name, t.device.ID)
			m.stopTracks(r.tracks[:i])
			break
		}
		t.handle = h
		m.live[t] = struct{}{}
	}
	m.reply(func() { r.reply(err) })
}

func (m *Manager) startTracks(r startRequest) {
	var err error
	for _, t := range r.tracks {
		if t.handle == nil {
			continue
		}
		if serr := t.device.Source.Start(t.handle); serr != nil {
			m.log.Warnf("start %s: %v", t.device.Name, serr)
			err = errors.NewSourceUnavailable("failed to start "+t.device.Name, t.device.ID)
			break
		}
		t.started = true
		t.settings = t.device.Source.Settings()
	}
	if err != nil {
		m.stopTracks(r.tracks)
	}
	m.reply(func() { r.reply(err) })
}

func (m *Manager) stopTracks(tracks []*track) {
	for _, t := range tracks {
		if t.handle == nil {
			continue
		}
		if t.started {
			if err := t.device.Source.Stop(t.handle); err != nil {
				m.log.Warnf("stop %s: %v", t.device.Name, err)
			}
			t.started = false
		}
		if err := t.device.Source.Deallocate(t.handle); err != nil {
			m.log.Warnf("deallocate %s: %v", t.device.Name, err)
		}
		t.handle = nil
		delete(m.live, t)
	}
}

// releaseLive stops whatever is still allocated. It runs after the worker
// has drained, so nothing else touches the tracks.
func (m *Manager) releaseLive() {
	if len(m.live) == 0 {
		return
	}
	tracks := make([]*track, 0, len(m.live))
	for t := range m.live {
		tracks = append(tracks, t)
	}
	m.log.Debugf("releasing %d unclaimed allocations", len(tracks))
	m.stopTracks(tracks)
}
