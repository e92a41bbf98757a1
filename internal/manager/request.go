package manager

import (
	"context"
	"slices"

	"github.com/hpungsan/mediamgr/internal/constraints"
	"github.com/hpungsan/mediamgr/internal/db"
	"github.com/hpungsan/mediamgr/internal/device"
	"github.com/hpungsan/mediamgr/internal/engine"
	"github.com/hpungsan/mediamgr/internal/errors"
	"github.com/hpungsan/mediamgr/internal/principal"
)

// trackRequest is the validated half of a request for one kind.
type trackRequest struct {
	source      engine.MediaSource
	constraints *constraints.NormalizedConstraints
	candidates  []*device.Device
}

// permissionKind is the remembered-permission kind, or "" for sources that
// always prompt.
func (t *trackRequest) permissionKind() string {
	switch t.source {
	case engine.SourceCamera:
		return principal.KindCamera
	case engine.SourceMicrophone:
		return principal.KindMicrophone
	}
	return ""
}

// request is one GetUserMedia call from entry to resolution.
type request struct {
	id       uint64
	window   *window
	listener *listener
	video    *trackRequest
	audio    *trackRequest
	fake     bool
	prompt   bool
	callID   string
}

func (r *request) alive() bool {
	return r.window.ctx.Err() == nil && !r.listener.removed
}

func (r *request) kinds() []*trackRequest {
	var out []*trackRequest
	if r.video != nil {
		out = append(out, r.video)
	}
	if r.audio != nil {
		out = append(out, r.audio)
	}
	return out
}

// GetUserMedia selects, allocates and starts devices for c. Unless the
// caller is privileged or prompting is off, the request parks until Allow or
// Deny is called with the call id from the getUserMedia:request notification.
// Navigation and shutdown leave the pledge unsettled.
func (m *Manager) GetUserMedia(info WindowInfo, c constraints.MediaStreamConstraints) *Pledge[*Stream] {
	p := NewPledge[*Stream]()
	if !m.owner.call(func() { m.getUserMedia(info, c, p) }) {
		p.Reject(errors.NewInternal(errShutdown))
	}
	return p
}

func (m *Manager) getUserMedia(info WindowInfo, c constraints.MediaStreamConstraints, p *Pledge[*Stream]) {
	if m.shuttingDown.Load() {
		p.Reject(errors.NewInternal(errShutdown))
		return
	}
	info, err := m.windowInfo(info)
	if err != nil {
		p.Reject(err)
		return
	}
	r, err := m.validate(info, c)
	if err != nil {
		p.Reject(err)
		return
	}

	r.window = m.ensureWindow(info)
	r.listener = m.addListener(r.window)
	r.id = m.requests.add(p)
	r.window.requests = append(r.window.requests, r.id)

	m.lookup(r.window).Then(func(st principalState, err error) {
		if !r.alive() {
			return
		}
		if err != nil {
			m.fail(r, errors.NewInternal(err))
			return
		}
		if !r.window.Privileged && !m.applyRemembered(r, st) {
			return
		}
		m.enumerateForRequest(r, st.key)
	})
}

// validate checks the source policy and normalizes constraints.
func (m *Manager) validate(info WindowInfo, c constraints.MediaStreamConstraints) (*request, error) {
	if info.Origin == "" {
		return nil, errors.NewInvalidRequest("origin is required")
	}
	if !c.Audio.Requested && !c.Video.Requested {
		return nil, errors.NewInvalidRequest("audio and/or video is required")
	}

	r := &request{fake: c.Fake || m.cfg.FakeStreams}
	if c.Video.Requested {
		src, err := m.videoSource(c.Video.Constraints.MediaSource, info.Privileged)
		if err != nil {
			return nil, err
		}
		r.video = &trackRequest{source: src, constraints: constraints.Normalize(c.Video.Constraints)}
	}
	if c.Audio.Requested {
		src, err := m.audioSource(c.Audio.Constraints.MediaSource)
		if err != nil {
			return nil, err
		}
		r.audio = &trackRequest{source: src, constraints: constraints.Normalize(c.Audio.Constraints)}
	}

	r.prompt = !info.Privileged && !m.cfg.PermissionDisabled && (!r.fake || m.cfg.FakeForcePermission)
	return r, nil
}

func (m *Manager) videoSource(name string, privileged bool) (engine.MediaSource, error) {
	if name == "" {
		return engine.SourceCamera, nil
	}
	src, ok := engine.ParseMediaSource(name)
	switch {
	case !ok, src == engine.SourceMicrophone, src == engine.SourceAudioCapture, src == engine.SourceOther:
		return "", errors.NewNotFound("unsupported video source "+name, "mediaSource")
	case src.IsScreenShare() && m.cfg.ScreensharingDisabled:
		return "", errors.NewPermissionDenied("screen sharing is disabled")
	case src == engine.SourceBrowser && !privileged:
		return "", errors.NewPermissionDenied("browser capture requires a privileged caller")
	}
	return src, nil
}

func (m *Manager) audioSource(name string) (engine.MediaSource, error) {
	switch name {
	case "", string(engine.SourceMicrophone):
		return engine.SourceMicrophone, nil
	case string(engine.SourceAudioCapture):
		if !m.cfg.AudioCaptureEnabled {
			return "", errors.NewPermissionDenied("audio capture is disabled")
		}
		return engine.SourceAudioCapture, nil
	}
	return "", errors.NewNotFound("unsupported audio source "+name, "mediaSource")
}

// applyRemembered fails r on a remembered deny and skips the prompt when every
// requested kind was remembered as allowed. It reports whether r continues.
func (m *Manager) applyRemembered(r *request, st principalState) bool {
	allowed := true
	for _, t := range r.kinds() {
		kind := t.permissionKind()
		switch {
		case kind == "":
			allowed = false
		case st.permissions[kind] == db.PermissionDeny:
			m.fail(r, errors.NewPermissionDenied("denied by a remembered decision"))
			return false
		case st.permissions[kind] != db.PermissionAllow:
			allowed = false
		}
	}
	if allowed {
		r.prompt = false
	}
	return true
}

func (m *Manager) enumerateForRequest(r *request, key string) {
	req := enumerateRequest{fake: r.fake}
	if r.video != nil {
		req.videoSource = r.video.source
	}
	if r.audio != nil {
		req.audioSource = r.audio.source
	}
	if !r.fake {
		req.videoLoopback = m.cfg.VideoLoopbackDev
		req.audioLoopback = m.cfg.AudioLoopbackDev
	}
	req.reply = func(raw []*device.Device, err error) {
		if !r.alive() {
			return
		}
		if err != nil {
			m.fail(r, errors.NewInternal(err))
			return
		}
		m.selectForRequest(r, device.AnonymizeDevices(raw, key))
	}
	m.postWorker(req)
}

func (m *Manager) selectForRequest(r *request, devices []*device.Device) {
	req := selectRequest{privileged: r.window.Privileged}
	split := func(kind engine.Kind, t *trackRequest) *trackSelection {
		if t == nil {
			return nil
		}
		sel := &trackSelection{constraints: t.constraints}
		for _, d := range devices {
			if d.Kind == kind {
				sel.devices = append(sel.devices, d)
			}
		}
		return sel
	}
	req.video = split(engine.KindVideo, r.video)
	req.audio = split(engine.KindAudio, r.audio)
	req.reply = func(video, audio []*device.Device, err error) {
		if !r.alive() {
			return
		}
		if err != nil {
			m.fail(r, err)
			return
		}
		if r.video != nil {
			r.video.candidates = video
		}
		if r.audio != nil {
			r.audio.candidates = audio
		}
		if r.prompt {
			m.park(r)
			return
		}
		m.allocate(r, first(r.audio), first(r.video))
	}
	m.postWorker(req)
}

func first(t *trackRequest) *device.Device {
	if t == nil || len(t.candidates) == 0 {
		return nil
	}
	return t.candidates[0]
}

// park stores r under a fresh call id and asks the observer for a decision.
func (m *Manager) park(r *request) {
	r.callID = m.newCallID()
	m.activeCalls[r.callID] = r
	m.callIDs[r.window.ID] = append(m.callIDs[r.window.ID], r.callID)

	n := Notification{
		Topic:    TopicRequest,
		WindowID: r.window.ID,
		Origin:   r.window.Origin,
		CallID:   r.callID,
		Audio:    r.audio != nil,
		Video:    r.video != nil,
	}
	for _, t := range r.kinds() {
		n.Devices = append(n.Devices, device.Infos(t.candidates)...)
	}
	if r.video != nil {
		n.MediaSource = string(r.video.source)
	} else {
		n.MediaSource = string(r.audio.source)
	}
	m.log.Debugf("call %s waiting for permission", r.callID)
	m.notify(n)
}

// takeCall removes callID from the active-call table and its window's list.
func (m *Manager) takeCall(callID string) (*request, bool) {
	r, ok := m.activeCalls[callID]
	if !ok {
		return nil, false
	}
	delete(m.activeCalls, callID)
	ids := slices.DeleteFunc(m.callIDs[r.window.ID], func(id string) bool { return id == callID })
	if len(ids) == 0 {
		delete(m.callIDs, r.window.ID)
	} else {
		m.callIDs[r.window.ID] = ids
	}
	return r, true
}

// Allow resumes a parked call. deviceIDs pick among the offered devices; when
// empty the best fit of each kind is used. remember persists the grant.
func (m *Manager) Allow(callID string, deviceIDs []string, remember bool) error {
	var err error
	if !m.owner.call(func() { err = m.allow(callID, deviceIDs, remember) }) {
		return errors.NewInternal(errShutdown)
	}
	return err
}

func (m *Manager) allow(callID string, deviceIDs []string, remember bool) error {
	r, ok := m.takeCall(callID)
	if !ok {
		return errors.NewNotFound("no pending call "+callID, "")
	}

	audio, video := first(r.audio), first(r.video)
	if len(deviceIDs) > 0 {
		audio, video = nil, nil
		for _, id := range deviceIDs {
			if r.audio != nil && audio == nil {
				audio = device.FindByID(r.audio.candidates, id)
			}
			if r.video != nil && video == nil {
				video = device.FindByID(r.video.candidates, id)
			}
		}
		if (r.audio != nil && audio == nil) || (r.video != nil && video == nil) {
			err := errors.NewNotFound("chosen devices do not cover the request", "deviceId")
			m.fail(r, err)
			return err
		}
	}

	if remember {
		m.remember(r, db.PermissionAllow)
	}
	m.log.Infof("call %s allowed", callID)
	m.allocate(r, audio, video)
	return nil
}

// Deny fails a parked call with the named error, PermissionDeniedError by
// default. remember persists the denial.
func (m *Manager) Deny(callID, errorName string, remember bool) error {
	var err error
	if !m.owner.call(func() {
		r, ok := m.takeCall(callID)
		if !ok {
			err = errors.NewNotFound("no pending call "+callID, "")
			return
		}
		if remember {
			m.remember(r, db.PermissionDeny)
		}
		m.log.Infof("call %s denied", callID)
		m.fail(r, errors.FromName(errorName))
	}) {
		return errors.NewInternal(errShutdown)
	}
	return err
}

// remember stores state for the persistable kinds of r off the loop.
func (m *Manager) remember(r *request, state string) {
	if r.window.Private {
		return
	}
	var kinds []string
	for _, t := range r.kinds() {
		if kind := t.permissionKind(); kind != "" {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return
	}
	origin := r.window.Origin
	go func() {
		for _, kind := range kinds {
			if err := m.perms.Set(context.Background(), origin, kind, state); err != nil {
				m.log.Warnf("remember %s for %s: %v", state, origin, err)
			}
		}
	}()
}

// fail rejects r's pledge and drops its listener.
func (m *Manager) fail(r *request, err error) {
	m.removeRequestID(r)
	if p, ok := m.requests.take(r.id); ok {
		p.Reject(err)
	}
	m.removeListener(r.window, r.listener)
}

func (m *Manager) removeRequestID(r *request) {
	if i := slices.Index(r.window.requests, r.id); i >= 0 {
		r.window.requests = slices.Delete(r.window.requests, i, i+1)
	}
}

// allocate runs audio then video on the worker, then starts both.
func (m *Manager) allocate(r *request, audio, video *device.Device) {
	var tracks []*track
	var audioTrack, videoTrack *track
	if audio != nil {
		audioTrack = &track{device: audio, constraints: r.audio.constraints}
		tracks = append(tracks, audioTrack)
	}
	if video != nil {
		videoTrack = &track{device: video, constraints: r.video.constraints}
		tracks = append(tracks, videoTrack)
	}

	m.postWorker(allocateRequest{
		tracks: tracks,
		prefs:  m.prefs,
		reply: func(err error) {
			if err != nil {
				if r.alive() {
					m.fail(r, err)
				}
				return
			}
			if !r.alive() {
				m.postWorker(stopRequest{tracks: tracks})
				return
			}
			l := r.listener
			l.audio, l.video = audioTrack, videoTrack
			m.postWorker(startRequest{
				tracks: tracks,
				reply:  func(err error) { m.started(r, err) },
			})
		},
	})
}

func (m *Manager) started(r *request, err error) {
	if !r.alive() {
		return
	}
	if err != nil {
		r.listener.audio, r.listener.video = nil, nil
		m.fail(r, err)
		return
	}

	w, l := r.window, r.listener
	l.active = true
	w.activated = true
	m.removeRequestID(r)
	p, ok := m.requests.take(r.id)
	m.notifyDevices(w)
	if !ok {
		return
	}
	p.Resolve(&Stream{
		WindowID:   w.ID,
		ListenerID: l.id,
		Audio:      newTrack(l.audio),
		Video:      newTrack(l.video),
		m:          m,
	})
}
