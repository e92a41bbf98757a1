package manager

import (
	"slices"

	"github.com/hpungsan/mediamgr/internal/device"
	"github.com/hpungsan/mediamgr/internal/engine"
	"github.com/hpungsan/mediamgr/internal/errors"
)

// EnumerateDevices lists cameras and microphones with ids anonymized for the
// window's origin. Labels are blank until the origin captures or holds a
// remembered grant. If the window navigates first the pledge never settles.
func (m *Manager) EnumerateDevices(info WindowInfo) *Pledge[[]device.Info] {
	p := NewPledge[[]device.Info]()
	if !m.owner.call(func() { m.enumerateDevices(info, p) }) {
		p.Reject(errors.NewInternal(errShutdown))
	}
	return p
}

func (m *Manager) enumerateDevices(info WindowInfo, p *Pledge[[]device.Info]) {
	if m.shuttingDown.Load() {
		p.Reject(errors.NewInternal(errShutdown))
		return
	}
	if info.Origin == "" {
		p.Reject(errors.NewInvalidRequest("origin is required"))
		return
	}
	info, err := m.windowInfo(info)
	if err != nil {
		p.Reject(err)
		return
	}

	w := m.ensureWindow(info)
	l := m.addListener(w)
	id := m.enumerations.add(p)
	w.enumerations = append(w.enumerations, id)

	alive := func() bool { return w.ctx.Err() == nil && !l.removed }

	m.lookup(w).Then(func(st principalState, err error) {
		if !alive() {
			return
		}
		if err != nil {
			m.finishEnumeration(w, l, id, nil, errors.NewInternal(err))
			return
		}

		req := enumerateRequest{
			fake:        m.cfg.FakeStreams,
			videoSource: engine.SourceCamera,
			audioSource: engine.SourceMicrophone,
		}
		if !req.fake {
			req.videoLoopback = m.cfg.VideoLoopbackDev
			req.audioLoopback = m.cfg.AudioLoopbackDev
		}
		req.reply = func(raw []*device.Device, err error) {
			if !alive() {
				m.log.Debugf("dropping enumeration for window %d", w.ID)
				return
			}
			if err != nil {
				m.finishEnumeration(w, l, id, nil, errors.NewInternal(err))
				return
			}
			infos := device.Infos(device.AnonymizeDevices(raw, st.key))
			if !w.Privileged && !w.capturing() && !st.allowedAny() {
				for i := range infos {
					infos[i].Name = ""
				}
			}
			m.finishEnumeration(w, l, id, infos, nil)
		}
		m.postWorker(req)
	})
}

func (m *Manager) finishEnumeration(w *window, l *listener, id uint64, infos []device.Info, err error) {
	p, ok := m.enumerations.take(id)
	if i := slices.Index(w.enumerations, id); i >= 0 {
		w.enumerations = slices.Delete(w.enumerations, i, i+1)
	}
	m.removeListener(w, l)
	if !ok {
		return
	}
	if err != nil {
		p.Reject(err)
		return
	}
	p.Resolve(infos)
}
