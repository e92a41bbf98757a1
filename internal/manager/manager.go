// Package manager runs the capture request lifecycle: per-window bookkeeping,
// permission round trips, and device enumeration, selection and allocation on
// a dedicated worker.
//
// All tables are owned by a single loop goroutine. Public methods hop onto
// that loop; backend work is sent to the worker as value messages and the
// results come back to the loop. Neither side ever waits on the other.
package manager

import (
	"cmp"
	"context"
	"crypto/rand"
	stderrors "errors"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pion/logging"

	"github.com/hpungsan/mediamgr/internal/config"
	"github.com/hpungsan/mediamgr/internal/db"
	"github.com/hpungsan/mediamgr/internal/device"
	"github.com/hpungsan/mediamgr/internal/engine"
	"github.com/hpungsan/mediamgr/internal/errors"
	"github.com/hpungsan/mediamgr/internal/principal"
)

var errShutdown = stderrors.New("media manager is shutting down")

// Options configure a Manager. Zero values get in-memory defaults.
type Options struct {
	Config      *config.Config
	Keys        *principal.KeyService
	Permissions *principal.PermissionStore

	// NewBackend builds the production engine on first use.
	NewBackend func() (engine.Engine, error)

	Observer Observer
	Logger   logging.LeveledLogger
}

// WindowInfo identifies the document a request comes from.
type WindowInfo struct {
	ID      uint64 `json:"window_id"`
	Origin  string `json:"origin"`
	Private bool   `json:"private,omitempty"`

	// Privileged callers skip the prompt and may match raw device ids.
	Privileged bool `json:"privileged,omitempty"`
}

type window struct {
	WindowInfo
	ctx    context.Context
	cancel context.CancelFunc

	listeners    []*listener
	enumerations []uint64
	requests     []uint64
	activated    bool
}

// capturing reports whether any listener holds a device.
func (w *window) capturing() bool {
	return slices.ContainsFunc(w.listeners, func(l *listener) bool { return l.active })
}

// listener is one pending or active request of a window. It starts as an
// inactive placeholder and becomes active once its devices are allocated.
type listener struct {
	id      uint64
	active  bool
	removed bool
	audio   *track
	video   *track
}

func (l *listener) tracks() []*track {
	var out []*track
	if l.audio != nil {
		out = append(out, l.audio)
	}
	if l.video != nil {
		out = append(out, l.video)
	}
	return out
}

// Manager coordinates capture requests. Create one with New and release it
// with Shutdown.
type Manager struct {
	cfg      *config.Config
	prefs    engine.Prefs
	keys     *principal.KeyService
	perms    *principal.PermissionStore
	observer Observer
	log      logging.LeveledLogger

	owner    *loop
	worker   *queue[workerRequest]
	backends *backends

	shuttingDown atomic.Bool
	shutdownOnce sync.Once

	// Worker only: tracks holding an allocation handle.
	live map[*track]struct{}

	// Owner loop only.
	windows      map[uint64]*window
	callIDs      map[uint64][]string
	activeCalls  map[string]*request
	enumerations *pledgeTable[[]device.Info]
	requests     *pledgeTable[*Stream]
	nextListener uint64
	entropy      io.Reader
}

// New starts a manager.
func New(opts Options) *Manager {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("manager")
	}
	keys := opts.Keys
	if keys == nil {
		keys = principal.NewKeyService(nil, nil)
	}
	perms := opts.Permissions
	if perms == nil {
		perms = principal.NewPermissionStore(nil)
	}
	observer := opts.Observer
	if observer == nil {
		observer = Observers(nil)
	}

	m := &Manager{
		cfg:          cfg,
		prefs:        prefsFromConfig(cfg),
		keys:         keys,
		perms:        perms,
		observer:     observer,
		log:          log,
		backends:     &backends{newProduction: opts.NewBackend},
		windows:      make(map[uint64]*window),
		callIDs:      make(map[uint64][]string),
		activeCalls:  make(map[string]*request),
		enumerations: newPledgeTable[[]device.Info](),
		requests:     newPledgeTable[*Stream](),
		entropy:      ulid.Monotonic(rand.Reader, 0),
		live:         make(map[*track]struct{}),
	}
	m.owner = newLoop()
	m.worker = newQueue(m.handle)
	return m
}

func prefsFromConfig(cfg *config.Config) engine.Prefs {
	p := engine.DefaultPrefs()
	if cfg.DefaultWidth > 0 {
		p.Width = cfg.DefaultWidth
	}
	if cfg.DefaultHeight > 0 {
		p.Height = cfg.DefaultHeight
	}
	if cfg.DefaultFPS > 0 {
		p.FPS = cfg.DefaultFPS
	}
	if cfg.DefaultChannels > 0 {
		p.Channels = cfg.DefaultChannels
	}
	return p
}

// Shutdown stops every listener, refuses new work, drains the worker once and
// releases the backend. Pending requests are left unsettled.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		m.owner.call(func() {
			for _, w := range m.windowList() {
				m.removeWindow(w)
			}
			m.shuttingDown.Store(true)
		})
		m.worker.close()
		m.worker.wait()
		// Replies for these were dropped once the owner refused new work.
		m.releaseLive()
		m.backends.release()
		m.owner.close()
		m.owner.wait()
		m.log.Infof("media manager shut down")
	})
}

// OnNavigation tears down windowID: parked calls are forgotten, pending work
// is abandoned without settling, and active devices are stopped.
func (m *Manager) OnNavigation(windowID uint64) {
	m.owner.call(func() {
		if w, ok := m.windows[windowID]; ok {
			m.log.Debugf("window %d navigated", windowID)
			m.removeWindow(w)
		}
	})
}

// Stop ends one capture started by GetUserMedia.
func (m *Manager) Stop(windowID, listenerID uint64) error {
	var err error
	if !m.owner.call(func() {
		w, ok := m.windows[windowID]
		if !ok {
			err = errors.NewNotFound("window not found", "")
			return
		}
		i := slices.IndexFunc(w.listeners, func(l *listener) bool { return l.id == listenerID })
		if i < 0 {
			err = errors.NewNotFound("stream not found", "")
			return
		}
		m.removeListener(w, w.listeners[i])
	}) {
		return errors.NewInternal(errShutdown)
	}
	return err
}

// windowInfo resolves info against an existing window. The first request
// fixes a window's identity: a later one from another origin is refused, and
// its Private and Privileged flags are ignored.
func (m *Manager) windowInfo(info WindowInfo) (WindowInfo, error) {
	w, ok := m.windows[info.ID]
	if !ok {
		return info, nil
	}
	if w.Origin != info.Origin {
		return info, errors.NewInvalidRequest("window belongs to another origin")
	}
	return w.WindowInfo, nil
}

func (m *Manager) ensureWindow(info WindowInfo) *window {
	if w, ok := m.windows[info.ID]; ok {
		return w
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &window{WindowInfo: info, ctx: ctx, cancel: cancel}
	m.windows[info.ID] = w
	return w
}

func (m *Manager) addListener(w *window) *listener {
	m.nextListener++
	l := &listener{id: m.nextListener}
	w.listeners = append(w.listeners, l)
	return l
}

// removeListener stops l's devices and drops the window with its last listener.
func (m *Manager) removeListener(w *window, l *listener) {
	i := slices.Index(w.listeners, l)
	if i < 0 {
		return
	}
	w.listeners = slices.Delete(w.listeners, i, i+1)
	wasActive := l.active
	m.releaseListener(l)
	if len(w.listeners) == 0 {
		m.removeWindow(w)
	} else if wasActive {
		m.notifyDevices(w)
	}
}

func (m *Manager) releaseListener(l *listener) {
	l.removed = true
	l.active = false
	if tracks := l.tracks(); len(tracks) > 0 {
		m.postWorker(stopRequest{tracks: tracks})
	}
}

// removeWindow drops every trace of w: call ids, outstanding pledges and
// listeners. Abandoned pledges are never settled.
func (m *Manager) removeWindow(w *window) {
	for _, id := range m.callIDs[w.ID] {
		delete(m.activeCalls, id)
	}
	delete(m.callIDs, w.ID)
	for _, id := range w.enumerations {
		m.enumerations.take(id)
	}
	for _, id := range w.requests {
		m.requests.take(id)
	}
	w.enumerations, w.requests = nil, nil
	w.cancel()

	for _, l := range w.listeners {
		m.releaseListener(l)
	}
	w.listeners = nil
	if m.windows[w.ID] == w {
		delete(m.windows, w.ID)
	}
	if w.activated {
		m.notifyDevices(w)
		m.notify(Notification{Topic: TopicWindowEnded, WindowID: w.ID, Origin: w.Origin})
	}
}

func (m *Manager) windowList() []*window {
	out := make([]*window, 0, len(m.windows))
	for _, w := range m.windows {
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b *window) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (m *Manager) notify(n Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	m.observer.Notify(n)
}

func (m *Manager) notifyDevices(w *window) {
	var audio, video bool
	for _, l := range w.listeners {
		if l.active {
			audio = audio || l.audio != nil
			video = video || l.video != nil
		}
	}
	m.notify(Notification{Topic: TopicDeviceEvents, WindowID: w.ID, Origin: w.Origin, Audio: audio, Video: video})
}

func (m *Manager) newCallID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String()
}

// principalState is what a request needs to know about its origin.
type principalState struct {
	key         string
	permissions map[string]string
}

func (s principalState) allowedAny() bool {
	for _, state := range s.permissions {
		if state == db.PermissionAllow {
			return true
		}
	}
	return false
}

// lookup fetches the origin key and remembered permissions off the loop.
// The pledge settles on the owner loop.
func (m *Manager) lookup(w *window) *Pledge[principalState] {
	p := NewPledge[principalState]()
	info, ctx, capturing := w.WindowInfo, w.ctx, w.capturing()
	go func() {
		st := principalState{permissions: make(map[string]string)}
		persist := capturing
		var err error
		for _, kind := range []string{principal.KindCamera, principal.KindMicrophone} {
			var state string
			if state, err = m.perms.Get(ctx, info.Origin, kind); err != nil {
				break
			}
			st.permissions[kind] = state
			persist = persist || state == db.PermissionAllow
		}
		if err == nil {
			st.key, err = m.keys.GetOriginKey(ctx, info.Origin, info.Private, persist)
		}
		m.reply(func() {
			if err != nil {
				p.Reject(err)
				return
			}
			p.Resolve(st)
		})
	}()
	return p
}
