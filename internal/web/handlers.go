package web

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/pion/logging"

	"github.com/hpungsan/mediamgr/internal/config"
	"github.com/hpungsan/mediamgr/internal/errors"
	"github.com/hpungsan/mediamgr/internal/manager"
	"github.com/hpungsan/mediamgr/internal/principal"
)

// reportWindow is the window id the device report enumerates under.
const reportWindow = math.MaxUint64

const defaultReportOrigin = "mediamgr://report"

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	mgr      *manager.Manager
	keys     *principal.KeyService
	perms    *principal.PermissionStore
	hub      *Hub
	cfg      *config.Config
	log      logging.LeveledLogger
	renderer *Renderer
}

// HandleWindows handles GET /windows: windows, pending prompts and recent events.
func (h *Handlers) HandleWindows(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, "windows", WindowsPageData{
		PageData: PageData{
			Title:   "Recording",
			Version: h.renderer.version,
			Nav:     "windows",
		},
		Windows: h.mgr.Windows(),
		Pending: h.mgr.PendingCalls(),
		Events:  h.hub.Recent(),
		Stats:   h.mgr.Stats(),
	})
}

// HandleAllow handles POST /calls/{id}/allow. Form values: device_id
// (repeatable) and remember.
func (h *Handlers) HandleAllow(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	remember := parseBool(r.FormValue("remember"))
	if err := h.mgr.Allow(callID, r.Form["device_id"], remember); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.respond(w, r, "/windows", map[string]any{"call_id": callID, "allowed": true})
}

// HandleDeny handles POST /calls/{id}/deny. Form values: error_name and remember.
func (h *Handlers) HandleDeny(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	remember := parseBool(r.FormValue("remember"))
	if err := h.mgr.Deny(callID, r.FormValue("error_name"), remember); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.respond(w, r, "/windows", map[string]any{"call_id": callID, "denied": true})
}

// HandleNavigate handles POST /windows/{id}/navigate.
func (h *Handlers) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	windowID, err := parseID(r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("window id must be an integer"))
		return
	}

	h.log.Debugf("navigating window %d from UI", windowID)
	h.mgr.OnNavigation(windowID)

	h.respond(w, r, "/windows", map[string]any{"window_id": windowID})
}

// HandleStop handles DELETE /windows/{id}/streams/{stream} and its POST form.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	windowID, err := parseID(r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("window id must be an integer"))
		return
	}
	streamID, err := parseID(r.PathValue("stream"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("stream id must be an integer"))
		return
	}

	if err := h.mgr.Stop(windowID, streamID); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.respond(w, r, "/windows", map[string]any{"window_id": windowID, "stream_id": streamID, "stopped": true})
}

// HandleDevices handles GET /devices?origin= and shows the devices as that
// origin would enumerate them, labels included.
func (h *Handlers) HandleDevices(w http.ResponseWriter, r *http.Request) {
	origin := r.URL.Query().Get("origin")
	if origin == "" {
		origin = defaultReportOrigin
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	infos, err := h.mgr.EnumerateDevices(manager.WindowInfo{
		ID:         reportWindow,
		Origin:     origin,
		Privileged: true,
	}).Await(ctx)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"origin": origin, "devices": infos})
		return
	}

	h.renderer.renderPage(w, "devices", DevicesPageData{
		PageData: PageData{
			Title:   "Devices",
			Version: h.renderer.version,
			Nav:     "devices",
		},
		Origin:       origin,
		RenderedHTML: h.renderer.renderMarkdown(deviceReport(origin, infos)),
	})
}

// HandlePermissions handles GET /permissions?origin=.
func (h *Handlers) HandlePermissions(w http.ResponseWriter, r *http.Request) {
	origin := r.URL.Query().Get("origin")

	perms, err := h.perms.List(r.Context(), origin)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"permissions": perms})
		return
	}

	h.renderer.renderPage(w, "permissions", PermissionsPageData{
		PageData: PageData{
			Title:   "Permissions",
			Version: h.renderer.version,
			Nav:     "permissions",
		},
		Origin:      origin,
		Permissions: perms,
	})
}

// HandleForgetPermissions handles POST /permissions/forget.
func (h *Handlers) HandleForgetPermissions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	origin := r.FormValue("origin")
	if origin == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("origin is required"))
		return
	}

	if err := h.perms.Forget(r.Context(), origin); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.respond(w, r, "/permissions", map[string]any{"origin": origin, "forgotten": true})
}

// HandleForgetOriginKeys handles POST /origin-keys/forget. With only_private
// set, regular keys are kept.
func (h *Handlers) HandleForgetOriginKeys(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	removed, err := h.keys.Sanitize(r.Context(), time.Time{}, parseBool(r.FormValue("only_private")))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.respond(w, r, "/permissions", map[string]any{"removed": removed})
}

// respond answers a mutation with JSON when asked, otherwise redirects to page.
func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, page string, data map[string]any) {
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, data)
		return
	}
	http.Redirect(w, r, page, http.StatusSeeOther)
}

func parseID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "on"
}
