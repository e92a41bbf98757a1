// Package web serves the recording indicator: live windows and streams,
// pending permission prompts, a device report and remembered decisions.
package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pion/logging"

	"github.com/hpungsan/mediamgr/internal/config"
	"github.com/hpungsan/mediamgr/internal/manager"
	"github.com/hpungsan/mediamgr/internal/principal"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Deps are the services the UI reads and drives.
type Deps struct {
	Manager     *manager.Manager
	Keys        *principal.KeyService
	Permissions *principal.PermissionStore

	// Hub must be the manager's observer for /events and the event list to work.
	Hub    *Hub
	Logger logging.LeveledLogger
}

func newHandlers(deps Deps, cfg *config.Config, version string) (*Handlers, fs.FS, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, nil, fmt.Errorf("template sub-FS: %w", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, nil, fmt.Errorf("static sub-FS: %w", err)
	}

	log := deps.Logger
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("web")
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(log)
	}

	return &Handlers{
		mgr:      deps.Manager,
		keys:     deps.Keys,
		perms:    deps.Permissions,
		hub:      hub,
		cfg:      cfg,
		log:      log,
		renderer: NewRenderer(templateSub, version, log),
	}, staticSub, nil
}

// NewServer creates the HTTP server for the recording indicator UI, listening
// on cfg.UIAddr.
func NewServer(deps Deps, cfg *config.Config, version string) (*http.Server, error) {
	h, staticSub, err := newHandlers(deps, cfg, version)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/windows", http.StatusFound)
	})
	mux.HandleFunc("GET /windows", h.HandleWindows)
	mux.HandleFunc("POST /windows/{id}/navigate", h.HandleNavigate)
	mux.HandleFunc("DELETE /windows/{id}/streams/{stream}", h.HandleStop)
	mux.HandleFunc("POST /windows/{id}/streams/{stream}/stop", h.HandleStop)
	mux.HandleFunc("POST /calls/{id}/allow", h.HandleAllow)
	mux.HandleFunc("POST /calls/{id}/deny", h.HandleDeny)
	mux.HandleFunc("GET /devices", h.HandleDevices)
	mux.HandleFunc("GET /permissions", h.HandlePermissions)
	mux.HandleFunc("POST /permissions/forget", h.HandleForgetPermissions)
	mux.HandleFunc("POST /origin-keys/forget", h.HandleForgetOriginKeys)
	mux.Handle("GET /events", h.hub)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return &http.Server{
		Addr:    cfg.UIAddr,
		Handler: securityHeaders(mux),
	}, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and shuts it down gracefully on SIGINT/SIGTERM.
// Websocket clients are disconnected through hub.
func Run(srv *http.Server, hub *Hub, log logging.LeveledLogger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Infof("mediamgr UI running at http://%s", srv.Addr)

	if strings.HasPrefix(srv.Addr, "0.0.0.0") || strings.HasPrefix(srv.Addr, "[::]") || strings.HasPrefix(srv.Addr, ":") {
		log.Warnf("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Infof("shutting down UI")
		if hub != nil {
			hub.Close()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
