package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pion/logging"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hpungsan/mediamgr/internal/db"
	"github.com/hpungsan/mediamgr/internal/device"
	"github.com/hpungsan/mediamgr/internal/errors"
	"github.com/hpungsan/mediamgr/internal/manager"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "windows", "devices", "permissions"
}

// WindowsPageData is the template data for the recording indicator.
type WindowsPageData struct {
	PageData
	Windows []manager.WindowState
	Pending []manager.PendingCall
	Events  []manager.Notification
	Stats   manager.Stats
}

// DevicesPageData is the template data for the device report.
type DevicesPageData struct {
	PageData
	Origin       string
	RenderedHTML template.HTML
}

// PermissionsPageData is the template data for remembered decisions.
type PermissionsPageData struct {
	PageData
	Origin      string
	Permissions []db.Permission
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	markdown  goldmark.Markdown
	version   string
	log       logging.LeveledLogger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, log logging.LeveledLogger) *Renderer {
	funcMap := template.FuncMap{
		"ago":     humanize.Time,
		"agoUnix": func(unix int64) string { return humanize.Time(time.Unix(unix, 0)) },
		"comma":   func(n int) string { return humanize.Comma(int64(n)) },
		"kinds":   kinds,
	}

	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"windows":     "windows.html",
		"devices":     "devices.html",
		"permissions": "permissions.html",
		"error":       "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		markdown:  goldmark.New(goldmark.WithExtensions(extension.Table)),
		version:   version,
		log:       log,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, name string, data any) {
	r.renderPageStatus(w, http.StatusOK, name, data)
}

func (r *Renderer) renderPageStatus(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.log.Errorf("template %q not found", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.log.Errorf("template execution error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	mErr, ok := errors.As(err)
	if !ok {
		mErr = errors.NewInternal(err)
	}
	if mErr.Code == errors.ErrInternal {
		r.log.Errorf("%s %s: %v", req.Method, req.URL.Path, err)
	}

	status := mErr.Status
	message := mErr.Message

	if wantsJSON(req) {
		body := map[string]any{
			"code":    string(mErr.Code),
			"message": message,
			"status":  status,
		}
		if mErr.Constraint != "" {
			body["constraint"] = mErr.Constraint
		}
		renderJSON(w, status, map[string]any{"error": body})
		return
	}

	r.renderPageStatus(w, status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", status),
			Version: r.version,
		},
		StatusCode: status,
		Message:    message,
	})
}

func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML. Raw HTML in the input is dropped.
func (r *Renderer) renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(md), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(md) + "</pre>")
	}
	return template.HTML(buf.String())
}

// deviceReport writes the device table seen by origin as markdown.
func deviceReport(origin string, infos []device.Info) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Devices seen by `%s`\n\n", origin)
	if len(infos) == 0 {
		b.WriteString("No capture devices found.\n")
		return b.String()
	}
	b.WriteString("| Kind | Label | Source | Device id | Group |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, d := range infos {
		label := d.Name
		if label == "" {
			label = "*hidden*"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | `%s` | `%s` |\n",
			d.Kind, cell(label), d.MediaSource, d.ID, d.GroupID)
	}
	fmt.Fprintf(&b, "\n%d device(s). Ids are stable for this origin until its key is forgotten.\n", len(infos))
	return b.String()
}

// cell escapes characters that would break a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// kinds describes what a window or call captures, e.g. "camera and microphone".
func kinds(audio, video bool) string {
	switch {
	case audio && video:
		return "camera and microphone"
	case video:
		return "camera"
	case audio:
		return "microphone"
	}
	return "nothing"
}
