package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/mediamgr/internal/config"
	"github.com/hpungsan/mediamgr/internal/db"
	"github.com/hpungsan/mediamgr/internal/manager"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

// testConfig returns a config that runs against the in-memory backend.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Backend = "fake"
	cfg.LogLevel = "disabled"
	return cfg
}

// newTestServices builds fresh services over database. Each command shuts its
// manager down, which releases the engine, so every run gets its own.
func newTestServices(t *testing.T, database *sql.DB, cfg *config.Config) *services {
	t.Helper()
	svc, err := newServices(database, cfg, newLoggerFactory(cfg.LogLevel))
	require.NoError(t, err)
	return svc
}

// runCLI runs args through a new app and returns what it wrote to stdout.
func runCLI(t *testing.T, svc *services, args ...string) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	outCh := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outCh <- buf.String()
	}()

	runErr := newCLIApp(svc).Run(append([]string{"mediamgr"}, args...))

	w.Close()
	os.Stdout = oldStdout
	return <-outCh, runErr
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func decodeOutput(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m), "output: %s", out)
	return m
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    time.Duration
		expectError bool
	}{
		{name: "days", input: "7d", expected: 7 * 24 * time.Hour},
		{name: "zero days", input: "0d", expected: 0},
		{name: "hours", input: "24h", expected: 24 * time.Hour},
		{name: "minutes", input: "90m", expected: 90 * time.Minute},
		{name: "negative days", input: "-7d", expectError: true},
		{name: "negative duration", input: "-1h", expectError: true},
		{name: "no unit", input: "7", expectError: true},
		{name: "garbage days", input: "xd", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAge(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("", now)
	require.NoError(t, err)
	require.True(t, got.IsZero())

	got, err = parseSince("2d", now)
	require.NoError(t, err)
	require.Equal(t, now.Add(-48*time.Hour), got)

	got, err = parseSince("2026-02-01T00:00:00Z", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = parseSince("last tuesday", now)
	require.Error(t, err)
}

func TestParseConstraints(t *testing.T) {
	doc, err := parseConstraints("req.json", []byte(`{"video": {"width": {"min": 640}}}`))
	require.NoError(t, err)
	require.True(t, doc.Video.Requested)
	require.False(t, doc.Audio.Requested)
	require.Equal(t, int32(640), *doc.Video.Constraints.Width.Min)

	doc, err = parseConstraints("req.yaml", []byte("audio: true\nvideo:\n  height: 720\n"))
	require.NoError(t, err)
	require.True(t, doc.Audio.Requested)
	require.True(t, doc.Video.Requested)

	// No extension: sniffed.
	doc, err = parseConstraints("", []byte(`  {"audio": true}`))
	require.NoError(t, err)
	require.True(t, doc.Audio.Requested)

	doc, err = parseConstraints("", []byte("video: true"))
	require.NoError(t, err)
	require.True(t, doc.Video.Requested)

	_, err = parseConstraints("req.json", []byte(`{"video":`))
	require.ErrorContains(t, err, "invalid constraints")

	_, err = parseConstraints("req.json", []byte("  \n"))
	require.ErrorContains(t, err, "empty")
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, logging.LogLevelDebug, parseLogLevel("DEBUG"))
	require.Equal(t, logging.LogLevelWarn, parseLogLevel("warning"))
	require.Equal(t, logging.LogLevelDisabled, parseLogLevel("off"))
	require.Equal(t, logging.LogLevelInfo, parseLogLevel(""))
	require.Equal(t, logging.LogLevelInfo, parseLogLevel("chatty"))
}

func TestNewEngine(t *testing.T) {
	cfg := testConfig()
	log := newLoggerFactory("disabled").NewLogger("test")

	eng, err := newEngine(cfg, log)
	require.NoError(t, err)
	require.Len(t, eng.EnumerateVideoDevices("camera"), 1)

	cfg.Backend = "gstreamer"
	_, err = newEngine(cfg, log)
	require.ErrorContains(t, err, "unknown backend")
}

func TestConfirm(t *testing.T) {
	n := manager.Notification{Origin: "https://meet.example", Video: true}

	var out bytes.Buffer
	require.True(t, confirm(strings.NewReader("y\n"), &out, n))
	require.Contains(t, out.String(), "https://meet.example wants to use your camera")
	require.Contains(t, out.String(), "Allow? [y/N]")

	require.True(t, confirm(strings.NewReader(" YES \n"), io.Discard, n))
	require.False(t, confirm(strings.NewReader("n\n"), io.Discard, n))
	require.False(t, confirm(strings.NewReader(""), io.Discard, n))
}

func TestCLIDevices(t *testing.T) {
	database := setupTestDB(t)
	cfg := testConfig()

	out, err := runCLI(t, newTestServices(t, database, cfg), "devices", "--origin=https://a.example")
	require.NoError(t, err)

	result := decodeOutput(t, out)
	require.Equal(t, "https://a.example", result["origin"])
	devices := result["devices"].([]any)
	require.Len(t, devices, 2)

	labels := map[string]bool{}
	for _, d := range devices {
		dev := d.(map[string]any)
		labels[dev["label"].(string)] = true
		require.NotEmpty(t, dev["device_id"])
	}
	require.True(t, labels["Default Video Device"])
	require.True(t, labels["Default Audio Device"])

	t.Run("labels hidden without privilege", func(t *testing.T) {
		out, err := runCLI(t, newTestServices(t, database, cfg), "devices", "--origin=https://a.example", "--privileged=false")
		require.NoError(t, err)
		for _, d := range decodeOutput(t, out)["devices"].([]any) {
			require.Empty(t, d.(map[string]any)["label"])
		}
	})
}

func TestCLISelect(t *testing.T) {
	database := setupTestDB(t)
	cfg := testConfig()
	path := writeFile(t, "req.yaml", "audio: true\nvideo:\n  width:\n    ideal: 1280\n")

	out, err := runCLI(t, newTestServices(t, database, cfg), "select", path)
	require.NoError(t, err)

	result := decodeOutput(t, out)
	require.Contains(t, result, "video")
	require.Contains(t, result, "audio")
	video := result["video"].(map[string]any)
	candidates := video["candidates"].([]any)
	require.Len(t, candidates, 1)
	require.Equal(t, "Default Video Device", candidates[0].(map[string]any)["label"])

	t.Run("kind filter", func(t *testing.T) {
		out, err := runCLI(t, newTestServices(t, database, cfg), "select", "--kind=audio", path)
		require.NoError(t, err)
		result := decodeOutput(t, out)
		require.Len(t, result, 1)
		require.Contains(t, result, "audio")
	})

	t.Run("bad constraint", func(t *testing.T) {
		impossible := writeFile(t, "big.json", `{"video": {"width": {"exact": 100000}}}`)
		out, err := runCLI(t, newTestServices(t, database, cfg), "select", impossible)
		require.NoError(t, err)
		video := decodeOutput(t, out)["video"].(map[string]any)
		require.Empty(t, video["candidates"])
		require.Equal(t, "width", video["bad_constraint"])
	})

	t.Run("nothing requested", func(t *testing.T) {
		empty := writeFile(t, "none.json", `{"audio": false}`)
		_, err := runCLI(t, newTestServices(t, database, cfg), "select", empty)
		require.ErrorContains(t, err, "[InvalidRequest]")
	})
}

func TestCLICapture(t *testing.T) {
	database := setupTestDB(t)
	cfg := testConfig()
	path := writeFile(t, "req.json", `{"video": true}`)

	t.Run("privileged", func(t *testing.T) {
		out, err := runCLI(t, newTestServices(t, database, cfg), "capture", "--privileged", path)
		require.NoError(t, err)

		stream := decodeOutput(t, out)
		require.Equal(t, float64(cliWindowID), stream["window_id"])
		video := stream["video"].(map[string]any)
		require.Equal(t, "Default Video Device", video["label"])
		require.NotContains(t, stream, "audio")
	})

	t.Run("prompt answered and remembered", func(t *testing.T) {
		out, err := runCLI(t, newTestServices(t, database, cfg),
			"capture", "--origin=https://meet.example", "--yes", "--remember", path)
		require.NoError(t, err)
		require.Contains(t, decodeOutput(t, out), "video")

		require.Eventually(t, func() bool {
			state, err := db.GetPermission(context.Background(), database, "https://meet.example", "camera")
			return err == nil && state == db.PermissionAllow
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("remembered deny", func(t *testing.T) {
		require.NoError(t, db.SetPermission(context.Background(), database, "https://blocked.example", "camera", db.PermissionDeny))
		_, err := runCLI(t, newTestServices(t, database, cfg),
			"capture", "--origin=https://blocked.example", "--yes", path)
		require.ErrorContains(t, err, "[PermissionDeniedError]")
	})

	t.Run("unsatisfiable", func(t *testing.T) {
		impossible := writeFile(t, "big.json", `{"video": {"width": {"exact": 100000}}}`)
		_, err := runCLI(t, newTestServices(t, database, cfg), "capture", "--privileged", impossible)
		require.ErrorContains(t, err, "[NotFoundError]")
		require.ErrorContains(t, err, "constraint: width")
	})
}

func TestCLIPermissions(t *testing.T) {
	database := setupTestDB(t)
	svc := newTestServices(t, database, testConfig())

	out, err := runCLI(t, svc, "permissions", "list")
	require.NoError(t, err)
	require.Empty(t, decodeOutput(t, out)["permissions"])

	_, err = runCLI(t, svc, "permissions", "set", "--origin=https://a.example", "--kind=camera", "--state=allow")
	require.NoError(t, err)
	_, err = runCLI(t, svc, "permissions", "set", "--origin=https://b.example", "--kind=microphone", "--state=deny")
	require.NoError(t, err)

	out, err = runCLI(t, svc, "permissions", "list", "--origin=https://a.example")
	require.NoError(t, err)
	perms := decodeOutput(t, out)["permissions"].([]any)
	require.Len(t, perms, 1)
	require.Equal(t, "allow", perms[0].(map[string]any)["state"])

	_, err = runCLI(t, svc, "permissions", "forget", "--origin=https://a.example")
	require.NoError(t, err)

	out, err = runCLI(t, svc, "permissions", "list")
	require.NoError(t, err)
	require.Len(t, decodeOutput(t, out)["permissions"], 1)

	_, err = runCLI(t, svc, "permissions", "set", "--origin=https://a.example", "--kind=speaker", "--state=allow")
	require.ErrorContains(t, err, "[InvalidRequest]")
}

func TestCLIForget(t *testing.T) {
	database := setupTestDB(t)
	svc := newTestServices(t, database, testConfig())
	ctx := context.Background()

	_, err := svc.keys.GetOriginKey(ctx, "https://a.example", false, true)
	require.NoError(t, err)
	_, err = svc.keys.GetOriginKey(ctx, "https://b.example", true, false)
	require.NoError(t, err)

	out, err := runCLI(t, svc, "forget", "--only-private")
	require.NoError(t, err)
	require.Equal(t, float64(1), decodeOutput(t, out)["removed"])

	out, err = runCLI(t, svc, "forget", "--since=1h")
	require.NoError(t, err)
	require.Equal(t, float64(1), decodeOutput(t, out)["removed"])

	_, err = runCLI(t, svc, "forget", "--since=soon")
	require.ErrorContains(t, err, "[InvalidRequest]")
}

// TestIsCLIMode tests the isCLIMode function.
func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"mediamgr"}, expected: false},
		{name: "devices command", args: []string{"mediamgr", "devices"}, expected: true},
		{name: "capture command", args: []string{"mediamgr", "capture"}, expected: true},
		{name: "ui command", args: []string{"mediamgr", "ui"}, expected: true},
		{name: "help flag", args: []string{"mediamgr", "--help"}, expected: true},
		{name: "version flag", args: []string{"mediamgr", "--version"}, expected: true},
		{name: "short help flag", args: []string{"mediamgr", "-h"}, expected: true},
		{name: "short version flag", args: []string{"mediamgr", "-v"}, expected: true},
		{name: "unknown arg defaults to MCP", args: []string{"mediamgr", "--unknown"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			require.Equal(t, tt.expected, isCLIMode())
		})
	}
}

// TestIsHelpOrVersion tests the isHelpOrVersion function.
func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"mediamgr"}, expected: false},
		{name: "help command", args: []string{"mediamgr", "help"}, expected: true},
		{name: "help flag", args: []string{"mediamgr", "--help"}, expected: true},
		{name: "version flag", args: []string{"mediamgr", "-v"}, expected: true},
		{name: "devices command", args: []string{"mediamgr", "devices"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			require.Equal(t, tt.expected, isHelpOrVersion())
		})
	}
}
