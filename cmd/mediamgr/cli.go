package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/mediamgr/internal/constraints"
	"github.com/hpungsan/mediamgr/internal/device"
	"github.com/hpungsan/mediamgr/internal/engine"
	"github.com/hpungsan/mediamgr/internal/errors"
	"github.com/hpungsan/mediamgr/internal/manager"
	"github.com/hpungsan/mediamgr/internal/mcp"
	"github.com/hpungsan/mediamgr/internal/web"
)

const (
	cliOrigin   = "mediamgr://cli"
	cliWindowID = 1
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(svc *services) *cli.App {
	app := &cli.App{
		Name:    "mediamgr",
		Usage:   "Camera and microphone access broker",
		Version: Version,
		Commands: []*cli.Command{
			devicesCmd(svc),
			selectCmd(svc),
			captureCmd(svc),
			permissionsCmd(svc),
			forgetCmd(svc),
			serveCmd(svc),
			uiCmd(svc),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func windowFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "origin", Aliases: []string{"o"}, Value: cliOrigin, Usage: "Origin the request is made for"},
		&cli.Uint64Flag{Name: "window", Value: cliWindowID, Usage: "Window id"},
		&cli.BoolFlag{Name: "private", Usage: "Use a private browsing origin key"},
	}
}

func windowInfo(c *cli.Context, privileged bool) manager.WindowInfo {
	return manager.WindowInfo{
		ID:         c.Uint64("window"),
		Origin:     c.String("origin"),
		Private:    c.Bool("private"),
		Privileged: privileged,
	}
}

// devicesCmd creates the devices command.
func devicesCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List capture devices as an origin would see them",
		Flags: append(windowFlags(),
			&cli.BoolFlag{Name: "privileged", Value: true, Usage: "Show labels without a grant (--privileged=false to see what a page sees)"},
			&cli.DurationFlag{Name: "timeout", Value: 10 * time.Second, Usage: "How long to wait for the backend"},
		),
		Action: func(c *cli.Context) error {
			mgr := svc.newManager(nil)
			defer mgr.Shutdown()

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			infos, err := mgr.EnumerateDevices(windowInfo(c, c.Bool("privileged"))).Await(ctx)
			if err != nil {
				return outputError(err)
			}
			if infos == nil {
				infos = []device.Info{}
			}

			return outputJSON(map[string]any{"origin": c.String("origin"), "devices": infos})
		},
	}
}

// selectCmd creates the select command.
func selectCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "select",
		Usage:     "Rank devices against a constraints document without opening them",
		ArgsUsage: "[FILE|-]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "origin", Aliases: []string{"o"}, Usage: "Anonymize device ids for this origin"},
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Only rank this kind: video|audio"},
		},
		Action: func(c *cli.Context) error {
			doc, err := readConstraints(c)
			if err != nil {
				return outputError(err)
			}

			var key string
			if origin := c.String("origin"); origin != "" {
				key, err = svc.keys.GetOriginKey(c.Context, origin, false, false)
				if err != nil {
					return outputError(err)
				}
			}

			tracks := map[engine.Kind]constraints.TrackRequest{
				engine.KindVideo: doc.Video,
				engine.KindAudio: doc.Audio,
			}
			if kind := c.String("kind"); kind != "" {
				tr, ok := tracks[engine.Kind(kind)]
				if !ok {
					return outputError(errors.NewInvalidRequest("kind must be video or audio"))
				}
				tr.Requested = true
				tracks = map[engine.Kind]constraints.TrackRequest{engine.Kind(kind): tr}
			}

			out := make(map[string]mcp.SelectDevicesResult)
			for kind, tr := range tracks {
				if !tr.Requested {
					continue
				}
				ranked, bad, err := device.RankKind(svc.engine, kind, tr.Constraints, key)
				if err != nil {
					return outputError(err)
				}
				out[string(kind)] = mcp.SelectDevicesResult{Candidates: ranked, BadConstraint: bad}
			}
			if len(out) == 0 {
				return outputError(errors.NewInvalidRequest("constraints request neither audio nor video"))
			}

			return outputJSON(out)
		},
	}
}

// captureCmd creates the capture command.
func captureCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "capture",
		Usage:     "Request a stream, print it, hold it for --hold, then release it",
		ArgsUsage: "[FILE|-]",
		Flags: append(windowFlags(),
			&cli.BoolFlag{Name: "privileged", Usage: "Skip the permission prompt"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Answer the permission prompt with allow"},
			&cli.BoolFlag{Name: "remember", Usage: "Remember the answer for the origin"},
			&cli.DurationFlag{Name: "hold", Usage: "How long to keep the stream running (0 releases it at once)"},
			&cli.DurationFlag{Name: "timeout", Value: time.Minute, Usage: "How long to wait for the stream"},
		),
		Action: func(c *cli.Context) error {
			doc, err := readConstraints(c)
			if err != nil {
				return outputError(err)
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var mgr *manager.Manager
			answer := func(n manager.Notification) {
				var err error
				if c.Bool("yes") || confirm(os.Stdin, os.Stderr, n) {
					err = mgr.Allow(n.CallID, nil, c.Bool("remember"))
				} else {
					err = mgr.Deny(n.CallID, "", c.Bool("remember"))
				}
				if err != nil {
					fmt.Fprintf(os.Stderr, "answer %s: %v\n", n.CallID, err)
				}
			}
			mgr = svc.newManager(manager.ObserverFunc(func(n manager.Notification) {
				if n.Topic == manager.TopicRequest {
					go answer(n)
				}
			}))
			defer mgr.Shutdown()

			waitCtx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
			defer cancel()
			stream, err := mgr.GetUserMedia(windowInfo(c, c.Bool("privileged")), doc).Await(waitCtx)
			if err != nil {
				return outputError(err)
			}
			if err := outputJSON(stream); err != nil {
				return err
			}

			if hold := c.Duration("hold"); hold > 0 {
				select {
				case <-time.After(hold):
				case <-ctx.Done():
				}
			}
			if err := stream.Stop(); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// confirm asks on out and reads y/yes from in. Anything else, EOF included, is a no.
func confirm(in io.Reader, out io.Writer, n manager.Notification) bool {
	fmt.Fprintf(out, "%s wants to use your %s.\n", n.Origin, describeKinds(n.Audio, n.Video))
	for _, d := range n.Devices {
		fmt.Fprintf(out, "  %s: %s\n", d.Kind, d.Name)
	}
	fmt.Fprint(out, "Allow? [y/N] ")

	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// permissionsCmd creates the permissions command and its subcommands.
func permissionsCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "permissions",
		Usage: "List, set or forget remembered camera and microphone decisions",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List remembered decisions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "origin", Aliases: []string{"o"}, Usage: "Only this origin"},
				},
				Action: func(c *cli.Context) error {
					perms, err := svc.perms.List(c.Context, c.String("origin"))
					if err != nil {
						return outputError(err)
					}
					if perms == nil {
						return outputJSON(map[string]any{"permissions": []any{}})
					}
					return outputJSON(map[string]any{"permissions": perms})
				},
			},
			{
				Name:  "set",
				Usage: "Remember a decision",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "origin", Aliases: []string{"o"}, Required: true, Usage: "Origin"},
					&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Required: true, Usage: "camera|microphone"},
					&cli.StringFlag{Name: "state", Aliases: []string{"s"}, Required: true, Usage: "allow|deny|prompt"},
				},
				Action: func(c *cli.Context) error {
					origin, kind, state := c.String("origin"), c.String("kind"), c.String("state")
					if err := svc.perms.Set(c.Context, origin, kind, state); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"origin": origin, "kind": kind, "state": state})
				},
			},
			{
				Name:  "forget",
				Usage: "Forget every decision for an origin",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "origin", Aliases: []string{"o"}, Required: true, Usage: "Origin"},
				},
				Action: func(c *cli.Context) error {
					origin := c.String("origin")
					if err := svc.perms.Forget(c.Context, origin); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"origin": origin, "forgotten": true})
				},
			},
		},
	}
}

// forgetCmd creates the forget command.
func forgetCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "forget",
		Usage: "Forget origin keys so device ids change for every origin",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "since", Usage: "Only keys created since: RFC3339 time or age like 24h, 7d"},
			&cli.BoolFlag{Name: "only-private", Usage: "Keep regular keys"},
		},
		Action: func(c *cli.Context) error {
			since, err := parseSince(c.String("since"), time.Now())
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			removed, err := svc.keys.Sanitize(c.Context, since, c.Bool("only-private"))
			if err != nil {
				return outputError(err)
			}

			return outputJSON(map[string]any{"removed": removed})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the MCP server on stdio (the default without a command)",
		Action: func(c *cli.Context) error {
			return runMCP(svc)
		},
	}
}

// uiCmd creates the ui command.
func uiCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "ui",
		Usage: "Serve the recording indicator web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Usage: "Listen address (defaults to ui_addr)"},
		},
		Action: func(c *cli.Context) error {
			log := svc.logs.NewLogger("web")
			hub := web.NewHub(log)
			mgr := svc.newManager(hub)
			defer mgr.Shutdown()

			srv, err := web.NewServer(web.Deps{
				Manager:     mgr,
				Keys:        svc.keys,
				Permissions: svc.perms,
				Hub:         hub,
				Logger:      log,
			}, svc.cfg, Version)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if addr := c.String("addr"); addr != "" {
				srv.Addr = addr
			}

			return web.Run(srv, hub, log)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if mErr, ok := errors.As(err); ok {
		msg := mErr.Message
		if mErr.Constraint != "" {
			msg += " (constraint: " + mErr.Constraint + ")"
		}
		return cli.Exit(fmt.Sprintf("[%s] %s", mErr.Code, msg), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readConstraints reads the request document named by the first argument,
// or stdin when the argument is "-" or missing and stdin is piped.
func readConstraints(c *cli.Context) (constraints.MediaStreamConstraints, error) {
	var (
		name string
		data []byte
		err  error
	)
	switch path := c.Args().First(); {
	case path != "" && path != "-":
		name = path
		data, err = os.ReadFile(path)
	case stdinHasData():
		data, err = io.ReadAll(os.Stdin)
	default:
		return constraints.MediaStreamConstraints{}, errors.NewInvalidRequest("constraints must be given as a file or piped via stdin")
	}
	if err != nil {
		return constraints.MediaStreamConstraints{}, errors.NewInvalidRequest(fmt.Sprintf("read constraints: %v", err))
	}
	return parseConstraints(name, data)
}

// parseConstraints decodes JSON or YAML, chosen by extension and otherwise by
// whether the document starts with '{'.
func parseConstraints(name string, data []byte) (constraints.MediaStreamConstraints, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return constraints.MediaStreamConstraints{}, errors.NewInvalidRequest("constraints document is empty")
	}

	var (
		doc constraints.MediaStreamConstraints
		err error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		doc, err = constraints.ParseYAML(trimmed)
	case ".json":
		doc, err = constraints.ParseJSON(trimmed)
	default:
		if trimmed[0] == '{' {
			doc, err = constraints.ParseJSON(trimmed)
		} else {
			doc, err = constraints.ParseYAML(trimmed)
		}
	}
	if err != nil {
		return constraints.MediaStreamConstraints{}, errors.NewInvalidRequest(fmt.Sprintf("invalid constraints: %v", err))
	}
	return doc, nil
}

// parseSince turns "" into the zero time (everything), an age like "24h" or
// "7d" into now minus that age, and anything else into an RFC3339 time.
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if age, err := parseAge(s); err == nil {
		return now.Add(-age), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since %q: want RFC3339 or an age like 24h or 7d", s)
	}
	return t, nil
}

// parseAge accepts Go durations plus a "d" suffix for days.
func parseAge(s string) (time.Duration, error) {
	var d time.Duration
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid age: %s", s)
		}
		d = time.Duration(days) * 24 * time.Hour
	} else {
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, err
		}
	}
	if d < 0 {
		return 0, fmt.Errorf("age must be non-negative")
	}
	return d, nil
}
