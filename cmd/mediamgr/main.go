package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/logging"

	// Registers the V4L2 / AVFoundation camera driver with the pion backend.
	_ "github.com/pion/mediadevices/pkg/driver/camera"

	"github.com/hpungsan/mediamgr/internal/config"
	"github.com/hpungsan/mediamgr/internal/db"
	"github.com/hpungsan/mediamgr/internal/engine"
	"github.com/hpungsan/mediamgr/internal/manager"
	"github.com/hpungsan/mediamgr/internal/mcp"
	"github.com/hpungsan/mediamgr/internal/principal"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"devices": true, "select": true, "capture": true,
	"permissions": true, "forget": true,
	"serve": true, "ui": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
                   _ _
   _ __ ___   ___ | (_) __ _ _ __ ___   __ _ _ __
  | '_ ' _ \ / _ \/ _' |/ _' | '_ ' _ \ / _' | '__|
  | | | | | |  __/ (_| | (_| | | | | | | (_| | |
  |_| |_| |_|\___|\__,_|\__,_|_| |_| |_|\__, |_|
                                        |___/
  Camera and microphone access broker

  Usage: mediamgr <command> [options]
         mediamgr --help

  MCP server mode requires piped input.`)
}

// services is everything a command needs, built once per process.
type services struct {
	db     *sql.DB
	cfg    *config.Config
	logs   logging.LoggerFactory
	keys   *principal.KeyService
	perms  *principal.PermissionStore
	engine engine.Engine
}

func newServices(database *sql.DB, cfg *config.Config, logs logging.LoggerFactory) (*services, error) {
	eng, err := newEngine(cfg, logs.NewLogger("engine"))
	if err != nil {
		return nil, err
	}
	return &services{
		db:     database,
		cfg:    cfg,
		logs:   logs,
		keys:   principal.NewKeyService(database, logs.NewLogger("principal")),
		perms:  principal.NewPermissionStore(database),
		engine: eng,
	}, nil
}

// newManager starts a manager over the shared engine. The caller shuts it down.
func (s *services) newManager(obs manager.Observer) *manager.Manager {
	return manager.New(manager.Options{
		Config:      s.cfg,
		Keys:        s.keys,
		Permissions: s.perms,
		NewBackend:  func() (engine.Engine, error) { return s.engine, nil },
		Observer:    obs,
		Logger:      s.logs.NewLogger("manager"),
	})
}

func newEngine(cfg *config.Config, log logging.LeveledLogger) (engine.Engine, error) {
	switch cfg.Backend {
	case "", "pion":
		return engine.NewPion(log), nil
	case "fake":
		return engine.NewFake(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want pion or fake)", cfg.Backend)
	}
}

// newLoggerFactory writes to stderr so stdout stays free for MCP and JSON output.
func newLoggerFactory(level string) *logging.DefaultLoggerFactory {
	return &logging.DefaultLoggerFactory{
		Writer:          os.Stderr,
		DefaultLogLevel: parseLogLevel(level),
		ScopeLevels:     make(map[string]logging.LogLevel),
	}
}

func parseLogLevel(s string) logging.LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off":
		return logging.LogLevelDisabled
	case "error":
		return logging.LogLevelError
	case "warn", "warning":
		return logging.LogLevelWarn
	case "debug":
		return logging.LogLevelDebug
	case "trace":
		return logging.LogLevelTrace
	default:
		return logging.LogLevelInfo
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fatal("could not determine home directory: %v", err)
	}

	baseDir := filepath.Join(homeDir, ".mediamgr")

	database, err := db.Init(baseDir)
	if err != nil {
		fatal("failed to initialize database: %v", err)
	}
	defer database.Close()

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	cfg, err = config.ApplyEnv(cfg, filepath.Join(baseDir, ".env"))
	if err != nil {
		fatal("failed to load environment: %v", err)
	}
	db.ConfigurePool(database, cfg)

	logs := newLoggerFactory(cfg.LogLevel)
	svc, err := newServices(database, cfg, logs)
	if err != nil {
		fatal("%v", err)
	}

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(svc)
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'mediamgr --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := runMCP(svc); err != nil {
		fatal("%v", err)
	}
}

// runMCP serves the tools over stdio until the client disconnects.
func runMCP(svc *services) error {
	log := svc.logs.NewLogger("mcp")
	for _, name := range mcp.ValidateDisabledTools(svc.cfg.DisabledTools) {
		log.Warnf("disabled_tools: unknown tool %q", name)
	}

	mgr := svc.newManager(manager.ObserverFunc(func(n manager.Notification) {
		if n.Topic == manager.TopicRequest {
			log.Infof("%s asks for %s (call %s); answer with media_allow or media_deny",
				n.Origin, describeKinds(n.Audio, n.Video), n.CallID)
		}
	}))
	defer mgr.Shutdown()

	return mcp.Run(mcp.Deps{
		Manager:     mgr,
		Keys:        svc.keys,
		Permissions: svc.perms,
		Engine:      svc.engine,
	}, svc.cfg, Version)
}

func describeKinds(audio, video bool) string {
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
