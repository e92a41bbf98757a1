// Package mcp exposes the media manager as MCP tools over stdio.
package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/mediamgr/internal/config"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"media_enumerate_devices": {
		def:     enumerateDevicesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEnumerateDevices },
	},
	"media_get_user_media": {
		def:     getUserMediaToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGetUserMedia },
	},
	"media_allow": {
		def:     allowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAllow },
	},
	"media_deny": {
		def:     denyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDeny },
	},
	"media_stop": {
		def:     stopToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStop },
	},
	"media_navigate": {
		def:     navigateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNavigate },
	},
	"media_windows": {
		def:     windowsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWindows },
	},
	"media_pending_calls": {
		def:     pendingCallsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePendingCalls },
	},
	"media_select_devices": {
		def:     selectDevicesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSelectDevices },
	},
	"media_permissions": {
		def:     permissionsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePermissions },
	},
	"media_forget_origin_keys": {
		def:     forgetOriginKeysToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleForgetOriginKeys },
	},
}

// AllToolNames returns every valid tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the media tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(deps Deps, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"mediamgr",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps, cfg)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(deps Deps, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(deps, cfg, version))
}
