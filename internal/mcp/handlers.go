package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/mediamgr/internal/config"
	"github.com/hpungsan/mediamgr/internal/constraints"
	"github.com/hpungsan/mediamgr/internal/db"
	"github.com/hpungsan/mediamgr/internal/device"
	"github.com/hpungsan/mediamgr/internal/engine"
	"github.com/hpungsan/mediamgr/internal/errors"
	"github.com/hpungsan/mediamgr/internal/manager"
	"github.com/hpungsan/mediamgr/internal/principal"
)

const (
	defaultWait = 2 * time.Second
	maxWait     = 30 * time.Second
)

// Deps are the services the tools drive.
type Deps struct {
	Manager     *manager.Manager
	Keys        *principal.KeyService
	Permissions *principal.PermissionStore

	// Engine backs media_select_devices. It may be shared with the manager.
	Engine engine.Engine
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	mgr   *manager.Manager
	keys  *principal.KeyService
	perms *principal.PermissionStore
	eng   engine.Engine
	cfg   *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, cfg *config.Config) *Handlers {
	return &Handlers{
		mgr:   deps.Manager,
		keys:  deps.Keys,
		perms: deps.Permissions,
		eng:   deps.Engine,
		cfg:   cfg,
	}
}

// Request types for each tool

// WindowArgs identify the calling document.
type WindowArgs struct {
	WindowID   uint64 `json:"window_id"`
	Origin     string `json:"origin"`
	Private    bool   `json:"private,omitempty"`
	Privileged bool   `json:"privileged,omitempty"`
}

func (w WindowArgs) info() manager.WindowInfo {
	return manager.WindowInfo{
		ID:         w.WindowID,
		Origin:     w.Origin,
		Private:    w.Private,
		Privileged: w.Privileged,
	}
}

// GetUserMediaRequest represents the arguments for media_get_user_media.
type GetUserMediaRequest struct {
	WindowArgs
	constraints.MediaStreamConstraints
	TimeoutMS int `json:"timeout_ms,omitempty"`
}

// AllowRequest represents the arguments for media_allow.
type AllowRequest struct {
	CallID    string   `json:"call_id"`
	DeviceIDs []string `json:"device_ids,omitempty"`
	Remember  bool     `json:"remember,omitempty"`
}

// DenyRequest represents the arguments for media_deny.
type DenyRequest struct {
	CallID    string `json:"call_id"`
	ErrorName string `json:"error_name,omitempty"`
	Remember  bool   `json:"remember,omitempty"`
}

// StopRequest represents the arguments for media_stop.
type StopRequest struct {
	WindowID uint64 `json:"window_id"`
	StreamID uint64 `json:"stream_id"`
}

// NavigateRequest represents the arguments for media_navigate.
type NavigateRequest struct {
	WindowID uint64 `json:"window_id"`
}

// PendingCallsRequest represents the arguments for media_pending_calls.
type PendingCallsRequest struct {
	WindowID *uint64 `json:"window_id,omitempty"`
}

// SelectDevicesRequest represents the arguments for media_select_devices.
type SelectDevicesRequest struct {
	Kind        string                             `json:"kind"`
	Constraints *constraints.MediaTrackConstraints `json:"constraints,omitempty"`
	Origin      string                             `json:"origin,omitempty"`
}

// PermissionsRequest represents the arguments for media_permissions.
type PermissionsRequest struct {
	Origin string `json:"origin,omitempty"`
	Action string `json:"action,omitempty"`
	Kind   string `json:"kind,omitempty"`
	State  string `json:"state,omitempty"`
}

// ForgetOriginKeysRequest represents the arguments for media_forget_origin_keys.
type ForgetOriginKeysRequest struct {
	Since       string `json:"since,omitempty"`
	OnlyPrivate bool   `json:"only_private,omitempty"`
}

// Result types

// GetUserMediaResult is either a started stream or the calls awaiting a decision.
type GetUserMediaResult struct {
	Status       string                `json:"status"`
	Stream       *manager.Stream       `json:"stream,omitempty"`
	PendingCalls []manager.PendingCall `json:"pending_calls,omitempty"`
}

// SelectDevicesResult lists the devices that satisfy the constraints, best first.
type SelectDevicesResult struct {
	Candidates    []device.Ranked `json:"candidates"`
	BadConstraint string          `json:"bad_constraint,omitempty"`
}

// Handler implementations

// HandleEnumerateDevices handles the media_enumerate_devices tool call.
func (h *Handlers) HandleEnumerateDevices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WindowArgs](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()
	infos, err := h.mgr.EnumerateDevices(input.info()).Await(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"devices": infos})
}

// HandleGetUserMedia handles the media_get_user_media tool call.
func (h *Handlers) HandleGetUserMedia(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetUserMediaRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	wait := defaultWait
	if input.TimeoutMS > 0 {
		wait = min(time.Duration(input.TimeoutMS)*time.Millisecond, maxWait)
	}

	p := h.mgr.GetUserMedia(input.info(), input.MediaStreamConstraints)
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	stream, err := p.Await(waitCtx)
	if err != nil {
		if waitCtx.Err() == nil {
			return errorResult(err), nil
		}
		return successResult(GetUserMediaResult{
			Status:       "pending",
			PendingCalls: h.pendingFor(input.WindowID),
		})
	}

	return successResult(GetUserMediaResult{Status: "started", Stream: stream})
}

func (h *Handlers) pendingFor(windowID uint64) []manager.PendingCall {
	var out []manager.PendingCall
	for _, pc := range h.mgr.PendingCalls() {
		if pc.WindowID == windowID {
			out = append(out, pc)
		}
	}
	return out
}

// HandleAllow handles the media_allow tool call.
func (h *Handlers) HandleAllow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AllowRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.CallID == "" {
		return errorResult(errors.NewInvalidRequest("call_id is required")), nil
	}

	if err := h.mgr.Allow(input.CallID, input.DeviceIDs, input.Remember); err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"call_id": input.CallID, "allowed": true})
}

// HandleDeny handles the media_deny tool call.
func (h *Handlers) HandleDeny(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DenyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.CallID == "" {
		return errorResult(errors.NewInvalidRequest("call_id is required")), nil
	}

	if err := h.mgr.Deny(input.CallID, input.ErrorName, input.Remember); err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"call_id": input.CallID, "denied": true})
}

// HandleStop handles the media_stop tool call.
func (h *Handlers) HandleStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StopRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if err := h.mgr.Stop(input.WindowID, input.StreamID); err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"window_id": input.WindowID, "stream_id": input.StreamID, "stopped": true})
}

// HandleNavigate handles the media_navigate tool call.
func (h *Handlers) HandleNavigate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NavigateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	h.mgr.OnNavigation(input.WindowID)

	return successResult(map[string]any{"window_id": input.WindowID})
}

// HandleWindows handles the media_windows tool call.
func (h *Handlers) HandleWindows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	windows := h.mgr.Windows()
	if windows == nil {
		windows = []manager.WindowState{}
	}
	return successResult(map[string]any{"windows": windows, "stats": h.mgr.Stats()})
}

// HandlePendingCalls handles the media_pending_calls tool call.
func (h *Handlers) HandlePendingCalls(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PendingCallsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var calls []manager.PendingCall
	if input.WindowID != nil {
		calls = h.pendingFor(*input.WindowID)
	} else {
		calls = h.mgr.PendingCalls()
	}
	if calls == nil {
		calls = []manager.PendingCall{}
	}

	return successResult(map[string]any{"calls": calls})
}

// HandleSelectDevices handles the media_select_devices tool call.
func (h *Handlers) HandleSelectDevices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SelectDevicesRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if h.eng == nil {
		return errorResult(errors.NewInternal(nil)), nil
	}

	var raw constraints.MediaTrackConstraints
	if input.Constraints != nil {
		raw = *input.Constraints
	}

	var key string
	if input.Origin != "" {
		key, err = h.keys.GetOriginKey(ctx, input.Origin, false, false)
		if err != nil {
			return errorResult(err), nil
		}
	}

	ranked, bad, err := device.RankKind(h.eng, engine.Kind(input.Kind), raw, key)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(SelectDevicesResult{Candidates: ranked, BadConstraint: bad})
}

// HandlePermissions handles the media_permissions tool call.
func (h *Handlers) HandlePermissions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PermissionsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	switch input.Action {
	case "", "list":
	case "set":
		if input.Origin == "" {
			return errorResult(errors.NewInvalidRequest("origin is required")), nil
		}
		if err := h.perms.Set(ctx, input.Origin, input.Kind, input.State); err != nil {
			return errorResult(err), nil
		}
	case "forget":
		if input.Origin == "" {
			return errorResult(errors.NewInvalidRequest("origin is required")), nil
		}
		if err := h.perms.Forget(ctx, input.Origin); err != nil {
			return errorResult(err), nil
		}
	default:
		return errorResult(errors.NewInvalidRequest("action must be list, set or forget")), nil
	}

	perms, err := h.perms.List(ctx, input.Origin)
	if err != nil {
		return errorResult(err), nil
	}
	if perms == nil {
		perms = []db.Permission{}
	}
	return successResult(map[string]any{"permissions": perms})
}

// HandleForgetOriginKeys handles the media_forget_origin_keys tool call.
func (h *Handlers) HandleForgetOriginKeys(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ForgetOriginKeysRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var since time.Time
	if input.Since != "" {
		since, err = time.Parse(time.RFC3339, input.Since)
		if err != nil {
			return errorResult(errors.NewInvalidRequest("since must be an RFC3339 time")), nil
		}
	}

	removed, err := h.keys.Sanitize(ctx, since, input.OnlyPrivate)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"removed": removed})
}

// errorResult creates an MCP error result from an error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if mErr, ok := errors.As(err); ok {
		msg := mErr.Message
		if err != error(mErr) {
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    mErr.Code,
			"message": msg,
			"status":  mErr.Status,
		}
		// Internal errors may carry paths or SQL text.
		if mErr.Code != errors.ErrInternal && mErr.Details != nil {
			errorObj["details"] = mErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
