package mcp

import "github.com/mark3labs/mcp-go/mcp"

// windowOptions are shared by every tool that acts for a document.
func windowOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("window_id",
			mcp.Required(),
			mcp.Description("Id of the requesting window. Windows are created on first use."),
		),
		mcp.WithString("origin",
			mcp.Required(),
			mcp.Description("Origin of the requesting document, e.g. https://meet.example"),
		),
		mcp.WithBoolean("private",
			mcp.Description("Private browsing window. Keys and decisions are never persisted."),
		),
		mcp.WithBoolean("privileged",
			mcp.Description("Trusted caller: no prompt, labels always visible, raw device ids match."),
		),
	}
}

func toolWithWindow(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	all := append([]mcp.ToolOption{mcp.WithDescription(description)}, windowOptions()...)
	return mcp.NewTool(name, append(all, opts...)...)
}

var enumerateDevicesToolDef = toolWithWindow("media_enumerate_devices",
	"List cameras and microphones with device ids anonymized for the origin. "+
		"Labels stay empty until the origin captures or holds a remembered grant.",
)

var getUserMediaToolDef = toolWithWindow("media_get_user_media",
	"Request capture devices. Returns the started stream, or status=pending with the call ids "+
		"awaiting media_allow / media_deny when the request needs permission.",
	mcp.WithObject("video",
		mcp.Description("Video track constraints (width, height, frameRate, facingMode, deviceId, mediaSource, advanced). "+
			"Use {} for any camera. Omit for no video."),
	),
	mcp.WithObject("audio",
		mcp.Description("Audio track constraints (channelCount, echoCancellation, deviceId, mediaSource, advanced). "+
			"Use {} for any microphone. Omit for no audio."),
	),
	mcp.WithBoolean("fake",
		mcp.Description("Use the fake backend"),
	),
	mcp.WithNumber("timeout_ms",
		mcp.Description("How long to wait for the stream before reporting pending (default 2000, max 30000)"),
	),
)

var allowToolDef = mcp.NewTool("media_allow",
	mcp.WithDescription("Grant a pending request. Without device_ids the best fit of each kind is used."),
	mcp.WithString("call_id",
		mcp.Required(),
		mcp.Description("Call id from media_get_user_media or media_pending_calls"),
	),
	mcp.WithArray("device_ids",
		mcp.Description("Chosen devices, one per requested kind"),
		mcp.Items(map[string]any{"type": "string"}),
	),
	mcp.WithBoolean("remember",
		mcp.Description("Persist the grant for the origin's camera/microphone"),
	),
)

var denyToolDef = mcp.NewTool("media_deny",
	mcp.WithDescription("Refuse a pending request"),
	mcp.WithString("call_id",
		mcp.Required(),
		mcp.Description("Call id of the pending request"),
	),
	mcp.WithString("error_name",
		mcp.Description("Error reported to the requester (default PermissionDeniedError)"),
	),
	mcp.WithBoolean("remember",
		mcp.Description("Persist the denial for the origin's camera/microphone"),
	),
)

var stopToolDef = mcp.NewTool("media_stop",
	mcp.WithDescription("Stop a running stream and release its devices"),
	mcp.WithNumber("window_id",
		mcp.Required(),
		mcp.Description("Window the stream belongs to"),
	),
	mcp.WithNumber("stream_id",
		mcp.Required(),
		mcp.Description("Stream id from media_get_user_media or media_windows"),
	),
)

var navigateToolDef = mcp.NewTool("media_navigate",
	mcp.WithDescription("Tear down a window: pending calls are dropped and every stream is stopped"),
	mcp.WithNumber("window_id",
		mcp.Required(),
		mcp.Description("Window that navigated away or closed"),
	),
)

var windowsToolDef = mcp.NewTool("media_windows",
	mcp.WithDescription("Snapshot of windows with streams or pending requests"),
)

var pendingCallsToolDef = mcp.NewTool("media_pending_calls",
	mcp.WithDescription("Requests waiting for media_allow or media_deny"),
	mcp.WithNumber("window_id",
		mcp.Description("Only calls of this window"),
	),
)

var selectDevicesToolDef = mcp.NewTool("media_select_devices",
	mcp.WithDescription("Dry-run device selection: rank devices of one kind against constraints "+
		"without allocating anything."),
	mcp.WithString("kind",
		mcp.Required(),
		mcp.Description("video or audio"),
		mcp.Enum("video", "audio"),
	),
	mcp.WithObject("constraints",
		mcp.Description("Track constraints, same shape as media_get_user_media video/audio"),
	),
	mcp.WithString("origin",
		mcp.Description("Anonymize device ids for this origin. Raw ids when omitted."),
	),
)

var permissionsToolDef = mcp.NewTool("media_permissions",
	mcp.WithDescription("List or change remembered camera/microphone decisions"),
	mcp.WithString("origin",
		mcp.Description("Only this origin. Required for set and forget."),
	),
	mcp.WithString("action",
		mcp.Description("list (default), set, or forget"),
		mcp.Enum("list", "set", "forget"),
	),
	mcp.WithString("kind",
		mcp.Description("camera or microphone (set only)"),
	),
	mcp.WithString("state",
		mcp.Description("allow, deny, or prompt (set only)"),
	),
)

var forgetOriginKeysToolDef = mcp.NewTool("media_forget_origin_keys",
	mcp.WithDescription("Forget device-id keys so origins see fresh ids"),
	mcp.WithString("since",
		mcp.Description("RFC3339 time. Only keys created at or after it are forgotten. All keys when omitted."),
	),
	mcp.WithBoolean("only_private",
		mcp.Description("Only forget private browsing keys"),
	),
)
