package telemetry

import "os"

// Event names sent by the serve loop.
const (
	EventToolInvoked  = "tool_invoked"
	EventServeStarted = "serve_started"
	EventServeStopped = "serve_stopped"
)

// EnvKillSwitch disables telemetry regardless of consent when set to "off".
const EnvKillSwitch = "ENGRAM_TELEMETRY"

// apiKey is the PostHog project API key, injected at release build time:
//
//	go build -ldflags "-X github.com/engramlabs/engram/internal/telemetry.apiKey=phc_..."
//
// Development builds have no key, so telemetry stays off.
var apiKey string

// APIKey returns the build-time PostHog key, with ENGRAM_POSTHOG_API_KEY as
// an override for self-hosted deployments.
func APIKey() string {
	if v := os.Getenv("ENGRAM_POSTHOG_API_KEY"); v != "" {
		return v
	}
	return apiKey
}

// KillSwitchActive reports whether the environment turns telemetry off.
func KillSwitchActive() bool {
	return os.Getenv(EnvKillSwitch) == "off"
}

// Init assembles the process-wide client. It returns a NoopClient unless an
// API key is present, the consent record enables telemetry, the main config
// does not disable it, and no kill switch is set. Init never fails: a broken
// consent file means no telemetry, not a startup error.
func Init(version string, enabledInConfig bool) Client {
	if !enabledInConfig || KillSwitchActive() {
		return NewNoopClient()
	}

	key := APIKey()
	if key == "" {
		return NewNoopClient()
	}

	consent, err := Load()
	if err != nil || !consent.IsEnabled() {
		return NewNoopClient()
	}

	client, err := NewPostHogClient(ClientConfig{
		APIKey:  key,
		Version: version,
		Config:  consent,
	})
	if err != nil {
		return NewNoopClient()
	}
	return client
}

// TrackTool records one MCP tool invocation. Only the tool name, duration,
// and outcome are sent, never arguments or memory content.
func TrackTool(c Client, tool string, durationMs int64, success bool, errorType string) {
	if c == nil {
		return
	}
	props := Properties{
		"tool":        tool,
		"duration_ms": durationMs,
		"success":     success,
	}
	if errorType != "" {
		props["error_type"] = errorType
	}
	c.Track(EventToolInvoked, props)
}
