package telemetry

import (
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/posthog/posthog-go"
)

// Client records usage events. The serve loop holds one for its lifetime;
// tests substitute their own.
type Client interface {
	// Track sends an event asynchronously and returns immediately. On a
	// disabled client it is a no-op.
	Track(event string, properties map[string]any)

	// Close flushes pending events and releases the client.
	Close() error
}

// Properties holds event properties.
type Properties = map[string]any

// allowedProps is the closed set of property keys an event may carry.
// Anything not named here is dropped before enqueue, so memory content
// cannot ride along in an event even by a caller's mistake.
var allowedProps = map[string]struct{}{
	"tool":        {},
	"duration_ms": {},
	"success":     {},
	"error_type":  {},
}

// sanitize filters properties down to the allowed keys.
func sanitize(props map[string]any) map[string]any {
	if len(props) == 0 {
		return nil
	}
	clean := make(map[string]any, len(props))
	for k, v := range props {
		if _, ok := allowedProps[k]; ok {
			clean[k] = v
		}
	}
	return clean
}

// NoopClient swallows every call. It stands in whenever telemetry is off,
// so call sites never branch on consent.
type NoopClient struct{}

// NewNoopClient returns a client that does nothing.
func NewNoopClient() *NoopClient {
	return &NoopClient{}
}

// Track is a no-op.
func (c *NoopClient) Track(event string, properties map[string]any) {}

// Close is a no-op.
func (c *NoopClient) Close() error { return nil }

// enqueuer is the slice of the PostHog client the wrapper needs. Tests
// swap in a capturing fake.
type enqueuer interface {
	io.Closer
	Enqueue(msg posthog.Message) error
}

// PostHogClient ships events to PostHog in the background.
type PostHogClient struct {
	client      enqueuer
	config      *Config
	version     string
	mu          sync.RWMutex
	initialized bool
}

// ClientConfig carries what the PostHog wrapper needs at construction.
type ClientConfig struct {
	// APIKey is the PostHog project API key.
	APIKey string

	// Version is the engram version string.
	Version string

	// Config is the telemetry consent record (enabled state, anonymous ID).
	Config *Config

	// Endpoint overrides the PostHog cloud endpoint for self-hosted
	// deployments. Empty means the default.
	Endpoint string
}

// NewPostHogClient creates the PostHog wrapper. With an empty APIKey or nil
// Config it returns an uninitialized client whose Track does nothing.
func NewPostHogClient(cfg ClientConfig) (*PostHogClient, error) {
	if cfg.APIKey == "" || cfg.Config == nil {
		return &PostHogClient{config: cfg.Config, version: cfg.Version}, nil
	}

	ph, err := posthog.NewWithConfig(cfg.APIKey, posthog.Config{
		BatchSize: 10,
		// Serve sessions are long-lived; Close flushes the tail on shutdown.
		Interval: 30 * time.Second,
		Endpoint: cfg.Endpoint,
		// Telemetry must never pollute stderr with transport warnings.
		Logger: discardLogger{},
	})
	if err != nil {
		return nil, err
	}

	return &PostHogClient{
		client:      ph,
		config:      cfg.Config,
		version:     cfg.Version,
		initialized: true,
	}, nil
}

// newPostHogClientWithEnqueuer creates a client with a custom enqueuer (for testing).
func newPostHogClientWithEnqueuer(enq enqueuer, cfg *Config, version string) *PostHogClient {
	return &PostHogClient{
		client:      enq,
		config:      cfg,
		version:     version,
		initialized: true,
	}
}

// Track enqueues one event. Unknown property keys are dropped; os, arch,
// and version are always attached. No-op when the client is uninitialized
// or consent is off.
func (c *PostHogClient) Track(event string, properties map[string]any) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized || c.config == nil || !c.config.IsEnabled() {
		return
	}

	props := posthog.NewProperties()
	for k, v := range sanitize(properties) {
		props.Set(k, v)
	}
	props.
		Set("os", runtime.GOOS).
		Set("arch", runtime.GOARCH).
		Set("version", c.version).
		// PostHog must not build person profiles from anonymous events.
		Set("$process_person_profile", false)

	_ = c.client.Enqueue(posthog.Capture{
		DistinctId: c.config.AnonymousID,
		Event:      event,
		Properties: props,
	})
}

// Close flushes pending events and closes the underlying client.
func (c *PostHogClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized || c.client == nil {
		return nil
	}
	// PostHog's Close() flushes the queue with its own internal timeouts
	return c.client.Close()
}

// discardLogger drops PostHog client logs; on a stdio server they have
// nowhere useful to go.
type discardLogger struct{}

func (discardLogger) Debugf(string, ...any) {}
func (discardLogger) Logf(string, ...any)   {}
func (discardLogger) Warnf(string, ...any)  {}
func (discardLogger) Errorf(string, ...any) {}
