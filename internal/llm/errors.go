package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
)

// RateLimitError marks a provider throttle response. Callers detect it
// behaviorally through the RateLimited method rather than importing this
// package, so retry loops stay decoupled from the provider layer.
type RateLimitError struct {
	Provider string
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// RateLimited reports that backing off and retrying is worthwhile.
func (e *RateLimitError) RateLimited() bool { return true }

// throttleMarkers are substrings the provider SDKs put in throttle errors.
// The eino extensions return plain wrapped errors, so string matching is the
// only classification signal available.
var throttleMarkers = []string{
	"429",
	"rate limit",
	"rate_limit",
	"too many requests",
	"resource_exhausted",
	"quota exceeded",
}

// classifyProviderError wraps throttle-shaped errors in *RateLimitError and
// returns everything else unchanged.
func classifyProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range throttleMarkers {
		if strings.Contains(msg, marker) {
			return &RateLimitError{Provider: provider, Err: err}
		}
	}
	return err
}

// classifyingEmbedder decorates a provider embedder so throttle errors come
// back typed. It is the only embedder implementation handed out by NewEmbedder.
type classifyingEmbedder struct {
	inner    embedding.Embedder
	provider string
}

func (c *classifyingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	vecs, err := c.inner.EmbedStrings(ctx, texts, opts...)
	if err != nil {
		return nil, classifyProviderError(c.provider, err)
	}
	return vecs, nil
}

// placeholderKeyMarkers catch the sample values shipped in env templates.
var placeholderKeyMarkers = []string{
	"your-api-key",
	"your_api_key",
	"your-key",
	"changeme",
	"change-me",
	"replace-me",
	"placeholder",
	"xxxx",
	"<",
}

func placeholderKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, marker := range placeholderKeyMarkers {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}
