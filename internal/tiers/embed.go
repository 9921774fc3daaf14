package tiers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"
)

// Embedding statuses reported back to tool callers.
const (
	EmbedStatusSuccess = "success"
	EmbedStatusRetried = "retried"
)

// ErrEmbedding wraps every provider failure that survives the retry budget,
// including a missing provider. The tool layer keys its embedding error
// category off it.
var ErrEmbedding = errors.New("embedding failed")

const (
	maxEmbedRetries = 3
	embedBackoffMin = time.Second
)

// backoffSleep is swapped out in tests so retry paths run instantly.
var backoffSleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// rateLimited is implemented by provider errors caused by throttling.
// Only those are retried; everything else fails fast.
type rateLimited interface{ RateLimited() bool }

func isRateLimited(err error) bool {
	var rl rateLimited
	return errors.As(err, &rl) && rl.RateLimited()
}

// embedWithRetry embeds texts in one batch, backing off 1s/2s/4s on rate
// limits before giving up. Reports whether any retry was needed.
func embedWithRetry(ctx context.Context, embedder embedding.Embedder, texts []string) ([][]float32, string, error) {
	if embedder == nil {
		return nil, "", fmt.Errorf("%w: no provider configured (set the embedding API key)", ErrEmbedding)
	}

	backoff := embedBackoffMin
	for attempt := 0; ; attempt++ {
		vecs, err := embedder.EmbedStrings(ctx, texts)
		if err == nil {
			if len(vecs) != len(texts) {
				return nil, "", fmt.Errorf("%w: got %d vectors for %d text(s)", ErrEmbedding, len(vecs), len(texts))
			}
			out := make([][]float32, len(vecs))
			for i, v := range vecs {
				out[i] = make([]float32, len(v))
				for j, x := range v {
					out[i][j] = float32(x)
				}
			}
			status := EmbedStatusSuccess
			if attempt > 0 {
				status = EmbedStatusRetried
			}
			return out, status, nil
		}
		if !isRateLimited(err) || attempt == maxEmbedRetries {
			return nil, "", fmt.Errorf("%w: embed %d text(s): %v", ErrEmbedding, len(texts), err)
		}
		if serr := backoffSleep(ctx, backoff); serr != nil {
			return nil, "", serr
		}
		backoff *= 2
	}
}
