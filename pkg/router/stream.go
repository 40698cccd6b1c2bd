package router

import (
	"context"
	"fmt"
	"time"

	"github.com/idris/kestrel/pkg/provider"
)

// Stream executes a streaming completion. Candidates are attempted in the
// same order as Complete, but once a provider has delivered its first
// chunk there is no fallback: partial output has already reached the
// consumer, so later errors are reported through a terminal chunk with
// Err set instead of being retried.
func (r *Router) Stream(ctx context.Context, req provider.CompletionRequest, onChunk func(provider.StreamChunk)) *provider.CompletionResponse {
	candidates := r.candidates()
	if len(candidates) == 0 {
		resp := errorResponse("no providers available")
		onChunk(provider.StreamChunk{Done: true, Err: fmt.Errorf("no providers available")})
		return resp
	}

	var lastErr error

	for i, cand := range candidates {
		if !r.isAvailable(cand) && i != len(candidates)-1 {
			continue
		}

		started := false
		wrapped := func(chunk provider.StreamChunk) {
			if chunk.Text != "" {
				started = true
			}
			onChunk(chunk)
		}

		start := time.Now()
		resp, err := cand.prov.Stream(ctx, req, wrapped)
		elapsed := time.Since(start)

		if err == nil {
			r.recordSuccess(cand, elapsed)
			if i != 0 {
				r.notifyFallback(candidates[0], cand, lastErr)
			}
			return resp
		}

		lastErr = err
		r.recordError(cand, elapsed)
		r.logger.Warn().
			Str("provider", cand.prov.Name()).
			Bool("started", started).
			Err(err).
			Msg("Streaming attempt failed")

		if started {
			// Tokens already delivered; report terminally, do not retry.
			onChunk(provider.StreamChunk{Done: true, Err: err})
			return errorResponse(fmt.Sprintf("stream failed after partial output: %v", err))
		}
	}

	msg := "all providers failed"
	if lastErr != nil {
		msg = fmt.Sprintf("all providers failed: %v", lastErr)
	}
	onChunk(provider.StreamChunk{Done: true, Err: fmt.Errorf("%s", msg)})
	return errorResponse(msg)
}
