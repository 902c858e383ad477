package core

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

var retryableMarkers = []string{
	"429", "500", "503",
	"rate limit", "quota", "overloaded", "exhausted",
	"timeout", "deadline exceeded",
}

var fatalMarkers = []string{
	"401", "403", "400",
	"unauthorized", "invalid api key", "bad request",
}

// isRetryable reports whether an error is a transient provider failure.
// Fatal markers win over retryable ones so "400 bad request while rate
// limited" style messages do not loop. Errors matching neither class
// are treated as fatal.
func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return false
		}
	}
	for _, m := range retryableMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// backoffDelay is 2^attempt seconds plus up to one second of jitter.
func backoffDelay(attempt int) time.Duration {
	base := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	jitter := time.Duration(rand.Float64() * float64(time.Second))
	return base + jitter
}

// generateWithRetry calls the provider, retrying transient failures up
// to maxRetries extra attempts with exponential backoff.
func generateWithRetry(ctx context.Context, provider LLMProvider, req ChatRequest, maxRetries int) (ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := provider.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return ChatResponse{}, err
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-time.After(backoffDelay(attempt)):
		case <-ctx.Done():
			return ChatResponse{}, ctx.Err()
		}
	}
	return ChatResponse{}, fmt.Errorf("llm call failed after %d retries: %w", maxRetries, lastErr)
}
