package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"
)

// RetryConfig - bounded exponential backoff parameters
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryConfig - used when the caller does not override
var DefaultRetryConfig = RetryConfig{
	MaxRetries: 3,
	BaseDelay:  time.Second,
}

// retryableStatuses - HTTP statuses worth retrying
var retryableStatuses = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// retryablePhrases - transient phrasing in provider error messages
var retryablePhrases = []string{
	"rate limit",
	"quota",
	"overloaded",
	"resource exhausted",
	"timeout",
	"timed out",
	"unavailable",
	"try again",
	"temporarily",
}

// BlockedError - content-safety block. Fatal, never retried.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("generation blocked by content safety: %s", e.Reason)
}

// IsRetryableError - classify a provider error as transient or fatal
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var blocked *BlockedError
	if errors.As(err, &blocked) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && retryableStatuses[apiErr.StatusCode] {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") {
		return true
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// withRetry - run op up to MaxRetries+1 times with exponential backoff.
// Fatal errors short-circuit immediately.
func withRetry(ctx context.Context, cfg RetryConfig, label string, op func() error) error {
	delay := cfg.BaseDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("   🔄 [%s] Retry attempt %d/%d after %v", label, attempt, cfg.MaxRetries, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return err
		}
		log.Printf("⚠️  [%s] Transient error (attempt %d/%d): %v", label, attempt+1, cfg.MaxRetries+1, err)
	}

	return fmt.Errorf("%s failed after %d attempts: %w", label, cfg.MaxRetries+1, lastErr)
}

// GenerateContentWithRetry - synchronous generation through the official SDK,
// rotating across API keys when one is rate limited.
// 각 키당 최대 3번 재시도
func GenerateContentWithRetry(
	ctx context.Context,
	apiKeys []string,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {

	if len(apiKeys) == 0 {
		return nil, fmt.Errorf("no API keys provided")
	}

	const maxRetriesPerKey = 3
	var lastErr error

	for keyIndex, apiKey := range apiKeys {
		log.Printf("🔑 [Gemini Retry] Trying API key #%d/%d", keyIndex+1, len(apiKeys))

		for attempt := 1; attempt <= maxRetriesPerKey; attempt++ {
			if attempt > 1 {
				log.Printf("   🔄 Retry attempt %d/%d for key #%d", attempt, maxRetriesPerKey, keyIndex+1)
			}

			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				log.Printf("⚠️  [Gemini Retry] Failed to create client with key #%d (attempt %d): %v", keyIndex+1, attempt, err)
				lastErr = err
				continue
			}

			result, err := client.Models.GenerateContent(ctx, model, contents, config)
			if err == nil {
				log.Printf("✅ [Gemini Retry] Success with API key #%d (attempt %d/%d)", keyIndex+1, attempt, maxRetriesPerKey)
				return result, nil
			}

			lastErr = err

			if !IsRetryableError(err) {
				log.Printf("❌ [Gemini Retry] Key #%d failed with non-retryable error: %v", keyIndex+1, err)
				return nil, err
			}

			log.Printf("⚠️  [Gemini Retry] Key #%d hit rate limit on attempt %d/%d", keyIndex+1, attempt, maxRetriesPerKey)
			if attempt < maxRetriesPerKey {
				log.Printf("   ⏳ Waiting 2 seconds before retry...")
				time.Sleep(time.Second * 2)
			}
		}

		log.Printf("⚠️  [Gemini Retry] Key #%d exhausted all %d attempts, trying next key...", keyIndex+1, maxRetriesPerKey)
	}

	return nil, fmt.Errorf("all %d API keys exhausted (%d attempts each), last error: %w", len(apiKeys), maxRetriesPerKey, lastErr)
}
