package gemini

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTextModel - structured text generation default
	DefaultTextModel = "gemini-3-flash-preview"
	// DefaultImageModel - image generation default
	DefaultImageModel = "gemini-3-pro-image-preview"

	modelListCacheTTL = 10 * time.Minute
)

// imageModelAliases - marketing names to canonical model ids
var imageModelAliases = map[string]string{
	"nano-banana-pro": DefaultImageModel,
	"nano-banana":     DefaultImageModel,
}

// imageModelPriority - fallback order when the configured model is unavailable
var imageModelPriority = []string{
	DefaultImageModel,
	"gemini-2.5-flash-image-preview",
	"gemini-2.0-flash-preview-image-generation",
	"gemini-2.0-flash-exp-image-generation",
	"gemini-2.0-flash",
}

var (
	modelsPrefixPattern     = regexp.MustCompile(`(?i)^models/`)
	recoverableModelPattern = regexp.MustCompile(`(?i)not found|not supported for generatecontent|unsupported`)
	imageLikeModelPattern   = regexp.MustCompile(`(?i)image|imagen`)
)

// NormalizeModelID - trim and strip the provider path prefix. Normalization
// is idempotent; two ids are the same model iff their normalized lowercase
// forms match.
func NormalizeModelID(model string) string {
	return modelsPrefixPattern.ReplaceAllString(strings.TrimSpace(model), "")
}

// ResolveImageModel - alias table then prefix strip; empty falls back to the
// default image model
func ResolveImageModel(preferred string) string {
	normalized := NormalizeModelID(preferred)
	if normalized == "" {
		return DefaultImageModel
	}
	if canonical, ok := imageModelAliases[strings.ToLower(normalized)]; ok {
		return canonical
	}
	return normalized
}

// IsRecoverableModelError - model-availability failures that warrant a
// fallback-model search
func IsRecoverableModelError(err error) bool {
	if err == nil {
		return false
	}
	return recoverableModelPattern.MatchString(err.Error())
}

// Resolver - model resolution with a time-bounded model-list cache.
// One instance per process; refresh races are last-writer-wins over
// immutable snapshots, which is harmless.
type Resolver struct {
	client *Client

	mu             sync.Mutex
	cachedModels   []Model
	cacheExpiresAt time.Time

	now func() time.Time
}

// NewResolver - resolver bound to a REST client
func NewResolver(client *Client) *Resolver {
	return &Resolver{
		client: client,
		now:    time.Now,
	}
}

// ListModels - cached read-through model list. forceRefresh bypasses the
// cache once and repopulates it.
func (r *Resolver) ListModels(ctx context.Context, forceRefresh bool) ([]Model, error) {
	r.mu.Lock()
	if !forceRefresh && r.cachedModels != nil && r.now().Before(r.cacheExpiresAt) {
		models := r.cachedModels
		r.mu.Unlock()
		return models, nil
	}
	r.mu.Unlock()

	models, err := r.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cachedModels = models
	r.cacheExpiresAt = r.now().Add(modelListCacheTTL)
	r.mu.Unlock()

	return models, nil
}

// Invalidate - drop the cached model list
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cachedModels = nil
	r.cacheExpiresAt = time.Time{}
	r.mu.Unlock()
}

// PickImageFallback - best available generateContent model excluding the
// failed one: priority list first, then an image-like name, then anything
func PickImageFallback(models []Model, excludeModel string) string {
	excluded := strings.ToLower(NormalizeModelID(excludeModel))
	seen := map[string]bool{}
	var uniqueIDs []string

	for _, m := range models {
		if !m.SupportsGenerateContent() || m.Name == "" {
			continue
		}
		id := NormalizeModelID(m.Name)
		lower := strings.ToLower(id)
		if id == "" || lower == excluded || seen[lower] {
			continue
		}
		seen[lower] = true
		uniqueIDs = append(uniqueIDs, id)
	}

	for _, preferred := range imageModelPriority {
		for _, id := range uniqueIDs {
			if strings.EqualFold(id, preferred) {
				return id
			}
		}
	}

	for _, id := range uniqueIDs {
		if imageLikeModelPattern.MatchString(id) {
			return id
		}
	}

	if len(uniqueIDs) > 0 {
		return uniqueIDs[0]
	}
	return ""
}

// WithImageModelFallback - run action with the resolved model; on a
// recoverable model-availability failure, refresh the model list and retry
// once with the best fallback. A fallback equal to the failed model
// propagates the original error instead of looping.
func (r *Resolver) WithImageModelFallback(ctx context.Context, preferred string, action func(modelID string) error) error {
	configured := ResolveImageModel(preferred)

	err := action(configured)
	if err == nil {
		return nil
	}
	if !IsRecoverableModelError(err) {
		return err
	}

	log.Printf("🔄 Model %s unavailable, searching for fallback: %v", configured, err)

	models, listErr := r.ListModels(ctx, true)
	if listErr != nil {
		return fmt.Errorf("model %s unavailable and model list refresh failed: %w", configured, listErr)
	}

	fallbackModel := PickImageFallback(models, configured)
	if fallbackModel == "" {
		// the failed model itself may be the only capable candidate; retrying
		// it would loop, so surface the original failure
		if only := PickImageFallback(models, ""); only != "" && strings.EqualFold(NormalizeModelID(only), NormalizeModelID(configured)) {
			return err
		}
		return fmt.Errorf("image model %q is unavailable and no generateContent-capable fallback model was found", configured)
	}
	if strings.EqualFold(NormalizeModelID(fallbackModel), NormalizeModelID(configured)) {
		return err
	}

	log.Printf("🔄 Falling back to model %s", fallbackModel)
	return action(fallbackModel)
}
