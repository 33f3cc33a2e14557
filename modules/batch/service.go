package batch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"manga-promo-server/modules/common/config"
	"manga-promo-server/modules/common/gemini"
	"manga-promo-server/modules/common/model"
	"manga-promo-server/modules/generate"
)

const (
	manifestKeyPrefix = "manga:batch:manifest:"
	manifestTTL       = 24 * time.Hour
)

// KeyedRequest - one generation request paired with its correlation key.
// Metadata carries the key plus the decoded fields for the inline transport,
// which preserves arbitrary per-item metadata; the file transport keeps only
// the key string.
type KeyedRequest struct {
	Key      string
	Metadata map[string]string
	Request  model.GenerationRequest
}

// BuildKeyedRequests - both layouts of one pattern as keyed batch requests
func BuildKeyedRequests(summary model.Summary, pattern model.Pattern, references []model.InlineImage) []KeyedRequest {
	requests := make([]KeyedRequest, 0, len(model.AllLayouts))
	for _, layout := range model.AllLayouts {
		prompt := generate.BuildImagePrompt(summary, pattern, layout, "")
		key := EncodeKey(pattern.ID, layout, pattern.PatternType, pattern.Title)
		requests = append(requests, KeyedRequest{
			Key: key,
			Metadata: map[string]string{
				"key":          key,
				"patternId":    pattern.ID,
				"layout":       string(layout),
				"patternType":  string(pattern.PatternType),
				"patternTitle": pattern.Title,
			},
			Request: generate.BuildGenerationRequest(prompt, references, nil),
		})
	}
	return requests
}

// wireRequest - REST request body for one generation request
func wireRequest(request model.GenerationRequest) gemini.GenerateRequest {
	parts := []gemini.Part{{Text: request.Prompt}}

	if len(request.ReferenceImages) > 0 {
		parts = append(parts, gemini.Part{Text: generate.ReferenceImagesNote})
		for _, img := range request.ReferenceImages {
			parts = append(parts, gemini.Part{
				InlineData: &gemini.InlineData{
					MimeType: img.MimeType,
					Data:     base64.StdEncoding.EncodeToString(img.Data),
				},
			})
		}
	}

	if request.PreviousImage != nil {
		parts = append(parts, gemini.Part{Text: generate.PreviousImageNote})
		parts = append(parts, gemini.Part{
			InlineData: &gemini.InlineData{
				MimeType: request.PreviousImage.MimeType,
				Data:     base64.StdEncoding.EncodeToString(request.PreviousImage.Data),
			},
		})
	}

	temperature := 0.8
	return gemini.GenerateRequest{
		Contents: []gemini.Content{{Role: "user", Parts: parts}},
		GenerationConfig: &gemini.GenerationConfig{
			Temperature:        &temperature,
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	}
}

// Service - batch submission with dual transport and model fallback
type Service struct {
	client   *gemini.Client
	resolver *gemini.Resolver
	rdb      *redis.Client
}

// NewService - batch 서비스 생성 (rdb may be nil, manifests are then skipped)
func NewService(client *gemini.Client, resolver *gemini.Resolver, rdb *redis.Client) *Service {
	return &Service{client: client, resolver: resolver, rdb: rdb}
}

// transport - one submission strategy. Tried in declaration order.
type transport struct {
	name   string
	submit func(ctx context.Context, modelID string) (string, error)
}

// CreateBatch - submit N keyed requests as one batch job. The file transport
// is preferred; any failure there falls back to inline submission. The
// returned handle is always in canonical "batches/..." form.
func (s *Service) CreateBatch(ctx context.Context, requests []KeyedRequest, displayName string) (string, error) {
	if len(requests) == 0 {
		return "", fmt.Errorf("no requests to submit")
	}

	cfg := config.GetConfig()

	var jobName string
	err := s.resolver.WithImageModelFallback(ctx, cfg.GeminiImageModel, func(modelID string) error {
		name, err := s.submitWithTransports(ctx, modelID, requests, displayName)
		if err != nil {
			return err
		}
		jobName = name
		return nil
	})
	if err != nil {
		return "", err
	}

	normalized, err := gemini.NormalizeJobName(jobName)
	if err != nil {
		return "", err
	}

	s.saveManifest(ctx, normalized, requests)

	log.Printf("🏁 Batch %s submitted (%d requests)", normalized, len(requests))
	return normalized, nil
}

// submitWithTransports - ordered transport strategies; the first failure is
// logged with its reason before the next strategy is attempted
func (s *Service) submitWithTransports(ctx context.Context, modelID string, requests []KeyedRequest, displayName string) (string, error) {
	transports := []transport{
		{
			name: "file",
			submit: func(ctx context.Context, modelID string) (string, error) {
				return s.submitViaFile(ctx, modelID, requests, displayName)
			},
		},
		{
			name: "inline",
			submit: func(ctx context.Context, modelID string) (string, error) {
				return s.submitInline(ctx, modelID, requests, displayName)
			},
		},
	}

	var lastErr error
	for _, t := range transports {
		name, err := t.submit(ctx, modelID)
		if err == nil {
			return name, nil
		}
		lastErr = err
		log.Printf("⚠️  Batch %s transport failed, trying next: %v", t.name, err)
	}
	return "", fmt.Errorf("all batch transports failed: %w", lastErr)
}

// submitViaFile - serialize requests as NDJSON, upload, reference by name
func (s *Service) submitViaFile(ctx context.Context, modelID string, requests []KeyedRequest, displayName string) (string, error) {
	var buf bytes.Buffer
	for _, kr := range requests {
		wire := wireRequest(kr.Request)
		line, err := json.Marshal(gemini.BatchFileLine{Key: kr.Key, Request: &wire})
		if err != nil {
			return "", fmt.Errorf("failed to encode batch request line: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	file, err := s.client.UploadFile(ctx, buf.Bytes(), "application/jsonl", displayName+".jsonl")
	if err != nil {
		return "", fmt.Errorf("batch request file upload failed: %w", err)
	}

	return s.client.CreateBatchWithFile(ctx, modelID, file.Name, displayName)
}

// submitInline - embed requests directly in the creation call
func (s *Service) submitInline(ctx context.Context, modelID string, requests []KeyedRequest, displayName string) (string, error) {
	items := make([]gemini.BatchInlineRequest, 0, len(requests))
	for _, kr := range requests {
		items = append(items, gemini.BatchInlineRequest{
			Request:  wireRequest(kr.Request),
			Metadata: kr.Metadata,
		})
	}
	return s.client.CreateBatchInline(ctx, modelID, items, displayName)
}

// saveManifest - remember each item's prompt so reconciled results can be
// annotated, keyed by patternId/layout
func (s *Service) saveManifest(ctx context.Context, jobName string, requests []KeyedRequest) {
	if s.rdb == nil {
		return
	}

	fields := make(map[string]interface{}, len(requests))
	for _, kr := range requests {
		decoded, err := DecodeKey(kr.Key)
		if err != nil {
			continue
		}
		fields[decoded.PatternID+"/"+string(decoded.Layout)] = kr.Request.Prompt
	}
	if len(fields) == 0 {
		return
	}

	manifestKey := manifestKeyPrefix + jobName
	if err := s.rdb.HSet(ctx, manifestKey, fields).Err(); err != nil {
		log.Printf("⚠️  Failed to save batch manifest for %s: %v", jobName, err)
		return
	}
	s.rdb.Expire(ctx, manifestKey, manifestTTL)
}

// AnnotatePrompts - fill result prompts from a job's manifest
func (s *Service) AnnotatePrompts(ctx context.Context, jobName string, results []ImageResult) {
	if s.rdb == nil || len(results) == 0 {
		return
	}

	manifestKey := manifestKeyPrefix + jobName
	for i := range results {
		field := results[i].PatternID + "/" + string(results[i].Layout)
		prompt, err := s.rdb.HGet(ctx, manifestKey, field).Result()
		if err == nil && prompt != "" {
			results[i].Prompt = prompt
		}
	}
}
