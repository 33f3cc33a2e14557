package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Client - raw REST client for the Gemini API surfaces the official SDK does
// not cover well: batch jobs, the files API and model listing.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
}

// NewClient - production client against the public endpoint
func NewClient(apiKey string) *Client {
	return NewClientWithBaseURL(apiKey, defaultBaseURL)
}

// NewClientWithBaseURL - base URL override, used by tests against httptest servers
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		retry: DefaultRetryConfig,
	}
}

// SetRetryConfig - override backoff parameters (tests use tiny delays)
func (c *Client) SetRetryConfig(cfg RetryConfig) {
	c.retry = cfg
}

// checkAPIKey - a missing credential is a configuration error, never retried
func (c *Client) checkAPIKey() error {
	if c.apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is not configured")
	}
	return nil
}

// doJSON - one HTTP exchange with retry on transient failures. The response
// body is decoded into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, requestURL string, body interface{}, headers map[string]string, out interface{}) error {
	if err := c.checkAPIKey(); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	return withRetry(ctx, c.retry, method+" "+requestURL, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("gemini API request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read gemini API response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return apiErrorFromResponse(resp.StatusCode, raw)
		}

		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("failed to decode gemini API response: %w", err)
			}
		}
		return nil
	})
}

// apiErrorFromResponse - most specific message available: structured error
// message, else a truncated raw excerpt, else the bare status
func apiErrorFromResponse(statusCode int, body []byte) *APIError {
	var envelope struct {
		Error *APIErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return &APIError{StatusCode: statusCode, Message: envelope.Error.Message}
	}

	excerpt := strings.TrimSpace(string(body))
	if len(excerpt) > 200 {
		excerpt = excerpt[:200] + "..."
	}
	if excerpt != "" {
		return &APIError{StatusCode: statusCode, Message: fmt.Sprintf("gemini API error (status %d): %s", statusCode, excerpt)}
	}
	return &APIError{StatusCode: statusCode}
}

// keyParam - API key as query parameter
func (c *Client) keyParam() string {
	return "key=" + url.QueryEscape(c.apiKey)
}

// GenerateContent - synchronous models/{model}:generateContent call
func (c *Client) GenerateContent(ctx context.Context, modelID string, request *GenerateRequest) (*GenerateResponse, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?%s", c.baseURL, modelID, c.keyParam())

	var response GenerateResponse
	if err := c.doJSON(ctx, http.MethodPost, endpoint, request, nil, &response); err != nil {
		return nil, err
	}
	if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
		return nil, &BlockedError{Reason: response.PromptFeedback.BlockReason}
	}
	return &response, nil
}

// ExtractText - first non-empty text part of a response
func ExtractText(response *GenerateResponse) (string, error) {
	for _, candidate := range response.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text, nil
			}
		}
	}
	return "", fmt.Errorf("no text part in gemini response")
}

// ExtractImageDataURL - first inline image of a response as a data URL
func ExtractImageDataURL(response *GenerateResponse) (string, error) {
	for _, candidate := range response.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			inline := part.Inline()
			if inline == nil || inline.Data == "" {
				continue
			}
			return fmt.Sprintf("data:%s;base64,%s", inline.ResolvedMimeType(), inline.Data), nil
		}
	}
	return "", fmt.Errorf("no image part in gemini response")
}

var fencedJSONPattern = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")

// ParseJSONLoose - parse model output as JSON, salvaging fenced blocks and
// brace-delimited fragments when the model wraps the payload in prose
func ParseJSONLoose(raw string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, nil
	}

	if matched := fencedJSONPattern.FindStringSubmatch(raw); matched != nil {
		if err := json.Unmarshal([]byte(matched[1]), &out); err == nil {
			return out, nil
		}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err == nil {
			return out, nil
		}
	}

	return nil, fmt.Errorf("failed to parse JSON from model output")
}

// GenerateStructuredJSON - text generation constrained to JSON output,
// decoded leniently
func (c *Client) GenerateStructuredJSON(ctx context.Context, modelID, systemPrompt, userPrompt string, temperature float64) (map[string]interface{}, error) {
	request := &GenerateRequest{
		SystemInstruction: &Content{
			Parts: []Part{{Text: systemPrompt}},
		},
		Contents: []Content{
			{
				Role:  "user",
				Parts: []Part{{Text: userPrompt}},
			},
		},
		GenerationConfig: &GenerationConfig{
			Temperature:      &temperature,
			ResponseMimeType: "application/json",
		},
	}

	response, err := c.GenerateContent(ctx, modelID, request)
	if err != nil {
		return nil, err
	}
	text, err := ExtractText(response)
	if err != nil {
		return nil, err
	}
	return ParseJSONLoose(text)
}

const maxModelListPages = 10

// ListModels - full model list, following pageToken up to a page cap
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var models []Model
	pageToken := ""

	for page := 0; page < maxModelListPages; page++ {
		endpoint := fmt.Sprintf("%s/v1beta/models?%s", c.baseURL, c.keyParam())
		if pageToken != "" {
			endpoint += "&pageToken=" + url.QueryEscape(pageToken)
		}

		var response ListModelsResponse
		if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, nil, &response); err != nil {
			return nil, fmt.Errorf("failed to list gemini models: %w", err)
		}

		models = append(models, response.Models...)
		pageToken = strings.TrimSpace(response.NextPageToken)
		if pageToken == "" {
			break
		}
	}

	return models, nil
}

// batch creation request bodies

type batchCreateBody struct {
	Batch batchSpec `json:"batch"`
}

type batchSpec struct {
	DisplayName string           `json:"displayName,omitempty"`
	InputConfig batchInputConfig `json:"inputConfig"`
}

type batchInputConfig struct {
	FileName string         `json:"fileName,omitempty"`
	Requests *batchRequests `json:"requests,omitempty"`
}

type batchRequests struct {
	Requests []BatchInlineRequest `json:"requests"`
}

// CreateBatchInline - submit a batch with requests embedded in the call body
func (c *Client) CreateBatchInline(ctx context.Context, modelID string, items []BatchInlineRequest, displayName string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:batchGenerateContent?%s", c.baseURL, modelID, c.keyParam())

	body := batchCreateBody{
		Batch: batchSpec{
			DisplayName: displayName,
			InputConfig: batchInputConfig{
				Requests: &batchRequests{Requests: items},
			},
		},
	}

	var operation BatchOperation
	if err := c.doJSON(ctx, http.MethodPost, endpoint, body, nil, &operation); err != nil {
		return "", fmt.Errorf("inline batch creation failed: %w", err)
	}
	if operation.Name == "" {
		return "", fmt.Errorf("inline batch creation returned no job name")
	}

	log.Printf("📤 Inline batch created: %s (%d requests)", operation.Name, len(items))
	return operation.Name, nil
}

// CreateBatchWithFile - submit a batch referencing an uploaded request file
func (c *Client) CreateBatchWithFile(ctx context.Context, modelID, fileName, displayName string) (string, error) {
	if !strings.HasPrefix(fileName, "files/") {
		return "", fmt.Errorf("malformed file reference %q: expected files/... form", fileName)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:batchGenerateContent?%s", c.baseURL, modelID, c.keyParam())

	body := batchCreateBody{
		Batch: batchSpec{
			DisplayName: displayName,
			InputConfig: batchInputConfig{FileName: fileName},
		},
	}

	var operation BatchOperation
	if err := c.doJSON(ctx, http.MethodPost, endpoint, body, nil, &operation); err != nil {
		return "", fmt.Errorf("file batch creation failed: %w", err)
	}
	if operation.Name == "" {
		return "", fmt.Errorf("file batch creation returned no job name")
	}

	log.Printf("📤 File batch created: %s (file: %s)", operation.Name, fileName)
	return operation.Name, nil
}

// NormalizeJobName - canonical "batches/..." form regardless of how the
// provider spelled the operation name
func NormalizeJobName(name string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(name), "/")
	if trimmed == "" {
		return "", fmt.Errorf("empty batch job name")
	}
	if idx := strings.Index(trimmed, "batches/"); idx >= 0 {
		return trimmed[idx:], nil
	}
	if strings.Contains(trimmed, "/") {
		return "", fmt.Errorf("malformed batch job name %q", name)
	}
	return "batches/" + trimmed, nil
}

// GetBatchOperation - fetch the current snapshot of a batch job
func (c *Client) GetBatchOperation(ctx context.Context, jobName string) (*BatchOperation, error) {
	normalized, err := NormalizeJobName(jobName)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1beta/%s?%s", c.baseURL, normalized, c.keyParam())

	var operation BatchOperation
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, nil, &operation); err != nil {
		return nil, fmt.Errorf("failed to fetch batch %s: %w", normalized, err)
	}
	if operation.Name == "" {
		operation.Name = normalized
	}
	return &operation, nil
}
