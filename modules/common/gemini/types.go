package gemini

import "fmt"

// InlineData - base64 image payload. The API answers with either camelCase or
// snake_case field names depending on the surface, so both are accepted.
type InlineData struct {
	MimeType      string `json:"mimeType,omitempty"`
	MimeTypeSnake string `json:"mime_type,omitempty"`
	Data          string `json:"data,omitempty"`
}

// ResolvedMimeType - whichever mime field the API filled, defaulting to PNG
func (d *InlineData) ResolvedMimeType() string {
	if d.MimeType != "" {
		return d.MimeType
	}
	if d.MimeTypeSnake != "" {
		return d.MimeTypeSnake
	}
	return "image/png"
}

// Part - one piece of request/response content
type Part struct {
	Text            string      `json:"text,omitempty"`
	InlineData      *InlineData `json:"inlineData,omitempty"`
	InlineDataSnake *InlineData `json:"inline_data,omitempty"`
}

// Inline - inlineData under either field name
func (p *Part) Inline() *InlineData {
	if p.InlineData != nil {
		return p.InlineData
	}
	return p.InlineDataSnake
}

// Content - role-tagged list of parts
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig - generation tuning knobs
type GenerationConfig struct {
	Temperature        *float64 `json:"temperature,omitempty"`
	ResponseMimeType   string   `json:"responseMimeType,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

// GenerateRequest - generateContent request body
type GenerateRequest struct {
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	Contents          []Content         `json:"contents"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// Candidate - one generated answer
type Candidate struct {
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// PromptFeedback - safety verdict on the prompt
type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// APIErrorBody - structured error in a response body
type APIErrorBody struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

// GenerateResponse - generateContent response body
type GenerateResponse struct {
	Candidates     []Candidate     `json:"candidates,omitempty"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	Error          *APIErrorBody   `json:"error,omitempty"`
}

// Model - entry of the models list
type Model struct {
	Name                       string   `json:"name,omitempty"`
	DisplayName                string   `json:"displayName,omitempty"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods,omitempty"`
}

// SupportsGenerateContent - whether the model advertises generateContent
func (m Model) SupportsGenerateContent() bool {
	for _, method := range m.SupportedGenerationMethods {
		if method == "generateContent" {
			return true
		}
	}
	return false
}

// ListModelsResponse - one page of the models list
type ListModelsResponse struct {
	Models        []Model       `json:"models,omitempty"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
	Error         *APIErrorBody `json:"error,omitempty"`
}

// File - file resource from the Files API
type File struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	URI         string `json:"uri,omitempty"`
	DownloadURI string `json:"downloadUri,omitempty"`
	State       string `json:"state,omitempty"`
}

// BatchMetadata - batch operation metadata block
type BatchMetadata struct {
	State string `json:"state,omitempty"`
}

// InlinedResponse - one per-item inline batch result
type InlinedResponse struct {
	Metadata map[string]string `json:"metadata,omitempty"`
	Response *GenerateResponse `json:"response,omitempty"`
	Error    *APIErrorBody     `json:"error,omitempty"`
}

// InlinedResponses - nested inline result container
type InlinedResponses struct {
	InlinedResponses []InlinedResponse `json:"inlinedResponses,omitempty"`
}

// BatchResponseBody - the response block of a finished batch operation
type BatchResponseBody struct {
	State            string            `json:"state,omitempty"`
	InlinedResponses *InlinedResponses `json:"inlinedResponses,omitempty"`
	ResponsesFile    string            `json:"responsesFile,omitempty"`
}

// BatchOperation - long running batch operation as returned by the API
type BatchOperation struct {
	Name     string             `json:"name,omitempty"`
	Done     bool               `json:"done,omitempty"`
	Metadata *BatchMetadata     `json:"metadata,omitempty"`
	Response *BatchResponseBody `json:"response,omitempty"`
	Error    *APIErrorBody      `json:"error,omitempty"`
}

// State - state string from metadata or response, whichever is present
func (op *BatchOperation) State() string {
	if op.Response != nil && op.Response.State != "" {
		return op.Response.State
	}
	if op.Metadata != nil {
		return op.Metadata.State
	}
	return ""
}

// BatchInlineRequest - one request of an inline batch submission, with
// per-item metadata carried alongside
type BatchInlineRequest struct {
	Request  GenerateRequest   `json:"request"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// BatchFileLine - one line of the newline-delimited request file.
// The result file reuses the same shape with response/error filled in.
type BatchFileLine struct {
	Key      string            `json:"key,omitempty"`
	Request  *GenerateRequest  `json:"request,omitempty"`
	Response *GenerateResponse `json:"response,omitempty"`
	Error    *APIErrorBody     `json:"error,omitempty"`
}

// APIError - HTTP-level provider error carrying the status code so the
// retry layer can classify it
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("gemini API request failed with status %d", e.StatusCode)
}
