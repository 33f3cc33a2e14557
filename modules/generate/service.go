package generate

import (
	"context"
	"fmt"
	"log"
	"sync"

	"google.golang.org/genai"
	"manga-promo-server/modules/common/config"
	"manga-promo-server/modules/common/gemini"
	"manga-promo-server/modules/common/model"
	"manga-promo-server/modules/common/utils"
)

// Notes inserted before attached images, same wording for every generation
const (
	ReferenceImagesNote = "以下は固定キャラクター参照画像です。店主・妻の見た目を維持してください。"
	PreviousImageNote   = "以下は前回生成画像です。構図の意図を保ちながら修正してください。"
)

// Service - synchronous pair generation through the official SDK
type Service struct {
	resolver *gemini.Resolver
}

// NewService - generate 서비스 생성
func NewService(resolver *gemini.Resolver) *Service {
	return &Service{resolver: resolver}
}

// PairResult - both layouts of one pattern
type PairResult struct {
	FourPanelImageDataURL string `json:"fourPanelImageDataUrl"`
	A4ImageDataURL        string `json:"a4ImageDataUrl"`
	FourPanelPrompt       string `json:"fourPanelPrompt"`
	A4Prompt              string `json:"a4Prompt"`
}

// toGenaiContents - assemble SDK parts from a transport independent request
func toGenaiContents(request model.GenerationRequest) []*genai.Content {
	parts := []*genai.Part{genai.NewPartFromText(request.Prompt)}

	if len(request.ReferenceImages) > 0 {
		parts = append(parts, genai.NewPartFromText(ReferenceImagesNote))
		for _, img := range request.ReferenceImages {
			parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
		}
	}

	if request.PreviousImage != nil {
		parts = append(parts, genai.NewPartFromText(PreviousImageNote))
		parts = append(parts, genai.NewPartFromBytes(request.PreviousImage.Data, request.PreviousImage.MimeType))
	}

	return []*genai.Content{{Role: "user", Parts: parts}}
}

// extractImageDataURL - first inline image of an SDK response
func extractImageDataURL(result *genai.GenerateContentResponse) (string, error) {
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return utils.ToDataURL(part.InlineData.MIMEType, part.InlineData.Data), nil
			}
		}
	}
	return "", fmt.Errorf("no image part in gemini response")
}

// GenerateImage - one image for one request, with model fallback and
// multi-key retry
func (s *Service) GenerateImage(ctx context.Context, request model.GenerationRequest) (string, error) {
	cfg := config.GetConfig()
	contents := toGenaiContents(request)

	generationConfig := &genai.GenerateContentConfig{
		Temperature:        genai.Ptr[float32](0.8),
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	var dataURL string
	err := s.resolver.WithImageModelFallback(ctx, cfg.GeminiImageModel, func(modelID string) error {
		result, err := gemini.GenerateContentWithRetry(ctx, cfg.AllAPIKeys(), modelID, contents, generationConfig)
		if err != nil {
			return err
		}
		url, err := extractImageDataURL(result)
		if err != nil {
			return err
		}
		dataURL = url
		return nil
	})
	if err != nil {
		return "", err
	}
	return dataURL, nil
}

// GeneratePair - both layouts of one pattern in parallel. An empty
// revisionInstruction means first-time generation.
func (s *Service) GeneratePair(
	ctx context.Context,
	summary model.Summary,
	pattern model.Pattern,
	references []model.InlineImage,
	previousFourPanel, previousA4 *model.InlineImage,
	revisionInstruction string,
) (*PairResult, error) {
	fourPanelPrompt := BuildImagePrompt(summary, pattern, model.LayoutFourPanel, revisionInstruction)
	a4Prompt := BuildImagePrompt(summary, pattern, model.LayoutA4Vertical, revisionInstruction)

	log.Printf("🖼️  Generating pair for pattern %s (%s)", pattern.ID, pattern.Title)

	var (
		wg            sync.WaitGroup
		fourPanelURL  string
		a4URL         string
		fourPanelErr  error
		a4VerticalErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		request := BuildGenerationRequest(fourPanelPrompt, references, previousFourPanel)
		fourPanelURL, fourPanelErr = s.GenerateImage(ctx, request)
	}()
	go func() {
		defer wg.Done()
		request := BuildGenerationRequest(a4Prompt, references, previousA4)
		a4URL, a4VerticalErr = s.GenerateImage(ctx, request)
	}()
	wg.Wait()

	if fourPanelErr != nil {
		return nil, fmt.Errorf("four-panel generation failed: %w", fourPanelErr)
	}
	if a4VerticalErr != nil {
		return nil, fmt.Errorf("a4-vertical generation failed: %w", a4VerticalErr)
	}

	log.Printf("✅ Pair generated for pattern %s", pattern.ID)
	return &PairResult{
		FourPanelImageDataURL: fourPanelURL,
		A4ImageDataURL:        a4URL,
		FourPanelPrompt:       fourPanelPrompt,
		A4Prompt:              a4Prompt,
	}, nil
}
