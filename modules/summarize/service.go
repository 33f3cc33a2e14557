package summarize

import (
	"context"
	"fmt"
	"log"

	"manga-promo-server/modules/common/config"
	"manga-promo-server/modules/common/gemini"
	"manga-promo-server/modules/common/model"
)

// Service - LINE post summarization
type Service struct {
	client *gemini.Client
}

// NewService - summarize 서비스 생성
func NewService(client *gemini.Client) *Service {
	return &Service{client: client}
}

// Summarize - distill a post into a normalized Summary
func (s *Service) Summarize(ctx context.Context, postText string) (model.Summary, error) {
	cfg := config.GetConfig()

	log.Printf("📝 Summarizing post (%d chars)", len(postText))

	raw, err := s.client.GenerateStructuredJSON(
		ctx,
		gemini.NormalizeModelID(cfg.GeminiTextModel),
		TextSystemPrompt,
		buildSummarizePrompt(postText),
		0.4,
	)
	if err != nil {
		return model.Summary{}, fmt.Errorf("summarize failed: %w", err)
	}

	summary := model.NormalizeSummary(raw)
	log.Printf("✅ Summary ready: %s", summary.MainTheme)
	return summary, nil
}
