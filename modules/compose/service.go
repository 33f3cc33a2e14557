package compose

import (
	"context"
	"fmt"
	"log"

	"manga-promo-server/modules/common/config"
	"manga-promo-server/modules/common/gemini"
	"manga-promo-server/modules/common/model"
	"manga-promo-server/modules/summarize"
)

// Service - composition pattern proposals
type Service struct {
	client *gemini.Client
}

// NewService - compose 서비스 생성
func NewService(client *gemini.Client) *Service {
	return &Service{client: client}
}

// Compose - propose exactly 3 patterns for a summary
func (s *Service) Compose(ctx context.Context, summary model.Summary) ([]model.Pattern, error) {
	cfg := config.GetConfig()

	log.Printf("🎨 Composing patterns for theme: %s", summary.MainTheme)

	raw, err := s.client.GenerateStructuredJSON(
		ctx,
		gemini.NormalizeModelID(cfg.GeminiTextModel),
		summarize.TextSystemPrompt,
		buildComposePrompt(summary),
		0.4,
	)
	if err != nil {
		return nil, fmt.Errorf("compose failed: %w", err)
	}

	patterns := model.NormalizePatterns(raw)
	log.Printf("✅ %d patterns composed", len(patterns))
	return patterns, nil
}
