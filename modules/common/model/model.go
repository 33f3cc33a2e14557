package model

import (
	"fmt"

	"manga-promo-server/modules/common/fallback"
)

// Layout - output format of a generated comic image
type Layout string

const (
	LayoutFourPanel  Layout = "four-panel"  // 1080x1080 square, 4 panels
	LayoutA4Vertical Layout = "a4-vertical" // 2480x3508 single page
)

// AllLayouts - every layout generated for a pattern
var AllLayouts = []Layout{LayoutFourPanel, LayoutA4Vertical}

// IsValidLayout - layout string check for decoded batch keys
func IsValidLayout(s string) bool {
	return s == string(LayoutFourPanel) || s == string(LayoutA4Vertical)
}

// PatternType - compositional angle of a pattern
type PatternType string

const (
	PatternEmpathy     PatternType = "empathy"
	PatternSurprise    PatternType = "surprise"
	PatternTestimonial PatternType = "testimonial"
)

// patternTypeLabels - Japanese display labels used inside prompt text
var patternTypeLabels = map[PatternType]string{
	PatternEmpathy:     "共感型",
	PatternSurprise:    "驚き型",
	PatternTestimonial: "体験談型",
}

// Label - Japanese label for prompts ("共感型" etc.)
func (p PatternType) Label() string {
	if label, ok := patternTypeLabels[p]; ok {
		return label
	}
	return patternTypeLabels[PatternEmpathy]
}

// NormalizePatternType - accept english ids or Japanese labels from the LLM
func NormalizePatternType(value interface{}) PatternType {
	s := fallback.SafeString(value, "")
	switch s {
	case string(PatternEmpathy), "共感型":
		return PatternEmpathy
	case string(PatternSurprise), "驚き型":
		return PatternSurprise
	case string(PatternTestimonial), "体験談型":
		return PatternTestimonial
	}
	return PatternEmpathy
}

// Summary - key points extracted from a LINE post
type Summary struct {
	MainTheme       string   `json:"mainTheme"`
	TargetPersona   string   `json:"targetPersona"`
	PainPoints      []string `json:"painPoints"`
	KeyFacts        []string `json:"keyFacts"`
	SolutionMessage string   `json:"solutionMessage"`
	CTACandidates   []string `json:"ctaCandidates"`
	ToneNotes       string   `json:"toneNotes"`
}

// MangaPanel - one panel of the four-panel layout
type MangaPanel struct {
	Panel    int    `json:"panel"`
	Scene    string `json:"scene"`
	Dialogue string `json:"dialogue"`
}

// A4Flow - page flow for the a4-vertical layout
type A4Flow struct {
	Intro    string `json:"intro"`
	Empathy  string `json:"empathy"`
	Solution string `json:"solution"`
	Action   string `json:"action"`
}

// Pattern - one proposed comic composition
type Pattern struct {
	ID          string       `json:"id"`
	PatternType PatternType  `json:"patternType"`
	Title       string       `json:"title"`
	FourPanels  [4]MangaPanel `json:"fourPanels"`
	A4Flow      A4Flow       `json:"a4Flow"`
	CTA         string       `json:"cta"`
}

// InlineImage - raw image bytes with mime type
type InlineImage struct {
	MimeType string
	Data     []byte
}

// GenerationRequest - one image generation request, transport independent.
// Immutable once built.
type GenerationRequest struct {
	Prompt          string
	ReferenceImages []InlineImage
	PreviousImage   *InlineImage
}

// GenerationResult - one generated image as a data URL plus the prompt used
type GenerationResult struct {
	Layout       Layout `json:"layout"`
	ImageDataURL string `json:"imageDataUrl"`
	Prompt       string `json:"prompt"`
}

// NormalizeSummary - fill every summary field with a usable value
func NormalizeSummary(raw map[string]interface{}) Summary {
	if raw == nil {
		raw = map[string]interface{}{}
	}

	ctaCandidates := fallback.SafeStringList(raw["ctaCandidates"])
	if len(ctaCandidates) == 0 {
		ctaCandidates = []string{"LINEで返信してください", "お電話でご相談ください", "ご来店予約をお願いします"}
	}

	painPoints := fallback.SafeStringList(raw["painPoints"])
	if len(painPoints) == 0 {
		painPoints = []string{"何を選べばいいか分からない"}
	}

	keyFacts := fallback.SafeStringList(raw["keyFacts"])
	if len(keyFacts) == 0 {
		keyFacts = []string{"投稿文の要点をまとめる"}
	}

	return Summary{
		MainTheme:       fallback.SafeString(raw["mainTheme"], "季節の家電相談"),
		TargetPersona:   fallback.SafeString(raw["targetPersona"], "50代以上の地域のお客様"),
		PainPoints:      painPoints,
		KeyFacts:        keyFacts,
		SolutionMessage: fallback.SafeString(raw["solutionMessage"], "店主が状況に合わせて分かりやすく提案します"),
		CTACandidates:   ctaCandidates,
		ToneNotes:       fallback.SafeString(raw["toneNotes"], "やさしく親しみやすい口調"),
	}
}

func panelFallback(panel int) MangaPanel {
	return MangaPanel{
		Panel:    panel,
		Scene:    fmt.Sprintf("コマ%dの状況", panel),
		Dialogue: "短いセリフ",
	}
}

func normalizePanel(raw interface{}, panel int) MangaPanel {
	m, _ := raw.(map[string]interface{})
	fb := panelFallback(panel)
	return MangaPanel{
		Panel:    panel,
		Scene:    fallback.SafeString(m["scene"], fb.Scene),
		Dialogue: fallback.SafeString(m["dialogue"], fb.Dialogue),
	}
}

func normalizeA4Flow(raw interface{}) A4Flow {
	m, _ := raw.(map[string]interface{})
	return A4Flow{
		Intro:    fallback.SafeString(m["intro"], "導入: お客様の状況説明"),
		Empathy:  fallback.SafeString(m["empathy"], "共感: 困りごとへの寄り添い"),
		Solution: fallback.SafeString(m["solution"], "解決: 店主の提案"),
		Action:   fallback.SafeString(m["action"], "行動: LINE返信か電話相談へ"),
	}
}

func normalizePattern(raw interface{}, index int) Pattern {
	m, _ := raw.(map[string]interface{})
	panels, _ := m["fourPanels"].([]interface{})

	var fourPanels [4]MangaPanel
	for i := 0; i < 4; i++ {
		var panelRaw interface{}
		if i < len(panels) {
			panelRaw = panels[i]
		}
		fourPanels[i] = normalizePanel(panelRaw, i+1)
	}

	return Pattern{
		ID:          fallback.SafeString(m["id"], fmt.Sprintf("pattern-%d", index+1)),
		PatternType: NormalizePatternType(m["patternType"]),
		Title:       fallback.SafeString(m["title"], fmt.Sprintf("提案パターン%d", index+1)),
		FourPanels:  fourPanels,
		A4Flow:      normalizeA4Flow(m["a4Flow"]),
		CTA:         fallback.SafeString(m["cta"], "LINEで返信してください"),
	}
}

// NormalizePatterns - always return exactly 3 patterns, padding with typed
// fallbacks when the model returns fewer
func NormalizePatterns(raw map[string]interface{}) []Pattern {
	var rawPatterns []interface{}
	if raw != nil {
		rawPatterns, _ = raw["patterns"].([]interface{})
	}
	if len(rawPatterns) > 3 {
		rawPatterns = rawPatterns[:3]
	}

	normalized := make([]Pattern, 0, 3)
	for i, item := range rawPatterns {
		normalized = append(normalized, normalizePattern(item, i))
	}

	fallbackTypes := []PatternType{PatternEmpathy, PatternSurprise, PatternTestimonial}
	for len(normalized) < 3 {
		index := len(normalized)
		pt := fallbackTypes[index]
		var fourPanels [4]MangaPanel
		for i := 0; i < 4; i++ {
			fourPanels[i] = panelFallback(i + 1)
		}
		normalized = append(normalized, Pattern{
			ID:          fmt.Sprintf("pattern-%d", index+1),
			PatternType: pt,
			Title:       fmt.Sprintf("%sの提案", pt.Label()),
			FourPanels:  fourPanels,
			A4Flow:      normalizeA4Flow(nil),
			CTA:         "LINEで返信してください",
		})
	}

	return normalized
}

// Run status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)
