package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePatternType(t *testing.T) {
	assert.Equal(t, PatternEmpathy, NormalizePatternType("empathy"))
	assert.Equal(t, PatternSurprise, NormalizePatternType("surprise"))
	assert.Equal(t, PatternTestimonial, NormalizePatternType("testimonial"))

	// the LLM sometimes answers with the Japanese labels
	assert.Equal(t, PatternEmpathy, NormalizePatternType("共感型"))
	assert.Equal(t, PatternSurprise, NormalizePatternType("驚き型"))
	assert.Equal(t, PatternTestimonial, NormalizePatternType("体験談型"))

	// anything unrecognized degrades to empathy
	assert.Equal(t, PatternEmpathy, NormalizePatternType("dramatic"))
	assert.Equal(t, PatternEmpathy, NormalizePatternType(nil))
	assert.Equal(t, PatternEmpathy, NormalizePatternType(42))
}

func TestPatternTypeLabel(t *testing.T) {
	assert.Equal(t, "共感型", PatternEmpathy.Label())
	assert.Equal(t, "驚き型", PatternSurprise.Label())
	assert.Equal(t, "体験談型", PatternTestimonial.Label())
	assert.Equal(t, "共感型", PatternType("unknown").Label())
}

func TestNormalizeSummaryFillsEveryField(t *testing.T) {
	empty := NormalizeSummary(nil)
	assert.NotEmpty(t, empty.MainTheme)
	assert.NotEmpty(t, empty.TargetPersona)
	assert.NotEmpty(t, empty.PainPoints)
	assert.NotEmpty(t, empty.KeyFacts)
	assert.NotEmpty(t, empty.SolutionMessage)
	assert.NotEmpty(t, empty.CTACandidates)
	assert.NotEmpty(t, empty.ToneNotes)

	filled := NormalizeSummary(map[string]interface{}{
		"mainTheme":     "エアコンの夏前点検",
		"painPoints":    []interface{}{"冷えない", "電気代が高い"},
		"ctaCandidates": []interface{}{"LINEで相談"},
	})
	assert.Equal(t, "エアコンの夏前点検", filled.MainTheme)
	assert.Equal(t, []string{"冷えない", "電気代が高い"}, filled.PainPoints)
	assert.Equal(t, []string{"LINEで相談"}, filled.CTACandidates)
	// untouched fields still get defaults
	assert.NotEmpty(t, filled.TargetPersona)
}

func TestNormalizePatternsPadsToThree(t *testing.T) {
	patterns := NormalizePatterns(map[string]interface{}{
		"patterns": []interface{}{
			map[string]interface{}{
				"id":          "p1",
				"patternType": "surprise",
				"title":       "えっ、そんなに早いの?",
			},
		},
	})

	require.Len(t, patterns, 3)
	assert.Equal(t, "p1", patterns[0].ID)
	assert.Equal(t, PatternSurprise, patterns[0].PatternType)

	// padding follows the fixed type order
	assert.Equal(t, PatternSurprise, patterns[1].PatternType)
	assert.Equal(t, PatternTestimonial, patterns[2].PatternType)
	for _, p := range patterns {
		assert.NotEmpty(t, p.ID)
		assert.NotEmpty(t, p.Title)
		assert.NotEmpty(t, p.CTA)
		for i, panel := range p.FourPanels {
			assert.Equal(t, i+1, panel.Panel)
			assert.NotEmpty(t, panel.Scene)
			assert.NotEmpty(t, panel.Dialogue)
		}
	}
}

func TestNormalizePatternsTruncatesExtras(t *testing.T) {
	raw := map[string]interface{}{
		"patterns": []interface{}{
			map[string]interface{}{"id": "a"},
			map[string]interface{}{"id": "b"},
			map[string]interface{}{"id": "c"},
			map[string]interface{}{"id": "d"},
		},
	}
	patterns := NormalizePatterns(raw)
	require.Len(t, patterns, 3)
	assert.Equal(t, "a", patterns[0].ID)
	assert.Equal(t, "c", patterns[2].ID)
}

func TestNormalizePatternsEmptyInput(t *testing.T) {
	patterns := NormalizePatterns(nil)
	require.Len(t, patterns, 3)
	assert.Equal(t, PatternEmpathy, patterns[0].PatternType)
	assert.Equal(t, PatternSurprise, patterns[1].PatternType)
	assert.Equal(t, PatternTestimonial, patterns[2].PatternType)
}

func TestIsValidLayout(t *testing.T) {
	assert.True(t, IsValidLayout("four-panel"))
	assert.True(t, IsValidLayout("a4-vertical"))
	assert.False(t, IsValidLayout("three-panel"))
	assert.False(t, IsValidLayout(""))
}
