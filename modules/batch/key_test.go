package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"manga-promo-server/modules/common/model"
)

func TestEncodeDecodeKeyRoundTrip(t *testing.T) {
	cases := []struct {
		name        string
		patternID   string
		layout      model.Layout
		patternType model.PatternType
		title       string
	}{
		{"plain ascii", "pattern-1", model.LayoutFourPanel, model.PatternEmpathy, "Simple Title"},
		{"delimiter in title", "pattern-2", model.LayoutA4Vertical, model.PatternSurprise, "before|after|end"},
		{"delimiter in pattern id", "p|1", model.LayoutFourPanel, model.PatternTestimonial, "title"},
		{"japanese title", "pattern-3", model.LayoutA4Vertical, model.PatternEmpathy, "エアコン相談はおまかせ！"},
		{"mixed unicode and symbols", "pattern-4", model.LayoutFourPanel, model.PatternSurprise, "50%オフ & “fast” ～夏～"},
		{"empty title", "pattern-5", model.LayoutFourPanel, model.PatternEmpathy, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := EncodeKey(tc.patternID, tc.layout, tc.patternType, tc.title)

			decoded, err := DecodeKey(key)
			require.NoError(t, err)

			assert.Equal(t, tc.patternID, decoded.PatternID)
			assert.Equal(t, tc.layout, decoded.Layout)
			assert.Equal(t, tc.patternType, decoded.PatternType)
			assert.Equal(t, tc.title, decoded.PatternTitle)
		})
	}
}

func TestDecodeKeyRejectsMalformedInput(t *testing.T) {
	cases := []struct {
		name string
		key  string
	}{
		{"too few parts", "a|b|c"},
		{"unknown layout", "p1|three-panel|empathy|title"},
		{"unknown pattern type", "p1|four-panel|dramatic|title"},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeKey(tc.key)
			assert.Error(t, err)
		})
	}
}
