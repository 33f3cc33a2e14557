package batch

import (
	"fmt"
	"net/url"
	"strings"

	"manga-promo-server/modules/common/model"
)

// The request key is the only channel correlating a batch item back to its
// origin: the provider keeps nothing else across a file-based round trip.
// Format: escape(patternId)|layout|patternType|escape(title). The free-text
// parts are percent-escaped so the delimiter never collides.

const keyDelimiter = "|"

// DecodedKey - the four fields every batch item is indexed by
type DecodedKey struct {
	PatternID    string
	Layout       model.Layout
	PatternType  model.PatternType
	PatternTitle string
}

// EncodeKey - deterministic, reversible request key
func EncodeKey(patternID string, layout model.Layout, patternType model.PatternType, title string) string {
	return strings.Join([]string{
		url.QueryEscape(patternID),
		string(layout),
		string(patternType),
		url.QueryEscape(title),
	}, keyDelimiter)
}

// DecodeKey - inverse of EncodeKey; lossless for ASCII and Unicode titles,
// including titles containing the delimiter
func DecodeKey(key string) (DecodedKey, error) {
	parts := strings.Split(key, keyDelimiter)
	if len(parts) != 4 {
		return DecodedKey{}, fmt.Errorf("malformed batch request key %q: expected 4 parts, got %d", key, len(parts))
	}

	patternID, err := url.QueryUnescape(parts[0])
	if err != nil {
		return DecodedKey{}, fmt.Errorf("malformed pattern id in key %q: %w", key, err)
	}
	title, err := url.QueryUnescape(parts[3])
	if err != nil {
		return DecodedKey{}, fmt.Errorf("malformed title in key %q: %w", key, err)
	}

	if !model.IsValidLayout(parts[1]) {
		return DecodedKey{}, fmt.Errorf("unknown layout %q in key %q", parts[1], key)
	}

	switch model.PatternType(parts[2]) {
	case model.PatternEmpathy, model.PatternSurprise, model.PatternTestimonial:
	default:
		return DecodedKey{}, fmt.Errorf("unknown pattern type %q in key %q", parts[2], key)
	}

	return DecodedKey{
		PatternID:    patternID,
		Layout:       model.Layout(parts[1]),
		PatternType:  model.PatternType(parts[2]),
		PatternTitle: title,
	}, nil
}
