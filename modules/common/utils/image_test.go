package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataURLRoundTrip(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4E, 0x47, 0x00, 0x01, 0x02}
	dataURL := ToDataURL("image/png", payload)

	mimeType, data, err := ParseDataURL(dataURL)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, payload, data)
}

func TestToDataURLDefaultsToPNG(t *testing.T) {
	dataURL := ToDataURL("", []byte("x"))
	assert.Contains(t, dataURL, "data:image/png;base64,")
}

func TestParseDataURLRejectsMalformedInput(t *testing.T) {
	cases := []string{
		"",
		"not a data url",
		"data:image/png,plain-payload",
		"data:image/png;base64,@@@invalid@@@",
	}
	for _, input := range cases {
		_, _, err := ParseDataURL(input)
		assert.Error(t, err, "input: %s", input)
	}
}
