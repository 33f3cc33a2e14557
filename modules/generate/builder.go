package generate

import (
	"strings"

	"manga-promo-server/modules/common/model"
	"manga-promo-server/modules/common/utils"
)

// CollectReferenceImages - decode the character reference data URLs that are
// actually present and are images
func CollectReferenceImages(dataURLs ...string) []model.InlineImage {
	var images []model.InlineImage
	for _, dataURL := range dataURLs {
		if !strings.HasPrefix(dataURL, "data:image/") {
			continue
		}
		mimeType, data, err := utils.ParseDataURL(dataURL)
		if err != nil {
			continue
		}
		images = append(images, model.InlineImage{MimeType: mimeType, Data: data})
	}
	return images
}

// DecodePreviousImage - optional previous-generation image for revision
func DecodePreviousImage(dataURL string) *model.InlineImage {
	if dataURL == "" {
		return nil
	}
	mimeType, data, err := utils.ParseDataURL(dataURL)
	if err != nil {
		return nil
	}
	return &model.InlineImage{MimeType: mimeType, Data: data}
}

// BuildGenerationRequest - one transport independent generation request
func BuildGenerationRequest(prompt string, references []model.InlineImage, previous *model.InlineImage) model.GenerationRequest {
	return model.GenerationRequest{
		Prompt:          prompt,
		ReferenceImages: references,
		PreviousImage:   previous,
	}
}
