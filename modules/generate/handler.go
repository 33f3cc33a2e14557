package generate

import (
	"encoding/json"
	"net/http"
	"strings"

	"manga-promo-server/modules/common/gemini"
	"manga-promo-server/modules/common/model"
	"manga-promo-server/modules/common/utils"
)

type Handler struct {
	service *Service
}

func NewHandler(resolver *gemini.Resolver) *Handler {
	return &Handler{service: NewService(resolver)}
}

type generateBody struct {
	Summary               map[string]interface{} `json:"summary"`
	Pattern               map[string]interface{} `json:"pattern"`
	OwnerReferenceDataURL string                 `json:"ownerReferenceDataUrl"`
	WifeReferenceDataURL  string                 `json:"wifeReferenceDataUrl"`

	// revise only
	RevisionInstruction           string `json:"revisionInstruction"`
	PreviousFourPanelImageDataURL string `json:"previousFourPanelImageDataUrl"`
	PreviousA4ImageDataURL        string `json:"previousA4ImageDataUrl"`
}

func (b *generateBody) normalized() (model.Summary, model.Pattern, []model.InlineImage) {
	summary := model.NormalizeSummary(b.Summary)
	pattern := model.NormalizePatterns(map[string]interface{}{
		"patterns": []interface{}{b.Pattern},
	})[0]
	references := CollectReferenceImages(b.OwnerReferenceDataURL, b.WifeReferenceDataURL)
	return summary, pattern, references
}

// Generate - POST /api/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	summary, pattern, references := body.normalized()

	result, err := h.service.GeneratePair(r.Context(), summary, pattern, references, nil, nil, "")
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, result)
}

// Revise - POST /api/revise
func (h *Handler) Revise(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	revisionInstruction := strings.TrimSpace(body.RevisionInstruction)
	if revisionInstruction == "" {
		utils.WriteError(w, http.StatusBadRequest, "修正指示を入力してください。")
		return
	}

	summary, pattern, references := body.normalized()
	previousFourPanel := DecodePreviousImage(body.PreviousFourPanelImageDataURL)
	previousA4 := DecodePreviousImage(body.PreviousA4ImageDataURL)

	result, err := h.service.GeneratePair(r.Context(), summary, pattern, references, previousFourPanel, previousA4, revisionInstruction)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, result)
}
