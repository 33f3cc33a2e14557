package compose

import (
	"encoding/json"
	"net/http"

	"manga-promo-server/modules/common/gemini"
	"manga-promo-server/modules/common/model"
	"manga-promo-server/modules/common/utils"
)

type Handler struct {
	service *Service
}

func NewHandler(client *gemini.Client) *Handler {
	return &Handler{service: NewService(client)}
}

// Compose - POST /api/compose
func (h *Handler) Compose(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Summary map[string]interface{} `json:"summary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	summary := model.NormalizeSummary(body.Summary)

	patterns, err := h.service.Compose(r.Context(), summary)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"patterns": patterns})
}
