package summarize

import (
	"encoding/json"
	"net/http"
	"strings"

	"manga-promo-server/modules/common/gemini"
	"manga-promo-server/modules/common/utils"
)

type Handler struct {
	service *Service
}

func NewHandler(client *gemini.Client) *Handler {
	return &Handler{service: NewService(client)}
}

// Summarize - POST /api/summarize
func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PostText string `json:"postText"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	postText := strings.TrimSpace(body.PostText)
	if postText == "" {
		utils.WriteError(w, http.StatusBadRequest, "投稿文が空です。LINE投稿文を入力してください。")
		return
	}

	summary, err := h.service.Summarize(r.Context(), postText)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"summary": summary})
}
