package batch

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"manga-promo-server/modules/common/model"
	"manga-promo-server/modules/common/utils"
	"manga-promo-server/modules/generate"
)

type Handler struct {
	service *Service
	poller  *Poller
	rdb     *redis.Client
}

func NewHandler(service *Service, poller *Poller, rdb *redis.Client) *Handler {
	return &Handler{service: service, poller: poller, rdb: rdb}
}

type startRunBody struct {
	Summary               map[string]interface{} `json:"summary"`
	Patterns              []interface{}          `json:"patterns"`
	OwnerReferenceDataURL string                 `json:"ownerReferenceDataUrl"`
	WifeReferenceDataURL  string                 `json:"wifeReferenceDataUrl"`
}

// StartRun - POST /api/batch/start: enqueue an "all patterns" run
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var body startRunBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	summary := model.NormalizeSummary(body.Summary)
	patterns := model.NormalizePatterns(map[string]interface{}{"patterns": body.Patterns})

	runID := uuid.NewString()
	run := Run{
		RunID:  runID,
		Status: model.StatusPending,
		Request: RunRequest{
			Summary:               summary,
			Patterns:              patterns,
			OwnerReferenceDataURL: body.OwnerReferenceDataURL,
			WifeReferenceDataURL:  body.WifeReferenceDataURL,
		},
		StartedAt: time.Now(),
	}

	raw, err := json.Marshal(run)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "failed to encode run")
		return
	}

	ctx := r.Context()
	if err := h.rdb.Set(ctx, runKeyPrefix+runID, raw, runTTL).Err(); err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "failed to store run")
		return
	}
	if err := h.rdb.LPush(ctx, queueKey, runID).Err(); err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "failed to enqueue run")
		return
	}

	utils.WriteJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

// GetRun - GET /api/batch/run/{runId}: current run state
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]

	raw, err := h.rdb.Get(r.Context(), runKeyPrefix+runID).Result()
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, "run not found")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(raw))
}

type createBatchBody struct {
	Summary               map[string]interface{} `json:"summary"`
	Pattern               map[string]interface{} `json:"pattern"`
	OwnerReferenceDataURL string                 `json:"ownerReferenceDataUrl"`
	WifeReferenceDataURL  string                 `json:"wifeReferenceDataUrl"`
	DisplayName           string                 `json:"displayName"`
}

// CreateBatch - POST /api/batch/create: submit one pattern as a batch job
// without the run machinery
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var body createBatchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	summary := model.NormalizeSummary(body.Summary)
	pattern := model.NormalizePatterns(map[string]interface{}{
		"patterns": []interface{}{body.Pattern},
	})[0]
	references := generate.CollectReferenceImages(body.OwnerReferenceDataURL, body.WifeReferenceDataURL)

	displayName := body.DisplayName
	if displayName == "" {
		displayName = "manga-batch-" + pattern.ID
	}

	requests := BuildKeyedRequests(summary, pattern, references)
	jobName, err := h.service.CreateBatch(r.Context(), requests, displayName)
	if err != nil {
		utils.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{"jobName": jobName})
}

// GetStatus - GET /api/batch/status?job=batches/...: poll a job once
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobName := r.URL.Query().Get("job")
	if jobName == "" {
		utils.WriteError(w, http.StatusBadRequest, "job query parameter is required")
		return
	}

	snapshot, err := h.poller.Poll(r.Context(), jobName)
	if err != nil {
		utils.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.service.AnnotatePrompts(r.Context(), snapshot.JobName, snapshot.Results)
	utils.WriteJSON(w, http.StatusOK, snapshot)
}
