package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"manga-promo-server/modules/common/config"
	"manga-promo-server/modules/common/history"
	"manga-promo-server/modules/common/model"
	"manga-promo-server/modules/common/progress"
	"manga-promo-server/modules/common/storage"
	"manga-promo-server/modules/common/utils"
	"manga-promo-server/modules/generate"
)

const (
	queueKey     = "manga:batch:queue"
	runKeyPrefix = "manga:batch:run:"
	runTTL       = 24 * time.Hour

	// caller-owned polling policy
	overallTimeout = 10 * time.Minute
	warnAfter      = 3 * time.Minute
)

// Worker - Redis queue consumer running "all patterns" batch runs
type Worker struct {
	service *Service
	poller  *Poller
	rdb     *redis.Client
	hub     *progress.Hub
	storage *storage.Client
	history *history.Client
}

// NewWorker - worker 생성 (storage/history may be nil when Supabase is off)
func NewWorker(service *Service, poller *Poller, rdb *redis.Client, hub *progress.Hub, storageClient *storage.Client, historyClient *history.Client) *Worker {
	return &Worker{
		service: service,
		poller:  poller,
		rdb:     rdb,
		hub:     hub,
		storage: storageClient,
		history: historyClient,
	}
}

// Start - Redis Queue Worker 시작
func (w *Worker) Start() {
	log.Println("🔄 Batch run worker starting...")
	log.Printf("👀 Watching queue: %s", queueKey)

	ctx := context.Background()

	for {
		result, err := w.rdb.BRPop(ctx, 0, queueKey).Result()
		if err != nil {
			log.Printf("❌ Redis BRPOP error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		runID := result[1]
		log.Printf("🎯 Received batch run: %s", runID)

		go w.processRun(ctx, runID)
	}
}

// loadRun - run state from Redis
func (w *Worker) loadRun(ctx context.Context, runID string) (*Run, error) {
	raw, err := w.rdb.Get(ctx, runKeyPrefix+runID).Result()
	if err != nil {
		return nil, fmt.Errorf("run %s not found: %w", runID, err)
	}
	var run Run
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return nil, fmt.Errorf("run %s state corrupted: %w", runID, err)
	}
	return &run, nil
}

// saveRun - persist run state back to Redis
func (w *Worker) saveRun(ctx context.Context, run *Run) {
	raw, err := json.Marshal(run)
	if err != nil {
		log.Printf("❌ Failed to encode run %s: %v", run.RunID, err)
		return
	}
	if err := w.rdb.Set(ctx, runKeyPrefix+run.RunID, raw, runTTL).Err(); err != nil {
		log.Printf("❌ Failed to save run %s: %v", run.RunID, err)
	}
}

// processRun - one full run: submit one batch job per pattern, poll all jobs
// in parallel rounds, reconcile, upload, finalize
func (w *Worker) processRun(ctx context.Context, runID string) {
	log.Printf("🚀 Processing batch run: %s", runID)

	run, err := w.loadRun(ctx, runID)
	if err != nil {
		log.Printf("❌ %v", err)
		return
	}

	run.Status = model.StatusProcessing
	w.saveRun(ctx, run)
	w.hub.Publish(progress.Event{Type: progress.EventRunStarted, RunID: runID})

	references := generate.CollectReferenceImages(
		run.Request.OwnerReferenceDataURL,
		run.Request.WifeReferenceDataURL,
	)

	// Phase 1: one batch job per pattern
	var runErrors []string
	pending := map[string]string{} // jobName -> patternID

	for _, pattern := range run.Request.Patterns {
		requests := BuildKeyedRequests(run.Request.Summary, pattern, references)
		displayName := fmt.Sprintf("manga-run-%s-%s", runID, pattern.ID)

		jobName, err := w.service.CreateBatch(ctx, requests, displayName)
		if err != nil {
			log.Printf("❌ Batch submission failed for pattern %s: %v", pattern.ID, err)
			runErrors = append(runErrors, fmt.Sprintf("pattern %s: %v", pattern.ID, err))
			continue
		}

		run.Jobs = append(run.Jobs, RunJob{PatternID: pattern.ID, JobName: jobName})
		pending[jobName] = pattern.ID
		w.hub.Publish(progress.Event{
			Type:      progress.EventBatchCreated,
			RunID:     runID,
			PatternID: pattern.ID,
			Message:   jobName,
		})
	}
	w.saveRun(ctx, run)

	// Phase 2: caller-owned poll loop over all jobs
	results, pollErrors := w.pollUntilDone(ctx, run, pending)
	runErrors = append(runErrors, pollErrors...)

	// Phase 3: optional storage upload
	w.uploadResults(ctx, runID, results)

	// Phase 4: finalize
	now := time.Now()
	run.Results = results
	run.Error = strings.Join(runErrors, "; ")
	run.FinishedAt = &now
	if len(results) > 0 {
		run.Status = model.StatusCompleted
	} else {
		run.Status = model.StatusFailed
		if run.Error == "" {
			run.Error = "run produced no results"
		}
	}
	w.saveRun(ctx, run)
	w.recordHistory(run)

	if run.Status == model.StatusCompleted {
		w.hub.Publish(progress.Event{Type: progress.EventRunCompleted, RunID: runID, Message: run.Error})
		log.Printf("✅ Run %s completed: %d images (%d errors)", runID, len(results), len(runErrors))
	} else {
		w.hub.Publish(progress.Event{Type: progress.EventRunFailed, RunID: runID, Message: run.Error})
		log.Printf("❌ Run %s failed: %s", runID, run.Error)
	}
}

// pollUntilDone - parallel polling rounds until every job is terminal, the
// overall timeout expires, or the context is cancelled
func (w *Worker) pollUntilDone(ctx context.Context, run *Run, pending map[string]string) ([]ImageResult, []string) {
	var (
		results   []ImageResult
		runErrors []string
	)

	start := time.Now()
	warned := false

	for len(pending) > 0 {
		if time.Since(start) > overallTimeout {
			for jobName, patternID := range pending {
				runErrors = append(runErrors, fmt.Sprintf("pattern %s: polling timed out after %v (job %s)", patternID, overallTimeout, jobName))
			}
			log.Printf("⏰ Run %s timed out with %d jobs still pending", run.RunID, len(pending))
			break
		}

		if !warned && time.Since(start) > warnAfter {
			warned = true
			w.hub.Publish(progress.Event{
				Type:    progress.EventWarning,
				RunID:   run.RunID,
				Message: "生成に時間がかかっています。もう少しお待ちください。",
			})
		}

		jobNames := make([]string, 0, len(pending))
		for jobName := range pending {
			jobNames = append(jobNames, jobName)
		}

		snapshots, errs := w.poller.PollAll(ctx, jobNames)

		delay := DefaultPollInterval
		for i, jobName := range jobNames {
			patternID := pending[jobName]

			if errs[i] != nil {
				// transient status-call failure, keep the job pending
				log.Printf("⚠️  Poll failed for %s: %v", jobName, errs[i])
				continue
			}

			snapshot := snapshots[i]
			w.updateJobState(run, jobName, snapshot.State)

			if !snapshot.Done {
				if snapshot.PollAfter > 0 {
					delay = snapshot.PollAfter
				}
				w.hub.Publish(progress.Event{
					Type:      progress.EventPolling,
					RunID:     run.RunID,
					PatternID: patternID,
					State:     snapshot.State,
				})
				continue
			}

			delete(pending, jobName)

			w.service.AnnotatePrompts(ctx, jobName, snapshot.Results)
			results = append(results, snapshot.Results...)
			if snapshot.ErrorMessage != "" {
				runErrors = append(runErrors, snapshot.ErrorMessage)
			}

			for _, result := range snapshot.Results {
				w.hub.Publish(progress.Event{
					Type:      progress.EventImageReady,
					RunID:     run.RunID,
					PatternID: result.PatternID,
					Layout:    string(result.Layout),
				})
			}
			log.Printf("🏁 Job %s done for run %s (%d results)", jobName, run.RunID, len(snapshot.Results))
		}
		w.saveRun(ctx, run)

		if len(pending) == 0 {
			break
		}

		select {
		case <-ctx.Done():
			runErrors = append(runErrors, "run cancelled")
			return results, runErrors
		case <-time.After(delay):
		}
	}

	return results, runErrors
}

func (w *Worker) updateJobState(run *Run, jobName, state string) {
	for i := range run.Jobs {
		if run.Jobs[i].JobName == jobName {
			run.Jobs[i].State = state
			return
		}
	}
}

// uploadResults - push PNG results to Supabase Storage as WebP when configured
func (w *Worker) uploadResults(ctx context.Context, runID string, results []ImageResult) {
	if w.storage == nil || !config.GetConfig().HasSupabase() {
		return
	}

	for i := range results {
		mimeType, data, err := utils.ParseDataURL(results[i].ImageDataURL)
		if err != nil || mimeType != "image/png" {
			continue
		}
		path, err := w.storage.UploadComicImage(ctx, data, runID, results[i].PatternID, string(results[i].Layout))
		if err != nil {
			log.Printf("⚠️  Storage upload failed for %s/%s: %v", results[i].PatternID, results[i].Layout, err)
			continue
		}
		results[i].StoragePath = path
	}
}

// recordHistory - insert the finished run into Supabase when configured
func (w *Worker) recordHistory(run *Run) {
	if w.history == nil {
		return
	}

	record := history.RunRecord{
		RunID:        run.RunID,
		Status:       run.Status,
		PatternCount: len(run.Request.Patterns),
		ImageCount:   len(run.Results),
		StartedAt:    run.StartedAt,
		FinishedAt:   time.Now(),
	}
	if run.Error != "" {
		msg := run.Error
		record.ErrorMessage = &msg
	}
	if run.FinishedAt != nil {
		record.FinishedAt = *run.FinishedAt
	}

	if err := w.history.RecordRun(record); err != nil {
		log.Printf("⚠️  Failed to record run history: %v", err)
	}
}
