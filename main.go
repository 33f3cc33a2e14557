package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"manga-promo-server/modules/batch"
	"manga-promo-server/modules/common/config"
	"manga-promo-server/modules/common/gemini"
	"manga-promo-server/modules/common/history"
	"manga-promo-server/modules/common/progress"
	redisconn "manga-promo-server/modules/common/redis"
	"manga-promo-server/modules/common/storage"
	"manga-promo-server/modules/common/utils"
	"manga-promo-server/modules/compose"
	"manga-promo-server/modules/generate"
	"manga-promo-server/modules/summarize"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origins := config.GetConfig().AllowedOrigins
		for _, allowed := range origins {
			if allowed == "*" || allowed == r.Header.Get("Origin") {
				return true
			}
		}
		return false
	},
}

// handleProgressSocket - stream run progress events to the browser
func handleProgressSocket(hub *progress.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := r.URL.Query().Get("run")
		if runID == "" {
			http.Error(w, "run parameter is required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		log.Printf("🔍 Progress subscriber connected for run %s", runID)

		events, cancel := hub.Subscribe(runID)
		defer cancel()

		// drain client frames so close is noticed
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := conn.WriteJSON(event); err != nil {
					log.Printf("WebSocket write error: %v", err)
					return
				}
				if event.Type == progress.EventRunCompleted || event.Type == progress.EventRunFailed {
					conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// enableCORS - CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range config.GetConfig().AllowedOrigins {
			if allowed == "*" || allowed == origin {
				if allowed == "*" {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
				break
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// healthCheck - 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "manga-promo-server",
		"now":     time.Now().Format(time.RFC3339),
	})
}

// handleHistory - GET /api/history: recent finished runs
func handleHistory(historyClient *history.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := historyClient.ListRecentRuns(20)
		if err != nil {
			utils.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"runs": records})
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	rdb := redisconn.Connect(cfg)
	if rdb == nil {
		log.Fatal("❌ Failed to connect to Redis")
	}
	log.Println("✅ Redis connected successfully")

	// shared clients
	geminiClient := gemini.NewClient(cfg.GeminiAPIKey)
	resolver := gemini.NewResolver(geminiClient)
	hub := progress.NewHub()
	storageClient := storage.NewClient()
	historyClient := history.NewClient()

	// batch engine
	batchService := batch.NewService(geminiClient, resolver, rdb)
	batchPoller := batch.NewPoller(geminiClient)
	worker := batch.NewWorker(batchService, batchPoller, rdb, hub, storageClient, historyClient)
	go worker.Start()

	// handlers
	summarizeHandler := summarize.NewHandler(geminiClient)
	composeHandler := compose.NewHandler(geminiClient)
	generateHandler := generate.NewHandler(resolver)
	batchHandler := batch.NewHandler(batchService, batchPoller, rdb)

	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ws", handleProgressSocket(hub))

	r.HandleFunc("/api/summarize", summarizeHandler.Summarize).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/compose", composeHandler.Compose).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/generate", generateHandler.Generate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/revise", generateHandler.Revise).Methods("POST", "OPTIONS")

	r.HandleFunc("/api/batch/start", batchHandler.StartRun).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/batch/run/{runId}", batchHandler.GetRun).Methods("GET")
	r.HandleFunc("/api/batch/create", batchHandler.CreateBatch).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/batch/status", batchHandler.GetStatus).Methods("GET")

	r.HandleFunc("/api/history", handleHistory(historyClient)).Methods("GET")

	log.Printf("🚀 Manga Promo Server starting on port %s", cfg.Port)
	log.Printf("📡 Progress WebSocket: ws://localhost:%s/ws?run=<runId>", cfg.Port)
	log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)

	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
