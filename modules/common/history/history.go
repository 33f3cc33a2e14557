package history

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
	"manga-promo-server/modules/common/config"
)

const runTable = "manga_run_history"

// RunRecord - manga_run_history 테이블 구조
type RunRecord struct {
	RunID        string    `json:"run_id"`
	Status       string    `json:"status"`
	PatternCount int       `json:"pattern_count"`
	ImageCount   int       `json:"image_count"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// Client - run history persistence, enabled only when Supabase is configured
type Client struct {
	supabase *supabase.Client
}

// NewClient - history 클라이언트 생성 (nil when Supabase is not configured)
func NewClient() *Client {
	cfg := config.GetConfig()
	if !cfg.HasSupabase() {
		log.Println("⚠️  Supabase not configured, run history disabled")
		return nil
	}

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Printf("❌ Failed to create Supabase client: %v", err)
		return nil
	}

	return &Client{supabase: supabaseClient}
}

// RecordRun - insert one finished run
func (c *Client) RecordRun(record RunRecord) error {
	if c == nil {
		return nil
	}

	insertData := map[string]interface{}{
		"run_id":        record.RunID,
		"status":        record.Status,
		"pattern_count": record.PatternCount,
		"image_count":   record.ImageCount,
		"started_at":    record.StartedAt,
		"finished_at":   record.FinishedAt,
	}
	if record.ErrorMessage != nil {
		insertData["error_message"] = *record.ErrorMessage
	}

	_, _, err := c.supabase.From(runTable).
		Insert(insertData, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}

	log.Printf("💾 Run %s recorded in history (%s, %d images)", record.RunID, record.Status, record.ImageCount)
	return nil
}

// ListRecentRuns - most recent runs, newest first
func (c *Client) ListRecentRuns(limit int) ([]RunRecord, error) {
	if c == nil {
		return []RunRecord{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	data, _, err := c.supabase.From(runTable).
		Select("*", "exact", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}

	var records []RunRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse run history response: %w", err)
	}
	return records, nil
}
