package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"manga-promo-server/modules/common/config"
	"manga-promo-server/modules/common/utils"
)

const bucketName = "manga-images"

// Client - Supabase Storage uploads for generated comic images
type Client struct {
	httpClient *http.Client
}

// NewClient - Storage 클라이언트 생성
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// UploadComicImage - convert a generated PNG to WebP and upload it. Returns
// the public storage path.
func (c *Client) UploadComicImage(ctx context.Context, pngData []byte, runID, patternID, layout string) (string, error) {
	cfg := config.GetConfig()
	if !cfg.HasSupabase() {
		return "", fmt.Errorf("supabase storage is not configured")
	}

	webpData, err := utils.ConvertPNGToWebP(pngData, 90.0)
	if err != nil {
		return "", fmt.Errorf("failed to convert PNG to WebP: %w", err)
	}

	timestamp := time.Now().UnixNano() / int64(time.Millisecond)
	randomID := rand.Intn(999999)
	fileName := fmt.Sprintf("%s_%s_%d_%d.webp", patternID, layout, timestamp, randomID)
	filePath := fmt.Sprintf("runs/%s/%s", runID, fileName)

	log.Printf("📤 Uploading WebP image to storage: %s", filePath)

	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", cfg.SupabaseURL, bucketName, filePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(webpData))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.SupabaseServiceKey)
	req.Header.Set("Content-Type", "image/webp")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	log.Printf("✅ WebP image uploaded successfully: %s (%d bytes)", filePath, len(webpData))
	return filePath, nil
}
