package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
)

// fileEnvelope - files API wraps the resource in a "file" object
type fileEnvelope struct {
	File *File `json:"file,omitempty"`
}

// UploadFile - two-phase resumable upload: a start call returns the upload
// URL in a response header, then a single upload+finalize call sends the bytes.
func (c *Client) UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (*File, error) {
	if err := c.checkAPIKey(); err != nil {
		return nil, err
	}

	uploadURL, err := c.startResumableUpload(ctx, len(data), mimeType, displayName)
	if err != nil {
		return nil, err
	}

	file, err := c.finishResumableUpload(ctx, uploadURL, data)
	if err != nil {
		return nil, err
	}

	log.Printf("📤 File uploaded: %s (%s, %d bytes)", file.Name, displayName, len(data))
	return file, nil
}

// startResumableUpload - phase one, returns the session upload URL
func (c *Client) startResumableUpload(ctx context.Context, size int, mimeType, displayName string) (string, error) {
	endpoint := fmt.Sprintf("%s/upload/v1beta/files?%s", c.baseURL, c.keyParam())

	startBody, err := json.Marshal(fileEnvelope{File: &File{DisplayName: displayName}})
	if err != nil {
		return "", fmt.Errorf("failed to encode upload start body: %w", err)
	}

	var uploadURL string
	err = withRetry(ctx, c.retry, "upload start", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(startBody))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Goog-Upload-Protocol", "resumable")
		req.Header.Set("X-Goog-Upload-Command", "start")
		req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(size))
		req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("upload start request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return apiErrorFromResponse(resp.StatusCode, raw)
		}

		uploadURL = resp.Header.Get("X-Goog-Upload-URL")
		if uploadURL == "" {
			return fmt.Errorf("upload start returned no X-Goog-Upload-URL header")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return uploadURL, nil
}

// finishResumableUpload - phase two, sends the bytes and finalizes
func (c *Client) finishResumableUpload(ctx context.Context, uploadURL string, data []byte) (*File, error) {
	var file *File
	err := withRetry(ctx, c.retry, "upload finalize", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("X-Goog-Upload-Command", "upload, finalize")
		req.Header.Set("X-Goog-Upload-Offset", "0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("upload finalize request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read upload finalize response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return apiErrorFromResponse(resp.StatusCode, raw)
		}

		var envelope fileEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return fmt.Errorf("failed to decode upload finalize response: %w", err)
		}
		if envelope.File == nil || envelope.File.Name == "" {
			// some API versions answer with the bare file resource
			var bare File
			if err := json.Unmarshal(raw, &bare); err == nil && bare.Name != "" {
				file = &bare
				return nil
			}
			return fmt.Errorf("upload finalize returned no file resource")
		}
		file = envelope.File
		return nil
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// GetFile - fetch file metadata by resource name ("files/...")
func (c *Client) GetFile(ctx context.Context, name string) (*File, error) {
	if !strings.HasPrefix(name, "files/") {
		return nil, fmt.Errorf("malformed file reference %q: expected files/... form", name)
	}

	endpoint := fmt.Sprintf("%s/v1beta/%s?%s", c.baseURL, name, c.keyParam())

	var file File
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, nil, &file); err != nil {
		return nil, fmt.Errorf("failed to fetch file %s: %w", name, err)
	}
	return &file, nil
}

// DownloadFileContent - fetch the raw content of a file resource. Three URL
// variants are tried in order, using the first that succeeds: the download
// URI bare, the download URI with the API key header, then the canonical
// download-by-id endpoint. The ordering matters for the live API.
func (c *Client) DownloadFileContent(ctx context.Context, file *File) ([]byte, error) {
	if file == nil {
		return nil, fmt.Errorf("nil file resource")
	}

	type attempt struct {
		label   string
		url     string
		headers map[string]string
	}

	var attempts []attempt
	if file.DownloadURI != "" {
		attempts = append(attempts,
			attempt{label: "downloadUri", url: file.DownloadURI},
			attempt{label: "downloadUri+key", url: file.DownloadURI, headers: map[string]string{"x-goog-api-key": c.apiKey}},
		)
	}
	if file.Name != "" {
		attempts = append(attempts, attempt{
			label: "download endpoint",
			url:   fmt.Sprintf("%s/v1beta/%s:download?alt=media&%s", c.baseURL, file.Name, c.keyParam()),
		})
	}
	if len(attempts) == 0 {
		return nil, fmt.Errorf("file resource %q has no downloadable reference", file.DisplayName)
	}

	var lastErr error
	for _, a := range attempts {
		data, err := c.downloadOnce(ctx, a.url, a.headers)
		if err == nil {
			return data, nil
		}
		lastErr = err
		log.Printf("⚠️  Download via %s failed: %v", a.label, err)
	}
	return nil, fmt.Errorf("all download variants failed for %s: %w", file.Name, lastErr)
}

func (c *Client) downloadOnce(ctx context.Context, downloadURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiErrorFromResponse(resp.StatusCode, raw)
	}
	return raw, nil
}
