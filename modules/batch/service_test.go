package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"manga-promo-server/modules/common/config"
	"manga-promo-server/modules/common/gemini"
	"manga-promo-server/modules/common/model"
)

func loadTestConfig(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "test-key")
	_, err := config.LoadConfig()
	require.NoError(t, err)
}

func testClient(serverURL string) *gemini.Client {
	client := gemini.NewClientWithBaseURL("test-key", serverURL)
	client.SetRetryConfig(gemini.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond})
	return client
}

func samplePattern(id string) model.Pattern {
	return model.Pattern{
		ID:          id,
		PatternType: model.PatternEmpathy,
		Title:       "朝のバタバタ、あるある!",
		FourPanels: [4]model.MangaPanel{
			{Scene: "朝の台所", Dialogue: "もう時間がない!"},
			{Scene: "子供の支度", Dialogue: "靴下どこ〜?"},
			{Scene: "サービス利用", Dialogue: "これなら間に合う"},
			{Scene: "笑顔で出発", Dialogue: "助かった!"},
		},
		CTA: "今すぐ友だち追加",
	}
}

func sampleSummary() model.Summary {
	return model.Summary{
		MainTheme:       "おはようデリの朝食宅配",
		TargetPersona:   "忙しい共働き家庭",
		PainPoints:      []string{"朝は準備の時間がない"},
		KeyFacts:        []string{"朝6時から配達", "前日夜まで注文可能"},
		SolutionMessage: "朝食の準備をまるごとお任せできます",
		CTACandidates:   []string{"LINEで注文する"},
		ToneNotes:       "明るく元気な口調",
	}
}

func TestBuildKeyedRequestsCoversBothLayouts(t *testing.T) {
	pattern := samplePattern("p1")
	requests := BuildKeyedRequests(sampleSummary(), pattern, nil)

	require.Len(t, requests, 2)

	layouts := map[model.Layout]bool{}
	for _, kr := range requests {
		decoded, err := DecodeKey(kr.Key)
		require.NoError(t, err)
		assert.Equal(t, "p1", decoded.PatternID)
		assert.Equal(t, pattern.Title, decoded.PatternTitle)
		layouts[decoded.Layout] = true

		assert.Equal(t, kr.Key, kr.Metadata["key"])
		assert.Equal(t, "p1", kr.Metadata["patternId"])
		assert.NotEmpty(t, kr.Request.Prompt)
	}
	assert.True(t, layouts[model.LayoutFourPanel])
	assert.True(t, layouts[model.LayoutA4Vertical])
}

func TestCreateBatchPrefersFileTransport(t *testing.T) {
	loadTestConfig(t)

	var uploadedNDJSON string
	var batchBody struct {
		Batch struct {
			DisplayName string `json:"displayName"`
			InputConfig struct {
				FileName string          `json:"fileName"`
				Requests json.RawMessage `json:"requests"`
			} `json:"inputConfig"`
		} `json:"batch"`
	}

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Goog-Upload-URL", server.URL+"/upload-session")
	})
	mux.HandleFunc("/upload-session", func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		uploadedNDJSON = string(raw)
		fmt.Fprint(w, `{"file":{"name":"files/req-1"}}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, ":batchGenerateContent") {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&batchBody))
			fmt.Fprint(w, `{"name":"batches/job-file-1"}`)
			return
		}
		http.NotFound(w, r)
	})

	client := testClient(server.URL)
	service := NewService(client, gemini.NewResolver(client), nil)

	requests := BuildKeyedRequests(sampleSummary(), samplePattern("p1"), nil)
	jobName, err := service.CreateBatch(context.Background(), requests, "manga-batch-p1")

	require.NoError(t, err)
	assert.Equal(t, "batches/job-file-1", jobName)
	assert.Equal(t, "files/req-1", batchBody.Batch.InputConfig.FileName)
	assert.Equal(t, "manga-batch-p1", batchBody.Batch.DisplayName)

	lines := strings.Split(strings.TrimSpace(uploadedNDJSON), "\n")
	require.Len(t, lines, 2)
	for i, rawLine := range lines {
		var line gemini.BatchFileLine
		require.NoError(t, json.Unmarshal([]byte(rawLine), &line))
		assert.Equal(t, requests[i].Key, line.Key)
		require.NotNil(t, line.Request)
		require.NotEmpty(t, line.Request.Contents)
		assert.Contains(t, line.Request.Contents[0].Parts[0].Text, "おはようデリ")
	}
}

func TestCreateBatchFallsBackToInlineTransport(t *testing.T) {
	loadTestConfig(t)

	var inlineBody struct {
		Batch struct {
			InputConfig struct {
				FileName string `json:"fileName"`
				Requests *struct {
					Requests []gemini.BatchInlineRequest `json:"requests"`
				} `json:"requests"`
			} `json:"inputConfig"`
		} `json:"batch"`
	}

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"file uploads disabled"}}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, ":batchGenerateContent") {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&inlineBody))
			fmt.Fprint(w, `{"name":"batches/job-inline-1"}`)
			return
		}
		http.NotFound(w, r)
	})

	client := testClient(server.URL)
	service := NewService(client, gemini.NewResolver(client), nil)

	requests := BuildKeyedRequests(sampleSummary(), samplePattern("p1"), nil)
	jobName, err := service.CreateBatch(context.Background(), requests, "manga-batch-p1")

	require.NoError(t, err)
	assert.Equal(t, "batches/job-inline-1", jobName)
	assert.Empty(t, inlineBody.Batch.InputConfig.FileName)
	require.NotNil(t, inlineBody.Batch.InputConfig.Requests)
	items := inlineBody.Batch.InputConfig.Requests.Requests
	require.Len(t, items, 2)
	for i, item := range items {
		assert.Equal(t, requests[i].Key, item.Metadata["key"])
		assert.Equal(t, "p1", item.Metadata["patternId"])
		require.NotEmpty(t, item.Request.Contents)
	}
}

func TestCreateBatchFailsWhenAllTransportsFail(t *testing.T) {
	loadTestConfig(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"nope"}}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	service := NewService(client, gemini.NewResolver(client), nil)

	requests := BuildKeyedRequests(sampleSummary(), samplePattern("p1"), nil)
	_, err := service.CreateBatch(context.Background(), requests, "manga-batch-p1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "all batch transports failed")
}

func TestCreateBatchRejectsEmptyInput(t *testing.T) {
	client := testClient("http://unused.invalid")
	service := NewService(client, gemini.NewResolver(client), nil)

	_, err := service.CreateBatch(context.Background(), nil, "dn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no requests")
}
