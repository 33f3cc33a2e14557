package batch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"manga-promo-server/modules/common/gemini"
	"manga-promo-server/modules/common/model"
)

func imageResponse(pngBytes []byte) *gemini.GenerateResponse {
	return &gemini.GenerateResponse{
		Candidates: []gemini.Candidate{{
			Content: &gemini.Content{
				Parts: []gemini.Part{{
					InlineData: &gemini.InlineData{
						MimeType: "image/png",
						Data:     base64.StdEncoding.EncodeToString(pngBytes),
					},
				}},
			},
		}},
	}
}

func inlineItem(patternID string, layout model.Layout) gemini.InlinedResponse {
	return gemini.InlinedResponse{
		Metadata: map[string]string{
			"patternId":    patternID,
			"layout":       string(layout),
			"patternType":  string(model.PatternEmpathy),
			"patternTitle": "テスト",
		},
		Response: imageResponse([]byte("png-" + patternID)),
	}
}

func serveOperation(t *testing.T, op *gemini.BatchOperation) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(op))
	}))
}

func TestPollToleratesPartialItemFailure(t *testing.T) {
	op := &gemini.BatchOperation{
		Name: "batches/job-1",
		Done: true,
		Response: &gemini.BatchResponseBody{
			State: "BATCH_STATE_SUCCEEDED",
			InlinedResponses: &gemini.InlinedResponses{
				InlinedResponses: []gemini.InlinedResponse{
					inlineItem("p1", model.LayoutFourPanel),
					{
						Metadata: map[string]string{
							"patternId":   "p2",
							"layout":      string(model.LayoutFourPanel),
							"patternType": string(model.PatternSurprise),
						},
						Error: &gemini.APIErrorBody{Code: 500, Message: "generation exploded"},
					},
					inlineItem("p3", model.LayoutA4Vertical),
				},
			},
		},
	}
	server := serveOperation(t, op)
	defer server.Close()

	poller := NewPoller(testClient(server.URL))
	snapshot, err := poller.Poll(context.Background(), "batches/job-1")

	require.NoError(t, err)
	assert.True(t, snapshot.Done)
	require.Len(t, snapshot.Results, 2)
	assert.Equal(t, "p1", snapshot.Results[0].PatternID)
	assert.Equal(t, "p3", snapshot.Results[1].PatternID)
	assert.Contains(t, snapshot.Results[0].ImageDataURL, "data:image/png;base64,")

	// the failed item is reported, not swallowed
	assert.Contains(t, snapshot.ErrorMessage, "p2/four-panel")
	assert.Contains(t, snapshot.ErrorMessage, "generation exploded")
}

func TestPollReportsTotalFailureWhenNothingCameBack(t *testing.T) {
	op := &gemini.BatchOperation{
		Name:     "batches/job-empty",
		Done:     true,
		Response: &gemini.BatchResponseBody{State: "BATCH_STATE_SUCCEEDED"},
	}
	server := serveOperation(t, op)
	defer server.Close()

	poller := NewPoller(testClient(server.URL))
	snapshot, err := poller.Poll(context.Background(), "batches/job-empty")

	require.NoError(t, err)
	assert.True(t, snapshot.Done)
	assert.Empty(t, snapshot.Results)
	assert.Contains(t, snapshot.ErrorMessage, "produced no results")
}

func TestPollTerminalFailureStates(t *testing.T) {
	for _, state := range []string{"BATCH_STATE_FAILED", "BATCH_STATE_CANCELLED", "BATCH_STATE_EXPIRED"} {
		t.Run(state, func(t *testing.T) {
			op := &gemini.BatchOperation{
				Name:     "batches/job-x",
				Done:     true,
				Metadata: &gemini.BatchMetadata{State: state},
			}
			server := serveOperation(t, op)
			defer server.Close()

			poller := NewPoller(testClient(server.URL))
			snapshot, err := poller.Poll(context.Background(), "batches/job-x")

			require.NoError(t, err)
			assert.True(t, snapshot.Done)
			assert.Contains(t, snapshot.ErrorMessage, state)
		})
	}
}

func TestPollRunningJobSuggestsNextPoll(t *testing.T) {
	op := &gemini.BatchOperation{
		Name:     "batches/job-running",
		Metadata: &gemini.BatchMetadata{State: "BATCH_STATE_RUNNING"},
	}
	server := serveOperation(t, op)
	defer server.Close()

	poller := NewPoller(testClient(server.URL))
	snapshot, err := poller.Poll(context.Background(), "batches/job-running")

	require.NoError(t, err)
	assert.False(t, snapshot.Done)
	assert.Empty(t, snapshot.ErrorMessage)
	assert.Equal(t, DefaultPollInterval, snapshot.PollAfter)
}

func TestPollSurfacesJobLevelError(t *testing.T) {
	op := &gemini.BatchOperation{
		Name:  "batches/job-err",
		Done:  true,
		Error: &gemini.APIErrorBody{Code: 13, Message: "internal batch failure"},
	}
	server := serveOperation(t, op)
	defer server.Close()

	poller := NewPoller(testClient(server.URL))
	snapshot, err := poller.Poll(context.Background(), "batches/job-err")

	require.NoError(t, err)
	assert.True(t, snapshot.Done)
	assert.Contains(t, snapshot.ErrorMessage, "internal batch failure")
}

func TestPollIdempotentOnTerminalJob(t *testing.T) {
	op := &gemini.BatchOperation{
		Name: "batches/job-stable",
		Done: true,
		Response: &gemini.BatchResponseBody{
			State: "BATCH_STATE_SUCCEEDED",
			InlinedResponses: &gemini.InlinedResponses{
				InlinedResponses: []gemini.InlinedResponse{inlineItem("p1", model.LayoutFourPanel)},
			},
		},
	}
	server := serveOperation(t, op)
	defer server.Close()

	poller := NewPoller(testClient(server.URL))

	first, err := poller.Poll(context.Background(), "batches/job-stable")
	require.NoError(t, err)
	second, err := poller.Poll(context.Background(), "batches/job-stable")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// full file-transport round trip: submit through the service, poll until the
// result file is reconciled
func TestFileTransportRoundTrip(t *testing.T) {
	loadTestConfig(t)

	summary := sampleSummary()
	pattern := samplePattern("p1")
	requests := BuildKeyedRequests(summary, pattern, nil)
	require.Len(t, requests, 2)

	var resultFile strings.Builder
	for i, kr := range requests {
		response := imageResponse([]byte(fmt.Sprintf("png-bytes-%d", i)))
		line, err := json.Marshal(resultLine{Key: kr.Key, Response: mustMarshal(t, response)})
		require.NoError(t, err)
		resultFile.Write(line)
		resultFile.WriteByte('\n')
	}

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Goog-Upload-URL", server.URL+"/upload-session")
	})
	mux.HandleFunc("/upload-session", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"file":{"name":"files/req-1"}}`)
	})
	mux.HandleFunc("/v1beta/files/results-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"name":"files/results-1","downloadUri":"%s/download/results-1"}`, server.URL)
	})
	mux.HandleFunc("/download/results-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, resultFile.String())
	})
	mux.HandleFunc("/v1beta/batches/job-e2e", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"name": "batches/job-e2e",
			"done": true,
			"response": {"state": "BATCH_STATE_SUCCEEDED", "responsesFile": "files/results-1"}
		}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, ":batchGenerateContent") {
			fmt.Fprint(w, `{"name":"batches/job-e2e"}`)
			return
		}
		http.NotFound(w, r)
	})

	client := testClient(server.URL)
	service := NewService(client, gemini.NewResolver(client), nil)
	poller := NewPoller(client)

	jobName, err := service.CreateBatch(context.Background(), requests, "manga-run-e2e-p1")
	require.NoError(t, err)
	assert.Equal(t, "batches/job-e2e", jobName)

	snapshot, err := poller.Poll(context.Background(), jobName)
	require.NoError(t, err)

	assert.True(t, snapshot.Done)
	assert.Empty(t, snapshot.ErrorMessage)
	require.Len(t, snapshot.Results, 2)

	for i, result := range snapshot.Results {
		assert.Equal(t, "p1", result.PatternID)
		assert.Equal(t, pattern.Title, result.PatternTitle)
		wantData := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("png-bytes-%d", i)))
		assert.Equal(t, "data:image/png;base64,"+wantData, result.ImageDataURL)
	}
	assert.Equal(t, model.LayoutFourPanel, snapshot.Results[0].Layout)
	assert.Equal(t, model.LayoutA4Vertical, snapshot.Results[1].Layout)
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
