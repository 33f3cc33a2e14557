package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryClient(serverURL string) *Client {
	client := NewClientWithBaseURL("test-key", serverURL)
	client.SetRetryConfig(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond})
	return client
}

func TestRetryBoundOnRetryableStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"rate limit exceeded"}}`)
	}))
	defer server.Close()

	client := fastRetryClient(server.URL)
	_, err := client.GenerateContent(context.Background(), "gemini-test", &GenerateRequest{})

	require.Error(t, err)
	// max retries + 1 attempts, no more
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Contains(t, err.Error(), "rate limit")
}

func TestNonRetryableStatusFailsImmediately(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"invalid argument"}}`)
	}))
	defer server.Close()

	client := fastRetryClient(server.URL)
	_, err := client.GenerateContent(context.Background(), "gemini-test", &GenerateRequest{})

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Contains(t, err.Error(), "invalid argument")
}

func TestContentBlockIsFatal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer server.Close()

	client := fastRetryClient(server.URL)
	_, err := client.GenerateContent(context.Background(), "gemini-test", &GenerateRequest{})

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Contains(t, err.Error(), "SAFETY")
	assert.False(t, IsRetryableError(err))
}

func TestMissingAPIKeyIsConfigurationError(t *testing.T) {
	client := NewClientWithBaseURL("", "http://unused.invalid")
	_, err := client.GenerateContent(context.Background(), "gemini-test", &GenerateRequest{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	assert.False(t, IsRetryableError(err))
}

func TestIsRetryableErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"status 429", &APIError{StatusCode: 429}, true},
		{"status 503", &APIError{StatusCode: 503}, true},
		{"status 400", &APIError{StatusCode: 400, Message: "bad request"}, false},
		{"overloaded message", fmt.Errorf("the model is overloaded"), true},
		{"quota message", fmt.Errorf("quota exceeded for project"), true},
		{"timeout message", fmt.Errorf("request timed out"), true},
		{"plain failure", fmt.Errorf("something else broke"), false},
		{"content block", &BlockedError{Reason: "SAFETY"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retryable, IsRetryableError(tc.err))
		})
	}
}
