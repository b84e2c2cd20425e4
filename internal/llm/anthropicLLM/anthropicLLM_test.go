package anthropicLLM

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := New("sk-ant-test", "claude-test", option.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return p
}

func TestAnalyze_Success(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"THREATS: none"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	})

	out, err := p.Analyze(context.Background(), llm.Request{
		Prompt: "analyse",
		Text:   "chunk",
		Images: []llm.Image{{MimeType: "image/png", Data: []byte{0x89, 0x50}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "THREATS: none", out)

	raw, _ := json.Marshal(body["messages"])
	assert.Contains(t, string(raw), `"type":"image"`)
	assert.Contains(t, string(raw), `"media_type":"image/png"`)
}

func TestAnalyze_RateLimitedCarriesRetryAfter(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	})

	_, err := p.Analyze(context.Background(), llm.Request{Prompt: "p"})
	var callErr *llm.CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, llm.RateLimited, callErr.Class)
	assert.Equal(t, 12*time.Second, callErr.RetryAfter)
}

func TestAnalyze_BadKeyAborts(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	_, err := p.Analyze(context.Background(), llm.Request{Prompt: "p"})
	var callErr *llm.CallError
	require.True(t, errors.As(err, &callErr))
	assert.True(t, callErr.Aborts())
}
