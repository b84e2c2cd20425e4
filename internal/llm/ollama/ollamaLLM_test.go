package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_SendsImagesAndPrompt(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{Model: "llava:7b", Response: "LOCATIONS: Milano", Done: true})
	}))
	defer srv.Close()

	p := New(srv.URL+"/", "llava:7b")
	out, err := p.Analyze(context.Background(), llm.Request{
		Prompt: "analyse",
		Text:   "chunk text",
		Images: []llm.Image{{Data: []byte("img")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "LOCATIONS: Milano", out)
	assert.False(t, got.Stream)
	assert.Equal(t, []string{"aW1n"}, got.Images)
	assert.Contains(t, got.Prompt, "chunk text")
	assert.False(t, p.Metered())
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		class  llm.ErrorClass
	}{
		{"model missing", http.StatusNotFound, llm.Fatal},
		{"busy", http.StatusServiceUnavailable, llm.Transient},
		{"bad request", http.StatusBadRequest, llm.Fatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"x"}`))
			}))
			defer srv.Close()

			_, err := New(srv.URL, "m").Analyze(context.Background(), llm.Request{Prompt: "p"})
			var callErr *llm.CallError
			require.True(t, errors.As(err, &callErr))
			assert.Equal(t, tt.class, callErr.Class)
		})
	}
}

func TestAnalyze_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, "m").Analyze(context.Background(), llm.Request{Prompt: "p"})
	var callErr *llm.CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, llm.Transient, callErr.Class)
}
