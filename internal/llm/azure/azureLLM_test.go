package azure

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/akolanti/ChatAnalyzer/internal/llm"
	openai "github.com/sashabaranov/go-openai"
)

func TestAnalyze_DeploymentRouting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/openai/deployments/forensic-gpt/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("api-key") != "az-key" {
			t.Errorf("missing api-key header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultAzureConfig("az-key", srv.URL)
	p := newWithConfig(cfg, "forensic-gpt")

	out, err := p.Analyze(context.Background(), llm.Request{Prompt: "p", Text: "t"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if out != "ok" {
		t.Errorf("out = %q", out)
	}
}

func TestAnalyze_Throttled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"429","message":"Requests to the deployment have exceeded the rate limit"}}`))
	}))
	defer srv.Close()

	p := newWithConfig(openai.DefaultAzureConfig("az-key", srv.URL), "forensic-gpt")
	_, err := p.Analyze(context.Background(), llm.Request{Prompt: "p"})

	var callErr *llm.CallError
	if !errors.As(err, &callErr) || callErr.Class != llm.RateLimited {
		t.Fatalf("expected RateLimited, got %v", err)
	}
}
