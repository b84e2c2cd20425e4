package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/customHttpClient"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

// Provider is the local, unmetered runtime.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *logger_i.Logger
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Images  []string       `json:"images,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func New(baseURL string, model string) *Provider {
	if baseURL == "" {
		baseURL = config.OllamaURL
	}
	return &Provider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: customHttpClient.New(config.LLMCallTimeout),
		logger:     logger_i.NewLogger("llm_ollama"),
	}
}

func (p *Provider) Name() string  { return config.ProviderOllama }
func (p *Provider) Model() string { return p.model }
func (p *Provider) Metered() bool { return false }

// SupportsVision is optimistic: llava style models accept images, text only
// models ignore them.
func (p *Provider) SupportsVision() bool { return true }

func (p *Provider) Analyze(ctx context.Context, req llm.Request) (string, error) {
	body := generateRequest{
		Model:   p.model,
		Prompt:  llm.UserContent(req),
		System:  config.ModelContext,
		Stream:  false,
		Options: map[string]any{"temperature": config.ModelTemperature},
	}
	for _, img := range req.Images {
		body.Images = append(body.Images, base64.StdEncoding.EncodeToString(img.Data))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", llm.NewFatal(0, "encoding request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", llm.NewFatal(0, "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		//runtime not started yet or restarting
		return "", llm.Classify(fmt.Errorf("ollama unreachable: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", llm.NewTransient(resp.StatusCode, "reading response", err)
	}
	if resp.StatusCode != http.StatusOK {
		//ollama answers 404 for a model that is not pulled
		if resp.StatusCode == http.StatusNotFound {
			return "", llm.NewFatal(resp.StatusCode, "model "+p.model+" not available: "+string(raw), nil)
		}
		return "", llm.FromHTTPStatus(resp.StatusCode, resp.Header, string(raw))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", llm.NewTransient(resp.StatusCode, "decoding response", err)
	}
	if out.Error != "" {
		return "", llm.NewTransient(resp.StatusCode, out.Error, nil)
	}
	p.logger.Debug("generation done", "model", out.Model, "bytes", len(out.Response))
	return out.Response, nil
}
