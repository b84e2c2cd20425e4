package openaiLLM

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Provider struct {
	client openai.Client
	model  string
	logger *logger_i.Logger
}

type Option = option.RequestOption

// New builds the OpenAI provider. Extra options are passed to the SDK, tests
// use them to point at a local server.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key missing")
	}
	// retries belong to the orchestrator
	all := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &Provider{
		client: openai.NewClient(all...),
		model:  model,
		logger: logger_i.NewLogger("llm_openai"),
	}, nil
}

func (p *Provider) Name() string         { return config.ProviderOpenAI }
func (p *Provider) Model() string        { return p.model }
func (p *Provider) Metered() bool        { return true }
func (p *Provider) SupportsVision() bool { return true }

func (p *Provider) Analyze(ctx context.Context, req llm.Request) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(llm.UserContent(req)),
	}
	for _, img := range req.Images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
		}))
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(config.ModelContext),
			openai.UserMessage(parts),
		},
		MaxTokens:   openai.Int(config.ModelMaxTokens),
		Temperature: openai.Float(float64(config.ModelTemperature)),
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", llm.NewTransient(http.StatusOK, "no choices returned", nil)
	}
	p.logger.Debug("completion received", "model", resp.Model, "tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		callErr := llm.FromHTTPStatus(apiErr.StatusCode, header, apiErr.Message)
		callErr.Err = errors.Join(callErr.Err, err)
		return callErr
	}
	return llm.Classify(err)
}
