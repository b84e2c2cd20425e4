package anthropicLLM

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type Provider struct {
	client anthropic.Client
	model  string
	logger *logger_i.Logger
}

func New(apiKey string, model string, opts ...option.RequestOption) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: API key missing")
	}
	all := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &Provider{
		client: anthropic.NewClient(all...),
		model:  model,
		logger: logger_i.NewLogger("llm_anthropic"),
	}, nil
}

func (p *Provider) Name() string         { return config.ProviderAnthropic }
func (p *Provider) Model() string        { return p.model }
func (p *Provider) Metered() bool        { return true }
func (p *Provider) SupportsVision() bool { return true }

func (p *Provider) Analyze(ctx context.Context, req llm.Request) (string, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Images)+1)
	for _, img := range req.Images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, base64.StdEncoding.EncodeToString(img.Data)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(llm.UserContent(req)))

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   config.ModelMaxTokens,
		System:      []anthropic.TextBlockParam{{Text: config.ModelContext}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		Temperature: anthropic.Float(float64(config.ModelTemperature)),
	})
	if err != nil {
		return "", classify(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", llm.NewTransient(http.StatusOK, "no text content returned", nil)
	}
	p.logger.Debug("message received", "stop", msg.StopReason, "outputTokens", msg.Usage.OutputTokens)
	return b.String(), nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		callErr := llm.FromHTTPStatus(apiErr.StatusCode, header, apiErr.Error())
		callErr.Err = errors.Join(callErr.Err, err)
		return callErr
	}
	return llm.Classify(err)
}
