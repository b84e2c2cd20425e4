package azure

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
	openai "github.com/sashabaranov/go-openai"
)

// Provider talks to an Azure OpenAI deployment. The model is the deployment name.
type Provider struct {
	client     *openai.Client
	deployment string
	logger     *logger_i.Logger
}

func New(apiKey string, endpoint string, deployment string) (*Provider, error) {
	if apiKey == "" || endpoint == "" {
		return nil, errors.New("azure: API key and endpoint are required")
	}
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	cfg.APIVersion = config.AzureAPIVersion
	return newWithConfig(cfg, deployment), nil
}

func newWithConfig(cfg openai.ClientConfig, deployment string) *Provider {
	return &Provider{
		client:     openai.NewClientWithConfig(cfg),
		deployment: deployment,
		logger:     logger_i.NewLogger("llm_azure"),
	}
}

func (p *Provider) Name() string         { return config.ProviderAzure }
func (p *Provider) Model() string        { return p.deployment }
func (p *Provider) Metered() bool        { return true }
func (p *Provider) SupportsVision() bool { return true }

func (p *Provider) Analyze(ctx context.Context, req llm.Request) (string, error) {
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(req.Images) == 0 {
		user.Content = llm.UserContent(req)
	} else {
		user.MultiContent = []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: llm.UserContent(req)}}
		for _, img := range req.Images {
			user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.deployment,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: config.ModelContext},
			user,
		},
		MaxTokens:   config.ModelMaxTokens,
		Temperature: config.ModelTemperature,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", llm.NewTransient(http.StatusOK, "no choices returned", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		callErr := llm.FromHTTPStatus(apiErr.HTTPStatusCode, nil, apiErr.Message)
		callErr.Err = errors.Join(callErr.Err, err)
		return callErr
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		callErr := llm.FromHTTPStatus(reqErr.HTTPStatusCode, nil, reqErr.Error())
		callErr.Err = errors.Join(callErr.Err, err)
		return callErr
	}
	return llm.Classify(err)
}
