package gemini

import (
	"context"
	"errors"
	"sync"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
	"google.golang.org/genai"
)

type llmClient struct {
	client    *genai.Client
	modelName string
}

var logger *logger_i.Logger
var geminiClient *llmClient
var once sync.Once

// GetGeminiClient returns the process wide Gemini provider, nil when the
// client could not be created.
func GetGeminiClient(ctx context.Context, apikey string, modelName string) llm.Provider {
	once.Do(func() {
		logger = logger_i.NewLogger("llm_gemini")
		newGeminiClient(ctx, apikey, modelName)
	})

	if geminiClient == nil {
		return nil
	}
	return &llmClient{client: geminiClient.client, modelName: geminiClient.modelName}
}

func newGeminiClient(ctx context.Context, apikey string, modelName string) {
	if apikey == "" {
		logger.Error("Gemini API key missing")
		return
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apikey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		logger.Error("Error creating Gemini client:", "error", err)
		return
	}
	geminiClient = &llmClient{client: c, modelName: modelName}
	logger.Info("Gemini client created", "model", modelName)
	go closeClient(ctx, geminiClient)
}

func (c *llmClient) Name() string         { return config.ProviderGemini }
func (c *llmClient) Model() string        { return c.modelName }
func (c *llmClient) Metered() bool        { return true }
func (c *llmClient) SupportsVision() bool { return true }

func (c *llmClient) Analyze(ctx context.Context, req llm.Request) (string, error) {
	if c.client == nil {
		return "", llm.NewFatal(0, "gemini client closed", errors.New("client closed"))
	}

	parts := []*genai.Part{genai.NewPartFromText(llm.UserContent(req))}
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
	}

	contentConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(config.ModelContext, genai.RoleUser),
		Temperature:       genai.Ptr(config.ModelTemperature),
	}

	result, err := c.client.Models.GenerateContent(
		ctx,
		c.modelName,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		contentConfig,
	)
	if err != nil {
		return "", classify(err)
	}
	if result == nil {
		return "", llm.NewTransient(0, "empty gemini response", nil)
	}
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return "", llm.NewFatal(0, "prompt blocked: "+string(result.PromptFeedback.BlockReason), nil)
	}
	return result.Text(), nil
}

func closeClient(ctx context.Context, llm *llmClient) {
	<-ctx.Done()
	logger.Info("Closing Gemini client")
	llm.client = nil
}
