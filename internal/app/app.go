package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/akolanti/ChatAnalyzer/internal/analysis"
	"github.com/akolanti/ChatAnalyzer/internal/chunker"
	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/data/redisStore"
	"github.com/akolanti/ChatAnalyzer/internal/data/store"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/jobModel"
	"github.com/akolanti/ChatAnalyzer/internal/license"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/internal/llm/anthropicLLM"
	"github.com/akolanti/ChatAnalyzer/internal/llm/azure"
	"github.com/akolanti/ChatAnalyzer/internal/llm/gemini"
	"github.com/akolanti/ChatAnalyzer/internal/llm/ollama"
	"github.com/akolanti/ChatAnalyzer/internal/llm/openaiLLM"
	"github.com/akolanti/ChatAnalyzer/internal/locations"
	"github.com/akolanti/ChatAnalyzer/internal/locations/geocoding"
	"github.com/akolanti/ChatAnalyzer/internal/pacing"
	"github.com/akolanti/ChatAnalyzer/internal/pipeline"
	"github.com/akolanti/ChatAnalyzer/internal/quicksearch"
	"github.com/akolanti/ChatAnalyzer/internal/reanalysis"
	"github.com/akolanti/ChatAnalyzer/internal/segmenter"
	"github.com/akolanti/ChatAnalyzer/internal/source"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

// App owns everything built from one Settings value. CLI commands, the HTTP
// server and the MCP server all run on top of it.
type App struct {
	Settings config.Settings
	Pipeline *pipeline.Pipeline
	Store    store.AnalysisStore
	Provider llm.Provider
	Pacers   *pacing.Registry

	logger *logger_i.Logger
}

type Option func(*buildOptions)

type buildOptions struct {
	provider llm.Provider
	store    store.AnalysisStore
	progress func(analysisModel.AnalysisResult)
}

// WithProvider skips the provider factory.
func WithProvider(p llm.Provider) Option {
	return func(o *buildOptions) { o.provider = p }
}

// WithStore skips the store selection.
func WithStore(s store.AnalysisStore) Option {
	return func(o *buildOptions) { o.store = s }
}

// WithProgress is called for every persisted chunk transition.
func WithProgress(fn func(analysisModel.AnalysisResult)) Option {
	return func(o *buildOptions) { o.progress = fn }
}

func Build(ctx context.Context, s config.Settings, opts ...Option) (*App, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := logger_i.NewLogger("app")

	provider := o.provider
	if provider == nil {
		p, err := NewProvider(ctx, s)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	st := o.store
	if st == nil {
		opened, err := OpenStore(ctx, s)
		if err != nil {
			return nil, err
		}
		st = opened
	}

	registry := pacing.NewRegistry()
	profile := pacing.LLMProfile(provider.Name(), s.Tier, s.TPMFor(provider.Name()), provider.Metered())
	profile.Factor = s.BackoffFactor
	profile.Ceiling = s.BackoffCeiling
	pacer := registry.Get(profile)

	estimator := Estimator(provider)
	caller := analysis.NewCaller(provider, pacer, estimator, s.RetryCeiling)

	orchestratorOpts := []analysis.Option{
		analysis.WithRetryCeiling(s.RetryCeiling),
		analysis.WithEstimator(estimator),
		analysis.WithProgress(o.progress),
	}
	if s.Vision && s.MediaDir != "" {
		orchestratorOpts = append(orchestratorOpts, analysis.WithMedia(analysis.NewMediaResolver(s.MediaDir, config.MaxImagesPerChunk)))
	}
	orchestrator := analysis.New(provider, pacer, st, st, orchestratorOpts...)

	extractorOpts := []locations.Option{
		locations.WithContextInference(s.ContextInference),
		locations.WithRetryCeiling(s.RetryCeiling),
	}
	geocoder, err := geocoding.New(s.Geocoder, s.GoogleMapsKey)
	if err != nil {
		logger.Warn("geocoding disabled", "geocoder", s.Geocoder, "error", err)
	} else {
		geoPacer := registry.Get(pacing.FixedIntervalProfile(geocoder.Name(), geocoder.MinInterval()))
		extractorOpts = append(extractorOpts, locations.WithGeocoder(geocoder, geoPacer))
	}

	p := pipeline.New(pipeline.Components{
		Loader:       source.NewLoader(),
		Chunker:      chunker.New(chunker.WithMaxChars(s.ChunkMaxChars), chunker.WithMaxMessages(s.ChunkMaxMessages)),
		Store:        st,
		Orchestrator: orchestrator,
		Summarizer:   analysis.NewSummarizer(caller),
		Reanalysis:   reanalysis.NewEngine(orchestrator, st, st),
		Search:       quicksearch.NewEngine(caller, st, st, st),
		Segmenter:    segmenter.New(st, st, st, caller, segmenter.WithAIHeaderDetection(s.AIHeaderDetection)),
		Locations:    locations.New(caller, st, extractorOpts...),
		License:      license.NewClient(s.LicenseURL),
		LicenseKey:   s.LicenseKey,
		Telemetry:    s.Telemetry,
	})

	logger.Info("app ready", "provider", provider.Name(), "model", provider.Model(), "store", s.Store, "profile", profile.Key())
	return &App{
		Settings: s,
		Pipeline: p,
		Store:    st,
		Provider: provider,
		Pacers:   registry,
		logger:   logger,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// NewProvider builds the configured backend.
func NewProvider(ctx context.Context, s config.Settings) (llm.Provider, error) {
	model := s.ModelFor(s.Provider)
	switch s.Provider {
	case config.ProviderOpenAI:
		return openaiLLM.New(s.OpenAIKey, model)
	case config.ProviderAnthropic:
		return anthropicLLM.New(s.AnthropicKey, model)
	case config.ProviderGemini:
		p := gemini.GetGeminiClient(ctx, s.GeminiKey, model)
		if p == nil {
			return nil, errors.New("gemini: client unavailable, check GEMINI_API_KEY")
		}
		return p, nil
	case config.ProviderAzure:
		return azure.New(s.AzureKey, s.AzureEndpoint, model)
	case config.ProviderOllama:
		return ollama.New(s.OllamaURL, model), nil
	}
	return nil, fmt.Errorf("unknown provider %q", s.Provider)
}

// Estimator counts with tiktoken for the OpenAI model families and falls
// back to chars/4 elsewhere.
func Estimator(p llm.Provider) pacing.TokenEstimator {
	switch p.Name() {
	case config.ProviderOpenAI, config.ProviderAzure:
		return pacing.NewTiktokenEstimator(p.Model())
	}
	return pacing.CharEstimator{}
}

// OpenStore opens the configured analysis store. An unreachable redis falls
// back to sqlite when FALLBACK_REDIS_TO_INTERNALSTORE is set.
func OpenStore(ctx context.Context, s config.Settings) (store.AnalysisStore, error) {
	switch s.Store {
	case config.StoreMemory:
		return store.InitInMemoryAnalysisStore(), nil
	case config.StoreRedis:
		rs, err := redisStore.GetRedisStore(ctx, s.RedisAddr, s.RedisPassword, config.RedisAnalysisStore)
		if err == nil {
			return store.NewRedisAnalysisStore(rs), nil
		}
		if !config.FALLBACK_REDIS_TO_INTERNALSTORE {
			return nil, fmt.Errorf("opening redis store: %w", err)
		}
		logger_i.NewLogger("app").Warn("redis unavailable, using sqlite", "error", err)
	}
	if err := os.MkdirAll(s.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	sqlite, err := store.NewSQLiteStore(s.DatabasePath())
	if err != nil {
		return nil, err
	}
	return sqlite, nil
}

// OpenJobStore keeps serve mode jobs in redis when the analysis store is
// redis, in memory otherwise.
func OpenJobStore(ctx context.Context, s config.Settings) jobModel.JobStore {
	if s.Store == config.StoreRedis {
		rs, err := redisStore.GetRedisStore(ctx, s.RedisAddr, s.RedisPassword, config.RedisJobStore)
		if err == nil {
			return store.NewRedisJobStore(rs)
		}
		logger_i.NewLogger("app").Warn("redis job store unavailable, keeping jobs in memory", "error", err)
	}
	return store.InitInMemoryJobStore()
}
