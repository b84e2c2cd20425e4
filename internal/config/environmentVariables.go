package config

import (
	"log/slog"
	"time"
)

const (
	IS_PROD                         = false
	LOG_LEVEL_PROD                  = slog.LevelInfo
	FALLBACK_REDIS_TO_INTERNALSTORE = true //if redis init fails, serve mode falls back to the sqlite store
	TRACE_ID_KEY                    = "traceId"
	RATE_LIMIT_PER_SECOND           = 2
	BURST_RATE_LIMIT_PER_SECOND     = 5

	AppName    = "chatanalyzer"
	AppVersion = "0.4.0"

	//settings file lives under the user home
	SettingsDirName  = ".chatanalyzer"
	SettingsFileName = "config.yaml"
	DatabaseFileName = "analysis.db"

	//chunking
	DefaultChunkMaxChars = 15000
	CharsPerToken        = 4

	//pacing: delay = tokens / (tpm / 60) * safety
	EstimatedTokensPerChunk = 1500
	PacingSafetyFactor      = 1.2
	LocalProviderFloor      = 500 * time.Millisecond
	HostedProviderFloor     = 0 * time.Second
	BackoffFactor           = 2.0
	BackoffMinStep          = 2 * time.Second
	BackoffCeiling          = 5 * time.Minute
	DecayAfterSuccesses     = 5
	RetryCeiling            = 3

	//tokens per minute, tier "default"
	OpenAIDefaultTPM    = 30000
	AnthropicDefaultTPM = 40000
	GeminiDefaultTPM    = 60000
	AzureDefaultTPM     = 30000

	//providers
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderAzure     = "azure"
	ProviderOllama    = "ollama"
	DefaultTier       = "default"

	OpenAIModelName    = "gpt-4o-mini"
	AnthropicModelName = "claude-3-5-sonnet-latest"
	GeminiModelName    = "gemini-2.5-flash-lite-preview-09-2025"
	OllamaModelName    = "llava:7b"
	OllamaURL          = "http://localhost:11434"
	AzureAPIVersion    = "2024-06-01"

	llmConnectionTimeout = 120 * time.Second
	LLMCallTimeout       = llmConnectionTimeout
	ModelMaxTokens       = 4000

	ModelTemperature float32 = 0.2
	ModelContext             = "You are a digital forensics assistant. Report only what the material supports, never invent participants, places or events, and keep the tone neutral."

	//summaries
	HierarchicalThreshold = 30
	HierarchicalGroupSize = 20
	SummaryMaxChars       = 60000

	//vision payloads per chunk, 0 is unlimited
	MaxImagesPerChunk = 8

	//quick search reads stored analyses only
	QuickSearchMaxChars = 120000

	//segmentation
	HeaderProbeChars = 800

	//locations
	ContextWindowChars      = 1500
	DedupTolerance          = 0.001 //degrees, ~100m
	InferredMinConfidence   = 30
	InferredMaxConfidence   = 60
	NominatimURL            = "https://nominatim.openstreetmap.org/search"
	NominatimUserAgent      = AppName + "/" + AppVersion
	NominatimMinInterval    = 1500 * time.Millisecond
	GoogleGeocodeURL        = "https://maps.googleapis.com/maps/api/geocode/json"
	GoogleMinInterval       = 500 * time.Millisecond
	GeocodingProviderFree   = "nominatim"
	GeocodingProviderGoogle = "google"
	GeocodingQueueSize      = 64

	//license
	LicenseTimeout = 10 * time.Second

	GeocodingTimeout = 15 * time.Second

	RequestsPerNewWorkerCount int64 = 10
	MaxWorkerCount            int64 = 4
	MinWorkerCount            int64 = 1
	IdleWorkerTimeout               = 1 * time.Minute
	//IdleWorkerTimeout = 1 * time.Second //fo tests
	JobTimeout                      = 6 * time.Hour

	//serverTimeouts
	ReadTimeout            = 60 * time.Second //document uploads
	WriteTimeout           = 30 * time.Second
	IdleTimeout            = 120 * time.Second
	ShutdownContextTimeout = 10 * time.Second

	//server listening port
	ServerListenAddr = ":3000"

	//job requests buffer limit
	BufferLimit = 100

	MaxIdleConns        = 50
	MaxIdleConnsPerHost = 25
	IdleConnTimeout     = 60 * time.Second

	//redis
	redisHost = "127.0.0.1"
	redisPort = "6379"
	RedisAddr = redisHost + ":" + redisPort

	//redis has 16 DB we can use
	RedisJobStore      = 0
	RedisAnalysisStore = 1

	//redis timeouts
	RedisJobStoreTTL = 24 * time.Hour

	//store backends
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)
