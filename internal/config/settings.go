package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings is the runtime configuration. Defaults come from the constants in
// this package, then the yaml settings file, then the environment.
type Settings struct {
	Provider         string         `yaml:"provider"`
	Model            string         `yaml:"model"`
	Tier             string         `yaml:"tier"`
	TPMLimits        map[string]int `yaml:"tpm_limits"`
	ChunkMaxChars    int            `yaml:"chunk_max_chars"`
	ChunkMaxMessages int            `yaml:"chunk_max_messages"`
	RetryCeiling     int            `yaml:"retry_ceiling"`
	BackoffFactor    float64        `yaml:"backoff_factor"`
	BackoffCeiling   time.Duration  `yaml:"backoff_ceiling"`
	Vision           bool           `yaml:"vision"`
	MediaDir         string         `yaml:"media_dir"`

	Store     string `yaml:"store"`
	DataDir   string `yaml:"data_dir"`
	RedisAddr string `yaml:"redis_addr"`

	Geocoder          string `yaml:"geocoder"`
	ContextInference  bool   `yaml:"context_inference"`
	AIHeaderDetection bool   `yaml:"ai_header_detection"`

	OllamaURL     string `yaml:"ollama_url"`
	AzureEndpoint string `yaml:"azure_endpoint"`

	LicenseURL string `yaml:"license_url"`
	Telemetry  bool   `yaml:"telemetry"`

	ListenAddr string `yaml:"listen_addr"`
	LogJSON    bool   `yaml:"log_json"`
	Debug      bool   `yaml:"debug"`

	//secrets are read from the environment only
	OpenAIKey     string `yaml:"-"`
	AnthropicKey  string `yaml:"-"`
	GeminiKey     string `yaml:"-"`
	AzureKey      string `yaml:"-"`
	GoogleMapsKey string `yaml:"-"`
	LicenseKey    string `yaml:"-"`
	AuthToken     string `yaml:"-"`
	RedisPassword string `yaml:"-"`
	NoAuthBypass  bool   `yaml:"-"`
}

func DefaultSettings() Settings {
	return Settings{
		Provider:       ProviderOpenAI,
		Tier:           DefaultTier,
		TPMLimits:      map[string]int{},
		ChunkMaxChars:  DefaultChunkMaxChars,
		RetryCeiling:   RetryCeiling,
		BackoffFactor:  BackoffFactor,
		BackoffCeiling: BackoffCeiling,
		Store:          StoreSQLite,
		RedisAddr:      RedisAddr,
		Geocoder:       GeocodingProviderFree,
		OllamaURL:      OllamaURL,
		ListenAddr:     ServerListenAddr,
	}
}

// DefaultSettingsPath returns ~/.chatanalyzer/config.yaml.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return SettingsFileName
	}
	return filepath.Join(home, SettingsDirName, SettingsFileName)
}

// LoadSettings layers the yaml file at path (missing is fine) and the
// environment over the defaults. An empty path means the default location.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		path = DefaultSettingsPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return s, fmt.Errorf("reading settings: %w", err)
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parsing settings %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return s, fmt.Errorf("loading .env: %w", err)
	}
	s.applyEnv()

	if s.DataDir == "" {
		s.DataDir = filepath.Dir(path)
	}
	return s, s.Validate()
}

func (s *Settings) applyEnv() {
	s.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	s.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	s.GeminiKey = os.Getenv("GEMINI_API_KEY")
	s.AzureKey = os.Getenv("AZURE_OPENAI_API_KEY")
	s.GoogleMapsKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	s.LicenseKey = os.Getenv("CHATANALYZER_LICENSE_KEY")
	s.AuthToken = os.Getenv("CHATANALYZER_AUTH_TOKEN")
	s.RedisPassword = os.Getenv("REDIS_PASSWORD")
	s.NoAuthBypass = os.Getenv("CHATANALYZER_NO_AUTH") == "true"

	if v := os.Getenv("CHATANALYZER_PROVIDER"); v != "" {
		s.Provider = v
	}
	if v := os.Getenv("CHATANALYZER_MODEL"); v != "" {
		s.Model = v
	}
	if v := os.Getenv("CHATANALYZER_STORE"); v != "" {
		s.Store = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		s.RedisAddr = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		s.OllamaURL = v
	}
	if v := os.Getenv("AZURE_OPENAI_ENDPOINT"); v != "" {
		s.AzureEndpoint = v
	}
	if v := os.Getenv("CHATANALYZER_LICENSE_URL"); v != "" {
		s.LicenseURL = v
	}
	//same shape as the desktop preference key: {provider}_max_tpm_limit
	for _, p := range []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderAzure} {
		v := os.Getenv(strings.ToUpper(p) + "_MAX_TPM_LIMIT")
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if s.TPMLimits == nil {
				s.TPMLimits = map[string]int{}
			}
			s.TPMLimits[p] = n
		}
	}
}

func (s Settings) Validate() error {
	switch s.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderAzure, ProviderOllama:
	default:
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
	switch s.Store {
	case StoreSQLite, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", s.Store)
	}
	switch s.Geocoder {
	case GeocodingProviderFree, GeocodingProviderGoogle:
	default:
		return fmt.Errorf("unknown geocoder %q", s.Geocoder)
	}
	if s.ChunkMaxChars < 1 {
		return errors.New("chunk_max_chars must be at least 1")
	}
	if s.BackoffFactor <= 1 {
		return errors.New("backoff_factor must be greater than 1")
	}
	if s.RetryCeiling < 0 {
		return errors.New("retry_ceiling must not be negative")
	}
	return nil
}

// TPMFor returns the tokens-per-minute ceiling for provider, 0 for the
// unmetered local runtime.
func (s Settings) TPMFor(provider string) int {
	if n, ok := s.TPMLimits[provider]; ok && n > 0 {
		return n
	}
	switch provider {
	case ProviderOpenAI:
		return OpenAIDefaultTPM
	case ProviderAnthropic:
		return AnthropicDefaultTPM
	case ProviderGemini:
		return GeminiDefaultTPM
	case ProviderAzure:
		return AzureDefaultTPM
	}
	return 0
}

// ModelFor returns the configured model or the provider default.
func (s Settings) ModelFor(provider string) string {
	if s.Model != "" {
		return s.Model
	}
	switch provider {
	case ProviderAnthropic:
		return AnthropicModelName
	case ProviderGemini:
		return GeminiModelName
	case ProviderOllama:
		return OllamaModelName
	}
	return OpenAIModelName
}

func (s Settings) DatabasePath() string {
	return filepath.Join(s.DataDir, DatabaseFileName)
}
