// Package config provides configuration management for the PDF translator.
// Values come from defaults, an optional TOML file and environment variables,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pdf-translation/internal/logger"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "pdftrans.toml"
	// EnvPrefix prefixes every environment override, e.g. PDFTRANS_PROVIDER
	EnvPrefix = "PDFTRANS"

	// EnvAzureKey is the environment variable holding the Azure Translator key
	EnvAzureKey = "AZURE_TRANSLATOR_KEY"
	// EnvAzureEndpoint is the environment variable holding the Azure Translator endpoint
	EnvAzureEndpoint = "AZURE_TRANSLATOR_ENDPOINT"
	// EnvAzureRegion is the environment variable holding the Azure resource region
	EnvAzureRegion = "AZURE_TRANSLATOR_REGION"
	// EnvOpenAIAPIKey is the environment variable name for OpenAI API key
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	// EnvOpenAIBaseURL is the environment variable name for OpenAI base URL
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"

	// ProviderAzure selects the Microsoft Translator backend
	ProviderAzure = "azure"
	// ProviderOpenAI selects an OpenAI-compatible chat model
	ProviderOpenAI = "openai"

	// DefaultAzureEndpoint is the global Translator endpoint
	DefaultAzureEndpoint = "https://api.cognitive.microsofttranslator.com"
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the default OpenAI model to use
	DefaultModel = "gpt-4o-mini"

	// DefaultBatchChars bounds the characters sent in one gateway call
	DefaultBatchChars = 5000
	// DefaultBatchSize bounds the number of blocks sent in one gateway call
	DefaultBatchSize = 25
	// DefaultConcurrency is the number of pages translated at once
	DefaultConcurrency = 3
	// DefaultTimeout is the per-call deadline
	DefaultTimeout = 60 * time.Second
	// DefaultMaxAttempts is the number of tries per batch, including the first
	DefaultMaxAttempts = 4
	// DefaultBaseDelay is the first backoff delay
	DefaultBaseDelay = 2 * time.Second
	// DefaultMaxDelay caps the backoff delay
	DefaultMaxDelay = 30 * time.Second

	// DefaultMinFontSize is the floor the fitter never shrinks below
	DefaultMinFontSize = 6.0
	// DefaultFontStep is the shrink decrement in points
	DefaultFontStep = 0.5
	// DefaultLineSpacing is the line height as a multiple of font size
	DefaultLineSpacing = 1.2

	// DefaultFontDir is where the bundled Noto fonts are looked up
	DefaultFontDir = "indic-fonts"

	// CacheNone disables the translation cache
	CacheNone = "none"
	// CacheJSON stores the cache in a JSON file
	CacheJSON = "json"
	// CacheSQLite stores the cache in a SQLite database
	CacheSQLite = "sqlite"
)

// Config is the full application configuration.
type Config struct {
	Provider    string            `mapstructure:"provider"`
	Azure       AzureConfig       `mapstructure:"azure"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Translation TranslationConfig `mapstructure:"translation"`
	Layout      LayoutConfig      `mapstructure:"layout"`
	Fonts       FontsConfig       `mapstructure:"fonts"`
	Cache       CacheConfig       `mapstructure:"cache"`
	History     HistoryConfig     `mapstructure:"history"`
	Log         LogConfig         `mapstructure:"log"`
}

// AzureConfig holds Microsoft Translator credentials.
type AzureConfig struct {
	Key      string `mapstructure:"key"`
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
}

// OpenAIConfig holds settings for an OpenAI-compatible chat model.
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

// TranslationConfig controls batching, retries and concurrency.
type TranslationConfig struct {
	SourceLanguage string        `mapstructure:"source_language"`
	BatchChars     int           `mapstructure:"batch_chars"`
	BatchSize      int           `mapstructure:"batch_size"`
	Concurrency    int           `mapstructure:"concurrency"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
}

// LayoutConfig controls how translated text is fitted into boxes.
type LayoutConfig struct {
	MinFontSize float64 `mapstructure:"min_font_size"`
	FontStep    float64 `mapstructure:"font_step"`
	LineSpacing float64 `mapstructure:"line_spacing"`
}

// FontsConfig maps language codes to TrueType files.
type FontsConfig struct {
	Dir      string            `mapstructure:"dir"`
	Default  string            `mapstructure:"default"`
	Map      map[string]string `mapstructure:"map"`
	AllowRTL bool              `mapstructure:"allow_rtl"`
}

// CacheConfig selects the translation cache backend.
type CacheConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// HistoryConfig controls the record of past runs.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LogConfig configures the logger package.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// ConfigManager loads configuration through a private viper instance.
type ConfigManager struct {
	configPath string
	v          *viper.Viper
	config     *Config
}

// NewConfigManager creates a ConfigManager. If configPath is empty the
// working directory and ~/.config/pdftrans are searched for pdftrans.toml.
func NewConfigManager(configPath string) *ConfigManager {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultConfigFileName, filepath.Ext(DefaultConfigFileName)))
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "pdftrans"))
		}
	}

	return &ConfigManager{configPath: configPath, v: v}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderAzure)

	v.SetDefault("azure.endpoint", DefaultAzureEndpoint)
	v.SetDefault("azure.key", "")
	v.SetDefault("azure.region", "")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", DefaultBaseURL)
	v.SetDefault("openai.model", DefaultModel)
	v.SetDefault("openai.temperature", 0.1)

	v.SetDefault("translation.source_language", "")
	v.SetDefault("translation.batch_chars", DefaultBatchChars)
	v.SetDefault("translation.batch_size", DefaultBatchSize)
	v.SetDefault("translation.concurrency", DefaultConcurrency)
	v.SetDefault("translation.timeout", DefaultTimeout)
	v.SetDefault("translation.max_attempts", DefaultMaxAttempts)
	v.SetDefault("translation.base_delay", DefaultBaseDelay)
	v.SetDefault("translation.max_delay", DefaultMaxDelay)

	v.SetDefault("layout.min_font_size", DefaultMinFontSize)
	v.SetDefault("layout.font_step", DefaultFontStep)
	v.SetDefault("layout.line_spacing", DefaultLineSpacing)

	v.SetDefault("fonts.dir", DefaultFontDir)
	v.SetDefault("fonts.default", "")
	v.SetDefault("fonts.allow_rtl", false)

	v.SetDefault("cache.backend", CacheNone)
	v.SetDefault("cache.path", "")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.dir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.console", true)
}

// Load reads the config file (if any) and environment, then validates.
// A missing file is not an error when no explicit path was given.
func (m *ConfigManager) Load() (*Config, error) {
	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && m.configPath == "" {
			logger.Debug("no config file found, using defaults and environment")
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		logger.Info("configuration loaded", logger.String("path", m.v.ConfigFileUsed()))
	}

	cfg := &Config{}
	if err := m.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyLegacyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m.config = cfg
	return cfg, nil
}

// GetConfig returns the last loaded configuration, or nil before Load.
func (m *ConfigManager) GetConfig() *Config {
	return m.config
}

// ConfigFileUsed returns the file viper read, if any.
func (m *ConfigManager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Set overrides a key, typically from a command-line flag.
func (m *ConfigManager) Set(key string, value interface{}) {
	m.v.Set(key, value)
}

// applyLegacyEnv fills credentials from the provider-native variables
// when neither the file nor PDFTRANS_* set them.
func applyLegacyEnv(cfg *Config) {
	if cfg.Azure.Key == "" {
		cfg.Azure.Key = os.Getenv(EnvAzureKey)
	}
	if v := os.Getenv(EnvAzureEndpoint); v != "" && cfg.Azure.Endpoint == DefaultAzureEndpoint {
		cfg.Azure.Endpoint = v
	}
	if cfg.Azure.Region == "" {
		cfg.Azure.Region = os.Getenv(EnvAzureRegion)
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if v := os.Getenv(EnvOpenAIBaseURL); v != "" && cfg.OpenAI.BaseURL == DefaultBaseURL {
		cfg.OpenAI.BaseURL = v
	}
}

// Validate checks value ranges. Missing credentials are reported by
// ValidateCredentials so commands that never call a provider still work.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderAzure, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown provider %q (want %s or %s)", c.Provider, ProviderAzure, ProviderOpenAI)
	}

	t := c.Translation
	if t.BatchChars <= 0 || t.BatchSize <= 0 {
		return fmt.Errorf("translation batch limits must be positive")
	}
	if t.Concurrency <= 0 {
		return fmt.Errorf("translation.concurrency must be positive, got %d", t.Concurrency)
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("translation.timeout must be positive")
	}
	if t.MaxAttempts <= 0 {
		return fmt.Errorf("translation.max_attempts must be at least 1")
	}
	if t.BaseDelay < 0 || t.MaxDelay < t.BaseDelay {
		return fmt.Errorf("translation delays must satisfy 0 <= base_delay <= max_delay")
	}

	l := c.Layout
	if l.MinFontSize <= 0 {
		return fmt.Errorf("layout.min_font_size must be positive")
	}
	if l.FontStep <= 0 {
		return fmt.Errorf("layout.font_step must be positive")
	}
	if l.LineSpacing < 1 {
		return fmt.Errorf("layout.line_spacing must be at least 1")
	}

	switch c.Cache.Backend {
	case CacheNone, "":
	case CacheJSON, CacheSQLite:
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for the %s backend", c.Cache.Backend)
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ValidateCredentials reports whether the selected provider can authenticate.
func (c *Config) ValidateCredentials() error {
	switch c.Provider {
	case ProviderAzure:
		if c.Azure.Key == "" {
			return fmt.Errorf("azure translator key not set (config azure.key or %s)", EnvAzureKey)
		}
		if c.Azure.Endpoint == "" {
			return fmt.Errorf("azure translator endpoint not set")
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai api key not set (config openai.api_key or %s)", EnvOpenAIAPIKey)
		}
	}
	return nil
}

// FontMap returns the configured language->font table, with relative
// paths resolved against Fonts.Dir.
func (c *Config) FontMap() map[string]string {
	out := make(map[string]string, len(c.Fonts.Map))
	for lang, path := range c.Fonts.Map {
		out[strings.ToLower(lang)] = c.resolveFontPath(path)
	}
	return out
}

// DefaultFontPath returns the resolved fallback font, or "".
func (c *Config) DefaultFontPath() string {
	if c.Fonts.Default == "" {
		return ""
	}
	return c.resolveFontPath(c.Fonts.Default)
}

func (c *Config) resolveFontPath(path string) string {
	if filepath.IsAbs(path) || c.Fonts.Dir == "" {
		return path
	}
	return filepath.Join(c.Fonts.Dir, path)
}

// LoggerConfig converts the log section to a logger.Config.
func (c *Config) LoggerConfig() *logger.Config {
	level, _ := logger.ParseLevel(c.Log.Level)
	lc := logger.DefaultConfig()
	lc.LogFilePath = c.Log.File
	lc.Level = level
	lc.EnableConsole = c.Log.Console
	return lc
}

// DefaultConfigTOML renders a commented configuration file with default values.
func DefaultConfigTOML() string {
	return fmt.Sprintf(`# pdftrans configuration

# azure | openai
provider = %q

[azure]
key = ""        # or AZURE_TRANSLATOR_KEY
endpoint = %q
region = ""     # or AZURE_TRANSLATOR_REGION

[openai]
api_key = ""    # or OPENAI_API_KEY
base_url = %q
model = %q
temperature = 0.1

[translation]
source_language = ""   # empty lets the provider detect it
batch_chars = %d
batch_size = %d
concurrency = %d
timeout = %q
max_attempts = %d
base_delay = %q
max_delay = %q

[layout]
min_font_size = %.1f
font_step = %.1f
line_spacing = %.1f

[fonts]
dir = %q
default = ""
allow_rtl = false

[fonts.map]
# hi = "NotoSansDevanagari-Regular.ttf"

[cache]
backend = %q   # none | json | sqlite
path = ""

[history]
enabled = true
dir = ""       # default ~/pdftrans-results

[log]
level = "info"
file = ""
console = true
`,
		ProviderAzure, DefaultAzureEndpoint, DefaultBaseURL, DefaultModel,
		DefaultBatchChars, DefaultBatchSize, DefaultConcurrency,
		DefaultTimeout.String(), DefaultMaxAttempts, DefaultBaseDelay.String(), DefaultMaxDelay.String(),
		DefaultMinFontSize, DefaultFontStep, DefaultLineSpacing,
		DefaultFontDir, CacheNone)
}
