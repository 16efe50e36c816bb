// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// EnvPrefix prefixes every config key read from the environment.
	EnvPrefix = "CONCILIUM"

	defaultListen              = ":5000"
	defaultUploadDir           = "uploads"
	defaultMaxUploadMB         = 100
	defaultLogFile             = "concilium.log"
	defaultStreamMaxBytes      = 50 << 20
	defaultMinChars            = 24000
	defaultMaxChars            = 30000
	defaultDraftTimeoutSeconds = 300
	defaultStageTimeoutSeconds = 900
	defaultBoundMaxTokens      = 20000
	defaultBackendTimeout      = 900
	defaultStoreTTLSeconds     = 24 * 60 * 60
)

// Backend slot names. The order is the fixed display and fan-out order.
const (
	SlotGrok   = "grok"
	SlotSonnet = "sonnet"
	SlotGemini = "gemini"
)

// Slots lists every backend slot in fan-out order.
var Slots = []string{SlotGrok, SlotSonnet, SlotGemini}

// Backend transport types.
const (
	TypeXAI       = "xai"
	TypeAnthropic = "anthropic"
	TypeGemini    = "gemini"
	TypeMock      = "mock"
)

// Store types.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config represents the top-level application configuration.
type Config struct {
	Listen              string             `mapstructure:"listen"`
	UploadDir           string             `mapstructure:"uploadDir"`
	MaxUploadMB         int                `mapstructure:"maxUploadMB"`
	LogFile             string             `mapstructure:"logFile"`
	Debug               bool               `mapstructure:"debug"`
	Metrics             bool               `mapstructure:"metrics"`
	StreamMaxBytes      int                `mapstructure:"streamMaxBytes"`
	MinChars            int                `mapstructure:"minChars"`
	MaxChars            int                `mapstructure:"maxChars"`
	DraftTimeoutSeconds int                `mapstructure:"draftTimeoutSeconds"`
	StageTimeoutSeconds int                `mapstructure:"stageTimeoutSeconds"`
	BoundMaxTokens      int                `mapstructure:"boundMaxTokens"`
	MergeBackend        string             `mapstructure:"mergeBackend"`
	ContextTokenLimit   int                `mapstructure:"contextTokenLimit"`
	PromptsDir          string             `mapstructure:"promptsDir"`
	Store               Store              `mapstructure:"store"`
	Backends            map[string]Backend `mapstructure:"backends"`
	ConfigPath          string             `mapstructure:"-"`
}

// Backend configures one of the three model slots.
type Backend struct {
	Name           string   `mapstructure:"name"`
	Type           string   `mapstructure:"type"`
	URL            string   `mapstructure:"url"`
	APIKey         string   `mapstructure:"apiKey"`
	Model          string   `mapstructure:"model"`
	MaxTokens      int      `mapstructure:"maxTokens"`
	Temperature    *float64 `mapstructure:"temperature"`
	TimeoutSeconds int      `mapstructure:"timeoutSeconds"`
	MockText       string   `mapstructure:"mockText"`
}

// Store configures where merge results are kept.
type Store struct {
	Type          string `mapstructure:"type"`
	TTLSeconds    int    `mapstructure:"ttlSeconds"`
	RedisAddr     string `mapstructure:"redisAddr"`
	RedisPassword string `mapstructure:"redisPassword"`
	RedisDB       int    `mapstructure:"redisDB"`
}

// DraftTimeout is the per-call ceiling for draft stages in both modes.
func (c Config) DraftTimeout() time.Duration {
	if c.DraftTimeoutSeconds <= 0 {
		return defaultDraftTimeoutSeconds * time.Second
	}
	return time.Duration(c.DraftTimeoutSeconds) * time.Second
}

// StageTimeout is the per-call ceiling for refine, polish and merge stages.
func (c Config) StageTimeout() time.Duration {
	if c.StageTimeoutSeconds <= 0 {
		return defaultStageTimeoutSeconds * time.Second
	}
	return time.Duration(c.StageTimeoutSeconds) * time.Second
}

// RequestTimeout returns the HTTP client timeout for a backend.
func (b Backend) RequestTimeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return defaultBackendTimeout * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// DisplayName returns the label used in progress and error messages.
func (b Backend) DisplayName(slot string) string {
	if name := strings.TrimSpace(b.Name); name != "" {
		return name
	}
	return strings.ToUpper(slot)
}

// StoreTTL returns how long merge results are kept; zero means forever.
func (c Config) StoreTTL() time.Duration {
	if c.Store.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Store.TTLSeconds) * time.Second
}

// MaxUploadBytes returns the request body ceiling for /process.
func (c Config) MaxUploadBytes() int64 {
	if c.MaxUploadMB <= 0 {
		return defaultMaxUploadMB << 20
	}
	return int64(c.MaxUploadMB) << 20
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return defaultLogFile
}

// Validate reports the first configuration problem that would stop the
// server from running a pipeline.
func (c Config) Validate() error {
	for _, slot := range Slots {
		b, ok := c.Backends[slot]
		if !ok {
			return fmt.Errorf("backends.%s is required", slot)
		}
		switch b.Type {
		case TypeXAI, TypeAnthropic, TypeGemini, TypeMock:
		default:
			return fmt.Errorf("backends.%s: unsupported type %q", slot, b.Type)
		}
		if b.Type != TypeMock && strings.TrimSpace(b.URL) == "" {
			return fmt.Errorf("backends.%s: url is required", slot)
		}
	}
	if _, ok := c.Backends[c.MergeBackend]; !ok {
		return fmt.Errorf("mergeBackend %q is not a configured backend", c.MergeBackend)
	}
	if c.MinChars <= 0 || c.MaxChars <= 0 {
		return errors.New("minChars and maxChars must be greater than zero")
	}
	if c.MinChars > c.MaxChars {
		return fmt.Errorf("minChars (%d) must not exceed maxChars (%d)", c.MinChars, c.MaxChars)
	}
	if c.StreamMaxBytes <= 0 {
		return errors.New("streamMaxBytes must be greater than zero")
	}
	if c.BoundMaxTokens <= 0 {
		return errors.New("boundMaxTokens must be greater than zero")
	}
	switch c.Store.Type {
	case StoreMemory:
	case StoreRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return errors.New("store.redisAddr is required for the redis store")
		}
	default:
		return fmt.Errorf("unsupported store type %q", c.Store.Type)
	}
	return nil
}

// LoadDotEnv loads variables from .env style files into the process
// environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and environment bindings applied.
func NewViper() *viper.Viper {
	v := viper.New()
	applyDefaults(v)
	bindEnv(v)
	return v
}

// Load reads the configuration file at path (optional when it is the
// default path), the environment, and defaults.
func Load(path string) (Config, error) {
	v := NewViper()
	if err := ReadFile(v, path); err != nil {
		return Config{}, err
	}
	return FromViper(v)
}

// ReadFile reads path into v. An empty path means DefaultConfigPath, which
// may be absent.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		path = DefaultConfigPath
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			if path == DefaultConfigPath {
				return nil
			}
			return fmt.Errorf("no configuration file found at %q", path)
		}
		return fmt.Errorf("could not read config file %q: %w", path, err)
	}
	return nil
}

// FromViper materializes and validates the merged configuration.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.MergeBackend = strings.ToLower(strings.TrimSpace(c.MergeBackend))
	c.Store.Type = strings.ToLower(strings.TrimSpace(c.Store.Type))
	normalized := make(map[string]Backend, len(c.Backends))
	for slot, b := range c.Backends {
		b.Type = normalizeType(b.Type)
		b.URL = strings.TrimSpace(b.URL)
		b.APIKey = strings.TrimSpace(b.APIKey)
		b.Model = strings.TrimSpace(b.Model)
		normalized[strings.ToLower(strings.TrimSpace(slot))] = b
	}
	c.Backends = normalized
}

func normalizeType(backendType string) string {
	normalized := strings.ToLower(strings.TrimSpace(backendType))
	switch normalized {
	case "grok", "x.ai", "xai":
		return TypeXAI
	case "claude", "anthropic":
		return TypeAnthropic
	case "google", "gemini":
		return TypeGemini
	default:
		return normalized
	}
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("listen", defaultListen)
	v.SetDefault("uploadDir", defaultUploadDir)
	v.SetDefault("maxUploadMB", defaultMaxUploadMB)
	v.SetDefault("logFile", defaultLogFile)
	v.SetDefault("debug", false)
	v.SetDefault("metrics", false)
	v.SetDefault("streamMaxBytes", defaultStreamMaxBytes)
	v.SetDefault("minChars", defaultMinChars)
	v.SetDefault("maxChars", defaultMaxChars)
	v.SetDefault("draftTimeoutSeconds", defaultDraftTimeoutSeconds)
	v.SetDefault("stageTimeoutSeconds", defaultStageTimeoutSeconds)
	v.SetDefault("boundMaxTokens", defaultBoundMaxTokens)
	v.SetDefault("mergeBackend", SlotGrok)
	v.SetDefault("contextTokenLimit", 0)
	v.SetDefault("promptsDir", "")

	v.SetDefault("store.type", StoreMemory)
	v.SetDefault("store.ttlSeconds", defaultStoreTTLSeconds)
	v.SetDefault("store.redisAddr", "localhost:6379")
	v.SetDefault("store.redisPassword", "")
	v.SetDefault("store.redisDB", 0)

	v.SetDefault("backends.grok.name", "GROK")
	v.SetDefault("backends.grok.type", TypeXAI)
	v.SetDefault("backends.grok.url", "https://api.x.ai/v1/chat/completions")
	v.SetDefault("backends.grok.model", "grok-4")
	v.SetDefault("backends.grok.timeoutSeconds", 300)

	v.SetDefault("backends.sonnet.name", "Claude Sonnet")
	v.SetDefault("backends.sonnet.type", TypeAnthropic)
	v.SetDefault("backends.sonnet.url", "https://api.anthropic.com")
	v.SetDefault("backends.sonnet.model", "claude-sonnet-4-20250514")
	v.SetDefault("backends.sonnet.maxTokens", 8192)
	v.SetDefault("backends.sonnet.timeoutSeconds", defaultBackendTimeout)

	v.SetDefault("backends.gemini.name", "Gemini")
	v.SetDefault("backends.gemini.type", TypeGemini)
	v.SetDefault("backends.gemini.url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("backends.gemini.model", "gemini-2.5-pro")
	v.SetDefault("backends.gemini.timeoutSeconds", defaultBackendTimeout)
}

// bindEnv maps the variable names the deployment .env files already use,
// then exposes every key under the CONCILIUM_ prefix.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("backends.grok.apiKey", EnvPrefix+"_BACKENDS_GROK_APIKEY", "X_API_KEY")
	_ = v.BindEnv("backends.grok.url", EnvPrefix+"_BACKENDS_GROK_URL", "X_API_BASE_URL")
	_ = v.BindEnv("backends.grok.model", EnvPrefix+"_BACKENDS_GROK_MODEL", "GROK_MODEL_ID")
	_ = v.BindEnv("backends.sonnet.apiKey", EnvPrefix+"_BACKENDS_SONNET_APIKEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("backends.sonnet.model", EnvPrefix+"_BACKENDS_SONNET_MODEL", "CLAUDE_MODEL_ID")
	_ = v.BindEnv("backends.gemini.apiKey", EnvPrefix+"_BACKENDS_GEMINI_APIKEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("backends.gemini.model", EnvPrefix+"_BACKENDS_GEMINI_MODEL", "GEMINI_MODEL_ID")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Getenv is os.Getenv with a fallback, for the few settings read before
// viper is configured.
func Getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
