package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

// Config holds the runtime settings. Values come from built-in defaults,
// then the optional YAML file named by AGRICHAT_CONFIG, then env vars.
type Config struct {
	Mode     Mode   `yaml:"mode"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// LLM
	LLMProvider     string  `yaml:"llmProvider"` // "mock", "vertex", "gemini", "openai"
	LLMBaseURL      string  `yaml:"llmBaseURL"`
	LLMAPIKey       string  `yaml:"llmAPIKey"`
	ModelName       string  `yaml:"modelName"`
	ClassifierModel string  `yaml:"classifierModel"`
	Temperature     float32 `yaml:"temperature"`
	MaxTokens       int     `yaml:"maxTokens"`

	GCPProjectID string `yaml:"gcpProject"`
	GCPLocation  string `yaml:"gcpLocation"`

	// Storage
	StorageBackend string `yaml:"storageBackend"` // "memory", "firestore" or "mongo"
	MongoURI       string `yaml:"mongoURI"`
	MongoDatabase  string `yaml:"mongoDatabase"`

	// Web search
	SearchProvider string `yaml:"searchProvider"` // "tavily" or "none"
	TavilyAPIKey   string `yaml:"tavilyAPIKey"`

	// Rate limiting. RedisAddr empty means an in-process limiter.
	RedisAddr       string        `yaml:"redisAddr"`
	RedisPassword   string        `yaml:"redisPassword"`
	RateLimit       int           `yaml:"rateLimit"`
	RateLimitWindow time.Duration `yaml:"rateLimitWindow"`

	// Turn pipeline
	TurnTimeout         time.Duration `yaml:"turnTimeout"`
	ClassifierTimeout   time.Duration `yaml:"classifierTimeout"`
	SearchTimeout       time.Duration `yaml:"searchTimeout"`
	CompletionTimeout   time.Duration `yaml:"completionTimeout"`
	ParallelClassifiers bool          `yaml:"parallelClassifiers"`
	MaxDocumentChars    int           `yaml:"maxDocumentChars"`

	UseMockLLM bool `yaml:"useMockLLM"` // true = use mock even on GCP
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode:     ModeLocal,
		Port:     "8080",
		LogLevel: "info",

		LLMProvider:     "openai",
		LLMBaseURL:      "https://api.groq.com/openai/v1",
		ModelName:       "llama-3.3-70b-versatile",
		ClassifierModel: "",
		Temperature:     0.3,
		MaxTokens:       1500,

		GCPLocation: "us-central1",

		StorageBackend: "memory",
		MongoDatabase:  "agrichat",

		SearchProvider: "tavily",

		RateLimit:       30,
		RateLimitWindow: time.Minute,

		TurnTimeout:       60 * time.Second,
		ClassifierTimeout: 15 * time.Second,
		SearchTimeout:     20 * time.Second,
		CompletionTimeout: 45 * time.Second,
		MaxDocumentChars:  20000,

		UseMockLLM: true,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getFloatEnv(key string, def float32) (float32, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return float32(f), nil
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Load reads the optional YAML file and all env vars and builds the config.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("AGRICHAT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	switch getEnv("AGRICHAT_MODE", string(cfg.Mode)) {
	case "gcp":
		cfg.Mode = ModeGCP
	default:
		cfg.Mode = ModeLocal
	}

	cfg.Port = getEnv("AGRICHAT_PORT", getEnv("PORT", cfg.Port))
	cfg.LogLevel = getEnv("AGRICHAT_LOG_LEVEL", cfg.LogLevel)

	cfg.LLMProvider = strings.ToLower(getEnv("AGRICHAT_LLM_PROVIDER", cfg.LLMProvider))
	cfg.LLMBaseURL = getEnv("AGRICHAT_LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.LLMAPIKey = getEnv("AGRICHAT_LLM_API_KEY", getEnv("GROQ_API_KEY", cfg.LLMAPIKey))
	cfg.ModelName = getEnv("AGRICHAT_MODEL_NAME", cfg.ModelName)
	cfg.ClassifierModel = getEnv("AGRICHAT_CLASSIFIER_MODEL", cfg.ClassifierModel)

	cfg.GCPProjectID = getEnv("AGRICHAT_GCP_PROJECT", cfg.GCPProjectID)
	cfg.GCPLocation = getEnv("AGRICHAT_GCP_LOCATION", cfg.GCPLocation)

	cfg.StorageBackend = strings.ToLower(getEnv("AGRICHAT_STORAGE_BACKEND", cfg.StorageBackend))
	cfg.MongoURI = getEnv("AGRICHAT_MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("AGRICHAT_MONGO_DATABASE", cfg.MongoDatabase)

	cfg.SearchProvider = strings.ToLower(getEnv("AGRICHAT_SEARCH_PROVIDER", cfg.SearchProvider))
	cfg.TavilyAPIKey = getEnv("TAVILY_API_KEY", cfg.TavilyAPIKey)

	cfg.RedisAddr = getEnv("AGRICHAT_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("AGRICHAT_REDIS_PASSWORD", cfg.RedisPassword)

	cfg.ParallelClassifiers = getBoolEnv("AGRICHAT_PARALLEL_CLASSIFIERS", cfg.ParallelClassifiers)
	cfg.UseMockLLM = getBoolEnv("AGRICHAT_USE_MOCK_LLM", cfg.Mode == ModeLocal && cfg.UseMockLLM)

	var errs []error
	var err error
	if cfg.Temperature, err = getFloatEnv("AGRICHAT_TEMPERATURE", cfg.Temperature); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxTokens, err = getIntEnv("AGRICHAT_MAX_TOKENS", cfg.MaxTokens); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateLimit, err = getIntEnv("AGRICHAT_RATE_LIMIT", cfg.RateLimit); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxDocumentChars, err = getIntEnv("AGRICHAT_MAX_DOCUMENT_CHARS", cfg.MaxDocumentChars); err != nil {
		errs = append(errs, err)
	}
	for key, dst := range map[string]*time.Duration{
		"AGRICHAT_RATE_LIMIT_WINDOW":  &cfg.RateLimitWindow,
		"AGRICHAT_TURN_TIMEOUT":       &cfg.TurnTimeout,
		"AGRICHAT_CLASSIFIER_TIMEOUT": &cfg.ClassifierTimeout,
		"AGRICHAT_SEARCH_TIMEOUT":     &cfg.SearchTimeout,
		"AGRICHAT_COMPLETION_TIMEOUT": &cfg.CompletionTimeout,
	} {
		if *dst, err = getDurationEnv(key, *dst); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combinations that cannot work at runtime.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: port is required")
	}
	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		return errors.New("config: AGRICHAT_GCP_PROJECT must be set in gcp mode")
	}
	if !c.UseMockLLM {
		switch c.LLMProvider {
		case "vertex":
			if c.GCPProjectID == "" || c.GCPLocation == "" {
				return errors.New("config: vertex provider needs AGRICHAT_GCP_PROJECT and AGRICHAT_GCP_LOCATION")
			}
		case "gemini", "openai":
			if c.LLMAPIKey == "" {
				return fmt.Errorf("config: %s provider needs AGRICHAT_LLM_API_KEY", c.LLMProvider)
			}
		case "mock":
		default:
			return fmt.Errorf("config: unknown llm provider %q", c.LLMProvider)
		}
	}
	switch c.StorageBackend {
	case "memory":
	case "firestore":
		if c.GCPProjectID == "" {
			return errors.New("config: firestore storage needs AGRICHAT_GCP_PROJECT")
		}
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("config: mongo storage needs AGRICHAT_MONGO_URI")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.StorageBackend)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("config: temperature %.2f out of range", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return errors.New("config: maxTokens must be positive")
	}
	if c.TurnTimeout <= 0 {
		return errors.New("config: turnTimeout must be positive")
	}
	return nil
}
