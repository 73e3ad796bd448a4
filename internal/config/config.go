package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config holds every setting of the API server.
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Auth   AuthConfig
	Limits LimitsConfig
	AI     AIConfig
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	limits, err := loadLimitsConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{Server: server, Store: store, Auth: auth, Limits: limits, AI: ai}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unusable combinations.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return errors.New("REDIS_URL is required when STORE_DRIVER=redis")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER value %q", c.Store.Driver)
	}

	if len(c.Auth.Secret) < 16 {
		return errors.New("AUTH_SECRET must be at least 16 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("AUTH_TOKEN_TTL_MINUTES must be positive")
	}
	if c.Limits.RequestsPerSecond <= 0 || c.Limits.Burst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	LogLevel       slog.Level
}

// loadServerConfig resolves the listen address.
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	var addr string
	switch {
	case strings.Contains(port, ":"):
		// accept both ":8080" and "127.0.0.1:8080"
		addr = port
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	default:
		addr = ":" + port
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnvOrDefault("LOG_LEVEL", "info"))); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid LOG_LEVEL value: %w", err)
	}

	return ServerConfig{
		Addr:           addr,
		AllowedOrigins: parseListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		LogLevel:       level,
	}, nil
}

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// StoreConfig selects where exchanges and users are persisted.
type StoreConfig struct {
	Driver     string
	SQLitePath string
	RedisURL   string
}

func loadStoreConfig() (StoreConfig, error) {
	return StoreConfig{
		Driver:     strings.ToLower(getEnvOrDefault("STORE_DRIVER", StoreSQLite)),
		SQLitePath: getEnvOrDefault("SQLITE_PATH", "data/chat.db"),
		RedisURL:   strings.TrimSpace(os.Getenv("REDIS_URL")),
	}, nil
}

// AuthConfig controls access token signing.
type AuthConfig struct {
	Secret         string
	TokenTTL       time.Duration
	AdminUsernames []string
}

func loadAuthConfig() (AuthConfig, error) {
	ttl := 60
	if override, err := parseOptionalIntEnv("AUTH_TOKEN_TTL_MINUTES"); err != nil {
		return AuthConfig{}, err
	} else if override != nil {
		ttl = *override
	}

	return AuthConfig{
		Secret:         strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		TokenTTL:       time.Duration(ttl) * time.Minute,
		AdminUsernames: parseListEnv("ADMIN_USERNAMES", nil),
	}, nil
}

// LimitsConfig rate limits chat sends per user.
type LimitsConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func loadLimitsConfig() (LimitsConfig, error) {
	rps := 1.0
	if override, err := parseOptionalFloatEnv("RATE_LIMIT_RPS"); err != nil {
		return LimitsConfig{}, err
	} else if override != nil {
		rps = *override
	}

	burst := 5
	if override, err := parseOptionalIntEnv("RATE_LIMIT_BURST"); err != nil {
		return LimitsConfig{}, err
	} else if override != nil {
		burst = *override
	}

	return LimitsConfig{RequestsPerSecond: rps, Burst: burst}, nil
}

// AIConfig configures the Ark chat model.
type AIConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	HistoryLimit int
}

// Enabled reports whether enough credentials are set to build a model.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials missing: set Model with ARK_API_KEY or with ARK_ACCESS_KEY and ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 10
	if override, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		historyLimit = max(*override, 0)
	}

	return AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("Model")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		HistoryLimit: historyLimit,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseListEnv(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}

	var items []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
