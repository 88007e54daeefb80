package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the FutureWork server and CLI.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Sheets   SheetsConfig
	OAuth    OAuthConfig
	AI       AIConfig
	State    StateConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	RateLimitPerMin int
	FlowLockTTL     time.Duration
	// AdminKey, when set, is installed as an admin API key of the default
	// tenant if that tenant has no keys yet.
	AdminKey string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

// SheetsConfig addresses the spreadsheet REST API used as the prediction cache.
type SheetsConfig struct {
	BaseURL   string
	Title     string
	SheetName string
	Timeout   time.Duration
}

// OAuthConfig drives the interactive consent flow that yields a spreadsheet
// bearer token. ClientID may be empty here and configured at runtime instead.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Gemini           GeminiConfig
}

type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	BaseURL     string
}

// StateConfig locates the CLI's persisted local state.
type StateConfig struct {
	Path string
}

var validProviders = map[string]bool{
	"gemini": true,
}

// Load reads server configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := FromEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadCLI is like Load but only requires what the command-line client needs:
// no database or Redis.
func LoadCLI() (*Config, error) {
	cfg := FromEnv()
	if err := cfg.validateClient(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the configuration without validating it.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            envInt("FUTUREWORK_PORT", 8080),
			Env:             envString("FUTUREWORK_ENV", "development"),
			RateLimitPerMin: envInt("RATE_LIMIT_PER_MINUTE", 60),
			FlowLockTTL:     envDuration("FLOW_LOCK_TTL", 5*time.Minute),
			AdminKey:        os.Getenv("FUTUREWORK_ADMIN_KEY"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Sheets: SheetsConfig{
			BaseURL:   strings.TrimRight(envString("SHEETS_BASE_URL", "https://sheets.googleapis.com/v4"), "/"),
			Title:     envString("SHEETS_TITLE", "FutureWork AI Data"),
			SheetName: envString("SHEETS_SHEET_NAME", "Predictions"),
			Timeout:   envDuration("SHEETS_TIMEOUT", 30*time.Second),
		},
		OAuth: OAuthConfig{
			ClientID:     os.Getenv("GOOGLE_OAUTH_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"),
			RedirectURL:  envString("GOOGLE_OAUTH_REDIRECT_URL", "http://localhost:8080/api/v1/sheets/callback"),
			AuthURL:      envString("GOOGLE_OAUTH_AUTH_URL", "https://accounts.google.com/o/oauth2/auth"),
			TokenURL:     envString("GOOGLE_OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		},
		AI: AIConfig{
			Provider:         envString("AI_PROVIDER", "gemini"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			Gemini: GeminiConfig{
				APIKey:      envString("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),
				Model:       envString("GEMINI_MODEL", "gemini-2.5-flash"),
				Temperature: envFloat32("GEMINI_TEMPERATURE", 0.7),
				BaseURL:     os.Getenv("GEMINI_BASE_URL"),
			},
		},
		State: StateConfig{
			Path: envString("FUTUREWORK_STATE_FILE", defaultStatePath()),
		},
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.AdminKey != "" && len(c.Server.AdminKey) < 16 {
		return fmt.Errorf("FUTUREWORK_ADMIN_KEY must be at least 16 characters")
	}
	if c.Server.FlowLockTTL <= c.AI.InferenceTimeout {
		return fmt.Errorf("FLOW_LOCK_TTL (%s) must exceed the inference timeout (%s)", c.Server.FlowLockTTL, c.AI.InferenceTimeout)
	}

	return c.validateClient()
}

func (c *Config) validateClient() error {
	if !isHTTPURL(c.Sheets.BaseURL) {
		return fmt.Errorf("SHEETS_BASE_URL must start with http:// or https://, got %q", c.Sheets.BaseURL)
	}
	if c.Sheets.SheetName == "" {
		return fmt.Errorf("SHEETS_SHEET_NAME must not be empty")
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be gemini; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "gemini" && c.AI.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER is gemini")
	}
	if c.AI.Gemini.Temperature < 0 || c.AI.Gemini.Temperature > 2 {
		return fmt.Errorf("GEMINI_TEMPERATURE must be between 0 and 2, got %v", c.AI.Gemini.Temperature)
	}
	if c.AI.Gemini.BaseURL != "" && !isHTTPURL(c.AI.Gemini.BaseURL) {
		return fmt.Errorf("GEMINI_BASE_URL must start with http:// or https://, got %q", c.AI.Gemini.BaseURL)
	}

	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".futurework", "state.yaml")
	}
	return filepath.Join(home, ".futurework", "state.yaml")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat32(key string, defaultVal float32) float32 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return defaultVal
	}
	return float32(f)
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
