package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	JobStoreFile     = "file"
	JobStoreMemory   = "memory"
	JobStorePostgres = "postgres"
	JobStoreSQLite   = "sqlite"

	MusicProviderSuno      = "suno"
	MusicProviderSynthetic = "synthetic"
)

// Config represents application configuration. Values come from defaults, an
// optional TOML file, then environment variables, in increasing precedence.
type Config struct {
	AppEnv             string
	Port               string
	StoragePath        string
	StorageBaseURL     string
	DefaultLocale      string
	GeoIPDBPath        string
	JWTSecret          string
	CORSAllowedOrigins []string
	RateLimitPerMin    int
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration

	OpenAI OpenAIConfig
	Music  MusicConfig
	Jobs   JobsConfig

	// Styles extends or overrides the built-in image style catalog.
	Styles map[string]StyleConfig
}

// OpenAIConfig configures the image transform providers.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	PrimaryModel   string
	SecondaryModel string
	Timeout        time.Duration
}

// MusicConfig configures the music generator.
type MusicConfig struct {
	Provider     string
	SunoAPIKey   string
	SunoBaseURL  string
	PollInterval time.Duration
	MaxWait      time.Duration
}

// JobsConfig configures the job store, sweeper and runner.
type JobsConfig struct {
	Store         string
	Dir           string
	DatabaseURL   string
	SQLitePath    string
	TTL           time.Duration
	StaleAfter    time.Duration
	SweepInterval time.Duration
	MaxConcurrent int
}

// StyleConfig is one style catalog entry from the config file.
type StyleConfig struct {
	Description string `toml:"description"`
	Prompt      string `toml:"prompt"`
}

type fileConfig struct {
	AppEnv             string   `toml:"app_env"`
	Port               string   `toml:"port"`
	StoragePath        string   `toml:"storage_path"`
	StorageBaseURL     string   `toml:"storage_base_url"`
	DefaultLocale      string   `toml:"default_locale"`
	GeoIPDBPath        string   `toml:"geoip_db_path"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	RateLimitPerMin    int      `toml:"rate_limit_per_minute"`

	OpenAI struct {
		BaseURL        string `toml:"base_url"`
		PrimaryModel   string `toml:"primary_model"`
		SecondaryModel string `toml:"secondary_model"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
	} `toml:"openai"`

	Music struct {
		Provider            string `toml:"provider"`
		SunoBaseURL         string `toml:"suno_base_url"`
		PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	} `toml:"music"`

	Jobs struct {
		Store                string `toml:"store"`
		Dir                  string `toml:"dir"`
		SQLitePath           string `toml:"sqlite_path"`
		TTLHours             int    `toml:"ttl_hours"`
		StaleAfterMinutes    int    `toml:"stale_after_minutes"`
		SweepIntervalSeconds int    `toml:"sweep_interval_seconds"`
		MaxConcurrent        int    `toml:"max_concurrent"`
	} `toml:"jobs"`

	Styles map[string]StyleConfig `toml:"styles"`
}

// defaultConfig returns the built-in defaults.
func defaultConfig() *Config {
	return &Config{
		AppEnv:          "development",
		Port:            "8080",
		StoragePath:     "./storage",
		DefaultLocale:   "ko",
		RateLimitPerMin: 30,
		HTTPReadTimeout: 15 * time.Second,
		// image transforms are synchronous and may wait on two upstream calls
		HTTPWriteTimeout: 180 * time.Second,
		HTTPIdleTimeout:  60 * time.Second,
		OpenAI: OpenAIConfig{
			BaseURL:        "https://api.openai.com/v1",
			PrimaryModel:   "gpt-image-1",
			SecondaryModel: "dall-e-3",
			Timeout:        90 * time.Second,
		},
		Music: MusicConfig{
			SunoBaseURL:  "https://studio-api.suno.ai",
			PollInterval: 5 * time.Second,
			MaxWait:      5 * time.Minute,
		},
		Jobs: JobsConfig{
			Store:         JobStoreFile,
			Dir:           "./storage/jobs",
			SQLitePath:    "./storage/jobs.db",
			TTL:           72 * time.Hour,
			StaleAfter:    30 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
	}
}

// LoadConfig loads configuration. path names an optional TOML file; when empty
// the CREATETREE_CONFIG environment variable is consulted. Without either, only
// defaults and the environment (plus .env) apply.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv("CREATETREE_CONFIG")
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	setString(&c.AppEnv, fc.AppEnv)
	setString(&c.Port, fc.Port)
	setString(&c.StoragePath, fc.StoragePath)
	setString(&c.StorageBaseURL, fc.StorageBaseURL)
	setString(&c.DefaultLocale, fc.DefaultLocale)
	setString(&c.GeoIPDBPath, fc.GeoIPDBPath)
	if len(fc.CORSAllowedOrigins) > 0 {
		c.CORSAllowedOrigins = fc.CORSAllowedOrigins
	}
	setInt(&c.RateLimitPerMin, fc.RateLimitPerMin)

	setString(&c.OpenAI.BaseURL, fc.OpenAI.BaseURL)
	setString(&c.OpenAI.PrimaryModel, fc.OpenAI.PrimaryModel)
	setString(&c.OpenAI.SecondaryModel, fc.OpenAI.SecondaryModel)
	setDuration(&c.OpenAI.Timeout, fc.OpenAI.TimeoutSeconds, time.Second)

	setString(&c.Music.Provider, fc.Music.Provider)
	setString(&c.Music.SunoBaseURL, fc.Music.SunoBaseURL)
	setDuration(&c.Music.PollInterval, fc.Music.PollIntervalSeconds, time.Second)

	setString(&c.Jobs.Store, fc.Jobs.Store)
	setString(&c.Jobs.Dir, fc.Jobs.Dir)
	setString(&c.Jobs.SQLitePath, fc.Jobs.SQLitePath)
	setDuration(&c.Jobs.TTL, fc.Jobs.TTLHours, time.Hour)
	setDuration(&c.Jobs.StaleAfter, fc.Jobs.StaleAfterMinutes, time.Minute)
	setDuration(&c.Jobs.SweepInterval, fc.Jobs.SweepIntervalSeconds, time.Second)
	setInt(&c.Jobs.MaxConcurrent, fc.Jobs.MaxConcurrent)

	if len(fc.Styles) > 0 {
		c.Styles = make(map[string]StyleConfig, len(fc.Styles))
		for key, style := range fc.Styles {
			c.Styles[key] = style
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.Port = getEnv("PORT", c.Port)
	c.StoragePath = getEnv("STORAGE_PATH", c.StoragePath)
	c.StorageBaseURL = getEnv("STORAGE_BASE_URL", c.StorageBaseURL)
	c.DefaultLocale = getEnv("DEFAULT_LOCALE", c.DefaultLocale)
	c.GeoIPDBPath = getEnv("GEOIP_DB_PATH", c.GeoIPDBPath)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	if origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS")); len(origins) > 0 {
		c.CORSAllowedOrigins = origins
	}
	c.RateLimitPerMin = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMin)
	c.HTTPReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT_SECONDS", c.HTTPReadTimeout, time.Second)
	c.HTTPWriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT_SECONDS", c.HTTPWriteTimeout, time.Second)
	c.HTTPIdleTimeout = getEnvDuration("HTTP_IDLE_TIMEOUT_SECONDS", c.HTTPIdleTimeout, time.Second)

	// Keys are taken verbatim; malformed values degrade generation, not startup.
	c.OpenAI.APIKey = getEnv("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.PrimaryModel = getEnv("OPENAI_PRIMARY_MODEL", c.OpenAI.PrimaryModel)
	c.OpenAI.SecondaryModel = getEnv("OPENAI_SECONDARY_MODEL", c.OpenAI.SecondaryModel)
	c.OpenAI.Timeout = getEnvDuration("OPENAI_TIMEOUT_SECONDS", c.OpenAI.Timeout, time.Second)

	c.Music.Provider = getEnv("MUSIC_PROVIDER", c.Music.Provider)
	c.Music.SunoAPIKey = getEnv("SUNO_API_KEY", c.Music.SunoAPIKey)
	c.Music.SunoBaseURL = getEnv("SUNO_BASE_URL", c.Music.SunoBaseURL)
	c.Music.PollInterval = getEnvDuration("SUNO_POLL_INTERVAL_SECONDS", c.Music.PollInterval, time.Second)

	c.Jobs.Store = getEnv("JOB_STORE", c.Jobs.Store)
	c.Jobs.Dir = getEnv("JOB_STORE_DIR", c.Jobs.Dir)
	c.Jobs.DatabaseURL = getEnv("DATABASE_URL", c.Jobs.DatabaseURL)
	c.Jobs.SQLitePath = getEnv("SQLITE_PATH", c.Jobs.SQLitePath)
	c.Jobs.TTL = getEnvDuration("JOB_TTL_HOURS", c.Jobs.TTL, time.Hour)
	c.Jobs.StaleAfter = getEnvDuration("JOB_STALE_AFTER_MINUTES", c.Jobs.StaleAfter, time.Minute)
	c.Jobs.SweepInterval = getEnvDuration("JOB_SWEEP_INTERVAL_SECONDS", c.Jobs.SweepInterval, time.Second)
	c.Jobs.MaxConcurrent = getEnvInt("JOB_MAX_CONCURRENT", c.Jobs.MaxConcurrent)
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.StorageBaseURL == "" {
		c.StorageBaseURL = fmt.Sprintf("http://localhost:%s/static", c.Port)
	}
	c.StorageBaseURL = strings.TrimRight(c.StorageBaseURL, "/")

	c.Jobs.Store = strings.ToLower(strings.TrimSpace(c.Jobs.Store))
	switch c.Jobs.Store {
	case JobStoreFile, JobStoreMemory, JobStoreSQLite:
	case JobStorePostgres:
		if c.Jobs.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres job store")
		}
	default:
		return fmt.Errorf("unsupported JOB_STORE %q", c.Jobs.Store)
	}

	c.Music.Provider = strings.ToLower(strings.TrimSpace(c.Music.Provider))
	switch c.Music.Provider {
	case "":
		c.Music.Provider = MusicProviderSynthetic
		if strings.TrimSpace(c.Music.SunoAPIKey) != "" {
			c.Music.Provider = MusicProviderSuno
		}
	case MusicProviderSuno, MusicProviderSynthetic:
	default:
		return fmt.Errorf("unsupported MUSIC_PROVIDER %q", c.Music.Provider)
	}

	if c.Jobs.MaxConcurrent < 0 {
		c.Jobs.MaxConcurrent = 0
	}
	return nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback, unit time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return time.Duration(i) * unit
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v int, unit time.Duration) {
	if v > 0 {
		*dst = time.Duration(v) * unit
	}
}
