package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CREATETREE_CONFIG", "APP_ENV", "PORT", "STORAGE_BASE_URL", "STORAGE_PATH",
		"JOB_STORE", "DATABASE_URL", "MUSIC_PROVIDER", "SUNO_API_KEY", "OPENAI_API_KEY",
		"OPENAI_PRIMARY_MODEL", "JOB_TTL_HOURS", "JOB_MAX_CONCURRENT", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaultStorageBaseURL(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:8080/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
	if cfg.Jobs.Store != JobStoreFile {
		t.Fatalf("Jobs.Store = %q, want %q", cfg.Jobs.Store, JobStoreFile)
	}
	if cfg.Music.Provider != MusicProviderSynthetic {
		t.Fatalf("Music.Provider = %q, want synthetic without a suno key", cfg.Music.Provider)
	}
	if cfg.Music.MaxWait != 5*time.Minute {
		t.Fatalf("Music.MaxWait = %s, want 5m", cfg.Music.MaxWait)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "1919")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigHonorsExplicitStorageBaseURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "https://cdn.example.com/static/")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "https://cdn.example.com/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigMissingCredentialsDoNotFailStartup(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OPENAI_API_KEY", "not-a-real-key")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.OpenAI.APIKey != "not-a-real-key" {
		t.Fatalf("OpenAI.APIKey = %q", cfg.OpenAI.APIKey)
	}
}

func TestLoadConfigPostgresRequiresDatabaseURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("JOB_STORE", "postgres")

	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error when DATABASE_URL is missing")
	}

	t.Setenv("DATABASE_URL", "postgres://example")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Jobs.DatabaseURL != "postgres://example" {
		t.Fatalf("Jobs.DatabaseURL = %q", cfg.Jobs.DatabaseURL)
	}
}

func TestLoadConfigRejectsUnknownStore(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("JOB_STORE", "redis")
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for unsupported store")
	}
}

func TestLoadConfigSunoKeySelectsSuno(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SUNO_API_KEY", "suno-secret")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Music.Provider != MusicProviderSuno {
		t.Fatalf("Music.Provider = %q, want suno", cfg.Music.Provider)
	}
}

func TestLoadConfigFileLayerUnderEnv(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "createtree.toml")
	content := `
port = "9090"
cors_allowed_origins = ["https://app.example.com"]

[openai]
primary_model = "gpt-image-1-mini"

[jobs]
store = "sqlite"
ttl_hours = 6
max_concurrent = 4

[styles.crayon]
description = "crayon drawing with waxy texture"
prompt = "Redraw the photo as a crayon drawing."
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JOB_TTL_HOURS", "12")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.OpenAI.PrimaryModel != "gpt-image-1-mini" {
		t.Fatalf("PrimaryModel = %q", cfg.OpenAI.PrimaryModel)
	}
	if cfg.Jobs.Store != JobStoreSQLite {
		t.Fatalf("Jobs.Store = %q, want sqlite", cfg.Jobs.Store)
	}
	if cfg.Jobs.TTL != 12*time.Hour {
		t.Fatalf("Jobs.TTL = %s, env must win over file", cfg.Jobs.TTL)
	}
	if cfg.Jobs.MaxConcurrent != 4 {
		t.Fatalf("Jobs.MaxConcurrent = %d, want 4", cfg.Jobs.MaxConcurrent)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "https://app.example.com" {
		t.Fatalf("CORSAllowedOrigins = %#v", cfg.CORSAllowedOrigins)
	}
	style, ok := cfg.Styles["crayon"]
	if !ok || style.Description == "" || style.Prompt == "" {
		t.Fatalf("Styles[crayon] = %#v", style)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearConfigEnv(t)
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
