package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func baseConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc"},
		Weather:  WeatherConfig{APIKey: "key"},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := baseConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q, want longpoll", cfg.Telegram.RunMode)
	}
	if cfg.HTTP.Port != 10000 {
		t.Fatalf("port = %d, want 10000", cfg.HTTP.Port)
	}
	if cfg.Weather.TimeoutSeconds != 10 || cfg.Weather.Units != "metric" || cfg.Weather.Lang != "en" {
		t.Fatalf("unexpected weather defaults: %+v", cfg.Weather)
	}
	if cfg.Conversation.CityMaxLen != 50 {
		t.Fatalf("city max len = %d, want 50", cfg.Conversation.CityMaxLen)
	}
	sv := cfg.Supervisor
	if sv.MaxDeliveryFailures != 5 || sv.DeliveryBackoffStepSeconds != 60 || sv.DeliveryBackoffMaxSeconds != 300 {
		t.Fatalf("unexpected delivery policy: %+v", sv)
	}
	if sv.MaxUnexpectedFailures != 5 || sv.UnexpectedBackoffStepSeconds != 30 || sv.UnexpectedBackoffMaxSeconds != 180 {
		t.Fatalf("unexpected unexpected-failure policy: %+v", sv)
	}
	if cfg.Storage.Driver != StorageSQLite || cfg.Storage.SQLitePath == "" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Webhook.VerifyAttempts != 3 {
		t.Fatalf("verify attempts = %d, want 3", cfg.Webhook.VerifyAttempts)
	}
	if !cfg.DropPending() {
		t.Fatal("pending updates should be dropped by default")
	}
}

func TestNormalizeKeepsExplicitOptOuts(t *testing.T) {
	cfg := baseConfig()
	keep := false
	cfg.Telegram.DropPendingUpdates = &keep
	cfg.Supervisor.MaxUnexpectedFailures = -1
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.DropPending() {
		t.Fatal("explicit drop_pending_updates=false must be kept")
	}
	if cfg.Supervisor.MaxUnexpectedFailures != -1 {
		t.Fatalf("max unexpected failures = %d, want -1", cfg.Supervisor.MaxUnexpectedFailures)
	}
}

func TestNormalizeRequiresCredentials(t *testing.T) {
	cfg := baseConfig()
	cfg.Telegram.Token = ""
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for missing token")
	}

	cfg = baseConfig()
	cfg.Weather.APIKey = " "
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for missing weather key")
	}
}

func TestNormalizeRunModeAliases(t *testing.T) {
	cfg := baseConfig()
	cfg.Telegram.RunMode = "Polling"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}

	cfg = baseConfig()
	cfg.Telegram.UseWebhook = true
	cfg.Webhook.URL = "https://bot.example.com/"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !cfg.WebhookMode() {
		t.Fatalf("expected webhook mode, got %q", cfg.Telegram.RunMode)
	}
	if cfg.Webhook.URL != "https://bot.example.com" {
		t.Fatalf("webhook url not trimmed: %q", cfg.Webhook.URL)
	}
}

func TestNormalizeWebhookNeedsURL(t *testing.T) {
	cfg := baseConfig()
	cfg.Telegram.RunMode = RunModeWebhook
	err := Normalize(cfg)
	if err == nil || !strings.Contains(err.Error(), "webhook.url") {
		t.Fatalf("expected webhook.url error, got %v", err)
	}
}

func TestNormalizeRejectsUnknownDriver(t *testing.T) {
	cfg := baseConfig()
	cfg.Storage.Driver = "mongo"
	err := Normalize(cfg)
	if err == nil || !strings.Contains(err.Error(), "Driver") {
		t.Fatalf("expected validation error for driver, got %v", err)
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
telegram:
  token: from-file
  run_mode: longpoll
weather:
  api_key: file-key
storage:
  driver: memory
conversation:
  city_max_len: 40
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DOTENV_PATH", filepath.Join(dir, "missing.env"))
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("PORT", "8081")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.Weather.APIKey != "file-key" {
		t.Fatalf("api key = %q", cfg.Weather.APIKey)
	}
	if cfg.HTTP.Port != 8081 {
		t.Fatalf("port = %d, want 8081", cfg.HTTP.Port)
	}
	if cfg.Conversation.CityMaxLen != 40 {
		t.Fatalf("city max len = %d", cfg.Conversation.CityMaxLen)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	content := "BOT_TOKEN=dotenv-token\nWEATHER_API_KEY=dotenv-key\nSTORAGE_DRIVER=memory\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("DOTENV_PATH", envPath)
	// godotenv never overrides variables that are already set, so clear them
	// through t.Setenv to get automatic restoration.
	for _, k := range []string{"BOT_TOKEN", "WEATHER_API_KEY", "STORAGE_DRIVER"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "dotenv-token" || cfg.Weather.APIKey != "dotenv-key" {
		t.Fatalf("dotenv values not applied: %+v", cfg.Telegram)
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
}
