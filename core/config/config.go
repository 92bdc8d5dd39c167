package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds chat platform settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN" validate:"required"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE" validate:"oneof=webhook longpoll"`
	// UseWebhook is the legacy switch for webhook mode; run_mode wins when both are set.
	UseWebhook bool `yaml:"use_webhook" envconfig:"USE_WEBHOOK"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS" validate:"gte=0,lte=50"`
	// DropPendingUpdates discards the backlog when delivery starts; unset means true.
	DropPendingUpdates *bool `yaml:"drop_pending_updates" envconfig:"TELEGRAM_DROP_PENDING_UPDATES"`
	// RateLimitMS drops updates a user sends faster than this; 0 disables the guard.
	RateLimitMS int `yaml:"rate_limit_ms" envconfig:"TELEGRAM_RATE_LIMIT_MS" validate:"gte=0"`
}

// WebhookConfig specifies push delivery settings.
type WebhookConfig struct {
	// URL is the public base address; the secret path is appended to it.
	URL string `yaml:"url" envconfig:"WEBHOOK_URL" validate:"omitempty,url"`
	// Path overrides the token-derived path when set.
	Path                 string `yaml:"path" envconfig:"WEBHOOK_PATH"`
	VerifyAttempts       int    `yaml:"verify_attempts" envconfig:"WEBHOOK_VERIFY_ATTEMPTS" validate:"gte=1,lte=10"`
	CheckIntervalSeconds int    `yaml:"check_interval_seconds" envconfig:"WEBHOOK_CHECK_INTERVAL_SECONDS" validate:"gte=0"`
}

// HTTPConfig configures the operational HTTP surface.
type HTTPConfig struct {
	Listen string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	Port   int    `yaml:"port" envconfig:"PORT" validate:"gte=0,lte=65535"`
}

// WeatherConfig configures the weather provider client.
type WeatherConfig struct {
	APIKey         string        `yaml:"api_key" envconfig:"WEATHER_API_KEY" validate:"required"`
	BaseURL        string        `yaml:"base_url" envconfig:"WEATHER_BASE_URL" validate:"url"`
	Units          string        `yaml:"units" envconfig:"WEATHER_UNITS" validate:"oneof=metric imperial standard"`
	Lang           string        `yaml:"lang" envconfig:"WEATHER_LANG"`
	TimeoutSeconds int           `yaml:"timeout_seconds" envconfig:"WEATHER_TIMEOUT_SECONDS" validate:"gte=1,lte=60"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the weather provider.
type BreakerConfig struct {
	MaxRequests      uint32 `yaml:"max_requests" validate:"gte=1"`
	IntervalSeconds  int    `yaml:"interval_seconds" validate:"gte=0"`
	OpenSeconds      int    `yaml:"open_seconds" validate:"gte=1"`
	FailureThreshold uint32 `yaml:"failure_threshold" validate:"gte=1"`
}

// PostgresConfig holds connection settings for the postgres storage driver.
type PostgresConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// StorageConfig selects and configures the preference store backend.
type StorageConfig struct {
	Driver     string         `yaml:"driver" envconfig:"STORAGE_DRIVER" validate:"oneof=postgres sqlite memory"`
	SQLitePath string         `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// ConversationConfig bounds the set-city dialog.
type ConversationConfig struct {
	CityMaxLen int `yaml:"city_max_len" validate:"gte=1,lte=256"`
	// AwaitingTTLSeconds expires an unanswered city prompt; negative disables expiry.
	AwaitingTTLSeconds int `yaml:"awaiting_ttl_seconds"`
	// MaxCityAttempts caps failed answers to one prompt; 0 keeps retrying forever.
	MaxCityAttempts int `yaml:"max_city_attempts" validate:"gte=0"`
}

// SupervisorConfig holds the transport restart policy.
type SupervisorConfig struct {
	MaxDeliveryFailures        int `yaml:"max_delivery_failures" validate:"gte=1"`
	DeliveryBackoffStepSeconds int `yaml:"delivery_backoff_step_seconds" validate:"gte=0"`
	DeliveryBackoffMaxSeconds  int `yaml:"delivery_backoff_max_seconds" validate:"gte=0"`
	// MaxUnexpectedFailures of -1 means no ceiling; 0 takes the default.
	MaxUnexpectedFailures        int `yaml:"max_unexpected_failures" validate:"gte=-1"`
	UnexpectedBackoffStepSeconds int `yaml:"unexpected_backoff_step_seconds" validate:"gte=0"`
	UnexpectedBackoffMaxSeconds  int `yaml:"unexpected_backoff_max_seconds" validate:"gte=0"`
}

// SchedulerConfig configures periodic maintenance jobs.
type SchedulerConfig struct {
	Disabled             bool `yaml:"disabled" envconfig:"SCHEDULER_DISABLED"`
	SweepIntervalSeconds int  `yaml:"sweep_interval_seconds" validate:"gte=1"`
	StatsIntervalSeconds int  `yaml:"stats_interval_seconds" validate:"gte=1"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook selects push delivery.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects pull delivery.
	RunModeLongpoll = "longpoll"
)

const (
	// StorageSQLite keeps preferences in an embedded SQLite file.
	StorageSQLite = "sqlite"
	// StoragePostgres keeps preferences in PostgreSQL.
	StoragePostgres = "postgres"
	// StorageMemory keeps preferences in process memory only.
	StorageMemory = "memory"
)

const (
	defaultHTTPPort       = 10000
	defaultWeatherBaseURL = "https://api.openweathermap.org/data/2.5/weather"
	defaultSQLitePath     = "data/users.db"
)

// Config aggregates the service configuration.
type Config struct {
	Telegram     TelegramConfig     `yaml:"telegram"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	HTTP         HTTPConfig         `yaml:"http"`
	Weather      WeatherConfig      `yaml:"weather"`
	Storage      StorageConfig      `yaml:"storage"`
	Conversation ConversationConfig `yaml:"conversation"`
	Supervisor   SupervisorConfig   `yaml:"supervisor"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// Load reads configuration from an optional .env file, an optional YAML file
// and the environment, in that order of increasing precedence.
func Load(path string) (*Config, error) {
	var cfg Config

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv() error {
	file := strings.TrimSpace(os.Getenv("DOTENV_PATH"))
	if file == "" {
		file = ".env"
	}
	if err := godotenv.Load(file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", file, err)
	}
	return nil
}

// Normalize fills defaults, resolves aliases and validates the result.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram token is required (BOT_TOKEN)")
	}
	if strings.TrimSpace(cfg.Weather.APIKey) == "" {
		return fmt.Errorf("weather api key is required (WEATHER_API_KEY)")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
		if cfg.Telegram.UseWebhook {
			rm = RunModeWebhook
		}
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
		if cfg.Telegram.LongPollTimeoutSeconds == 0 {
			cfg.Telegram.LongPollTimeoutSeconds = 10
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	if cfg.Telegram.DropPendingUpdates == nil {
		drop := true
		cfg.Telegram.DropPendingUpdates = &drop
	}

	cfg.Webhook.URL = strings.TrimRight(strings.TrimSpace(cfg.Webhook.URL), "/")
	if p := strings.TrimSpace(cfg.Webhook.Path); p != "" && !strings.HasPrefix(p, "/") {
		cfg.Webhook.Path = "/" + p
	}
	setDefault(&cfg.Webhook.VerifyAttempts, 3)
	setDefault(&cfg.Webhook.CheckIntervalSeconds, 60)

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = "0.0.0.0"
	}
	setDefault(&cfg.HTTP.Port, defaultHTTPPort)

	if strings.TrimSpace(cfg.Weather.BaseURL) == "" {
		cfg.Weather.BaseURL = defaultWeatherBaseURL
	}
	cfg.Weather.Units = strings.ToLower(strings.TrimSpace(cfg.Weather.Units))
	if cfg.Weather.Units == "" {
		cfg.Weather.Units = "metric"
	}
	if strings.TrimSpace(cfg.Weather.Lang) == "" {
		cfg.Weather.Lang = "en"
	}
	setDefault(&cfg.Weather.TimeoutSeconds, 10)
	if cfg.Weather.Breaker.MaxRequests == 0 {
		cfg.Weather.Breaker.MaxRequests = 5
	}
	if cfg.Weather.Breaker.FailureThreshold == 0 {
		cfg.Weather.Breaker.FailureThreshold = 5
	}
	setDefault(&cfg.Weather.Breaker.IntervalSeconds, 60)
	setDefault(&cfg.Weather.Breaker.OpenSeconds, 120)

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageSQLite
	}
	if cfg.Storage.Driver == StorageSQLite && strings.TrimSpace(cfg.Storage.SQLitePath) == "" {
		cfg.Storage.SQLitePath = defaultSQLitePath
	}
	if cfg.Storage.Driver == StoragePostgres {
		pg := &cfg.Storage.Postgres
		if pg.Host == "" || pg.Name == "" || pg.User == "" {
			return fmt.Errorf("storage.postgres host, name and user are required for the postgres driver")
		}
		if pg.Port == "" {
			pg.Port = "5432"
		}
		if pg.SSLMode == "" {
			pg.SSLMode = "disable"
		}
		setDefault(&pg.MaxConnections, 5)
	}

	setDefault(&cfg.Conversation.CityMaxLen, 50)
	setDefault(&cfg.Conversation.AwaitingTTLSeconds, 900)

	sv := &cfg.Supervisor
	setDefault(&sv.MaxDeliveryFailures, 5)
	setDefault(&sv.DeliveryBackoffStepSeconds, 60)
	setDefault(&sv.DeliveryBackoffMaxSeconds, 300)
	setDefault(&sv.UnexpectedBackoffStepSeconds, 30)
	setDefault(&sv.UnexpectedBackoffMaxSeconds, 180)
	if sv.MaxUnexpectedFailures < 0 {
		sv.MaxUnexpectedFailures = -1
	}
	setDefault(&sv.MaxUnexpectedFailures, 5)

	setDefault(&cfg.Scheduler.SweepIntervalSeconds, 60)
	setDefault(&cfg.Scheduler.StatsIntervalSeconds, 3600)

	setDefault(&cfg.Logging.MaxSizeMB, 50)
	setDefault(&cfg.Logging.MaxBackups, 3)
	setDefault(&cfg.Logging.MaxAgeDays, 30)

	return validate(cfg)
}

func setDefault(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func validate(cfg *Config) error {
	err := structValidator.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config validation: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
	}
	return fmt.Errorf("config validation: %s", strings.Join(msgs, "; "))
}

// LongPollTimeout reports the pull timeout in seconds.
func (c *Config) LongPollTimeout() int {
	if c.Telegram.LongPollTimeoutSeconds <= 0 {
		return 10
	}
	return c.Telegram.LongPollTimeoutSeconds
}

// DropPending reports whether queued updates are discarded when delivery starts.
func (c *Config) DropPending() bool {
	return c.Telegram.DropPendingUpdates == nil || *c.Telegram.DropPendingUpdates
}

// WebhookMode reports whether push delivery is selected.
func (c *Config) WebhookMode() bool {
	return c.Telegram.RunMode == RunModeWebhook
}
