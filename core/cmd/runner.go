package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/weatherbot/core/app"
	"github.com/m3rciful/weatherbot/core/bootstrap"
	coreconfig "github.com/m3rciful/weatherbot/core/config"
	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/core/preferences"
)

// Service is what Run drives until shutdown.
type Service interface {
	Run(ctx context.Context) error
}

// Options describe how to load configuration, bootstrap infrastructure and run the bot.
// Nil hooks use the real implementations.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(ctx context.Context, cfg *coreconfig.Config) (*bootstrap.Result, error)
	NewService func(cfg *coreconfig.Config, store preferences.Store) (Service, error)

	ShutdownLogger func() error
	// Signals default to SIGINT and SIGTERM.
	Signals []os.Signal
}

// Run loads configuration, bootstraps the store and serves until a signal
// arrives (nil) or the service fails (non-nil).
func Run(opts Options) error {
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = coreconfig.Load
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, cancel := signal.NotifyContext(context.Background(), signals...)
	defer cancel()

	startedAt := time.Now()
	boot := opts.Bootstrap
	if boot == nil {
		boot = func(ctx context.Context, cfg *coreconfig.Config) (*bootstrap.Result, error) {
			return bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
		}
	}
	res, err := boot(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	newService := opts.NewService
	if newService == nil {
		newService = func(cfg *coreconfig.Config, store preferences.Store) (Service, error) {
			return app.New(cfg, store)
		}
	}
	svc, err := newService(cfg, res.Store)
	if err != nil {
		_ = res.Store.Close()
		return fmt.Errorf("cmd: app build failed: %w", err)
	}

	appLog := logger.L.With("component", "app")
	appLog.Info("app ready",
		slog.String("event", "ready"),
		slog.String("mode", cfg.Telegram.RunMode),
		slog.String("storage", cfg.Storage.Driver),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)

	runErr := svc.Run(ctx)
	if runErr != nil {
		appLog.Error("app failed",
			slog.String("event", "shutdown"),
			slog.String("err", runErr.Error()),
		)
		return runErr
	}
	appLog.Info("shutting down...",
		slog.String("event", "shutdown"),
	)
	return nil
}
