package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/weatherbot/core/config"
	coredatabase "github.com/m3rciful/weatherbot/core/database"
	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/core/preferences"
)

// Options control the bootstrap pipeline. Nil hooks use the real implementations.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Open       func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config, *sqlx.DB) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Store preferences.Store
	// DB is nil for the memory driver.
	DB *sqlx.DB
}

// Run initializes the logger, opens the preference store and applies migrations.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	if opts.Config.Storage.Driver == coreconfig.StorageMemory {
		logger.DB.Warn("preferences kept in memory only",
			slog.String("event", "db.connect"),
			slog.String("driver", coreconfig.StorageMemory),
		)
		return &Result{Store: preferences.NewMemoryStore()}, nil
	}

	dbCfg := coredatabase.FromStorage(opts.Config.Storage)
	open := opts.Open
	if open == nil {
		open = coredatabase.Open
	}
	db, err := open(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(dbCfg, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	return &Result{Store: preferences.NewSQLStore(db), DB: db}, nil
}
