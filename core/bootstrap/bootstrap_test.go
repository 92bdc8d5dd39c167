package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/weatherbot/core/config"
	coredatabase "github.com/m3rciful/weatherbot/core/database"
	"github.com/m3rciful/weatherbot/core/preferences"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunMemoryDriver(t *testing.T) {
	cfg := &coreconfig.Config{Storage: coreconfig.StorageConfig{Driver: coreconfig.StorageMemory}}
	res, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		Open: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			t.Fatalf("memory driver must not open a database")
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := res.Store.(*preferences.MemoryStore); !ok || res.DB != nil {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunSQLiteMigratesAndWraps(t *testing.T) {
	cfg := &coreconfig.Config{Storage: coreconfig.StorageConfig{Driver: coreconfig.StorageSQLite, SQLitePath: ":memory:"}}
	res, err := Run(context.Background(), Options{Config: cfg, LoggerInit: noLogger})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer res.Store.Close()

	ctx := context.Background()
	if err := res.Store.SetCity(ctx, 1, "Paris", preferences.Meta{Username: "alice"}); err != nil {
		t.Fatalf("SetCity: %v", err)
	}
	if city, ok, err := res.Store.GetCity(ctx, 1); err != nil || !ok || city != "Paris" {
		t.Fatalf("GetCity = %q, %v, %v", city, ok, err)
	}
}

func TestRunStopsOnFailures(t *testing.T) {
	cfg := &coreconfig.Config{Storage: coreconfig.StorageConfig{Driver: coreconfig.StorageSQLite, SQLitePath: ":memory:"}}

	if _, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: func(*coreconfig.Config) error { return errors.New("no log dir") },
	}); err == nil {
		t.Fatalf("expected logger failure to abort bootstrap")
	}

	if _, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		Migrate:    func(coredatabase.Config, *sqlx.DB) error { return errors.New("dirty schema") },
	}); err == nil {
		t.Fatalf("expected migration failure to abort bootstrap")
	}

	if _, err := Run(context.Background(), Options{LoggerInit: noLogger}); err == nil {
		t.Fatalf("expected nil config to be rejected")
	}
}
