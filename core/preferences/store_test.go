package preferences

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/weatherbot/core/database"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	cfg := database.Config{Driver: database.DriverSQLite, Path: ":memory:"}
	db, err := database.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.RunMigrations(cfg, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := NewSQLStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.GetCity(ctx, 1); err != nil || ok {
		t.Fatalf("expected no city for new user, ok=%v err=%v", ok, err)
	}
	if err := s.SetCity(ctx, 1, "Paris", Meta{Username: "alice", DisplayName: "Alice"}); err != nil {
		t.Fatalf("set city: %v", err)
	}
	if city, ok, err := s.GetCity(ctx, 1); err != nil || !ok || city != "Paris" {
		t.Fatalf("GetCity = %q, %v, %v", city, ok, err)
	}
	if err := s.SetCity(ctx, 1, "London", Meta{}); err != nil {
		t.Fatalf("overwrite city: %v", err)
	}
	if city, _, _ := s.GetCity(ctx, 1); city != "London" {
		t.Fatalf("expected last write to win, got %q", city)
	}
	if err := s.SetCity(ctx, 2, "London", Meta{Username: "bob"}); err != nil {
		t.Fatalf("set second user: %v", err)
	}
	if err := s.SetCity(ctx, 3, "Tokyo", Meta{}); err != nil {
		t.Fatalf("set third user: %v", err)
	}

	users, err := s.CountUsers(ctx)
	if err != nil || users != 3 {
		t.Fatalf("CountUsers = %d, %v", users, err)
	}
	cities, err := s.CountDistinctCities(ctx)
	if err != nil || cities != 2 {
		t.Fatalf("CountDistinctCities = %d, %v", cities, err)
	}

	if err := s.SetCity(ctx, 4, "   ", Meta{}); !errors.Is(err, ErrEmptyCity) {
		t.Fatalf("expected ErrEmptyCity, got %v", err)
	}
}

func TestSQLStoreContract(t *testing.T) {
	exerciseStore(t, newSQLiteStore(t))
}

func TestMemoryStoreContract(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLStoreFallsBackToMinimalRecord(t *testing.T) {
	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE users (user_id INTEGER PRIMARY KEY, city TEXT)`); err != nil {
		t.Fatalf("create legacy table: %v", err)
	}

	s := NewSQLStore(db)
	ctx := context.Background()
	if err := s.SetCity(ctx, 10, "Moscow", Meta{Username: "ivan", DisplayName: "Ivan"}); err != nil {
		t.Fatalf("expected minimal write to succeed, got %v", err)
	}
	if city, ok, err := s.GetCity(ctx, 10); err != nil || !ok || city != "Moscow" {
		t.Fatalf("GetCity = %q, %v, %v", city, ok, err)
	}
}

func TestSQLStoreBothTiersFail(t *testing.T) {
	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	s := NewSQLStore(db)
	err = s.SetCity(context.Background(), 1, "Paris", Meta{})
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *StoreError, got %T %v", err, err)
	}
	if storeErr.Full == nil || storeErr.Minimal == nil || storeErr.UserID != 1 {
		t.Fatalf("incomplete store error: %+v", storeErr)
	}
}
