package preferences

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/core/syncutil"
)

const (
	upsertFull = `INSERT INTO users (user_id, city, username, first_name, created_at, updated_at)
VALUES (:user_id, :city, :username, :first_name, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON CONFLICT (user_id) DO UPDATE SET
	city = excluded.city,
	username = excluded.username,
	first_name = excluded.first_name,
	updated_at = CURRENT_TIMESTAMP`

	upsertMinimal = `INSERT INTO users (user_id, city)
VALUES (:user_id, :city)
ON CONFLICT (user_id) DO UPDATE SET city = excluded.city`

	selectCity          = `SELECT city FROM users WHERE user_id = ?`
	countUsers          = `SELECT COUNT(*) FROM users`
	countDistinctCities = `SELECT COUNT(DISTINCT city) FROM users WHERE city IS NOT NULL AND city <> ''`
)

type userRow struct {
	UserID    int64          `db:"user_id"`
	City      string         `db:"city"`
	Username  sql.NullString `db:"username"`
	FirstName sql.NullString `db:"first_name"`
}

// SQLStore keeps preferences in the users table of a postgres or SQLite database.
type SQLStore struct {
	db    *sqlx.DB
	locks syncutil.KeyedMutex
}

// NewSQLStore wraps an already migrated database handle.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// GetCity returns the user's stored city, if any.
func (s *SQLStore) GetCity(ctx context.Context, userID int64) (string, bool, error) {
	var city sql.NullString
	err := s.db.GetContext(ctx, &city, s.db.Rebind(selectCity), userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("preferences: get city: %w", err)
	}
	if !city.Valid || strings.TrimSpace(city.String) == "" {
		return "", false, nil
	}
	return city.String, true, nil
}

// SetCity upserts the full record and falls back to (user_id, city) when the
// full write fails, e.g. against a legacy table without the profile columns.
func (s *SQLStore) SetCity(ctx context.Context, userID int64, city string, meta Meta) error {
	city = strings.TrimSpace(city)
	if city == "" {
		return ErrEmptyCity
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	row := userRow{
		UserID:    userID,
		City:      city,
		Username:  nullString(meta.Username),
		FirstName: nullString(meta.DisplayName),
	}

	start := time.Now()
	fullErr := s.exec(ctx, upsertFull, row)
	if fullErr == nil {
		logger.STORE.Debug("city saved",
			slog.String("event", "store.write"),
			slog.Int64("user_id", userID),
			slog.String("tier", "full"),
			slog.Duration("duration", logger.Took(start)),
		)
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("preferences: save city: %w", fullErr)
	}

	minErr := s.exec(ctx, upsertMinimal, row)
	if minErr != nil {
		return &StoreError{UserID: userID, Full: fullErr, Minimal: minErr}
	}
	logger.STORE.Warn("city saved without profile",
		slog.String("event", "store.write.degraded"),
		slog.Int64("user_id", userID),
		slog.String("tier", "minimal"),
		slog.String("cause", logger.SanitizeLimit(fullErr.Error(), 256)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

func (s *SQLStore) exec(ctx context.Context, query string, row userRow) error {
	_, err := s.db.NamedExecContext(ctx, query, row)
	return err
}

// CountUsers returns the number of stored users.
func (s *SQLStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, countUsers); err != nil {
		return 0, fmt.Errorf("preferences: count users: %w", err)
	}
	return n, nil
}

// CountDistinctCities returns the number of different cities in use.
func (s *SQLStore) CountDistinctCities(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, countDistinctCities); err != nil {
		return 0, fmt.Errorf("preferences: count cities: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
