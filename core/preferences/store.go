// Package preferences persists each user's default city.
package preferences

import (
	"context"
	"errors"
	"fmt"
)

// Meta is the descriptive data stored next to a city.
type Meta struct {
	Username    string
	DisplayName string
}

// Store is the durable per-user preference contract. Writes for the same
// user are applied in arrival order; writes for different users proceed
// independently.
type Store interface {
	// GetCity returns the stored city and whether one exists.
	GetCity(ctx context.Context, userID int64) (string, bool, error)
	SetCity(ctx context.Context, userID int64, city string, meta Meta) error
	CountUsers(ctx context.Context) (int, error)
	// CountDistinctCities ignores users without a city.
	CountDistinctCities(ctx context.Context) (int, error)
	Close() error
}

// ErrEmptyCity rejects writes that would store a blank city.
var ErrEmptyCity = errors.New("preferences: empty city")

// StoreError reports a write where both the full and the minimal record failed.
type StoreError struct {
	UserID  int64
	Full    error
	Minimal error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("preferences: save city for user %d: full record: %v; minimal record: %v", e.UserID, e.Full, e.Minimal)
}

// Unwrap exposes both causes to errors.Is and errors.As.
func (e *StoreError) Unwrap() []error {
	return []error{e.Full, e.Minimal}
}

// Code satisfies the error-code convention used by handler summaries.
func (e *StoreError) Code() string {
	return "store_write_failed"
}
