package preferences

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/weatherbot/core/syncutil"
)

type memoryRecord struct {
	city      string
	meta      Meta
	updatedAt time.Time
}

// MemoryStore keeps preferences in process memory. Data is lost on restart.
type MemoryStore struct {
	records sync.Map // int64 -> memoryRecord
	locks   syncutil.KeyedMutex
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// GetCity returns the user's stored city, if any.
func (m *MemoryStore) GetCity(_ context.Context, userID int64) (string, bool, error) {
	v, ok := m.records.Load(userID)
	if !ok {
		return "", false, nil
	}
	rec := v.(memoryRecord)
	return rec.city, rec.city != "", nil
}

// SetCity replaces the user's record.
func (m *MemoryStore) SetCity(ctx context.Context, userID int64, city string, meta Meta) error {
	city = strings.TrimSpace(city)
	if city == "" {
		return ErrEmptyCity
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := m.locks.Lock(userID)
	defer unlock()
	m.records.Store(userID, memoryRecord{city: city, meta: meta, updatedAt: time.Now().UTC()})
	return nil
}

// CountUsers returns the number of stored users.
func (m *MemoryStore) CountUsers(context.Context) (int, error) {
	n := 0
	m.records.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n, nil
}

// CountDistinctCities returns the number of different cities in use.
func (m *MemoryStore) CountDistinctCities(context.Context) (int, error) {
	seen := make(map[string]struct{})
	m.records.Range(func(_, v any) bool {
		if c := v.(memoryRecord).city; c != "" {
			seen[c] = struct{}{}
		}
		return true
	})
	return len(seen), nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
