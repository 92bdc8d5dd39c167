package state

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestManagerDefaultsToIdle(t *testing.T) {
	m := NewMemoryManager()
	if st := m.GetState(1); st != StateIdle {
		t.Fatalf("expected idle, got %s", st)
	}
	if m.HasState(1) || m.Len() != 0 {
		t.Fatal("unknown user must not hold a session")
	}
}

func TestManagerTransitions(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m := NewMemoryManager(WithClock(clock.Now))

	m.SetState(7, StateAwaitingCity)
	first := m.Get(7)
	if first.State != StateAwaitingCity || !first.Since.Equal(time.Unix(1000, 0)) {
		t.Fatalf("unexpected session: %+v", first)
	}
	if n := m.IncAttempts(7); n != 1 {
		t.Fatalf("IncAttempts = %d", n)
	}

	clock.Advance(time.Minute)
	m.SetState(7, StateAwaitingCity)
	again := m.Get(7)
	if !again.Since.Equal(time.Unix(1060, 0)) || again.Attempts != 0 {
		t.Fatalf("re-entering should restart Since and reset attempts: %+v", again)
	}

	clock.Advance(time.Minute)
	m.Touch(7)
	if got := m.Get(7).Since; !got.Equal(time.Unix(1120, 0)) {
		t.Fatalf("Touch should stamp Since, got %v", got)
	}
	clock.Advance(time.Minute)
	m.IncAttempts(7)
	if got := m.Get(7).Since; !got.Equal(time.Unix(1180, 0)) {
		t.Fatalf("IncAttempts should stamp Since, got %v", got)
	}
	m.Touch(99)
	if m.HasState(99) {
		t.Fatal("Touch must not create a session")
	}

	m.ClearState(7)
	if m.HasState(7) || m.Len() != 0 {
		t.Fatal("ClearState should drop the session")
	}
	if n := m.IncAttempts(7); n != 0 {
		t.Fatalf("idle users have no attempts, got %d", n)
	}

	m.SetState(8, StateAwaitingCity)
	m.SetState(8, StateIdle)
	if m.Len() != 0 {
		t.Fatal("setting idle should drop the session")
	}
}

func TestManagerSweep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	m := NewMemoryManager(WithClock(clock.Now))

	m.SetState(1, StateAwaitingCity)
	clock.Advance(10 * time.Minute)
	m.SetState(2, StateAwaitingCity)
	clock.Advance(6 * time.Minute)

	if got := m.Sweep(0); got != nil {
		t.Fatalf("zero ttl must not sweep, got %v", got)
	}
	got := m.Sweep(15 * time.Minute)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected user 1 expired, got %v", got)
	}
	if m.GetState(2) != StateAwaitingCity {
		t.Fatal("fresh session must survive the sweep")
	}
}

func TestManagerConcurrentAccess(t *testing.T) {
	m := NewMemoryManager()
	var wg sync.WaitGroup
	for i := int64(0); i < 16; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.SetState(id, StateAwaitingCity)
				m.IncAttempts(id)
				_ = m.Get(id)
				m.ClearState(id)
			}
		}(i)
	}
	wg.Wait()
	if m.Len() != 0 {
		t.Fatalf("expected no sessions, got %d", m.Len())
	}
}
