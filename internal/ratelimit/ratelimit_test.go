package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memCounter is an in-memory Cache implementation good enough for limiter
// tests: it tracks counts per key and records expiry calls.
type memCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]time.Duration
	fail    bool
}

func newMemCounter() *memCounter {
	return &memCounter{counts: make(map[string]int64), expires: make(map[string]time.Duration)}
}

func (m *memCounter) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (m *memCounter) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (m *memCounter) Delete(context.Context, string) error                     { return nil }
func (m *memCounter) Ping(context.Context) error                               { return nil }

func (m *memCounter) IncrWindow(_ context.Context, key string, expiry time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errors.New("counter store down")
	}
	m.counts[key]++
	if m.counts[key] == 1 {
		m.expires[key] = expiry
	}
	return m.counts[key], nil
}

func newTestLimiter(c *memCounter, limit int) *Limiter {
	l := New(c, limit, time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return base }
	return l
}

func TestCheck_AllowsUpToLimit(t *testing.T) {
	c := newMemCounter()
	l := newTestLimiter(c, 3)

	for i := 1; i <= 3; i++ {
		allowed, remaining, err := l.Check(context.Background(), "project:demo")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("call %d should be allowed", i)
		}
		if remaining != 3-i {
			t.Errorf("call %d: expected remaining %d, got %d", i, 3-i, remaining)
		}
	}

	allowed, remaining, _ := l.Check(context.Background(), "project:demo")
	if allowed {
		t.Error("call limit+1 should be rejected")
	}
	if remaining != 0 {
		t.Errorf("expected remaining 0, got %d", remaining)
	}
}

func TestCheck_WindowReset(t *testing.T) {
	c := newMemCounter()
	l := New(c, 1, time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 59, 0, time.UTC)
	l.now = func() time.Time { return base }

	if allowed, _, _ := l.Check(context.Background(), "project:demo"); !allowed {
		t.Fatal("first call should be allowed")
	}
	if allowed, _, _ := l.Check(context.Background(), "project:demo"); allowed {
		t.Fatal("second call in same window should be rejected")
	}

	// Next minute: a fresh window key, counter starts over.
	base = base.Add(time.Second)
	if allowed, _, _ := l.Check(context.Background(), "project:demo"); !allowed {
		t.Error("call in new window should be allowed")
	}
}

func TestCheck_ScopesAreIndependent(t *testing.T) {
	c := newMemCounter()
	l := newTestLimiter(c, 1)

	l.Check(context.Background(), "project:a")
	allowed, _, _ := l.Check(context.Background(), "project:b")
	if !allowed {
		t.Error("scope b should not be limited by scope a's traffic")
	}
}

func TestCheck_ExpirySetOncePerWindow(t *testing.T) {
	c := newMemCounter()
	l := newTestLimiter(c, 10)

	for i := 0; i < 5; i++ {
		l.Check(context.Background(), "project:demo")
	}
	if len(c.expires) != 1 {
		t.Errorf("expected exactly one expiry per window key, got %d", len(c.expires))
	}
	for _, d := range c.expires {
		if d != time.Minute {
			t.Errorf("expected 1m expiry, got %v", d)
		}
	}
}

func TestCheck_FailsOpen(t *testing.T) {
	c := newMemCounter()
	c.fail = true
	l := newTestLimiter(c, 1)

	allowed, _, err := l.Check(context.Background(), "project:demo")
	if err == nil {
		t.Error("expected error to surface")
	}
	if !allowed {
		t.Error("counter store failure should not reject the request")
	}
}
