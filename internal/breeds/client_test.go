package breeds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spycat/internal/apperr"
)

type registry struct {
	calls atomic.Int32
	fail  atomic.Bool
	delay time.Duration
}

func (r *registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.fail.Load() {
		http.Error(w, "down", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`[{"name":"Siamese"},{"name":"Bengal"},{"id":"x"}]`))
}

func newClient(t *testing.T, reg *registry) (*Client, *time.Time) {
	t.Helper()
	srv := httptest.NewServer(reg)
	t.Cleanup(srv.Close)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Client{
		URL:   srv.URL,
		HTTP:  srv.Client(),
		TTL:   time.Hour,
		Retry: Retry{Attempts: 2, Backoff: time.Millisecond},
		Now:   func() time.Time { return clock },
	}
	return c, &clock
}

func TestIsValidUsesCachedSnapshot(t *testing.T) {
	reg := &registry{}
	c, _ := newClient(t, reg)
	ctx := context.Background()
	for _, tc := range []struct {
		breed string
		want  bool
	}{{"Siamese", true}, {"Bengal", true}, {"siamese", false}, {"Tabby", false}} {
		got, err := c.IsValid(ctx, tc.breed)
		if err != nil {
			t.Fatalf("%s: %v", tc.breed, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v", tc.breed, tc.want)
		}
	}
	if n := reg.calls.Load(); n != 1 {
		t.Fatalf("expected one registry call, got %d", n)
	}
	names, _ := c.Breeds(ctx)
	if len(names) != 2 || names[0] != "Bengal" {
		t.Fatalf("unexpected breeds %v", names)
	}
}

func TestTTLExpiryAndInvalidateRefetch(t *testing.T) {
	reg := &registry{}
	c, clock := newClient(t, reg)
	ctx := context.Background()
	c.IsValid(ctx, "Siamese")
	*clock = clock.Add(2 * time.Hour)
	c.IsValid(ctx, "Siamese")
	if n := reg.calls.Load(); n != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", n)
	}
	c.Invalidate()
	c.IsValid(ctx, "Siamese")
	if n := reg.calls.Load(); n != 3 {
		t.Fatalf("expected refetch after invalidate, got %d calls", n)
	}
}

func TestUnavailableWithoutSnapshotIsNotCached(t *testing.T) {
	reg := &registry{}
	reg.fail.Store(true)
	c, _ := newClient(t, reg)
	ctx := context.Background()
	_, err := c.IsValid(ctx, "Siamese")
	if !errors.Is(err, ErrUnavailable) || !apperr.IsKind(err, apperr.Unavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if n := reg.calls.Load(); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
	reg.fail.Store(false)
	ok, err := c.IsValid(ctx, "Siamese")
	if err != nil || !ok {
		t.Fatalf("failure must not be cached: ok=%v err=%v", ok, err)
	}
}

func TestStaleSnapshotServedOnFailure(t *testing.T) {
	reg := &registry{}
	c, _ := newClient(t, reg)
	ctx := context.Background()
	if _, err := c.IsValid(ctx, "Bengal"); err != nil {
		t.Fatal(err)
	}
	reg.fail.Store(true)
	c.Invalidate()
	ok, err := c.IsValid(ctx, "Bengal")
	if err != nil || !ok {
		t.Fatalf("expected stale answer, ok=%v err=%v", ok, err)
	}
}

func TestOutageServesStaleWithoutRefetchUntilCooldown(t *testing.T) {
	reg := &registry{}
	c, clock := newClient(t, reg)
	c.Retry.Cooldown = time.Minute
	ctx := context.Background()
	if _, err := c.IsValid(ctx, "Bengal"); err != nil {
		t.Fatal(err)
	}
	reg.fail.Store(true)
	*clock = clock.Add(2 * time.Hour)
	for i := 0; i < 3; i++ {
		ok, err := c.IsValid(ctx, "Bengal")
		if err != nil || !ok {
			t.Fatalf("call %d: expected stale answer, ok=%v err=%v", i, ok, err)
		}
	}
	if n := reg.calls.Load(); n != 3 {
		t.Fatalf("expected one failed refresh (2 attempts) after the first fetch, got %d calls", n)
	}

	*clock = clock.Add(2 * time.Minute)
	c.IsValid(ctx, "Bengal")
	if n := reg.calls.Load(); n != 5 {
		t.Fatalf("expected a retry once the cooldown passed, got %d calls", n)
	}

	reg.fail.Store(false)
	*clock = clock.Add(2 * time.Minute)
	c.IsValid(ctx, "Bengal")
	c.IsValid(ctx, "Bengal")
	if n := reg.calls.Load(); n != 6 {
		t.Fatalf("recovered registry should be cached again, got %d calls", n)
	}
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	reg := &registry{delay: 50 * time.Millisecond}
	c, _ := newClient(t, reg)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.IsValid(context.Background(), "Siamese"); err != nil {
				t.Errorf("is valid: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := reg.calls.Load(); n != 1 {
		t.Fatalf("expected a single shared fetch, got %d", n)
	}
}

func TestCallerCancellation(t *testing.T) {
	reg := &registry{delay: 200 * time.Millisecond}
	c, _ := newClient(t, reg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.IsValid(ctx, "Siamese"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRetryDelayIsCapped(t *testing.T) {
	r := Retry{Backoff: time.Second, MaxBackoff: 3 * time.Second}
	if d := r.delay(0); d != time.Second {
		t.Fatalf("first delay %s", d)
	}
	if d := r.delay(1); d != 2*time.Second {
		t.Fatalf("second delay %s", d)
	}
	if d := r.delay(5); d != 3*time.Second {
		t.Fatalf("capped delay %s", d)
	}
}
