// Package breeds validates cat breeds against the remote breed registry.
package breeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"spycat/internal/apperr"
	"spycat/internal/config"
	"spycat/internal/metrics"
)

// ErrUnavailable is returned when the registry cannot be reached and no
// earlier snapshot exists.
var ErrUnavailable = apperr.NewUnavailable("Breed registry is unavailable. Please, try again later.")

// Retry controls re-fetching after a failed registry call. After a failed
// refresh the stale snapshot is served for Cooldown before the registry is
// tried again; zero falls back to MaxBackoff, then TTL.
type Retry struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
	Cooldown   time.Duration
}

func (r Retry) delay(attempt int) time.Duration {
	d := r.Backoff << attempt
	if r.MaxBackoff > 0 && (d > r.MaxBackoff || d <= 0) {
		return r.MaxBackoff
	}
	return d
}

// Client caches the registry's breed names for TTL. Concurrent cache misses
// share one fetch. A failed refresh keeps serving the previous snapshot.
type Client struct {
	URL     string
	HTTP    *http.Client
	TTL     time.Duration
	Timeout time.Duration
	Retry   Retry
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	breeds   map[string]struct{}
	loadedAt time.Time
	retryAt  time.Time
}

func New(cfg config.CatAPI) *Client {
	return &Client{
		URL:     cfg.BreedURL,
		HTTP:    &http.Client{},
		TTL:     cfg.CacheTTL,
		Timeout: cfg.FetchTimeout,
		Retry: Retry{
			Attempts:   cfg.FetchAttempts,
			Backoff:    200 * time.Millisecond,
			MaxBackoff: 5 * time.Second,
			Cooldown:   30 * time.Second,
		},
		Logger:  slog.Default(),
		Now:     time.Now,
	}
}

// IsValid reports whether breed is a registry breed name (exact match).
func (c *Client) IsValid(ctx context.Context, breed string) (bool, error) {
	set, err := c.snapshot(ctx)
	if err != nil {
		return false, err
	}
	_, ok := set[breed]
	return ok, nil
}

// Breeds returns the known breed names, sorted.
func (c *Client) Breeds(ctx context.Context) ([]string, error) {
	set, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Strings(out)
	return out, nil
}

// Invalidate forces the next lookup to refetch. The current snapshot stays
// available as a fallback.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.retryAt = time.Time{}
	c.mu.Unlock()
}

func (c *Client) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

type cacheState int

const (
	cacheMiss cacheState = iota
	cacheFresh
	cacheCooling
)

func (c *Client) cached() (map[string]struct{}, cacheState) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.breeds == nil {
		return nil, cacheMiss
	}
	now := c.now()
	if !c.retryAt.IsZero() && now.Before(c.retryAt) {
		return c.breeds, cacheCooling
	}
	if c.loadedAt.IsZero() || (c.TTL > 0 && now.Sub(c.loadedAt) >= c.TTL) {
		return c.breeds, cacheMiss
	}
	return c.breeds, cacheFresh
}

func (c *Client) cooldown() time.Duration {
	switch {
	case c.Retry.Cooldown > 0:
		return c.Retry.Cooldown
	case c.Retry.MaxBackoff > 0:
		return c.Retry.MaxBackoff
	default:
		return c.TTL
	}
}

func (c *Client) snapshot(ctx context.Context) (map[string]struct{}, error) {
	switch set, state := c.cached(); state {
	case cacheFresh:
		c.Metrics.BreedLookup(metrics.OutcomeCached)
		return set, nil
	case cacheCooling:
		c.Metrics.BreedLookup(metrics.OutcomeStale)
		return set, nil
	}
	// The shared fetch must outlive any single caller's cancellation.
	ch := c.group.DoChan("breeds", func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]struct{}), nil
	}
}

func (c *Client) refresh(ctx context.Context) (map[string]struct{}, error) {
	names, err := c.fetchWithRetry(ctx)
	if err != nil {
		c.mu.Lock()
		stale := c.breeds
		if stale != nil {
			c.retryAt = c.now().Add(c.cooldown())
		}
		c.mu.Unlock()
		if stale != nil {
			c.logger().Warn("breed registry refresh failed, serving stale snapshot", "err", err, "breeds", len(stale), "retry_in", c.cooldown())
			c.Metrics.BreedLookup(metrics.OutcomeStale)
			return stale, nil
		}
		c.logger().Error("breed registry unavailable", "err", err)
		c.Metrics.BreedLookup(metrics.OutcomeFailed)
		return nil, fmt.Errorf("%w (%v)", ErrUnavailable, err)
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	c.mu.Lock()
	c.breeds = set
	c.loadedAt = c.now()
	c.retryAt = time.Time{}
	c.mu.Unlock()
	c.logger().Info("loaded breeds", "count", len(set))
	c.Metrics.BreedLookup(metrics.OutcomeFetched)
	return set, nil
}

func (c *Client) fetchWithRetry(ctx context.Context) ([]string, error) {
	attempts := c.Retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			timer := time.NewTimer(c.Retry.delay(i - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		names, err := c.fetch(ctx)
		if err == nil {
			return names, nil
		}
		lastErr = err
		c.logger().Debug("breed fetch attempt failed", "attempt", i+1, "err", err)
	}
	return nil, lastErr
}

type breed struct {
	Name string `json:"name"`
}

func (c *Client) fetch(ctx context.Context) ([]string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("breed registry returned %s", resp.Status)
	}
	var payload []breed
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode breeds: %w", err)
	}
	names := make([]string, 0, len(payload))
	for _, b := range payload {
		if b.Name != "" {
			names = append(names, b.Name)
		}
	}
	return names, nil
}
