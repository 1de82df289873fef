package application

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avolpi/heron/internal/domain"
	"github.com/avolpi/heron/internal/infrastructure/memory"
	"github.com/avolpi/heron/internal/pkg/metrics"
)

const testCodeLength = 8

// fakeCache is an in-memory CacheStore that records TTLs and can be switched
// into a failing mode to exercise degradation paths.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]fakeEntry
	failing bool
}

type fakeEntry struct {
	value []byte
	ttl   time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]fakeEntry{}}
}

var errCacheDown = errors.New("cache down")

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return nil, errCacheDown
	}
	entry, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	return entry.value, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errCacheDown
	}
	c.entries[key] = fakeEntry{value: value, ttl: ttl}
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return false, errCacheDown
	}
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok, nil
}

func (c *fakeCache) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errCacheDown
	}
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func (c *fakeCache) put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = fakeEntry{value: value}
}

func (c *fakeCache) setFailing(failing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing = failing
}

func newTestService(cache domain.CacheStore) (*URLService, *memory.MappingRepository) {
	repo := memory.NewMappingRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewURLService(repo, cache, NewNanoIDGenerator(), DefaultCachePolicy(), testCodeLength, logger, metrics.NewNoOpRegistry())
	return service, repo
}

func TestURLService_Create_ValidRequests(t *testing.T) {
	service, _ := newTestService(newFakeCache())
	ctx := context.Background()

	tests := []struct {
		name        string
		request     CreateURLRequest
		checkResult func(t *testing.T, m *domain.URLMapping, req CreateURLRequest)
	}{
		{
			name: "valid URL",
			request: CreateURLRequest{
				URL: "https://example.com",
			},
			checkResult: func(t *testing.T, m *domain.URLMapping, req CreateURLRequest) {
				if m.OriginalURL != req.URL {
					t.Errorf("expected OriginalURL %s, got %s", req.URL, m.OriginalURL)
				}
				if len(m.ShortCode) != testCodeLength {
					t.Errorf("expected ShortCode length %d, got %d", testCodeLength, len(m.ShortCode))
				}
				if !m.IsActive {
					t.Error("expected new mapping to be active")
				}
			},
		},
		{
			name: "valid URL with custom code",
			request: CreateURLRequest{
				URL:        "https://example.com",
				CustomCode: "mycode12",
			},
			checkResult: func(t *testing.T, m *domain.URLMapping, req CreateURLRequest) {
				if m.ShortCode != req.CustomCode {
					t.Errorf("expected ShortCode %s, got %s", req.CustomCode, m.ShortCode)
				}
			},
		},
		{
			name: "valid URL with metadata",
			request: CreateURLRequest{
				URL:         "https://example.com/docs",
				Title:       "Docs",
				Description: "Documentation portal",
			},
			checkResult: func(t *testing.T, m *domain.URLMapping, req CreateURLRequest) {
				if m.Title != req.Title {
					t.Errorf("expected Title %s, got %s", req.Title, m.Title)
				}
				if m.Description != req.Description {
					t.Errorf("expected Description %s, got %s", req.Description, m.Description)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapping, err := service.Create(ctx, tt.request)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mapping.ID == 0 {
				t.Error("expected assigned id")
			}
			tt.checkResult(t, mapping, tt.request)
		})
	}
}

func TestURLService_Create_InvalidURLs(t *testing.T) {
	service, _ := newTestService(newFakeCache())
	ctx := context.Background()

	tests := []struct {
		name    string
		request CreateURLRequest
		errMsg  string
	}{
		{
			name:    "invalid URL",
			request: CreateURLRequest{URL: "not-a-url"},
			errMsg:  "URL",
		},
		{
			name:    "empty URL",
			request: CreateURLRequest{URL: ""},
			errMsg:  "URL",
		},
		{
			name:    "unsupported scheme",
			request: CreateURLRequest{URL: "ftp://example.com/file"},
			errMsg:  "URL",
		},
		{
			name:    "URL too long",
			request: CreateURLRequest{URL: "https://example.com/" + strings.Repeat("a", domain.MaxURLLength)},
			errMsg:  "URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(ctx, tt.request)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Fatalf("expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestURLService_Create_InvalidCustomCodes(t *testing.T) {
	service, _ := newTestService(newFakeCache())
	ctx := context.Background()

	tests := []struct {
		name string
		code string
	}{
		{name: "too short", code: "abc"},
		{name: "too long", code: strings.Repeat("a", testCodeLength+1)},
		{name: "special characters", code: "my-code1"},
		{name: "whitespace", code: "my code1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(ctx, CreateURLRequest{
				URL:        "https://example.com",
				CustomCode: tt.code,
			})
			if !errors.Is(err, domain.ErrInvalidShortCode) {
				t.Fatalf("expected ErrInvalidShortCode, got %v", err)
			}
		})
	}
}

func TestURLService_Create_DuplicateCustomCode(t *testing.T) {
	service, _ := newTestService(newFakeCache())
	ctx := context.Background()

	_, err := service.Create(ctx, CreateURLRequest{
		URL:        "https://example1.com",
		CustomCode: "duplicat",
	})
	if err != nil {
		t.Fatalf("unexpected error creating first mapping: %v", err)
	}

	_, err = service.Create(ctx, CreateURLRequest{
		URL:        "https://example2.com",
		CustomCode: "duplicat",
	})
	if !errors.Is(err, domain.ErrShortCodeExists) {
		t.Fatalf("expected ErrShortCodeExists, got %v", err)
	}
}

func TestURLService_Create_PastExpiry(t *testing.T) {
	service, _ := newTestService(newFakeCache())
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := service.Create(ctx, CreateURLRequest{
		URL:       "https://example.com",
		ExpiresAt: &past,
	})
	if !errors.Is(err, domain.ErrInvalidExpiry) {
		t.Fatalf("expected ErrInvalidExpiry, got %v", err)
	}
}

func TestURLService_Create_PopulatesCache(t *testing.T) {
	cache := newFakeCache()
	service, _ := newTestService(cache)
	ctx := context.Background()

	mapping, err := service.Create(ctx, CreateURLRequest{
		URL:        "https://example.com",
		CustomCode: "cachedok",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	redirect, ok := cache.entries[redirectKey("cachedok")]
	if !ok {
		t.Fatal("expected redirect cache entry")
	}
	if redirect.ttl != DefaultRedirectTTL {
		t.Errorf("expected redirect TTL %v, got %v", DefaultRedirectTTL, redirect.ttl)
	}

	var entry domain.RedirectEntry
	if err := json.Unmarshal(redirect.value, &entry); err != nil {
		t.Fatalf("failed to decode redirect entry: %v", err)
	}
	if entry.OriginalURL != "https://example.com" || !entry.IsActive {
		t.Errorf("unexpected redirect entry: %+v", entry)
	}

	for _, key := range []string{entityIDKey(mapping.ID), entityShortKey("cachedok")} {
		full, ok := cache.entries[key]
		if !ok {
			t.Fatalf("expected entity cache entry under %s", key)
		}
		if full.ttl != DefaultEntityTTL {
			t.Errorf("expected entity TTL %v for %s, got %v", DefaultEntityTTL, key, full.ttl)
		}
	}
}

func TestURLService_Create_SurvivesCacheFailure(t *testing.T) {
	cache := newFakeCache()
	cache.setFailing(true)
	service, _ := newTestService(cache)
	ctx := context.Background()

	mapping, err := service.Create(ctx, CreateURLRequest{
		URL:        "https://example.com",
		CustomCode: "nocache1",
	})
	if err != nil {
		t.Fatalf("expected create to succeed with failing cache, got %v", err)
	}

	cache.setFailing(false)
	url, err := service.Resolve(ctx, mapping.ShortCode)
	if err != nil {
		t.Fatalf("unexpected error resolving: %v", err)
	}
	if url != "https://example.com" {
		t.Errorf("expected original URL, got %s", url)
	}
}

func TestURLService_Resolve(t *testing.T) {
	cache := newFakeCache()
	service, _ := newTestService(cache)
	ctx := context.Background()

	created, err := service.Create(ctx, CreateURLRequest{
		URL:        "https://example.com/page",
		CustomCode: "resolve1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// First resolve is served from the cache populated at create time.
	url, err := service.Resolve(ctx, "resolve1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://example.com/page" {
		t.Errorf("expected original URL, got %s", url)
	}

	// Clicks are counted on cache hits too; read the row fresh from the
	// store to observe the counter.
	delete(cache.entries, entityIDKey(created.ID))
	fresh, err := service.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh.ClickCount != 1 {
		t.Errorf("expected click count 1, got %d", fresh.ClickCount)
	}

	// A resolve after cache eviction falls back to the store and re-populates
	// the redirect entry.
	delete(cache.entries, redirectKey("resolve1"))
	if _, err := service.Resolve(ctx, "resolve1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cache.has(redirectKey("resolve1")) {
		t.Error("expected redirect entry to be re-populated after miss")
	}
}

func TestURLService_Resolve_NotFoundCases(t *testing.T) {
	service, repo := newTestService(newFakeCache())
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	expired, err := repo.Create(ctx, &domain.URLMapping{
		ShortCode:   "expired1",
		OriginalURL: "https://example.com/old",
		IsActive:    true,
		ExpiresAt:   &past,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = expired

	inactive, err := repo.Create(ctx, &domain.URLMapping{
		ShortCode:   "disabled",
		OriginalURL: "https://example.com/gone",
		IsActive:    false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = inactive

	tests := []struct {
		name      string
		shortCode string
	}{
		{name: "unknown code", shortCode: "missing1"},
		{name: "expired mapping", shortCode: "expired1"},
		{name: "inactive mapping", shortCode: "disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Resolve(ctx, tt.shortCode)
			if !errors.Is(err, domain.ErrMappingNotFound) {
				t.Fatalf("expected ErrMappingNotFound, got %v", err)
			}
		})
	}
}

func TestURLService_Resolve_CachedInactiveFailsFast(t *testing.T) {
	cache := newFakeCache()
	service, repo := newTestService(cache)
	ctx := context.Background()

	// The store says active, the cache says inactive. The cached flag wins
	// until the entry expires or is evicted.
	created, err := repo.Create(ctx, &domain.URLMapping{
		ShortCode:   "flagged1",
		OriginalURL: "https://example.com",
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, _ := json.Marshal(domain.RedirectEntry{
		ID:          created.ID,
		OriginalURL: created.OriginalURL,
		IsActive:    false,
	})
	cache.put(redirectKey("flagged1"), entry)

	if _, err := service.Resolve(ctx, "flagged1"); !errors.Is(err, domain.ErrMappingNotFound) {
		t.Fatalf("expected ErrMappingNotFound from cached inactive flag, got %v", err)
	}
}

func TestURLService_Resolve_CachedExpiredFallsThrough(t *testing.T) {
	cache := newFakeCache()
	service, repo := newTestService(cache)
	ctx := context.Background()

	// The cached entry carries a passed expiry but the store row has since
	// been extended. The stale timestamp must be re-checked against the store.
	future := time.Now().Add(time.Hour)
	created, err := repo.Create(ctx, &domain.URLMapping{
		ShortCode:   "extended",
		OriginalURL: "https://example.com/extended",
		IsActive:    true,
		ExpiresAt:   &future,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	past := time.Now().Add(-time.Minute)
	entry, _ := json.Marshal(domain.RedirectEntry{
		ID:          created.ID,
		OriginalURL: created.OriginalURL,
		IsActive:    true,
		ExpiresAt:   &past,
	})
	cache.put(redirectKey("extended"), entry)

	url, err := service.Resolve(ctx, "extended")
	if err != nil {
		t.Fatalf("expected fall-through to store, got %v", err)
	}
	if url != "https://example.com/extended" {
		t.Errorf("expected extended URL, got %s", url)
	}
}

func TestURLService_Resolve_SurvivesCacheFailure(t *testing.T) {
	cache := newFakeCache()
	service, _ := newTestService(cache)
	ctx := context.Background()

	if _, err := service.Create(ctx, CreateURLRequest{
		URL:        "https://example.com",
		CustomCode: "degraded",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cache.setFailing(true)
	url, err := service.Resolve(ctx, "degraded")
	if err != nil {
		t.Fatalf("expected store fallback with failing cache, got %v", err)
	}
	if url != "https://example.com" {
		t.Errorf("expected original URL, got %s", url)
	}
}

func TestURLService_Update(t *testing.T) {
	cache := newFakeCache()
	service, _ := newTestService(cache)
	ctx := context.Background()

	created, err := service.Create(ctx, CreateURLRequest{
		URL:        "https://example.com/v1",
		CustomCode: "original",
		Title:      "v1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := service.Update(ctx, created.ID, UpdateURLRequest{
		URL:   "https://example.com/v2",
		Title: "v2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.OriginalURL != "https://example.com/v2" {
		t.Errorf("expected updated URL, got %s", updated.OriginalURL)
	}
	if updated.Title != "v2" {
		t.Errorf("expected updated title, got %s", updated.Title)
	}
	if updated.ShortCode != "original" {
		t.Errorf("expected short code unchanged, got %s", updated.ShortCode)
	}

	// The refreshed cache serves the new destination immediately.
	url, err := service.Resolve(ctx, "original")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://example.com/v2" {
		t.Errorf("expected updated URL from cache, got %s", url)
	}
}

func TestURLService_Update_Rename(t *testing.T) {
	cache := newFakeCache()
	service, _ := newTestService(cache)
	ctx := context.Background()

	created, err := service.Create(ctx, CreateURLRequest{
		URL:        "https://example.com",
		CustomCode: "oldcode1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := service.Update(ctx, created.ID, UpdateURLRequest{CustomCode: "newcode1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ShortCode != "newcode1" {
		t.Errorf("expected renamed code, got %s", updated.ShortCode)
	}

	if cache.has(redirectKey("oldcode1")) {
		t.Error("expected old redirect entry to be evicted")
	}
	if cache.has(entityShortKey("oldcode1")) {
		t.Error("expected old entity entry to be evicted")
	}
	if !cache.has(redirectKey("newcode1")) {
		t.Error("expected new redirect entry to be written")
	}

	if _, err := service.Resolve(ctx, "oldcode1"); !errors.Is(err, domain.ErrMappingNotFound) {
		t.Fatalf("expected old code to stop resolving, got %v", err)
	}
	if _, err := service.Resolve(ctx, "newcode1"); err != nil {
		t.Fatalf("expected new code to resolve, got %v", err)
	}
}

func TestURLService_Update_RenameToTakenCode(t *testing.T) {
	service, _ := newTestService(newFakeCache())
	ctx := context.Background()

	if _, err := service.Create(ctx, CreateURLRequest{
		URL:        "https://example1.com",
		CustomCode: "takencod",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	created, err := service.Create(ctx, CreateURLRequest{
		URL:        "https://example2.com",
		CustomCode: "movingon",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = service.Update(ctx, created.ID, UpdateURLRequest{CustomCode: "takencod"})
	if !errors.Is(err, domain.ErrShortCodeExists) {
		t.Fatalf("expected ErrShortCodeExists, got %v", err)
	}
}

func TestURLService_Update_PastExpiryDeactivates(t *testing.T) {
	service, _ := newTestService(newFakeCache())
	ctx := context.Background()

	created, err := service.Create(ctx, CreateURLRequest{
		URL:        "https://example.com",
		CustomCode: "sunsetme",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Updates accept past expiries; that is how a mapping is retired.
	past := time.Now().Add(-time.Minute)
	if _, err := service.Update(ctx, created.ID, UpdateURLRequest{ExpiresAt: &past}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := service.Resolve(ctx, "sunsetme"); !errors.Is(err, domain.ErrMappingNotFound) {
		t.Fatalf("expected expired mapping to stop resolving, got %v", err)
	}
}

func TestURLService_Update_NotFound(t *testing.T) {
	service, _ := newTestService(newFakeCache())
	ctx := context.Background()

	_, err := service.Update(ctx, 9999, UpdateURLRequest{Title: "nope"})
	if !errors.Is(err, domain.ErrMappingNotFound) {
		t.Fatalf("expected ErrMappingNotFound, got %v", err)
	}
}

func TestURLService_Delete(t *testing.T) {
	cache := newFakeCache()
	service, _ := newTestService(cache)
	ctx := context.Background()

	created, err := service.Create(ctx, CreateURLRequest{
		URL:        "https://example.com",
		CustomCode: "deleteme",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.Delete(ctx, created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, key := range []string{
		redirectKey("deleteme"),
		entityIDKey(created.ID),
		entityShortKey("deleteme"),
	} {
		if cache.has(key) {
			t.Errorf("expected %s to be evicted", key)
		}
	}

	if _, err := service.Resolve(ctx, "deleteme"); !errors.Is(err, domain.ErrMappingNotFound) {
		t.Fatalf("expected ErrMappingNotFound after delete, got %v", err)
	}
	if err := service.Delete(ctx, created.ID); !errors.Is(err, domain.ErrMappingNotFound) {
		t.Fatalf("expected ErrMappingNotFound on second delete, got %v", err)
	}
}

func TestURLService_DeactivateExpired(t *testing.T) {
	service, repo := newTestService(newFakeCache())
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	mappings := []*domain.URLMapping{
		{ShortCode: "sweepab1", OriginalURL: "https://a.example.com", IsActive: true, ExpiresAt: &past},
		{ShortCode: "sweepab2", OriginalURL: "https://b.example.com", IsActive: true, ExpiresAt: &past},
		{ShortCode: "sweepab3", OriginalURL: "https://c.example.com", IsActive: true, ExpiresAt: &future},
		{ShortCode: "sweepab4", OriginalURL: "https://d.example.com", IsActive: true},
	}
	for _, m := range mappings {
		if _, err := repo.Create(ctx, m); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	count, err := service.DeactivateExpired(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 deactivations, got %d", count)
	}

	// A second sweep finds nothing left to flip.
	count, err = service.DeactivateExpired(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 deactivations on second sweep, got %d", count)
	}

	active, err := service.GetActive(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("expected 2 active mappings, got %d", len(active))
	}
}

func TestURLService_Purge(t *testing.T) {
	cache := newFakeCache()
	service, _ := newTestService(cache)
	ctx := context.Background()

	if _, err := service.Create(ctx, CreateURLRequest{
		URL:        "https://example.com",
		CustomCode: "purgeme1",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cache.put(legacyShortKey("purgeme1"), []byte("legacy"))

	purged, err := service.Purge(ctx, "purgeme1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !purged {
		t.Error("expected purge to report evicted keys")
	}
	for _, key := range []string{
		redirectKey("purgeme1"),
		entityShortKey("purgeme1"),
		legacyShortKey("purgeme1"),
	} {
		if cache.has(key) {
			t.Errorf("expected %s to be purged", key)
		}
	}

	// Purging again, or purging an unknown code, is a no-op.
	purged, err = service.Purge(ctx, "purgeme1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if purged {
		t.Error("expected second purge to report nothing evicted")
	}
}

func TestURLService_GetByShortCode_CacheAside(t *testing.T) {
	cache := newFakeCache()
	service, repo := newTestService(cache)
	ctx := context.Background()

	created, err := service.Create(ctx, CreateURLRequest{
		URL:        "https://example.com",
		CustomCode: "sideload",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Remove the row from the store; the entity cache still serves the read.
	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fromCache, err := service.GetByShortCode(ctx, "sideload")
	if err != nil {
		t.Fatalf("expected cached entity read, got %v", err)
	}
	if fromCache.ID != created.ID {
		t.Errorf("expected id %d, got %d", created.ID, fromCache.ID)
	}

	delete(cache.entries, entityShortKey("sideload"))
	if _, err := service.GetByShortCode(ctx, "sideload"); !errors.Is(err, domain.ErrMappingNotFound) {
		t.Fatalf("expected ErrMappingNotFound after eviction, got %v", err)
	}
}

func TestURLService_GetMostClicked(t *testing.T) {
	service, repo := newTestService(newFakeCache())
	ctx := context.Background()

	seed := []struct {
		code   string
		clicks int64
	}{
		{code: "toplist1", clicks: 5},
		{code: "toplist2", clicks: 20},
		{code: "toplist3", clicks: 1},
	}
	for _, s := range seed {
		m, err := repo.Create(ctx, &domain.URLMapping{
			ShortCode:   s.code,
			OriginalURL: "https://example.com/" + s.code,
			IsActive:    true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := int64(0); i < s.clicks; i++ {
			if err := repo.IncrementClicks(ctx, m.ID); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
	}

	top, err := service.GetMostClicked(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 results, got %d", len(top))
	}
	if top[0].ShortCode != "toplist2" || top[1].ShortCode != "toplist1" {
		t.Errorf("unexpected ordering: %s, %s", top[0].ShortCode, top[1].ShortCode)
	}
}
