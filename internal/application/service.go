package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avolpi/heron/internal/domain"
	"github.com/avolpi/heron/internal/pkg/metrics"
)

// URLService is the redirect/lookup engine. It orchestrates cache-aside
// reads, hybrid writes and invalidation across the mapping repository and
// the two cache namespaces. It holds no mutable state of its own; the
// repository and cache clients are safe for concurrent use.
type URLService struct {
	repo     domain.MappingRepository
	cache    domain.CacheStore
	gen      CodeGenerator
	policy   CachePolicy
	codeLen  int
	validate *validator.Validate
	logger   *slog.Logger
	metrics  metrics.Registry
}

func NewURLService(
	repo domain.MappingRepository,
	cache domain.CacheStore,
	gen CodeGenerator,
	policy CachePolicy,
	codeLength int,
	logger *slog.Logger,
	registry metrics.Registry,
) *URLService {
	if codeLength <= 0 {
		codeLength = 8
	}
	return &URLService{
		repo:     repo,
		cache:    cache,
		gen:      gen,
		policy:   policy,
		codeLen:  codeLength,
		validate: validator.New(),
		logger:   logger,
		metrics:  registry,
	}
}

type CreateURLRequest struct {
	URL         string     `json:"url" validate:"required,http_url,max=2048"`
	CustomCode  string     `json:"customCode,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Title       string     `json:"title,omitempty" validate:"omitempty,max=255"`
	Description string     `json:"description,omitempty" validate:"omitempty,max=1024"`
}

// UpdateURLRequest is a partial patch. Empty strings and nil timestamps
// leave the stored value unchanged; ExpiresAt accepts past values, which is
// how a mapping is deliberately expired.
type UpdateURLRequest struct {
	URL         string     `json:"url,omitempty" validate:"omitempty,http_url,max=2048"`
	CustomCode  string     `json:"customCode,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Title       string     `json:"title,omitempty" validate:"omitempty,max=255"`
	Description string     `json:"description,omitempty" validate:"omitempty,max=1024"`
}

// Resolve maps a short code to its original URL and counts the click.
// Inactive, expired and unknown codes are indistinguishable to the caller.
func (s *URLService) Resolve(ctx context.Context, shortCode string) (string, error) {
	now := time.Now()

	if entry := s.cachedRedirect(ctx, shortCode); entry != nil {
		// A cached inactive flag is authoritative enough to fail fast.
		if !entry.IsActive {
			s.metrics.IncCacheHit(metrics.NamespaceRedirect)
			return "", domain.ErrMappingNotFound
		}
		if !entry.Expired(now) {
			s.metrics.IncCacheHit(metrics.NamespaceRedirect)
			s.metrics.IncURLsRedirected()
			// Best effort: a failed counter update must never turn a
			// cache hit into a user-visible error.
			if err := s.repo.IncrementClicks(ctx, entry.ID); err != nil {
				s.logger.Warn("click increment failed on cache hit",
					"short_code", shortCode, "id", entry.ID, "error", err)
			}
			return entry.OriginalURL, nil
		}
		// Timestamp-expired while flagged active: the expiry may have been
		// extended since this entry was written, so treat it as a miss.
	}

	s.metrics.IncCacheMiss(metrics.NamespaceRedirect)

	mapping, err := s.repo.FindByShortCode(ctx, shortCode)
	if err != nil {
		if errors.Is(err, domain.ErrMappingNotFound) {
			return "", domain.ErrMappingNotFound
		}
		return "", err
	}
	if !mapping.Redirectable(now) {
		return "", domain.ErrMappingNotFound
	}

	s.cacheMapping(ctx, mapping)
	s.metrics.IncURLsRedirected()

	if err := s.repo.IncrementClicks(ctx, mapping.ID); err != nil {
		s.logger.Warn("click increment failed after store read",
			"short_code", shortCode, "id", mapping.ID, "error", err)
	}

	return mapping.OriginalURL, nil
}

// Create validates the request, assigns a unique short code and inserts the
// mapping. The cache is populated only after the insert has committed; a
// cache failure degrades to a miss on the next read, never into an error.
func (s *URLService) Create(ctx context.Context, req CreateURLRequest) (*domain.URLMapping, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return nil, domain.ErrInvalidExpiry
	}

	now := time.Now()
	mapping := &domain.URLMapping{
		OriginalURL: req.URL,
		IsActive:    true,
		ExpiresAt:   req.ExpiresAt,
		Title:       req.Title,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.insertWithCode(ctx, mapping, req.CustomCode)
	if err != nil {
		return nil, err
	}

	s.metrics.IncURLsCreated()
	s.cacheMapping(ctx, created)
	return created, nil
}

// insertWithCode inserts the mapping under the caller's custom code, or
// under a freshly generated one when no custom code was given.
func (s *URLService) insertWithCode(ctx context.Context, mapping *domain.URLMapping, customCode string) (*domain.URLMapping, error) {
	if customCode == "" {
		return s.createWithGeneratedCode(ctx, mapping)
	}

	if err := s.checkShortCode(customCode); err != nil {
		return nil, err
	}
	exists, err := s.repo.Exists(ctx, customCode)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrShortCodeExists
	}
	mapping.ShortCode = customCode
	return s.repo.Create(ctx, mapping)
}

// createWithGeneratedCode loops until a free random code is found. The
// unique index on short_code is the backstop for generator races, so a
// duplicate-key insert just means another attempt.
func (s *URLService) createWithGeneratedCode(ctx context.Context, mapping *domain.URLMapping) (*domain.URLMapping, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		code, err := s.gen.Generate(s.codeLen)
		if err != nil {
			return nil, err
		}

		exists, err := s.repo.Exists(ctx, code)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		mapping.ShortCode = code
		created, err := s.repo.Create(ctx, mapping)
		if err != nil {
			if errors.Is(err, domain.ErrShortCodeExists) {
				continue
			}
			return nil, err
		}
		return created, nil
	}
}

// Update applies a partial patch, persists it, refreshes the cache under the
// current code and only then evicts entries under a renamed code. The brief
// dual-valid window on rename is preferred over a window serving stale data.
func (s *URLService) Update(ctx context.Context, id int64, req UpdateURLRequest) (*domain.URLMapping, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	mapping, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldCode := mapping.ShortCode

	if req.CustomCode != "" && req.CustomCode != oldCode {
		if err := s.checkShortCode(req.CustomCode); err != nil {
			return nil, err
		}
		exists, err := s.repo.Exists(ctx, req.CustomCode)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrShortCodeExists
		}
		mapping.ShortCode = req.CustomCode
	}
	if req.URL != "" {
		mapping.OriginalURL = req.URL
	}
	if req.Title != "" {
		mapping.Title = req.Title
	}
	if req.Description != "" {
		mapping.Description = req.Description
	}
	if req.ExpiresAt != nil {
		// Past values are accepted here: that is deliberate expiry.
		mapping.ExpiresAt = req.ExpiresAt
	}
	mapping.UpdatedAt = time.Now()

	updated, err := s.repo.Update(ctx, mapping)
	if err != nil {
		return nil, err
	}

	s.cacheMapping(ctx, updated)
	if updated.ShortCode != oldCode {
		s.evictKeys(ctx,
			redirectKey(oldCode),
			entityShortKey(oldCode),
			legacyShortKey(oldCode),
		)
	}
	return updated, nil
}

// Delete removes the mapping from the store and then evicts its cache
// entries. Cache eviction failures are logged, not surfaced; the worst case
// is a stale entry serving a dead code until its TTL runs out.
func (s *URLService) Delete(ctx context.Context, id int64) error {
	mapping, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.evictKeys(ctx,
		redirectKey(mapping.ShortCode),
		entityIDKey(mapping.ID),
		entityShortKey(mapping.ShortCode),
	)
	return nil
}

// DeactivateExpired flips is_active off for every active row whose expiry
// has passed, in a single statement. The cache is left alone: resolution
// trusts cached inactive flags and re-checks expiry timestamps, so staleness
// is bounded by the redirect TTL.
func (s *URLService) DeactivateExpired(ctx context.Context) (int64, error) {
	count, err := s.repo.BulkDeactivateExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("deactivated expired mappings", "count", count)
	}
	return count, nil
}

// Purge force-evicts every cache entry reachable from a short code,
// including the legacy url:short alias, without consulting the store. It is
// idempotent and reports whether any key existed.
func (s *URLService) Purge(ctx context.Context, shortCode string) (bool, error) {
	keys := []string{
		redirectKey(shortCode),
		entityShortKey(shortCode),
		legacyShortKey(shortCode),
	}

	purged := false
	for _, key := range keys {
		existed, err := s.cache.Delete(ctx, key)
		if err != nil {
			s.logger.Warn("cache purge failed", "key", key, "error", err)
			continue
		}
		if existed {
			purged = true
		}
	}
	return purged, nil
}

// GetByID is a cache-aside read of the full entity by row id.
func (s *URLService) GetByID(ctx context.Context, id int64) (*domain.URLMapping, error) {
	if m := s.cachedMapping(ctx, entityIDKey(id)); m != nil {
		return m, nil
	}
	s.metrics.IncCacheMiss(metrics.NamespaceEntity)

	mapping, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheMapping(ctx, mapping)
	return mapping, nil
}

// GetByShortCode is a cache-aside read of the full entity by short code.
func (s *URLService) GetByShortCode(ctx context.Context, shortCode string) (*domain.URLMapping, error) {
	if m := s.cachedMapping(ctx, entityShortKey(shortCode)); m != nil {
		return m, nil
	}
	s.metrics.IncCacheMiss(metrics.NamespaceEntity)

	mapping, err := s.repo.FindByShortCode(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	s.cacheMapping(ctx, mapping)
	return mapping, nil
}

// GetAll returns every mapping straight from the store. List results have
// no stable cache key, so they are not cached.
func (s *URLService) GetAll(ctx context.Context) ([]*domain.URLMapping, error) {
	return s.repo.FindAll(ctx)
}

// GetActive returns all mappings currently eligible for redirects.
func (s *URLService) GetActive(ctx context.Context) ([]*domain.URLMapping, error) {
	return s.repo.FindActive(ctx)
}

// GetMostClicked returns the top mappings by click count.
func (s *URLService) GetMostClicked(ctx context.Context, limit int) ([]*domain.URLMapping, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.repo.FindMostClicked(ctx, limit)
}

// checkShortCode enforces the fixed-length alphanumeric code policy for
// caller-supplied codes.
func (s *URLService) checkShortCode(code string) error {
	if len(code) != s.codeLen {
		return domain.ErrInvalidShortCode
	}
	if err := s.validate.Var(code, "alphanum"); err != nil {
		return domain.ErrInvalidShortCode
	}
	return nil
}

// cacheMapping fans one mapping out to all three cache keys: the redirect
// projection plus the entity copy under both lookup paths. The entity keys
// are always written together so the two paths cannot diverge. Failures are
// logged and swallowed; each key independently falls back to a store read.
func (s *URLService) cacheMapping(ctx context.Context, mapping *domain.URLMapping) {
	entry, err := json.Marshal(domain.NewRedirectEntry(mapping))
	if err != nil {
		s.logger.Error("marshal redirect entry", "short_code", mapping.ShortCode, "error", err)
		return
	}
	full, err := json.Marshal(mapping)
	if err != nil {
		s.logger.Error("marshal url mapping", "short_code", mapping.ShortCode, "error", err)
		return
	}

	if err := s.cache.Set(ctx, redirectKey(mapping.ShortCode), entry, s.policy.RedirectTTL); err != nil {
		s.logger.Warn("cache set failed", "key", redirectKey(mapping.ShortCode), "error", err)
	}
	if err := s.cache.Set(ctx, entityIDKey(mapping.ID), full, s.policy.EntityTTL); err != nil {
		s.logger.Warn("cache set failed", "key", entityIDKey(mapping.ID), "error", err)
	}
	if err := s.cache.Set(ctx, entityShortKey(mapping.ShortCode), full, s.policy.EntityTTL); err != nil {
		s.logger.Warn("cache set failed", "key", entityShortKey(mapping.ShortCode), "error", err)
	}
}

// evictKeys deletes the given cache keys, logging failures instead of
// surfacing them.
func (s *URLService) evictKeys(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if _, err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("cache delete failed", "key", key, "error", err)
		}
	}
}

// cachedRedirect loads and decodes the redirect projection, treating every
// failure as a miss.
func (s *URLService) cachedRedirect(ctx context.Context, shortCode string) *domain.RedirectEntry {
	data, err := s.cache.Get(ctx, redirectKey(shortCode))
	if err != nil {
		s.logger.Warn("cache get failed", "key", redirectKey(shortCode), "error", err)
		return nil
	}
	if data == nil {
		return nil
	}
	var entry domain.RedirectEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("corrupt redirect cache entry", "key", redirectKey(shortCode), "error", err)
		return nil
	}
	return &entry
}

// cachedMapping loads and decodes a full entity entry, treating every
// failure as a miss.
func (s *URLService) cachedMapping(ctx context.Context, key string) *domain.URLMapping {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache get failed", "key", key, "error", err)
		return nil
	}
	if data == nil {
		return nil
	}
	var mapping domain.URLMapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		s.logger.Warn("corrupt entity cache entry", "key", key, "error", err)
		return nil
	}
	s.metrics.IncCacheHit(metrics.NamespaceEntity)
	return &mapping
}
