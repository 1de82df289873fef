package application

import (
	"fmt"
	"time"
)

// Cache key namespaces. The formats are load-bearing: external cache
// inspection tooling matches on them, so they must not drift.
const (
	redirectKeyPrefix    = "redirect:"
	entityIDKeyPrefix    = "entity:id:"
	entityShortKeyPrefix = "entity:short:"

	// legacyShortKeyPrefix is no longer written but Purge still clears it.
	legacyShortKeyPrefix = "url:short:"
)

// Default TTLs for the two cache namespaces. The redirect projection is
// tiny and hot, so it outlives the full entity copy.
const (
	DefaultRedirectTTL = 6 * time.Hour
	DefaultEntityTTL   = time.Hour
)

// CachePolicy carries the per-namespace TTLs. The two namespaces expire
// independently; neither implies the other is present.
type CachePolicy struct {
	RedirectTTL time.Duration
	EntityTTL   time.Duration
}

func DefaultCachePolicy() CachePolicy {
	return CachePolicy{
		RedirectTTL: DefaultRedirectTTL,
		EntityTTL:   DefaultEntityTTL,
	}
}

func redirectKey(shortCode string) string {
	return redirectKeyPrefix + shortCode
}

func entityIDKey(id int64) string {
	return fmt.Sprintf("%s%d", entityIDKeyPrefix, id)
}

func entityShortKey(shortCode string) string {
	return entityShortKeyPrefix + shortCode
}

func legacyShortKey(shortCode string) string {
	return legacyShortKeyPrefix + shortCode
}
