package domain

import (
	"errors"
	"time"
)

var (
	ErrMappingNotFound  = errors.New("url mapping not found")
	ErrShortCodeExists  = errors.New("short code already exists")
	ErrInvalidURL       = errors.New("invalid url")
	ErrInvalidShortCode = errors.New("invalid short code")
	ErrInvalidExpiry    = errors.New("expiry must be in the future")
)

// MaxURLLength is the longest original URL accepted on create/update.
const MaxURLLength = 2048

// URLMapping is the durable short-code record. The database owns id,
// created_at and updated_at; click_count is only ever mutated through
// MappingRepository.IncrementClicks.
type URLMapping struct {
	ID          int64      `db:"id" json:"id"`
	ShortCode   string     `db:"short_code" json:"shortCode"`
	OriginalURL string     `db:"original_url" json:"originalUrl"`
	IsActive    bool       `db:"is_active" json:"isActive"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
	ClickCount  int64      `db:"click_count" json:"clickCount"`
	Title       string     `db:"title" json:"title,omitempty"`
	Description string     `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// Expired reports whether the mapping has an expiry timestamp in the past.
func (m *URLMapping) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}

// Redirectable reports whether a redirect may be served from this mapping.
func (m *URLMapping) Redirectable(now time.Time) bool {
	return m.IsActive && !m.Expired(now)
}

// RedirectEntry is the minimal cache projection needed to serve a redirect
// and to know which row's counter to bump.
type RedirectEntry struct {
	ID          int64      `json:"id"`
	OriginalURL string     `json:"originalUrl"`
	IsActive    bool       `json:"isActive"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// NewRedirectEntry projects a mapping into its redirect cache form.
func NewRedirectEntry(m *URLMapping) *RedirectEntry {
	return &RedirectEntry{
		ID:          m.ID,
		OriginalURL: m.OriginalURL,
		IsActive:    m.IsActive,
		ExpiresAt:   m.ExpiresAt,
	}
}

// Expired reports whether the cached projection carries a past expiry.
func (e *RedirectEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}
