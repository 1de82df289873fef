package domain

import (
	"context"
	"time"
)

// MappingRepository mediates access to the persistent url_mappings table.
// Expected conditions (not found, duplicate short code) come back as the
// domain sentinel errors; anything else is an I/O failure.
type MappingRepository interface {
	Create(ctx context.Context, mapping *URLMapping) (*URLMapping, error)
	Update(ctx context.Context, mapping *URLMapping) (*URLMapping, error)
	Delete(ctx context.Context, id int64) error
	FindByID(ctx context.Context, id int64) (*URLMapping, error)
	FindByShortCode(ctx context.Context, shortCode string) (*URLMapping, error)
	FindAll(ctx context.Context) ([]*URLMapping, error)
	FindActive(ctx context.Context) ([]*URLMapping, error)
	FindMostClicked(ctx context.Context, limit int) ([]*URLMapping, error)
	FindExpired(ctx context.Context, now time.Time) ([]*URLMapping, error)
	Exists(ctx context.Context, shortCode string) (bool, error)

	// IncrementClicks bumps click_count by one as a single atomic statement.
	IncrementClicks(ctx context.Context, id int64) error

	// BulkDeactivateExpired flips is_active off for every active row whose
	// expiry is before now, in one statement, and returns the affected count.
	BulkDeactivateExpired(ctx context.Context, now time.Time) (int64, error)

	Close() error
	HealthCheck(ctx context.Context) error
}
