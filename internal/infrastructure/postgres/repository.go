package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/avolpi/heron/internal/domain"
)

const mappingColumns = `id, short_code, original_url, is_active, expires_at, click_count, title, description, created_at, updated_at`

type MappingRepository struct {
	db *sqlx.DB
}

func NewMappingRepository(db *sqlx.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

func (r *MappingRepository) Create(ctx context.Context, mapping *domain.URLMapping) (*domain.URLMapping, error) {
	query := `
		INSERT INTO url_mappings (short_code, original_url, is_active, expires_at, click_count, title, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + mappingColumns

	var result domain.URLMapping
	err := r.db.GetContext(ctx, &result, query,
		mapping.ShortCode, mapping.OriginalURL, mapping.IsActive, mapping.ExpiresAt,
		mapping.ClickCount, mapping.Title, mapping.Description, mapping.CreatedAt, mapping.UpdatedAt)
	if err != nil {
		return nil, r.handlePostgreSQLError(err, "create mapping")
	}

	slog.Debug("Mapping created", "short_code", result.ShortCode, "id", result.ID)
	return &result, nil
}

func (r *MappingRepository) Update(ctx context.Context, mapping *domain.URLMapping) (*domain.URLMapping, error) {
	query := `
		UPDATE url_mappings
		SET short_code = $2, original_url = $3, is_active = $4, expires_at = $5,
		    title = $6, description = $7, updated_at = $8
		WHERE id = $1
		RETURNING ` + mappingColumns

	var result domain.URLMapping
	err := r.db.GetContext(ctx, &result, query,
		mapping.ID, mapping.ShortCode, mapping.OriginalURL, mapping.IsActive,
		mapping.ExpiresAt, mapping.Title, mapping.Description, mapping.UpdatedAt)
	if err != nil {
		return nil, r.handlePostgreSQLError(err, "update mapping")
	}

	return &result, nil
}

func (r *MappingRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM url_mappings WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgreSQLError(err, "delete mapping")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrMappingNotFound
	}
	return nil
}

func (r *MappingRepository) FindByID(ctx context.Context, id int64) (*domain.URLMapping, error) {
	var mapping domain.URLMapping
	query := `SELECT ` + mappingColumns + ` FROM url_mappings WHERE id = $1`

	if err := r.db.GetContext(ctx, &mapping, query, id); err != nil {
		return nil, r.handlePostgreSQLError(err, "find mapping by id")
	}
	return &mapping, nil
}

func (r *MappingRepository) FindByShortCode(ctx context.Context, shortCode string) (*domain.URLMapping, error) {
	var mapping domain.URLMapping
	query := `SELECT ` + mappingColumns + ` FROM url_mappings WHERE short_code = $1`

	if err := r.db.GetContext(ctx, &mapping, query, shortCode); err != nil {
		return nil, r.handlePostgreSQLError(err, "find mapping by short code")
	}
	return &mapping, nil
}

func (r *MappingRepository) FindAll(ctx context.Context) ([]*domain.URLMapping, error) {
	var mappings []*domain.URLMapping
	query := `SELECT ` + mappingColumns + ` FROM url_mappings ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &mappings, query); err != nil {
		return nil, r.handlePostgreSQLError(err, "find all mappings")
	}
	return mappings, nil
}

func (r *MappingRepository) FindActive(ctx context.Context) ([]*domain.URLMapping, error) {
	var mappings []*domain.URLMapping
	query := `
		SELECT ` + mappingColumns + ` FROM url_mappings
		WHERE is_active = TRUE AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &mappings, query); err != nil {
		return nil, r.handlePostgreSQLError(err, "find active mappings")
	}
	return mappings, nil
}

func (r *MappingRepository) FindMostClicked(ctx context.Context, limit int) ([]*domain.URLMapping, error) {
	var mappings []*domain.URLMapping
	query := `SELECT ` + mappingColumns + ` FROM url_mappings ORDER BY click_count DESC, id ASC LIMIT $1`

	if err := r.db.SelectContext(ctx, &mappings, query, limit); err != nil {
		return nil, r.handlePostgreSQLError(err, "find most clicked mappings")
	}
	return mappings, nil
}

func (r *MappingRepository) FindExpired(ctx context.Context, now time.Time) ([]*domain.URLMapping, error) {
	var mappings []*domain.URLMapping
	query := `
		SELECT ` + mappingColumns + ` FROM url_mappings
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at < $1`

	if err := r.db.SelectContext(ctx, &mappings, query, now); err != nil {
		return nil, r.handlePostgreSQLError(err, "find expired mappings")
	}
	return mappings, nil
}

func (r *MappingRepository) Exists(ctx context.Context, shortCode string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM url_mappings WHERE short_code = $1)`

	if err := r.db.GetContext(ctx, &exists, query, shortCode); err != nil {
		return false, r.handlePostgreSQLError(err, "check mapping existence")
	}
	return exists, nil
}

// IncrementClicks is a single atomic statement; concurrent redirects for the
// same row never lose an update.
func (r *MappingRepository) IncrementClicks(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE url_mappings SET click_count = click_count + 1 WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgreSQLError(err, "increment clicks")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrMappingNotFound
	}
	return nil
}

// BulkDeactivateExpired sweeps every lapsed row in one statement rather than
// row by row.
func (r *MappingRepository) BulkDeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE url_mappings
		SET is_active = FALSE, updated_at = $1
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, r.handlePostgreSQLError(err, "bulk deactivate expired")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		slog.Debug("Deactivated expired mappings", "count", affected)
	}
	return affected, nil
}

// handlePostgreSQLError converts PostgreSQL-specific errors to domain errors
func (r *MappingRepository) handlePostgreSQLError(err error, operation string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		slog.Error("PostgreSQL error",
			"operation", operation,
			"code", pqErr.Code,
			"message", pqErr.Message,
			"detail", pqErr.Detail,
		)

		switch pqErr.Code {
		case "23505": // unique_violation
			if pqErr.Constraint == "url_mappings_short_code_key" {
				return domain.ErrShortCodeExists
			}
			return fmt.Errorf("unique constraint violation: %s", pqErr.Detail)
		case "23502": // not_null_violation
			return fmt.Errorf("required field missing: %s", pqErr.Column)
		case "23514": // check_violation
			return fmt.Errorf("check constraint violation: %s", pqErr.Detail)
		case "08000", "08003", "08006": // connection errors
			return fmt.Errorf("database connection error: %s", pqErr.Message)
		default:
			return fmt.Errorf("database error [%s]: %s", pqErr.Code, pqErr.Message)
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrMappingNotFound
	}

	return err
}

func (r *MappingRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *MappingRepository) HealthCheck(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database connection is nil")
	}
	return r.db.PingContext(ctx)
}
