package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"

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
		VALUES (:short_code, :original_url, :is_active, :expires_at, :click_count, :title, :description, :created_at, :updated_at)
	`

	result, err := r.db.NamedExecContext(ctx, query, mapping)
	if err != nil {
		return nil, translateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *MappingRepository) Update(ctx context.Context, mapping *domain.URLMapping) (*domain.URLMapping, error) {
	query := `
		UPDATE url_mappings
		SET short_code = :short_code, original_url = :original_url, is_active = :is_active,
		    expires_at = :expires_at, title = :title, description = :description, updated_at = :updated_at
		WHERE id = :id
	`

	result, err := r.db.NamedExecContext(ctx, query, mapping)
	if err != nil {
		return nil, translateError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, domain.ErrMappingNotFound
	}
	return r.FindByID(ctx, mapping.ID)
}

func (r *MappingRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM url_mappings WHERE id = $1`, id)
	if err != nil {
		return err
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
		return nil, translateError(err)
	}
	return &mapping, nil
}

func (r *MappingRepository) FindByShortCode(ctx context.Context, shortCode string) (*domain.URLMapping, error) {
	var mapping domain.URLMapping
	query := `SELECT ` + mappingColumns + ` FROM url_mappings WHERE short_code = $1`

	if err := r.db.GetContext(ctx, &mapping, query, shortCode); err != nil {
		return nil, translateError(err)
	}
	return &mapping, nil
}

func (r *MappingRepository) FindAll(ctx context.Context) ([]*domain.URLMapping, error) {
	var mappings []*domain.URLMapping
	query := `SELECT ` + mappingColumns + ` FROM url_mappings ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &mappings, query); err != nil {
		return nil, err
	}
	return mappings, nil
}

func (r *MappingRepository) FindActive(ctx context.Context) ([]*domain.URLMapping, error) {
	var mappings []*domain.URLMapping
	query := `
		SELECT ` + mappingColumns + ` FROM url_mappings
		WHERE is_active = TRUE AND (expires_at IS NULL OR expires_at > $1)
		ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &mappings, query, time.Now()); err != nil {
		return nil, err
	}
	return mappings, nil
}

func (r *MappingRepository) FindMostClicked(ctx context.Context, limit int) ([]*domain.URLMapping, error) {
	var mappings []*domain.URLMapping
	query := `SELECT ` + mappingColumns + ` FROM url_mappings ORDER BY click_count DESC, id ASC LIMIT $1`

	if err := r.db.SelectContext(ctx, &mappings, query, limit); err != nil {
		return nil, err
	}
	return mappings, nil
}

func (r *MappingRepository) FindExpired(ctx context.Context, now time.Time) ([]*domain.URLMapping, error) {
	var mappings []*domain.URLMapping
	query := `
		SELECT ` + mappingColumns + ` FROM url_mappings
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at < $1`

	if err := r.db.SelectContext(ctx, &mappings, query, now); err != nil {
		return nil, err
	}
	return mappings, nil
}

func (r *MappingRepository) Exists(ctx context.Context, shortCode string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM url_mappings WHERE short_code = $1)`

	if err := r.db.GetContext(ctx, &exists, query, shortCode); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *MappingRepository) IncrementClicks(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE url_mappings SET click_count = click_count + 1 WHERE id = $1`, id)
	if err != nil {
		return err
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

func (r *MappingRepository) BulkDeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE url_mappings
		SET is_active = FALSE, updated_at = $1
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// translateError maps driver errors to domain errors.
func translateError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrMappingNotFound
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return domain.ErrShortCodeExists
		}
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
