package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avolpi/heron/internal/domain"
)

type MappingRepository struct {
	byID   map[int64]*domain.URLMapping
	byCode map[string]int64
	nextID int64
	mu     sync.RWMutex
}

func NewMappingRepository() *MappingRepository {
	return &MappingRepository{
		byID:   make(map[int64]*domain.URLMapping),
		byCode: make(map[string]int64),
		nextID: 1,
	}
}

func (r *MappingRepository) Create(_ context.Context, mapping *domain.URLMapping) (*domain.URLMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byCode[mapping.ShortCode]; exists {
		return nil, domain.ErrShortCodeExists
	}

	created := *mapping
	created.ID = r.nextID
	r.nextID++

	r.byID[created.ID] = &created
	r.byCode[created.ShortCode] = created.ID
	return copyMapping(&created), nil
}

func (r *MappingRepository) Update(_ context.Context, mapping *domain.URLMapping) (*domain.URLMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[mapping.ID]
	if !ok {
		return nil, domain.ErrMappingNotFound
	}
	if id, taken := r.byCode[mapping.ShortCode]; taken && id != mapping.ID {
		return nil, domain.ErrShortCodeExists
	}

	delete(r.byCode, existing.ShortCode)
	updated := *mapping
	updated.ClickCount = existing.ClickCount
	r.byID[updated.ID] = &updated
	r.byCode[updated.ShortCode] = updated.ID
	return copyMapping(&updated), nil
}

func (r *MappingRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mapping, ok := r.byID[id]
	if !ok {
		return domain.ErrMappingNotFound
	}
	delete(r.byCode, mapping.ShortCode)
	delete(r.byID, id)
	return nil
}

func (r *MappingRepository) FindByID(_ context.Context, id int64) (*domain.URLMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mapping, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrMappingNotFound
	}
	return copyMapping(mapping), nil
}

func (r *MappingRepository) FindByShortCode(_ context.Context, shortCode string) (*domain.URLMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[shortCode]
	if !ok {
		return nil, domain.ErrMappingNotFound
	}
	return copyMapping(r.byID[id]), nil
}

func (r *MappingRepository) FindAll(_ context.Context) ([]*domain.URLMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mappings := make([]*domain.URLMapping, 0, len(r.byID))
	for _, m := range r.byID {
		mappings = append(mappings, copyMapping(m))
	}
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].CreatedAt.After(mappings[j].CreatedAt)
	})
	return mappings, nil
}

func (r *MappingRepository) FindActive(_ context.Context) ([]*domain.URLMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	var mappings []*domain.URLMapping
	for _, m := range r.byID {
		if m.Redirectable(now) {
			mappings = append(mappings, copyMapping(m))
		}
	}
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].CreatedAt.After(mappings[j].CreatedAt)
	})
	return mappings, nil
}

func (r *MappingRepository) FindMostClicked(_ context.Context, limit int) ([]*domain.URLMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mappings := make([]*domain.URLMapping, 0, len(r.byID))
	for _, m := range r.byID {
		mappings = append(mappings, copyMapping(m))
	}
	sort.Slice(mappings, func(i, j int) bool {
		if mappings[i].ClickCount != mappings[j].ClickCount {
			return mappings[i].ClickCount > mappings[j].ClickCount
		}
		return mappings[i].ID < mappings[j].ID
	})
	if len(mappings) > limit {
		mappings = mappings[:limit]
	}
	return mappings, nil
}

func (r *MappingRepository) FindExpired(_ context.Context, now time.Time) ([]*domain.URLMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var mappings []*domain.URLMapping
	for _, m := range r.byID {
		if m.IsActive && m.Expired(now) {
			mappings = append(mappings, copyMapping(m))
		}
	}
	return mappings, nil
}

func (r *MappingRepository) Exists(_ context.Context, shortCode string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.byCode[shortCode]
	return exists, nil
}

func (r *MappingRepository) IncrementClicks(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mapping, ok := r.byID[id]
	if !ok {
		return domain.ErrMappingNotFound
	}
	mapping.ClickCount++
	return nil
}

func (r *MappingRepository) BulkDeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, m := range r.byID {
		if m.IsActive && m.Expired(now) {
			m.IsActive = false
			m.UpdatedAt = now
			count++
		}
	}
	return count, nil
}

func (r *MappingRepository) Close() error {
	return nil
}

func (r *MappingRepository) HealthCheck(_ context.Context) error {
	return nil
}

func copyMapping(m *domain.URLMapping) *domain.URLMapping {
	c := *m
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}
