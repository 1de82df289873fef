package cache

import (
	"context"
	"time"
)

// NoOpStore is a no-operation cache implementation. Used when caching is
// disabled: every Get is a miss and the engine falls back to store reads.
type NoOpStore struct{}

func NewNoOpStore() *NoOpStore {
	return &NoOpStore{}
}

func (s *NoOpStore) Get(_ context.Context, _ string) ([]byte, error) {
	// Always return cache miss
	return nil, nil
}

func (s *NoOpStore) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	// Do nothing
	return nil
}

func (s *NoOpStore) Delete(_ context.Context, _ string) (bool, error) {
	// Nothing ever exists
	return false, nil
}

func (s *NoOpStore) Ping(_ context.Context) error {
	// Always available
	return nil
}
