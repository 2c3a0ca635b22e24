// Package storage persists canonical item records.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/lehigh-university-libraries/shelfscan/internal/config"
	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

// ErrNotFound is returned by Get when no record exists for an identifier.
var ErrNotFound = errors.New("record not found")

// Store is the record store consumed by the pipeline.
type Store interface {
	Get(ctx context.Context, identifier string) (*models.Record, error)
	Put(ctx context.Context, identifier string, r *models.Record) error
	List(ctx context.Context) ([]*models.Record, error)
	Close() error
}

// Open returns the configured backend.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

// MemoryStore keeps records in process. Records are copied on the way in
// and out so callers never share state with the store.
type MemoryStore struct {
	records map[string]*models.Record
	mu      sync.RWMutex
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*models.Record),
	}
}

func (s *MemoryStore) Get(ctx context.Context, identifier string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, exists := s.records[identifier]
	if !exists {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, identifier string, r *models.Record) error {
	if r == nil {
		return fmt.Errorf("nil record for %s", identifier)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[identifier] = r.Clone()
	return nil
}

// List returns every record ordered by identifier.
func (s *MemoryStore) List(ctx context.Context) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Record, 0, len(s.records))
	for _, r := range s.records {
		result = append(result, r.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Identifier < result[j].Identifier })
	return result, nil
}

func (s *MemoryStore) Close() error { return nil }
