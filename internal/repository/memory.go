package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finworks/refflow/internal/domain"
)

// MemoryEntityStore is an in-memory EntityStore used by tests and demo mode.
// Compare-and-swap is serialized by the mutex, which gives the same
// at-most-one-winner behaviour the SQL implementation gets from a conditional
// UPDATE.
type MemoryEntityStore struct {
	mu       sync.RWMutex
	entities map[uuid.UUID]domain.WorkflowEntity
}

// NewMemoryEntityStore creates an empty in-memory store.
func NewMemoryEntityStore() *MemoryEntityStore {
	return &MemoryEntityStore{entities: make(map[uuid.UUID]domain.WorkflowEntity)}
}

func (s *MemoryEntityStore) Insert(ctx context.Context, entity domain.WorkflowEntity) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entities[entity.ID]; exists {
		return fmt.Errorf("%w: entity %s already exists", domain.ErrPersistence, entity.ID)
	}
	s.entities[entity.ID] = entity.Clone()
	return nil
}

func (s *MemoryEntityStore) Get(ctx context.Context, id uuid.UUID) (domain.WorkflowEntity, error) {
	select {
	case <-ctx.Done():
		return domain.WorkflowEntity{}, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entity, ok := s.entities[id]
	if !ok {
		return domain.WorkflowEntity{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return entity.Clone(), nil
}

func (s *MemoryEntityStore) ConditionalPut(ctx context.Context, expectedVersion int64, next domain.WorkflowEntity) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entities[next.ID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, next.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: entity %s is at version %d, expected %d",
			domain.ErrConcurrencyConflict, next.ID, current.Version, expectedVersion)
	}
	s.entities[next.ID] = next.Clone()
	return nil
}

func (s *MemoryEntityStore) ListByStatus(ctx context.Context, status domain.Status, entityType *domain.EntityType) ([]domain.WorkflowEntity, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.WorkflowEntity
	for _, entity := range s.entities {
		if entity.Status != status {
			continue
		}
		if entityType != nil && entity.EntityType != *entityType {
			continue
		}
		result = append(result, entity.Clone())
	}
	return result, nil
}

// MemoryAuditSink is an in-memory append-only AuditSink. Entries can only be
// appended and read; duplicate audit ids are dropped the same way the SQL
// sink's ON CONFLICT DO NOTHING drops them.
type MemoryAuditSink struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	byID    map[uuid.UUID]bool
}

// NewMemoryAuditSink creates an empty in-memory sink.
func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{byID: make(map[uuid.UUID]bool)}
}

func (s *MemoryAuditSink) Append(ctx context.Context, entry domain.AuditEntry) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byID[entry.AuditID] {
		return nil
	}
	s.byID[entry.AuditID] = true
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryAuditSink) ByEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) ([]domain.AuditEntry, error) {
	return s.filter(ctx, func(e domain.AuditEntry) bool {
		return e.EntityType == entityType && e.EntityID == entityID
	})
}

func (s *MemoryAuditSink) ByActor(ctx context.Context, actorID string, since time.Time) ([]domain.AuditEntry, error) {
	return s.filter(ctx, func(e domain.AuditEntry) bool {
		return e.ActorID == actorID && !e.Timestamp.Before(since)
	})
}

func (s *MemoryAuditSink) Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	all, err := s.filter(ctx, func(domain.AuditEntry) bool { return true })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryAuditSink) filter(ctx context.Context, keep func(domain.AuditEntry) bool) ([]domain.AuditEntry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.AuditEntry
	for _, entry := range s.entries {
		if keep(entry) {
			result = append(result, entry)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}
