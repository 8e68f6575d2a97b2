package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/finworks/refflow/internal/domain"
)

// EntityStore is the durable home of workflow entities. The only write paths
// are Insert for brand-new DRAFT entities and ConditionalPut, which commits a
// transition if and only if the stored version still matches the version the
// caller read. A stale version is rejected with domain.ErrConcurrencyConflict,
// never merged.
type EntityStore interface {
	Insert(ctx context.Context, entity domain.WorkflowEntity) error
	Get(ctx context.Context, id uuid.UUID) (domain.WorkflowEntity, error)
	// ConditionalPut persists next, whose Version must equal expectedVersion+1.
	ConditionalPut(ctx context.Context, expectedVersion int64, next domain.WorkflowEntity) error
	// ListByStatus returns all entities in the given status, optionally
	// narrowed to one entity type. Used by the approval queue projection.
	ListByStatus(ctx context.Context, status domain.Status, entityType *domain.EntityType) ([]domain.WorkflowEntity, error)
}

// AuditSink is the append-only audit trail. There is no update or delete
// method, here or on any implementation; appending an entry whose audit id
// already exists is a no-op so redelivery is idempotent.
type AuditSink interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	// ByEntity returns the full trail for one entity, timestamp ascending.
	ByEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) ([]domain.AuditEntry, error)
	// ByActor returns everything an actor did since the given time, timestamp
	// ascending.
	ByActor(ctx context.Context, actorID string, since time.Time) ([]domain.AuditEntry, error)
	// Recent returns the latest entries across all entities, newest first.
	Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}
