package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/finworks/refflow/internal/domain"
	"github.com/finworks/refflow/internal/repository"
)

// ApprovalQueue lists entities awaiting checker action. It is a pure
// projection over the entity store, rebuilt on every read, so it can never
// drift from the store it reads.
type ApprovalQueue struct {
	store repository.EntityStore
}

// NewApprovalQueue creates a queue over the given store.
func NewApprovalQueue(store repository.EntityStore) *ApprovalQueue {
	return &ApprovalQueue{store: store}
}

// PendingFilter narrows a queue listing. Both fields are optional.
type PendingFilter struct {
	EntityType      *domain.EntityType
	SubmittedBefore *time.Time
}

// Pending returns the summaries of all PENDING_APPROVAL entities, oldest
// submission first, ties broken by entity id so the ordering is total.
func (q *ApprovalQueue) Pending(ctx context.Context, filter PendingFilter) ([]domain.Summary, error) {
	entities, err := q.store.ListByStatus(ctx, domain.StatusPendingApproval, filter.EntityType)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.Summary, 0, len(entities))
	for _, entity := range entities {
		if filter.SubmittedBefore != nil {
			if entity.SubmittedAt == nil || !entity.SubmittedAt.Before(*filter.SubmittedBefore) {
				continue
			}
		}
		summaries = append(summaries, domain.Summarize(entity))
	}

	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		switch {
		case a.SubmittedAt == nil && b.SubmittedAt == nil:
			return a.ID.String() < b.ID.String()
		case a.SubmittedAt == nil:
			return false
		case b.SubmittedAt == nil:
			return true
		case a.SubmittedAt.Equal(*b.SubmittedAt):
			return a.ID.String() < b.ID.String()
		default:
			return a.SubmittedAt.Before(*b.SubmittedAt)
		}
	})
	return summaries, nil
}
