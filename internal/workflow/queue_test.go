package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/finworks/refflow/internal/domain"
	"github.com/finworks/refflow/internal/policy"
	"github.com/finworks/refflow/internal/repository"
)

func seedPending(t *testing.T, store *repository.MemoryEntityStore, id uuid.UUID, payload domain.Payload, submittedAt *time.Time) {
	t.Helper()
	entity := domain.WorkflowEntity{
		ID:          id,
		EntityType:  payload.Type(),
		Status:      domain.StatusPendingApproval,
		Version:     2,
		MakerID:     "alice",
		SubmittedAt: submittedAt,
		Payload:     payload,
		CreatedAt:   time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	if err := store.Insert(context.Background(), entity); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}
}

func ts(hour int) *time.Time {
	v := time.Date(2024, 3, 1, hour, 0, 0, 0, time.UTC)
	return &v
}

func TestPending_OrderedBySubmissionTime(t *testing.T) {
	store := repository.NewMemoryEntityStore()
	queue := NewApprovalQueue(store)

	late := uuid.New()
	early := uuid.New()
	middle := uuid.New()
	seedPending(t, store, late, domain.Portfolio{Code: "PF3", Name: "Late", BaseCurrency: "USD"}, ts(12))
	seedPending(t, store, early, domain.Portfolio{Code: "PF1", Name: "Early", BaseCurrency: "USD"}, ts(9))
	seedPending(t, store, middle, domain.Security{Symbol: "ACME", Name: "Acme Corp", Currency: "USD"}, ts(10))

	summaries, err := queue.Pending(context.Background(), PendingFilter{})
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
	got := []uuid.UUID{summaries[0].ID, summaries[1].ID, summaries[2].ID}
	want := []uuid.UUID{early, middle, late}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestPending_TieBrokenByID(t *testing.T) {
	store := repository.NewMemoryEntityStore()
	queue := NewApprovalQueue(store)

	a := uuid.New()
	b := uuid.New()
	when := ts(9)
	seedPending(t, store, a, domain.Portfolio{Code: "PFA", Name: "A", BaseCurrency: "USD"}, when)
	seedPending(t, store, b, domain.Portfolio{Code: "PFB", Name: "B", BaseCurrency: "USD"}, when)

	summaries, err := queue.Pending(context.Background(), PendingFilter{})
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ID.String() > summaries[1].ID.String() {
		t.Fatalf("tie not broken by id: %s before %s", summaries[0].ID, summaries[1].ID)
	}
}

func TestPending_FilterByEntityType(t *testing.T) {
	store := repository.NewMemoryEntityStore()
	queue := NewApprovalQueue(store)

	seedPending(t, store, uuid.New(), domain.Portfolio{Code: "PF1", Name: "P", BaseCurrency: "USD"}, ts(9))
	seedPending(t, store, uuid.New(), domain.Security{Symbol: "ACME", Name: "Acme Corp", Currency: "USD"}, ts(10))

	entityType := domain.EntityTypeSecurity
	summaries, err := queue.Pending(context.Background(), PendingFilter{EntityType: &entityType})
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(summaries) != 1 || summaries[0].EntityType != domain.EntityTypeSecurity {
		t.Fatalf("expected only the security, got %+v", summaries)
	}
	if summaries[0].Reference != "ACME" {
		t.Fatalf("expected reference ACME, got %s", summaries[0].Reference)
	}
}

func TestPending_FilterBySubmittedBefore(t *testing.T) {
	store := repository.NewMemoryEntityStore()
	queue := NewApprovalQueue(store)

	old := uuid.New()
	seedPending(t, store, old, domain.Portfolio{Code: "PF1", Name: "Old", BaseCurrency: "USD"}, ts(8))
	seedPending(t, store, uuid.New(), domain.Portfolio{Code: "PF2", Name: "New", BaseCurrency: "USD"}, ts(14))

	cutoff := ts(12)
	summaries, err := queue.Pending(context.Background(), PendingFilter{SubmittedBefore: cutoff})
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != old {
		t.Fatalf("expected only the old submission, got %+v", summaries)
	}
}

func TestPending_ReflectsStoreImmediately(t *testing.T) {
	engine, store, _ := newTestEngine(t, policy.DefaultConfig())
	queue := NewApprovalQueue(store)

	entity, _ := engine.Create(context.Background(), "alice", portfolioPayload())
	engine.Submit(context.Background(), entity.ID, "alice")

	summaries, err := queue.Pending(context.Background(), PendingFilter{})
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 pending entity, got %d", len(summaries))
	}

	engine.Approve(context.Background(), entity.ID, "bob", nil)
	summaries, _ = queue.Pending(context.Background(), PendingFilter{})
	if len(summaries) != 0 {
		t.Fatalf("approved entity still listed: %+v", summaries)
	}
}
