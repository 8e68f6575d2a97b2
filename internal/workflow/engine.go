package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finworks/refflow/internal/domain"
	"github.com/finworks/refflow/internal/policy"
	"github.com/finworks/refflow/internal/repository"
)

// AuditRecorder receives one entry per transition attempt worth recording.
// Delivery failures are the recorder's problem (spool and retry); they must
// never surface into the commit path, because a committed business transition
// is not rolled back for an audit delivery fault.
type AuditRecorder interface {
	Record(ctx context.Context, entry domain.AuditEntry)
}

// Notifier is the out-of-scope notification collaborator. Failures are logged
// and dropped; they never unwind a transition.
type Notifier interface {
	Notify(ctx context.Context, actorID string, eventType string, entityID uuid.UUID) error
}

// defaultConflictRetries bounds the transparent re-read-and-retry loop around
// the conditional write before a conflict is surfaced to the caller.
const defaultConflictRetries = 3

// Engine is the maker-checker workflow state machine. It holds no locks and
// no per-entity state; correctness under concurrent callers rests entirely on
// the entity store's conditional write.
type Engine struct {
	store    repository.EntityStore
	audit    AuditRecorder
	policy   *policy.Validator
	notifier Notifier
	now      func() time.Time
	retries  int
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithNotifier attaches the notification collaborator.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithConflictRetries overrides the bounded conflict retry count.
func WithConflictRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.retries = n
		}
	}
}

// NewEngine creates a workflow engine. The policy validator is per-instance;
// there is deliberately no global enforcement toggle.
func NewEngine(store repository.EntityStore, audit AuditRecorder, validator *policy.Validator, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		audit:   audit,
		policy:  validator,
		now:     time.Now,
		retries: defaultConflictRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create registers a new entity in DRAFT at version 1 with the caller as
// maker. The payload's required fields are validated up front.
func (e *Engine) Create(ctx context.Context, actor string, payload domain.Payload) (domain.WorkflowEntity, error) {
	if strings.TrimSpace(actor) == "" {
		return domain.WorkflowEntity{}, fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}
	if payload == nil {
		return domain.WorkflowEntity{}, fmt.Errorf("%w: payload is required", domain.ErrValidation)
	}
	if err := payload.Validate(); err != nil {
		return domain.WorkflowEntity{}, err
	}

	entity := domain.NewWorkflowEntity(actor, payload, e.now().UTC())
	if err := e.store.Insert(ctx, entity); err != nil {
		return domain.WorkflowEntity{}, err
	}

	e.record(ctx, buildEntry(nil, &entity, domain.ActionCreate, actor, nil))
	e.notify(ctx, actor, domain.ActionCreate, entity.ID)
	return entity, nil
}

// Submit moves a DRAFT entity to PENDING_APPROVAL, or resubmits a REJECTED
// one. Only the maker may submit.
func (e *Engine) Submit(ctx context.Context, id uuid.UUID, actor string) (domain.WorkflowEntity, error) {
	return e.transition(ctx, id, actor, request{
		action: func(current domain.WorkflowEntity) domain.Action {
			if current.Status == domain.StatusRejected {
				return domain.ActionResubmit
			}
			return domain.ActionSubmit
		},
		guard: func(current domain.WorkflowEntity, action domain.Action) error {
			if !sameActor(actor, current.MakerID) {
				return fmt.Errorf("%w: only the maker may submit", domain.ErrInvalidTransition)
			}
			return nil
		},
		apply: func(next *domain.WorkflowEntity, now time.Time) {
			next.SubmittedAt = &now
			next.CheckerID = nil
			next.ReviewedAt = nil
			next.ReviewComments = nil
		},
	})
}

// Approve activates a PENDING_APPROVAL entity. The approver becomes the
// checker and must differ from the maker.
func (e *Engine) Approve(ctx context.Context, id uuid.UUID, actor string, comments *string) (domain.WorkflowEntity, error) {
	return e.review(ctx, id, actor, domain.ActionApprove, comments)
}

// Reject returns a PENDING_APPROVAL entity to the maker. Comments are
// mandatory so the maker knows what to fix.
func (e *Engine) Reject(ctx context.Context, id uuid.UUID, actor string, comments string) (domain.WorkflowEntity, error) {
	trimmed := strings.TrimSpace(comments)
	if trimmed == "" {
		return domain.WorkflowEntity{}, fmt.Errorf("%w: comments required", domain.ErrValidation)
	}
	return e.review(ctx, id, actor, domain.ActionReject, &trimmed)
}

func (e *Engine) review(ctx context.Context, id uuid.UUID, actor string, action domain.Action, comments *string) (domain.WorkflowEntity, error) {
	return e.transition(ctx, id, actor, request{
		action:   func(domain.WorkflowEntity) domain.Action { return action },
		comments: comments,
		guard: func(current domain.WorkflowEntity, _ domain.Action) error {
			return e.policy.Check(action, actor, current.MakerID)
		},
		apply: func(next *domain.WorkflowEntity, now time.Time) {
			checker := actor
			next.CheckerID = &checker
			next.ReviewedAt = &now
			next.ReviewComments = comments
		},
	})
}

// Close deactivates an ACTIVE entity. The reason is optional; closure is
// reversible via Reactivate.
func (e *Engine) Close(ctx context.Context, id uuid.UUID, actor string, reason *string) (domain.WorkflowEntity, error) {
	return e.transition(ctx, id, actor, request{
		action:   func(domain.WorkflowEntity) domain.Action { return domain.ActionClose },
		comments: reason,
		apply: func(next *domain.WorkflowEntity, now time.Time) {
			next.ReviewComments = reason
		},
	})
}

// Reactivate returns an INACTIVE entity to ACTIVE. A justification is
// mandatory.
func (e *Engine) Reactivate(ctx context.Context, id uuid.UUID, actor string, justification string) (domain.WorkflowEntity, error) {
	trimmed := strings.TrimSpace(justification)
	if trimmed == "" {
		return domain.WorkflowEntity{}, fmt.Errorf("%w: justification required", domain.ErrValidation)
	}
	return e.transition(ctx, id, actor, request{
		action:   func(domain.WorkflowEntity) domain.Action { return domain.ActionReactivate },
		comments: &trimmed,
		apply: func(next *domain.WorkflowEntity, now time.Time) {
			next.ReviewComments = &trimmed
		},
	})
}

// Update replaces the payload of a DRAFT entity. Only the maker may update,
// and only while the entity is still a draft; once ACTIVE the payload is
// immutable until closed.
func (e *Engine) Update(ctx context.Context, id uuid.UUID, actor string, payload domain.Payload) (domain.WorkflowEntity, error) {
	if payload == nil {
		return domain.WorkflowEntity{}, fmt.Errorf("%w: payload is required", domain.ErrValidation)
	}
	if err := payload.Validate(); err != nil {
		return domain.WorkflowEntity{}, err
	}
	return e.transition(ctx, id, actor, request{
		action: func(domain.WorkflowEntity) domain.Action { return domain.ActionUpdate },
		guard: func(current domain.WorkflowEntity, _ domain.Action) error {
			if !sameActor(actor, current.MakerID) {
				return fmt.Errorf("%w: only the maker may update", domain.ErrInvalidTransition)
			}
			if current.EntityType != payload.Type() {
				return fmt.Errorf("%w: payload type %s does not match entity type %s",
					domain.ErrValidation, payload.Type(), current.EntityType)
			}
			return nil
		},
		apply: func(next *domain.WorkflowEntity, now time.Time) {
			next.Payload = payload.Clone()
		},
	})
}

// Edit reopens a REJECTED entity as a DRAFT, optionally replacing its payload
// in the same step. Only the maker may edit.
func (e *Engine) Edit(ctx context.Context, id uuid.UUID, actor string, payload domain.Payload) (domain.WorkflowEntity, error) {
	if payload != nil {
		if err := payload.Validate(); err != nil {
			return domain.WorkflowEntity{}, err
		}
	}
	return e.transition(ctx, id, actor, request{
		action: func(domain.WorkflowEntity) domain.Action { return domain.ActionEdit },
		guard: func(current domain.WorkflowEntity, _ domain.Action) error {
			if !sameActor(actor, current.MakerID) {
				return fmt.Errorf("%w: only the maker may edit", domain.ErrInvalidTransition)
			}
			if payload != nil && current.EntityType != payload.Type() {
				return fmt.Errorf("%w: payload type %s does not match entity type %s",
					domain.ErrValidation, payload.Type(), current.EntityType)
			}
			return nil
		},
		apply: func(next *domain.WorkflowEntity, now time.Time) {
			if payload != nil {
				next.Payload = payload.Clone()
			}
			next.CheckerID = nil
			next.ReviewedAt = nil
			next.ReviewComments = nil
		},
	})
}

// Override is the emergency approval path. It is only available when the
// policy config enables it, still requires a reviewer distinct from the
// maker, demands a justification, and audits under its own action so every
// use stands out in the trail.
func (e *Engine) Override(ctx context.Context, id uuid.UUID, actor string, justification string) (domain.WorkflowEntity, error) {
	if !e.policy.OverrideAllowed() {
		return domain.WorkflowEntity{}, fmt.Errorf("%w: emergency override is not enabled", domain.ErrPolicyViolation)
	}
	trimmed := strings.TrimSpace(justification)
	if trimmed == "" {
		return domain.WorkflowEntity{}, fmt.Errorf("%w: override justification required", domain.ErrValidation)
	}
	return e.transition(ctx, id, actor, request{
		action:   func(domain.WorkflowEntity) domain.Action { return domain.ActionOverrideApprove },
		comments: &trimmed,
		guard: func(current domain.WorkflowEntity, _ domain.Action) error {
			return e.policy.Check(domain.ActionOverrideApprove, actor, current.MakerID)
		},
		apply: func(next *domain.WorkflowEntity, now time.Time) {
			checker := actor
			next.CheckerID = &checker
			next.ReviewedAt = &now
			next.ReviewComments = &trimmed
		},
	})
}

// Get loads an entity by id.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (domain.WorkflowEntity, error) {
	return e.store.Get(ctx, id)
}

// request describes one transition attempt: which action it is from the
// current status, an optional extra guard, and the state mutation to apply on
// top of the status change and version bump.
type request struct {
	action   func(current domain.WorkflowEntity) domain.Action
	guard    func(current domain.WorkflowEntity, action domain.Action) error
	apply    func(next *domain.WorkflowEntity, now time.Time)
	comments *string
}

// transition runs the commit path: load, resolve the action against the
// transition table, guard, conditional write, then audit and notify. On a
// version conflict it re-reads and retries a bounded number of times; the
// re-read may legitimately discover the action is no longer valid, which
// surfaces as an invalid transition rather than a conflict.
func (e *Engine) transition(ctx context.Context, id uuid.UUID, actor string, req request) (domain.WorkflowEntity, error) {
	if strings.TrimSpace(actor) == "" {
		return domain.WorkflowEntity{}, fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}

	var lastErr error
	for attempt := 0; attempt <= e.retries; attempt++ {
		current, err := e.store.Get(ctx, id)
		if err != nil {
			return domain.WorkflowEntity{}, err
		}

		action := req.action(current)
		to, err := nextStatus(current.Status, action)
		if err != nil {
			return domain.WorkflowEntity{}, err
		}

		if req.guard != nil {
			if err := req.guard(current, action); err != nil {
				if errors.Is(err, domain.ErrPolicyViolation) {
					// An attempted self-review is itself auditable even though
					// the entity is untouched.
					e.record(ctx, failedEntry(current, action, actor, req.comments, e.now().UTC()))
				}
				return domain.WorkflowEntity{}, err
			}
		}

		now := e.now().UTC()
		next := current.Clone()
		next.Status = to
		next.Version = current.Version + 1
		next.UpdatedAt = now
		if req.apply != nil {
			req.apply(&next, now)
		}

		err = e.store.ConditionalPut(ctx, current.Version, next)
		if err != nil {
			if errors.Is(err, domain.ErrConcurrencyConflict) {
				lastErr = err
				continue
			}
			return domain.WorkflowEntity{}, err
		}

		e.record(ctx, buildEntry(&current, &next, action, actor, req.comments))
		e.notify(ctx, actor, action, id)
		return next, nil
	}
	return domain.WorkflowEntity{}, lastErr
}

func (e *Engine) record(ctx context.Context, entry domain.AuditEntry) {
	if e.audit != nil {
		e.audit.Record(ctx, entry)
	}
}

func (e *Engine) notify(ctx context.Context, actor string, action domain.Action, id uuid.UUID) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, actor, string(action), id); err != nil {
		log.Printf("[NOTIFY] delivery failed for %s on %s: %v", action, id, err)
	}
}

// buildEntry assembles the single audit entry for a committed transition.
// The audit id is derived from the entity id and the new version, so retried
// delivery cannot duplicate the record.
func buildEntry(before, after *domain.WorkflowEntity, action domain.Action, actor string, comments *string) domain.AuditEntry {
	var statusBefore domain.Status
	if before != nil {
		statusBefore = before.Status
	}
	return domain.AuditEntry{
		AuditID:      domain.CommittedAuditID(after.ID, after.Version),
		EntityType:   after.EntityType,
		EntityID:     after.ID,
		Action:       action,
		ActorID:      actor,
		Timestamp:    after.UpdatedAt,
		StatusBefore: statusBefore,
		StatusAfter:  after.Status,
		Changes:      domain.Diff(before, after),
		Comments:     comments,
		Outcome:      domain.AuditOutcomeCommitted,
	}
}

// failedEntry records a denied review attempt. The entity is unchanged, so
// the id is random rather than version-derived; repeated attempts each leave
// their own trace.
func failedEntry(current domain.WorkflowEntity, action domain.Action, actor string, comments *string, now time.Time) domain.AuditEntry {
	return domain.AuditEntry{
		AuditID:      uuid.New(),
		EntityType:   current.EntityType,
		EntityID:     current.ID,
		Action:       action,
		ActorID:      actor,
		Timestamp:    now,
		StatusBefore: current.Status,
		StatusAfter:  current.Status,
		Changes:      []domain.FieldChange{},
		Comments:     comments,
		Outcome:      domain.AuditOutcomeFailed,
	}
}

func sameActor(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
