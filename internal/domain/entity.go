package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the workflow state of an entity. The transition table in the
// workflow package is the single source of truth for which statuses are
// reachable from which; nothing else in the repo switches on raw status
// strings.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusActive          Status = "ACTIVE"
	StatusRejected        Status = "REJECTED"
	StatusInactive        Status = "INACTIVE"
)

// Valid reports whether s is one of the defined workflow statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusActive, StatusRejected, StatusInactive:
		return true
	}
	return false
}

// Action is a requested workflow transition.
type Action string

const (
	ActionCreate          Action = "CREATE"
	ActionSubmit          Action = "SUBMIT"
	ActionApprove         Action = "APPROVE"
	ActionReject          Action = "REJECT"
	ActionEdit            Action = "EDIT"
	ActionResubmit        Action = "RESUBMIT"
	ActionClose           Action = "CLOSE"
	ActionReactivate      Action = "REACTIVATE"
	ActionUpdate          Action = "UPDATE"
	ActionOverrideApprove Action = "OVERRIDE_APPROVE"
)

// WorkflowEntity is one lifecycle-managed reference-data record. All entity
// types (portfolio, security, field definition) share this shape; the
// type-specific data lives in Payload and is opaque to the workflow engine
// except when the differ flattens it for audit.
type WorkflowEntity struct {
	ID             uuid.UUID  `json:"id"`
	EntityType     EntityType `json:"entity_type"`
	Status         Status     `json:"status"`
	Version        int64      `json:"version"`
	MakerID        string     `json:"maker_id"`
	CheckerID      *string    `json:"checker_id,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	ReviewComments *string    `json:"review_comments,omitempty"`
	Payload        Payload    `json:"payload"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewWorkflowEntity creates a DRAFT entity at version 1 owned by the maker.
func NewWorkflowEntity(maker string, payload Payload, now time.Time) WorkflowEntity {
	return WorkflowEntity{
		ID:         uuid.New(),
		EntityType: payload.Type(),
		Status:     StatusDraft,
		Version:    1,
		MakerID:    maker,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy safe to mutate while the original is still being
// read by a concurrent caller.
func (e WorkflowEntity) Clone() WorkflowEntity {
	out := e
	if e.CheckerID != nil {
		v := *e.CheckerID
		out.CheckerID = &v
	}
	if e.SubmittedAt != nil {
		v := *e.SubmittedAt
		out.SubmittedAt = &v
	}
	if e.ReviewedAt != nil {
		v := *e.ReviewedAt
		out.ReviewedAt = &v
	}
	if e.ReviewComments != nil {
		v := *e.ReviewComments
		out.ReviewComments = &v
	}
	if e.Payload != nil {
		out.Payload = e.Payload.Clone()
	}
	return out
}

// Summary is the approval-queue projection of an entity: enough to render a
// review list without loading payloads.
type Summary struct {
	ID          uuid.UUID  `json:"id"`
	EntityType  EntityType `json:"entity_type"`
	Status      Status     `json:"status"`
	Version     int64      `json:"version"`
	MakerID     string     `json:"maker_id"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	Reference   string     `json:"reference"`
}

// Summarize projects an entity onto its queue summary.
func Summarize(e WorkflowEntity) Summary {
	s := Summary{
		ID:          e.ID,
		EntityType:  e.EntityType,
		Status:      e.Status,
		Version:     e.Version,
		MakerID:     e.MakerID,
		SubmittedAt: e.SubmittedAt,
	}
	if e.Payload != nil {
		s.Reference = e.Payload.Reference()
	}
	return s
}
