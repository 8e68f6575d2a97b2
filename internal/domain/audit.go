package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Audit outcomes. Committed transitions and denied review attempts are both
// recorded; only the former change the entity.
const (
	AuditOutcomeCommitted = "COMMITTED"
	AuditOutcomeFailed    = "FAILED"
)

// auditIDNamespace seeds deterministic audit ids. Changing it would re-key
// every replayed audit id, so it is fixed forever.
var auditIDNamespace = uuid.MustParse("9a2c41e0-7f33-45a7-8d6b-1d24c0a5f9b1")

// FieldChange is one audited field mutation. Changes are serialized as an
// ordered list of triples, never a map, so audit replay is deterministic.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// AuditEntry is one immutable audit record. Exactly one COMMITTED entry exists
// per accepted transition; entries are never mutated or deleted.
type AuditEntry struct {
	AuditID      uuid.UUID     `json:"audit_id"`
	EntityType   EntityType    `json:"entity_type"`
	EntityID     uuid.UUID     `json:"entity_id"`
	Action       Action        `json:"action"`
	ActorID      string        `json:"actor_id"`
	Timestamp    time.Time     `json:"timestamp"`
	StatusBefore Status        `json:"status_before"`
	StatusAfter  Status        `json:"status_after"`
	Changes      []FieldChange `json:"changes"`
	Comments     *string       `json:"comments,omitempty"`
	Outcome      string        `json:"outcome"`
}

// CommittedAuditID derives the audit id for an accepted transition from the
// entity id and the version the transition produced. A retried append of the
// same logical transition therefore reuses the same id instead of creating a
// duplicate entry.
func CommittedAuditID(entityID uuid.UUID, version int64) uuid.UUID {
	return uuid.NewSHA1(auditIDNamespace, []byte(fmt.Sprintf("%s:%d", entityID, version)))
}
