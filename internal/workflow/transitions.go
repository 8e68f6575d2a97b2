package workflow

import (
	"fmt"

	"github.com/finworks/refflow/internal/domain"
)

// transitionTable is the single source of truth for the workflow state
// machine. A (status, action) pair absent from this table is an invalid
// transition, full stop; no other code path decides reachability.
//
//	DRAFT            --SUBMIT-->           PENDING_APPROVAL
//	DRAFT            --UPDATE-->           DRAFT
//	PENDING_APPROVAL --APPROVE-->          ACTIVE
//	PENDING_APPROVAL --OVERRIDE_APPROVE--> ACTIVE
//	PENDING_APPROVAL --REJECT-->           REJECTED
//	REJECTED         --EDIT-->             DRAFT
//	REJECTED         --RESUBMIT-->         PENDING_APPROVAL
//	ACTIVE           --CLOSE-->            INACTIVE
//	INACTIVE         --REACTIVATE-->       ACTIVE
var transitionTable = map[domain.Status]map[domain.Action]domain.Status{
	domain.StatusDraft: {
		domain.ActionSubmit: domain.StatusPendingApproval,
		domain.ActionUpdate: domain.StatusDraft,
	},
	domain.StatusPendingApproval: {
		domain.ActionApprove:         domain.StatusActive,
		domain.ActionOverrideApprove: domain.StatusActive,
		domain.ActionReject:          domain.StatusRejected,
	},
	domain.StatusRejected: {
		domain.ActionEdit:     domain.StatusDraft,
		domain.ActionResubmit: domain.StatusPendingApproval,
	},
	domain.StatusActive: {
		domain.ActionClose: domain.StatusInactive,
	},
	domain.StatusInactive: {
		domain.ActionReactivate: domain.StatusActive,
	},
}

// nextStatus resolves the target status for an action from the given status.
func nextStatus(from domain.Status, action domain.Action) (domain.Status, error) {
	if to, ok := transitionTable[from][action]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s is not allowed from %s", domain.ErrInvalidTransition, action, from)
}
