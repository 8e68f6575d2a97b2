// Package policy implements the segregation-of-duties rule: the actor who
// reviews a change must differ from the actor who made it.
package policy

import (
	"fmt"
	"strings"

	"github.com/finworks/refflow/internal/domain"
)

// Config controls policy enforcement for one engine instance. It is passed
// into the engine constructor; there is no process-wide toggle, so production
// and test configurations cannot share state by accident.
type Config struct {
	// EnforceSoD applies the maker/checker rule to APPROVE and REJECT.
	// Disabling it is only meant for isolated test instances.
	EnforceSoD bool

	// AllowOverride enables the separately-audited emergency override path.
	// Overrides still require a reviewer distinct from the maker.
	AllowOverride bool
}

// DefaultConfig is full enforcement with no override path.
func DefaultConfig() Config {
	return Config{EnforceSoD: true}
}

// Validator checks actor eligibility for review actions. It is a pure
// predicate over the recorded maker and the requesting actor; role and group
// membership are the authorization collaborator's problem, not ours.
type Validator struct {
	config Config
}

// NewValidator creates a validator with the given enforcement config.
func NewValidator(config Config) *Validator {
	return &Validator{config: config}
}

// Check returns nil when actor may perform action on an entity made by maker.
// For APPROVE, REJECT and OVERRIDE_APPROVE the actor must differ from the
// maker; every other action is outside this rule's remit.
func (v *Validator) Check(action domain.Action, actorID, makerID string) error {
	switch action {
	case domain.ActionApprove, domain.ActionReject:
		if !v.config.EnforceSoD {
			return nil
		}
	case domain.ActionOverrideApprove:
		// The override path never waives maker/checker separation.
	default:
		return nil
	}
	if sameActor(actorID, makerID) {
		return fmt.Errorf("%w: actor cannot review own submission", domain.ErrPolicyViolation)
	}
	return nil
}

// OverrideAllowed reports whether the emergency override path is enabled.
func (v *Validator) OverrideAllowed() bool {
	return v.config.AllowOverride
}

func sameActor(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
