package policy

import (
	"errors"
	"testing"

	"github.com/finworks/refflow/internal/domain"
)

func TestCheck_SelfReviewDenied(t *testing.T) {
	v := NewValidator(DefaultConfig())

	for _, action := range []domain.Action{domain.ActionApprove, domain.ActionReject} {
		if err := v.Check(action, "alice", "alice"); !errors.Is(err, domain.ErrPolicyViolation) {
			t.Fatalf("%s: expected policy violation for self-review, got %v", action, err)
		}
	}
}

func TestCheck_DistinctReviewerAllowed(t *testing.T) {
	v := NewValidator(DefaultConfig())

	if err := v.Check(domain.ActionApprove, "bob", "alice"); err != nil {
		t.Fatalf("unexpected error for distinct reviewer: %v", err)
	}
}

func TestCheck_IgnoresCaseAndWhitespace(t *testing.T) {
	v := NewValidator(DefaultConfig())

	if err := v.Check(domain.ActionApprove, " Alice ", "alice"); !errors.Is(err, domain.ErrPolicyViolation) {
		t.Fatalf("expected policy violation for same actor with different casing, got %v", err)
	}
}

func TestCheck_NonReviewActionsUnconstrained(t *testing.T) {
	v := NewValidator(DefaultConfig())

	if err := v.Check(domain.ActionSubmit, "alice", "alice"); err != nil {
		t.Fatalf("submit by maker must be allowed: %v", err)
	}
}

func TestCheck_EnforcementDisabled(t *testing.T) {
	v := NewValidator(Config{EnforceSoD: false})

	if err := v.Check(domain.ActionApprove, "alice", "alice"); err != nil {
		t.Fatalf("expected no error with enforcement disabled, got %v", err)
	}
}

func TestCheck_OverrideNeverWaivesSeparation(t *testing.T) {
	// Even with SoD enforcement off, the override path insists on a reviewer
	// distinct from the maker.
	v := NewValidator(Config{EnforceSoD: false, AllowOverride: true})

	if err := v.Check(domain.ActionOverrideApprove, "alice", "alice"); !errors.Is(err, domain.ErrPolicyViolation) {
		t.Fatalf("expected policy violation for self-override, got %v", err)
	}
	if err := v.Check(domain.ActionOverrideApprove, "bob", "alice"); err != nil {
		t.Fatalf("unexpected error for distinct override reviewer: %v", err)
	}
}
