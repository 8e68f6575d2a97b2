package domain

import (
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func draftPortfolio(t *testing.T) WorkflowEntity {
	t.Helper()
	payload := Portfolio{Code: "PF1", Name: "Global Equity", BaseCurrency: "USD"}
	return NewWorkflowEntity("alice", payload, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
}

func TestDiff_CreateReportsNonEmptyFields(t *testing.T) {
	entity := draftPortfolio(t)

	changes := Diff(nil, &entity)
	if len(changes) == 0 {
		t.Fatal("expected changes for a created entity")
	}

	byField := map[string]FieldChange{}
	for _, change := range changes {
		byField[change.Field] = change
	}
	if got := byField["code"]; got.Old != "" || got.New != "PF1" {
		t.Fatalf("unexpected code change: %+v", got)
	}
	if got := byField["status"]; got.New != string(StatusDraft) {
		t.Fatalf("unexpected status change: %+v", got)
	}
	if _, ok := byField["benchmark"]; ok {
		t.Fatal("empty fields should be omitted on create")
	}
}

func TestDiff_OmitsUnchangedFields(t *testing.T) {
	before := draftPortfolio(t)
	after := before.Clone()
	after.Status = StatusPendingApproval
	after.Version = 2

	changes := Diff(&before, &after)
	if len(changes) != 1 {
		t.Fatalf("expected exactly one change, got %d: %+v", len(changes), changes)
	}
	if changes[0].Field != "status" || changes[0].Old != string(StatusDraft) || changes[0].New != string(StatusPendingApproval) {
		t.Fatalf("unexpected change: %+v", changes[0])
	}
}

func TestDiff_OrderedByFieldName(t *testing.T) {
	before := draftPortfolio(t)
	after := before.Clone()
	after.Status = StatusPendingApproval
	payload := after.Payload.(Portfolio)
	payload.Name = "Global Equity II"
	payload.TargetValue = decimal.NewFromInt(5000000)
	after.Payload = payload

	changes := Diff(&before, &after)
	names := make([]string, len(changes))
	for i, change := range changes {
		names[i] = change.Field
	}
	if !sort.StringsAreSorted(names) {
		t.Fatalf("changes not ordered by field name: %v", names)
	}
}

func TestDiff_PayloadChangeCapturesOldAndNew(t *testing.T) {
	before := draftPortfolio(t)
	after := before.Clone()
	payload := after.Payload.(Portfolio)
	payload.BaseCurrency = "EUR"
	after.Payload = payload

	changes := Diff(&before, &after)
	if len(changes) != 1 {
		t.Fatalf("expected one change, got %+v", changes)
	}
	if changes[0].Old != "USD" || changes[0].New != "EUR" {
		t.Fatalf("unexpected currency change: %+v", changes[0])
	}
}

func TestDiff_RoundTripReconstructsAfter(t *testing.T) {
	before := draftPortfolio(t)
	after := before.Clone()
	after.Status = StatusActive
	checker := "bob"
	after.CheckerID = &checker
	comments := "ok"
	after.ReviewComments = &comments
	payload := after.Payload.(Portfolio)
	payload.Manager = "carol"
	after.Payload = payload

	changes := Diff(&before, &after)
	reconstructed := ApplyChanges(TrackedFields(&before), changes)
	expected := TrackedFields(&after)

	if len(reconstructed) != len(expected) {
		t.Fatalf("field count mismatch: got %d want %d", len(reconstructed), len(expected))
	}
	for name, want := range expected {
		if got := reconstructed[name]; got != want {
			t.Fatalf("field %s: got %q want %q", name, got, want)
		}
	}
}
