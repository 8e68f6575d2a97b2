package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/finworks/refflow/internal/domain"
	"github.com/finworks/refflow/internal/policy"
	"github.com/finworks/refflow/internal/repository"
	"github.com/finworks/refflow/internal/workflow"
)

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	store := repository.NewMemoryEntityStore()
	sink := repository.NewMemoryAuditSink()
	recorder := syncRecorder{sink: sink}
	engine := workflow.NewEngine(store, recorder, policy.NewValidator(policy.DefaultConfig()))
	return NewHandler(engine, workflow.NewApprovalQueue(store), sink)
}

// syncRecorder appends straight to the sink; tests have no use for the spool.
type syncRecorder struct {
	sink repository.AuditSink
}

func (r syncRecorder) Record(ctx context.Context, entry domain.AuditEntry) {
	_ = r.sink.Append(ctx, entry)
}

func doRequest(t *testing.T, api http.Handler, method, path, actor, capabilities string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	if capabilities != "" {
		req.Header.Set("X-Actor-Capabilities", capabilities)
	}
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	return rec
}

func decodeEntity(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func createDraft(t *testing.T, api http.Handler) string {
	t.Helper()
	rec := doRequest(t, api, http.MethodPost, "/entities", "alice", "workflow:submit", map[string]any{
		"entity_type": "PORTFOLIO",
		"payload":     map[string]any{"code": "PF1", "name": "Global Equity", "base_currency": "USD"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decodeEntity(t, rec)["id"].(string)
}

func TestAPI_RequiresActorHeader(t *testing.T) {
	api := newTestAPI(t)
	rec := doRequest(t, api, http.MethodPost, "/entities", "", "", map[string]any{"entity_type": "PORTFOLIO"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	body := decodeEntity(t, rec)
	if body["code"] != "UNAUTHENTICATED" {
		t.Fatalf("unexpected error code: %v", body["code"])
	}
}

func TestAPI_RequiresCapability(t *testing.T) {
	api := newTestAPI(t)
	id := createDraft(t, api)
	doRequest(t, api, http.MethodPost, "/entities/"+id+"/submit", "alice", "workflow:submit", nil)

	rec := doRequest(t, api, http.MethodPost, "/entities/"+id+"/approve", "bob", "workflow:submit", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without review capability, got %d", rec.Code)
	}
}

func TestAPI_FullApprovalFlow(t *testing.T) {
	api := newTestAPI(t)
	id := createDraft(t, api)

	rec := doRequest(t, api, http.MethodPost, "/entities/"+id+"/submit", "alice", "workflow:submit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if status := decodeEntity(t, rec)["status"]; status != "PENDING_APPROVAL" {
		t.Fatalf("expected PENDING_APPROVAL, got %v", status)
	}

	rec = doRequest(t, api, http.MethodGet, "/queue", "bob", "workflow:review", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("queue: expected 200, got %d", rec.Code)
	}
	var queue []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &queue); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if len(queue) != 1 || queue[0]["id"] != id {
		t.Fatalf("expected the submission in the queue, got %v", queue)
	}

	rec = doRequest(t, api, http.MethodPost, "/entities/"+id+"/approve", "bob", "workflow:review", map[string]any{"comments": "looks right"})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	entity := decodeEntity(t, rec)
	if entity["status"] != "ACTIVE" {
		t.Fatalf("expected ACTIVE, got %v", entity["status"])
	}
	if entity["version"].(float64) != 3 {
		t.Fatalf("expected version 3, got %v", entity["version"])
	}
	if entity["checker_id"] != "bob" {
		t.Fatalf("expected checker bob, got %v", entity["checker_id"])
	}

	rec = doRequest(t, api, http.MethodGet, fmt.Sprintf("/audit/entities/PORTFOLIO/%s", id), "bob", "workflow:review", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit trail: expected 200, got %d", rec.Code)
	}
	var trail []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &trail); err != nil {
		t.Fatalf("decode trail: %v", err)
	}
	if len(trail) != 3 {
		t.Fatalf("expected 3 audit entries (create, submit, approve), got %d", len(trail))
	}
}

func TestAPI_SelfApprovalIsPolicyViolation(t *testing.T) {
	api := newTestAPI(t)
	id := createDraft(t, api)
	doRequest(t, api, http.MethodPost, "/entities/"+id+"/submit", "alice", "workflow:submit", nil)

	rec := doRequest(t, api, http.MethodPost, "/entities/"+id+"/approve", "alice", "workflow:review", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeEntity(t, rec)
	if body["code"] != "POLICY_VIOLATION" {
		t.Fatalf("expected POLICY_VIOLATION, got %v", body["code"])
	}
}

func TestAPI_RejectWithoutCommentsIsValidationError(t *testing.T) {
	api := newTestAPI(t)
	id := createDraft(t, api)
	doRequest(t, api, http.MethodPost, "/entities/"+id+"/submit", "alice", "workflow:submit", nil)

	rec := doRequest(t, api, http.MethodPost, "/entities/"+id+"/reject", "carol", "workflow:review", map[string]any{"comments": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeEntity(t, rec)
	if body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", body["code"])
	}
}

func TestAPI_InvalidTransitionIsConflict(t *testing.T) {
	api := newTestAPI(t)
	id := createDraft(t, api)

	rec := doRequest(t, api, http.MethodPost, "/entities/"+id+"/approve", "bob", "workflow:review", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 approving a draft, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeEntity(t, rec)
	if body["code"] != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION, got %v", body["code"])
	}
}

func TestAPI_UnknownEntityIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	rec := doRequest(t, api, http.MethodGet, "/entities/6f1b3dd0-a3be-4b43-8b69-45a3e7a0ce01", "alice", "workflow:submit", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAPI_MalformedIDIsValidationError(t *testing.T) {
	api := newTestAPI(t)
	rec := doRequest(t, api, http.MethodGet, "/entities/not-a-uuid", "alice", "workflow:submit", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAPI_OverrideRequiresCapabilityAndPolicy(t *testing.T) {
	api := newTestAPI(t)
	id := createDraft(t, api)
	doRequest(t, api, http.MethodPost, "/entities/"+id+"/submit", "alice", "workflow:submit", nil)

	rec := doRequest(t, api, http.MethodPost, "/entities/"+id+"/override", "dora", "workflow:review", map[string]any{"justification": "deadline"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without override capability, got %d", rec.Code)
	}

	// Capability present but policy has override disabled.
	rec = doRequest(t, api, http.MethodPost, "/entities/"+id+"/override", "dora", "workflow:review,workflow:override", map[string]any{"justification": "deadline"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with override disabled, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeEntity(t, rec)
	if body["code"] != "POLICY_VIOLATION" {
		t.Fatalf("expected POLICY_VIOLATION, got %v", body["code"])
	}
}
