package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/finworks/refflow/internal/auth"
	"github.com/finworks/refflow/internal/domain"
	"github.com/finworks/refflow/internal/repository"
	"github.com/finworks/refflow/internal/workflow"
)

// Handler exposes the workflow engine, approval queue and audit trail over
// JSON. Routing is a plain ServeMux; the caller identity arrives via the
// auth middleware.
type Handler struct {
	engine *workflow.Engine
	queue  *workflow.ApprovalQueue
	sink   repository.AuditSink
}

// NewHandler builds the API handler.
func NewHandler(engine *workflow.Engine, queue *workflow.ApprovalQueue, sink repository.AuditSink) http.Handler {
	h := &Handler{engine: engine, queue: queue, sink: sink}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /entities", h.handleCreate)
	mux.HandleFunc("GET /entities/{id}", h.handleGet)
	mux.HandleFunc("POST /entities/{id}/submit", h.handleSubmit)
	mux.HandleFunc("POST /entities/{id}/approve", h.handleApprove)
	mux.HandleFunc("POST /entities/{id}/reject", h.handleReject)
	mux.HandleFunc("POST /entities/{id}/close", h.handleClose)
	mux.HandleFunc("POST /entities/{id}/reactivate", h.handleReactivate)
	mux.HandleFunc("POST /entities/{id}/update", h.handleUpdate)
	mux.HandleFunc("POST /entities/{id}/edit", h.handleEdit)
	mux.HandleFunc("POST /entities/{id}/override", h.handleOverride)
	mux.HandleFunc("GET /queue", h.handleQueue)
	mux.HandleFunc("GET /audit/entities/{type}/{id}", h.handleAuditByEntity)
	mux.HandleFunc("GET /audit/actors/{id}", h.handleAuditByActor)
	mux.HandleFunc("GET /audit/recent", h.handleAuditRecent)

	return auth.Middleware(mux)
}

type createRequest struct {
	EntityType domain.EntityType `json:"entity_type"`
	Payload    json.RawMessage   `json:"payload"`
}

type reviewRequest struct {
	Comments string `json:"comments"`
}

type payloadRequest struct {
	Payload json.RawMessage `json:"payload"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireCapability(w, r, auth.CapabilitySubmit)
	if !ok {
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", domain.ErrValidation))
		return
	}
	payload, err := decodePayload(req.EntityType, req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	entity, err := h.engine.Create(r.Context(), actor, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entity)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entity, err := h.engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, auth.CapabilitySubmit, func(actor string, id uuid.UUID) (domain.WorkflowEntity, error) {
		return h.engine.Submit(r.Context(), id, actor)
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	decodeOptional(r, &req)
	h.transition(w, r, auth.CapabilityReview, func(actor string, id uuid.UUID) (domain.WorkflowEntity, error) {
		var comments *string
		if req.Comments != "" {
			comments = &req.Comments
		}
		return h.engine.Approve(r.Context(), id, actor, comments)
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	decodeOptional(r, &req)
	h.transition(w, r, auth.CapabilityReview, func(actor string, id uuid.UUID) (domain.WorkflowEntity, error) {
		return h.engine.Reject(r.Context(), id, actor, req.Comments)
	})
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	decodeOptional(r, &req)
	h.transition(w, r, auth.CapabilitySubmit, func(actor string, id uuid.UUID) (domain.WorkflowEntity, error) {
		var reason *string
		if req.Comments != "" {
			reason = &req.Comments
		}
		return h.engine.Close(r.Context(), id, actor, reason)
	})
}

func (h *Handler) handleReactivate(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	decodeOptional(r, &req)
	h.transition(w, r, auth.CapabilitySubmit, func(actor string, id uuid.UUID) (domain.WorkflowEntity, error) {
		return h.engine.Reactivate(r.Context(), id, actor, req.Comments)
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	actor, ok := h.requireCapability(w, r, auth.CapabilitySubmit)
	if !ok {
		return
	}
	current, err := h.engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	var req payloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", domain.ErrValidation))
		return
	}
	payload, err := decodePayload(current.EntityType, req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	entity, err := h.engine.Update(r.Context(), id, actor, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	actor, ok := h.requireCapability(w, r, auth.CapabilitySubmit)
	if !ok {
		return
	}
	var req payloadRequest
	decodeOptional(r, &req)
	var payload domain.Payload
	if len(req.Payload) > 0 {
		current, err := h.engine.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		payload, err = decodePayload(current.EntityType, req.Payload)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	entity, err := h.engine.Edit(r.Context(), id, actor, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Justification string `json:"justification"`
	}
	decodeOptional(r, &req)
	h.transition(w, r, auth.CapabilityOverride, func(actor string, id uuid.UUID) (domain.WorkflowEntity, error) {
		return h.engine.Override(r.Context(), id, actor, req.Justification)
	})
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	var filter workflow.PendingFilter
	if raw := r.URL.Query().Get("entity_type"); raw != "" {
		entityType := domain.EntityType(raw)
		if !entityType.Valid() {
			writeError(w, fmt.Errorf("%w: unknown entity type %q", domain.ErrValidation, raw))
			return
		}
		filter.EntityType = &entityType
	}
	if raw := r.URL.Query().Get("submitted_before"); raw != "" {
		before, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: submitted_before must be RFC3339", domain.ErrValidation))
			return
		}
		filter.SubmittedBefore = &before
	}
	summaries, err := h.queue.Pending(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleAuditByEntity(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(r.PathValue("type"))
	if !entityType.Valid() {
		writeError(w, fmt.Errorf("%w: unknown entity type %q", domain.ErrValidation, r.PathValue("type")))
		return
	}
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.sink.ByEntity(r.Context(), entityType, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleAuditByActor(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: since must be RFC3339", domain.ErrValidation))
			return
		}
		since = parsed
	}
	entries, err := h.sink.ByActor(r.Context(), r.PathValue("id"), since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", domain.ErrValidation))
			return
		}
		limit = parsed
	}
	entries, err := h.sink.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, capability string, run func(actor string, id uuid.UUID) (domain.WorkflowEntity, error)) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	actor, ok := h.requireCapability(w, r, capability)
	if !ok {
		return
	}
	entity, err := run(actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (h *Handler) requireCapability(w http.ResponseWriter, r *http.Request, capability string) (string, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "UNAUTHENTICATED", Message: "actor identity is required"})
		return "", false
	}
	if !auth.HasCapability(r.Context(), capability) {
		writeJSON(w, http.StatusForbidden, errorResponse{Code: "FORBIDDEN", Message: "missing capability " + capability})
		return "", false
	}
	return actor, true
}

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid entity id", domain.ErrValidation)
	}
	return id, nil
}

func decodePayload(entityType domain.EntityType, raw json.RawMessage) (domain.Payload, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", domain.ErrValidation, entityType)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: payload is required", domain.ErrValidation)
	}
	payload, err := domain.UnmarshalPayload(entityType, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return payload, nil
}

func decodeOptional(r *http.Request, target any) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(target)
}
