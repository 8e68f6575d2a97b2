package export

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/finworks/refflow/internal/domain"
)

// Handler serves audit workbook downloads.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the export service for HTTP.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entityID := r.URL.Query().Get("entity_id")
	if entityID != "" {
		entityType := domain.EntityType(r.URL.Query().Get("entity_type"))
		if !entityType.Valid() {
			http.Error(w, fmt.Sprintf("unknown entity type %q", entityType), http.StatusBadRequest)
			return
		}
		workbook, err := h.service.EntityWorkbook(r.Context(), entityType, entityID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		send(w, workbook)
		return
	}

	limit := 500
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	workbook, err := h.service.RecentWorkbook(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to build export", http.StatusInternalServerError)
		return
	}
	send(w, workbook)
}

func send(w http.ResponseWriter, workbook *excelize.File) {
	filename := fmt.Sprintf("audit-trail-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := workbook.Write(w); err != nil {
		log.Printf("[EXPORT] failed to stream workbook: %v", err)
	}
}
