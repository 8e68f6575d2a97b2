// Package export renders the audit trail for reporting consumers. It is a
// strictly read-only client of the audit sink.
package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/finworks/refflow/internal/domain"
	"github.com/finworks/refflow/internal/repository"
)

const sheetName = "Audit Trail"

// Service builds audit workbooks.
type Service struct {
	sink repository.AuditSink
}

// NewService creates an export service over the given sink.
func NewService(sink repository.AuditSink) *Service {
	return &Service{sink: sink}
}

// RecentWorkbook exports the most recent entries, newest first.
func (s *Service) RecentWorkbook(ctx context.Context, limit int) (*excelize.File, error) {
	entries, err := s.sink.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return buildWorkbook(entries)
}

// EntityWorkbook exports the full trail of one entity, oldest first.
func (s *Service) EntityWorkbook(ctx context.Context, entityType domain.EntityType, entityID string) (*excelize.File, error) {
	id, err := parseEntityID(entityID)
	if err != nil {
		return nil, err
	}
	entries, err := s.sink.ByEntity(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	return buildWorkbook(entries)
}

func parseEntityID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid entity id %q", domain.ErrValidation, raw)
	}
	return id, nil
}

func buildWorkbook(entries []domain.AuditEntry) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	headers := []string{
		"Audit ID", "Entity Type", "Entity ID", "Action", "Actor",
		"Timestamp", "Status Before", "Status After", "Changes", "Comments", "Outcome",
	}
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, err
		}
	}

	for row, entry := range entries {
		values := []any{
			entry.AuditID.String(),
			string(entry.EntityType),
			entry.EntityID.String(),
			string(entry.Action),
			entry.ActorID,
			entry.Timestamp.Format(time.RFC3339),
			string(entry.StatusBefore),
			string(entry.StatusAfter),
			renderChanges(entry.Changes),
			renderComments(entry.Comments),
			entry.Outcome,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// renderChanges keeps the ordered triple form so a spreadsheet row reads the
// same way the serialized audit entry does.
func renderChanges(changes []domain.FieldChange) string {
	if len(changes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(changes))
	for _, change := range changes {
		parts = append(parts, fmt.Sprintf("%s: %q -> %q", change.Field, change.Old, change.New))
	}
	return strings.Join(parts, "; ")
}

func renderComments(comments *string) string {
	if comments == nil {
		return ""
	}
	return *comments
}
