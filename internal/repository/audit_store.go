package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finworks/refflow/internal/domain"
)

// postgresAuditSink implements AuditSink on Postgres. The audit_log table is
// insert-only: no UPDATE or DELETE statement exists in this repo, and the
// migration revokes those privileges at the database level as well. Appends
// with a known audit id are absorbed by ON CONFLICT DO NOTHING, which is what
// makes retried delivery of a committed transition idempotent.
type postgresAuditSink struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditSink creates a Postgres-backed audit sink.
func NewPostgresAuditSink(pool *pgxpool.Pool) AuditSink {
	return &postgresAuditSink{pool: pool}
}

const auditColumns = `audit_id, entity_type, entity_id, action, actor_id,
	recorded_at, status_before, status_after, changes, comments, outcome`

func (s *postgresAuditSink) Append(ctx context.Context, entry domain.AuditEntry) error {
	changesJSON, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal audit changes: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (audit_id) DO NOTHING`,
		entry.AuditID, entry.EntityType, entry.EntityID, entry.Action,
		entry.ActorID, entry.Timestamp, entry.StatusBefore, entry.StatusAfter,
		changesJSON, entry.Comments, entry.Outcome,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to append audit entry: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (s *postgresAuditSink) ByEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auditColumns+`
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY recorded_at, audit_id`,
		entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query audit trail: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()
	return collectAuditEntries(rows)
}

func (s *postgresAuditSink) ByActor(ctx context.Context, actorID string, since time.Time) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auditColumns+`
		FROM audit_log
		WHERE actor_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at, audit_id`,
		actorID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query actor audit trail: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()
	return collectAuditEntries(rows)
}

func (s *postgresAuditSink) Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auditColumns+`
		FROM audit_log
		ORDER BY recorded_at DESC, audit_id
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query recent audit entries: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()
	return collectAuditEntries(rows)
}

func collectAuditEntries(rows pgx.Rows) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			entry       domain.AuditEntry
			changesJSON json.RawMessage
		)
		err := rows.Scan(
			&entry.AuditID, &entry.EntityType, &entry.EntityID, &entry.Action,
			&entry.ActorID, &entry.Timestamp, &entry.StatusBefore, &entry.StatusAfter,
			&changesJSON, &entry.Comments, &entry.Outcome,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan audit entry: %v", domain.ErrPersistence, err)
		}
		if err := json.Unmarshal(changesJSON, &entry.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit changes: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read audit entries: %v", domain.ErrPersistence, err)
	}
	return entries, nil
}
