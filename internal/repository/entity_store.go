package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finworks/refflow/internal/domain"
)

// postgresEntityStore implements EntityStore on Postgres. The conditional put
// is a single UPDATE guarded by the version column, so concurrent transitions
// against the same entity resolve to exactly one winner without any locking
// in this process.
type postgresEntityStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEntityStore creates a Postgres-backed entity store.
func NewPostgresEntityStore(pool *pgxpool.Pool) EntityStore {
	return &postgresEntityStore{pool: pool}
}

const entityColumns = `id, entity_type, status, version, maker_id, checker_id,
	submitted_at, reviewed_at, review_comments, payload, created_at, updated_at`

func (s *postgresEntityStore) Insert(ctx context.Context, entity domain.WorkflowEntity) error {
	payloadJSON, err := domain.MarshalPayload(entity.Payload)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entity.ID, entity.EntityType, entity.Status, entity.Version,
		entity.MakerID, entity.CheckerID, entity.SubmittedAt, entity.ReviewedAt,
		entity.ReviewComments, payloadJSON, entity.CreatedAt, entity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to insert entity: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (s *postgresEntityStore) Get(ctx context.Context, id uuid.UUID) (domain.WorkflowEntity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE id = $1`, id)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WorkflowEntity{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return domain.WorkflowEntity{}, fmt.Errorf("%w: failed to get entity: %v", domain.ErrPersistence, err)
	}
	return entity, nil
}

func (s *postgresEntityStore) ConditionalPut(ctx context.Context, expectedVersion int64, next domain.WorkflowEntity) error {
	payloadJSON, err := domain.MarshalPayload(next.Payload)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE entities
		SET status = $1, version = $2, maker_id = $3, checker_id = $4,
			submitted_at = $5, reviewed_at = $6, review_comments = $7,
			payload = $8, updated_at = $9
		WHERE id = $10 AND version = $11`,
		next.Status, next.Version, next.MakerID, next.CheckerID,
		next.SubmittedAt, next.ReviewedAt, next.ReviewComments,
		payloadJSON, next.UpdatedAt, next.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to update entity: %v", domain.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the entity is gone or someone else committed first.
		var exists bool
		if probeErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM entities WHERE id = $1)`, next.ID,
		).Scan(&exists); probeErr != nil {
			return fmt.Errorf("%w: failed to probe entity: %v", domain.ErrPersistence, probeErr)
		}
		if !exists {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, next.ID)
		}
		return fmt.Errorf("%w: entity %s moved past version %d",
			domain.ErrConcurrencyConflict, next.ID, expectedVersion)
	}
	return nil
}

func (s *postgresEntityStore) ListByStatus(ctx context.Context, status domain.Status, entityType *domain.EntityType) ([]domain.WorkflowEntity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE status = $1`
	args := []any{status}
	if entityType != nil {
		query += ` AND entity_type = $2`
		args = append(args, *entityType)
	}
	query += ` ORDER BY submitted_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list entities: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var entities []domain.WorkflowEntity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan entity: %v", domain.ErrPersistence, err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read entities: %v", domain.ErrPersistence, err)
	}
	return entities, nil
}

func scanEntity(row pgx.Row) (domain.WorkflowEntity, error) {
	var (
		entity      domain.WorkflowEntity
		payloadJSON json.RawMessage
		submittedAt *time.Time
		reviewedAt  *time.Time
	)
	err := row.Scan(
		&entity.ID, &entity.EntityType, &entity.Status, &entity.Version,
		&entity.MakerID, &entity.CheckerID, &submittedAt, &reviewedAt,
		&entity.ReviewComments, &payloadJSON, &entity.CreatedAt, &entity.UpdatedAt,
	)
	if err != nil {
		return domain.WorkflowEntity{}, err
	}
	entity.SubmittedAt = submittedAt
	entity.ReviewedAt = reviewedAt

	payload, err := domain.UnmarshalPayload(entity.EntityType, payloadJSON)
	if err != nil {
		return domain.WorkflowEntity{}, err
	}
	entity.Payload = payload
	return entity, nil
}
