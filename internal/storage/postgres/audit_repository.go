package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository создаёт PostgreSQL-реализацию AuditRepository.
func NewAuditRepository(store *Store) domain.AuditRepository {
	return &auditRepository{db: store.DB()}
}

func (r *auditRepository) Append(record domain.AuditRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Occurred.IsZero() {
		record.Occurred = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			id, action, entity_type, entity_id, actor_id, tenant_id,
			before_state, after_state, reason, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		record.ID, record.Action, record.EntityType, record.EntityID,
		record.ActorID, record.TenantID,
		record.Before, record.After, record.Reason, record.Occurred,
	); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}

	return nil
}

func (r *auditRepository) List(entityType, entityID string) ([]domain.AuditRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, action, entity_type, entity_id, actor_id, tenant_id,
		       before_state, after_state, reason, occurred_at
		FROM audit_records
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY occurred_at ASC, id ASC
	`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.AuditRecord, 0)
	for rows.Next() {
		var record domain.AuditRecord
		if err := rows.Scan(
			&record.ID, &record.Action, &record.EntityType, &record.EntityID,
			&record.ActorID, &record.TenantID,
			&record.Before, &record.After, &record.Reason, &record.Occurred,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}

	return records, nil
}

var _ domain.AuditRepository = (*auditRepository)(nil)
