package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

const movementColumns = `
	id, inventory_item_id, variant_id, warehouse_id, movement_type,
	quantity, running_balance, entry_type, paired_movement_id,
	reference_number, reason, actor_id, tenant_id, metadata, occurred_at
`

type movementRepository struct {
	db *sql.DB
}

// NewMovementRepository создаёт PostgreSQL-реализацию MovementRepository.
// Журнал append-only: UPDATE и DELETE по stock_movements не выполняются.
func NewMovementRepository(store *Store) domain.MovementRepository {
	return &movementRepository{db: store.DB()}
}

func (r *movementRepository) Append(movement domain.StockMovement) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return insertMovement(ctx, r.db, movement)
}

func (r *movementRepository) AppendPair(credit, debit domain.StockMovement) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := insertMovement(ctx, tx, credit); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := insertMovement(ctx, tx, debit); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit movement pair: %w", err)
	}
	return nil
}

func (r *movementRepository) FindByReference(referenceNumber string) ([]domain.StockMovement, error) {
	return r.query(`
		SELECT `+movementColumns+`
		FROM stock_movements
		WHERE reference_number = $1
		ORDER BY occurred_at DESC, id DESC
	`, referenceNumber)
}

func (r *movementRepository) FindByInventoryItem(inventoryItemID string) ([]domain.StockMovement, error) {
	return r.query(`
		SELECT `+movementColumns+`
		FROM stock_movements
		WHERE inventory_item_id = $1
		ORDER BY occurred_at DESC, id DESC
	`, inventoryItemID)
}

func (r *movementRepository) HasOpeningBalance(variantID, warehouseID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM stock_movements
			WHERE variant_id = $1 AND warehouse_id = $2 AND movement_type = $3
		)
	`, variantID, warehouseID, string(domain.MovementOpeningBalance)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check opening balance: %w", err)
	}
	return exists, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMovement(ctx context.Context, db execer, movement domain.StockMovement) error {
	var metadata []byte
	if len(movement.Metadata) > 0 {
		data, err := json.Marshal(movement.Metadata)
		if err != nil {
			return fmt.Errorf("marshal movement metadata: %w", err)
		}
		metadata = data
	}

	var pairedID any
	if movement.PairedMovementID != "" {
		pairedID = movement.PairedMovementID
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO stock_movements (
			id, inventory_item_id, variant_id, warehouse_id, movement_type,
			quantity, running_balance, entry_type, paired_movement_id,
			reference_number, reason, actor_id, tenant_id, metadata, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		movement.ID, movement.InventoryItemID, movement.VariantID, movement.WarehouseID,
		string(movement.Type), movement.Quantity, movement.RunningBalance,
		string(movement.EntryType), pairedID,
		movement.ReferenceNumber, movement.Reason, movement.ActorID, movement.TenantID,
		metadata, movement.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOpeningBalanceExists
		}
		return fmt.Errorf("insert stock movement: %w", err)
	}
	return nil
}

func (r *movementRepository) query(query string, arg any) ([]domain.StockMovement, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query stock movements: %w", err)
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0)
	for rows.Next() {
		var (
			movement     domain.StockMovement
			movementType string
			entryType    string
			pairedID     sql.NullString
			metadata     []byte
		)
		if err := rows.Scan(
			&movement.ID, &movement.InventoryItemID, &movement.VariantID, &movement.WarehouseID,
			&movementType, &movement.Quantity, &movement.RunningBalance,
			&entryType, &pairedID,
			&movement.ReferenceNumber, &movement.Reason, &movement.ActorID, &movement.TenantID,
			&metadata, &movement.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan stock movement: %w", err)
		}
		movement.Type = domain.MovementType(movementType)
		movement.EntryType = domain.EntryType(entryType)
		if pairedID.Valid {
			movement.PairedMovementID = pairedID.String
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &movement.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal movement metadata: %w", err)
			}
		}
		movements = append(movements, movement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock movements: %w", err)
	}

	return movements, nil
}

var _ domain.MovementRepository = (*movementRepository)(nil)
