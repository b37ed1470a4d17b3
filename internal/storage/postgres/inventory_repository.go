package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

const inventoryColumns = `
	id, variant_id, warehouse_id, total_stock, reserved_stock,
	allow_negative_stock, reorder_point, expiry_date,
	is_deleted, deleted_at, deleted_by, version, created_at, updated_at
`

type inventoryRepository struct {
	db *sql.DB
}

// NewInventoryRepository создаёт PostgreSQL-реализацию InventoryRepository.
func NewInventoryRepository(store *Store) domain.InventoryRepository {
	return &inventoryRepository{db: store.DB()}
}

func (r *inventoryRepository) Create(item domain.InventoryItem) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory_items (
			id, variant_id, warehouse_id, total_stock, reserved_stock,
			allow_negative_stock, reorder_point, expiry_date,
			is_deleted, deleted_at, deleted_by, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		item.ID, item.VariantID, item.WarehouseID, item.TotalStock, item.ReservedStock,
		item.AllowNegativeStock, item.ReorderPoint, item.ExpiryDate,
		item.IsDeleted, item.DeletedAt, item.DeletedBy, item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrInventoryExists
		}
		return fmt.Errorf("insert inventory item: %w", err)
	}

	return nil
}

func (r *inventoryRepository) Get(variantID, warehouseID string) (domain.InventoryItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE variant_id = $1 AND warehouse_id = $2 AND is_deleted = FALSE
	`, variantID, warehouseID)

	item, err := scanInventoryItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InventoryItem{}, domain.ErrInventoryNotFound
		}
		return domain.InventoryItem{}, fmt.Errorf("select inventory item: %w", err)
	}
	return item, nil
}

func (r *inventoryRepository) Save(item domain.InventoryItem) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE inventory_items
		SET total_stock = $1,
		    reserved_stock = $2,
		    allow_negative_stock = $3,
		    reorder_point = $4,
		    expiry_date = $5,
		    is_deleted = $6,
		    deleted_at = $7,
		    deleted_by = $8,
		    version = version + 1,
		    updated_at = $9
		WHERE id = $10
		  AND version = $11
	`,
		item.TotalStock, item.ReservedStock, item.AllowNegativeStock,
		item.ReorderPoint, item.ExpiryDate,
		item.IsDeleted, item.DeletedAt, item.DeletedBy,
		item.UpdatedAt, item.ID, item.Version,
	)
	if err != nil {
		return fmt.Errorf("update inventory item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.itemExists(ctx, item.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrInventoryNotFound
		}
		return domain.ErrVersionConflict
	}

	return nil
}

func (r *inventoryRepository) ListByVariant(variantID string) ([]domain.InventoryItem, error) {
	return r.list(`
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE variant_id = $1 AND is_deleted = FALSE
		ORDER BY warehouse_id ASC
	`, variantID)
}

func (r *inventoryRepository) ListByWarehouse(warehouseID string) ([]domain.InventoryItem, error) {
	return r.list(`
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE warehouse_id = $1 AND is_deleted = FALSE
		ORDER BY variant_id ASC
	`, warehouseID)
}

func (r *inventoryRepository) FindExpiring(before time.Time) ([]domain.InventoryItem, error) {
	return r.list(`
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE expiry_date IS NOT NULL AND expiry_date <= $1 AND is_deleted = FALSE
		ORDER BY expiry_date ASC
	`, before)
}

func (r *inventoryRepository) list(query string, arg any) ([]domain.InventoryItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list inventory items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0)
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory items: %w", err)
	}

	return items, nil
}

func (r *inventoryRepository) itemExists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM inventory_items WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check inventory item exists: %w", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInventoryItem(row rowScanner) (domain.InventoryItem, error) {
	var (
		item      domain.InventoryItem
		expiry    sql.NullTime
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.VariantID, &item.WarehouseID, &item.TotalStock, &item.ReservedStock,
		&item.AllowNegativeStock, &item.ReorderPoint, &expiry,
		&item.IsDeleted, &deletedAt, &item.DeletedBy, &item.Version, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if expiry.Valid {
		t := expiry.Time
		item.ExpiryDate = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		item.DeletedAt = &t
	}
	return item, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.InventoryRepository = (*inventoryRepository)(nil)
