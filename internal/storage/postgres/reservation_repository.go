package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

const reservationColumns = `
	id, variant_id, warehouse_id, quantity, remaining_quantity, status,
	expires_at, reference_number, reason, actor_id, tenant_id,
	version, created_at, updated_at
`

type reservationRepository struct {
	db *sql.DB
}

// NewReservationRepository создаёт PostgreSQL-реализацию ReservationRepository.
func NewReservationRepository(store *Store) domain.ReservationRepository {
	return &reservationRepository{db: store.DB()}
}

func (r *reservationRepository) Create(reservation domain.Reservation) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reservations (
			id, variant_id, warehouse_id, quantity, remaining_quantity, status,
			expires_at, reference_number, reason, actor_id, tenant_id,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		reservation.ID, reservation.VariantID, reservation.WarehouseID,
		reservation.Quantity, reservation.RemainingQuantity, string(reservation.Status),
		reservation.ExpiresAt, reservation.ReferenceNumber, reservation.Reason,
		reservation.ActorID, reservation.TenantID,
		reservation.Version, reservation.CreatedAt, reservation.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *reservationRepository) Get(id string) (domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1
	`, id)

	reservation, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("select reservation: %w", err)
	}
	return reservation, nil
}

func (r *reservationRepository) Save(reservation domain.Reservation) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE reservations
		SET quantity = $1,
		    remaining_quantity = $2,
		    status = $3,
		    expires_at = $4,
		    reason = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $7
		  AND version = $8
	`,
		reservation.Quantity, reservation.RemainingQuantity, string(reservation.Status),
		reservation.ExpiresAt, reservation.Reason,
		reservation.UpdatedAt, reservation.ID, reservation.Version,
	)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.reservationExists(ctx, reservation.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrReservationNotFound
		}
		return domain.ErrVersionConflict
	}

	return nil
}

func (r *reservationRepository) FindExpiring(before time.Time) ([]domain.Reservation, error) {
	return r.query(`
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status IN ('active', 'partially_fulfilled') AND expires_at <= $1
		ORDER BY expires_at ASC
	`, before)
}

func (r *reservationRepository) ListByItem(variantID, warehouseID string) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE variant_id = $1 AND warehouse_id = $2
		ORDER BY created_at DESC, id DESC
	`, variantID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

func (r *reservationRepository) query(query string, arg any) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

func (r *reservationRepository) reservationExists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM reservations WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check reservation exists: %w", err)
}

func collectReservations(rows *sql.Rows) ([]domain.Reservation, error) {
	reservations := make([]domain.Reservation, 0)
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return reservations, nil
}

func scanReservation(row rowScanner) (domain.Reservation, error) {
	var (
		reservation domain.Reservation
		status      string
	)
	err := row.Scan(
		&reservation.ID, &reservation.VariantID, &reservation.WarehouseID,
		&reservation.Quantity, &reservation.RemainingQuantity, &status,
		&reservation.ExpiresAt, &reservation.ReferenceNumber, &reservation.Reason,
		&reservation.ActorID, &reservation.TenantID,
		&reservation.Version, &reservation.CreatedAt, &reservation.UpdatedAt,
	)
	if err != nil {
		return domain.Reservation{}, err
	}
	reservation.Status = domain.ReservationStatus(status)
	return reservation, nil
}

var _ domain.ReservationRepository = (*reservationRepository)(nil)
