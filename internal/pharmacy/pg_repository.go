package pharmacy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling-engine/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const medicineColumns = `id, name, unit, quantity_on_hand, unit_price, created_at, updated_at`

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.Name, &m.Unit, &m.QuantityOnHand, &m.UnitPrice, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMedicineNotFound
		}
		return nil, err
	}
	return &m, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (r *PgRepository) GetMedicines(ctx context.Context, ids []uuid.UUID) ([]Medicine, error) {
	return r.query(ctx, `
		SELECT `+medicineColumns+`
		FROM medicines
		WHERE id = ANY($1::uuid[])
		ORDER BY id
	`, idStrings(ids))
}

func (r *PgRepository) LockMedicines(ctx context.Context, ids []uuid.UUID) ([]Medicine, error) {
	if !db.InTransaction(ctx) {
		return nil, errors.New("locking medicines requires a transaction")
	}
	// id order keeps concurrent prescriptions from deadlocking each other.
	return r.query(ctx, `
		SELECT `+medicineColumns+`
		FROM medicines
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE
	`, idStrings(ids))
}

func (r *PgRepository) query(ctx context.Context, sql string, args ...any) ([]Medicine, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		meds = append(meds, *m)
	}
	return meds, rows.Err()
}

func (r *PgRepository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE medicines
		SET quantity_on_hand = quantity_on_hand - $2, updated_at = now()
		WHERE id = $1 AND quantity_on_hand >= $2
	`, id, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) IncrementStock(ctx context.Context, id uuid.UUID, qty int) (*Medicine, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE medicines
		SET quantity_on_hand = quantity_on_hand + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+medicineColumns, id, qty)
	return scanMedicine(row)
}
