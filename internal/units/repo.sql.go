package units

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Lookup(ctx context.Context, materialID int64, from, to string) (decimal.Decimal, bool, error) {
	var factor decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT factor FROM unit_conversions WHERE material_id=$1 AND from_unit=$2 AND to_unit=$3`, materialID, from, to).Scan(&factor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return factor, true, nil
}

func (r *Repository) List(ctx context.Context, materialID int64) ([]Conversion, error) {
	rows, err := r.pool.Query(ctx, `SELECT material_id, from_unit, to_unit, factor, updated_at
FROM unit_conversions WHERE material_id=$1 ORDER BY from_unit, to_unit`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Conversion
	for rows.Next() {
		var c Conversion
		if err := rows.Scan(&c.MaterialID, &c.FromUnit, &c.ToUnit, &c.Factor, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) Upsert(ctx context.Context, conv Conversion) (Conversion, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO unit_conversions (material_id, from_unit, to_unit, factor, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (material_id, from_unit, to_unit) DO UPDATE SET factor=EXCLUDED.factor, updated_at=NOW()
RETURNING updated_at`, conv.MaterialID, conv.FromUnit, conv.ToUnit, conv.Factor).Scan(&conv.UpdatedAt)
	return conv, err
}
