package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the inventory statements to an open transaction so other
// modules can include stock writes in their own unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a read-committed transaction; row locks
// taken with FOR UPDATE serialise writers on the same lot or material.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const materialColumns = `id, sku, name, base_unit, lot_managed, current_stock, active`

const lotColumns = `id, material_id, lot_number, qty_on_hand, manufactured_on, expires_on, status, purchase_order_id, supplier_id, first_received_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMaterial(row rowScanner) (Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.SKU, &m.Name, &m.BaseUnit, &m.LotManaged, &m.CurrentStock, &m.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Material{}, ErrMaterialNotFound
	}
	return m, err
}

func scanLot(row rowScanner) (Lot, error) {
	var l Lot
	var status string
	err := row.Scan(&l.ID, &l.MaterialID, &l.Number, &l.QtyOnHand, &l.ManufacturedOn, &l.ExpiresOn, &status, &l.PurchaseOrderID, &l.SupplierID, &l.FirstReceivedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lot{}, ErrLotNotFound
	}
	l.Status = LotStatus(status)
	return l, err
}

func (r *Repository) GetMaterial(ctx context.Context, id int64) (Material, error) {
	return scanMaterial(r.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=$1`, id))
}

func (r *Repository) GetLot(ctx context.Context, materialID int64, number string) (Lot, error) {
	return scanLot(r.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM material_lots WHERE material_id=$1 AND lot_number=$2`, materialID, number))
}

func (r *Repository) ListLots(ctx context.Context, materialID int64) ([]Lot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+` FROM material_lots WHERE material_id=$1 ORDER BY expires_on NULLS LAST, lot_number`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lots := []Lot{}
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, material_id, lot_id, direction, source_kind, source_id, qty_base, unit, occurred_at, reason, actor_id
FROM stock_movements
WHERE material_id=$1 AND ($2::bigint IS NULL OR lot_id=$2)
  AND occurred_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY occurred_at ASC, id ASC
LIMIT $5`, filter.MaterialID, nullInt(filter.LotID), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Movement{}
	for rows.Next() {
		var m Movement
		var dir, kind string
		if err := rows.Scan(&m.ID, &m.MaterialID, &m.LotID, &dir, &kind, &m.Source.ID, &m.QtyBase, &m.Unit, &m.OccurredAt, &m.Reason, &m.ActorID); err != nil {
			return nil, err
		}
		m.Direction = Direction(dir)
		m.Source.Kind = SourceKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *txRepository) GetMaterial(ctx context.Context, id int64) (Material, error) {
	return scanMaterial(r.tx.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=$1`, id))
}

func (r *txRepository) AdjustMaterialStock(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var stock decimal.Decimal
	err := r.tx.QueryRow(ctx, `UPDATE materials SET current_stock = current_stock + $2, updated_at = NOW()
WHERE id=$1 AND current_stock + $2 >= 0
RETURNING current_stock`, id, delta).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrNegativeStock
	}
	return stock, err
}

func (r *txRepository) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_adjustments (direction, material_id, reference, reason, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`, string(adj.Direction), adj.MaterialID, adj.Reference, adj.Reason, nullInt(adj.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) GetLotForUpdate(ctx context.Context, materialID int64, number string) (Lot, error) {
	return scanLot(r.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM material_lots WHERE material_id=$1 AND lot_number=$2 FOR UPDATE`, materialID, number))
}

func (r *txRepository) InsertLot(ctx context.Context, lot Lot) (Lot, error) {
	created, err := scanLot(r.tx.QueryRow(ctx, `INSERT INTO material_lots (material_id, lot_number, qty_on_hand, manufactured_on, expires_on, status, purchase_order_id, supplier_id, first_received_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
ON CONFLICT (material_id, lot_number) DO NOTHING
RETURNING `+lotColumns, lot.MaterialID, lot.Number, lot.QtyOnHand, lot.ManufacturedOn, lot.ExpiresOn, string(lot.Status), lot.PurchaseOrderID, lot.SupplierID, lot.FirstReceivedAt))
	if errors.Is(err, ErrLotNotFound) {
		return Lot{}, ErrLotExists
	}
	return created, err
}

func (r *txRepository) UpdateLotDates(ctx context.Context, lotID int64, manufacturedOn, expiresOn *time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE material_lots SET manufactured_on=$2, expires_on=$3, updated_at=NOW() WHERE id=$1`, lotID, manufacturedOn, expiresOn)
	return err
}

func (r *txRepository) AdjustLotQty(ctx context.Context, lotID int64, delta decimal.Decimal) (Lot, error) {
	lot, err := scanLot(r.tx.QueryRow(ctx, `UPDATE material_lots
SET qty_on_hand = qty_on_hand + $2,
    status = CASE WHEN qty_on_hand + $2 = 0 THEN 'depleted' ELSE 'active' END,
    updated_at = NOW()
WHERE id=$1 AND qty_on_hand + $2 >= 0
RETURNING `+lotColumns, lotID, delta))
	if errors.Is(err, ErrLotNotFound) {
		return Lot{}, ErrInsufficientLotQty
	}
	return lot, err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (material_id, lot_id, direction, source_kind, source_id, qty_base, unit, occurred_at, reason, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW()) RETURNING id`, m.MaterialID, m.LotID, string(m.Direction), string(m.Source.Kind), m.Source.ID, m.QtyBase, m.Unit, m.OccurredAt, m.Reason, m.ActorID).Scan(&id)
	return id, err
}

func (r *txRepository) GetLocationForUpdate(ctx context.Context, id int64) (Location, error) {
	var loc Location
	err := r.tx.QueryRow(ctx, `SELECT id, code, capacity, occupied FROM storage_locations WHERE id=$1 FOR UPDATE`, id).
		Scan(&loc.ID, &loc.Code, &loc.Capacity, &loc.Occupied)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, ErrLocationNotFound
	}
	return loc, err
}

func (r *txRepository) AdjustLocationOccupancy(ctx context.Context, id int64, delta decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE storage_locations SET occupied = occupied + $2, updated_at = NOW() WHERE id=$1`, id, delta)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
