package receiving

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lastdino/matex-sub001/internal/inventory"
	"github.com/lastdino/matex-sub001/internal/platform/db"
	"github.com/lastdino/matex-sub001/internal/procurement"
)

// Repository persists receivings in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type (
	orderTx = procurement.TxRepository
	stockTx = inventory.TxRepository
)

type txRepo struct {
	orderTx
	stockTx
	tx pgx.Tx
}

// NewTxRepository binds order, stock and receiving statements to one transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{
		orderTx: procurement.NewTxRepository(tx),
		stockTx: inventory.NewTxRepository(tx),
		tx:      tx,
	}
}

// WithTx runs fn in a read-committed transaction. The order line lock taken by
// the caller makes the received sum read afterwards current.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("receiving repository not initialised")
	}
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *txRepo) InsertReceiving(ctx context.Context, header Receiving) (int64, error) {
	var createdBy any
	if header.CreatedBy > 0 {
		createdBy = header.CreatedBy
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO receivings (purchase_order_id, received_at, reference, notes, created_by)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		header.PurchaseOrderID, header.ReceivedAt, header.Reference, header.Notes, createdBy).Scan(&id)
	return id, err
}

func (r *txRepo) InsertReceivingItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO receiving_items
(receiving_id, purchase_order_item_id, material_id, unit, qty, qty_base, lot_id, location_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		item.ReceivingID, item.PurchaseOrderItemID, item.MaterialID, item.Unit, item.Qty, item.QtyBase, item.LotID, item.LocationID).Scan(&id)
	return id, err
}

func (r *txRepo) CountReceivingItems(ctx context.Context, orderItemID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM receiving_items WHERE purchase_order_item_id=$1`, orderItemID).Scan(&n)
	return n, err
}

func (r *txRepo) LatestReceivedAt(ctx context.Context, orderItemID int64) (time.Time, bool, error) {
	var at *time.Time
	err := r.tx.QueryRow(ctx, `SELECT MAX(r.received_at)
FROM receivings r
JOIN receiving_items ri ON ri.receiving_id = r.id
WHERE ri.purchase_order_item_id=$1`, orderItemID).Scan(&at)
	if err != nil || at == nil {
		return time.Time{}, false, err
	}
	return *at, true, nil
}

// ListReceipts loads every receipt of an order with its items.
func (r *Repository) ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.purchase_order_id, r.received_at, r.reference, r.notes, COALESCE(r.created_by, 0),
       ri.id, ri.purchase_order_item_id, ri.material_id, ri.unit, ri.qty, ri.qty_base, ri.lot_id, ri.location_id
FROM receivings r
JOIN receiving_items ri ON ri.receiving_id = r.id
WHERE r.purchase_order_id=$1
ORDER BY r.received_at, r.id, ri.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	receipts := []Receipt{}
	index := make(map[int64]int)
	for rows.Next() {
		var h Receiving
		var item Item
		if err := rows.Scan(&h.ID, &h.PurchaseOrderID, &h.ReceivedAt, &h.Reference, &h.Notes, &h.CreatedBy,
			&item.ID, &item.PurchaseOrderItemID, &item.MaterialID, &item.Unit, &item.Qty, &item.QtyBase, &item.LotID, &item.LocationID); err != nil {
			return nil, err
		}
		item.ReceivingID = h.ID
		pos, ok := index[h.ID]
		if !ok {
			pos = len(receipts)
			index[h.ID] = pos
			receipts = append(receipts, Receipt{Receiving: h})
		}
		receipts[pos].Items = append(receipts[pos].Items, item)
	}
	return receipts, rows.Err()
}

// PendingCascadeOrders lists open or closed orders holding a linked shipping line
// without receipts whose goods line has at least one receipt.
func (r *Repository) PendingCascadeOrders(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT po.id
FROM purchase_orders po
JOIN purchase_order_items ship ON ship.purchase_order_id = po.id AND ship.unit = $1 AND ship.shipping_for_item_id IS NOT NULL
WHERE po.status IN ('issued', 'receiving', 'closed')
  AND NOT EXISTS (SELECT 1 FROM receiving_items ri WHERE ri.purchase_order_item_id = ship.id)
  AND EXISTS (SELECT 1 FROM receiving_items ri WHERE ri.purchase_order_item_id = ship.shipping_for_item_id)
ORDER BY po.id
LIMIT $2`, procurement.ShippingUnit, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
