package procurement

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds order statements to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx wraps callback in a read-committed transaction. Order and line rows are
// locked explicitly, so reads after a lock see rows committed while waiting.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
	}
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const orderColumns = `id, number, supplier_id, status, issued_at, closed_at, created_at`

const itemColumns = `id, purchase_order_id, line_no, material_id, description, unit, qty_ordered, qty_canceled, shipping_for_item_id, COALESCE(scan_token, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &status, &po.IssuedAt, &po.ClosedAt, &po.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrOrderNotFound
	}
	po.Status = POStatus(status)
	return po, err
}

func scanItem(row rowScanner) (PurchaseOrderItem, error) {
	var item PurchaseOrderItem
	err := row.Scan(&item.ID, &item.PurchaseOrderID, &item.LineNo, &item.MaterialID, &item.Description, &item.Unit,
		&item.QtyOrdered, &item.QtyCanceled, &item.ShippingForItemID, &item.ScanToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrderItem{}, ErrItemNotFound
	}
	return item, err
}

func (r *txRepo) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1`, id))
}

func (r *txRepo) GetOrderForShare(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1 FOR SHARE`, id))
}

func (r *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepo) ListItems(ctx context.Context, orderID int64) ([]PurchaseOrderItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+itemColumns+` FROM purchase_order_items WHERE purchase_order_id=$1 ORDER BY line_no, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PurchaseOrderItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepo) GetItemForUpdate(ctx context.Context, id int64) (PurchaseOrderItem, error) {
	return scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM purchase_order_items WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepo) FindItemByToken(ctx context.Context, token string) (PurchaseOrderItem, error) {
	return scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM purchase_order_items WHERE scan_token=$1`, token))
}

func (r *txRepo) ReceivedBase(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(qty_base), 0) FROM receiving_items WHERE purchase_order_item_id=$1`, itemID).Scan(&sum)
	return sum, err
}

func (r *txRepo) ReceivedByOrder(ctx context.Context, orderID int64) (map[int64]decimal.Decimal, error) {
	rows, err := r.tx.Query(ctx, `SELECT ri.purchase_order_item_id, SUM(ri.qty_base)
FROM receiving_items ri
JOIN purchase_order_items poi ON poi.id = ri.purchase_order_item_id
WHERE poi.purchase_order_id=$1
GROUP BY ri.purchase_order_item_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var itemID int64
		var sum decimal.Decimal
		if err := rows.Scan(&itemID, &sum); err != nil {
			return nil, err
		}
		out[itemID] = sum
	}
	return out, rows.Err()
}

func (r *txRepo) AdvanceStatus(ctx context.Context, id int64, to POStatus, from ...POStatus) (bool, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders
SET status = $2::text,
    issued_at = CASE WHEN $2::text = 'issued' THEN NOW() ELSE issued_at END,
    closed_at = CASE WHEN $2::text = 'closed' THEN NOW() ELSE closed_at END,
    updated_at = NOW()
WHERE id=$1 AND status = ANY($3::text[])`, id, string(to), allowed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepo) SetScanToken(ctx context.Context, itemID int64, token string) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET scan_token=$2 WHERE id=$1`, itemID, token)
	return err
}

func (r *txRepo) InsertOrder(ctx context.Context, order PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, status) VALUES ($1, $2, $3) RETURNING id`,
		order.Number, order.SupplierID, string(order.Status)).Scan(&id)
	return id, err
}

func (r *txRepo) InsertItem(ctx context.Context, item PurchaseOrderItem) (int64, error) {
	var token any
	if item.ScanToken != "" {
		token = item.ScanToken
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_order_items
(purchase_order_id, line_no, material_id, description, unit, qty_ordered, qty_canceled, shipping_for_item_id, scan_token)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		item.PurchaseOrderID, item.LineNo, item.MaterialID, item.Description, item.Unit,
		item.QtyOrdered, item.QtyCanceled, item.ShippingForItemID, token).Scan(&id)
	return id, err
}
