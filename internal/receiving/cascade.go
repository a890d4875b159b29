package receiving

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/procurement"
)

// LineCompletion answers whether one order line is fully received.
type LineCompletion interface {
	BaseUnit(ctx context.Context, item procurement.PurchaseOrderItem) (string, error)
	LineFullyReceived(ctx context.Context, item procurement.PurchaseOrderItem, baseUnit string, receivedBase decimal.Decimal) (bool, error)
}

// Cascade receives shipping-charge lines once the goods line they are linked to is
// fully received. Each shipping line is completed in its own transaction and only
// when it has no receiving item yet, so repeated runs create nothing new.
type Cascade struct {
	repo       RepositoryPort
	completion LineCompletion
	audit      AuditPort
	logger     *slog.Logger
}

// NewCascade constructs Cascade. audit may be nil.
func NewCascade(repo RepositoryPort, completion LineCompletion, audit AuditPort, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{repo: repo, completion: completion, audit: audit, logger: logger}
}

type shippingPair struct {
	goods    procurement.PurchaseOrderItem
	shipping procurement.PurchaseOrderItem
}

// Run completes every eligible shipping line of the order and returns how many
// receipts it created.
func (c *Cascade) Run(ctx context.Context, orderID int64) (int, error) {
	var (
		order    procurement.PurchaseOrder
		items    []procurement.PurchaseOrderItem
		received map[int64]decimal.Decimal
	)
	err := c.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if order, err = tx.GetOrder(ctx, orderID); err != nil {
			return err
		}
		if items, err = tx.ListItems(ctx, orderID); err != nil {
			return err
		}
		received, err = tx.ReceivedByOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if order.Status == procurement.POStatusDraft || order.Status == procurement.POStatusCanceled {
		return 0, nil
	}

	pairs, err := c.eligible(ctx, items, received)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, pair := range pairs {
		receipt, ok, err := c.completeShipping(ctx, order, pair)
		if err != nil {
			return created, fmt.Errorf("receiving: cascade shipping item %d: %w", pair.shipping.ID, err)
		}
		if !ok {
			continue
		}
		created++
		c.logger.Info("shipping line completed",
			slog.Int64("order_id", order.ID),
			slog.Int64("shipping_item_id", pair.shipping.ID),
			slog.Int64("goods_item_id", pair.goods.ID),
			slog.Int64("receiving_id", receipt.Receiving.ID))
		if c.audit != nil {
			if err := c.audit.Record(ctx, auditLog(receipt)); err != nil {
				c.logger.Warn("cascade audit", slog.Any("error", err))
			}
		}
	}
	return created, nil
}

func (c *Cascade) eligible(ctx context.Context, items []procurement.PurchaseOrderItem, received map[int64]decimal.Decimal) ([]shippingPair, error) {
	byGoods := make(map[int64][]procurement.PurchaseOrderItem)
	for _, item := range items {
		if item.IsShipping() && item.ShippingForItemID != nil {
			byGoods[*item.ShippingForItemID] = append(byGoods[*item.ShippingForItemID], item)
		}
	}
	var pairs []shippingPair
	for _, goods := range items {
		linked := byGoods[goods.ID]
		if goods.IsShipping() || len(linked) == 0 {
			continue
		}
		baseUnit, err := c.completion.BaseUnit(ctx, goods)
		if err != nil {
			return nil, err
		}
		done, err := c.completion.LineFullyReceived(ctx, goods, baseUnit, received[goods.ID])
		if err != nil {
			return nil, err
		}
		if !done {
			continue
		}
		for _, shipping := range linked {
			pairs = append(pairs, shippingPair{goods: goods, shipping: shipping})
		}
	}
	return pairs, nil
}

func (c *Cascade) completeShipping(ctx context.Context, order procurement.PurchaseOrder, pair shippingPair) (Receipt, bool, error) {
	var (
		receipt Receipt
		created bool
	)
	err := c.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created = false
		if _, err := tx.GetItemForUpdate(ctx, pair.shipping.ID); err != nil {
			return err
		}
		n, err := tx.CountReceivingItems(ctx, pair.shipping.ID)
		if err != nil || n > 0 {
			return err
		}
		at, ok, err := tx.LatestReceivedAt(ctx, pair.goods.ID)
		if err != nil || !ok {
			// a goods line complete without any receipt (fully canceled) has
			// nothing to timestamp the shipping charge from
			return err
		}
		header := Receiving{
			PurchaseOrderID: order.ID,
			ReceivedAt:      at,
			Notes:           fmt.Sprintf("shipping charge completed with line %d", pair.goods.LineNo),
		}
		if header.ID, err = tx.InsertReceiving(ctx, header); err != nil {
			return err
		}
		one := decimal.NewFromInt(1)
		item := Item{
			ReceivingID:         header.ID,
			PurchaseOrderItemID: pair.shipping.ID,
			Unit:                procurement.ShippingUnit,
			Qty:                 one,
			QtyBase:             one,
		}
		if item.ID, err = tx.InsertReceivingItem(ctx, item); err != nil {
			return err
		}
		receipt = Receipt{Receiving: header, Items: []Item{item}, Status: order.Status, Synthetic: true}
		created = true
		return nil
	})
	return receipt, created, err
}

// Reconcile re-runs the cascade for orders whose linked shipping lines are still
// unreceived, covering hook runs that failed after commit.
func (c *Cascade) Reconcile(ctx context.Context, limit int) (int, error) {
	orders, err := c.repo.PendingCascadeOrders(ctx, limit)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range orders {
		n, err := c.Run(ctx, id)
		if err != nil {
			c.logger.Error("cascade reconcile", slog.Int64("order_id", id), slog.Any("error", err))
			continue
		}
		total += n
	}
	return total, nil
}
