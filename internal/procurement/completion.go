package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/inventory"
	"github.com/lastdino/matex-sub001/internal/shared"
)

// MaterialReader resolves catalog materials.
type MaterialReader interface {
	GetMaterial(ctx context.Context, id int64) (inventory.Material, error)
}

// Converter converts quantities between units of one material.
type Converter interface {
	Convert(ctx context.Context, materialID int64, qty decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// CompletionService decides whether an order's billable lines are fully received
// and persists the resulting status.
//
// Completion compares against the effective ordered quantity (ordered minus
// canceled) in base units, the same figure the over-delivery guard uses, so a
// fully canceled line counts as complete.
type CompletionService struct {
	repo      RepositoryPort
	materials MaterialReader
	units     Converter
	observers []StatusObserver
	logger    *slog.Logger
}

// NewCompletionService constructs CompletionService.
func NewCompletionService(repo RepositoryPort, materials MaterialReader, units Converter, observers ...StatusObserver) *CompletionService {
	return &CompletionService{repo: repo, materials: materials, units: units, observers: observers, logger: slog.Default()}
}

// WithLogger replaces the default logger.
func (c *CompletionService) WithLogger(logger *slog.Logger) *CompletionService {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// BaseUnit returns the unit the line's received quantities are recorded in.
func (c *CompletionService) BaseUnit(ctx context.Context, item PurchaseOrderItem) (string, error) {
	if item.IsAdHoc() {
		return item.Unit, nil
	}
	material, err := c.materials.GetMaterial(ctx, *item.MaterialID)
	if err != nil {
		return "", err
	}
	return material.BaseUnit, nil
}

// OrderedBase converts the effective ordered quantity into baseUnit.
func (c *CompletionService) OrderedBase(ctx context.Context, item PurchaseOrderItem, baseUnit string) (decimal.Decimal, error) {
	effective := item.EffectiveOrdered()
	if item.IsAdHoc() || item.Unit == baseUnit {
		return effective, nil
	}
	return c.units.Convert(ctx, *item.MaterialID, effective, item.Unit, baseUnit)
}

// LineFullyReceived reports received ≥ ordered − ε for one line.
func (c *CompletionService) LineFullyReceived(ctx context.Context, item PurchaseOrderItem, baseUnit string, receivedBase decimal.Decimal) (bool, error) {
	ordered, err := c.OrderedBase(ctx, item, baseUnit)
	if err != nil {
		return false, err
	}
	return receivedBase.Add(shared.Epsilon).GreaterThanOrEqual(ordered), nil
}

// IsFullyReceived checks every non-shipping line against its received base sum.
func (c *CompletionService) IsFullyReceived(ctx context.Context, items []PurchaseOrderItem, receivedBase map[int64]decimal.Decimal) (bool, error) {
	for _, item := range items {
		if item.IsShipping() {
			continue
		}
		baseUnit, err := c.BaseUnit(ctx, item)
		if err != nil {
			return false, err
		}
		done, err := c.LineFullyReceived(ctx, item, baseUnit, receivedBase[item.ID])
		if err != nil {
			return false, err
		}
		if !done {
			return false, nil
		}
	}
	return true, nil
}

// Progress computes the per-line view used by order reads.
func (c *CompletionService) Progress(ctx context.Context, items []PurchaseOrderItem, receivedBase map[int64]decimal.Decimal) ([]ItemProgress, error) {
	out := make([]ItemProgress, 0, len(items))
	for _, item := range items {
		baseUnit, err := c.BaseUnit(ctx, item)
		if err != nil {
			return nil, err
		}
		ordered, err := c.OrderedBase(ctx, item, baseUnit)
		if err != nil {
			return nil, err
		}
		received := receivedBase[item.ID]
		out = append(out, ItemProgress{
			Item:         item,
			BaseUnit:     baseUnit,
			OrderedBase:  ordered,
			ReceivedBase: received,
			Complete:     received.Add(shared.Epsilon).GreaterThanOrEqual(ordered),
		})
	}
	return out, nil
}

// Recompute persists closed when every billable line is received and receiving
// otherwise. Draft and canceled orders are left alone and closed never regresses.
func (c *CompletionService) Recompute(ctx context.Context, orderID int64) (POStatus, error) {
	var (
		status  POStatus
		changed *StatusChange
	)
	err := c.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		status = order.Status
		if !order.Status.AcceptsReceipts() {
			return nil
		}
		items, err := tx.ListItems(ctx, orderID)
		if err != nil {
			return err
		}
		received, err := tx.ReceivedByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		complete, err := c.IsFullyReceived(ctx, items, received)
		if err != nil {
			return err
		}
		target := POStatusReceiving
		if complete {
			target = POStatusClosed
		}
		if target.rank() <= order.Status.rank() {
			return nil
		}
		ok, err := tx.AdvanceStatus(ctx, orderID, target, POStatusIssued, POStatusReceiving)
		if err != nil {
			return err
		}
		if ok {
			status = target
			changed = &StatusChange{OrderID: orderID, From: order.Status, To: target, At: time.Now().UTC()}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("procurement: recompute order %d: %w", orderID, err)
	}
	if changed != nil {
		c.logger.Info("purchase order status changed",
			slog.Int64("order_id", orderID),
			slog.String("from", string(changed.From)),
			slog.String("to", string(changed.To)))
		notify(ctx, c.observers, *changed)
	}
	return status, nil
}
