package receiving

import (
	"context"
	"fmt"

	"github.com/lastdino/matex-sub001/internal/inventory"
	"github.com/lastdino/matex-sub001/internal/procurement"
	"github.com/lastdino/matex-sub001/internal/shared"
)

// PostCommitHook runs after a receiving transaction committed. Errors are logged
// by the caller and never undo the receipt.
type PostCommitHook interface {
	Name() string
	AfterReceive(ctx context.Context, receipt *Receipt) error
}

// HookFunc adapts a function to PostCommitHook.
type HookFunc func(ctx context.Context, receipt *Receipt) error

type funcHook struct {
	name string
	fn   HookFunc
}

// Hook names fn so failures can be attributed.
func Hook(name string, fn HookFunc) PostCommitHook {
	return funcHook{name: name, fn: fn}
}

func (h funcHook) Name() string { return h.name }

func (h funcHook) AfterReceive(ctx context.Context, receipt *Receipt) error {
	return h.fn(ctx, receipt)
}

// Recomputer persists the completion status of an order.
type Recomputer interface {
	Recompute(ctx context.Context, orderID int64) (procurement.POStatus, error)
}

// CompletionHook recomputes the order status.
func CompletionHook(completion Recomputer) PostCommitHook {
	return Hook("completion", func(ctx context.Context, receipt *Receipt) error {
		status, err := completion.Recompute(ctx, receipt.Receiving.PurchaseOrderID)
		if err != nil {
			return err
		}
		receipt.Status = status
		return nil
	})
}

// CascadeRunner completes shipping lines of an order.
type CascadeRunner interface {
	Run(ctx context.Context, orderID int64) (int, error)
}

// CascadeHook completes shipping-charge lines whose goods line is now fully received.
func CascadeHook(cascade CascadeRunner) PostCommitHook {
	return Hook("cascade", func(ctx context.Context, receipt *Receipt) error {
		if receipt.Synthetic {
			return nil
		}
		_, err := cascade.Run(ctx, receipt.Receiving.PurchaseOrderID)
		return err
	})
}

// StockSyncHook forwards the receipt's stock changes to the external inventory system.
func StockSyncHook(notifier inventory.Notifier) PostCommitHook {
	return Hook("stock_sync", func(ctx context.Context, receipt *Receipt) error {
		if notifier != nil && len(receipt.Changes) > 0 {
			notifier.Publish(ctx, receipt.Changes...)
		}
		return nil
	})
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditHook writes a receiving.create audit record.
func AuditHook(audit AuditPort) PostCommitHook {
	return Hook("audit", func(ctx context.Context, receipt *Receipt) error {
		return audit.Record(ctx, auditLog(*receipt))
	})
}

func auditLog(receipt Receipt) shared.AuditLog {
	items := make([]map[string]any, 0, len(receipt.Items))
	for _, item := range receipt.Items {
		items = append(items, map[string]any{
			"order_item_id": item.PurchaseOrderItemID,
			"qty":           item.Qty.String(),
			"unit":          item.Unit,
			"qty_base":      item.QtyBase.String(),
		})
	}
	return shared.AuditLog{
		ActorID:  receipt.Receiving.CreatedBy,
		Action:   "receiving.create",
		Entity:   "receiving",
		EntityID: fmt.Sprintf("%d", receipt.Receiving.ID),
		Meta: map[string]any{
			"order_id":  receipt.Receiving.PurchaseOrderID,
			"reference": receipt.Receiving.Reference,
			"synthetic": receipt.Synthetic,
			"items":     items,
		},
	}
}
