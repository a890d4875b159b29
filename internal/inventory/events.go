package inventory

import "context"

// Notifier forwards committed stock changes to external systems. It must not block
// or fail the caller; implementations log their own errors.
type Notifier interface {
	Publish(ctx context.Context, changes ...StockChange)
}

// ChangeFor builds the sync payload for a committed movement.
func ChangeFor(m Movement, sku, lotNumber string) StockChange {
	return StockChange{
		MovementID: m.ID,
		SKU:        sku,
		LotNumber:  lotNumber,
		QtyBase:    m.QtyBase,
		Direction:  m.Direction,
		Reason:     m.Reason,
		OccurredAt: m.OccurredAt,
	}
}
