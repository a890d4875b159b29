package receiving

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/procurement"
	"github.com/lastdino/matex-sub001/internal/shared"
)

// Converter resolves unit factors for a material.
type Converter interface {
	Factor(ctx context.Context, materialID int64, from, to string) (decimal.Decimal, error)
	Convert(ctx context.Context, materialID int64, qty decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// Guard rejects receipts that would push a line past its effective ordered quantity.
// It only reads; callers hold the line lock while checking and inserting.
type Guard struct {
	units Converter
}

// NewGuard constructs Guard.
func NewGuard(units Converter) *Guard {
	return &Guard{units: units}
}

// CheckAdHoc validates a line without material, where quantities are never converted.
func (g *Guard) CheckAdHoc(item procurement.PurchaseOrderItem, receivedBase, qtyBase decimal.Decimal) error {
	return checkRemaining(item, item.Unit, item.EffectiveOrdered(), receivedBase, qtyBase)
}

// CheckMaterial validates a material line after converting the effective ordered
// quantity from the purchase unit to baseUnit.
func (g *Guard) CheckMaterial(ctx context.Context, item procurement.PurchaseOrderItem, baseUnit string, receivedBase, qtyBase decimal.Decimal) error {
	ordered := item.EffectiveOrdered()
	if item.MaterialID != nil && item.Unit != baseUnit {
		var err error
		ordered, err = g.units.Convert(ctx, *item.MaterialID, ordered, item.Unit, baseUnit)
		if err != nil {
			return err
		}
	}
	return checkRemaining(item, baseUnit, ordered, receivedBase, qtyBase)
}

func checkRemaining(item procurement.PurchaseOrderItem, unit string, orderedBase, receivedBase, qtyBase decimal.Decimal) error {
	remaining := shared.MaxZero(orderedBase.Sub(receivedBase))
	if shared.ExceedsBy(qtyBase, remaining) {
		return &OverDeliveryError{
			ItemID:    item.ID,
			Unit:      unit,
			Ordered:   orderedBase,
			Received:  receivedBase,
			Attempted: qtyBase,
		}
	}
	return nil
}
