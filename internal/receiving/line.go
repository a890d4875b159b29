package receiving

import (
	"context"
	"fmt"

	"github.com/lastdino/matex-sub001/internal/inventory"
	"github.com/lastdino/matex-sub001/internal/procurement"
	"github.com/lastdino/matex-sub001/internal/shared"
)

// LineResult is what one handled line produced.
type LineResult struct {
	Item   Item
	Change *inventory.StockChange
}

// LineService records a single receiving line: it converts, guards, and books stock.
type LineService struct {
	units     Converter
	guard     *Guard
	inventory *inventory.Service
}

// NewLineService constructs LineService.
func NewLineService(units Converter, guard *Guard, inv *inventory.Service) *LineService {
	return &LineService{units: units, guard: guard, inventory: inv}
}

// Handle validates and records one line. The caller must hold the order line lock;
// any error aborts the caller's transaction.
func (s *LineService) Handle(ctx context.Context, tx TxRepository, order procurement.PurchaseOrder, header Receiving, item procurement.PurchaseOrderItem, input LineInput) (LineResult, error) {
	if item.IsShipping() {
		return LineResult{}, fmt.Errorf("%w: item %d", ErrShippingLineNotReceivable, item.ID)
	}
	if !input.Qty.IsPositive() {
		return LineResult{}, fmt.Errorf("%w: item %d", ErrInvalidQuantity, item.ID)
	}
	received, err := tx.ReceivedBase(ctx, item.ID)
	if err != nil {
		return LineResult{}, err
	}

	if item.IsAdHoc() {
		if input.Unit != "" && input.Unit != item.Unit {
			return LineResult{}, fmt.Errorf("receiving: ad-hoc item %d is received in %q: %w", item.ID, item.Unit, shared.ErrInvalidInput)
		}
		if err := s.guard.CheckAdHoc(item, received, input.Qty); err != nil {
			return LineResult{}, err
		}
		rec, err := s.insertItem(ctx, tx, Item{
			ReceivingID:         header.ID,
			PurchaseOrderItemID: item.ID,
			Unit:                item.Unit,
			Qty:                 input.Qty,
			QtyBase:             input.Qty,
		})
		return LineResult{Item: rec}, err
	}

	material, err := tx.GetMaterial(ctx, *item.MaterialID)
	if err != nil {
		return LineResult{}, err
	}
	unit := input.Unit
	if unit == "" {
		unit = item.Unit
	}
	factor, err := s.units.Factor(ctx, material.ID, unit, material.BaseUnit)
	if err != nil {
		return LineResult{}, err
	}
	qtyBase := input.Qty.Mul(factor)
	if err := s.guard.CheckMaterial(ctx, item, material.BaseUnit, received, qtyBase); err != nil {
		return LineResult{}, err
	}
	if input.LocationID != nil {
		if err := inventory.OccupyLocation(ctx, tx, *input.LocationID, qtyBase); err != nil {
			return LineResult{}, err
		}
	}
	lot, err := s.inventory.EnsureLot(ctx, tx, material, input.Lot, qtyBase, header.ReceivedAt, inventory.Provenance{
		PurchaseOrderID: order.ID,
		SupplierID:      order.SupplierID,
	})
	if err != nil {
		return LineResult{}, err
	}
	rec := Item{
		ReceivingID:         header.ID,
		PurchaseOrderItemID: item.ID,
		MaterialID:          item.MaterialID,
		Unit:                unit,
		Qty:                 input.Qty,
		QtyBase:             qtyBase,
		LocationID:          input.LocationID,
	}
	if lot != nil {
		lotID := lot.ID
		rec.LotID = &lotID
	}
	if rec, err = s.insertItem(ctx, tx, rec); err != nil {
		return LineResult{}, err
	}
	booked, err := s.inventory.BookInbound(ctx, tx, material, lot,
		inventory.SourceRef{Kind: inventory.SourceReceivingItem, ID: rec.ID},
		qtyBase, header.ReceivedAt, fmt.Sprintf("purchase order %s receipt", order.Number))
	if err != nil {
		return LineResult{}, err
	}
	return LineResult{Item: rec, Change: &booked.Change}, nil
}

func (s *LineService) insertItem(ctx context.Context, tx TxRepository, item Item) (Item, error) {
	id, err := tx.InsertReceivingItem(ctx, item)
	if err != nil {
		return Item{}, err
	}
	item.ID = id
	return item, nil
}
