package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LotStore is the transactional lot persistence used by LotService.
type LotStore interface {
	GetLotForUpdate(ctx context.Context, materialID int64, number string) (Lot, error)
	InsertLot(ctx context.Context, lot Lot) (Lot, error)
	UpdateLotDates(ctx context.Context, lotID int64, manufacturedOn, expiresOn *time.Time) error
	AdjustLotQty(ctx context.Context, lotID int64, delta decimal.Decimal) (Lot, error)
}

// LotInput describes an inbound quantity for a lot.
type LotInput struct {
	MaterialID int64
	Fields     LotFields
	QtyBase    decimal.Decimal
	ReceivedAt time.Time
	Provenance Provenance
}

// LotService maintains per-material lots.
type LotService struct{}

// NewLotService constructs LotService.
func NewLotService() *LotService {
	return &LotService{}
}

// EnsureAndIncrement gets or creates the (material, lot number) lot and adds QtyBase to it.
// Dates on an existing lot are only overwritten by non-empty values.
func (s *LotService) EnsureAndIncrement(ctx context.Context, store LotStore, input LotInput) (Lot, error) {
	number := strings.TrimSpace(input.Fields.Number)
	if number == "" {
		return Lot{}, ErrLotNumberRequired
	}
	if !input.QtyBase.IsPositive() {
		return Lot{}, ErrInvalidQuantity
	}
	lot, err := store.GetLotForUpdate(ctx, input.MaterialID, number)
	switch {
	case errors.Is(err, ErrLotNotFound):
		lot, err = store.InsertLot(ctx, newLot(input, number))
		if errors.Is(err, ErrLotExists) {
			lot, err = s.mergeExisting(ctx, store, input, number)
		}
		if err != nil {
			return Lot{}, err
		}
	case err != nil:
		return Lot{}, err
	default:
		if err := s.mergeDates(ctx, store, lot, input.Fields); err != nil {
			return Lot{}, err
		}
	}
	return store.AdjustLotQty(ctx, lot.ID, input.QtyBase)
}

// Decrement removes qty from an existing lot, refusing to go below zero.
func (s *LotService) Decrement(ctx context.Context, store LotStore, materialID int64, number string, qty decimal.Decimal) (Lot, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return Lot{}, ErrLotNumberRequired
	}
	if !qty.IsPositive() {
		return Lot{}, ErrInvalidQuantity
	}
	lot, err := store.GetLotForUpdate(ctx, materialID, number)
	if err != nil {
		return Lot{}, err
	}
	if qty.GreaterThan(lot.QtyOnHand) {
		return Lot{}, ErrInsufficientLotQty
	}
	return store.AdjustLotQty(ctx, lot.ID, qty.Neg())
}

func (s *LotService) mergeExisting(ctx context.Context, store LotStore, input LotInput, number string) (Lot, error) {
	lot, err := store.GetLotForUpdate(ctx, input.MaterialID, number)
	if err != nil {
		return Lot{}, err
	}
	return lot, s.mergeDates(ctx, store, lot, input.Fields)
}

func (s *LotService) mergeDates(ctx context.Context, store LotStore, lot Lot, fields LotFields) error {
	manufactured := lot.ManufacturedOn
	expires := lot.ExpiresOn
	changed := false
	if fields.ManufacturedOn != nil && !fields.ManufacturedOn.IsZero() {
		manufactured = fields.ManufacturedOn
		changed = true
	}
	if fields.ExpiresOn != nil && !fields.ExpiresOn.IsZero() {
		expires = fields.ExpiresOn
		changed = true
	}
	if !changed {
		return nil
	}
	return store.UpdateLotDates(ctx, lot.ID, manufactured, expires)
}

func newLot(input LotInput, number string) Lot {
	lot := Lot{
		MaterialID:      input.MaterialID,
		Number:          number,
		QtyOnHand:       decimal.Zero,
		Status:          LotActive,
		FirstReceivedAt: input.ReceivedAt,
	}
	if input.Fields.ManufacturedOn != nil && !input.Fields.ManufacturedOn.IsZero() {
		lot.ManufacturedOn = input.Fields.ManufacturedOn
	}
	if input.Fields.ExpiresOn != nil && !input.Fields.ExpiresOn.IsZero() {
		lot.ExpiresOn = input.Fields.ExpiresOn
	}
	if input.Provenance.PurchaseOrderID > 0 {
		id := input.Provenance.PurchaseOrderID
		lot.PurchaseOrderID = &id
	}
	if input.Provenance.SupplierID > 0 {
		id := input.Provenance.SupplierID
		lot.SupplierID = &id
	}
	if lot.FirstReceivedAt.IsZero() {
		lot.FirstReceivedAt = time.Now().UTC()
	}
	return lot
}
