package inventory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/shared"
)

// LocationStore locks and fills storage locations.
type LocationStore interface {
	GetLocationForUpdate(ctx context.Context, id int64) (Location, error)
	AdjustLocationOccupancy(ctx context.Context, id int64, delta decimal.Decimal) error
}

// OccupyLocation checks capacity and reserves qty in the location. Locations without
// a capacity accept any quantity.
func OccupyLocation(ctx context.Context, store LocationStore, locationID int64, qty decimal.Decimal) error {
	loc, err := store.GetLocationForUpdate(ctx, locationID)
	if err != nil {
		return err
	}
	if loc.Capacity != nil && shared.ExceedsBy(loc.Occupied.Add(qty), *loc.Capacity) {
		return ErrStorageCapacityExceeded
	}
	return store.AdjustLocationOccupancy(ctx, locationID, qty)
}
