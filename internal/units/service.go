package units

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Store is the backing catalog for conversions.
type Store interface {
	Lookup(ctx context.Context, materialID int64, from, to string) (decimal.Decimal, bool, error)
	List(ctx context.Context, materialID int64) ([]Conversion, error)
	Upsert(ctx context.Context, conv Conversion) (Conversion, error)
}

// FactorCache fronts Store lookups.
type FactorCache interface {
	Lookup(ctx context.Context, materialID int64, from, to string, load LoadFunc) (decimal.Decimal, bool, error)
	Invalidate(ctx context.Context, materialID int64, from, to string) error
}

// LoadFunc resolves a factor on a cache miss.
type LoadFunc func(ctx context.Context) (decimal.Decimal, bool, error)

// Service resolves and maintains directed unit conversions per material.
type Service struct {
	store Store
	cache FactorCache
}

// NewService builds the conversion service. cache may be nil.
func NewService(store Store, cache FactorCache) *Service {
	return &Service{store: store, cache: cache}
}

// Factor returns the multiplier converting a quantity of material from one unit to another.
// Only directed entries are consulted; there is no inverse or transitive fallback.
func (s *Service) Factor(ctx context.Context, materialID int64, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	load := func(ctx context.Context) (decimal.Decimal, bool, error) {
		return s.store.Lookup(ctx, materialID, from, to)
	}
	var (
		factor decimal.Decimal
		found  bool
		err    error
	)
	if s.cache != nil {
		factor, found, err = s.cache.Lookup(ctx, materialID, from, to, load)
	} else {
		factor, found, err = load(ctx)
	}
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return decimal.Zero, &ConversionError{MaterialID: materialID, From: from, To: to}
	}
	return factor, nil
}

// Convert multiplies qty by Factor(materialID, from, to).
func (s *Service) Convert(ctx context.Context, materialID int64, qty decimal.Decimal, from, to string) (decimal.Decimal, error) {
	factor, err := s.Factor(ctx, materialID, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return qty.Mul(factor), nil
}

// List returns every conversion defined for a material.
func (s *Service) List(ctx context.Context, materialID int64) ([]Conversion, error) {
	if materialID <= 0 {
		return nil, errors.New("units: material id required")
	}
	return s.store.List(ctx, materialID)
}

// Define creates or replaces a directed conversion.
func (s *Service) Define(ctx context.Context, conv Conversion) (Conversion, error) {
	if conv.MaterialID <= 0 || conv.FromUnit == "" || conv.ToUnit == "" {
		return Conversion{}, errors.New("units: material and units required")
	}
	if conv.FromUnit == conv.ToUnit {
		return Conversion{}, ErrIdentityConversion
	}
	if !conv.Factor.IsPositive() {
		return Conversion{}, ErrInvalidFactor
	}
	saved, err := s.store.Upsert(ctx, conv)
	if err != nil {
		return Conversion{}, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, conv.MaterialID, conv.FromUnit, conv.ToUnit); err != nil {
			return saved, err
		}
	}
	return saved, nil
}
