// Package inventorytest provides an in-memory inventory store for tests.
package inventorytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/inventory"
)

// Store implements inventory.RepositoryPort and inventory.TxRepository in memory.
// WithTx snapshots state and restores it when the callback fails.
type Store struct {
	mu          sync.Mutex
	Materials   map[int64]inventory.Material
	Lots        map[int64]inventory.Lot
	Movements   []inventory.Movement
	Locations   map[int64]inventory.Location
	Adjustments []inventory.Adjustment
	nextID      int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		Materials: map[int64]inventory.Material{},
		Lots:      map[int64]inventory.Lot{},
		Locations: map[int64]inventory.Location{},
	}
}

// Snapshot is a copy of the store state.
type Snapshot struct {
	materials   map[int64]inventory.Material
	lots        map[int64]inventory.Lot
	movements   []inventory.Movement
	locations   map[int64]inventory.Location
	adjustments []inventory.Adjustment
	nextID      int64
}

// Snapshot copies the current state.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		materials:   make(map[int64]inventory.Material, len(s.Materials)),
		lots:        make(map[int64]inventory.Lot, len(s.Lots)),
		movements:   append([]inventory.Movement(nil), s.Movements...),
		locations:   make(map[int64]inventory.Location, len(s.Locations)),
		adjustments: append([]inventory.Adjustment(nil), s.Adjustments...),
		nextID:      s.nextID,
	}
	for k, v := range s.Materials {
		snap.materials[k] = v
	}
	for k, v := range s.Lots {
		snap.lots[k] = v
	}
	for k, v := range s.Locations {
		snap.locations[k] = v
	}
	return snap
}

// Restore resets the store to snap.
func (s *Store) Restore(snap Snapshot) {
	s.Materials = snap.materials
	s.Lots = snap.lots
	s.Movements = snap.movements
	s.Locations = snap.locations
	s.Adjustments = snap.adjustments
	s.nextID = snap.nextID
}

// NextID hands out ids shared by every table of the store.
func (s *Store) NextID() int64 {
	s.nextID++
	return s.nextID
}

// AddMaterial seeds a material and returns it with its id.
func (s *Store) AddMaterial(m inventory.Material) inventory.Material {
	if m.ID == 0 {
		m.ID = s.NextID()
	}
	s.Materials[m.ID] = m
	return m
}

// AddLocation seeds a storage location.
func (s *Store) AddLocation(loc inventory.Location) inventory.Location {
	if loc.ID == 0 {
		loc.ID = s.NextID()
	}
	s.Locations[loc.ID] = loc
	return loc
}

// LotByNumber finds a lot by natural key.
func (s *Store) LotByNumber(materialID int64, number string) (inventory.Lot, bool) {
	for _, lot := range s.Lots {
		if lot.MaterialID == materialID && lot.Number == number {
			return lot, true
		}
	}
	return inventory.Lot{}, false
}

// LotsFor lists the lots of a material ordered by id.
func (s *Store) LotsFor(materialID int64) []inventory.Lot {
	var out []inventory.Lot
	for _, lot := range s.Lots {
		if lot.MaterialID == materialID {
			out = append(out, lot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WithTx runs fn against the store, rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.Snapshot()
	if err := fn(ctx, s); err != nil {
		s.Restore(snap)
		return err
	}
	return nil
}

func (s *Store) GetMaterial(ctx context.Context, id int64) (inventory.Material, error) {
	m, ok := s.Materials[id]
	if !ok {
		return inventory.Material{}, inventory.ErrMaterialNotFound
	}
	return m, nil
}

func (s *Store) GetLot(ctx context.Context, materialID int64, number string) (inventory.Lot, error) {
	lot, ok := s.LotByNumber(materialID, number)
	if !ok {
		return inventory.Lot{}, inventory.ErrLotNotFound
	}
	return lot, nil
}

func (s *Store) ListLots(ctx context.Context, materialID int64) ([]inventory.Lot, error) {
	return s.LotsFor(materialID), nil
}

func (s *Store) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	out := []inventory.Movement{}
	for _, m := range s.Movements {
		if m.MaterialID != filter.MaterialID {
			continue
		}
		if filter.LotID != 0 && (m.LotID == nil || *m.LotID != filter.LotID) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) AdjustMaterialStock(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	m, ok := s.Materials[id]
	if !ok {
		return decimal.Zero, inventory.ErrMaterialNotFound
	}
	next := m.CurrentStock.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, inventory.ErrNegativeStock
	}
	m.CurrentStock = next
	s.Materials[id] = m
	return next, nil
}

func (s *Store) InsertAdjustment(ctx context.Context, adj inventory.Adjustment) (int64, error) {
	adj.ID = s.NextID()
	s.Adjustments = append(s.Adjustments, adj)
	return adj.ID, nil
}

func (s *Store) GetLotForUpdate(ctx context.Context, materialID int64, number string) (inventory.Lot, error) {
	return s.GetLot(ctx, materialID, number)
}

func (s *Store) InsertLot(ctx context.Context, lot inventory.Lot) (inventory.Lot, error) {
	if _, exists := s.LotByNumber(lot.MaterialID, lot.Number); exists {
		return inventory.Lot{}, inventory.ErrLotExists
	}
	lot.ID = s.NextID()
	lot.UpdatedAt = time.Now().UTC()
	s.Lots[lot.ID] = lot
	return lot, nil
}

func (s *Store) UpdateLotDates(ctx context.Context, lotID int64, manufacturedOn, expiresOn *time.Time) error {
	lot, ok := s.Lots[lotID]
	if !ok {
		return inventory.ErrLotNotFound
	}
	lot.ManufacturedOn = manufacturedOn
	lot.ExpiresOn = expiresOn
	s.Lots[lotID] = lot
	return nil
}

func (s *Store) AdjustLotQty(ctx context.Context, lotID int64, delta decimal.Decimal) (inventory.Lot, error) {
	lot, ok := s.Lots[lotID]
	if !ok {
		return inventory.Lot{}, inventory.ErrInsufficientLotQty
	}
	next := lot.QtyOnHand.Add(delta)
	if next.IsNegative() {
		return inventory.Lot{}, inventory.ErrInsufficientLotQty
	}
	lot.QtyOnHand = next
	lot.Status = inventory.LotActive
	if next.IsZero() {
		lot.Status = inventory.LotDepleted
	}
	s.Lots[lotID] = lot
	return lot, nil
}

func (s *Store) InsertMovement(ctx context.Context, m inventory.Movement) (int64, error) {
	m.ID = s.NextID()
	s.Movements = append(s.Movements, m)
	return m.ID, nil
}

func (s *Store) GetLocationForUpdate(ctx context.Context, id int64) (inventory.Location, error) {
	loc, ok := s.Locations[id]
	if !ok {
		return inventory.Location{}, inventory.ErrLocationNotFound
	}
	return loc, nil
}

func (s *Store) AdjustLocationOccupancy(ctx context.Context, id int64, delta decimal.Decimal) error {
	loc, ok := s.Locations[id]
	if !ok {
		return inventory.ErrLocationNotFound
	}
	loc.Occupied = loc.Occupied.Add(delta)
	s.Locations[id] = loc
	return nil
}
