// Package procurementtest provides an in-memory order store for tests.
package procurementtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/procurement"
)

// Store implements procurement.RepositoryPort and procurement.TxRepository.
type Store struct {
	mu       sync.Mutex
	Orders   map[int64]procurement.PurchaseOrder
	Items    map[int64]procurement.PurchaseOrderItem
	Received map[int64]decimal.Decimal
	// StatusLog lists every persisted status per order, oldest first.
	StatusLog map[int64][]procurement.POStatus
	nextID    int64
}

// New returns an empty store. Ids start at 1000 to stay apart from other fakes.
func New() *Store {
	return &Store{
		Orders:    map[int64]procurement.PurchaseOrder{},
		Items:     map[int64]procurement.PurchaseOrderItem{},
		Received:  map[int64]decimal.Decimal{},
		StatusLog: map[int64][]procurement.POStatus{},
		nextID:    1000,
	}
}

// Snapshot is a copy of the store state.
type Snapshot struct {
	orders    map[int64]procurement.PurchaseOrder
	items     map[int64]procurement.PurchaseOrderItem
	received  map[int64]decimal.Decimal
	statusLog map[int64][]procurement.POStatus
	nextID    int64
}

// Snapshot copies the current state.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		orders:    make(map[int64]procurement.PurchaseOrder, len(s.Orders)),
		items:     make(map[int64]procurement.PurchaseOrderItem, len(s.Items)),
		received:  make(map[int64]decimal.Decimal, len(s.Received)),
		statusLog: make(map[int64][]procurement.POStatus, len(s.StatusLog)),
		nextID:    s.nextID,
	}
	for k, v := range s.Orders {
		snap.orders[k] = v
	}
	for k, v := range s.Items {
		snap.items[k] = v
	}
	for k, v := range s.Received {
		snap.received[k] = v
	}
	for k, v := range s.StatusLog {
		snap.statusLog[k] = append([]procurement.POStatus(nil), v...)
	}
	return snap
}

// Restore resets the store to snap.
func (s *Store) Restore(snap Snapshot) {
	s.Orders = snap.orders
	s.Items = snap.items
	s.Received = snap.received
	s.StatusLog = snap.statusLog
	s.nextID = snap.nextID
}

// AddOrder seeds an order with its items and returns the stored copies.
func (s *Store) AddOrder(order procurement.PurchaseOrder, items ...procurement.PurchaseOrderItem) (procurement.PurchaseOrder, []procurement.PurchaseOrderItem) {
	if order.ID == 0 {
		s.nextID++
		order.ID = s.nextID
	}
	s.Orders[order.ID] = order
	s.StatusLog[order.ID] = append(s.StatusLog[order.ID], order.Status)
	out := make([]procurement.PurchaseOrderItem, 0, len(items))
	for _, item := range items {
		item.PurchaseOrderID = order.ID
		if item.ID == 0 {
			s.nextID++
			item.ID = s.nextID
		}
		s.Items[item.ID] = item
		out = append(out, item)
	}
	return order, out
}

// AddReceived records qtyBase received against an item.
func (s *Store) AddReceived(itemID int64, qtyBase decimal.Decimal) {
	s.Received[itemID] = s.Received[itemID].Add(qtyBase)
}

// WithTx runs fn, restoring state when it fails.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, procurement.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.Snapshot()
	if err := fn(ctx, s); err != nil {
		s.Restore(snap)
		return err
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	order, ok := s.Orders[id]
	if !ok {
		return procurement.PurchaseOrder{}, procurement.ErrOrderNotFound
	}
	return order, nil
}

func (s *Store) GetOrderForShare(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	return s.GetOrder(ctx, id)
}

func (s *Store) GetOrderForUpdate(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	return s.GetOrder(ctx, id)
}

func (s *Store) ListItems(ctx context.Context, orderID int64) ([]procurement.PurchaseOrderItem, error) {
	var items []procurement.PurchaseOrderItem
	for _, item := range s.Items {
		if item.PurchaseOrderID == orderID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].LineNo != items[j].LineNo {
			return items[i].LineNo < items[j].LineNo
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *Store) GetItemForUpdate(ctx context.Context, id int64) (procurement.PurchaseOrderItem, error) {
	item, ok := s.Items[id]
	if !ok {
		return procurement.PurchaseOrderItem{}, procurement.ErrItemNotFound
	}
	return item, nil
}

func (s *Store) FindItemByToken(ctx context.Context, token string) (procurement.PurchaseOrderItem, error) {
	for _, item := range s.Items {
		if token != "" && item.ScanToken == token {
			return item, nil
		}
	}
	return procurement.PurchaseOrderItem{}, procurement.ErrItemNotFound
}

func (s *Store) ReceivedBase(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	return s.Received[itemID], nil
}

func (s *Store) ReceivedByOrder(ctx context.Context, orderID int64) (map[int64]decimal.Decimal, error) {
	out := make(map[int64]decimal.Decimal)
	for id, qty := range s.Received {
		if s.Items[id].PurchaseOrderID == orderID {
			out[id] = qty
		}
	}
	return out, nil
}

func (s *Store) AdvanceStatus(ctx context.Context, id int64, to procurement.POStatus, from ...procurement.POStatus) (bool, error) {
	order, ok := s.Orders[id]
	if !ok {
		return false, procurement.ErrOrderNotFound
	}
	for _, f := range from {
		if order.Status != f {
			continue
		}
		now := time.Now().UTC()
		switch to {
		case procurement.POStatusIssued:
			order.IssuedAt = &now
		case procurement.POStatusClosed:
			order.ClosedAt = &now
		}
		order.Status = to
		s.Orders[id] = order
		s.StatusLog[id] = append(s.StatusLog[id], to)
		return true, nil
	}
	return false, nil
}

func (s *Store) SetScanToken(ctx context.Context, itemID int64, token string) error {
	item, ok := s.Items[itemID]
	if !ok {
		return procurement.ErrItemNotFound
	}
	item.ScanToken = token
	s.Items[itemID] = item
	return nil
}

func (s *Store) InsertOrder(ctx context.Context, order procurement.PurchaseOrder) (int64, error) {
	s.nextID++
	order.ID = s.nextID
	s.Orders[order.ID] = order
	s.StatusLog[order.ID] = append(s.StatusLog[order.ID], order.Status)
	return order.ID, nil
}

func (s *Store) InsertItem(ctx context.Context, item procurement.PurchaseOrderItem) (int64, error) {
	s.nextID++
	item.ID = s.nextID
	s.Items[item.ID] = item
	return item.ID, nil
}
