// Package receivingtest wires the in-memory inventory and order stores into one
// transactional receiving store for tests.
package receivingtest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lastdino/matex-sub001/internal/inventory/inventorytest"
	"github.com/lastdino/matex-sub001/internal/procurement/procurementtest"
	"github.com/lastdino/matex-sub001/internal/receiving"
)

type (
	// InventoryStore is the embedded stock fake.
	InventoryStore = inventorytest.Store
	// OrderStore is the embedded order fake.
	OrderStore = procurementtest.Store
)

// Store implements receiving.RepositoryPort and receiving.TxRepository. WithTx
// snapshots all three stores and restores them when the callback fails.
type Store struct {
	*InventoryStore
	*OrderStore

	mu         sync.Mutex
	Receivings map[int64]receiving.Receiving
	Items      []receiving.Item
	// FailAfterItems makes InsertReceivingItem fail once this many items exist; zero disables it.
	FailAfterItems int
	nextID         int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		InventoryStore: inventorytest.New(),
		OrderStore:     procurementtest.New(),
		Receivings:     map[int64]receiving.Receiving{},
		nextID:         5000,
	}
}

type snapshot struct {
	inv        inventorytest.Snapshot
	orders     procurementtest.Snapshot
	receivings map[int64]receiving.Receiving
	items      []receiving.Item
	nextID     int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		inv:        s.InventoryStore.Snapshot(),
		orders:     s.OrderStore.Snapshot(),
		receivings: make(map[int64]receiving.Receiving, len(s.Receivings)),
		items:      append([]receiving.Item(nil), s.Items...),
		nextID:     s.nextID,
	}
	for k, v := range s.Receivings {
		snap.receivings[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.InventoryStore.Restore(snap.inv)
	s.OrderStore.Restore(snap.orders)
	s.Receivings = snap.receivings
	s.Items = snap.items
	s.nextID = snap.nextID
}

// WithTx runs fn against the store, rolling every embedded store back on error.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, receiving.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(ctx, s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// ItemsFor lists receiving items of one order line.
func (s *Store) ItemsFor(orderItemID int64) []receiving.Item {
	var out []receiving.Item
	for _, item := range s.Items {
		if item.PurchaseOrderItemID == orderItemID {
			out = append(out, item)
		}
	}
	return out
}

func (s *Store) InsertReceiving(ctx context.Context, header receiving.Receiving) (int64, error) {
	s.nextID++
	header.ID = s.nextID
	s.Receivings[header.ID] = header
	return header.ID, nil
}

func (s *Store) InsertReceivingItem(ctx context.Context, item receiving.Item) (int64, error) {
	if s.FailAfterItems > 0 && len(s.Items) >= s.FailAfterItems {
		return 0, ErrInjected
	}
	s.nextID++
	item.ID = s.nextID
	s.Items = append(s.Items, item)
	s.OrderStore.AddReceived(item.PurchaseOrderItemID, item.QtyBase)
	return item.ID, nil
}

func (s *Store) CountReceivingItems(ctx context.Context, orderItemID int64) (int, error) {
	return len(s.ItemsFor(orderItemID)), nil
}

func (s *Store) LatestReceivedAt(ctx context.Context, orderItemID int64) (time.Time, bool, error) {
	var latest time.Time
	found := false
	for _, item := range s.ItemsFor(orderItemID) {
		at := s.Receivings[item.ReceivingID].ReceivedAt
		if !found || at.After(latest) {
			latest, found = at, true
		}
	}
	return latest, found, nil
}

func (s *Store) ListReceipts(ctx context.Context, orderID int64) ([]receiving.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var headers []receiving.Receiving
	for _, h := range s.Receivings {
		if h.PurchaseOrderID == orderID {
			headers = append(headers, h)
		}
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].ID < headers[j].ID })
	out := []receiving.Receipt{}
	for _, h := range headers {
		receipt := receiving.Receipt{Receiving: h}
		for _, item := range s.Items {
			if item.ReceivingID == h.ID {
				receipt.Items = append(receipt.Items, item)
			}
		}
		out = append(out, receipt)
	}
	return out, nil
}

func (s *Store) PendingCascadeOrders(ctx context.Context, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int64]bool{}
	var ids []int64
	for _, item := range s.OrderStore.Items {
		if !item.IsShipping() || item.ShippingForItemID == nil || seen[item.PurchaseOrderID] {
			continue
		}
		if len(s.ItemsFor(item.ID)) == 0 && len(s.ItemsFor(*item.ShippingForItemID)) > 0 {
			seen[item.PurchaseOrderID] = true
			ids = append(ids, item.PurchaseOrderID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// ErrInjected is returned by InsertReceivingItem once FailAfterItems is reached.
var ErrInjected = errors.New("receivingtest: injected failure")
