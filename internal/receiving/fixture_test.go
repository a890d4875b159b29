package receiving_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/inventory"
	"github.com/lastdino/matex-sub001/internal/procurement"
	"github.com/lastdino/matex-sub001/internal/receiving"
	"github.com/lastdino/matex-sub001/internal/receiving/receivingtest"
	"github.com/lastdino/matex-sub001/internal/shared"
	"github.com/lastdino/matex-sub001/internal/units"
)

type conversionStore struct {
	factors map[string]decimal.Decimal
}

func key(materialID int64, from, to string) string {
	return decimal.NewFromInt(materialID).String() + ":" + from + ">" + to
}

func (s *conversionStore) Lookup(ctx context.Context, materialID int64, from, to string) (decimal.Decimal, bool, error) {
	f, ok := s.factors[key(materialID, from, to)]
	return f, ok, nil
}

func (s *conversionStore) List(ctx context.Context, materialID int64) ([]units.Conversion, error) {
	return nil, nil
}

func (s *conversionStore) Upsert(ctx context.Context, conv units.Conversion) (units.Conversion, error) {
	s.factors[key(conv.MaterialID, conv.FromUnit, conv.ToUnit)] = conv.Factor
	return conv, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []inventory.StockChange
}

func (n *recordingNotifier) Publish(ctx context.Context, changes ...inventory.StockChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, changes...)
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type memoryIdem struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdem) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type recorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	failed   []string
}

func (r *recorder) ObserveReceipt(outcome string, lines int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

func (r *recorder) HookFailed(hook string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, hook)
}

type fixture struct {
	store      *receivingtest.Store
	units      *units.Service
	inventory  *inventory.Service
	completion *procurement.CompletionService
	cascade    *receiving.Cascade
	notifier   *recordingNotifier
	audit      *recordingAudit
	idem       *memoryIdem
	metrics    *recorder
	svc        *receiving.Service

	flour inventory.Material // kg, box→kg 10
	resin inventory.Material // l, lot-managed
	bolt  inventory.Material // ea
}

type option func(*fixture, *receiving.ServiceDeps)

func withoutHooks() option {
	return func(f *fixture, deps *receiving.ServiceDeps) { deps.Hooks = nil }
}

func withHooks(hooks ...receiving.PostCommitHook) option {
	return func(f *fixture, deps *receiving.ServiceDeps) { deps.Hooks = hooks }
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	f := &fixture{
		store:    receivingtest.New(),
		notifier: &recordingNotifier{},
		audit:    &recordingAudit{},
		idem:     &memoryIdem{keys: map[string]bool{}},
		metrics:  &recorder{outcomes: map[string]int{}},
	}
	f.flour = f.store.AddMaterial(inventory.Material{SKU: "FLOUR", BaseUnit: "kg", Active: true})
	f.resin = f.store.AddMaterial(inventory.Material{SKU: "RESIN", BaseUnit: "l", LotManaged: true, Active: true})
	f.bolt = f.store.AddMaterial(inventory.Material{SKU: "BOLT", BaseUnit: "ea", Active: true})

	convs := &conversionStore{factors: map[string]decimal.Decimal{}}
	f.units = units.NewService(convs, nil)
	ctx := context.Background()
	for _, c := range []units.Conversion{
		{MaterialID: f.flour.ID, FromUnit: "box", ToUnit: "kg", Factor: decimal.NewFromInt(10)},
		{MaterialID: f.resin.ID, FromUnit: "can", ToUnit: "l", Factor: decimal.RequireFromString("2.5")},
	} {
		if _, err := f.units.Define(ctx, c); err != nil {
			t.Fatalf("define conversion: %v", err)
		}
	}

	f.inventory = inventory.NewService(f.store.InventoryStore, f.units, inventory.ServiceDeps{})
	f.completion = procurement.NewCompletionService(f.store.OrderStore, f.store.InventoryStore, f.units)
	f.cascade = receiving.NewCascade(f.store, f.completion, f.audit, nil)
	lines := receiving.NewLineService(f.units, receiving.NewGuard(f.units), f.inventory)

	deps := receiving.ServiceDeps{
		Hooks: []receiving.PostCommitHook{
			receiving.CompletionHook(f.completion),
			receiving.CascadeHook(f.cascade),
			receiving.StockSyncHook(f.notifier),
			receiving.AuditHook(f.audit),
		},
		Idempotency: f.idem,
		Metrics:     f.metrics,
	}
	for _, opt := range opts {
		opt(f, &deps)
	}
	f.svc = receiving.NewService(f.store, lines, deps)
	return f
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (f *fixture) order(status procurement.POStatus, items ...procurement.PurchaseOrderItem) (procurement.PurchaseOrder, []procurement.PurchaseOrderItem) {
	return f.store.AddOrder(procurement.PurchaseOrder{Number: "PO-77", SupplierID: 9, Status: status, CreatedAt: time.Now()}, items...)
}

func (f *fixture) status(orderID int64) procurement.POStatus {
	return f.store.Orders[orderID].Status
}

func ptr(v int64) *int64 { return &v }
