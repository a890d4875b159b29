package procurement_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lastdino/matex-sub001/internal/inventory"
	"github.com/lastdino/matex-sub001/internal/inventory/inventorytest"
	"github.com/lastdino/matex-sub001/internal/procurement"
	"github.com/lastdino/matex-sub001/internal/procurement/procurementtest"
	"github.com/lastdino/matex-sub001/internal/units"
)

type stubConverter map[string]decimal.Decimal

func (s stubConverter) Convert(ctx context.Context, materialID int64, qty decimal.Decimal, from, to string) (decimal.Decimal, error) {
	f, ok := s[from+">"+to]
	if !ok {
		return decimal.Zero, &units.ConversionError{MaterialID: materialID, From: from, To: to}
	}
	return qty.Mul(f), nil
}

type fixture struct {
	orders     *procurementtest.Store
	materials  *inventorytest.Store
	completion *procurement.CompletionService
	svc        *procurement.Service
	changes    []procurement.StatusChange
	flour      inventory.Material
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{orders: procurementtest.New(), materials: inventorytest.New()}
	f.flour = f.materials.AddMaterial(inventory.Material{SKU: "FLOUR", BaseUnit: "kg", Active: true})
	observer := procurement.ObserverFunc(func(ctx context.Context, change procurement.StatusChange) {
		f.changes = append(f.changes, change)
	})
	f.completion = procurement.NewCompletionService(f.orders, f.materials, stubConverter{"box>kg": decimal.NewFromInt(10)}, observer)
	f.svc = procurement.NewService(f.orders, f.completion, procurement.ServiceDeps{Observers: []procurement.StatusObserver{observer}})
	return f
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (f *fixture) seedOrder(status procurement.POStatus, items ...procurement.PurchaseOrderItem) (procurement.PurchaseOrder, []procurement.PurchaseOrderItem) {
	return f.orders.AddOrder(procurement.PurchaseOrder{Number: "PO-1", SupplierID: 7, Status: status}, items...)
}

func TestRecomputeMovesToReceivingThenClosed(t *testing.T) {
	f := newFixture(t)
	order, items := f.seedOrder(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.flour.ID, Unit: "box", QtyOrdered: dec("5")},
	)
	ctx := context.Background()

	f.orders.AddReceived(items[0].ID, dec("30"))
	status, err := f.completion.Recompute(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusReceiving, status)

	f.orders.AddReceived(items[0].ID, dec("20"))
	status, err = f.completion.Recompute(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusClosed, status)
	require.NotNil(t, f.orders.Orders[order.ID].ClosedAt)
	require.Equal(t, []procurement.POStatus{procurement.POStatusIssued, procurement.POStatusReceiving, procurement.POStatusClosed}, f.orders.StatusLog[order.ID])
	require.Len(t, f.changes, 2)
}

func TestRecomputeIgnoresShippingLines(t *testing.T) {
	f := newFixture(t)
	order, items := f.seedOrder(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, Unit: "ea", QtyOrdered: dec("10")},
		procurement.PurchaseOrderItem{LineNo: 2, Unit: procurement.ShippingUnit, QtyOrdered: dec("1")},
	)
	f.orders.AddReceived(items[0].ID, dec("10"))

	status, err := f.completion.Recompute(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusClosed, status)
}

func TestRecomputeUsesEffectiveOrdered(t *testing.T) {
	f := newFixture(t)
	order, items := f.seedOrder(procurement.POStatusReceiving,
		procurement.PurchaseOrderItem{LineNo: 1, Unit: "ea", QtyOrdered: dec("10"), QtyCanceled: dec("4")},
		procurement.PurchaseOrderItem{LineNo: 2, Unit: "ea", QtyOrdered: dec("3"), QtyCanceled: dec("5")},
	)
	ctx := context.Background()

	f.orders.AddReceived(items[0].ID, dec("5.9999999999"))
	status, err := f.completion.Recompute(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusClosed, status, "within tolerance of 6 and the over-canceled line counts as done")
}

func TestRecomputeNeverRegressesOrTouchesDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	closed, _ := f.seedOrder(procurement.POStatusClosed,
		procurement.PurchaseOrderItem{LineNo: 1, Unit: "ea", QtyOrdered: dec("10")},
	)
	status, err := f.completion.Recompute(ctx, closed.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusClosed, status)

	draft, items := f.seedOrder(procurement.POStatusDraft,
		procurement.PurchaseOrderItem{LineNo: 1, Unit: "ea", QtyOrdered: dec("1")},
	)
	f.orders.AddReceived(items[0].ID, dec("1"))
	status, err = f.completion.Recompute(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusDraft, status)
	require.Empty(t, f.changes)

	_, err = f.completion.Recompute(ctx, 424242)
	require.ErrorIs(t, err, procurement.ErrOrderNotFound)
}

func TestRecomputeFailsWithoutConversion(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.flour.ID, Unit: "bag", QtyOrdered: dec("5")},
	)
	_, err := f.completion.Recompute(context.Background(), order.ID)
	require.ErrorIs(t, err, units.ErrConversionNotDefined)
	require.Equal(t, procurement.POStatusIssued, f.orders.Orders[order.ID].Status)
}

func TestCreateIssueAndGetOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, procurement.NewOrderInput{
		Number:     "PO-100",
		SupplierID: 3,
		Items: []procurement.NewItemInput{
			{LineNo: 2, Unit: procurement.ShippingUnit, QtyOrdered: dec("1"), ShippingFor: 1},
			{LineNo: 1, MaterialID: &f.flour.ID, Unit: "box", QtyOrdered: dec("5")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusDraft, order.Status)

	issued, err := f.svc.Issue(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusIssued, issued.Status)
	require.NotNil(t, issued.IssuedAt)

	view, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	goods, shipping := view.Items[0].Item, view.Items[1].Item
	require.Equal(t, procurement.ScanToken(goods.ID), goods.ScanToken)
	require.Empty(t, shipping.ScanToken)
	require.NotNil(t, shipping.ShippingForItemID)
	require.Equal(t, goods.ID, *shipping.ShippingForItemID)
	require.True(t, view.Items[0].OrderedBase.Equal(dec("50")))
	require.Equal(t, "kg", view.Items[0].BaseUnit)

	_, err = f.svc.Issue(ctx, order.ID)
	require.ErrorIs(t, err, procurement.ErrInvalidTransition)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateOrder(ctx, procurement.NewOrderInput{
		Number: "PO-1", SupplierID: 1,
		Items: []procurement.NewItemInput{{LineNo: 1, Unit: "ea", QtyOrdered: dec("1")}, {LineNo: 1, Unit: "ea", QtyOrdered: dec("2")}},
	})
	require.ErrorIs(t, err, procurement.ErrInvalidOrder)

	_, err = f.svc.CreateOrder(ctx, procurement.NewOrderInput{
		Number: "PO-2", SupplierID: 1,
		Items: []procurement.NewItemInput{{LineNo: 1, Unit: "ea", QtyOrdered: dec("1")}, {LineNo: 2, Unit: "ea", QtyOrdered: dec("1"), ShippingFor: 1}},
	})
	require.ErrorIs(t, err, procurement.ErrInvalidOrder)

	_, err = f.svc.CreateOrder(ctx, procurement.NewOrderInput{
		Number: "PO-3", SupplierID: 1,
		Items: []procurement.NewItemInput{{LineNo: 1, Unit: procurement.ShippingUnit, QtyOrdered: dec("1"), ShippingFor: 9}},
	})
	require.ErrorIs(t, err, procurement.ErrInvalidOrder)
	require.Empty(t, f.orders.Orders)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	open, _ := f.seedOrder(procurement.POStatusReceiving)
	canceled, err := f.svc.Cancel(ctx, open.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusCanceled, canceled.Status)

	closed, _ := f.seedOrder(procurement.POStatusClosed)
	_, err = f.svc.Cancel(ctx, closed.ID)
	require.ErrorIs(t, err, procurement.ErrInvalidTransition)
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to procurement.POStatus
		ok       bool
	}{
		{procurement.POStatusDraft, procurement.POStatusIssued, true},
		{procurement.POStatusIssued, procurement.POStatusReceiving, true},
		{procurement.POStatusReceiving, procurement.POStatusClosed, true},
		{procurement.POStatusIssued, procurement.POStatusClosed, true},
		{procurement.POStatusClosed, procurement.POStatusReceiving, false},
		{procurement.POStatusDraft, procurement.POStatusReceiving, false},
		{procurement.POStatusClosed, procurement.POStatusCanceled, false},
		{procurement.POStatusDraft, procurement.POStatusCanceled, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s → %s", tc.from, tc.to)
	}
	require.True(t, procurement.POStatusReceiving.AcceptsReceipts())
	require.False(t, procurement.POStatusDraft.AcceptsReceipts())
}
