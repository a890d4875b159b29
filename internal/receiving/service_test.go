package receiving_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lastdino/matex-sub001/internal/inventory"
	"github.com/lastdino/matex-sub001/internal/procurement"
	"github.com/lastdino/matex-sub001/internal/receiving"
	"github.com/lastdino/matex-sub001/internal/receiving/receivingtest"
	"github.com/lastdino/matex-sub001/internal/shared"
	"github.com/lastdino/matex-sub001/internal/units"
)

func TestReceiveConvertsBoxesAndRejectsOverDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.flour.ID, Unit: "box", QtyOrdered: dec("5")},
	)

	receipt, err := f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("3")}},
	})
	require.NoError(t, err)
	require.Len(t, receipt.Items, 1)
	require.Equal(t, "box", receipt.Items[0].Unit)
	require.Equal(t, "30", receipt.Items[0].QtyBase.String())
	require.Nil(t, receipt.Items[0].LotID)
	require.Equal(t, procurement.POStatusReceiving, receipt.Status)
	require.Equal(t, procurement.POStatusReceiving, f.status(order.ID))
	require.Equal(t, "30", f.store.Materials[f.flour.ID].CurrentStock.String())

	_, err = f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("3")}},
	})
	require.ErrorIs(t, err, receiving.ErrOverDelivery)
	var over *receiving.OverDeliveryError
	require.True(t, errors.As(err, &over))
	require.Equal(t, "50", over.Ordered.String())
	require.Equal(t, "30", over.Received.String())
	require.Equal(t, "20", over.Remaining().String())
	require.Equal(t, "kg", over.Unit)

	require.Len(t, f.store.ItemsFor(items[0].ID), 1)
	require.Len(t, f.store.Movements, 1)
	require.Equal(t, "30", f.store.Materials[f.flour.ID].CurrentStock.String())
	require.Equal(t, 1, f.metrics.outcomes["rejected"])
}

func TestShippingLineCascadesAndOrderCloses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.bolt.ID, Unit: "ea", QtyOrdered: dec("10")},
	)
	goods := items[0]
	_, shipping := f.store.AddOrder(order, procurement.PurchaseOrderItem{
		LineNo: 2, Unit: procurement.ShippingUnit, QtyOrdered: dec("1"), ShippingForItemID: &goods.ID,
	})
	receivedAt := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	receipt, err := f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID:    order.ID,
		ReceivedAt: receivedAt,
		Lines:      []receiving.LineInput{{ItemID: goods.ID, Qty: dec("10")}},
	})
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusClosed, receipt.Status)
	require.Equal(t, procurement.POStatusClosed, f.status(order.ID))

	shipped := f.store.ItemsFor(shipping[0].ID)
	require.Len(t, shipped, 1)
	require.Equal(t, "1", shipped[0].Qty.String())
	require.Equal(t, "1", shipped[0].QtyBase.String())
	require.Equal(t, procurement.ShippingUnit, shipped[0].Unit)
	header := f.store.Receivings[shipped[0].ReceivingID]
	require.NotEqual(t, receipt.Receiving.ID, header.ID)
	require.True(t, header.ReceivedAt.Equal(receivedAt))
	require.Len(t, f.store.Receivings, 2)
}

func TestLotNumberRequiredAndAccumulates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.resin.ID, Unit: "can", QtyOrdered: dec("20")},
	)

	_, err := f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("2")}},
	})
	require.ErrorIs(t, err, inventory.ErrLotNumberRequired)
	require.Empty(t, f.store.Receivings)
	require.Empty(t, f.store.Items)

	expires := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		lot := inventory.LotFields{Number: "L1"}
		if i == 0 {
			lot.ExpiresOn = &expires
		}
		_, err := f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
			OrderID: order.ID,
			Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("2"), Lot: lot}},
		})
		require.NoError(t, err)
	}
	lots := f.store.LotsFor(f.resin.ID)
	require.Len(t, lots, 1)
	require.Equal(t, "L1", lots[0].Number)
	require.Equal(t, "10", lots[0].QtyOnHand.String())
	require.NotNil(t, lots[0].ExpiresOn, "a later receipt without dates keeps the recorded expiry")
	require.NotNil(t, lots[0].PurchaseOrderID)
	require.Equal(t, order.ID, *lots[0].PurchaseOrderID)
	require.NotNil(t, lots[0].SupplierID)
	require.Equal(t, int64(9), *lots[0].SupplierID)

	for _, item := range f.store.ItemsFor(items[0].ID) {
		require.NotNil(t, item.LotID)
		require.Equal(t, lots[0].ID, *item.LotID)
	}
}

func TestAdHocLineKeepsRawQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, Description: "calibration service", Unit: "hr", QtyOrdered: dec("7")},
	)

	receipt, err := f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("2.5")}},
	})
	require.NoError(t, err)
	require.True(t, receipt.Items[0].QtyBase.Equal(receipt.Items[0].Qty))
	require.Equal(t, "2.5", receipt.Items[0].QtyBase.String())
	require.Nil(t, receipt.Items[0].MaterialID)
	require.Empty(t, receipt.Changes)
	require.Empty(t, f.store.Movements)
	require.Empty(t, f.notifier.changes)

	_, err = f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("1"), Unit: "day"}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("4.6")}},
	})
	require.ErrorIs(t, err, receiving.ErrOverDelivery)
}

func TestRejectsDraftOrderAndShippingLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft, draftItems := f.order(procurement.POStatusDraft,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.bolt.ID, Unit: "ea", QtyOrdered: dec("1")},
	)
	_, err := f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: draft.ID,
		Lines:   []receiving.LineInput{{ItemID: draftItems[0].ID, Qty: dec("1")}},
	})
	require.ErrorIs(t, err, receiving.ErrInvalidOrderStatus)

	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.bolt.ID, Unit: "ea", QtyOrdered: dec("1")},
		procurement.PurchaseOrderItem{LineNo: 2, Unit: procurement.ShippingUnit, QtyOrdered: dec("1")},
	)
	_, err = f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[1].ID, Qty: dec("1")}},
	})
	require.ErrorIs(t, err, receiving.ErrShippingLineNotReceivable)
	require.Empty(t, f.store.Items)
	require.Equal(t, procurement.POStatusDraft, f.status(draft.ID))
	require.Equal(t, procurement.POStatusIssued, f.status(order.ID))
}

func TestMultiLineReceiptIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.resin.ID, Unit: "l", QtyOrdered: dec("10")},
		procurement.PurchaseOrderItem{LineNo: 2, MaterialID: &f.flour.ID, Unit: "kg", QtyOrdered: dec("5")},
	)

	_, err := f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines: []receiving.LineInput{
			{ItemID: items[0].ID, Qty: dec("4"), Lot: inventory.LotFields{Number: "A"}},
			{ItemID: items[1].ID, Qty: dec("6")},
		},
	})
	require.ErrorIs(t, err, receiving.ErrOverDelivery)
	require.Empty(t, f.store.Receivings)
	require.Empty(t, f.store.Items)
	require.Empty(t, f.store.Movements)
	require.Empty(t, f.store.LotsFor(f.resin.ID))
	require.True(t, f.store.Materials[f.resin.ID].CurrentStock.IsZero())
	require.Empty(t, f.store.Received)
	require.Empty(t, f.notifier.changes)
	require.Equal(t, procurement.POStatusIssued, f.status(order.ID))
}

func TestStorageFailureRollsBackEarlierLines(t *testing.T) {
	f := newFixture(t)
	f.store.FailAfterItems = 1
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.bolt.ID, Unit: "ea", QtyOrdered: dec("10")},
		procurement.PurchaseOrderItem{LineNo: 2, MaterialID: &f.bolt.ID, Unit: "ea", QtyOrdered: dec("10")},
	)
	_, err := f.svc.ReceiveLines(context.Background(), receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("1")}, {ItemID: items[1].ID, Qty: dec("1")}},
	})
	require.ErrorIs(t, err, receivingtest.ErrInjected)
	require.Empty(t, f.store.Items)
	require.True(t, f.store.Materials[f.bolt.ID].CurrentStock.IsZero())
	require.Empty(t, f.store.Movements)
}

func TestPartiallyCanceledLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.flour.ID, Unit: "box", QtyOrdered: dec("10"), QtyCanceled: dec("4")},
	)
	receive := func(qty string) error {
		_, err := f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
			OrderID: order.ID,
			Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec(qty)}},
		})
		return err
	}
	require.ErrorIs(t, receive("7"), receiving.ErrOverDelivery)
	require.NoError(t, receive("5"))
	require.Equal(t, procurement.POStatusReceiving, f.status(order.ID))
	require.NoError(t, receive("1"))
	require.Equal(t, procurement.POStatusClosed, f.status(order.ID))
	require.ErrorIs(t, receive("0.1"), receiving.ErrInvalidOrderStatus)
}

func TestInputUnitIsConverted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.flour.ID, Unit: "box", QtyOrdered: dec("2")},
	)
	receipt, err := f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("12.5"), Unit: "kg"}},
	})
	require.NoError(t, err)
	require.Equal(t, "kg", receipt.Items[0].Unit)
	require.Equal(t, "12.5", receipt.Items[0].QtyBase.String())

	_, err = f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("1"), Unit: "bag"}},
	})
	require.ErrorIs(t, err, units.ErrConversionNotDefined)
	var convErr *units.ConversionError
	require.True(t, errors.As(err, &convErr))
	require.Equal(t, "bag", convErr.From)
	require.Equal(t, "kg", convErr.To)
}

func TestNonLotManagedMaterialIgnoresLotNumber(t *testing.T) {
	f := newFixture(t)
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.bolt.ID, Unit: "ea", QtyOrdered: dec("5")},
	)
	receipt, err := f.svc.ReceiveLines(context.Background(), receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("5"), Lot: inventory.LotFields{Number: "IGNORED"}}},
	})
	require.NoError(t, err)
	require.Nil(t, receipt.Items[0].LotID)
	require.Empty(t, f.store.LotsFor(f.bolt.ID))
	require.Len(t, f.store.Movements, 1)
	require.Nil(t, f.store.Movements[0].LotID)
}

func TestLocationCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	capacity := dec("40")
	shelf := f.store.AddLocation(inventory.Location{Code: "A-01", Capacity: &capacity})
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.flour.ID, Unit: "box", QtyOrdered: dec("10")},
	)
	_, err := f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("3"), LocationID: &shelf.ID}},
	})
	require.NoError(t, err)
	require.Equal(t, "30", f.store.Locations[shelf.ID].Occupied.String())

	_, err = f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("2"), LocationID: &shelf.ID}},
	})
	require.ErrorIs(t, err, inventory.ErrStorageCapacityExceeded)
	require.Equal(t, "30", f.store.Locations[shelf.ID].Occupied.String())

	_, err = f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("1"), LocationID: ptr(424242)}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReceiveByToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.resin.ID, Unit: "can", QtyOrdered: dec("4"), ScanToken: "tok-1"},
	)
	receipt, err := f.svc.ReceiveByToken(ctx, receiving.TokenReceiveInput{
		Token: "tok-1",
		Qty:   dec("2"),
		Lot:   inventory.LotFields{Number: "B7"},
	})
	require.NoError(t, err)
	require.Len(t, receipt.Items, 1)
	require.Equal(t, items[0].ID, receipt.Items[0].PurchaseOrderItemID)
	require.Equal(t, order.ID, receipt.Receiving.PurchaseOrderID)
	require.Equal(t, "5", receipt.Items[0].QtyBase.String())
	require.Len(t, f.notifier.changes, 1)
	require.Equal(t, "RESIN", f.notifier.changes[0].SKU)
	require.Equal(t, "B7", f.notifier.changes[0].LotNumber)

	_, err = f.svc.ReceiveByToken(ctx, receiving.TokenReceiveInput{Token: "nope", Qty: dec("1")})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.ReceiveByToken(ctx, receiving.TokenReceiveInput{Token: " ", Qty: dec("1")})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestUnknownOrderAndForeignLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, _ := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, Unit: "ea", QtyOrdered: dec("1")},
	)
	_, otherItems := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, Unit: "ea", QtyOrdered: dec("1")},
	)

	_, err := f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: first.ID,
		Lines:   []receiving.LineInput{{ItemID: otherItems[0].ID, Qty: dec("1")}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.ErrorIs(t, err, receiving.ErrItemNotOnOrder)

	_, err = f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: 999999,
		Lines:   []receiving.LineInput{{ItemID: otherItems[0].ID, Qty: dec("1")}},
	})
	require.ErrorIs(t, err, procurement.ErrOrderNotFound)

	_, err = f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: first.ID,
		Lines:   []receiving.LineInput{{ItemID: 888888, Qty: dec("1")}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{OrderID: first.ID})
	require.ErrorIs(t, err, receiving.ErrNoLines)

	_, err = f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID: first.ID,
		Lines:   []receiving.LineInput{{ItemID: otherItems[0].ID, Qty: dec("0")}},
	})
	require.Error(t, err)
}

func TestSameLineTwiceInOneReceiptIsGuardedCumulatively(t *testing.T) {
	f := newFixture(t)
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.bolt.ID, Unit: "ea", QtyOrdered: dec("5")},
	)
	_, err := f.svc.ReceiveLines(context.Background(), receiving.ReceiveLinesInput{
		OrderID: order.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("3")}, {ItemID: items[0].ID, Qty: dec("3")}},
	})
	require.ErrorIs(t, err, receiving.ErrOverDelivery)
	require.Empty(t, f.store.Items)
}

func TestIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.bolt.ID, Unit: "ea", QtyOrdered: dec("5")},
	)
	input := receiving.ReceiveLinesInput{
		OrderID:        order.ID,
		IdempotencyKey: "scan-1",
		Lines:          []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("1")}},
	}
	_, err := f.svc.ReceiveLines(ctx, input)
	require.NoError(t, err)
	_, err = f.svc.ReceiveLines(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, f.store.Items, 1)

	failing := input
	failing.IdempotencyKey = "scan-2"
	failing.Lines = []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("9")}}
	_, err = f.svc.ReceiveLines(ctx, failing)
	require.ErrorIs(t, err, receiving.ErrOverDelivery)
	require.False(t, f.idem.keys["RCV:scan-2"])
}

func TestHookFailureDoesNotFailReceipt(t *testing.T) {
	var order []string
	f := newFixture(t, withHooks(
		receiving.Hook("first", func(ctx context.Context, r *receiving.Receipt) error {
			order = append(order, "first")
			return errors.New("sync endpoint down")
		}),
		receiving.Hook("second", func(ctx context.Context, r *receiving.Receipt) error {
			order = append(order, "second")
			return nil
		}),
	))
	po, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.bolt.ID, Unit: "ea", QtyOrdered: dec("5")},
	)
	receipt, err := f.svc.ReceiveLines(context.Background(), receiving.ReceiveLinesInput{
		OrderID: po.ID,
		Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("1")}},
	})
	require.NoError(t, err)
	require.NotZero(t, receipt.Receiving.ID)
	require.Equal(t, []string{"first", "second"}, order)
	require.Equal(t, []string{"first"}, f.metrics.failed)
	require.Len(t, f.store.Items, 1)
}

func TestAuditAndActor(t *testing.T) {
	f := newFixture(t)
	ctx := shared.ContextWithActor(context.Background(), 42)
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.bolt.ID, Unit: "ea", QtyOrdered: dec("5")},
	)
	receipt, err := f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{
		OrderID:   order.ID,
		Reference: "DN-1",
		Lines:     []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("2")}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(42), receipt.Receiving.CreatedBy)
	require.Len(t, f.store.Movements, 1)
	require.NotNil(t, f.store.Movements[0].ActorID)
	require.Equal(t, int64(42), *f.store.Movements[0].ActorID)
	require.Equal(t, inventory.SourceRef{Kind: inventory.SourceReceivingItem, ID: receipt.Items[0].ID}, f.store.Movements[0].Source)

	require.Len(t, f.audit.logs, 1)
	require.Equal(t, "receiving.create", f.audit.logs[0].Action)
	require.Equal(t, "DN-1", f.audit.logs[0].Meta["reference"])
}

func TestReceivedNeverExceedsOrderedUnderConcurrency(t *testing.T) {
	f := newFixture(t, withoutHooks())
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.flour.ID, Unit: "box", QtyOrdered: dec("5")},
	)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, over int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ReceiveLines(context.Background(), receiving.ReceiveLinesInput{
				OrderID: order.ID,
				Lines:   []receiving.LineInput{{ItemID: items[0].ID, Qty: dec("1")}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, receiving.ErrOverDelivery):
				over++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 5, ok)
	require.Equal(t, 7, over)

	total := decimal.Zero
	for _, item := range f.store.ItemsFor(items[0].ID) {
		total = total.Add(item.QtyBase)
	}
	require.Equal(t, "50", total.String())
	require.Equal(t, "50", f.store.Materials[f.flour.ID].CurrentStock.String())
}

func TestStatusIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, items := f.order(procurement.POStatusIssued,
		procurement.PurchaseOrderItem{LineNo: 1, MaterialID: &f.bolt.ID, Unit: "ea", QtyOrdered: dec("3")},
		procurement.PurchaseOrderItem{LineNo: 2, Unit: "job", QtyOrdered: dec("1")},
	)
	steps := []receiving.LineInput{
		{ItemID: items[0].ID, Qty: dec("1")},
		{ItemID: items[1].ID, Qty: dec("1")},
		{ItemID: items[0].ID, Qty: dec("2")},
	}
	for _, step := range steps {
		_, err := f.svc.ReceiveLines(ctx, receiving.ReceiveLinesInput{OrderID: order.ID, Lines: []receiving.LineInput{step}})
		require.NoError(t, err)
	}
	rank := map[procurement.POStatus]int{
		procurement.POStatusIssued:    1,
		procurement.POStatusReceiving: 2,
		procurement.POStatusClosed:    3,
	}
	log := f.store.StatusLog[order.ID]
	require.Equal(t, procurement.POStatusClosed, log[len(log)-1])
	for i := 1; i < len(log); i++ {
		require.GreaterOrEqual(t, rank[log[i]], rank[log[i-1]])
	}
}
