package inventory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lastdino/matex-sub001/internal/inventory"
	"github.com/lastdino/matex-sub001/internal/inventory/inventorytest"
	"github.com/lastdino/matex-sub001/internal/shared"
)

func TestLedgerRecordsActorFromContext(t *testing.T) {
	store := inventorytest.New()
	ledger := inventory.NewLedgerService()
	ctx := shared.ContextWithActor(context.Background(), 42)

	mv, err := ledger.In(ctx, store, inventory.MovementInput{
		MaterialID: 1,
		Source:     inventory.SourceRef{Kind: inventory.SourceReceivingItem, ID: 9},
		QtyBase:    decimal.NewFromInt(3),
		Unit:       "kg",
		Reason:     "receipt",
	})
	require.NoError(t, err)
	require.NotZero(t, mv.ID)
	require.Equal(t, inventory.DirectionIn, mv.Direction)
	require.NotNil(t, mv.ActorID)
	require.Equal(t, int64(42), *mv.ActorID)
	require.False(t, mv.OccurredAt.IsZero())
}

func TestLedgerLeavesActorEmptyWithoutContext(t *testing.T) {
	store := inventorytest.New()
	mv, err := inventory.NewLedgerService().Out(context.Background(), store, inventory.MovementInput{
		MaterialID: 1,
		Source:     inventory.SourceRef{Kind: inventory.SourceStockAdjustment, ID: 1},
		QtyBase:    decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	require.Nil(t, mv.ActorID)
	require.Equal(t, inventory.DirectionOut, mv.Direction)
}

func TestLedgerRejectsUnknownSource(t *testing.T) {
	store := inventorytest.New()
	_, err := inventory.NewLedgerService().In(context.Background(), store, inventory.MovementInput{
		MaterialID: 1,
		Source:     inventory.SourceRef{Kind: "invoice", ID: 1},
		QtyBase:    decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, inventory.ErrInvalidSource)
	require.Empty(t, store.Movements)
}
