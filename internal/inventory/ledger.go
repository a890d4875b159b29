package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/shared"
)

// MovementStore appends ledger rows.
type MovementStore interface {
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

// MovementInput describes one ledger row to append.
type MovementInput struct {
	MaterialID int64
	LotID      *int64
	Source     SourceRef
	QtyBase    decimal.Decimal
	Unit       string
	OccurredAt time.Time
	Reason     string
}

// LedgerService appends stock movements. It never updates or deletes rows.
type LedgerService struct{}

// NewLedgerService constructs LedgerService.
func NewLedgerService() *LedgerService {
	return &LedgerService{}
}

// In records an inbound movement.
func (s *LedgerService) In(ctx context.Context, store MovementStore, input MovementInput) (Movement, error) {
	return s.append(ctx, store, DirectionIn, input)
}

// Out records an outbound movement.
func (s *LedgerService) Out(ctx context.Context, store MovementStore, input MovementInput) (Movement, error) {
	return s.append(ctx, store, DirectionOut, input)
}

func (s *LedgerService) append(ctx context.Context, store MovementStore, dir Direction, input MovementInput) (Movement, error) {
	if !input.Source.Kind.Valid() || input.Source.ID <= 0 {
		return Movement{}, ErrInvalidSource
	}
	if !input.QtyBase.IsPositive() {
		return Movement{}, ErrInvalidQuantity
	}
	occurred := input.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	m := Movement{
		MaterialID: input.MaterialID,
		LotID:      input.LotID,
		Direction:  dir,
		Source:     input.Source,
		QtyBase:    input.QtyBase,
		Unit:       input.Unit,
		OccurredAt: occurred,
		Reason:     input.Reason,
	}
	if actor, ok := shared.ActorFromContext(ctx); ok {
		m.ActorID = &actor
	}
	id, err := store.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	m.ID = id
	return m, nil
}
