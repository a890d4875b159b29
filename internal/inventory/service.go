package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMaterial(ctx context.Context, id int64) (Material, error)
	GetLot(ctx context.Context, materialID int64, number string) (Lot, error)
	ListLots(ctx context.Context, materialID int64) ([]Lot, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LotStore
	MovementStore
	LocationStore
	GetMaterial(ctx context.Context, id int64) (Material, error)
	AdjustMaterialStock(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error)
	InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error)
}

// Converter resolves unit conversions.
type Converter interface {
	Convert(ctx context.Context, materialID int64, qty decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards replayed requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates lots, the movement ledger and the material stock counter.
type Service struct {
	repo     RepositoryPort
	units    Converter
	lots     *LotService
	ledger   *LedgerService
	audit    AuditPort
	idem     IdempotencyPort
	notifier Notifier
	logger   *slog.Logger
}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Notifier    Notifier
	Logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, units Converter, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		units:    units,
		lots:     NewLotService(),
		ledger:   NewLedgerService(),
		audit:    deps.Audit,
		idem:     deps.Idempotency,
		notifier: deps.Notifier,
		logger:   logger,
	}
}

// Booked is the result of writing a movement inside a transaction.
type Booked struct {
	Movement Movement
	Lot      *Lot
	Change   StockChange
}

// EnsureLot upserts and increments the lot of a lot-managed material.
// Materials without lot management skip the lot step and get a nil lot.
func (s *Service) EnsureLot(ctx context.Context, tx TxRepository, material Material, fields LotFields, qtyBase decimal.Decimal, receivedAt time.Time, prov Provenance) (*Lot, error) {
	if !material.LotManaged {
		return nil, nil
	}
	lot, err := s.lots.EnsureAndIncrement(ctx, tx, LotInput{
		MaterialID: material.ID,
		Fields:     fields,
		QtyBase:    qtyBase,
		ReceivedAt: receivedAt,
		Provenance: prov,
	})
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// BookInbound appends an inbound movement and raises the material counter in place.
func (s *Service) BookInbound(ctx context.Context, tx TxRepository, material Material, lot *Lot, source SourceRef, qtyBase decimal.Decimal, at time.Time, reason string) (Booked, error) {
	mv, err := s.ledger.In(ctx, tx, MovementInput{
		MaterialID: material.ID,
		LotID:      lotID(lot),
		Source:     source,
		QtyBase:    qtyBase,
		Unit:       material.BaseUnit,
		OccurredAt: at,
		Reason:     reason,
	})
	if err != nil {
		return Booked{}, err
	}
	if _, err := tx.AdjustMaterialStock(ctx, material.ID, qtyBase); err != nil {
		return Booked{}, err
	}
	return Booked{Movement: mv, Lot: lot, Change: ChangeFor(mv, material.SKU, lotNumber(lot))}, nil
}

// BookOutbound appends an outbound movement and lowers the material counter in place.
func (s *Service) BookOutbound(ctx context.Context, tx TxRepository, material Material, lot *Lot, source SourceRef, qtyBase decimal.Decimal, at time.Time, reason string) (Booked, error) {
	if _, err := tx.AdjustMaterialStock(ctx, material.ID, qtyBase.Neg()); err != nil {
		return Booked{}, err
	}
	mv, err := s.ledger.Out(ctx, tx, MovementInput{
		MaterialID: material.ID,
		LotID:      lotID(lot),
		Source:     source,
		QtyBase:    qtyBase,
		Unit:       material.BaseUnit,
		OccurredAt: at,
		Reason:     reason,
	})
	if err != nil {
		return Booked{}, err
	}
	return Booked{Movement: mv, Lot: lot, Change: ChangeFor(mv, material.SKU, lotNumber(lot))}, nil
}

// PostInbound books stock received outside of a purchase order.
func (s *Service) PostInbound(ctx context.Context, input DirectMovementInput) (Booked, error) {
	return s.postDirect(ctx, DirectionIn, input)
}

// PostOutbound books stock leaving outside of any order flow.
func (s *Service) PostOutbound(ctx context.Context, input DirectMovementInput) (Booked, error) {
	return s.postDirect(ctx, DirectionOut, input)
}

func (s *Service) postDirect(ctx context.Context, dir Direction, input DirectMovementInput) (Booked, error) {
	if input.MaterialID <= 0 {
		return Booked{}, fmt.Errorf("inventory: material required: %w", shared.ErrInvalidInput)
	}
	if !input.Qty.IsPositive() {
		return Booked{}, ErrInvalidQuantity
	}
	at := input.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	key := ""
	if input.IdempotencyKey != "" && s.idem != nil {
		key = fmt.Sprintf("STOCK:%s", input.IdempotencyKey)
		if err := s.idem.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return Booked{}, err
		}
	}

	var booked Booked
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		material, err := tx.GetMaterial(ctx, input.MaterialID)
		if err != nil {
			return err
		}
		if !material.Active {
			return ErrMaterialInactive
		}
		qtyBase := input.Qty
		if input.Unit != "" && input.Unit != material.BaseUnit {
			if s.units == nil {
				return errors.New("inventory: unit conversion not configured")
			}
			qtyBase, err = s.units.Convert(ctx, material.ID, input.Qty, input.Unit, material.BaseUnit)
			if err != nil {
				return err
			}
		}
		actor, _ := shared.ActorFromContext(ctx)
		adjID, err := tx.InsertAdjustment(ctx, Adjustment{
			Direction:  dir,
			MaterialID: material.ID,
			Reference:  input.Reference,
			Reason:     input.Reason,
			CreatedBy:  actor,
		})
		if err != nil {
			return err
		}
		source := SourceRef{Kind: SourceStockAdjustment, ID: adjID}
		reason := input.Reason
		if reason == "" {
			reason = fmt.Sprintf("stock api %s", dir)
		}
		if dir == DirectionIn {
			lot, err := s.EnsureLot(ctx, tx, material, input.Lot, qtyBase, at, Provenance{})
			if err != nil {
				return err
			}
			booked, err = s.BookInbound(ctx, tx, material, lot, source, qtyBase, at, reason)
			return err
		}
		var lot *Lot
		if material.LotManaged {
			decremented, err := s.lots.Decrement(ctx, tx, material.ID, input.Lot.Number, qtyBase)
			if err != nil {
				return err
			}
			lot = &decremented
		}
		booked, err = s.BookOutbound(ctx, tx, material, lot, source, qtyBase, at, reason)
		return err
	})
	if err != nil {
		if key != "" {
			if derr := s.idem.Delete(ctx, key); derr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		return Booked{}, err
	}

	if s.notifier != nil {
		s.notifier.Publish(ctx, booked.Change)
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Action:   fmt.Sprintf("inventory.stock_%s", dir),
			Entity:   "stock_movement",
			EntityID: fmt.Sprintf("%d", booked.Movement.ID),
			Meta: map[string]any{
				"material_id": input.MaterialID,
				"qty_base":    booked.Movement.QtyBase.String(),
				"lot":         lotNumber(booked.Lot),
				"reference":   input.Reference,
			},
		}); err != nil {
			s.logger.Warn("inventory audit", slog.Any("error", err))
		}
	}
	return booked, nil
}

// GetMaterial returns the catalog view of a material.
func (s *Service) GetMaterial(ctx context.Context, id int64) (Material, error) {
	return s.repo.GetMaterial(ctx, id)
}

// GetLot returns a lot by its natural key.
func (s *Service) GetLot(ctx context.Context, materialID int64, number string) (Lot, error) {
	return s.repo.GetLot(ctx, materialID, number)
}

// ListLots lists lots of a material.
func (s *Service) ListLots(ctx context.Context, materialID int64) ([]Lot, error) {
	return s.repo.ListLots(ctx, materialID)
}

// ListMovements lists ledger rows for a material.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.MaterialID <= 0 {
		return nil, fmt.Errorf("inventory: material required: %w", shared.ErrInvalidInput)
	}
	return s.repo.ListMovements(ctx, filter)
}

func lotID(lot *Lot) *int64 {
	if lot == nil {
		return nil
	}
	id := lot.ID
	return &id
}

func lotNumber(lot *Lot) string {
	if lot == nil {
		return ""
	}
	return lot.Number
}
