package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional order operations. Receiving reuses it inside
// its own unit of work.
type TxRepository interface {
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	GetOrderForShare(ctx context.Context, id int64) (PurchaseOrder, error)
	GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	ListItems(ctx context.Context, orderID int64) ([]PurchaseOrderItem, error)
	GetItemForUpdate(ctx context.Context, id int64) (PurchaseOrderItem, error)
	FindItemByToken(ctx context.Context, token string) (PurchaseOrderItem, error)
	ReceivedBase(ctx context.Context, itemID int64) (decimal.Decimal, error)
	ReceivedByOrder(ctx context.Context, orderID int64) (map[int64]decimal.Decimal, error)
	AdvanceStatus(ctx context.Context, id int64, to POStatus, from ...POStatus) (bool, error)
	SetScanToken(ctx context.Context, itemID int64, token string) error
	InsertOrder(ctx context.Context, order PurchaseOrder) (int64, error)
	InsertItem(ctx context.Context, item PurchaseOrderItem) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the order lifecycle around receiving.
type Service struct {
	repo       RepositoryPort
	completion *CompletionService
	audit      AuditPort
	observers  []StatusObserver
	logger     *slog.Logger
}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Audit     AuditPort
	Observers []StatusObserver
	Logger    *slog.Logger
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, completion *CompletionService, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, completion: completion, audit: deps.Audit, observers: deps.Observers, logger: logger}
}

// GetOrder returns an order with ordered and received quantities per line.
func (s *Service) GetOrder(ctx context.Context, id int64) (OrderView, error) {
	var (
		order    PurchaseOrder
		items    []PurchaseOrderItem
		received map[int64]decimal.Decimal
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if order, err = tx.GetOrder(ctx, id); err != nil {
			return err
		}
		if items, err = tx.ListItems(ctx, id); err != nil {
			return err
		}
		received, err = tx.ReceivedByOrder(ctx, id)
		return err
	})
	if err != nil {
		return OrderView{}, err
	}
	progress, err := s.completion.Progress(ctx, items, received)
	if err != nil {
		return OrderView{}, err
	}
	return OrderView{Order: order, Items: progress}, nil
}

// CreateOrder stores a draft order. Shipping lines reference their goods line by line number.
func (s *Service) CreateOrder(ctx context.Context, input NewOrderInput) (PurchaseOrder, error) {
	if err := validateNewOrder(input); err != nil {
		return PurchaseOrder{}, err
	}
	var order PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order = PurchaseOrder{Number: input.Number, SupplierID: input.SupplierID, Status: POStatusDraft, CreatedAt: time.Now().UTC()}
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		byLine := make(map[int]int64, len(input.Items))
		// goods lines first so shipping lines can point at them
		for _, pass := range []bool{false, true} {
			for _, in := range input.Items {
				if (in.ShippingFor != 0) != pass {
					continue
				}
				item := PurchaseOrderItem{
					PurchaseOrderID: id,
					LineNo:          in.LineNo,
					MaterialID:      in.MaterialID,
					Description:     in.Description,
					Unit:            in.Unit,
					QtyOrdered:      in.QtyOrdered,
					QtyCanceled:     in.QtyCanceled,
				}
				if in.ShippingFor != 0 {
					goodsID := byLine[in.ShippingFor]
					item.ShippingForItemID = &goodsID
				}
				itemID, err := tx.InsertItem(ctx, item)
				if err != nil {
					return err
				}
				byLine[in.LineNo] = itemID
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "procurement.order_create", order.ID, map[string]any{"number": order.Number, "lines": len(input.Items)})
	return order, nil
}

func validateNewOrder(input NewOrderInput) error {
	if strings.TrimSpace(input.Number) == "" || input.SupplierID <= 0 || len(input.Items) == 0 {
		return fmt.Errorf("%w: number, supplier and items are required", ErrInvalidOrder)
	}
	lines := make(map[int]NewItemInput, len(input.Items))
	for _, item := range input.Items {
		if _, dup := lines[item.LineNo]; dup {
			return fmt.Errorf("%w: duplicate line %d", ErrInvalidOrder, item.LineNo)
		}
		if item.QtyOrdered.IsNegative() || item.QtyCanceled.IsNegative() {
			return fmt.Errorf("%w: line %d has a negative quantity", ErrInvalidOrder, item.LineNo)
		}
		lines[item.LineNo] = item
	}
	for _, item := range input.Items {
		if item.ShippingFor == 0 {
			continue
		}
		goods, ok := lines[item.ShippingFor]
		switch {
		case item.Unit != ShippingUnit:
			return fmt.Errorf("%w: line %d links a goods line but is not a shipping charge", ErrInvalidOrder, item.LineNo)
		case !ok || goods.Unit == ShippingUnit:
			return fmt.Errorf("%w: line %d links unknown goods line %d", ErrInvalidOrder, item.LineNo, item.ShippingFor)
		}
	}
	return nil
}

// Issue moves a draft order to issued and assigns scan tokens to receivable lines.
func (s *Service) Issue(ctx context.Context, id int64) (PurchaseOrder, error) {
	var order PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(POStatusIssued) {
			return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current.Status, POStatusIssued)
		}
		items, err := tx.ListItems(ctx, id)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.IsShipping() || item.ScanToken != "" {
				continue
			}
			if err := tx.SetScanToken(ctx, item.ID, ScanToken(item.ID)); err != nil {
				return err
			}
		}
		if _, err := tx.AdvanceStatus(ctx, id, POStatusIssued, POStatusDraft); err != nil {
			return err
		}
		order, err = tx.GetOrder(ctx, id)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.afterTransition(ctx, order, POStatusDraft)
	return order, nil
}

// Cancel moves any order that is not closed to canceled.
func (s *Service) Cancel(ctx context.Context, id int64) (PurchaseOrder, error) {
	var (
		order PurchaseOrder
		from  POStatus
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status
		if !current.Status.CanTransition(POStatusCanceled) {
			return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current.Status, POStatusCanceled)
		}
		if _, err := tx.AdvanceStatus(ctx, id, POStatusCanceled, POStatusDraft, POStatusIssued, POStatusReceiving); err != nil {
			return err
		}
		order, err = tx.GetOrder(ctx, id)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.afterTransition(ctx, order, from)
	return order, nil
}

// ScanToken derives the stable scan token of an order line.
func ScanToken(itemID int64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("po-item:%d", itemID))).String()
}

func (s *Service) afterTransition(ctx context.Context, order PurchaseOrder, from POStatus) {
	notify(ctx, s.observers, StatusChange{OrderID: order.ID, From: from, To: order.Status, At: time.Now().UTC()})
	s.recordAudit(ctx, "procurement.order_"+string(order.Status), order.ID, map[string]any{"from": string(from)})
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "purchase_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta}); err != nil {
		s.logger.Warn("procurement audit", slog.Any("error", err))
	}
}
