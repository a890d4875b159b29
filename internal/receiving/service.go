package receiving

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/lastdino/matex-sub001/internal/inventory"
	"github.com/lastdino/matex-sub001/internal/procurement"
	"github.com/lastdino/matex-sub001/internal/shared"
)

// RepositoryPort abstracts receiving persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error)
	PendingCascadeOrders(ctx context.Context, limit int) ([]int64, error)
}

// TxRepository spans order, stock and receiving writes of one event.
type TxRepository interface {
	procurement.TxRepository
	inventory.TxRepository
	InsertReceiving(ctx context.Context, header Receiving) (int64, error)
	InsertReceivingItem(ctx context.Context, item Item) (int64, error)
	CountReceivingItems(ctx context.Context, orderItemID int64) (int, error)
	LatestReceivedAt(ctx context.Context, orderItemID int64) (time.Time, bool, error)
}

// IdempotencyPort guards replayed receipts.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Recorder receives receiving metrics.
type Recorder interface {
	ObserveReceipt(outcome string, lines int)
	HookFailed(hook string)
}

// Service is the transaction boundary of a receiving event.
type Service struct {
	repo    RepositoryPort
	lines   *LineService
	hooks   []PostCommitHook
	idem    IdempotencyPort
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceDeps groups optional collaborators. Hooks run in slice order after commit.
type ServiceDeps struct {
	Hooks       []PostCommitHook
	Idempotency IdempotencyPort
	Metrics     Recorder
	Logger      *slog.Logger
}

// NewService constructs the receiving service.
func NewService(repo RepositoryPort, lines *LineService, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		lines:   lines,
		hooks:   deps.Hooks,
		idem:    deps.Idempotency,
		metrics: deps.Metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type headerMeta struct {
	receivedAt time.Time
	reference  string
	notes      string
}

type resolveFunc func(ctx context.Context, tx TxRepository) (int64, []LineInput, error)

// ReceiveLines records an explicit list of lines against one order in a single transaction.
func (s *Service) ReceiveLines(ctx context.Context, input ReceiveLinesInput) (Receipt, error) {
	if input.OrderID <= 0 {
		return Receipt{}, fmt.Errorf("receiving: order id required: %w", shared.ErrInvalidInput)
	}
	if len(input.Lines) == 0 {
		return Receipt{}, ErrNoLines
	}
	meta := headerMeta{receivedAt: input.ReceivedAt, reference: input.Reference, notes: input.Notes}
	return s.receive(ctx, input.IdempotencyKey, meta, func(ctx context.Context, tx TxRepository) (int64, []LineInput, error) {
		return input.OrderID, input.Lines, nil
	})
}

// ReceiveByToken records one line identified by its scan token.
func (s *Service) ReceiveByToken(ctx context.Context, input TokenReceiveInput) (Receipt, error) {
	token := strings.TrimSpace(input.Token)
	if token == "" {
		return Receipt{}, fmt.Errorf("receiving: token required: %w", shared.ErrInvalidInput)
	}
	meta := headerMeta{receivedAt: input.ReceivedAt, reference: input.Reference, notes: input.Notes}
	return s.receive(ctx, input.IdempotencyKey, meta, func(ctx context.Context, tx TxRepository) (int64, []LineInput, error) {
		item, err := tx.FindItemByToken(ctx, token)
		if err != nil {
			return 0, nil, err
		}
		return item.PurchaseOrderID, []LineInput{{
			ItemID:     item.ID,
			Qty:        input.Qty,
			Unit:       input.Unit,
			Lot:        input.Lot,
			LocationID: input.LocationID,
		}}, nil
	})
}

// ListReceipts returns the receipts of an order, oldest first.
func (s *Service) ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error) {
	if orderID <= 0 {
		return nil, fmt.Errorf("receiving: order id required: %w", shared.ErrInvalidInput)
	}
	return s.repo.ListReceipts(ctx, orderID)
}

func (s *Service) receive(ctx context.Context, idemKey string, meta headerMeta, resolve resolveFunc) (Receipt, error) {
	key := ""
	if idemKey != "" && s.idem != nil {
		key = fmt.Sprintf("RCV:%s", idemKey)
		if err := s.idem.CheckAndInsert(ctx, key, "receiving"); err != nil {
			return Receipt{}, err
		}
	}

	var receipt Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt = Receipt{}
		orderID, lines, err := resolve(ctx, tx)
		if err != nil {
			return err
		}
		order, err := tx.GetOrderForShare(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.AcceptsReceipts() {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidOrderStatus, order.Number, order.Status)
		}
		items, err := lockItems(ctx, tx, order.ID, lines)
		if err != nil {
			return err
		}

		at := meta.receivedAt
		if at.IsZero() {
			at = s.now()
		}
		actor, _ := shared.ActorFromContext(ctx)
		header := Receiving{
			PurchaseOrderID: order.ID,
			ReceivedAt:      at,
			Reference:       meta.reference,
			Notes:           meta.notes,
			CreatedBy:       actor,
		}
		if header.ID, err = tx.InsertReceiving(ctx, header); err != nil {
			return err
		}
		receipt.Receiving = header
		for _, line := range lines {
			res, err := s.lines.Handle(ctx, tx, order, header, items[line.ItemID], line)
			if err != nil {
				return err
			}
			receipt.Items = append(receipt.Items, res.Item)
			if res.Change != nil {
				receipt.Changes = append(receipt.Changes, *res.Change)
			}
		}
		receipt.Status = order.Status
		return nil
	})
	if err != nil {
		if key != "" {
			if derr := s.idem.Delete(ctx, key); derr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		s.observe("rejected", 0)
		return Receipt{}, err
	}
	s.observe("committed", len(receipt.Items))
	s.logger.Info("receipt committed",
		slog.Int64("receiving_id", receipt.Receiving.ID),
		slog.Int64("order_id", receipt.Receiving.PurchaseOrderID),
		slog.Int("items", len(receipt.Items)))
	s.runHooks(ctx, &receipt)
	return receipt, nil
}

// lockItems locks every submitted order line in ascending id order so concurrent
// receipts touching the same lines cannot deadlock.
func lockItems(ctx context.Context, tx TxRepository, orderID int64, lines []LineInput) (map[int64]procurement.PurchaseOrderItem, error) {
	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]bool, len(lines))
	for _, line := range lines {
		if line.ItemID <= 0 {
			return nil, fmt.Errorf("receiving: item id required: %w", shared.ErrInvalidInput)
		}
		if !seen[line.ItemID] {
			seen[line.ItemID] = true
			ids = append(ids, line.ItemID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	items := make(map[int64]procurement.PurchaseOrderItem, len(ids))
	for _, id := range ids {
		item, err := tx.GetItemForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if item.PurchaseOrderID != orderID {
			return nil, fmt.Errorf("%w: item %d is not on order %d", ErrItemNotOnOrder, id, orderID)
		}
		items[id] = item
	}
	return items, nil
}

func (s *Service) runHooks(ctx context.Context, receipt *Receipt) {
	ctx = context.WithoutCancel(ctx)
	for _, hook := range s.hooks {
		if err := hook.AfterReceive(ctx, receipt); err != nil {
			s.logger.Error("post-commit hook failed",
				slog.String("hook", hook.Name()),
				slog.Int64("receiving_id", receipt.Receiving.ID),
				slog.Any("error", err))
			if s.metrics != nil {
				s.metrics.HookFailed(hook.Name())
			}
		}
	}
}

func (s *Service) observe(outcome string, lines int) {
	if s.metrics != nil {
		s.metrics.ObserveReceipt(outcome, lines)
	}
}
