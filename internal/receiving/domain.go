package receiving

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/inventory"
	"github.com/lastdino/matex-sub001/internal/procurement"
	"github.com/lastdino/matex-sub001/internal/shared"
)

var (
	// ErrInvalidOrderStatus rejects receipts against orders that are not issued or receiving.
	ErrInvalidOrderStatus = errors.New("receiving: order does not accept receipts")
	// ErrShippingLineNotReceivable rejects direct receipts of shipping-charge lines.
	ErrShippingLineNotReceivable = errors.New("receiving: shipping-charge line is not receivable")
	// ErrOverDelivery is matched by *OverDeliveryError.
	ErrOverDelivery = errors.New("receiving: over delivery")
	// ErrItemNotOnOrder indicates a submitted line that belongs to another order.
	ErrItemNotOnOrder = fmt.Errorf("receiving: order item %w", shared.ErrNotFound)
	// ErrInvalidQuantity rejects zero or negative quantities.
	ErrInvalidQuantity = errors.New("receiving: quantity must be positive")
	// ErrNoLines rejects receipts without lines.
	ErrNoLines = fmt.Errorf("receiving: at least one line is required: %w", shared.ErrInvalidInput)
)

// OverDeliveryError carries the figures of a rejected receipt, all in base units.
type OverDeliveryError struct {
	ItemID    int64
	Unit      string
	Ordered   decimal.Decimal
	Received  decimal.Decimal
	Attempted decimal.Decimal
}

// Remaining is what the line could still accept.
func (e *OverDeliveryError) Remaining() decimal.Decimal {
	return shared.MaxZero(e.Ordered.Sub(e.Received))
}

func (e *OverDeliveryError) Error() string {
	return fmt.Sprintf("receiving: over delivery on item %d: %s %s exceeds remaining %s %s",
		e.ItemID, e.Attempted, e.Unit, e.Remaining(), e.Unit)
}

// Is makes errors.Is(err, ErrOverDelivery) match.
func (e *OverDeliveryError) Is(target error) bool {
	return target == ErrOverDelivery
}

// LineInput is one submitted receiving line.
type LineInput struct {
	ItemID     int64               `json:"item_id" validate:"required,gt=0"`
	Qty        decimal.Decimal     `json:"qty"`
	Unit       string              `json:"unit" validate:"max=32"`
	Lot        inventory.LotFields `json:"lot"`
	LocationID *int64              `json:"location_id,omitempty" validate:"omitempty,gt=0"`
}

// ReceiveLinesInput is a manual or bulk receipt against one order.
type ReceiveLinesInput struct {
	OrderID        int64       `json:"-"`
	ReceivedAt     time.Time   `json:"received_at"`
	Reference      string      `json:"reference" validate:"max=64"`
	Notes          string      `json:"notes" validate:"max=1000"`
	Lines          []LineInput `json:"lines" validate:"required,min=1,dive"`
	IdempotencyKey string      `json:"-"`
}

// TokenReceiveInput is a scan of one order line.
type TokenReceiveInput struct {
	Token          string              `json:"token" validate:"required,max=64"`
	Qty            decimal.Decimal     `json:"qty"`
	Unit           string              `json:"unit" validate:"max=32"`
	Lot            inventory.LotFields `json:"lot"`
	LocationID     *int64              `json:"location_id,omitempty" validate:"omitempty,gt=0"`
	ReceivedAt     time.Time           `json:"received_at"`
	Reference      string              `json:"reference" validate:"max=64"`
	Notes          string              `json:"notes" validate:"max=1000"`
	IdempotencyKey string              `json:"-"`
}

// Receiving is the header of one receiving event.
type Receiving struct {
	ID              int64     `json:"id"`
	PurchaseOrderID int64     `json:"purchase_order_id"`
	ReceivedAt      time.Time `json:"received_at"`
	Reference       string    `json:"reference,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedBy       int64     `json:"created_by,omitempty"`
}

// Item is an immutable received line.
type Item struct {
	ID                  int64           `json:"id"`
	ReceivingID         int64           `json:"receiving_id"`
	PurchaseOrderItemID int64           `json:"purchase_order_item_id"`
	MaterialID          *int64          `json:"material_id,omitempty"`
	Unit                string          `json:"unit"`
	Qty                 decimal.Decimal `json:"qty"`
	QtyBase             decimal.Decimal `json:"qty_base"`
	LotID               *int64          `json:"lot_id,omitempty"`
	LocationID          *int64          `json:"location_id,omitempty"`
}

// Receipt is the committed outcome of a receiving event.
type Receipt struct {
	Receiving Receiving               `json:"receiving"`
	Items     []Item                  `json:"items"`
	Changes   []inventory.StockChange `json:"-"`
	// Status is the order status after post-commit hooks ran.
	Status procurement.POStatus `json:"order_status,omitempty"`
	// Synthetic marks receipts created by the shipping cascade.
	Synthetic bool `json:"synthetic,omitempty"`
}
