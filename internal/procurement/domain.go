package procurement

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/shared"
)

// POStatus is the purchase order lifecycle status.
type POStatus string

const (
	POStatusDraft     POStatus = "draft"
	POStatusIssued    POStatus = "issued"
	POStatusReceiving POStatus = "receiving"
	POStatusClosed    POStatus = "closed"
	POStatusCanceled  POStatus = "canceled"
)

// ShippingUnit is the reserved purchase unit of shipping-charge lines.
const ShippingUnit = "__shipping__"

// AcceptsReceipts reports whether goods may be received against an order in this status.
func (s POStatus) AcceptsReceipts() bool {
	return s == POStatusIssued || s == POStatusReceiving
}

// CanTransition validates the order state machine:
// draft → issued → receiving → closed, canceled from anything but closed.
func (s POStatus) CanTransition(next POStatus) bool {
	switch next {
	case POStatusIssued:
		return s == POStatusDraft
	case POStatusReceiving:
		return s == POStatusIssued
	case POStatusClosed:
		return s == POStatusIssued || s == POStatusReceiving
	case POStatusCanceled:
		return s != POStatusClosed && s != POStatusCanceled
	default:
		return false
	}
}

func (s POStatus) rank() int {
	switch s {
	case POStatusDraft:
		return 0
	case POStatusIssued:
		return 1
	case POStatusReceiving:
		return 2
	case POStatusClosed:
		return 3
	default:
		return -1
	}
}

// PurchaseOrder header.
type PurchaseOrder struct {
	ID         int64      `json:"id"`
	Number     string     `json:"number"`
	SupplierID int64      `json:"supplier_id"`
	Status     POStatus   `json:"status"`
	IssuedAt   *time.Time `json:"issued_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// PurchaseOrderItem is one order line.
type PurchaseOrderItem struct {
	ID                int64           `json:"id"`
	PurchaseOrderID   int64           `json:"purchase_order_id"`
	LineNo            int             `json:"line_no"`
	MaterialID        *int64          `json:"material_id,omitempty"`
	Description       string          `json:"description"`
	Unit              string          `json:"unit"`
	QtyOrdered        decimal.Decimal `json:"qty_ordered"`
	QtyCanceled       decimal.Decimal `json:"qty_canceled"`
	ShippingForItemID *int64          `json:"shipping_for_item_id,omitempty"`
	ScanToken         string          `json:"scan_token,omitempty"`
}

// EffectiveOrdered is max(ordered − canceled, 0) in the purchase unit.
func (i PurchaseOrderItem) EffectiveOrdered() decimal.Decimal {
	return shared.MaxZero(i.QtyOrdered.Sub(i.QtyCanceled))
}

// IsShipping reports whether the line is a shipping charge.
func (i PurchaseOrderItem) IsShipping() bool {
	return i.Unit == ShippingUnit
}

// IsAdHoc reports whether the line has no catalog material.
func (i PurchaseOrderItem) IsAdHoc() bool {
	return i.MaterialID == nil
}

// ItemProgress is the ordered/received view of one line in base units.
type ItemProgress struct {
	Item         PurchaseOrderItem `json:"item"`
	BaseUnit     string            `json:"base_unit"`
	OrderedBase  decimal.Decimal   `json:"ordered_base"`
	ReceivedBase decimal.Decimal   `json:"received_base"`
	Complete     bool              `json:"complete"`
}

// OrderView bundles an order with per-line progress.
type OrderView struct {
	Order PurchaseOrder  `json:"order"`
	Items []ItemProgress `json:"items"`
}

// NewOrderInput creates an order with its lines in draft.
type NewOrderInput struct {
	Number     string         `json:"number" validate:"required,max=64"`
	SupplierID int64          `json:"supplier_id" validate:"required,gt=0"`
	Items      []NewItemInput `json:"items" validate:"required,min=1,dive"`
}

// NewItemInput is one line of NewOrderInput. ShippingFor refers to the LineNo of a goods line.
type NewItemInput struct {
	LineNo      int             `json:"line_no" validate:"required,gt=0"`
	MaterialID  *int64          `json:"material_id,omitempty"`
	Description string          `json:"description" validate:"max=255"`
	Unit        string          `json:"unit" validate:"required,max=32"`
	QtyOrdered  decimal.Decimal `json:"qty_ordered"`
	QtyCanceled decimal.Decimal `json:"qty_canceled"`
	ShippingFor int             `json:"shipping_for,omitempty"`
}

var (
	// ErrOrderNotFound indicates a missing purchase order.
	ErrOrderNotFound = fmt.Errorf("procurement: purchase order: %w", shared.ErrNotFound)
	// ErrItemNotFound indicates a missing order line or scan token.
	ErrItemNotFound = fmt.Errorf("procurement: purchase order item: %w", shared.ErrNotFound)
	// ErrInvalidTransition indicates a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("procurement: invalid status transition")
	// ErrInvalidOrder indicates a malformed order payload.
	ErrInvalidOrder = errors.New("procurement: invalid order")
)
