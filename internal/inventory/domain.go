package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lastdino/matex-sub001/internal/shared"
)

// Direction of a stock movement.
type Direction string

const (
	// DirectionIn increases stock.
	DirectionIn Direction = "in"
	// DirectionOut decreases stock.
	DirectionOut Direction = "out"
)

// SourceKind tags what caused a movement.
type SourceKind string

const (
	// SourceReceivingItem points at receiving_items.id.
	SourceReceivingItem SourceKind = "receiving_item"
	// SourceStockAdjustment points at stock_adjustments.id (external stock API).
	SourceStockAdjustment SourceKind = "stock_adjustment"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceReceivingItem, SourceStockAdjustment:
		return true
	default:
		return false
	}
}

// SourceRef identifies the event behind a movement as kind plus id.
type SourceRef struct {
	Kind SourceKind `json:"kind"`
	ID   int64      `json:"id"`
}

func (r SourceRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// LotStatus tracks whether a lot still holds stock.
type LotStatus string

const (
	// LotActive lots have quantity on hand.
	LotActive LotStatus = "active"
	// LotDepleted lots reached zero.
	LotDepleted LotStatus = "depleted"
)

// Material is the catalog view consumed by receiving.
type Material struct {
	ID           int64           `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	BaseUnit     string          `json:"base_unit"`
	LotManaged   bool            `json:"lot_managed"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	Active       bool            `json:"active"`
}

// Lot is a traceable batch of a material.
type Lot struct {
	ID              int64           `json:"id"`
	MaterialID      int64           `json:"material_id"`
	Number          string          `json:"lot_number"`
	QtyOnHand       decimal.Decimal `json:"qty_on_hand"`
	ManufacturedOn  *time.Time      `json:"manufactured_on,omitempty"`
	ExpiresOn       *time.Time      `json:"expires_on,omitempty"`
	Status          LotStatus       `json:"status"`
	PurchaseOrderID *int64          `json:"purchase_order_id,omitempty"`
	SupplierID      *int64          `json:"supplier_id,omitempty"`
	FirstReceivedAt time.Time       `json:"first_received_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// LotFields are the operator-supplied lot attributes of a receipt.
type LotFields struct {
	Number         string     `json:"lot_number" validate:"max=64"`
	ManufacturedOn *time.Time `json:"manufactured_on,omitempty"`
	ExpiresOn      *time.Time `json:"expires_on,omitempty"`
}

// Provenance links a lot to the order and supplier it first arrived with.
type Provenance struct {
	PurchaseOrderID int64
	SupplierID      int64
}

// Movement is one append-only ledger row.
type Movement struct {
	ID         int64           `json:"id"`
	MaterialID int64           `json:"material_id"`
	LotID      *int64          `json:"lot_id,omitempty"`
	Direction  Direction       `json:"direction"`
	Source     SourceRef       `json:"source"`
	QtyBase    decimal.Decimal `json:"qty_base"`
	Unit       string          `json:"unit"`
	OccurredAt time.Time       `json:"occurred_at"`
	Reason     string          `json:"reason"`
	ActorID    *int64          `json:"actor_id,omitempty"`
}

// Location is a storage slot with optional capacity in base units.
type Location struct {
	ID       int64
	Code     string
	Capacity *decimal.Decimal
	Occupied decimal.Decimal
}

// Adjustment is the header row of a direct stock API movement.
type Adjustment struct {
	ID         int64
	Direction  Direction
	MaterialID int64
	Reference  string
	Reason     string
	CreatedBy  int64
}

// StockChange is the advisory payload sent to the external inventory system.
type StockChange struct {
	MovementID int64           `json:"movement_id"`
	SKU        string          `json:"sku"`
	LotNumber  string          `json:"lot_number,omitempty"`
	QtyBase    decimal.Decimal `json:"qty"`
	Direction  Direction       `json:"direction"`
	Reason     string          `json:"reason"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// DirectMovementInput drives the external stock API path.
type DirectMovementInput struct {
	MaterialID     int64           `json:"material_id" validate:"required,gt=0"`
	Qty            decimal.Decimal `json:"qty"`
	Unit           string          `json:"unit" validate:"max=32"`
	Lot            LotFields       `json:"lot"`
	Reference      string          `json:"reference" validate:"max=128"`
	Reason         string          `json:"reason" validate:"max=255"`
	OccurredAt     time.Time       `json:"occurred_at"`
	IdempotencyKey string          `json:"-"`
}

// MovementFilter narrows ledger listings.
type MovementFilter struct {
	MaterialID int64
	LotID      int64
	From       time.Time
	To         time.Time
	Limit      int
}

var (
	// ErrMaterialNotFound wraps shared.ErrNotFound.
	ErrMaterialNotFound = fmt.Errorf("inventory: material %w", shared.ErrNotFound)
	// ErrLotNotFound wraps shared.ErrNotFound.
	ErrLotNotFound = fmt.Errorf("inventory: lot %w", shared.ErrNotFound)
	// ErrLocationNotFound wraps shared.ErrNotFound.
	ErrLocationNotFound = fmt.Errorf("inventory: storage location %w", shared.ErrNotFound)
	// ErrLotExists is returned by InsertLot when a concurrent insert won.
	ErrLotExists = errors.New("inventory: lot already exists")
	// ErrLotNumberRequired rejects receipts of lot-managed materials without a lot number.
	ErrLotNumberRequired = errors.New("inventory: lot number required")
	// ErrInsufficientLotQty prevents a lot from going below zero.
	ErrInsufficientLotQty = errors.New("inventory: insufficient lot quantity")
	// ErrNegativeStock prevents the material counter from going below zero.
	ErrNegativeStock = errors.New("inventory: negative stock not allowed")
	// ErrStorageCapacityExceeded rejects receipts that overflow a location.
	ErrStorageCapacityExceeded = errors.New("inventory: storage capacity exceeded")
	// ErrMaterialInactive rejects direct movements on retired materials.
	ErrMaterialInactive = errors.New("inventory: material inactive")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidSource rejects movements without a known source kind.
	ErrInvalidSource = errors.New("inventory: invalid movement source")
)
