package receiving

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lastdino/matex-sub001/internal/inventory"
	"github.com/lastdino/matex-sub001/internal/platform/httpx"
	"github.com/lastdino/matex-sub001/internal/units"
)

// ReceivingAPI is the service surface used by Handler.
type ReceivingAPI interface {
	ReceiveLines(ctx context.Context, input ReceiveLinesInput) (Receipt, error)
	ReceiveByToken(ctx context.Context, input TokenReceiveInput) (Receipt, error)
	ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error)
}

// Handler wires HTTP endpoints for receiving.
type Handler struct {
	logger    *slog.Logger
	service   ReceivingAPI
	cascade   CascadeRunner
	validator *validator.Validate
}

// NewHandler constructs receiving handler. cascade may be nil, which disables
// the manual cascade endpoint.
func NewHandler(logger *slog.Logger, service ReceivingAPI, cascade CascadeRunner) *Handler {
	return &Handler{logger: logger, service: service, cascade: cascade, validator: validator.New()}
}

var problemRules = []httpx.Rule{
	{Err: ErrInvalidOrderStatus, Status: http.StatusConflict, Title: "Invalid Order Status"},
	{Err: ErrOverDelivery, Status: http.StatusUnprocessableEntity, Title: "Over Delivery"},
	{Err: ErrShippingLineNotReceivable, Status: http.StatusUnprocessableEntity, Title: "Shipping Line Not Receivable"},
	{Err: ErrInvalidQuantity, Status: http.StatusBadRequest, Title: "Invalid Quantity"},
	{Err: inventory.ErrLotNumberRequired, Status: http.StatusUnprocessableEntity, Title: "Lot Number Required"},
	{Err: inventory.ErrStorageCapacityExceeded, Status: http.StatusUnprocessableEntity, Title: "Storage Capacity Exceeded"},
	{Err: inventory.ErrNegativeStock, Status: http.StatusUnprocessableEntity, Title: "Negative Stock"},
	{Err: inventory.ErrMaterialInactive, Status: http.StatusUnprocessableEntity, Title: "Material Inactive"},
	{Err: units.ErrConversionNotDefined, Status: http.StatusUnprocessableEntity, Title: "Conversion Not Defined"},
}

// MountRoutes registers receiving routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/scan", h.handleScan)
	r.Route("/orders/{orderID}", func(r chi.Router) {
		r.Get("/receipts", h.handleList)
		r.Post("/receipts", h.handleReceive)
		r.Post("/cascade", h.handleCascade)
	})
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var input ReceiveLinesInput
	if err := httpx.DecodeAndValidate(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.OrderID = id
	input.IdempotencyKey = r.Header.Get("Idempotency-Key")
	receipt, err := h.service.ReceiveLines(r.Context(), input)
	if err != nil {
		h.logger.Warn("receipt rejected", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err, problemRules...)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	var input TokenReceiveInput
	if err := httpx.DecodeAndValidate(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.IdempotencyKey = r.Header.Get("Idempotency-Key")
	receipt, err := h.service.ReceiveByToken(r.Context(), input)
	if err != nil {
		h.logger.Warn("scan receipt rejected", slog.Any("error", err))
		httpx.RespondError(w, err, problemRules...)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	receipts, err := h.service.ListReceipts(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err, problemRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, receipts)
}

func (h *Handler) handleCascade(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	if h.cascade == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "cascade runner not configured")
		return
	}
	created, err := h.cascade.Run(r.Context(), id)
	if err != nil {
		h.logger.Error("manual cascade", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err, problemRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"created": created})
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "order id must be a positive integer")
		return 0, false
	}
	return id, true
}
