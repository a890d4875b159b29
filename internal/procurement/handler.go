package procurement

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lastdino/matex-sub001/internal/platform/httpx"
)

// OrderAPI is the service surface used by Handler.
type OrderAPI interface {
	GetOrder(ctx context.Context, id int64) (OrderView, error)
	Issue(ctx context.Context, id int64) (PurchaseOrder, error)
	Cancel(ctx context.Context, id int64) (PurchaseOrder, error)
}

// Handler manages procurement endpoints.
type Handler struct {
	logger  *slog.Logger
	service OrderAPI
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service OrderAPI) *Handler {
	return &Handler{logger: logger, service: service}
}

var problemRules = []httpx.Rule{
	{Err: ErrInvalidTransition, Status: http.StatusConflict, Title: "Invalid Status Transition"},
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders/{orderID}", func(r chi.Router) {
		r.Get("/", h.handleGetOrder)
		r.Post("/issue", h.handleTransition("issue", h.service.Issue))
		r.Post("/cancel", h.handleTransition("cancel", h.service.Cancel))
	})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err, problemRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleTransition(action string, apply func(context.Context, int64) (PurchaseOrder, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := orderID(w, r)
		if !ok {
			return
		}
		order, err := apply(r.Context(), id)
		if err != nil {
			h.logger.Warn("order transition rejected", slog.String("action", action), slog.Int64("order_id", id), slog.Any("error", err))
			httpx.RespondError(w, err, problemRules...)
			return
		}
		httpx.JSON(w, http.StatusOK, order)
	}
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "order id must be a positive integer")
		return 0, false
	}
	return id, true
}
