package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lastdino/matex-sub001/internal/platform/httpx"
	"github.com/lastdino/matex-sub001/internal/units"
)

// StockAPI is the service surface used by the HTTP handler.
type StockAPI interface {
	PostInbound(ctx context.Context, input DirectMovementInput) (Booked, error)
	PostOutbound(ctx context.Context, input DirectMovementInput) (Booked, error)
	GetMaterial(ctx context.Context, id int64) (Material, error)
	GetLot(ctx context.Context, materialID int64, number string) (Lot, error)
	ListLots(ctx context.Context, materialID int64) ([]Lot, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   StockAPI
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service StockAPI) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

var problemRules = []httpx.Rule{
	{Err: ErrLotNumberRequired, Status: http.StatusUnprocessableEntity, Title: "Lot Number Required"},
	{Err: ErrInsufficientLotQty, Status: http.StatusUnprocessableEntity, Title: "Insufficient Lot Quantity"},
	{Err: ErrNegativeStock, Status: http.StatusUnprocessableEntity, Title: "Negative Stock"},
	{Err: ErrMaterialInactive, Status: http.StatusUnprocessableEntity, Title: "Material Inactive"},
	{Err: ErrInvalidQuantity, Status: http.StatusBadRequest, Title: "Invalid Quantity"},
	{Err: units.ErrConversionNotDefined, Status: http.StatusUnprocessableEntity, Title: "Conversion Not Defined"},
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stock/in", h.handleStock(DirectionIn))
	r.Post("/stock/out", h.handleStock(DirectionOut))
	r.Route("/materials/{materialID}", func(r chi.Router) {
		r.Get("/", h.handleMaterial)
		r.Get("/movements", h.handleMovements)
		r.Get("/lots", h.handleLots)
		r.Get("/lots/{lotNumber}", h.handleLot)
	})
}

func (h *Handler) handleStock(dir Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input DirectMovementInput
		if err := httpx.DecodeAndValidate(r, h.validator, &input); err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.IdempotencyKey = r.Header.Get("Idempotency-Key")
		post := h.service.PostInbound
		if dir == DirectionOut {
			post = h.service.PostOutbound
		}
		booked, err := post(r.Context(), input)
		if err != nil {
			h.logger.Warn("stock movement rejected",
				slog.String("direction", string(dir)),
				slog.Int64("material_id", input.MaterialID),
				slog.Any("error", err))
			httpx.RespondError(w, err, problemRules...)
			return
		}
		h.logger.Info("stock movement posted",
			slog.String("direction", string(dir)),
			slog.Int64("movement_id", booked.Movement.ID),
			slog.Int64("material_id", input.MaterialID))
		httpx.JSON(w, http.StatusCreated, booked.Movement)
	}
}

func (h *Handler) handleMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := h.materialID(w, r)
	if !ok {
		return
	}
	material, err := h.service.GetMaterial(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err, problemRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, material)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := h.materialID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := MovementFilter{MaterialID: id}
	if v := q.Get("lot_id"); v != "" {
		lotID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "lot_id must be numeric")
			return
		}
		filter.LotID = lotID
	}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		filter.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			filter.Limit = limit
		}
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err, problemRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) handleLots(w http.ResponseWriter, r *http.Request) {
	id, ok := h.materialID(w, r)
	if !ok {
		return
	}
	lots, err := h.service.ListLots(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err, problemRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, lots)
}

func (h *Handler) handleLot(w http.ResponseWriter, r *http.Request) {
	id, ok := h.materialID(w, r)
	if !ok {
		return
	}
	lot, err := h.service.GetLot(r.Context(), id, chi.URLParam(r, "lotNumber"))
	if err != nil {
		httpx.RespondError(w, err, problemRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) materialID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "materialID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "material id must be a positive integer")
		return 0, false
	}
	return id, true
}
