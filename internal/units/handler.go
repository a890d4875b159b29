package units

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lastdino/matex-sub001/internal/platform/httpx"
)

// ConversionAPI is the service surface used by Handler.
type ConversionAPI interface {
	Define(ctx context.Context, conv Conversion) (Conversion, error)
	List(ctx context.Context, materialID int64) ([]Conversion, error)
}

// Handler exposes conversion maintenance endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ConversionAPI
	validator *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service ConversionAPI) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

var problemRules = []httpx.Rule{
	{Err: ErrInvalidFactor, Status: http.StatusBadRequest, Title: "Invalid Factor"},
	{Err: ErrIdentityConversion, Status: http.StatusBadRequest, Title: "Identity Conversion"},
}

// MountRoutes registers unit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Put("/conversions", h.handleDefine)
	r.Get("/materials/{materialID}/conversions", h.handleList)
}

func (h *Handler) handleDefine(w http.ResponseWriter, r *http.Request) {
	var conv Conversion
	if err := httpx.DecodeAndValidate(r, h.validator, &conv); err != nil {
		httpx.RespondError(w, err)
		return
	}
	saved, err := h.service.Define(r.Context(), conv)
	if err != nil {
		h.logger.Warn("define conversion", slog.Int64("material_id", conv.MaterialID), slog.Any("error", err))
		httpx.RespondError(w, err, problemRules...)
		return
	}
	h.logger.Info("conversion defined",
		slog.Int64("material_id", saved.MaterialID),
		slog.String("from", saved.FromUnit),
		slog.String("to", saved.ToUnit),
		slog.String("factor", saved.Factor.String()))
	httpx.JSON(w, http.StatusOK, saved)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "materialID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "material id must be a positive integer")
		return
	}
	convs, err := h.service.List(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err, problemRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, convs)
}
