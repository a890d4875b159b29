package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lastdino/matex-sub001/internal/platform/db"
	"github.com/lastdino/matex-sub001/internal/shared"
)

// Rule maps a domain error to a problem status. Rules are matched with errors.Is
// before the built-in mapping.
type Rule struct {
	Err    error
	Status int
	Title  string
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error, rules ...Rule) {
	for _, rule := range rules {
		if errors.Is(err, rule.Err) {
			Problem(w, rule.Status, rule.Title, err.Error())
			return
		}
	}
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrInvalidInput):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case db.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusServiceUnavailable, "Concurrent Update", "the request collided with a concurrent update, retry it")
	default:
		slog.Default().Error("unhandled error", slog.Any("error", err))
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
