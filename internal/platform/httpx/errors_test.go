package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/lastdino/matex-sub001/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	errOverDelivery := errors.New("over delivery")
	rules := []Rule{{Err: errOverDelivery, Status: http.StatusUnprocessableEntity, Title: "Over Delivery"}}

	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("line 3: %w", errOverDelivery), http.StatusUnprocessableEntity},
		{fmt.Errorf("order 9: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{fmt.Errorf("qty: %w", shared.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("lock lot: %w", &pgconn.PgError{Code: "40P01"}), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err, rules...)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}

	rec := httptest.NewRecorder()
	RespondError(rec, &pgconn.PgError{Code: "40001"})
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}
