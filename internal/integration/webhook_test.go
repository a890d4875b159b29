package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lastdino/matex-sub001/internal/inventory"
)

type outcomes struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *outcomes) StockSynced(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[outcome]++
}

func sampleChange() inventory.StockChange {
	return inventory.StockChange{
		MovementID: 7,
		SKU:        "FLOUR",
		QtyBase:    decimal.RequireFromString("12.5"),
		Direction:  inventory.DirectionIn,
		Reason:     "purchase order PO-1 receipt",
		OccurredAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestWebhookClientPostsEvent(t *testing.T) {
	var (
		got         StockSyncEvent
		method      string
		contentType string
		decodeErr   error
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, contentType = r.Method, r.Header.Get("Content-Type")
		decodeErr = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewWebhookClient(srv.URL, time.Second)
	require.NoError(t, client.Send(context.Background(), []inventory.StockChange{sampleChange()}))
	require.NoError(t, decodeErr)
	require.Equal(t, http.MethodPost, method)
	require.Equal(t, "application/json", contentType)
	require.Len(t, got.Changes, 1)
	require.Equal(t, "FLOUR", got.Changes[0].SKU)
	require.Equal(t, "12.5", got.Changes[0].QtyBase.String())
	require.NotEqual(t, uuid.Nil, got.EventID)
}

func TestWebhookClientReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookClient(srv.URL, time.Second).Send(context.Background(), []inventory.StockChange{sampleChange()})
	require.ErrorContains(t, err, "502")

	err = NewWebhookClient("", time.Second).Send(context.Background(), []inventory.StockChange{sampleChange()})
	require.True(t, errors.Is(err, ErrSyncDisabled))
}

func TestAsyncNotifierNeverBlocksOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	metrics := &outcomes{counts: map[string]int{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := NewAsyncNotifier(NewWebhookClient(srv.URL, time.Second), time.Second, logger, metrics)

	start := time.Now()
	notifier.Publish(context.Background(), sampleChange())
	require.Less(t, time.Since(start), 40*time.Millisecond)

	notifier.Wait()
	require.Equal(t, 1, metrics.counts["failed"])
}

func TestAsyncNotifierSkipsWhenDisabled(t *testing.T) {
	metrics := &outcomes{counts: map[string]int{}}
	notifier := NewAsyncNotifier(NewWebhookClient("", 0), 0, nil, metrics)
	notifier.Publish(context.Background(), sampleChange())
	notifier.Publish(context.Background())
	notifier.Wait()
	require.Equal(t, map[string]int{"skipped": 1}, metrics.counts)
}
