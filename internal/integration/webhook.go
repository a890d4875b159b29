// Package integration pushes committed stock changes to the external inventory system.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lastdino/matex-sub001/internal/inventory"
)

// ErrSyncDisabled is returned by Send when no endpoint is configured.
var ErrSyncDisabled = errors.New("integration: stock sync disabled")

// StockSyncEvent is the body posted to the stock sync endpoint.
type StockSyncEvent struct {
	EventID uuid.UUID               `json:"event_id"`
	SentAt  time.Time               `json:"sent_at"`
	Changes []inventory.StockChange `json:"changes"`
}

// Sender delivers stock changes.
type Sender interface {
	Send(ctx context.Context, changes []inventory.StockChange) error
}

// WebhookClient posts stock changes as JSON.
type WebhookClient struct {
	url        string
	httpClient *http.Client
}

// NewWebhookClient constructs a client. An empty url disables delivery.
func NewWebhookClient(url string, timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookClient{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled reports whether an endpoint is configured.
func (c *WebhookClient) Enabled() bool {
	return c != nil && c.url != ""
}

// Send posts one event carrying changes.
func (c *WebhookClient) Send(ctx context.Context, changes []inventory.StockChange) error {
	if !c.Enabled() {
		return ErrSyncDisabled
	}
	if len(changes) == 0 {
		return nil
	}
	body, err := json.Marshal(StockSyncEvent{
		EventID: uuid.New(),
		SentAt:  time.Now().UTC(),
		Changes: changes,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("stock sync returned status %d", resp.StatusCode)
	}
	return nil
}
