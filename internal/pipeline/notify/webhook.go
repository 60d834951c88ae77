package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Event describes a pipeline state change worth telling the outside world
// about: a stage finishing, a batch parking for review, a terminal failure.
type Event struct {
	BatchID    string    `json:"batchId"`
	Stage      string    `json:"stage"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Notifier delivers pipeline events.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Webhook posts events as JSON to a configured URL. Delivery is best
// effort: the pipeline never fails a batch over a lost notification.
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhook constructs a webhook notifier. An empty URL yields a no-op.
func NewWebhook(url string, timeout time.Duration, logger *zap.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Notify posts the event.
func (w *Webhook) Notify(ctx context.Context, event Event) {
	if w == nil || w.url == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		w.logger.Error("webhook encode failed", zap.Error(err))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		w.logger.Error("webhook request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("webhook delivery failed", zap.String("batch_id", event.BatchID), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logger.Warn("webhook rejected",
			zap.String("batch_id", event.BatchID),
			zap.Error(fmt.Errorf("http %d", resp.StatusCode)),
		)
	}
}
