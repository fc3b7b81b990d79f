package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/campusquest/backend/internal/models"
)

// Webhook posts addressed messages as JSON to a mail relay.
type Webhook struct {
	url        string
	httpClient *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{url: url, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

func (w *Webhook) Dispatch(ctx context.Context, msg Message) error {
	if w.url == "" || msg.Broadcast || len(msg.To) == 0 {
		return nil
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build mail request: %v", models.ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: mail relay: %v", models.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: mail relay returned status %d", models.ErrUnavailable, resp.StatusCode)
	}
	return nil
}
