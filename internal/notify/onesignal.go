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

const oneSignalEndpoint = "https://onesignal.com/api/v1/notifications"

// OneSignal pushes broadcast messages to every subscribed device.
type OneSignal struct {
	appID      string
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

func NewOneSignal(appID, apiKey string) *OneSignal {
	return &OneSignal{
		appID:      appID,
		apiKey:     apiKey,
		endpoint:   oneSignalEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type oneSignalPayload struct {
	AppID            string            `json:"app_id"`
	IncludedSegments []string          `json:"included_segments"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
}

func (o *OneSignal) Dispatch(ctx context.Context, msg Message) error {
	if !msg.Broadcast || o.appID == "" {
		return nil
	}
	body, err := json.Marshal(oneSignalPayload{
		AppID:            o.appID,
		IncludedSegments: []string{"All"},
		Headings:         map[string]string{"en": msg.Subject},
		Contents:         map[string]string{"en": msg.Body},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build push request: %v", models.ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: push: %v", models.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: push returned status %d", models.ErrUnavailable, resp.StatusCode)
	}
	return nil
}
