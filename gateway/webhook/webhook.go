// Package webhook posts ad-hoc JSON notifications to an operator-configured
// endpoint, used by the watchdog to alert when a recovery cycle touches an
// unusual number of rows.
package webhook

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

var timeout = 30 * time.Second

// AlertPayload is the body posted to the configured alert URL.
type AlertPayload struct {
	URL       string         `json:"url"`
	EventType string         `json:"eventType"`
	Summary   string         `json:"summary"`
	Details   map[string]any `json:"details,omitempty"`
}

// Post posts the payload to its own URL and waits for the response.
func Post(payload *AlertPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal webhook request to %s", payload.URL)
	}

	req, err := http.NewRequest(http.MethodPost, payload.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "failed to construct webhook request to %s", payload.URL)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to post webhook to %s", payload.URL)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read webhook response from %s", payload.URL)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("webhook %s returned status %d: %s", payload.URL, resp.StatusCode, b)
	}
	return nil
}

// PostAsync fires the alert in the background; failures are logged, never returned.
func PostAsync(payload *AlertPayload) {
	go func() {
		if err := Post(payload); err != nil {
			slog.Warn("failed to dispatch watchdog alert",
				slog.String("url", payload.URL),
				slog.String("eventType", payload.EventType),
				slog.Any("err", err))
		}
	}()
}
