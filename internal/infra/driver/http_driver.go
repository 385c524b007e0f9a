// File: internal/infra/driver/http_driver.go
package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/adapter"
)

var _ adapter.AutomationDriver = (*HTTPDriver)(nil)

// HTTPDriver implements adapter.AutomationDriver against the browser sidecar's
// REST API. The sidecar owns the actual browser profiles; one sidecar session
// maps to one isolated profile, so concurrent jobs never share cookies or
// page state.
type HTTPDriver struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDriver(baseURL string, timeout time.Duration) (*HTTPDriver, error) {
	if baseURL == "" {
		return nil, errors.New("driver base url empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid driver base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &HTTPDriver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Session opens a fresh browser profile on the sidecar.
func (d *HTTPDriver) Session(ctx context.Context) (adapter.DriverSession, error) {
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := d.post(ctx, "/sessions", nil, &out); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if out.SessionID == "" {
		return nil, errors.New("sidecar returned empty session id")
	}
	return &httpSession{d: d, id: out.SessionID}, nil
}

type httpSession struct {
	d  *HTTPDriver
	id string
}

var _ adapter.DriverSession = (*httpSession)(nil)

func (s *httpSession) Navigate(ctx context.Context, pageURL string) error {
	payload := map[string]any{"url": pageURL}
	return s.d.post(ctx, s.path("/navigate"), payload, nil)
}

func (s *httpSession) EstablishSession(ctx context.Context, creds adapter.Credentials) error {
	payload := map[string]any{
		"email":    creds.Email,
		"password": creds.Password,
	}
	if creds.RecoveryEmail != "" {
		payload["recoveryEmail"] = creds.RecoveryEmail
	}
	if creds.SecretKey != "" {
		payload["totpSecret"] = creds.SecretKey
	}
	return s.d.post(ctx, s.path("/login"), payload, nil)
}

func (s *httpSession) DetectState(ctx context.Context) (adapter.DriverState, error) {
	var out struct {
		State string `json:"state"`
	}
	if err := s.d.post(ctx, s.path("/detect"), nil, &out); err != nil {
		return adapter.DriverStateUnknown, err
	}
	switch st := adapter.DriverState(out.State); st {
	case adapter.DriverStateLinkReady, adapter.DriverStateVerified,
		adapter.DriverStateSubscribed, adapter.DriverStateIneligible:
		return st, nil
	}
	return adapter.DriverStateUnknown, nil
}

func (s *httpSession) ExtractVerificationLink(ctx context.Context) (string, error) {
	var out struct {
		Link string `json:"link"`
	}
	if err := s.d.post(ctx, s.path("/verification-link"), nil, &out); err != nil {
		return "", err
	}
	return out.Link, nil
}

func (s *httpSession) BindInstrument(ctx context.Context, card *model.Card) error {
	payload := map[string]any{
		"number":   card.Number,
		"expMonth": card.ExpMonth,
		"expYear":  card.ExpYear,
		"cvv":      card.CVV,
	}
	if card.HolderName != "" {
		payload["holderName"] = card.HolderName
	}
	if card.BillingAddress != "" {
		payload["billingAddress"] = card.BillingAddress
	}
	return s.d.post(ctx, s.path("/bind-card"), payload, nil)
}

func (s *httpSession) ConfirmSubscription(ctx context.Context) error {
	return s.d.post(ctx, s.path("/confirm"), nil, nil)
}

func (s *httpSession) Close(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.d.baseURL+s.path(""), nil)
	if err != nil {
		return err
	}
	resp, err := s.d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("close session http %d", resp.StatusCode)
	}
	return nil
}

func (s *httpSession) path(suffix string) string {
	return "/sessions/" + s.id + suffix
}

// post sends a JSON request and decodes the response into out when non-nil.
// Sidecar errors come back as {"error": "..."} with a non-2xx status.
func (d *HTTPDriver) post(ctx context.Context, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var fail struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&fail)
		if fail.Error != "" {
			return fmt.Errorf("sidecar %s: %s", path, fail.Error)
		}
		return fmt.Errorf("sidecar %s: http %d", path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
