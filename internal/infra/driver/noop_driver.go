// File: internal/infra/driver/noop_driver.go
package driver

import (
	"context"

	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/adapter"
)

var _ adapter.AutomationDriver = (*NoopDriver)(nil)

// NoopDriver reports every account as ineligible without touching a browser.
// Used for dry runs and local wiring checks.
type NoopDriver struct{}

func NewNoopDriver() *NoopDriver { return &NoopDriver{} }

func (d *NoopDriver) Session(ctx context.Context) (adapter.DriverSession, error) {
	return noopSession{}, nil
}

type noopSession struct{}

func (noopSession) Navigate(ctx context.Context, url string) error { return nil }

func (noopSession) EstablishSession(ctx context.Context, creds adapter.Credentials) error {
	return nil
}

func (noopSession) DetectState(ctx context.Context) (adapter.DriverState, error) {
	return adapter.DriverStateIneligible, nil
}

func (noopSession) ExtractVerificationLink(ctx context.Context) (string, error) { return "", nil }

func (noopSession) BindInstrument(ctx context.Context, card *model.Card) error { return nil }

func (noopSession) ConfirmSubscription(ctx context.Context) error { return nil }

func (noopSession) Close(ctx context.Context) error { return nil }
