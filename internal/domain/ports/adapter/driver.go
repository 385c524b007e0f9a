package adapter

import (
	"context"

	"student-offer-automation/internal/domain/model"
)

// DriverState is what the Automation Driver reads off the offer page.
// It intentionally mirrors the job status enum for the detectable subset.
type DriverState string

const (
	DriverStateLinkReady  DriverState = "link_ready"
	DriverStateVerified   DriverState = "verified"
	DriverStateSubscribed DriverState = "subscribed"
	DriverStateIneligible DriverState = "ineligible"
	DriverStateUnknown    DriverState = "unknown"
)

// Credentials are passed through to the driver; the core never interprets them.
type Credentials struct {
	Email         string
	Password      string
	RecoveryEmail string
	SecretKey     string
}

// AutomationDriver hands out isolated browser sessions. Session must be safe
// to call concurrently; each returned session belongs to exactly one job.
type AutomationDriver interface {
	Session(ctx context.Context) (DriverSession, error)
}

// DriverSession performs the page navigation and interaction for one job.
// Every call is slow and fallible; the orchestrator retries nothing beyond
// what each operation already does internally. Close releases the browser
// profile and is safe to call after a failed stage.
type DriverSession interface {
	Navigate(ctx context.Context, url string) error
	EstablishSession(ctx context.Context, creds Credentials) error
	DetectState(ctx context.Context) (DriverState, error)
	// ExtractVerificationLink returns ("", nil) when no link is present.
	ExtractVerificationLink(ctx context.Context) (string, error)
	BindInstrument(ctx context.Context, card *model.Card) error
	ConfirmSubscription(ctx context.Context) error
	Close(ctx context.Context) error
}
