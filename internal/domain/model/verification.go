package model

// VerifyStep is the step field reported by the bypass service for one
// verification id. Only success and error are terminal.
type VerifyStep string

const (
	VerifyStepPending VerifyStep = "pending"
	VerifyStepSuccess VerifyStep = "success"
	VerifyStepError   VerifyStep = "error"
)

func (s VerifyStep) Terminal() bool {
	return s == VerifyStepSuccess || s == VerifyStepError
}

// VerificationTask is the transient per-id state of one VerifyBatch call.
// It is never persisted; it lives only while the client drives the protocol.
type VerificationTask struct {
	VerificationID string
	Step           VerifyStep
	CheckToken     string // poll token; empty until the service hands one out
	Message        string
}

// VerifyResult is the final outcome for one verification id.
type VerifyResult struct {
	VerificationID string
	Step           VerifyStep
	Message        string
	TimedOut       bool // client-side poll budget exhausted, distinct from a service error
}

func (r VerifyResult) Success() bool { return r.Step == VerifyStepSuccess }

// ProgressFunc receives human-readable progress text for a verification id.
// It is informational only; correctness never depends on it being called.
type ProgressFunc func(verificationID, text string)
