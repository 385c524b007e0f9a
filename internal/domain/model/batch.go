package model

import "time"

// BatchOptions configures one orchestrator run over a fixed job list.
type BatchOptions struct {
	Concurrency      int // chunk size; jobs inside a chunk run concurrently
	CardsPerJob      int // how many jobs consume one card before rotating
	VerificationKey  string
	DetectSettleWait time.Duration // wait after navigation for page state to settle
	BindSettleWait   time.Duration // wait after binding before confirmation
}

// ProgressEvent is emitted to the observer at every job transition.
type ProgressEvent struct {
	RunID   string
	Email   string
	Status  JobStatus
	Message string
	At      time.Time
}

// BatchSummary aggregates per-category outcomes for one run.
type BatchSummary struct {
	RunID             string
	Total             int
	Subscribed        int
	Verified          int
	Ineligible        int
	Errors            int
	ResourceExhausted int
	StartedAt         time.Time
	FinishedAt        time.Time
}

// OperationLog is one row of the append-only audit trail.
type OperationLog struct {
	ID        int64
	Type      string // e.g. "batch_start", "verify", "bind", "import"
	Target    string // job email or instrument id the entry refers to
	Detail    string
	Status    string // success | failure
	CreatedAt time.Time
}

// Setting is one key/value row of the settings table.
type Setting struct {
	Key         string
	Value       string
	Description string
	UpdatedAt   time.Time
}
