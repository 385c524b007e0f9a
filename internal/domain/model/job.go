package model

import "time"

type JobStatus string

const (
	JobStatusPendingCheck JobStatus = "pending_check" // not yet inspected; eligibility unknown
	JobStatusLinkReady    JobStatus = "link_ready"    // eligible; verification link available or extractable
	JobStatusVerified     JobStatus = "verified"      // verification passed; instrument not yet bound
	JobStatusSubscribed   JobStatus = "subscribed"    // instrument bound and subscription confirmed (terminal)
	JobStatusIneligible   JobStatus = "ineligible"    // account not eligible for the offer (terminal)
	JobStatusError        JobStatus = "error"         // unrecoverable failure; message carries detail
)

// AllJobStatuses lists every valid status, in pipeline order.
var AllJobStatuses = []JobStatus{
	JobStatusPendingCheck,
	JobStatusLinkReady,
	JobStatusVerified,
	JobStatusSubscribed,
	JobStatusIneligible,
	JobStatusError,
}

func (s JobStatus) Valid() bool {
	for _, v := range AllJobStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether the pipeline never advances a job past this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSubscribed || s == JobStatusIneligible
}

// Job is one account progressing through the eligibility/verification/binding
// pipeline. Email is the primary key. Credential fields are opaque to the
// core; only the Automation Driver interprets them.
type Job struct {
	Email            string
	Password         string
	RecoveryEmail    string
	SecretKey        string // TOTP secret, passed through to the driver
	VerificationLink string
	Status           JobStatus
	Message          string // free-text note from the last pipeline result
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// JobPatch carries the fields of an upsert. A nil field means "leave the
// stored value untouched", which is what makes repeated upserts from
// different pipeline stages safe. This is deliberately not a map: each field
// is an explicit tagged option.
type JobPatch struct {
	Password         *string
	RecoveryEmail    *string
	SecretKey        *string
	VerificationLink *string
	Status           *JobStatus
	Message          *string
}

// StatusPatch is the common two-field patch written at every transition.
func StatusPatch(status JobStatus, message string) JobPatch {
	return JobPatch{Status: &status, Message: &message}
}

// Apply merges the non-nil fields of the patch into the job.
func (p JobPatch) Apply(j *Job) {
	if p.Password != nil {
		j.Password = *p.Password
	}
	if p.RecoveryEmail != nil {
		j.RecoveryEmail = *p.RecoveryEmail
	}
	if p.SecretKey != nil {
		j.SecretKey = *p.SecretKey
	}
	if p.VerificationLink != nil {
		j.VerificationLink = *p.VerificationLink
	}
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.Message != nil {
		j.Message = *p.Message
	}
}
