package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid executor context")

	// Pipeline error taxonomy
	ErrTransientNetwork  = errors.New("transient network error")
	ErrAuthExpired       = errors.New("authorization expired")
	ErrTerminalService   = errors.New("service reported a terminal error")
	ErrClientTimeout     = errors.New("client-side poll timeout")
	ErrResourceExhausted = errors.New("instrument pool exhausted")
	ErrNoToken           = errors.New("no csrf token found in markup")

	// Batch coordination
	ErrBatchRunning = errors.New("another batch is already running")
)
