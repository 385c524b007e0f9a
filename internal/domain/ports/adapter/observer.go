package adapter

import "student-offer-automation/internal/domain/model"

// BatchObserver receives a ProgressEvent at every job transition. Events are
// informational; the orchestrator never blocks on an observer.
type BatchObserver interface {
	OnProgress(ev model.ProgressEvent)
}

// ObserverFunc adapts a function to the BatchObserver interface.
type ObserverFunc func(ev model.ProgressEvent)

func (f ObserverFunc) OnProgress(ev model.ProgressEvent) { f(ev) }
