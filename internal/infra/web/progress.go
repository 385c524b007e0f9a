// File: internal/infra/web/progress.go
package web

import (
	"sync"

	"student-offer-automation/internal/domain/model"
)

// progressKeep bounds the event window; older transitions age out.
const progressKeep = 256

// progressBuffer retains the latest batch transition events for the
// /batch/progress endpoint. It spans runs: events from a previous run stay
// visible until newer ones push them out.
type progressBuffer struct {
	mu  sync.Mutex
	evs []model.ProgressEvent
}

func (p *progressBuffer) add(ev model.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evs = append(p.evs, ev)
	if len(p.evs) > progressKeep {
		p.evs = p.evs[len(p.evs)-progressKeep:]
	}
}

func (p *progressBuffer) snapshot() []model.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ProgressEvent, len(p.evs))
	copy(out, p.evs)
	return out
}
