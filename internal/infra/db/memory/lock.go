package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"student-offer-automation/internal/domain"
)

// RunLock is the in-process counterpart of the redis run lock. TTL expiry is
// honored so a crashed run inside the same process does not wedge dev mode.
type RunLock struct {
	mu    sync.Mutex
	held  map[string]lockEntry
	clock func() time.Time
}

type lockEntry struct {
	token   string
	expires time.Time
}

func NewRunLock() *RunLock {
	return &RunLock{held: make(map[string]lockEntry), clock: time.Now}
}

func (l *RunLock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.held[key]; ok && l.clock().Before(e.expires) {
		return "", domain.ErrBatchRunning
	}
	token := uuid.NewString()
	l.held[key] = lockEntry{token: token, expires: l.clock().Add(ttl)}
	return token, nil
}

func (l *RunLock) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.held[key]; ok && e.token == token {
		delete(l.held, key)
	}
	return nil
}
