package adapter

import (
	"context"

	"student-offer-automation/internal/domain/model"
)

// VerificationClient drives the bypass-service protocol.
//
// VerifyBatch submits up to the service batch limit of ids and blocks until
// every id has a final outcome. The returned map contains exactly one entry
// per input id, even under network failure. An empty key means the client's
// configured bypass key. Cancel is best-effort and does not stop an
// in-flight poll loop locally.
type VerificationClient interface {
	VerifyBatch(ctx context.Context, ids []string, key string, progress model.ProgressFunc) (map[string]model.VerifyResult, error)
	Cancel(ctx context.Context, verificationID string) (string, error)
}
