package intent

import "context"

// HITLQueue persists HITLRequest rows across the `queued` → {approved,
// rejected, expired} lifecycle.
type HITLQueue interface {
	Enqueue(ctx context.Context, req HITLRequest) error
	Get(ctx context.Context, id string) (HITLRequest, bool, error)
	Resolve(ctx context.Context, id string, state HITLState) error
}
