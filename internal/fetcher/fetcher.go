package fetcher

import (
	"context"

	"oracle-miss-alerts/internal/snapshot"
)

// Source supplies one cycle's raw chain records. The monitoring core never
// retries or re-fetches; transient-failure handling lives behind this
// interface.
type Source interface {
	Fetch(ctx context.Context) (snapshot.Records, error)
}
