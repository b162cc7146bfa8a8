// Package adapters defines the contract every platform adapter satisfies
// and the supervisor that keeps them running.
package adapters

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Adapter speaks one platform's native protocol and translates to/from
// the canonical model. Start blocks until ctx is cancelled or the adapter
// fails; the supervisor handles restarts.
type Adapter interface {
	Name() string
	Start(ctx context.Context) error
}

// NewEgressLimiter bounds outbound native sends to 20 per minute with a
// burst of 5, shared per adapter.
func NewEgressLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(3*time.Second), 5)
}
