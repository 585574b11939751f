package driving

import (
	"context"
	"time"
)

// Scheduler runs background maintenance on a fixed interval.
type Scheduler interface {
	// Start runs scheduled work until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the loop and waits for the current run.
	Stop() error

	// Reschedule changes the interval; a running loop picks it up at once.
	Reschedule(interval time.Duration)
}
