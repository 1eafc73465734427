package scheduler

import "context"

// Loop is a long-lived background task that runs until ctx is cancelled.
type Loop interface {
	Run(ctx context.Context)
}
