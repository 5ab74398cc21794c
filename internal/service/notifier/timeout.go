package notifier

import (
	"context"
	"time"

	"landslidewatch/internal/service/pipeline"
)

type timeoutNotifier struct {
	next    pipeline.Notifier
	timeout time.Duration
}

// WithTimeout bounds every Send of next by d. A non-positive d returns next.
func WithTimeout(next pipeline.Notifier, d time.Duration) pipeline.Notifier {
	if d <= 0 {
		return next
	}
	return timeoutNotifier{next: next, timeout: d}
}

func (t timeoutNotifier) Send(ctx context.Context, message string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Send(ctx, message)
}
