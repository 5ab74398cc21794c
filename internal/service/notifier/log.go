package notifier

import (
	"context"

	"landslidewatch/internal/logger"
)

// Log writes alerts to the warning log. It never fails.
type Log struct {
	Logger *logger.Logger
}

func (l Log) Send(_ context.Context, message string) error {
	l.Logger.Warning("ALERT (log notifier): %s", message)
	return nil
}
