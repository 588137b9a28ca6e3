package journal

import (
	"context"
	"log/slog"

	"stack-queue-parking/internal/parking"
)

// Observer journals every change reported by an InstrumentedLot. Write
// failures are logged and never reach the caller of the operation.
func Observer(j *Journal, logger *slog.Logger) parking.Observer {
	return func(ctx context.Context, c parking.Change) {
		e := Event{
			Operation:  c.Operation,
			Section:    c.Section,
			Success:    c.Err == nil,
			StackCount: c.State.StackCount,
			QueueCount: c.State.QueueCount,
		}
		if c.Car != nil {
			e.CarID = c.Car.ID
			e.Color = c.Car.Color
		}
		if c.Err != nil {
			e.Error = c.Err.Error()
		}

		// The request may already be finished; the write should still land.
		ctx = context.WithoutCancel(ctx)
		if _, err := j.Record(ctx, e); err != nil {
			logger.ErrorContext(ctx, "journal write failed", "operation", c.Operation, "err", err)
		}
	}
}
