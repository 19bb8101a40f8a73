package presence

import (
	"context"
	"log/slog"
	"time"
)

// StartExpiryWorker runs a background goroutine that periodically checks
// whether the current venue's end time has passed and force-ends the session
// locally. It is the fallback for the event-expired push event when the push
// channel is down.
func StartExpiryWorker(ctx context.Context, o *Orchestrator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Expiry worker started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				sweepExpired(o)
			case <-ctx.Done():
				slog.Info("Expiry worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpired(o *Orchestrator) {
	snap := o.store.Snapshot()
	if !snap.CheckedIn || !snap.Venue.HasEnded(time.Now()) {
		return
	}

	slog.Info("Expiry worker ending session for finished venue",
		"venue_id", snap.Venue.ID,
		"ended_at", snap.Venue.EndsAt)
	o.ForceEnd("This event has ended.")
}
