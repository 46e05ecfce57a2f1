package sensors

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Poll calls fn once right away and then every interval until ctx is done.
// The interval is fixed: an error from fn is logged and the loop simply
// waits for the next tick.
func Poll(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := fn(ctx); err != nil {
			log.WithField("err", err).Warnf("%s: poll failed", name)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
