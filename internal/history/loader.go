package history

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/pollen_dashboard/internal/telemetry"
)

// Remote is the station REST API.
type Remote interface {
	Device(ctx context.Context) (telemetry.Message, error)
	History(ctx context.Context) ([]telemetry.Message, error)
}

// Sink receives what the loader fetched.
type Sink interface {
	Update(msg telemetry.Message)
	ReplayHistory(msgs []telemetry.Message)
}

// Loader fills a freshly started (or reconnected) dashboard with the
// current device snapshot and the chart history.
type Loader struct {
	Remote  Remote   // nil when no API is configured
	Archive *Archive // nil when archiving is disabled
	Sink    Sink
	// Limit bounds how many archived messages are replayed.
	Limit int
}

// Load shows the device snapshot, then replays history. Remote history is
// preferred; the local archive is used when the remote fetch fails or no
// remote is set. Failures are logged and never stop the dashboard.
func (l *Loader) Load(ctx context.Context) {
	if l.Remote != nil {
		device, err := l.Remote.Device(ctx)
		if err != nil {
			log.WithField("err", err).Error("history: device snapshot")
		} else {
			l.Sink.Update(device)
		}
	}

	msgs, err := l.history(ctx)
	if err != nil {
		log.WithField("err", err).Error("history: load")
		return
	}
	log.Infof("history: replaying %d messages", len(msgs))
	l.Sink.ReplayHistory(msgs)
}

func (l *Loader) history(ctx context.Context) ([]telemetry.Message, error) {
	if l.Remote != nil {
		msgs, err := l.Remote.History(ctx)
		if err == nil || l.Archive == nil {
			return msgs, err
		}
		log.WithField("err", err).Warn("history: remote failed, using local archive")
	}
	if l.Archive == nil {
		return nil, nil
	}
	return l.Archive.Recent(ctx, l.limit())
}

func (l *Loader) limit() int {
	if l.Limit <= 0 {
		return 100
	}
	return l.Limit
}
