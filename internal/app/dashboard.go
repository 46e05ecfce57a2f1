package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/relabs-tech/pollen_dashboard/internal/chart"
	"github.com/relabs-tech/pollen_dashboard/internal/config"
	"github.com/relabs-tech/pollen_dashboard/internal/dashboard"
	"github.com/relabs-tech/pollen_dashboard/internal/history"
	"github.com/relabs-tech/pollen_dashboard/internal/sensors"
)

// archiveRetention bounds how long archived feed messages are kept.
const archiveRetention = 7 * 24 * time.Hour

// RunDashboard subscribes to the station feed, keeps the dashboard state
// and charts current and serves them over HTTP until SIGINT/SIGTERM.
func RunDashboard(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dash := dashboard.New(chart.DefaultRegistry(cfg.SeriesCapacity),
		dashboard.WithTrailLength(cfg.SeriesCapacity))

	hub := NewHub()
	dash.OnChange(hub.Listener(dash))

	loader := &history.Loader{Sink: dash, Limit: cfg.SeriesCapacity}
	if cfg.APIBaseURL != "" {
		loader.Remote = history.NewClient(cfg.APIBaseURL, history.WithTimeout(cfg.HTTPTimeout()))
	}

	feed := &feedHandler{sink: dash, now: time.Now}
	if cfg.ArchivePath != "" {
		archive, err := history.OpenArchive(cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer archive.Close()
		loader.Archive = archive
		feed.archive = archive
		log.Infof("dashboard: archiving feed to %s", cfg.ArchivePath)
	}

	client, err := connectFeed(cfg.MQTTBroker, cfg.MQTTClientIDDashboard, cfg.TopicPollen,
		feed.onMessage, func() { loader.Load(ctx) })
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: newRouter(dash, hub, cfg.WebRoot),
	}
	srvErr := make(chan error, 1)

	var wg conc.WaitGroup
	wg.Go(func() {
		log.Infof("dashboard: web server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- errors.Wrap(err, "web server")
			stop()
		}
	})
	wg.Go(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithField("err", err).Warn("dashboard: web server shutdown")
		}
		hub.Close()
	})

	if cfg.DHTPollURL != "" {
		dht := sensors.NewDHTClient(cfg.DHTPollURL, cfg.HTTPTimeout())
		wg.Go(func() {
			sensors.Poll(ctx, "dht", cfg.PollInterval(), func(ctx context.Context) error {
				sample, err := dht.Read(ctx)
				if err != nil {
					return err
				}
				dash.ApplyLocalReading(sample)
				return nil
			})
		})
	}

	if loader.Archive != nil {
		wg.Go(func() {
			sensors.Poll(ctx, "archive prune", time.Hour, func(ctx context.Context) error {
				n, err := loader.Archive.Prune(ctx, time.Now().Add(-archiveRetention))
				if err == nil && n > 0 {
					log.Debugf("dashboard: pruned %d archived messages", n)
				}
				return err
			})
		})
	}

	<-ctx.Done()
	log.Info("dashboard: shutting down")
	wg.Wait()

	select {
	case err := <-srvErr:
		return err
	default:
		return nil
	}
}
