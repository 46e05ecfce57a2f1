package app

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/pollen_dashboard/internal/config"
	"github.com/relabs-tech/pollen_dashboard/internal/gps"
	"github.com/relabs-tech/pollen_dashboard/internal/telemetry"
)

// formatMessage renders one station report as console lines.
func formatMessage(msg telemetry.Message, now time.Time) []string {
	var lines []string

	lines = append(lines, fmt.Sprintf("[TIME ] %s", msg.Time(now).Format("2006-01-02 15:04:05")))

	if msg.HasPower() {
		keys := make([]string, 0, len(msg.Power))
		for k := range msg.Power {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%g", k, msg.Power[k]))
		}
		lines = append(lines, "[POWER] "+strings.Join(parts, " "))
	}

	if r, ok := msg.FirstDHT(); ok {
		lines = append(lines, fmt.Sprintf("[BOX  ] t=%s rh=%s", optText(r.Temperature), optText(r.Humidity)))
	}

	if msg.GPS != nil {
		t := gps.Parse(*msg.GPS).Text()
		lines = append(lines, fmt.Sprintf("[GPS  ] lat=%s lon=%s alt=%s speed=%skm/h sats=%s",
			t.Latitude, t.Longitude, t.Altitude, t.SpeedKmh, t.Satellites))
	}
	return lines
}

func optText(v *float64) string {
	if v == nil {
		return gps.Placeholder
	}
	return fmt.Sprintf("%.1f", *v)
}

func printMessage(w io.Writer, payload []byte) {
	msg, err := telemetry.Decode(payload)
	if err != nil {
		log.WithField("err", err).Warn("console: unmarshal")
		return
	}
	for _, l := range formatMessage(msg, time.Now()) {
		fmt.Fprintln(w, l)
	}
}

// RunConsoleMQTT prints every station report until Ctrl+C.
func RunConsoleMQTT(cfg *config.Config) error {
	client, err := connectFeed(cfg.MQTTBroker, cfg.MQTTClientIDConsole, cfg.TopicPollen,
		func(_ mqtt.Client, m mqtt.Message) { printMessage(os.Stdout, m.Payload()) }, nil)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("console: shutting down")
	client.Disconnect(250)
	return nil
}
