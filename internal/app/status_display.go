// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/pollen_dashboard/internal/chart"
	"github.com/relabs-tech/pollen_dashboard/internal/config"
	"github.com/relabs-tech/pollen_dashboard/internal/dashboard"
	"github.com/relabs-tech/pollen_dashboard/internal/telemetry"
)

const (
	oledWidth  = 128
	oledHeight = 64
	lineHeight = 13
)

// addrBus sends every transaction to one fixed address, so the panel can
// sit at an address other than the driver's default.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b *addrBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

// statusPages renders the dashboard state as the pages the display cycles
// through. Each page holds at most four lines of up to 18 characters.
func statusPages(s dashboard.State) [][]string {
	txt := s.Text()

	station := []string{"Pollen station"}
	if v, ok := s.Power[telemetry.PowerPollen]; ok {
		station = append(station, fmt.Sprintf("Pollen: %.1f", v))
	} else {
		station = append(station, "Pollen: --")
	}
	station = append(station,
		fmt.Sprintf("Box: %sC %s%%", txt.BoxTemperature, txt.BoxHumidity),
		"Seen: "+txt.Timestamp)

	position := []string{"GPS position"}
	if !s.Position.HasPosition() {
		position = append(position, "Waiting...")
	} else {
		lat, lon := *s.Position.Latitude, *s.Position.Longitude
		position = append(position,
			fmt.Sprintf("%.4f%s", abs64(lat), hemisphere(lat, "N", "S")),
			fmt.Sprintf("%.4f%s", abs64(lon), hemisphere(lon, "E", "W")),
			fmt.Sprintf("Alt %sm Sat %s", txt.Position.Altitude, txt.Position.Satellites))
	}
	return [][]string{station, position}
}

func hemisphere(v float64, pos, neg string) string {
	if v < 0 {
		return neg
	}
	return pos
}

func abs64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// renderStatus draws lines top to bottom on a blank 1-bit frame.
func renderStatus(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, oledWidth, oledHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, l := range lines {
		y := (i + 1) * lineHeight
		if y > oledHeight {
			break
		}
		drawer.Dot = fixed.P(0, y)
		drawer.DrawString(l)
	}
	return img
}

// RunStatusDisplay shows the latest station report on an SSD1306 panel,
// alternating between the station page and the GPS page.
func RunStatusDisplay(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := host.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize periph")
	}
	bus, err := i2creg.Open(cfg.SensorBus)
	if err != nil {
		return errors.Wrap(err, "failed to open I2C bus")
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(&addrBus{Bus: bus, addr: cfg.DisplayI2CAddr}, &ssd1306.DefaultOpts)
	if err != nil {
		return errors.Wrap(err, "failed to initialize display")
	}
	defer dev.Halt()
	log.Infof("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := dev.Draw(dev.Bounds(), renderStatus([]string{"Pollen station", "Connecting..."}), image.Point{}); err != nil {
		log.WithField("err", err).Warn("display: splash")
	}

	dash := dashboard.New(chart.DefaultRegistry(1))
	feed := &feedHandler{sink: dash, now: time.Now}
	client, err := connectFeed(cfg.MQTTBroker, cfg.MQTTClientIDDisplay, cfg.TopicPollen, feed.onMessage, nil)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ticker := time.NewTicker(cfg.DisplayInterval())
	defer ticker.Stop()

	for page := 0; ; page++ {
		select {
		case <-ctx.Done():
			log.Info("display: shutting down")
			return nil
		case <-ticker.C:
		}

		pages := statusPages(dash.Snapshot())
		img := renderStatus(pages[page%len(pages)])
		if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
			log.WithField("err", err).Error("display: draw")
		}
	}
}
