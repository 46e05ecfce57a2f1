package app

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	serial "github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/pollen_dashboard/internal/config"
	"github.com/relabs-tech/pollen_dashboard/internal/gps"
	"github.com/relabs-tech/pollen_dashboard/internal/telemetry"
)

// maxCycleLines bounds one cycle when a receiver never sends RMC again.
const maxCycleLines = 32

// cycle groups the sentences of one receiver output cycle. A cycle starts
// at RMC; lines seen before the first RMC are dropped.
type cycle struct {
	lines []string
}

// add takes one raw line. When the line starts a new cycle the previous
// one is returned as a multi-line block.
func (c *cycle) add(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return "", false
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		log.WithField("err", err).Debugf("gps: skipping %q", line)
		return "", false
	}
	if rmc, ok := sentence.(nmea.RMC); ok && rmc.Validity != nmea.ValidRMC {
		log.Debug("gps: receiver reports no fix")
	}

	var (
		block   string
		flushed bool
	)
	if sentence.DataType() == nmea.TypeRMC {
		if len(c.lines) > 0 {
			block, flushed = strings.Join(c.lines, "\n"), true
		}
		c.lines = c.lines[:0]
	} else if len(c.lines) == 0 || len(c.lines) >= maxCycleLines {
		return "", false
	}
	c.lines = append(c.lines, line)
	return block, flushed
}

// gpsMessage wraps one cycle as a station report.
func gpsMessage(block string, now time.Time) telemetry.Message {
	ts := now.UnixMilli()
	return telemetry.Message{GPS: &block, Timestamp: &ts}
}

// bridgeGPS reads NMEA lines from r and calls publish with one report per
// complete cycle until r fails.
func bridgeGPS(r io.Reader, now func() time.Time, publish func(telemetry.Message) error) error {
	reader := bufio.NewReader(r)
	var c cycle

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return errors.Wrap(err, "read gps")
		}

		block, ok := c.add(line)
		if !ok {
			continue
		}
		msg := gpsMessage(block, now())
		if err := publish(msg); err != nil {
			log.WithField("err", err).Error("gps: publish")
			continue
		}
		if rep := gps.Parse(block); rep.HasPosition() {
			txt := rep.Text()
			log.Debugf("gps: published fix lat=%s lon=%s sats=%s", txt.Latitude, txt.Longitude, txt.Satellites)
		} else {
			log.Debug("gps: published cycle without fix")
		}
	}
}

// RunGPSBridge reads the serial GPS and publishes each NMEA cycle to the
// station topic, the same way the station itself reports its position.
func RunGPSBridge(cfg *config.Config) error {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDGPS).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "connect %s", cfg.MQTTBroker)
	}
	defer client.Disconnect(250)
	log.Infof("gps: connected to MQTT broker at %s", cfg.MQTTBroker)

	serialOpts := serial.OpenOptions{
		PortName:        cfg.GPSSerialPort,
		BaudRate:        uint(cfg.GPSBaudRate),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	port, err := serial.Open(serialOpts)
	if err != nil {
		return errors.Wrapf(err, "open %s", cfg.GPSSerialPort)
	}
	defer port.Close()
	log.Infof("gps: serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	return bridgeGPS(port, time.Now, func(msg telemetry.Message) error {
		payload, err := json.Marshal(msg)
		if err != nil {
			return errors.Wrap(err, "marshal gps message")
		}
		token := client.Publish(cfg.TopicPollen, 0, false, payload)
		token.Wait()
		return token.Error()
	})
}
