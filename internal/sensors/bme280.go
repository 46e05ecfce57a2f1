// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/pollen_dashboard/internal/env"
)

// BME280 is the box temperature/humidity sensor on the station's I²C bus.
type BME280 struct {
	mu  sync.Mutex
	bus i2c.BusCloser
	dev *bmxx80.Dev
}

// OpenBME280 initializes periph, opens busName ("" = first bus) and the
// sensor at addr (0x76 or 0x77).
func OpenBME280(busName string, addr uint16) (*BME280, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, errors.Wrapf(err, "I2C open %q", busName)
	}

	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, errors.Wrapf(err, "BME280 init at 0x%02X", addr)
	}

	log.Infof("sensors: BME280 initialized at 0x%02X on %s", addr, bus)
	return &BME280{bus: bus, dev: dev}, nil
}

// Read takes one measurement. A BMP280 (no humidity element) reports no
// humidity rather than zero.
func (b *BME280) Read() (env.Sample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var e physic.Env
	if err := b.dev.Sense(&e); err != nil {
		return env.Sample{}, errors.Wrap(err, "BME280 sense")
	}

	temp := e.Temperature.Celsius()
	s := env.Sample{Temperature: &temp}
	if e.Humidity != 0 {
		rh := float64(e.Humidity) / float64(physic.PercentRH)
		s.Humidity = &rh
	}
	return s, nil
}

// Close halts the sensor and releases the bus.
func (b *BME280) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.dev.Halt()
	if cerr := b.bus.Close(); err == nil {
		err = cerr
	}
	return err
}
