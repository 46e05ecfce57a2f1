// Package telemetry defines the JSON messages published by the pollen
// station on the live feed and served by the history API.
package telemetry

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DHTReading is one box temperature/humidity reading.
type DHTReading struct {
	Temperature *float64 `json:"t,omitempty"`  // °C
	Humidity    *float64 `json:"rh,omitempty"` // %
}

// Message is one station report. Every field is optional.
type Message struct {
	// Power carries the power board values (pollen, Ibat, Vbat, ...).
	Power Power        `json:"power,omitempty"`
	DHT22 []DHTReading `json:"dht22,omitempty"`
	// GPS is raw multi-line NMEA text.
	GPS *string `json:"gps,omitempty"`
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp *int64 `json:"timestamp,omitempty"`
}

// Power holds the numeric power board values. Null entries and entries
// that are not numbers are left out, so a missing value is never read as 0.
type Power map[string]float64

// UnmarshalJSON keeps the numeric entries of a power object. A power value
// that is not an object is dropped rather than failing the whole message.
func (p *Power) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*p = nil
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		log.WithField("err", err).Warn("telemetry: ignoring non-object power field")
		*p = nil
		return nil
	}

	out := make(Power, len(raw))
	for k, v := range raw {
		var f *float64
		if err := json.Unmarshal(v, &f); err != nil {
			log.Debugf("telemetry: skipping non-numeric power field %s=%s", k, v)
			continue
		}
		if f != nil {
			out[k] = *f
		}
	}
	*p = out
	return nil
}

// Well known power fields.
const (
	PowerPollen = "pollen"
	PowerIbat   = "Ibat"
)

// Decode parses one message payload.
func Decode(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, errors.Wrap(err, "decode telemetry message")
	}
	return m, nil
}

// DecodeList parses a JSON array of messages.
func DecodeList(payload []byte) ([]Message, error) {
	var ms []Message
	if err := json.Unmarshal(payload, &ms); err != nil {
		return nil, errors.Wrap(err, "decode telemetry list")
	}
	return ms, nil
}

// Time returns the message timestamp, or now when it has none.
func (m Message) Time(now time.Time) time.Time {
	if m.Timestamp == nil {
		return now
	}
	return time.UnixMilli(*m.Timestamp)
}

// HasPower reports whether the message carried a power object.
func (m Message) HasPower() bool {
	return m.Power != nil
}

// PowerValue returns a power field.
func (m Message) PowerValue(name string) (float64, bool) {
	v, ok := m.Power[name]
	return v, ok
}

// PowerPtr returns a power field as an optional value.
func (m Message) PowerPtr(name string) *float64 {
	v, ok := m.Power[name]
	if !ok {
		return nil
	}
	return &v
}

// FirstDHT returns the first box reading, if any.
func (m Message) FirstDHT() (DHTReading, bool) {
	if len(m.DHT22) == 0 {
		return DHTReading{}, false
	}
	return m.DHT22[0], true
}

// GPSText returns the NMEA block, empty when absent.
func (m Message) GPSText() string {
	if m.GPS == nil {
		return ""
	}
	return *m.GPS
}
