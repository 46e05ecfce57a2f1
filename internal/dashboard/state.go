package dashboard

import (
	"strconv"
	"time"

	"github.com/relabs-tech/pollen_dashboard/internal/gps"
)

// Marker is the map marker position.
type Marker struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// State is what the dashboard shows.
type State struct {
	Timestamp     time.Time  `json:"timestamp"`
	TimestampText string     `json:"timestamp_text"`
	Position      gps.Report `json:"position"`
	// Marker is the last known position; nil until one has been seen.
	Marker *Marker `json:"marker,omitempty"`

	// Box reading from the feed.
	BoxTemperature *float64 `json:"box_temperature,omitempty"`
	BoxHumidity    *float64 `json:"box_humidity,omitempty"`

	// Reading from the local sensor poll.
	LocalTemperature *float64 `json:"local_temperature,omitempty"`
	LocalHumidity    *float64 `json:"local_humidity,omitempty"`

	Power          map[string]float64 `json:"power,omitempty"`
	LastIbatUpdate time.Time          `json:"last_ibat_update"`
}

// Text is State rendered for display, "--" for unknown values.
type Text struct {
	Timestamp        string         `json:"timestamp"`
	Position         gps.ReportText `json:"position"`
	BoxTemperature   string         `json:"box_temperature"`
	BoxHumidity      string         `json:"box_humidity"`
	LocalTemperature string         `json:"local_temperature"`
	LocalHumidity    string         `json:"local_humidity"`
}

// Snapshot returns a copy of the current state.
func (d *Dashboard) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.state
	if d.state.Marker != nil {
		m := *d.state.Marker
		s.Marker = &m
	}
	if d.state.Power != nil {
		s.Power = make(map[string]float64, len(d.state.Power))
		for k, v := range d.state.Power {
			s.Power[k] = v
		}
	}
	return s
}

// Text renders the state for display.
func (s State) Text() Text {
	return Text{
		Timestamp:        s.TimestampText,
		Position:         s.Position.Text(),
		BoxTemperature:   oneDecimal(s.BoxTemperature),
		BoxHumidity:      oneDecimal(s.BoxHumidity),
		LocalTemperature: oneDecimal(s.LocalTemperature),
		LocalHumidity:    oneDecimal(s.LocalHumidity),
	}
}

func oneDecimal(v *float64) string {
	if v == nil {
		return gps.Placeholder
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}
