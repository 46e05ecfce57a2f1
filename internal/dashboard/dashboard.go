// Package dashboard holds the live display state of one pollen station and
// routes every inbound reading to the display and the charts.
package dashboard

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/pollen_dashboard/internal/chart"
	"github.com/relabs-tech/pollen_dashboard/internal/env"
	"github.com/relabs-tech/pollen_dashboard/internal/gps"
	"github.com/relabs-tech/pollen_dashboard/internal/series"
	"github.com/relabs-tech/pollen_dashboard/internal/telemetry"
)

// Label and timestamp layouts.
const (
	LabelLayout = "15:04:05"
	DateLayout  = "2006-01-02 "
)

// staleAfter is the age past which the timestamp text also shows the date.
const staleAfter = 24 * time.Hour

// Event tells listeners what changed.
type Event struct {
	// Kind is "state" or "chart".
	Kind  string `json:"kind"`
	Chart string `json:"chart,omitempty"`
}

// Dashboard is the display state plus the charts it feeds. It is safe for
// concurrent use; every mutation runs under one mutex so a message's
// display update and chart appends are not interleaved with another's.
type Dashboard struct {
	mu     sync.Mutex
	charts *chart.Registry
	now    func() time.Time
	loc    *time.Location

	state State
	trail *Trail

	lmu       sync.RWMutex
	listeners []func(Event)
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dashboard) { d.now = now }
}

// WithLocation sets the zone labels are rendered in (default time.Local).
func WithLocation(loc *time.Location) Option {
	return func(d *Dashboard) { d.loc = loc }
}

// WithTrailLength bounds the number of positions kept for the map trail.
func WithTrailLength(n int) Option {
	return func(d *Dashboard) { d.trail = NewTrail(n) }
}

// New creates a dashboard feeding the pollen and sensor charts of reg.
func New(reg *chart.Registry, opts ...Option) *Dashboard {
	d := &Dashboard{
		charts: reg,
		now:    time.Now,
		loc:    time.Local,
		trail:  NewTrail(series.DefaultCapacity),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.state.TimestampText = gps.Placeholder
	return d
}

// Charts returns the chart registry.
func (d *Dashboard) Charts() *chart.Registry {
	return d.charts
}

// OnChange registers a listener. Listeners run after the change is applied,
// outside the dashboard lock.
func (d *Dashboard) OnChange(fn func(Event)) {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	d.listeners = append(d.listeners, fn)
}

func (d *Dashboard) emit(events ...Event) {
	d.lmu.RLock()
	listeners := d.listeners
	d.lmu.RUnlock()
	for _, ev := range events {
		for _, fn := range listeners {
			fn(ev)
		}
	}
}

// Label formats t as a chart label.
func (d *Dashboard) Label(t time.Time) string {
	return t.In(d.loc).Format(LabelLayout)
}

// Update applies a message to the display state: timestamp text, GPS
// report and map marker, box readings and power values.
func (d *Dashboard) Update(msg telemetry.Message) {
	d.mu.Lock()
	d.update(msg, d.now())
	d.mu.Unlock()

	d.emit(Event{Kind: "state"})
}

func (d *Dashboard) update(msg telemetry.Message, now time.Time) {
	ts := msg.Time(now).In(d.loc)
	d.state.Timestamp = ts
	d.state.TimestampText = timestampText(ts, now)

	if msg.GPS != nil {
		report := gps.Parse(*msg.GPS)
		d.state.Position = report
		if lat, lon, ok := report.LatLon(); ok {
			d.state.Marker = &Marker{Lat: lat, Lon: lon}
			d.trail.Add(lat, lon)
		} else {
			log.WithField("gps", *msg.GPS).Debug("dashboard: no position in gps text, marker unchanged")
		}
	}

	if dht, ok := msg.FirstDHT(); ok {
		d.state.BoxTemperature = dht.Temperature
		d.state.BoxHumidity = dht.Humidity
	}

	if msg.HasPower() {
		power := make(map[string]float64, len(msg.Power))
		for k, v := range msg.Power {
			power[k] = v
		}
		d.state.Power = power
		if ibat, ok := msg.PowerValue(telemetry.PowerIbat); ok && ibat != 0 {
			d.state.LastIbatUpdate = now
		}
	}
}

func timestampText(ts, now time.Time) string {
	if ts.Add(staleAfter).Before(now) {
		return ts.Format(DateLayout + LabelLayout)
	}
	return ts.Format(LabelLayout)
}

// AppendCharts adds one point per chart the message has data for: the
// pollen chart when it carries power values, the sensor chart when it
// carries a box reading.
func (d *Dashboard) AppendCharts(msg telemetry.Message, label string) {
	d.mu.Lock()
	events := d.appendCharts(msg, label)
	d.mu.Unlock()

	d.emit(events...)
}

func (d *Dashboard) appendCharts(msg telemetry.Message, label string) []Event {
	var events []Event
	if msg.HasPower() {
		pollen := d.charts.MustGet(chart.Pollen)
		if err := pollen.Series.Append(label, series.Opt(msg.PowerPtr(telemetry.PowerPollen))); err != nil {
			log.WithField("err", err).Error("dashboard: pollen append")
		} else {
			events = append(events, Event{Kind: "chart", Chart: chart.Pollen})
		}
	}
	if dht, ok := msg.FirstDHT(); ok {
		sensor := d.charts.MustGet(chart.Sensor)
		if err := sensor.Series.Append(label, series.Opt(dht.Temperature), series.Opt(dht.Humidity)); err != nil {
			log.WithField("err", err).Error("dashboard: sensor append")
		} else {
			events = append(events, Event{Kind: "chart", Chart: chart.Sensor})
		}
	}
	return events
}

// Receive handles one live feed message: display update, then chart points
// labelled with the arrival time.
func (d *Dashboard) Receive(msg telemetry.Message) {
	d.mu.Lock()
	now := d.now()
	d.update(msg, now)
	events := d.appendCharts(msg, d.Label(now))
	d.mu.Unlock()

	d.emit(append([]Event{{Kind: "state"}}, events...)...)
}

// ReplayHistory appends historical messages to the charts. msgs is
// newest-first, as the history API serves it; points are appended
// oldest-first, each labelled with its own timestamp.
func (d *Dashboard) ReplayHistory(msgs []telemetry.Message) {
	if len(msgs) == 0 {
		return
	}

	d.mu.Lock()
	now := d.now()
	touched := map[string]bool{}
	for i := len(msgs) - 1; i >= 0; i-- {
		for _, ev := range d.appendCharts(msgs[i], d.Label(msgs[i].Time(now))) {
			touched[ev.Chart] = true
		}
	}
	d.mu.Unlock()

	var events []Event
	for _, key := range d.charts.Keys() {
		if touched[key] {
			events = append(events, Event{Kind: "chart", Chart: key})
		}
	}
	d.emit(events...)
}

// ApplyLocalReading shows a local sensor poll result and adds it to the
// sensor chart. Absent readings are plotted as missing, never as zero.
func (d *Dashboard) ApplyLocalReading(s env.Sample) {
	d.mu.Lock()
	now := d.now()
	if s.Temperature != nil {
		d.state.LocalTemperature = s.Temperature
	}
	if s.Humidity != nil {
		d.state.LocalHumidity = s.Humidity
	}
	err := d.charts.MustGet(chart.Sensor).Series.Append(d.Label(now), series.Opt(s.Temperature), series.Opt(s.Humidity))
	d.mu.Unlock()

	if err != nil {
		log.WithField("err", err).Error("dashboard: sensor append")
		d.emit(Event{Kind: "state"})
		return
	}
	d.emit(Event{Kind: "state"}, Event{Kind: "chart", Chart: chart.Sensor})
}
