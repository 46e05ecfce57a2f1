// Package chart describes the dashboard charts: what each one plots, how it
// is exported, and whether it is currently shown.
package chart

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/relabs-tech/pollen_dashboard/internal/series"
)

// Chart keys.
const (
	Pollen = "pollen"
	Sensor = "sensor"
)

// ErrUnknownChart is returned for a key that is not registered.
var ErrUnknownChart = errors.New("unknown chart")

// Spec is the static description of a chart.
type Spec struct {
	Key    string
	Title  string
	Tracks []string
	// Columns is the CSV header: the label column followed by one per track.
	Columns  []string
	Filename string
	// Precision renders the given tracks with fixed decimals in CSV export.
	Precision map[int]int
}

// PollenSpec is the pollen metric chart.
func PollenSpec() Spec {
	return Spec{
		Key:       Pollen,
		Title:     "Pollen",
		Tracks:    []string{"Pollen"},
		Columns:   []string{"Time", "Pollen Count"},
		Filename:  "pollen_data.csv",
		Precision: map[int]int{0: 2},
	}
}

// SensorSpec is the box temperature/humidity chart.
func SensorSpec() Spec {
	return Spec{
		Key:      Sensor,
		Title:    "Box Sensor",
		Tracks:   []string{"Box Temperature (°C)", "Box Humidity (%)"},
		Columns:  []string{"Time", "Box Temperature (°C)", "Box Humidity (%)"},
		Filename: "sensor_data.csv",
	}
}

// Chart is one live chart backed by a rolling buffer.
type Chart struct {
	Spec
	Series *series.Rolling

	mu      sync.Mutex
	visible bool
}

// New creates a visible chart with an empty buffer.
func New(spec Spec, capacity int) *Chart {
	return &Chart{
		Spec:    spec,
		Series:  series.New(len(spec.Tracks), capacity),
		visible: true,
	}
}

// Visible reports whether the chart is shown.
func (c *Chart) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// Toggle flips visibility and returns the new state.
func (c *Chart) Toggle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = !c.visible
	return c.visible
}

// CSVOptions returns the export options for this chart.
func (c *Chart) CSVOptions() []series.CSVOption {
	opts := make([]series.CSVOption, 0, len(c.Precision))
	for track, digits := range c.Precision {
		opts = append(opts, series.WithPrecision(track, digits))
	}
	return opts
}

// View is the JSON form of a chart for the browser.
type View struct {
	Key      string          `json:"key"`
	Title    string          `json:"title"`
	Tracks   []string        `json:"tracks"`
	Visible  bool            `json:"visible"`
	Capacity int             `json:"capacity"`
	Data     series.Snapshot `json:"data"`
}

// View snapshots the chart.
func (c *Chart) View() View {
	return View{
		Key:      c.Key,
		Title:    c.Title,
		Tracks:   c.Tracks,
		Visible:  c.Visible(),
		Capacity: c.Series.Capacity(),
		Data:     c.Series.Snapshot(),
	}
}

// Registry owns the charts of one dashboard.
type Registry struct {
	charts map[string]*Chart
}

// NewRegistry builds one chart per spec.
func NewRegistry(capacity int, specs ...Spec) *Registry {
	r := &Registry{charts: make(map[string]*Chart, len(specs))}
	for _, s := range specs {
		r.charts[s.Key] = New(s, capacity)
	}
	return r
}

// DefaultRegistry has the pollen and sensor charts.
func DefaultRegistry(capacity int) *Registry {
	return NewRegistry(capacity, PollenSpec(), SensorSpec())
}

// Get returns the chart for key.
func (r *Registry) Get(key string) (*Chart, error) {
	c, ok := r.charts[key]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownChart, "%q", key)
	}
	return c, nil
}

// MustGet is Get for keys registered at construction.
func (r *Registry) MustGet(key string) *Chart {
	c, err := r.Get(key)
	if err != nil {
		panic(err)
	}
	return c
}

// Toggle flips the visibility of the chart for key.
func (r *Registry) Toggle(key string) (bool, error) {
	c, err := r.Get(key)
	if err != nil {
		return false, err
	}
	return c.Toggle(), nil
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.charts))
	for k := range r.charts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Views snapshots every chart, sorted by key.
func (r *Registry) Views() []View {
	keys := r.Keys()
	views := make([]View, 0, len(keys))
	for _, k := range keys {
		views = append(views, r.charts[k].View())
	}
	return views
}
