package dashboard

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Trail keeps the most recent known positions for the map.
type Trail struct {
	mu     sync.RWMutex
	limit  int
	points []orb.Point
}

// NewTrail returns a trail holding at most limit points (at least 1).
func NewTrail(limit int) *Trail {
	if limit < 1 {
		limit = 1
	}
	return &Trail{limit: limit}
}

// Add appends a position, dropping the oldest when full.
func (t *Trail) Add(lat, lon float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.points = append(t.points, orb.Point{lon, lat})
	if len(t.points) > t.limit {
		t.points = t.points[len(t.points)-t.limit:]
	}
}

// Points returns a copy, oldest first.
func (t *Trail) Points() []orb.Point {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]orb.Point(nil), t.points...)
}

// MapFeatures returns the map layer as GeoJSON: the marker point (when a
// position is known) and the trail line (when it has two or more points).
func (d *Dashboard) MapFeatures() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	snap := d.Snapshot()
	if snap.Marker != nil {
		marker := geojson.NewFeature(orb.Point{snap.Marker.Lon, snap.Marker.Lat})
		marker.Properties["kind"] = "marker"
		marker.Properties["timestamp"] = snap.TimestampText
		text := snap.Position.Text()
		marker.Properties["altitude_m"] = text.Altitude
		marker.Properties["speed_kmh"] = text.SpeedKmh
		marker.Properties["satellites"] = text.Satellites
		fc.Append(marker)
	}

	if pts := d.trail.Points(); len(pts) > 1 {
		trail := geojson.NewFeature(orb.LineString(pts))
		trail.Properties["kind"] = "trail"
		fc.Append(trail)
	}
	return fc
}
