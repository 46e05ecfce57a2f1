package gps

import (
	"math"
	"strconv"
)

// KnotsToKmh converts speed over ground from knots to km/h.
const KnotsToKmh = 1.852

// Report is the position decoded from one block of NMEA text.
// A nil field was not present (or not a number) in the source lines;
// zero is a real value.
type Report struct {
	// Decimal degrees, south and west negative.
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lon,omitempty"`
	// Meters above mean sea level.
	Altitude   *float64 `json:"altitude_m,omitempty"`
	SpeedKmh   *float64 `json:"speed_kmh,omitempty"`
	Satellites *int     `json:"satellites,omitempty"`
}

// HasPosition reports whether both coordinates are known.
func (r Report) HasPosition() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Empty reports whether no field was decoded.
func (r Report) Empty() bool {
	return r.Latitude == nil && r.Longitude == nil && r.Altitude == nil &&
		r.SpeedKmh == nil && r.Satellites == nil
}

// LatLon returns the coordinates; ok is false unless both are known.
func (r Report) LatLon() (lat, lon float64, ok bool) {
	if !r.HasPosition() {
		return 0, 0, false
	}
	return *r.Latitude, *r.Longitude, true
}

// Text renders each field for display, "--" when unknown.
func (r Report) Text() ReportText {
	return ReportText{
		Latitude:   formatFloat(r.Latitude, 6),
		Longitude:  formatFloat(r.Longitude, 6),
		Altitude:   formatFloat(r.Altitude, 1),
		SpeedKmh:   formatFloat(r.SpeedKmh, 1),
		Satellites: formatInt(r.Satellites),
	}
}

// ReportText is the display form of a Report.
type ReportText struct {
	Latitude   string `json:"lat"`
	Longitude  string `json:"lon"`
	Altitude   string `json:"altitude_m"`
	SpeedKmh   string `json:"speed_kmh"`
	Satellites string `json:"satellites"`
}

// Placeholder is shown for unknown values.
const Placeholder = "--"

func formatFloat(v *float64, digits int) string {
	if v == nil || math.IsNaN(*v) {
		return Placeholder
	}
	return strconv.FormatFloat(*v, 'f', digits, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return Placeholder
	}
	return strconv.Itoa(*v)
}
