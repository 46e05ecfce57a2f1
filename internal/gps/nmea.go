package gps

import (
	"math"
	"strconv"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// Parse decodes a block of newline separated NMEA sentences into a Report.
//
// RMC lines carry latitude, longitude and speed; GGA lines carry altitude
// and satellite count. The talker is not checked, so $GPRMC and $GNRMC are
// treated alike. Unrecognized lines, and lines whose checksum does not
// match, are skipped. When a sentence type repeats, the last one wins.
//
// Parse never fails: text without any recognized line yields an empty Report.
func Parse(text string) Report {
	var r Report
	for _, line := range strings.Split(text, "\n") {
		s, ok := splitSentence(line)
		if !ok {
			continue
		}
		switch s.kind {
		case nmea.TypeRMC:
			r.applyRMC(s.fields)
		case nmea.TypeGGA:
			r.applyGGA(s.fields)
		}
	}
	return r
}

type sentence struct {
	kind string
	// fields[0] is the tag, so indexes match the raw comma positions.
	fields []string
}

func splitSentence(line string) (sentence, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return sentence{}, false
	}

	// A trailing *hh checksum must match; the suffix is then dropped so
	// malformed fields still reach the per-field parsing below.
	if i := strings.LastIndexByte(line, '*'); i >= 0 {
		if !strings.HasPrefix(line, "$") || i < 1 {
			return sentence{}, false
		}
		if !strings.EqualFold(nmea.Checksum(line[1:i]), strings.TrimSpace(line[i+1:])) {
			return sentence{}, false
		}
		line = line[:i]
	}

	parts := strings.Split(line, ",")
	kind, ok := sentenceType(parts[0])
	if !ok {
		return sentence{}, false
	}
	return sentence{kind: kind, fields: parts}, true
}

// sentenceType extracts the type from a tag such as "$GPRMC".
func sentenceType(tag string) (string, bool) {
	tag = strings.TrimSpace(tag)
	if !strings.HasPrefix(tag, "$") || len(tag) < 6 {
		return "", false
	}
	return strings.ToUpper(tag[len(tag)-3:]), true
}

// RMC: Recommended Minimum Specific GNSS Data
//
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//	7: speed over ground (knots)
func (r *Report) applyRMC(f []string) {
	r.Latitude = coordinate(field(f, 3), field(f, 4), "S")
	r.Longitude = coordinate(field(f, 5), field(f, 6), "W")

	r.SpeedKmh = nil
	if knots, ok := parseNumber(field(f, 7)); ok {
		kmh := knots * KnotsToKmh
		r.SpeedKmh = &kmh
	}
}

// GGA: Global Positioning System Fix Data
//
//	7: number of satellites
//	9: altitude (meters)
func (r *Report) applyGGA(f []string) {
	r.Altitude = nil
	if alt, ok := parseNumber(field(f, 9)); ok {
		r.Altitude = &alt
	}

	r.Satellites = nil
	if sats, err := strconv.Atoi(strings.TrimSpace(field(f, 7))); err == nil {
		r.Satellites = &sats
	}
}

// coordinate converts packed degrees+minutes (ddmm.mmmm / dddmm.mmmm) to
// decimal degrees, negated when hemi equals negative.
func coordinate(raw, hemi, negative string) *float64 {
	v, ok := parseNumber(raw)
	if !ok {
		return nil
	}
	degrees := math.Floor(v / 100)
	minutes := math.Mod(v, 100)
	dec := degrees + minutes/60
	if strings.EqualFold(strings.TrimSpace(hemi), negative) {
		dec = -dec
	}
	return &dec
}

// parseNumber parses a decimal field. Empty or non-numeric text is NaN
// internally and reported as not ok; the NaN is never returned.
func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		v = math.NaN()
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func field(f []string, i int) string {
	if i < len(f) {
		return f[i]
	}
	return ""
}
