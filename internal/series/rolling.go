// Package series holds the bounded rolling buffers that back the live charts.
package series

import (
	"encoding/json"
	"math"
	"sync"

	"github.com/pkg/errors"
)

// DefaultCapacity is the number of samples a chart keeps.
const DefaultCapacity = 100

// ErrTrackMismatch is returned when an append carries the wrong number of values.
var ErrTrackMismatch = errors.New("value count does not match track count")

// Value is one sample of one track: a number or Missing.
type Value struct {
	v     float64
	valid bool
}

// Missing marks a sample with no reading. It is never rendered as zero.
var Missing = Value{}

// Num wraps a reading. NaN and infinities become Missing.
func Num(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Missing
	}
	return Value{v: v, valid: true}
}

// Opt converts an optional reading.
func Opt(v *float64) Value {
	if v == nil {
		return Missing
	}
	return Num(*v)
}

// Float returns the reading; ok is false for Missing.
func (v Value) Float() (float64, bool) {
	return v.v, v.valid
}

// IsMissing reports whether v carries no reading.
func (v Value) IsMissing() bool {
	return !v.valid
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var f *float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = Opt(f)
	return nil
}

// Rolling is a fixed capacity FIFO of labelled samples with one or more
// value tracks. Labels and every track always have the same length; an
// append that overflows the capacity evicts the oldest sample from all of
// them inside the same critical section.
type Rolling struct {
	mu       sync.RWMutex
	capacity int
	labels   []string
	tracks   [][]Value
}

// New returns an empty buffer with the given number of tracks.
// A capacity <= 0 selects DefaultCapacity.
func New(tracks, capacity int) *Rolling {
	if tracks < 1 {
		tracks = 1
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Rolling{
		capacity: capacity,
		labels:   make([]string, 0, capacity+1),
		tracks:   make([][]Value, tracks),
	}
	for i := range r.tracks {
		r.tracks[i] = make([]Value, 0, capacity+1)
	}
	return r
}

// Append adds one sample. len(values) must equal Tracks(); otherwise
// ErrTrackMismatch is returned and the buffer is left untouched.
func (r *Rolling) Append(label string, values ...Value) error {
	if len(values) != len(r.tracks) {
		return errors.Wrapf(ErrTrackMismatch, "got %d values for %d tracks", len(values), len(r.tracks))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.labels = append(r.labels, label)
	for i, v := range values {
		r.tracks[i] = append(r.tracks[i], v)
	}

	for len(r.labels) > r.capacity {
		r.labels = dropFirst(r.labels)
		for i := range r.tracks {
			r.tracks[i] = dropFirst(r.tracks[i])
		}
	}
	return nil
}

// dropFirst removes index 0, reusing the backing array so a long lived
// buffer does not keep growing.
func dropFirst[T any](s []T) []T {
	n := copy(s, s[1:])
	var zero T
	s[n] = zero
	return s[:n]
}

// Len returns the number of retained samples.
func (r *Rolling) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.labels)
}

func (r *Rolling) Capacity() int { return r.capacity }

func (r *Rolling) Tracks() int { return len(r.tracks) }

// Snapshot is a point-in-time copy of a Rolling buffer, oldest first.
type Snapshot struct {
	Labels []string  `json:"labels"`
	Tracks [][]Value `json:"tracks"`
}

// Snapshot copies the buffer under the read lock.
func (r *Rolling) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		Labels: make([]string, len(r.labels)),
		Tracks: make([][]Value, len(r.tracks)),
	}
	copy(s.Labels, r.labels)
	for i, t := range r.tracks {
		s.Tracks[i] = make([]Value, len(t))
		copy(s.Tracks[i], t)
	}
	return s
}
