// Package edge detects when the cursor reaches a boundary of the combined
// display area.
package edge

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"edgelink/internal/display"
)

// Edge is one boundary of the combined display area.
type Edge int

const (
	None Edge = iota
	Top
	Bottom
	Left
	Right
)

// Default detector settings.
const (
	DefaultThreshold   = 5.0
	DefaultMinInterval = 500 * time.Millisecond
)

var names = map[Edge]string{
	None:   "none",
	Top:    "top",
	Bottom: "bottom",
	Left:   "left",
	Right:  "right",
}

func (e Edge) String() string {
	if s, ok := names[e]; ok {
		return s
	}
	return "unknown"
}

// Opposite returns the edge across the display from e.
func (e Edge) Opposite() Edge {
	switch e {
	case Top:
		return Bottom
	case Bottom:
		return Top
	case Left:
		return Right
	case Right:
		return Left
	}
	return None
}

// Horizontal reports whether crossing e moves the cursor along the x axis.
func (e Edge) Horizontal() bool { return e == Left || e == Right }

// Parse converts a name such as "right" into an Edge.
func Parse(s string) (Edge, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for e, name := range names {
		if e != None && name == s {
			return e, nil
		}
	}
	return None, errors.Errorf("unknown edge %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (e Edge) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Edge) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Classify returns the edge p is within threshold of, or None. Corners
// resolve to the horizontal edge first.
func Classify(p display.Point, b display.Rect, threshold float64) Edge {
	switch {
	case p.X <= b.Min.X+threshold:
		return Left
	case p.X >= b.Max.X-1-threshold:
		return Right
	case p.Y <= b.Min.Y+threshold:
		return Top
	case p.Y >= b.Max.Y-1-threshold:
		return Bottom
	}
	return None
}

// Detector turns a stream of cursor samples into debounced edge crossings.
// It is not safe for concurrent use; the caller samples from one goroutine.
type Detector struct {
	threshold   float64
	minInterval time.Duration
	now         func() time.Time

	armed    bool
	lastFire time.Time
}

// NewDetector creates a new Detector.
func NewDetector(threshold float64, minInterval time.Duration) *Detector {
	return &Detector{
		threshold:   threshold,
		minInterval: minInterval,
		now:         time.Now,
		armed:       true,
	}
}

// Check reports an edge when the cursor has newly reached one. After firing
// it stays quiet until a sample away from every edge is observed, and never
// fires twice within the minimum interval.
func (d *Detector) Check(p display.Point, b display.Rect) (Edge, bool) {
	e := Classify(p, b, d.threshold)
	if e == None {
		d.armed = true
		return None, false
	}
	if !d.armed {
		return None, false
	}
	now := d.now()
	if !d.lastFire.IsZero() && now.Sub(d.lastFire) < d.minInterval {
		return None, false
	}
	d.armed = false
	d.lastFire = now
	return e, true
}
