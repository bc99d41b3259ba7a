// Package display provides combined screen geometry and cursor access.
//
// All positions use screen coordinates with the origin at the top-left of
// the combined display area and y growing downward.
package display

import "math"

// Point is a position in device-independent screen units.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle. Max is exclusive.
type Rect struct {
	Min, Max Point
}

// Width returns the horizontal extent of r.
func (r Rect) Width() float64 { return r.Max.X - r.Min.X }

// Height returns the vertical extent of r.
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.Width() <= 0 || r.Height() <= 0 }

// Union returns the smallest rectangle containing r and s.
func (r Rect) Union(s Rect) Rect {
	if r.Empty() {
		return s
	}
	if s.Empty() {
		return r
	}
	return Rect{
		Min: Point{math.Min(r.Min.X, s.Min.X), math.Min(r.Min.Y, s.Min.Y)},
		Max: Point{math.Max(r.Max.X, s.Max.X), math.Max(r.Max.Y, s.Max.Y)},
	}
}

// Normalize maps p into [0,1] on both axes relative to r, clamping points
// that fall outside.
func (r Rect) Normalize(p Point) Point {
	if r.Empty() {
		return Point{}
	}
	return Point{
		X: Clamp01((p.X - r.Min.X) / r.Width()),
		Y: Clamp01((p.Y - r.Min.Y) / r.Height()),
	}
}

// Denormalize maps a normalized point back into r. A value of 1 lands on the
// last addressable unit rather than one past the edge.
func (r Rect) Denormalize(n Point) Point {
	return Point{
		X: r.Min.X + Clamp01(n.X)*math.Max(r.Width()-1, 0),
		Y: r.Min.Y + Clamp01(n.Y)*math.Max(r.Height()-1, 0),
	}
}

// Clamp01 limits v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v >= 0:
		return v
	default:
		return 0
	}
}
