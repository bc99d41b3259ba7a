package display

import (
	"github.com/kbinani/screenshot"
	"github.com/pkg/errors"
)

// ErrNoDisplays is returned when no active display could be found.
var ErrNoDisplays = errors.New("no active displays")

// Bounds returns the union of all active display rectangles, so a
// multi-monitor layout is treated as one logical surface.
func Bounds() (Rect, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return Rect{}, ErrNoDisplays
	}
	var union Rect
	for i := 0; i < n; i++ {
		b := screenshot.GetDisplayBounds(i)
		union = union.Union(Rect{
			Min: Point{float64(b.Min.X), float64(b.Min.Y)},
			Max: Point{float64(b.Max.X), float64(b.Max.Y)},
		})
	}
	if union.Empty() {
		return Rect{}, ErrNoDisplays
	}
	return union, nil
}

// BoundsFunc returns the combined display geometry. It is the seam used by
// components that need geometry without talking to the OS in tests.
type BoundsFunc func() (Rect, error)

// Fixed returns a BoundsFunc that always reports r.
func Fixed(r Rect) BoundsFunc {
	return func() (Rect, error) { return r, nil }
}
