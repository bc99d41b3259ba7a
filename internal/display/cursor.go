package display

import (
	"github.com/go-vgo/robotgo"
)

// Cursor reads and moves the real pointer.
type Cursor interface {
	Position() (Point, error)
	Warp(p Point) error
}

// SystemCursor is the OS pointer.
type SystemCursor struct{}

// Position returns the current pointer location.
func (SystemCursor) Position() (Point, error) {
	x, y := robotgo.GetMousePos()
	return Point{float64(x), float64(y)}, nil
}

// Warp moves the pointer to p without generating a click.
func (SystemCursor) Warp(p Point) error {
	return warp(p)
}
