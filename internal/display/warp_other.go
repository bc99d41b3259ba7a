//go:build !darwin

package display

import (
	"math"

	"github.com/go-vgo/robotgo"
)

func warp(p Point) error {
	robotgo.Move(int(math.Round(p.X)), int(math.Round(p.Y)))
	return nil
}
