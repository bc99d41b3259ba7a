//go:build darwin

package display

/*
#cgo LDFLAGS: -framework CoreGraphics
#include <CoreGraphics/CoreGraphics.h>

static int warpCursor(double x, double y) {
    return CGWarpMouseCursorPosition(CGPointMake(x, y)) == kCGErrorSuccess ? 0 : -1;
}
*/
import "C"

import "github.com/pkg/errors"

// warp uses CGWarpMouseCursorPosition, which moves the pointer without
// posting a mouse-moved event back into the event tap.
func warp(p Point) error {
	if C.warpCursor(C.double(p.X), C.double(p.Y)) != 0 {
		return errors.New("CGWarpMouseCursorPosition failed")
	}
	return nil
}
