package cv

import (
	"fmt"
	"image"

	"github.com/canonical/yarf/internal/fault"
)

// Region is an axis-aligned rectangle in pixel coordinates of a frame.
// Valid regions satisfy Left < Right and Top < Bottom.
type Region struct {
	Left, Top, Right, Bottom int
}

// NewRegion builds a region from its corners.
func NewRegion(left, top, right, bottom int) Region {
	return Region{Left: left, Top: top, Right: right, Bottom: bottom}
}

// Width returns the region width in pixels.
func (r Region) Width() int { return r.Right - r.Left }

// Height returns the region height in pixels.
func (r Region) Height() int { return r.Bottom - r.Top }

// Center returns the center point, rounded down.
func (r Region) Center() (x, y int) {
	return r.Left + r.Width()/2, r.Top + r.Height()/2
}

// Rect converts to an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right, r.Bottom)
}

// Move translates the region by (dx, dy).
func (r Region) Move(dx, dy int) Region {
	return Region{Left: r.Left + dx, Top: r.Top + dy, Right: r.Right + dx, Bottom: r.Bottom + dy}
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.Left, r.Top, r.Right, r.Bottom)
}

// Validate checks well-formedness, and containment within bounds when
// bounds is non-nil.
func (r Region) Validate(bounds *image.Rectangle) error {
	if r.Left >= r.Right || r.Top >= r.Bottom {
		return fault.Configf("malformed region %s", r)
	}
	if bounds != nil && !r.Rect().In(*bounds) {
		return fault.Configf("region %s outside frame bounds %v", r, *bounds)
	}
	return nil
}

// regionFromRect converts an image.Rectangle back to a Region.
func regionFromRect(rect image.Rectangle) Region {
	return Region{Left: rect.Min.X, Top: rect.Min.Y, Right: rect.Max.X, Bottom: rect.Max.Y}
}
