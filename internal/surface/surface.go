// Package surface models the drawing surface a player paints to and the
// window it sits in.
package surface

import (
	"image"
	"math"

	"golang.org/x/exp/constraints"

	"github.com/sharetube/vectorplayer/internal/domain"
)

// Layout describes where an element sits on screen, in CSS pixels.
type Layout interface {
	// Geometry is the element's on-screen rectangle in window coordinates.
	Geometry() image.Rectangle
	Window() image.Rectangle
	DevicePixelRatio() float64
}

// Surface is a visible drawing target.
type Surface interface {
	Layout
	Present(img image.Image) error
}

// ComputeViewport clips the element to the window. Width and height shrink by
// the overflow past each of the four window edges; the origin moves by the
// top and left overflow. The result is in device pixels.
func ComputeViewport(geometry, window image.Rectangle, dpr float64) domain.Viewport {
	if dpr <= 0 {
		dpr = 1
	}

	left := nonNegative(window.Min.X - geometry.Min.X)
	top := nonNegative(window.Min.Y - geometry.Min.Y)
	right := nonNegative(geometry.Max.X - window.Max.X)
	bottom := nonNegative(geometry.Max.Y - window.Max.Y)

	return domain.Viewport{
		X: scaled(left, dpr),
		Y: scaled(top, dpr),
		W: scaled(nonNegative(geometry.Dx()-left-right), dpr),
		H: scaled(nonNegative(geometry.Dy()-top-bottom), dpr),
	}
}

// Intersecting reports whether any part of the element is inside the window.
func Intersecting(l Layout) bool {
	return l.Geometry().Overlaps(l.Window())
}

// CanvasInfo describes l in the form carried by RESIZE and INIT.
func CanvasInfo(l Layout) domain.CanvasInfo {
	dpr := l.DevicePixelRatio()
	if dpr <= 0 {
		dpr = 1
	}
	g := l.Geometry()
	vp := ComputeViewport(g, l.Window(), dpr)

	return domain.CanvasInfo{
		Width:            scaled(g.Dx(), dpr),
		Height:           scaled(g.Dy(), dpr),
		DevicePixelRatio: dpr,
		Viewport:         &vp,
	}
}

func nonNegative[T constraints.Signed | constraints.Float](v T) T {
	if v < 0 {
		return 0
	}

	return v
}

func scaled[T constraints.Integer](v T, dpr float64) int {
	return int(math.Round(float64(v) * dpr))
}
