package surface

import (
	"errors"
	"image"
	"sync"

	"golang.org/x/image/draw"
)

var ErrDetached = errors.New("surface is detached")

// Canvas is an in-memory surface. Presented frames are scaled to the element
// size in device pixels.
type Canvas struct {
	mu        sync.Mutex
	geometry  image.Rectangle
	window    image.Rectangle
	dpr       float64
	backing   *image.RGBA
	presented int
	detached  bool
}

func NewCanvas(geometry, window image.Rectangle, dpr float64) *Canvas {
	if dpr <= 0 {
		dpr = 1
	}

	c := &Canvas{geometry: geometry, window: window, dpr: dpr}
	c.resize()
	return c
}

func (c *Canvas) Geometry() image.Rectangle {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.geometry
}

func (c *Canvas) Window() image.Rectangle {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.window
}

func (c *Canvas) DevicePixelRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.dpr
}

// SetGeometry moves or resizes the element, e.g. on scroll or layout.
func (c *Canvas) SetGeometry(r image.Rectangle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.geometry = r
	c.resize()
}

func (c *Canvas) SetWindow(r image.Rectangle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window = r
}

func (c *Canvas) Present(img image.Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.detached {
		return ErrDetached
	}

	dst := c.backing.Bounds()
	if img.Bounds().Size() == dst.Size() {
		draw.Draw(c.backing, dst, img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(c.backing, dst, img, img.Bounds(), draw.Src, nil)
	}
	c.presented++

	return nil
}

// Detach marks the canvas as handed to another context. Present fails afterwards.
func (c *Canvas) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.detached = true
}

func (c *Canvas) Presented() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.presented
}

// Snapshot copies the last presented pixels.
func (c *Canvas) Snapshot() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := image.NewRGBA(c.backing.Bounds())
	copy(out.Pix, c.backing.Pix)
	return out
}

func (c *Canvas) resize() {
	w := scaled(c.geometry.Dx(), c.dpr)
	h := scaled(c.geometry.Dy(), c.dpr)
	if c.backing != nil && c.backing.Rect.Dx() == w && c.backing.Rect.Dy() == h {
		return
	}

	c.backing = image.NewRGBA(image.Rect(0, 0, w, h))
}

// RGBA wraps a raw RGBA buffer of the given size as an image.
func RGBA(pix []byte, width, height int) (*image.RGBA, error) {
	if width < 0 || height < 0 || len(pix) != width*height*4 {
		return nil, errors.New("pixel buffer does not match dimensions")
	}

	return &image.RGBA{Pix: pix, Stride: width * 4, Rect: image.Rect(0, 0, width, height)}, nil
}
