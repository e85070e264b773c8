// Package software is a headless CPU engine. It reads only the timing header
// of an animation-data payload and paints a frame-dependent fill, which is
// enough to drive the playback engine end to end without a GPU.
package software

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"

	"github.com/sharetube/vectorplayer/internal/domain"
	"github.com/sharetube/vectorplayer/internal/engine"
)

var ErrInvalidHeader = errors.New("invalid animation header")

type header struct {
	FrameRate float64 `json:"fr"`
	InPoint   float64 `json:"ip"`
	OutPoint  float64 `json:"op"`
	Width     int     `json:"w"`
	Height    int     `json:"h"`
}

type Backend struct {
	kind domain.RendererKind
}

// NewBackend returns a backend registered under kind. The worker host uses it
// behind probes for the GPU tiers as well.
func NewBackend(kind domain.RendererKind) *Backend {
	return &Backend{kind: kind}
}

func (b *Backend) Kind() domain.RendererKind {
	return b.kind
}

func (b *Backend) Bringup(ctx context.Context) error {
	return ctx.Err()
}

func (b *Backend) NewEngine() (engine.Engine, error) {
	return &Engine{}, nil
}

type Engine struct {
	mu       sync.Mutex
	hdr      header
	loaded   bool
	frame    float64
	viewport domain.Viewport
	canvas   *image.RGBA
	err      error
}

func (e *Engine) Load(data []byte, width, height int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var hdr header
	if err := json.Unmarshal(data, &hdr); err != nil {
		e.err = fmt.Errorf("%w: %v", ErrInvalidHeader, err)
		return e.err
	}
	if hdr.FrameRate <= 0 || hdr.OutPoint <= hdr.InPoint {
		e.err = fmt.Errorf("%w: fr=%v ip=%v op=%v", ErrInvalidHeader, hdr.FrameRate, hdr.InPoint, hdr.OutPoint)
		return e.err
	}

	if width <= 0 || height <= 0 {
		width, height = hdr.Width, hdr.Height
	}

	e.hdr = hdr
	e.loaded = true
	e.err = nil
	e.resize(width, height)
	return nil
}

func (e *Engine) Resize(width, height int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resize(width, height)
	return nil
}

func (e *Engine) resize(width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	if e.canvas != nil && e.canvas.Rect.Dx() == width && e.canvas.Rect.Dy() == height {
		return
	}

	e.canvas = image.NewRGBA(image.Rect(0, 0, width, height))
	e.viewport = domain.Viewport{W: width, H: height}
}

func (e *Engine) SetViewport(vp domain.Viewport) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.viewport = vp
	return nil
}

func (e *Engine) SetFrame(frame float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded || math.IsNaN(frame) {
		return false
	}

	e.frame = frame
	return true
}

func (e *Engine) Render() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded || e.canvas == nil {
		return false
	}

	total := e.hdr.OutPoint - e.hdr.InPoint
	shade := uint8(255 * e.frame / total)
	fill := image.NewUniform(color.RGBA{R: shade, G: 255 - shade, B: 128, A: 255})

	draw.Draw(e.canvas, e.canvas.Bounds(), image.Transparent, image.Point{}, draw.Src)
	vp := image.Rect(e.viewport.X, e.viewport.Y, e.viewport.X+e.viewport.W, e.viewport.Y+e.viewport.H)
	draw.Draw(e.canvas, vp.Intersect(e.canvas.Bounds()), fill, image.Point{}, draw.Src)

	return true
}

func (e *Engine) Buffer() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.canvas == nil {
		return nil
	}

	return append([]byte(nil), e.canvas.Pix...)
}

func (e *Engine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return 0
	}

	return (e.hdr.OutPoint - e.hdr.InPoint) / e.hdr.FrameRate
}

func (e *Engine) TotalFrames() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return 0
	}

	return e.hdr.OutPoint - e.hdr.InPoint
}

func (e *Engine) Size() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.hdr.Width, e.hdr.Height
}

func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.err
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.canvas = nil
	e.loaded = false
}
