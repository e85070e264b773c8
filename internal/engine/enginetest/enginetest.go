// Package enginetest provides scriptable backends and engines for tests.
package enginetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sharetube/vectorplayer/internal/domain"
	"github.com/sharetube/vectorplayer/internal/engine"
)

var ErrBringup = errors.New("bring-up failed")

type Backend struct {
	kind domain.RendererKind

	// Fail makes Bringup return ErrBringup.
	Fail bool
	// Delay holds Bringup until it elapses or ctx is done.
	Delay time.Duration
	// Gate, when set, holds Bringup until it is closed.
	Gate chan struct{}

	Calls atomic.Int32

	mu      sync.Mutex
	engines []*Engine
	// Factory overrides the engine handed out by NewEngine.
	Factory func() *Engine
}

func NewBackend(kind domain.RendererKind) *Backend {
	return &Backend{kind: kind}
}

func (b *Backend) Kind() domain.RendererKind {
	return b.kind
}

func (b *Backend) Bringup(ctx context.Context) error {
	b.Calls.Add(1)

	if b.Gate != nil {
		select {
		case <-b.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if b.Delay > 0 {
		t := time.NewTimer(b.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if b.Fail {
		return ErrBringup
	}

	return nil
}

func (b *Backend) NewEngine() (engine.Engine, error) {
	var e *Engine
	if b.Factory != nil {
		e = b.Factory()
	} else {
		e = NewEngine(60, 1)
	}

	b.mu.Lock()
	b.engines = append(b.engines, e)
	b.mu.Unlock()

	return e, nil
}

func (b *Backend) Engines() []*Engine {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]*Engine(nil), b.engines...)
}

// Engine is an in-memory engine with a fixed frame count and duration.
type Engine struct {
	mu sync.Mutex

	totalFrames float64
	duration    float64
	loaded      bool

	LoadErr      error
	RejectRender bool

	width, height int
	viewport      domain.Viewport
	frame         float64
	frames        []float64
	renders       int
	closed        bool
}

func NewEngine(totalFrames, duration float64) *Engine {
	return &Engine{totalFrames: totalFrames, duration: duration}
}

func (e *Engine) Load(data []byte, width, height int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.LoadErr != nil {
		return e.LoadErr
	}
	if len(data) == 0 {
		return errors.New("empty payload")
	}

	e.loaded = true
	e.width, e.height = width, height
	return nil
}

func (e *Engine) Resize(width, height int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.width, e.height = width, height
	return nil
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

	if e.RejectRender || !e.loaded {
		return false
	}

	e.frame = frame
	e.frames = append(e.frames, frame)
	return true
}

func (e *Engine) Render() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.RejectRender || !e.loaded {
		return false
	}

	e.renders++
	return true
}

func (e *Engine) Buffer() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf := make([]byte, e.width*e.height*4)
	for i := 3; i < len(buf); i += 4 {
		buf[i] = 0xff
	}

	return buf
}

func (e *Engine) Duration() float64 {
	if !e.isLoaded() {
		return 0
	}

	return e.duration
}

func (e *Engine) TotalFrames() float64 {
	if !e.isLoaded() {
		return 0
	}

	return e.totalFrames
}

func (e *Engine) Size() (int, int) {
	return 100, 100
}

func (e *Engine) Err() error {
	return nil
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
}

func (e *Engine) SetRejectRender(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.RejectRender = v
}

func (e *Engine) Frames() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]float64(nil), e.frames...)
}

func (e *Engine) Viewport() domain.Viewport {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.viewport
}

func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.closed
}

func (e *Engine) isLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.loaded
}
