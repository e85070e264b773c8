// Package driver holds the two execution modes a player can run in. Both
// implement Driver, so the player state machine is written once.
package driver

import (
	"context"
	"errors"

	"github.com/sharetube/vectorplayer/internal/domain"
	"github.com/sharetube/vectorplayer/internal/engine"
	"github.com/sharetube/vectorplayer/internal/source"
)

var (
	ErrClosed     = errors.New("driver is closed")
	ErrSuperseded = errors.New("load superseded by a newer load")
	ErrWorkerGone = errors.New("background context is gone")
)

// Hooks carry asynchronous outcomes to the owner. A driver never invokes a
// hook from inside one of its own methods.
type Hooks struct {
	OnFrame       func(frame float64)
	OnLoop        func()
	OnComplete    func()
	OnRenderError func(err error)
	// OnFatal reports a failure outside any pending call, e.g. a lost worker.
	OnFatal func(err error)
}

type LoadResult struct {
	TotalFrames float64
	Duration    float64
	Width       int
	Height      int
}

type Driver interface {
	// Bind installs hooks. It must be called before Init.
	Bind(h Hooks)
	// Init brings the renderer up. Concurrent and repeated calls share one
	// attempt; a failed attempt may be retried.
	Init(ctx context.Context, requested domain.RendererKind) (engine.InitResult, error)
	Load(ctx context.Context, src source.Source, fileType source.FileType) (LoadResult, error)
	Play() error
	Pause() error
	// Stop rewinds and returns the start boundary frame.
	Stop() (float64, error)
	// Seek renders frame once and returns the clamped frame.
	Seek(frame float64) (float64, error)
	// Resize picks up the current surface geometry.
	Resize() error
	SetSpeed(speed float64) error
	SetPlayback(params domain.PlaybackParameters) error
	Close()
}

// hooks is a Hooks value that tolerates nil callbacks.
type hooks struct {
	Hooks
}

func (h hooks) frame(f float64) {
	if h.OnFrame != nil {
		h.OnFrame(f)
	}
}

func (h hooks) loop() {
	if h.OnLoop != nil {
		h.OnLoop()
	}
}

func (h hooks) complete() {
	if h.OnComplete != nil {
		h.OnComplete()
	}
}

func (h hooks) renderError(err error) {
	if h.OnRenderError != nil {
		h.OnRenderError(err)
	}
}

func (h hooks) fatal(err error) {
	if h.OnFatal != nil {
		h.OnFatal(err)
	}
}
