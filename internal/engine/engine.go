// Package engine is the boundary to the external rendering engine and owns
// renderer bring-up with tier fallback.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/vectorplayer/internal/domain"
)

var (
	ErrNotInitialized       = errors.New("engine context is not initialized")
	ErrBackendNotRegistered = errors.New("backend is not registered")
	ErrBackendUnavailable   = errors.New("backend is not available")
)

// Engine is one player's instance of the external renderer. It is opaque:
// frames go in, pixels (or a painted surface) come out.
type Engine interface {
	Load(data []byte, width, height int) error
	Resize(width, height int) error
	SetViewport(vp domain.Viewport) error
	// SetFrame reports whether the engine accepted the frame.
	SetFrame(frame float64) bool
	Render() bool
	// Buffer returns the RGBA pixels of the last render, sized by the last Resize.
	Buffer() []byte
	Duration() float64
	TotalFrames() float64
	// Size is the intrinsic animation size.
	Size() (int, int)
	Err() error
	Close()
}

// Backend brings one renderer tier up and creates engines on it.
type Backend interface {
	Kind() domain.RendererKind
	Bringup(ctx context.Context) error
	NewEngine() (Engine, error)
}

type InitError struct {
	Kind domain.RendererKind
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("failed to initialize %s renderer: %v", e.Kind, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load animation: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type RenderError struct {
	Frame float64
	Err   error
}

func (e *RenderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine rejected frame %.2f", e.Frame)
	}

	return fmt.Sprintf("failed to render frame %.2f: %v", e.Frame, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// ProbedBackend fails bring-up when the advisory probe reports the capability missing.
type ProbedBackend struct {
	Backend
	Available func() bool
}

func (b ProbedBackend) Bringup(ctx context.Context) error {
	if b.Available != nil && !b.Available() {
		return fmt.Errorf("%s: %w", b.Kind(), ErrBackendUnavailable)
	}

	return b.Backend.Bringup(ctx)
}

// LoadEngine loads data into eng, wrapping any failure as a LoadError.
func LoadEngine(eng Engine, data []byte, width, height int) error {
	if err := eng.Load(data, width, height); err != nil {
		return &LoadError{Err: err}
	}
	if eng.TotalFrames() < 1 || eng.Duration() <= 0 {
		err := eng.Err()
		if err == nil {
			err = errors.New("animation has no frames")
		}
		return &LoadError{Err: err}
	}

	return nil
}
