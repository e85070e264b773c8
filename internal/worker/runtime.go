// Package worker is the background context of a delegated player. A Runtime
// owns its own clock, timer and engine instance and talks to the player only
// through a transport endpoint.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sharetube/vectorplayer/internal/domain"
	"github.com/sharetube/vectorplayer/internal/engine"
	"github.com/sharetube/vectorplayer/internal/playback"
	"github.com/sharetube/vectorplayer/internal/protocol"
	"github.com/sharetube/vectorplayer/internal/source"
	"github.com/sharetube/vectorplayer/internal/surface"
	"github.com/sharetube/vectorplayer/internal/transport"
)

var (
	ErrAlreadyInitialized = errors.New("runtime is already initialized")
	ErrNotInitialized     = errors.New("runtime is not initialized")
	ErrNotLoaded          = errors.New("no animation loaded")
)

type iResolver interface {
	Resolve(ctx context.Context, src source.Source, fileType source.FileType) ([]byte, error)
}

type Config struct {
	// Engines is owned by this runtime; the host builds one per session.
	Engines       *engine.Context
	Resolver      iResolver
	FrameInterval time.Duration
	Logger        *slog.Logger
	// OnReady and OnLoaded report progress to the host, e.g. the session registry.
	OnReady  func(kind domain.RendererKind)
	OnLoaded func(loadID uint64)
}

type Runtime struct {
	ep       transport.Worker
	engines  *engine.Context
	resolver iResolver
	interval time.Duration
	logger   *slog.Logger
	onReady  func(domain.RendererKind)
	onLoaded func(uint64)

	// set by INIT, owned by the serve goroutine
	initialized bool
	loop        *playback.Loop
	loaded      bool

	mu            sync.Mutex
	ctx           context.Context
	eng           engine.Engine
	surf          surface.Surface
	canvas        domain.CanvasInfo
	width, height int
}

func New(ep transport.Worker, cfg *Config) *Runtime {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = source.NewResolver(nil)
	}

	return &Runtime{
		ep:       ep,
		engines:  cfg.Engines,
		resolver: resolver,
		interval: cfg.FrameInterval,
		logger:   logger,
		onReady:  cfg.OnReady,
		onLoaded: cfg.OnLoaded,
		ctx:      context.Background(),
	}
}

// Serve processes commands strictly in receive order until the endpoint
// closes or ctx is done. A malformed message or a duplicate INIT ends the
// session with the returned *protocol.ProtocolError.
func (r *Runtime) Serve(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
	defer r.shutdown()

	for {
		cmd, err := r.ep.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}

			var perr *protocol.ProtocolError
			if errors.As(err, &perr) {
				r.sendError(protocol.CodeProtocol, perr, 0)
				return perr
			}

			return fmt.Errorf("failed to receive command: %w", err)
		}

		if err := r.handle(ctx, cmd); err != nil {
			return err
		}
	}
}

func (r *Runtime) handle(ctx context.Context, cmd protocol.Command) error {
	r.logger.DebugContext(ctx, "worker command", "type", cmd.Kind())

	if _, ok := cmd.(protocol.Init); !ok && !r.initialized {
		r.sendError(protocol.CodeProtocol, fmt.Errorf("%s before INIT: %w", cmd.Kind(), ErrNotInitialized), 0)
		return nil
	}

	switch c := cmd.(type) {
	case protocol.Init:
		return r.handleInit(ctx, c)
	case protocol.Load:
		r.handleLoad(ctx, c)
	case protocol.Play:
		if r.loaded {
			r.loop.Start()
		}
	case protocol.Pause:
		r.loop.Pause()
	case protocol.Stop:
		r.loop.Stop()
	case protocol.Seek:
		if !r.loaded {
			r.sendError(protocol.CodeProtocol, fmt.Errorf("SEEK: %w", ErrNotLoaded), 0)
			return nil
		}
		if frame, ok := r.loop.Seek(c.Frame); !ok {
			r.sendError(protocol.CodeRender, &engine.RenderError{Frame: frame}, 0)
		}
	case protocol.Resize:
		r.resize(c.CanvasInfo)
	case protocol.UpdateCanvasInfo:
		r.resize(c.CanvasInfo)
	case protocol.SetSpeed:
		if err := r.loop.SetSpeed(c.Speed); err != nil {
			r.sendError(protocol.CodeProtocol, err, 0)
		}
	case protocol.SetPlayback:
		params, err := c.Apply(r.loop.Params())
		if err == nil {
			err = r.loop.SetParams(params)
		}
		if err != nil {
			r.sendError(protocol.CodeProtocol, err, 0)
		}
	default:
		r.sendError(protocol.CodeProtocol, fmt.Errorf("unhandled command %s", cmd.Kind()), 0)
	}

	return nil
}

func (r *Runtime) handleInit(ctx context.Context, c protocol.Init) error {
	if r.initialized {
		perr := &protocol.ProtocolError{Kind: protocol.KindInit, Reason: "duplicate INIT", Err: ErrAlreadyInitialized}
		r.sendError(protocol.CodeProtocol, perr, 0)
		return perr
	}

	requested := domain.RendererSoftware
	interval := r.interval
	if c.RenderConfig != nil {
		requested = c.RenderConfig.Renderer
		if c.RenderConfig.FrameIntervalMs > 0 {
			interval = time.Duration(c.RenderConfig.FrameIntervalMs) * time.Millisecond
		}
	}

	// A transferred surface is kept even if bring-up fails so a retried INIT
	// can still paint to it.
	r.mu.Lock()
	if c.UseExclusiveSurface && c.Surface != nil {
		r.surf = c.Surface
	}
	if c.CanvasInfo != nil {
		r.canvas = *c.CanvasInfo
	}
	exclusive := r.surf != nil
	r.mu.Unlock()

	res, err := r.engines.Initialize(ctx, requested)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		r.sendError(protocol.CodeInit, err, 0)
		return nil
	}

	eng, err := r.engines.NewEngine()
	if err != nil {
		r.sendError(protocol.CodeInit, err, 0)
		return nil
	}

	r.mu.Lock()
	r.eng = eng
	r.mu.Unlock()

	r.loop = playback.NewLoop(&playback.Config{
		Scheduler: playback.NewTimerScheduler(interval),
		Renderer:  r,
		Hooks: playback.Hooks{
			OnFrame: func(frame float64) {
				r.send(protocol.Frame{FrameNumber: frame, UsesExclusiveSurface: exclusive})
			},
			OnLoop:     func() { r.send(protocol.Loop{}) },
			OnComplete: func() { r.send(protocol.Complete{}) },
			OnReject: func(frame float64) {
				r.sendError(protocol.CodeRender, &engine.RenderError{Frame: frame}, 0)
			},
		},
	})
	r.initialized = true

	r.logger.InfoContext(ctx, "worker runtime ready",
		"renderer", res.Active.String(),
		"fallbacks", len(res.Fallbacks),
		"exclusive_surface", exclusive,
	)
	if r.onReady != nil {
		r.onReady(res.Active)
	}

	r.send(protocol.Ready{
		Renderer:             res.Active,
		Fallbacks:            res.Fallbacks,
		UsesExclusiveSurface: exclusive,
	})
	return nil
}

func (r *Runtime) handleLoad(ctx context.Context, c protocol.Load) {
	data, err := r.resolver.Resolve(ctx, c.Src, c.FileType)
	if err != nil {
		r.sendError(protocol.CodeLoad, &engine.LoadError{Err: err}, c.LoadID)
		return
	}

	r.loop.Pause()

	r.mu.Lock()
	eng := r.eng
	w, h := r.canvas.Width, r.canvas.Height
	r.mu.Unlock()

	if err := engine.LoadEngine(eng, data, w, h); err != nil {
		r.loaded = false
		r.sendError(protocol.CodeLoad, err, c.LoadID)
		return
	}

	if w <= 0 || h <= 0 {
		w, h = eng.Size()
	}
	r.mu.Lock()
	r.width, r.height = w, h
	vp := r.canvas.FullViewport()
	r.mu.Unlock()
	if !vp.Empty() {
		eng.SetViewport(vp)
	}

	r.loop.Load(eng.TotalFrames(), eng.Duration())
	r.loaded = true
	if r.onLoaded != nil {
		r.onLoaded(c.LoadID)
	}

	iw, ih := eng.Size()
	r.send(protocol.Loaded{
		LoadID:     c.LoadID,
		TotalFrame: eng.TotalFrames(),
		Duration:   eng.Duration(),
		Size:       [2]int{iw, ih},
	})
	r.loop.Redraw()
}

func (r *Runtime) resize(info domain.CanvasInfo) {
	r.mu.Lock()
	r.canvas = info
	eng := r.eng
	if info.Width > 0 && info.Height > 0 {
		r.width, r.height = info.Width, info.Height
	}
	w, h := r.width, r.height
	r.mu.Unlock()

	if eng == nil {
		return
	}
	if err := eng.Resize(w, h); err != nil {
		r.sendError(protocol.CodeRender, fmt.Errorf("failed to resize engine: %w", err), 0)
		return
	}
	if vp := info.FullViewport(); !vp.Empty() {
		eng.SetViewport(vp)
	}
	if r.loaded {
		r.loop.Redraw()
	}
}

// RenderFrame runs on the timer goroutine for ticks and on the serve
// goroutine for seeks and redraws. Ticks are announced by the frame hook
// before rendering; a FRAME sent from here only carries pixels.
func (r *Runtime) RenderFrame(frame float64) bool {
	r.mu.Lock()
	eng, surf := r.eng, r.surf
	w, h := r.width, r.height
	r.mu.Unlock()

	if eng == nil || !eng.SetFrame(frame) || !eng.Render() {
		return false
	}

	if surf != nil {
		img, err := surface.RGBA(eng.Buffer(), w, h)
		if err != nil {
			r.logger.Warn("engine buffer does not match surface", "error", err)
			return false
		}
		if err := surf.Present(img); err != nil {
			r.logger.Warn("failed to present frame", "error", err)
			return false
		}
		return true
	}

	r.send(protocol.Frame{FrameNumber: frame, ImageData: eng.Buffer(), Width: w, Height: h})
	return true
}

func (r *Runtime) send(resp protocol.Response) {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()

	if err := r.ep.Send(ctx, resp); err != nil && !errors.Is(err, transport.ErrClosed) && ctx.Err() == nil {
		r.logger.Warn("failed to send response", "type", resp.Kind(), "error", err)
	}
}

func (r *Runtime) sendError(code protocol.ErrorCode, err error, loadID uint64) {
	r.logger.Warn("worker error", "code", code, "error", err)

	resp := protocol.Error{Code: code, Message: err.Error(), LoadID: loadID}
	if cause := errors.Unwrap(err); cause != nil {
		resp.Cause = cause.Error()
	}
	r.send(resp)
}

func (r *Runtime) shutdown() {
	if r.loop != nil {
		r.loop.Close()
	}

	r.mu.Lock()
	eng := r.eng
	r.eng = nil
	r.surf = nil
	r.mu.Unlock()

	if eng != nil {
		eng.Close()
	}
}
