package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sharetube/vectorplayer/internal/domain"
	"github.com/sharetube/vectorplayer/internal/engine"
	"github.com/sharetube/vectorplayer/internal/playback"
	"github.com/sharetube/vectorplayer/internal/source"
	"github.com/sharetube/vectorplayer/internal/surface"
)

type iResolver interface {
	Resolve(ctx context.Context, src source.Source, fileType source.FileType) ([]byte, error)
}

type InProcessConfig struct {
	// Engines is the engine context shared by every in-process player.
	Engines  *engine.Context
	Resolver iResolver
	Surface  surface.Surface
	// Frames is the host's per-refresh callback queue.
	Frames *playback.FrameCallbacks
	Logger *slog.Logger
}

// InProcess ticks on the host's display refresh and paints the visible
// surface directly.
type InProcess struct {
	engines  *engine.Context
	resolver iResolver
	surf     surface.Surface
	logger   *slog.Logger
	loop     *playback.Loop

	// loadMu serializes the engine side of loads.
	loadMu sync.Mutex

	mu            sync.Mutex
	hooks         hooks
	eng           engine.Engine
	width, height int
	loadSeq       uint64
	closed        bool
}

func NewInProcess(cfg *InProcessConfig) *InProcess {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = source.NewResolver(nil)
	}
	frames := cfg.Frames
	if frames == nil {
		frames = playback.NewFrameCallbacks()
	}

	d := &InProcess{
		engines:  cfg.Engines,
		resolver: resolver,
		surf:     cfg.Surface,
		logger:   logger,
	}
	d.loop = playback.NewLoop(&playback.Config{
		Scheduler: frames,
		Renderer:  d,
		Hooks: playback.Hooks{
			OnFrame:    func(f float64) { d.currentHooks().frame(f) },
			OnLoop:     func() { d.currentHooks().loop() },
			OnComplete: func() { d.currentHooks().complete() },
			OnReject: func(f float64) {
				d.currentHooks().renderError(&engine.RenderError{Frame: f})
			},
		},
	})

	return d
}

func (d *InProcess) Bind(h Hooks) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.hooks = hooks{h}
}

func (d *InProcess) currentHooks() hooks {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.hooks
}

func (d *InProcess) Init(ctx context.Context, requested domain.RendererKind) (engine.InitResult, error) {
	res, err := d.engines.Initialize(ctx, requested)
	if err != nil {
		return res, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return res, ErrClosed
	}
	if d.eng == nil {
		eng, err := d.engines.NewEngine()
		if err != nil {
			return res, &engine.InitError{Kind: res.Active, Err: err}
		}
		d.eng = eng
	}

	return res, nil
}

func (d *InProcess) Load(ctx context.Context, src source.Source, fileType source.FileType) (LoadResult, error) {
	d.mu.Lock()
	eng := d.eng
	d.loadSeq++
	seq := d.loadSeq
	d.mu.Unlock()
	if eng == nil {
		return LoadResult{}, engine.ErrNotInitialized
	}

	data, err := d.resolver.Resolve(ctx, src, fileType)
	if err != nil {
		return LoadResult{}, &engine.LoadError{Err: err}
	}

	d.loadMu.Lock()
	defer d.loadMu.Unlock()

	d.mu.Lock()
	superseded := seq != d.loadSeq
	closed := d.closed
	d.mu.Unlock()
	switch {
	case closed:
		return LoadResult{}, ErrClosed
	case superseded:
		return LoadResult{}, ErrSuperseded
	}

	d.loop.Pause()

	w, h := d.surfaceSize()
	if err := engine.LoadEngine(eng, data, w, h); err != nil {
		return LoadResult{}, err
	}

	d.mu.Lock()
	d.width, d.height = w, h
	d.mu.Unlock()

	d.loop.Load(eng.TotalFrames(), eng.Duration())
	d.loop.Redraw()

	iw, ih := eng.Size()
	return LoadResult{
		TotalFrames: eng.TotalFrames(),
		Duration:    eng.Duration(),
		Width:       iw,
		Height:      ih,
	}, nil
}

func (d *InProcess) Play() error {
	if d.isClosed() {
		return ErrClosed
	}

	d.loop.Start()
	return nil
}

func (d *InProcess) Pause() error {
	d.loop.Pause()
	return nil
}

func (d *InProcess) Stop() (float64, error) {
	return d.loop.Stop(), nil
}

func (d *InProcess) Seek(frame float64) (float64, error) {
	f, ok := d.loop.Seek(frame)
	if !ok {
		return f, &engine.RenderError{Frame: f}
	}

	return f, nil
}

func (d *InProcess) Resize() error {
	if d.isClosed() {
		return ErrClosed
	}

	d.loop.Redraw()
	return nil
}

func (d *InProcess) SetSpeed(speed float64) error {
	return d.loop.SetSpeed(speed)
}

func (d *InProcess) SetPlayback(params domain.PlaybackParameters) error {
	return d.loop.SetParams(params)
}

func (d *InProcess) Close() {
	d.loop.Close()

	d.mu.Lock()
	eng := d.eng
	d.eng = nil
	d.closed = true
	d.mu.Unlock()

	if eng != nil {
		eng.Close()
	}
}

// RenderFrame is one in-process tick after the clock: resize, viewport,
// render, then present.
func (d *InProcess) RenderFrame(frame float64) bool {
	d.mu.Lock()
	eng := d.eng
	lastW, lastH := d.width, d.height
	d.mu.Unlock()
	if eng == nil {
		return false
	}

	w, h := d.surfaceSize()
	if w != lastW || h != lastH {
		if err := eng.Resize(w, h); err != nil {
			d.logger.Warn("failed to resize engine", "error", err)
			return false
		}
		d.mu.Lock()
		d.width, d.height = w, h
		d.mu.Unlock()
	}

	if d.surf != nil {
		vp := surface.ComputeViewport(d.surf.Geometry(), d.surf.Window(), d.surf.DevicePixelRatio())
		if err := eng.SetViewport(vp); err != nil {
			d.logger.Warn("failed to set viewport", "error", err)
		}
	}

	if !eng.SetFrame(frame) || !eng.Render() {
		return false
	}

	if d.surf == nil {
		return true
	}

	img, err := surface.RGBA(eng.Buffer(), w, h)
	if err != nil {
		d.logger.Warn("engine buffer does not match surface", "error", err)
		return false
	}
	if err := d.surf.Present(img); err != nil {
		d.logger.Warn("failed to present frame", "error", fmt.Errorf("frame %.2f: %w", frame, err))
		return false
	}

	return true
}

func (d *InProcess) surfaceSize() (int, int) {
	if d.surf == nil {
		return 0, 0
	}

	info := surface.CanvasInfo(d.surf)
	return info.Width, info.Height
}

func (d *InProcess) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.closed
}
