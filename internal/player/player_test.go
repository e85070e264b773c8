package player

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharetube/vectorplayer/internal/domain"
	"github.com/sharetube/vectorplayer/internal/driver"
	"github.com/sharetube/vectorplayer/internal/engine"
	"github.com/sharetube/vectorplayer/internal/engine/enginetest"
	"github.com/sharetube/vectorplayer/internal/playback"
	"github.com/sharetube/vectorplayer/internal/source"
	"github.com/sharetube/vectorplayer/internal/surface"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) record(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := make([]domain.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (r *recorder) count(kind domain.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) find(kind domain.EventKind) (domain.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ev := range r.events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return domain.Event{}, false
}

func (r *recorder) waitFor(t *testing.T, kind domain.EventKind, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.count(kind) >= n }, 2*time.Second, time.Millisecond,
		"waiting for %d %s event(s), got %v", n, kind, r.kinds())
}

type fixture struct {
	player  *Player
	frames  *playback.FrameCallbacks
	backend *enginetest.Backend
	eng     *enginetest.Engine
	events  *recorder
}

type option func(*Config, *driver.InProcessConfig)

func withAutoplay() option {
	return func(c *Config, _ *driver.InProcessConfig) { c.Autoplay = true }
}

func withParams(p domain.PlaybackParameters) option {
	return func(c *Config, _ *driver.InProcessConfig) { c.Params = mo.Some(p) }
}

func newFixture(t *testing.T, backends []engine.Backend, opts ...option) *fixture {
	t.Helper()

	sw := enginetest.NewBackend(domain.RendererSoftware)
	eng := enginetest.NewEngine(60, 1)
	sw.Factory = func() *enginetest.Engine { return eng }

	fc := playback.NewFrameCallbacks()
	dcfg := &driver.InProcessConfig{
		Engines: engine.NewContext(nil, append(backends, sw)...),
		Surface: surface.NewCanvas(image.Rect(0, 0, 16, 8), image.Rect(0, 0, 100, 100), 1),
		Frames:  fc,
	}
	cfg := &Config{Renderer: domain.RendererSoftware}
	for _, opt := range opts {
		opt(cfg, dcfg)
	}
	cfg.Driver = driver.NewInProcess(dcfg)

	p, err := New(cfg)
	require.NoError(t, err)
	rec := &recorder{}
	p.Subscribe(rec.record)
	t.Cleanup(p.Destroy)

	return &fixture{player: p, frames: fc, backend: sw, eng: eng, events: rec}
}

func (f *fixture) load(t *testing.T) {
	t.Helper()
	require.NoError(t, f.player.Load(context.Background(), source.FromString(`{"fr":60}`), source.FileTypeJSON))
}

func (f *fixture) tick(d time.Duration) {
	f.frames.Flush(time.Now().Add(d))
}

func TestLoadWithoutAutoplayStops(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, domain.StateLoading, f.player.State())

	f.load(t)
	assert.Equal(t, domain.StateStopped, f.player.State())
	assert.Equal(t, 60.0, f.player.TotalFrames())
	assert.Equal(t, 1.0, f.player.Duration())

	f.events.waitFor(t, domain.EventLoad, 1)
	assert.Equal(t, []domain.EventKind{domain.EventReady, domain.EventLoad}, f.events.kinds())
}

func TestAutoplayPlaysAfterLoad(t *testing.T) {
	f := newFixture(t, nil, withAutoplay())

	f.load(t)
	assert.Equal(t, domain.StatePlaying, f.player.State())
	f.events.waitFor(t, domain.EventPlay, 1)
	assert.Equal(t, []domain.EventKind{domain.EventReady, domain.EventLoad, domain.EventPlay}, f.events.kinds())
}

func TestPlayGuards(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.player.Play())
	assert.Equal(t, domain.StateLoading, f.player.State(), "nothing loaded")

	f.load(t)
	require.NoError(t, f.player.Play())
	require.NoError(t, f.player.Play())
	require.NoError(t, f.player.Pause())

	f.events.waitFor(t, domain.EventPause, 1)
	assert.Equal(t, 1, f.events.count(domain.EventPlay))
}

func TestSeekForcesPausedAndPlayResumesFromTarget(t *testing.T) {
	f := newFixture(t, nil, withAutoplay())
	f.load(t)

	require.NoError(t, f.player.Seek(30))
	assert.Equal(t, domain.StatePaused, f.player.State())
	assert.Equal(t, 30.0, f.player.CurrentFrame())
	assert.Equal(t, 0, f.frames.Pending())

	require.NoError(t, f.player.Play())
	f.tick(250 * time.Millisecond)
	assert.InDelta(t, 45, f.player.CurrentFrame(), 1)

	require.NoError(t, f.player.Stop())
	require.NoError(t, f.player.Seek(500))
	assert.Equal(t, domain.StatePaused, f.player.State(), "seek from stopped")
	assert.Equal(t, 60.0, f.player.CurrentFrame())

	f.events.waitFor(t, domain.EventStop, 1)
	seekFrame, ok := f.events.find(domain.EventFrame)
	require.True(t, ok)
	assert.Equal(t, 30.0, seekFrame.Frame)
}

func TestSeekBeforeLoad(t *testing.T) {
	f := newFixture(t, nil)

	assert.ErrorIs(t, f.player.Seek(10), ErrNotLoaded)
}

func TestFreezeOnlyWhilePlaying(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)

	froze, err := f.player.Freeze()
	require.NoError(t, err)
	assert.False(t, froze, "stopped")

	require.NoError(t, f.player.Play())
	froze, err = f.player.Freeze()
	require.NoError(t, err)
	assert.True(t, froze)
	assert.Equal(t, domain.StateFrozen, f.player.State())
	assert.Equal(t, 0, f.frames.Pending(), "frozen player does not tick")

	froze, _ = f.player.Freeze()
	assert.False(t, froze)

	require.NoError(t, f.player.Play())
	assert.Equal(t, domain.StatePlaying, f.player.State())
	require.NoError(t, f.player.Pause())
	froze, _ = f.player.Freeze()
	assert.False(t, froze, "paused")

	f.events.waitFor(t, domain.EventPause, 1)
	assert.Equal(t, 1, f.events.count(domain.EventFreeze))
}

func TestNaturalCompletionStops(t *testing.T) {
	f := newFixture(t, nil, withAutoplay())
	f.load(t)

	f.tick(500 * time.Millisecond)
	f.tick(2 * time.Second)

	assert.Equal(t, domain.StateStopped, f.player.State())
	f.events.waitFor(t, domain.EventComplete, 1)
	assert.Equal(t, 2, f.events.count(domain.EventFrame))
	assert.Zero(t, f.events.count(domain.EventStop))

	require.NoError(t, f.player.Play())
	assert.Equal(t, domain.StatePlaying, f.player.State())
}

func TestLoopNeverCompletes(t *testing.T) {
	params := domain.DefaultPlaybackParameters()
	params.Loop = true
	f := newFixture(t, nil, withAutoplay(), withParams(params))
	f.load(t)

	f.tick(1500 * time.Millisecond)
	assert.Equal(t, domain.StatePlaying, f.player.State())
	f.events.waitFor(t, domain.EventLoop, 1)
	assert.Zero(t, f.events.count(domain.EventComplete))
	assert.Equal(t, 1, f.frames.Pending())
}

func TestSettersKeepBackwardBounceLeg(t *testing.T) {
	params := domain.DefaultPlaybackParameters()
	params.Loop = true
	params.Mode = domain.ModeBounce
	f := newFixture(t, nil, withAutoplay(), withParams(params))
	f.load(t)

	f.tick(1100 * time.Millisecond)
	f.events.waitFor(t, domain.EventLoop, 1)
	f.tick(1350 * time.Millisecond)
	leg := f.player.CurrentFrame()
	require.InDelta(t, 45, leg, 1)

	require.NoError(t, f.player.SetSpeed(1))
	f.tick(100 * time.Millisecond)
	afterSpeed := f.player.CurrentFrame()
	assert.Less(t, afterSpeed, leg, "speed change keeps the backward leg")

	require.NoError(t, f.player.SetLoop(true))
	f.tick(200 * time.Millisecond)
	assert.Less(t, f.player.CurrentFrame(), afterSpeed, "playback update keeps the backward leg")
	assert.Equal(t, domain.Forward, f.player.Params().Direction)

	require.NoError(t, f.player.Stop())
	assert.Equal(t, 0.0, f.player.CurrentFrame())
}

func TestPlaybackSettersValidate(t *testing.T) {
	f := newFixture(t, nil)

	assert.ErrorIs(t, f.player.SetSpeed(0), domain.ErrInvalidSpeed)
	assert.ErrorIs(t, f.player.SetRepeatCount(mo.Some(0)), domain.ErrInvalidRepeatCount)
	assert.ErrorIs(t, f.player.SetIntermission(-1), domain.ErrInvalidIntermission)

	require.NoError(t, f.player.SetDirection(domain.Backward))
	require.NoError(t, f.player.SetMode(domain.ModeBounce))
	require.NoError(t, f.player.SetRepeatCount(mo.Some(2)))
	f.load(t)

	params := f.player.Params()
	assert.Equal(t, domain.Backward, params.Direction)
	assert.Equal(t, domain.ModeBounce, params.Mode)
	assert.Equal(t, 60.0, f.player.CurrentFrame(), "backward starts at the end")
}

func TestLoadFailureMovesToErrorAndAllowsReload(t *testing.T) {
	f := newFixture(t, nil)
	f.eng.LoadErr = assert.AnError

	err := f.player.Load(context.Background(), source.FromString(`{}`), source.FileTypeJSON)
	var lerr *engine.LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, domain.StateError, f.player.State())
	f.events.waitFor(t, domain.EventError, 1)

	require.NoError(t, f.player.Play())
	assert.Equal(t, domain.StateError, f.player.State())

	f.eng.LoadErr = nil
	f.load(t)
	assert.Equal(t, domain.StateStopped, f.player.State())
}

func TestInitFailureIsRetried(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.Fail = true

	err := f.player.Load(context.Background(), source.FromString(`{}`), source.FileTypeJSON)
	var ierr *engine.InitError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, domain.StateError, f.player.State())

	f.backend.Fail = false
	f.load(t)
	assert.Equal(t, domain.StateStopped, f.player.State())
	f.events.waitFor(t, domain.EventReady, 1)
}

func TestRendererFallbackEvent(t *testing.T) {
	gpu := enginetest.NewBackend(domain.RendererWebGPU)
	gpu.Fail = true
	gl := enginetest.NewBackend(domain.RendererWebGL)
	gl.Fail = true

	f := newFixture(t, []engine.Backend{gpu, gl})
	f.player.requested = domain.RendererWebGPU
	f.load(t)

	active, ok := f.player.Renderer()
	require.True(t, ok)
	assert.Equal(t, domain.RendererSoftware, active)

	f.events.waitFor(t, domain.EventLoad, 1)
	require.Equal(t, 2, f.events.count(domain.EventRendererFallback))
	first, _ := f.events.find(domain.EventRendererFallback)
	require.NotNil(t, first.Fallback)
	assert.Equal(t, domain.RendererWebGPU, first.Fallback.Requested)
	assert.Equal(t, domain.RendererWebGL, first.Fallback.Fallback)
}

func TestDestroyDuringInitSuppressesEvents(t *testing.T) {
	gpu := enginetest.NewBackend(domain.RendererWebGPU)
	gpu.Gate = make(chan struct{})
	f := newFixture(t, []engine.Backend{gpu})
	f.player.requested = domain.RendererWebGPU

	errc := make(chan error, 1)
	go func() {
		errc <- f.player.Load(context.Background(), source.FromString(`{}`), source.FileTypeJSON)
	}()
	require.Eventually(t, func() bool { return gpu.Calls.Load() == 1 }, time.Second, time.Millisecond)

	f.player.Destroy()
	assert.Error(t, <-errc)
	close(gpu.Gate)

	f.events.waitFor(t, domain.EventDestroyed, 1)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []domain.EventKind{domain.EventDestroyed}, f.events.kinds())
	assert.Equal(t, domain.StateDestroyed, f.player.State())
}

func TestDestroyDuringIntermissionSuppressesEvents(t *testing.T) {
	params := domain.DefaultPlaybackParameters()
	params.Loop = true
	params.IntermissionSeconds = 0.05
	f := newFixture(t, nil, withAutoplay(), withParams(params))
	f.load(t)

	f.tick(1100 * time.Millisecond)
	f.events.waitFor(t, domain.EventLoop, 1)
	f.player.Destroy()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, f.frames.Pending())
	f.tick(time.Second)

	kinds := f.events.kinds()
	assert.Equal(t, domain.EventDestroyed, kinds[len(kinds)-1])
	assert.Equal(t, 1, f.events.count(domain.EventDestroyed))
	assert.ErrorIs(t, f.player.Play(), ErrDestroyed)
	assert.ErrorIs(t, f.player.Load(context.Background(), source.FromString(`{}`), ""), ErrDestroyed)
	assert.True(t, f.eng.Closed())
}

type gatedResolver struct {
	gates   map[string]chan struct{}
	started chan string
}

func (r *gatedResolver) Resolve(ctx context.Context, src source.Source, _ source.FileType) ([]byte, error) {
	text := *src.Text
	if gate, ok := r.gates[text]; ok {
		r.started <- text
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return []byte(text), nil
}

func TestNewerLoadSupersedesOlder(t *testing.T) {
	gate := make(chan struct{})
	resolver := &gatedResolver{gates: map[string]chan struct{}{"slow": gate}, started: make(chan string, 1)}
	f := newFixture(t, nil, func(_ *Config, d *driver.InProcessConfig) { d.Resolver = resolver })

	errc := make(chan error, 1)
	go func() {
		errc <- f.player.Load(context.Background(), source.FromString("slow"), source.FileTypeJSON)
	}()
	assert.Equal(t, "slow", <-resolver.started)

	require.NoError(t, f.player.Load(context.Background(), source.FromString("fast"), source.FileTypeJSON))
	assert.Equal(t, domain.StateStopped, f.player.State())

	close(gate)
	assert.ErrorIs(t, <-errc, driver.ErrSuperseded)
	assert.Equal(t, domain.StateStopped, f.player.State())

	require.NoError(t, f.player.Play())
	f.events.waitFor(t, domain.EventPlay, 1)
	assert.Equal(t, 1, f.events.count(domain.EventLoad))
}
