package player

import (
	"sync"

	"github.com/samber/lo"

	"github.com/sharetube/vectorplayer/internal/domain"
)

// emitter delivers events in push order on its own goroutine, so observers
// may call back into the player.
type emitter struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []domain.Event
	subs   map[uint64]func(domain.Event)
	nextID uint64
	closed bool
	done   chan struct{}
}

func newEmitter() *emitter {
	e := &emitter{
		subs: make(map[uint64]func(domain.Event)),
		done: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.run()

	return e
}

func (e *emitter) subscribe(fn func(domain.Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.subs[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		delete(e.subs, id)
	}
}

// push reports false once the emitter is closed.
func (e *emitter) push(events ...domain.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	e.queue = append(e.queue, events...)
	e.cond.Signal()
	return true
}

// close queues the final events. Nothing pushed afterwards is delivered.
func (e *emitter) close(final ...domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.queue = append(e.queue, final...)
	e.closed = true
	e.cond.Signal()
}

func (e *emitter) run() {
	defer close(e.done)

	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		ev := e.queue[0]
		e.queue = e.queue[1:]
		subs := lo.Values(e.subs)
		e.mu.Unlock()

		for _, fn := range subs {
			fn(ev)
		}
	}
}
