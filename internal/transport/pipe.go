package transport

import (
	"context"
	"sync"

	"github.com/sharetube/vectorplayer/internal/protocol"
)

const DefaultPipeBuffer = 256

type pipe struct {
	done chan struct{}
	once sync.Once
}

func (p *pipe) close() {
	p.once.Do(func() { close(p.done) })
}

type pipeEnd[S, R any] struct {
	p   *pipe
	out chan S
	in  chan R
}

// Pipe returns a connected in-process pair. Values are passed as is, so an
// INIT may carry a surface. Closing either end closes both.
func Pipe(buffer int) (Primary, Worker) {
	if buffer <= 0 {
		buffer = DefaultPipeBuffer
	}

	p := &pipe{done: make(chan struct{})}
	commands := make(chan protocol.Command, buffer)
	responses := make(chan protocol.Response, buffer)

	primary := &pipeEnd[protocol.Command, protocol.Response]{p: p, out: commands, in: responses}
	worker := &pipeEnd[protocol.Response, protocol.Command]{p: p, out: responses, in: commands}

	return primary, worker
}

func (e *pipeEnd[S, R]) Send(ctx context.Context, msg S) error {
	select {
	case <-e.p.done:
		return ErrClosed
	default:
	}

	select {
	case e.out <- msg:
		return nil
	case <-e.p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *pipeEnd[S, R]) Receive(ctx context.Context) (R, error) {
	var zero R

	select {
	case <-e.p.done:
		return zero, ErrClosed
	default:
	}

	select {
	case msg := <-e.in:
		return msg, nil
	case <-e.p.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (e *pipeEnd[S, R]) Close() error {
	e.p.close()
	return nil
}
