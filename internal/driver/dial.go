package driver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sharetube/vectorplayer/internal/protocol"
	"github.com/sharetube/vectorplayer/internal/transport"
	"github.com/sharetube/vectorplayer/internal/worker"
)

// NewLocal runs a worker runtime on its own goroutine and connects a
// delegated driver to it over an in-memory pipe.
func NewLocal(wcfg *worker.Config, cfg *DelegatedConfig) *Delegated {
	primary, workerEnd := transport.Pipe(transport.DefaultPipeBuffer)
	rt := worker.New(workerEnd, wcfg)

	d := NewDelegated(primary, cfg)
	go func() {
		if err := rt.Serve(context.Background()); err != nil {
			d.logger.Warn("worker runtime stopped", "error", err)
		}
		workerEnd.Close()
	}()

	return d
}

// Dial connects a delegated driver to a remote worker host. The drawing
// surface cannot cross the connection, so frames always come back as pixels.
func Dial(ctx context.Context, url string, header http.Header, cfg *DelegatedConfig) (*Delegated, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial worker host: %w", err)
	}

	local := *cfg
	local.TransferSurface = false

	return NewDelegated(transport.NewPrimaryWS(conn, protocol.NewCodec()), &local), nil
}
