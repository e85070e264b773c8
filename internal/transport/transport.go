// Package transport carries protocol messages between a player and its
// background context. Every endpoint is FIFO per direction.
package transport

import (
	"context"
	"errors"

	"github.com/sharetube/vectorplayer/internal/protocol"
)

var ErrClosed = errors.New("transport closed")

type Endpoint[S, R any] interface {
	Send(ctx context.Context, msg S) error
	Receive(ctx context.Context) (R, error)
	Close() error
}

// Primary is the player side: it sends commands and receives responses.
type Primary = Endpoint[protocol.Command, protocol.Response]

// Worker is the background side.
type Worker = Endpoint[protocol.Response, protocol.Command]
