package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sharetube/vectorplayer/internal/protocol"
)

const writeWait = 10 * time.Second

type wsEndpoint[S, R any] struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	encode  func(S) (protocol.Envelope, error)
	decode  func(protocol.Envelope) (R, error)
	once    sync.Once
}

// NewPrimaryWS wraps the client side of a worker host connection.
func NewPrimaryWS(conn *websocket.Conn, codec *protocol.Codec) Primary {
	return &wsEndpoint[protocol.Command, protocol.Response]{
		conn:   conn,
		encode: codec.EncodeCommand,
		decode: codec.DecodeResponse,
	}
}

// NewWorkerWS wraps the server side of an upgraded connection.
func NewWorkerWS(conn *websocket.Conn, codec *protocol.Codec) Worker {
	return &wsEndpoint[protocol.Response, protocol.Command]{
		conn:   conn,
		encode: codec.EncodeResponse,
		decode: codec.DecodeCommand,
	}
}

func (e *wsEndpoint[S, R]) Send(ctx context.Context, msg S) error {
	env, err := e.encode(msg)
	if err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	e.conn.SetWriteDeadline(deadline)

	if err := e.conn.WriteJSON(env); err != nil {
		return e.mapErr(ctx, err)
	}

	return nil
}

// Receive returns a *protocol.ProtocolError for messages that do not decode;
// the connection stays usable.
func (e *wsEndpoint[S, R]) Receive(ctx context.Context) (R, error) {
	var zero R

	stop := context.AfterFunc(ctx, func() {
		e.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var env protocol.Envelope
	if err := e.conn.ReadJSON(&env); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return zero, &protocol.ProtocolError{Reason: "malformed envelope", Err: err}
		}
		return zero, e.mapErr(ctx, err)
	}

	return e.decode(env)
}

func (e *wsEndpoint[S, R]) Close() error {
	var err error
	e.once.Do(func() {
		e.writeMu.Lock()
		e.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		e.writeMu.Unlock()

		err = e.conn.Close()
	})

	return err
}

func (e *wsEndpoint[S, R]) mapErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrCloseSent) {
		return ErrClosed
	}

	return err
}
