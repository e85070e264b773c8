package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharetube/vectorplayer/internal/domain"
	"github.com/sharetube/vectorplayer/internal/protocol"
)

func TestWebsocketEndpointsExchangeMessages(t *testing.T) {
	codec := protocol.NewCodec()
	upgrader := websocket.Upgrader{}
	received := make(chan protocol.Command, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ep := NewWorkerWS(conn, codec)
		defer ep.Close()

		for {
			cmd, err := ep.Receive(r.Context())
			if err != nil {
				if _, ok := err.(*protocol.ProtocolError); ok {
					ep.Send(r.Context(), protocol.Error{Code: protocol.CodeProtocol, Message: err.Error()})
					continue
				}
				return
			}
			received <- cmd
			ep.Send(r.Context(), protocol.Ready{Renderer: domain.RendererSoftware})
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	primary := NewPrimaryWS(conn, codec)
	defer primary.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, primary.Send(ctx, protocol.Init{RenderConfig: &protocol.RenderConfig{Renderer: domain.RendererWebGL}}))
	assert.Equal(t, protocol.Init{RenderConfig: &protocol.RenderConfig{Renderer: domain.RendererWebGL}}, <-received)

	resp, err := primary.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.Ready{Renderer: domain.RendererSoftware}, resp)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"WARP"}`)))
	resp, err = primary.Receive(ctx)
	require.NoError(t, err)
	errResp, ok := resp.(protocol.Error)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeProtocol, errResp.Code)
}

func TestWebsocketReceiveCancelled(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	primary := NewPrimaryWS(conn, protocol.NewCodec())
	defer primary.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = primary.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
