package protocol

import (
	"encoding/json"
	"image"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharetube/vectorplayer/internal/domain"
	"github.com/sharetube/vectorplayer/internal/source"
	"github.com/sharetube/vectorplayer/internal/surface"
)

func TestDecodeCommandFromWire(t *testing.T) {
	c := NewCodec()

	tests := []struct {
		name string
		raw  string
		want Command
	}{
		{
			name: "load",
			raw:  `{"type":"LOAD","payload":{"load_id":3,"src":{"text":"{}"},"file_type":"json"}}`,
			want: Load{LoadID: 3, Src: source.FromString("{}"), FileType: source.FileTypeJSON},
		},
		{
			name: "play without payload",
			raw:  `{"type":"PLAY"}`,
			want: Play{},
		},
		{
			name: "seek",
			raw:  `{"type":"SEEK","payload":{"frame":12.5}}`,
			want: Seek{Frame: 12.5},
		},
		{
			name: "init",
			raw:  `{"type":"INIT","payload":{"render_config":{"renderer":"webgl"},"use_exclusive_surface":true}}`,
			want: Init{RenderConfig: &RenderConfig{Renderer: domain.RendererWebGL}, UseExclusiveSurface: true},
		},
		{
			name: "resize",
			raw:  `{"type":"RESIZE","payload":{"canvas_info":{"width":200,"height":100,"device_pixel_ratio":2,"viewport_info":{"x":0,"y":10,"w":200,"h":90}}}}`,
			want: Resize{CanvasInfo: domain.CanvasInfo{
				Width: 200, Height: 100, DevicePixelRatio: 2,
				Viewport: &domain.Viewport{Y: 10, W: 200, H: 90},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &env))

			cmd, err := c.DecodeCommand(env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestDecodeCommandRejectsBadInput(t *testing.T) {
	c := NewCodec()

	tests := []struct {
		name string
		env  Envelope
	}{
		{"unknown type", Envelope{Type: "REWIND"}},
		{"malformed payload", Envelope{Type: KindSeek, Payload: json.RawMessage(`{"frame":"x"}`)}},
		{"negative frame", Envelope{Type: KindSeek, Payload: json.RawMessage(`{"frame":-1}`)}},
		{"zero speed", Envelope{Type: KindSetSpeed, Payload: json.RawMessage(`{"speed":0}`)}},
		{"bad mode", Envelope{Type: KindSetPlayback, Payload: json.RawMessage(`{"mode":"pingpong"}`)}},
		{"bad file type", Envelope{Type: KindLoad, Payload: json.RawMessage(`{"src":{"text":"a"},"file_type":"gif"}`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.DecodeCommand(tt.env)
			var perr *ProtocolError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.env.Type, perr.Kind)
		})
	}
}

func TestResponseEnvelopeShape(t *testing.T) {
	c := NewCodec()

	env, err := c.EncodeResponse(Ready{
		Renderer: domain.RendererWebGL,
		Fallbacks: []domain.FallbackEvent{{
			Requested: domain.RendererWebGPU,
			Fallback:  domain.RendererWebGL,
			Message:   "no adapter",
		}},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"READY","payload":{"renderer":"webgl","uses_exclusive_surface":false,
		"fallbacks":[{"requested_kind":"webgpu","fallback_kind":"webgl","message":"no adapter"}]}}`, string(raw))

	resp, err := c.DecodeResponse(env)
	require.NoError(t, err)
	ready, ok := resp.(Ready)
	require.True(t, ok)
	assert.Equal(t, domain.RendererWebGL, ready.Renderer)
}

func TestDecodeResponseValidates(t *testing.T) {
	c := NewCodec()

	_, err := c.DecodeResponse(Envelope{Type: KindError, Payload: json.RawMessage(`{"code":"oops","message":"x"}`)})
	var perr *ProtocolError
	assert.ErrorAs(t, err, &perr)

	_, err = c.DecodeResponse(Envelope{Type: "HELLO"})
	assert.ErrorAs(t, err, &perr)

	resp, err := c.DecodeResponse(Envelope{Type: KindFrame, Payload: json.RawMessage(`{"frame_number":4,"image_data":"AAECAw==","width":1,"height":1}`)})
	require.NoError(t, err)
	assert.Equal(t, Frame{FrameNumber: 4, ImageData: []byte{0, 1, 2, 3}, Width: 1, Height: 1}, resp)
}

func TestEncodeInitRefusesSurface(t *testing.T) {
	c := NewCodec()
	canvas := surface.NewCanvas(image.Rect(0, 0, 10, 10), image.Rect(0, 0, 10, 10), 1)

	_, err := c.EncodeCommand(Init{UseExclusiveSurface: true, Surface: canvas})
	var perr *ProtocolError
	assert.ErrorAs(t, err, &perr)
}

func TestSetPlaybackRoundTripsParameters(t *testing.T) {
	params := domain.DefaultPlaybackParameters()
	params.Direction = domain.Backward
	params.Mode = domain.ModeBounce
	params.RepeatCount = mo.Some(3)
	params.IntermissionSeconds = 1.5
	params.Speed = 2

	got, err := NewSetPlayback(params).Apply(domain.DefaultPlaybackParameters())
	require.NoError(t, err)

	want := params
	want.Speed = 1
	assert.Equal(t, want, got)

	bad := SetPlayback{Intermission: -1}
	_, err = bad.Apply(domain.DefaultPlaybackParameters())
	assert.ErrorIs(t, err, domain.ErrInvalidIntermission)
}

func TestErrorFatal(t *testing.T) {
	assert.True(t, Error{Code: CodeLoad}.Fatal())
	assert.True(t, Error{Code: CodeInit}.Fatal())
	assert.False(t, Error{Code: CodeRender}.Fatal())
}
