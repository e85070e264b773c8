package surface

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharetube/vectorplayer/internal/domain"
)

func TestComputeViewport(t *testing.T) {
	window := image.Rect(0, 0, 800, 600)

	tests := []struct {
		name     string
		geometry image.Rectangle
		dpr      float64
		want     domain.Viewport
	}{
		{
			name:     "fully visible",
			geometry: image.Rect(100, 100, 300, 200),
			dpr:      1,
			want:     domain.Viewport{X: 0, Y: 0, W: 200, H: 100},
		},
		{
			name:     "overflows top and left",
			geometry: image.Rect(-50, -20, 150, 80),
			dpr:      1,
			want:     domain.Viewport{X: 50, Y: 20, W: 150, H: 80},
		},
		{
			name:     "overflows right and bottom",
			geometry: image.Rect(700, 550, 900, 650),
			dpr:      1,
			want:     domain.Viewport{X: 0, Y: 0, W: 100, H: 50},
		},
		{
			name:     "overflows all edges at dpr 2",
			geometry: image.Rect(-10, -10, 810, 610),
			dpr:      2,
			want:     domain.Viewport{X: 20, Y: 20, W: 1600, H: 1200},
		},
		{
			name:     "off screen",
			geometry: image.Rect(900, 0, 1000, 100),
			dpr:      1,
			want:     domain.Viewport{X: 0, Y: 0, W: 0, H: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeViewport(tt.geometry, window, tt.dpr))
		})
	}
}

func TestCanvasPresentScalesToDevicePixels(t *testing.T) {
	c := NewCanvas(image.Rect(0, 0, 10, 10), image.Rect(0, 0, 100, 100), 2)

	src := image.NewRGBA(image.Rect(0, 0, 5, 5))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	require.NoError(t, c.Present(src))

	snap := c.Snapshot()
	assert.Equal(t, image.Rect(0, 0, 20, 20), snap.Bounds())
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, snap.RGBAAt(10, 10))
	assert.Equal(t, 1, c.Presented())

	c.Detach()
	assert.ErrorIs(t, c.Present(src), ErrDetached)
}

func TestIntersecting(t *testing.T) {
	c := NewCanvas(image.Rect(0, 0, 10, 10), image.Rect(0, 0, 100, 100), 1)
	assert.True(t, Intersecting(c))

	c.SetGeometry(image.Rect(0, 200, 10, 210))
	assert.False(t, Intersecting(c))
}

func TestRGBARejectsMismatchedBuffer(t *testing.T) {
	_, err := RGBA(make([]byte, 10), 2, 2)
	assert.Error(t, err)

	img, err := RGBA(make([]byte, 16), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
}

func TestCanvasInfo(t *testing.T) {
	c := NewCanvas(image.Rect(-10, 0, 90, 50), image.Rect(0, 0, 400, 300), 2)

	info := CanvasInfo(c)
	assert.Equal(t, 200, info.Width)
	assert.Equal(t, 100, info.Height)
	assert.Equal(t, 2.0, info.DevicePixelRatio)
	require.NotNil(t, info.Viewport)
	assert.Equal(t, domain.Viewport{X: 20, Y: 0, W: 180, H: 100}, *info.Viewport)
}
