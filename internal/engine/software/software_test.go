package software

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const animation = `{"v":"5.7.0","fr":30,"ip":0,"op":60,"w":64,"h":32,"layers":[]}`

func TestEngineReadsTimingHeader(t *testing.T) {
	e := &Engine{}
	require.NoError(t, e.Load([]byte(animation), 0, 0))

	assert.Equal(t, 60.0, e.TotalFrames())
	assert.Equal(t, 2.0, e.Duration())
	w, h := e.Size()
	assert.Equal(t, 64, w)
	assert.Equal(t, 32, h)

	require.True(t, e.SetFrame(30))
	require.True(t, e.Render())
	assert.Len(t, e.Buffer(), 64*32*4)
}

func TestEngineRejectsInvalidHeader(t *testing.T) {
	e := &Engine{}
	err := e.Load([]byte(`{"fr":0,"ip":0,"op":0}`), 10, 10)
	assert.ErrorIs(t, err, ErrInvalidHeader)
	assert.ErrorIs(t, e.Err(), ErrInvalidHeader)

	err = e.Load([]byte(`not json`), 10, 10)
	assert.ErrorIs(t, err, ErrInvalidHeader)
	assert.False(t, e.Render())
}
