package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const animation = `{"v":"5.7.0","fr":30,"ip":0,"op":60,"w":64,"h":64,"layers":[]}`

func TestResolveLiteralJSONIsNeverFetched(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(animation))
	}))
	defer srv.Close()

	r := NewResolver(&Config{Client: srv.Client(), Fs: afero.NewMemMapFs()})

	data, err := r.Resolve(context.Background(), FromString(`{"a":1}`), FileTypeJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	// a quoted URL is itself valid JSON, so it stays a literal
	data, err = r.Resolve(context.Background(), FromString(`"`+srv.URL+`"`), FileTypeJSON)
	require.NoError(t, err)
	assert.Equal(t, `"`+srv.URL+`"`, string(data))

	assert.Equal(t, int32(0), hits.Load())
}

func TestResolveFetchesLocatorWhenNotJSON(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(animation))
	}))
	defer srv.Close()

	r := NewResolver(&Config{Client: srv.Client()})

	data, err := r.Resolve(context.Background(), FromString(srv.URL+"/anim.json"), FileTypeJSON)
	require.NoError(t, err)
	assert.Equal(t, animation, string(data))
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolveLottieStringIsAlwaysALocator(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/anim/1", []byte("binary"), 0o644))
	r := NewResolver(&Config{Fs: fs})

	data, err := r.Resolve(context.Background(), FromString("/anim/1"), FileTypeLottie)
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))

	_, err = r.Resolve(context.Background(), FromString("1"), FileTypeLottie)
	assert.Error(t, err)
}

func TestResolveFileScheme(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/srv/anim.json", []byte(animation), 0o644))
	r := NewResolver(&Config{Fs: fs})

	data, err := r.Resolve(context.Background(), FromString("file:///srv/anim.json"), FileTypeJSON)
	require.NoError(t, err)
	assert.Equal(t, animation, string(data))
}

func TestResolveBytesAndValues(t *testing.T) {
	r := NewResolver(nil)

	data, err := r.Resolve(context.Background(), FromBytes([]byte{1, 2, 3}), FileTypeLottie)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	src, err := FromValue(map[string]int{"fr": 30})
	require.NoError(t, err)
	data, err = r.Resolve(context.Background(), src, FileTypeJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fr":30}`, string(data))

	_, err = r.Resolve(context.Background(), Source{}, FileTypeJSON)
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestFetchRejectsUnsupportedScheme(t *testing.T) {
	r := NewResolver(nil)

	_, err := r.Fetch(context.Background(), "ftp://example.com/a.json")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestFetchHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := NewResolver(&Config{Client: srv.Client()})
	_, err := r.Fetch(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "unexpected status 404")
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) GetPayload(_ context.Context, locator string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[locator]
	if !ok {
		return nil, errors.New("miss")
	}
	return data, nil
}

func (c *memCache) SetPayload(_ context.Context, locator string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[locator] = data
	return nil
}

func TestFetchUsesPayloadCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(animation))
	}))
	defer srv.Close()

	cache := &memCache{data: make(map[string][]byte)}
	r := NewResolver(&Config{Client: srv.Client(), Cache: cache})

	for i := 0; i < 3; i++ {
		data, err := r.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, animation, string(data))
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchEnforcesMaxBytes(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "big.json", make([]byte, 64), 0o644))
	r := NewResolver(&Config{Fs: fs, MaxBytes: 32})

	_, err := r.Fetch(context.Background(), "big.json")
	assert.ErrorContains(t, err, "exceeds")
}

func TestFetchRejectsHostOutsideAllowList(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(animation))
	}))
	defer srv.Close()

	cache := &memCache{data: map[string][]byte{"http://internal.invalid/a.json": []byte(animation)}}
	r := NewResolver(&Config{
		Client:    srv.Client(),
		Cache:     cache,
		AllowHost: func(host string) bool { return host == "cdn.example.com" },
	})

	_, err := r.Fetch(context.Background(), srv.URL+"/anim.json")
	assert.ErrorIs(t, err, ErrHostNotAllowed)

	_, err = r.Fetch(context.Background(), "http://internal.invalid/a.json")
	assert.ErrorIs(t, err, ErrHostNotAllowed, "cached payloads obey the allow list too")
	assert.Equal(t, int32(0), hits.Load())
}
