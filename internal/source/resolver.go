package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/afero"
)

const DefaultFetchTimeout = 30 * time.Second

// PayloadCache stores fetched payloads by locator. Any Get error is a miss.
type PayloadCache interface {
	GetPayload(ctx context.Context, locator string) ([]byte, error)
	SetPayload(ctx context.Context, locator string, data []byte) error
}

type Config struct {
	Client *http.Client
	// Fs serves locators without an http(s) scheme. Defaults to the OS filesystem.
	Fs    afero.Fs
	Cache PayloadCache
	// MaxBytes caps a fetched body; zero means no limit.
	MaxBytes int64
	// AllowHost gates http(s) locators by host name. Nil allows every host.
	AllowHost func(host string) bool
}

type Resolver struct {
	client    *http.Client
	fs        afero.Fs
	cache     PayloadCache
	maxBytes  int64
	allowHost func(string) bool
}

func NewResolver(cfg *Config) *Resolver {
	if cfg == nil {
		cfg = &Config{}
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	return &Resolver{
		client:    client,
		fs:        fs,
		cache:     cfg.Cache,
		maxBytes:  cfg.MaxBytes,
		allowHost: cfg.AllowHost,
	}
}

// Resolve returns the payload bytes for src.
func (r *Resolver) Resolve(ctx context.Context, src Source, fileType FileType) ([]byte, error) {
	if len(src.Data) > 0 {
		return src.Data, nil
	}
	if src.Text == nil || *src.Text == "" {
		return nil, ErrEmptySource
	}

	text := *src.Text
	if fileType != FileTypeLottie {
		trimmed := bytes.TrimSpace([]byte(text))
		if json.Valid(trimmed) {
			return trimmed, nil
		}
	}

	return r.Fetch(ctx, text)
}

// Fetch reads locator over http(s) or from the configured filesystem.
func (r *Resolver) Fetch(ctx context.Context, locator string) ([]byte, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("failed to parse locator: %w", err)
	}

	var read func() ([]byte, error)
	switch u.Scheme {
	case "http", "https":
		if r.allowHost != nil && !r.allowHost(u.Hostname()) {
			return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
		}
		read = func() ([]byte, error) { return r.fetchHTTP(ctx, u.String()) }
	case "file":
		read = func() ([]byte, error) { return r.readFile(u.Path) }
	case "":
		read = func() ([]byte, error) { return r.readFile(locator) }
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}

	if r.cache != nil {
		if data, err := r.cache.GetPayload(ctx, locator); err == nil && len(data) > 0 {
			slog.DebugContext(ctx, "payload cache hit", "locator", locator)
			return data, nil
		}
	}

	data, err := read()
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.SetPayload(ctx, locator, data); err != nil {
			slog.WarnContext(ctx, "failed to cache payload", "locator", locator, "error", err)
		}
	}

	return data, nil
}

func (r *Resolver) fetchHTTP(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: unexpected status %d", locator, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if r.maxBytes > 0 {
		body = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", locator, err)
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("payload %s exceeds %d bytes", locator, r.maxBytes)
	}

	return data, nil
}

func (r *Resolver) readFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("payload %s exceeds %d bytes", path, r.maxBytes)
	}

	return data, nil
}
