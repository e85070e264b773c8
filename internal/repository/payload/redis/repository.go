package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sharetube/vectorplayer/internal/repository/payload"
)

type repo struct {
	rc  *redis.Client
	ttl time.Duration
}

// NewRepo caches fetched animation payloads for ttl, keyed by locator.
func NewRepo(rc *redis.Client, ttl time.Duration) *repo {
	return &repo{rc: rc, ttl: ttl}
}

func (r repo) getPayloadKey(locator string) string {
	sum := sha256.Sum256([]byte(locator))
	return "payload:" + hex.EncodeToString(sum[:])
}

func (r repo) GetPayload(ctx context.Context, locator string) ([]byte, error) {
	funcName := "payload.redis.GetPayload"
	slog.DebugContext(ctx, funcName, "locator", locator)
	if locator == "" {
		slog.DebugContext(ctx, funcName, "error", payload.ErrEmptyLocator)
		return nil, payload.ErrEmptyLocator
	}

	data, err := r.rc.Get(ctx, r.getPayloadKey(locator)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			slog.DebugContext(ctx, funcName, "error", payload.ErrPayloadNotFound)
			return nil, payload.ErrPayloadNotFound
		}
		slog.ErrorContext(ctx, funcName, "error", err)
		return nil, err
	}

	slog.DebugContext(ctx, funcName, "size", len(data))
	return data, nil
}

func (r repo) SetPayload(ctx context.Context, locator string, data []byte) error {
	funcName := "payload.redis.SetPayload"
	slog.DebugContext(ctx, funcName, "locator", locator, "size", len(data))
	if locator == "" {
		slog.DebugContext(ctx, funcName, "error", payload.ErrEmptyLocator)
		return payload.ErrEmptyLocator
	}

	if err := r.rc.Set(ctx, r.getPayloadKey(locator), data, r.ttl).Err(); err != nil {
		slog.ErrorContext(ctx, funcName, "error", err)
		return err
	}

	return nil
}

func (r repo) DeletePayload(ctx context.Context, locator string) error {
	funcName := "payload.redis.DeletePayload"
	slog.DebugContext(ctx, funcName, "locator", locator)

	n, err := r.rc.Del(ctx, r.getPayloadKey(locator)).Result()
	if err != nil {
		slog.ErrorContext(ctx, funcName, "error", err)
		return err
	}
	if n == 0 {
		slog.DebugContext(ctx, funcName, "error", payload.ErrPayloadNotFound)
		return payload.ErrPayloadNotFound
	}

	return nil
}
