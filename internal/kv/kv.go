package kv

import (
	"context"
	"time"
)

// Store is the key-value collaborator the pipeline persists into. Values
// are opaque strings (callers JSON-encode records). Sets back the
// subscriber membership index.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
}
