// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package redis implements auth.ConfirmationStore on Redis.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// ConfirmationStore keeps confirmation tokens as expiring Redis strings.
type ConfirmationStore struct {
	client goredis.Cmdable
}

// NewConfirmationStore creates a ConfirmationStore backed by client.
func NewConfirmationStore(client goredis.Cmdable) *ConfirmationStore {
	return &ConfirmationStore{client: client}
}

// NewClient parses a redis:// URL and returns a connected client.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", opts.Addr).Wrap(err)
	}
	return client, nil
}

// Set stores value under key for ttl.
func (s *ConfirmationStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return oops.Code("CONFIRMATION_STORE_INVALID_TTL").With("ttl", ttl).Errorf("ttl must be positive")
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return oops.Code("CONFIRMATION_STORE_SET_FAILED").With("operation", "set").Wrap(err)
	}
	return nil
}

// Get returns the value under key, or auth.ErrNotFound when the key is
// absent or expired.
func (s *ConfirmationStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", oops.Code("CONFIRMATION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("CONFIRMATION_STORE_GET_FAILED").With("operation", "get").Wrap(err)
	}
	return value, nil
}

// Del removes key. A missing key is not an error.
func (s *ConfirmationStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return oops.Code("CONFIRMATION_STORE_DEL_FAILED").With("operation", "del").Wrap(err)
	}
	return nil
}
