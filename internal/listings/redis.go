// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package listings

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuGH/recsched/internal/log"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the revision counters.
const DefaultRedisPrefix = "recsched:rev:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
	Prefix   string // Key prefix, DefaultRedisPrefix when empty
}

// RedisRevisions reads revision counters that external listings grabbers
// bump with INCR, e.g. `INCR recsched:rev:listings` after a guide refresh.
type RedisRevisions struct {
	client *redis.Client
	prefix string
}

// NewRedisRevisions connects to Redis and verifies the connection.
func NewRedisRevisions(ctx context.Context, cfg RedisConfig) (*RedisRevisions, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger := log.WithComponent("listings.redis")
	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis revision source")

	return NewRedisRevisionsFromClient(client, cfg.Prefix), nil
}

// NewRedisRevisionsFromClient wraps an existing client.
func NewRedisRevisionsFromClient(client *redis.Client, prefix string) *RedisRevisions {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRevisions{client: client, prefix: prefix}
}

func (r *RedisRevisions) key(family string) string { return r.prefix + family }

// Revision reads all counters in one MGET. Missing keys count as zero.
func (r *RedisRevisions) Revision(ctx context.Context) (Revision, error) {
	keys := make([]string, len(Families))
	for i, f := range Families {
		keys[i] = r.key(f)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return Revision{}, fmt.Errorf("redis revision: %w", err)
	}

	var rev Revision
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return Revision{}, fmt.Errorf("redis revision %s: unexpected type %T", keys[i], v)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Revision{}, fmt.Errorf("redis revision %s: %w", keys[i], err)
		}
		rev.set(Families[i], n)
	}
	return rev, nil
}

// Bump increments the counter of family and returns its new value.
func (r *RedisRevisions) Bump(ctx context.Context, family string) (int64, error) {
	switch family {
	case FamilyListings, FamilyTopology, FamilyHistory:
	default:
		return 0, fmt.Errorf("unknown revision family %q", family)
	}
	return r.client.Incr(ctx, r.key(family)).Result()
}

func (r *RedisRevisions) Close() error { return r.client.Close() }
