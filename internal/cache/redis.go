package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror persists cache entries as JSON strings with native expiry.
type RedisMirror struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisMirror creates a mirror on top of a Redis client. keyPrefix is
// prepended to every key so several deployments can share one Redis.
func NewRedisMirror(client redis.UniversalClient, keyPrefix string) *RedisMirror {
	return &RedisMirror{client: client, keyPrefix: keyPrefix}
}

// Name implements Mirror.
func (m *RedisMirror) Name() string {
	return "redis"
}

// Load implements Mirror.
func (m *RedisMirror) Load(ctx context.Context, key string) (*Entry, error) {
	data, err := m.client.Get(ctx, m.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Save implements Mirror. Redis drops the key once ttl has passed, at which
// point the store would treat it as absent anyway.
func (m *RedisMirror) Save(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, m.keyPrefix+key, data, ttl).Err()
}

// Clear implements Mirror.
func (m *RedisMirror) Clear(ctx context.Context, prefix string) error {
	iter := m.client.Scan(ctx, 0, escapeGlob(m.keyPrefix+prefix)+"*", 100).Iterator()

	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := m.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(batch) > 0 {
		return m.client.Del(ctx, batch...).Err()
	}
	return nil
}

// escapeGlob quotes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
