// Package presence mirrors the online set of this process into Redis so
// other services can read it without a live connection.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection and key settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Channel  string
	TTL      time.Duration
}

// Snapshot is the payload published on every change.
type Snapshot struct {
	Users []string `json:"users"`
	At    int64    `json:"at"`
}

// RedisMirror stores the online set under a single key and publishes changes.
type RedisMirror struct {
	client  *redis.Client
	key     string
	channel string
	ttl     time.Duration
	now     func() time.Time
}

// NewRedisMirror connects to Redis and verifies the connection.
func NewRedisMirror(ctx context.Context, cfg Config) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newMirror(client, cfg), nil
}

func newMirror(client *redis.Client, cfg Config) *RedisMirror {
	return &RedisMirror{
		client:  client,
		key:     cfg.Key,
		channel: cfg.Channel,
		ttl:     cfg.TTL,
		now:     time.Now,
	}
}

// Publish replaces the stored online set with online and notifies subscribers.
func (m *RedisMirror) Publish(ctx context.Context, online []string) error {
	payload, err := m.payload(online)
	if err != nil {
		return err
	}

	_, err = m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, m.key)
		if len(online) > 0 {
			members := make([]any, len(online))
			for i, id := range online {
				members[i] = id
			}
			pipe.SAdd(ctx, m.key, members...)
			if m.ttl > 0 {
				pipe.Expire(ctx, m.key, m.ttl)
			}
		}
		if m.channel != "" {
			pipe.Publish(ctx, m.channel, payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish presence: %w", err)
	}
	return nil
}

// Online reads the mirrored set back.
func (m *RedisMirror) Online(ctx context.Context) ([]string, error) {
	users, err := m.client.SMembers(ctx, m.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence: %w", err)
	}
	return users, nil
}

// Close releases the Redis client.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}

func (m *RedisMirror) payload(online []string) ([]byte, error) {
	if online == nil {
		online = []string{}
	}
	data, err := json.Marshal(Snapshot{Users: online, At: m.now().UnixMilli()})
	if err != nil {
		return nil, fmt.Errorf("encode presence: %w", err)
	}
	return data, nil
}
