// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes events to Redis Pub/Sub.
type RedisPublisher struct {
	client  *redis.Client
	channel string // Channel prefix (e.g., "zapingest:events")
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultRedisChannel
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Str("channel", cfg.Channel).
		Msg("events: redis publisher connected")

	return &RedisPublisher{
		client:  client,
		channel: cfg.Channel,
	}, nil
}

// Name returns the publisher identifier.
func (p *RedisPublisher) Name() string {
	return "redis"
}

// Channel returns the Pub/Sub channel used for an event type.
func (p *RedisPublisher) Channel(eventType string) string {
	return p.channel + ":" + eventType
}

// Publish sends ev to "{prefix}:{event type}".
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	start := time.Now()

	data, err := json.Marshal(ev)
	if err != nil {
		EventsErrorsTotal.WithLabelValues(p.Name()).Inc()
		return fmt.Errorf("encode event: %w", err)
	}

	channel := p.Channel(ev.Type)
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		EventsErrorsTotal.WithLabelValues(p.Name()).Inc()
		return fmt.Errorf("redis publish: %w", err)
	}

	EventsPublishedTotal.WithLabelValues(p.Name()).Inc()
	EventsDeliveryDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

	logger.Debug().
		Str("channel", channel).
		Str("video_id", ev.VideoID).
		Int("size", len(data)).
		Msg("events: published to redis")
	return nil
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
