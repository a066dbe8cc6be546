// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package events announces committed and deleted videos to downstream
// consumers such as the viewer, so they can refresh without polling the
// storage directory.
//
// Delivery is best effort. Publishers never block or fail a commit; failures
// are logged and counted.
package events

import (
	"fmt"
	"time"
)

// Config holds event notification configuration.
type Config struct {
	// Enabled controls whether any publisher is built. When false, New
	// returns a NoopPublisher.
	Enabled bool `mapstructure:"enabled"`

	// Timeout bounds a single publish call made on the commit path.
	Timeout time.Duration `mapstructure:"timeout"`

	Redis RedisConfig `mapstructure:"redis"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// RedisConfig holds Redis publisher settings.
type RedisConfig struct {
	// Enabled activates the Redis publisher.
	Enabled bool `mapstructure:"enabled"`

	// Addr is the Redis server address (e.g., "localhost:6379").
	Addr string `mapstructure:"addr"`

	// Password for Redis authentication (optional).
	Password string `mapstructure:"password"`

	// DB is the Redis database number (default: 0).
	DB int `mapstructure:"db"`

	// Channel is the channel prefix. Events are published to
	// "{channel}:{event type}" (default: "zapingest:events").
	Channel string `mapstructure:"channel"`

	// PoolSize is the maximum number of connections (default: 10).
	PoolSize int `mapstructure:"pool_size"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig holds Kafka publisher settings.
type KafkaConfig struct {
	// Enabled activates the Kafka publisher.
	Enabled bool `mapstructure:"enabled"`

	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`

	// Topic is the Kafka topic for events (default: "zapingest-videos").
	Topic string `mapstructure:"topic"`

	// RequiredAcks: 0=none, 1=leader, -1=all (default: 1).
	RequiredAcks int `mapstructure:"required_acks"`

	// Compression: "none", "gzip", "snappy", "lz4", "zstd" (default: "snappy").
	Compression string `mapstructure:"compression"`

	// BatchSize is the maximum messages per batch (default: 100).
	BatchSize int `mapstructure:"batch_size"`

	// BatchTimeout is the maximum time to wait for a batch (default: 1s).
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`

	// WriteTimeout is the timeout for write operations (default: 10s).
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	TLS           bool `mapstructure:"tls"`
	TLSSkipVerify bool `mapstructure:"tls_skip_verify"`

	// SASLMechanism is "", "PLAIN", "SCRAM-SHA-256" or "SCRAM-SHA-512".
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`
}

const (
	DefaultTimeout      = 2 * time.Second
	DefaultRedisChannel = "zapingest:events"
	DefaultKafkaTopic   = "zapingest-videos"
)

// DefaultConfig returns a disabled configuration with default settings for
// every publisher.
func DefaultConfig() Config {
	return Config{
		Timeout: DefaultTimeout,
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			Channel:      DefaultRedisChannel,
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:        DefaultKafkaTopic,
			RequiredAcks: 1,
			Compression:  "snappy",
			BatchSize:    100,
			BatchTimeout: time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// New builds the publishers enabled in cfg. With nothing enabled it returns a
// NoopPublisher. If one publisher fails to start the ones already built are
// closed.
func New(cfg Config) (Publisher, error) {
	if !cfg.Enabled {
		return NoopPublisher{}, nil
	}

	var pubs []Publisher
	closeAll := func() {
		for _, p := range pubs {
			_ = p.Close()
		}
	}

	if cfg.Redis.Enabled {
		p, err := NewRedisPublisher(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("events: redis: %w", err)
		}
		pubs = append(pubs, p)
	}
	if cfg.Kafka.Enabled {
		p, err := NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("events: kafka: %w", err)
		}
		pubs = append(pubs, p)
	}

	switch len(pubs) {
	case 0:
		return NoopPublisher{}, nil
	case 1:
		return pubs[0], nil
	default:
		return NewMultiPublisher(pubs...), nil
	}
}
