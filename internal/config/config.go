// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package config

import (
	"fmt"
	"strings"
	"time"
)

// Process roles.
const (
	RoleWorker     = "worker"
	RoleReconciler = "reconciler"
)

// Config is the full process configuration.
type Config struct {
	Roles      []string         `koanf:"roles" validate:"min=1,dive,oneof=worker reconciler"`
	EventLog   EventLogConfig   `koanf:"eventlog"`
	Redis      RedisConfig      `koanf:"redis"`
	NATS       NATSConfig       `koanf:"nats"`
	Bus        BusConfig        `koanf:"bus"`
	Worker     WorkerConfig     `koanf:"worker"`
	Media      MediaConfig      `koanf:"media"`
	Storage    StorageConfig    `koanf:"storage"`
	Queue      QueueConfig      `koanf:"queue"`
	Reconciler ReconcilerConfig `koanf:"reconciler"`
	Postgres   PostgresConfig   `koanf:"postgres"`
	Voice      VoiceConfig      `koanf:"voice"`
	Video      VideoConfig      `koanf:"video"`
	KeyPool    KeyPoolConfig    `koanf:"keypool"`
	Server     ServerConfig     `koanf:"server"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// HasRole reports whether role is enabled for this process.
func (c *Config) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// EventLogConfig selects the durable log behind the event bus.
type EventLogConfig struct {
	Backend      string `koanf:"backend" validate:"oneof=redis nats memory"`
	StreamPrefix string `koanf:"stream_prefix" validate:"required"`
	MaxLen       int64  `koanf:"max_len" validate:"min=100"`
}

type RedisConfig struct {
	Addr        string        `koanf:"addr" validate:"required,hostname_port"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db" validate:"min=0,max=15"`
	PoolSize    int           `koanf:"pool_size" validate:"min=1"`
	DialTimeout time.Duration `koanf:"dial_timeout" validate:"gt=0"`
}

// NATSConfig is used when eventlog.backend is nats.
type NATSConfig struct {
	URL       string `koanf:"url"`
	Embedded  bool   `koanf:"embedded"`
	Host      string `koanf:"host"`
	Port      int    `koanf:"port"`
	StoreDir  string `koanf:"store_dir"`
	MaxMemory int64  `koanf:"max_memory"`
	MaxStore  int64  `koanf:"max_store"`
}

// BusConfig controls the generic event bus receive loop.
type BusConfig struct {
	Group        string        `koanf:"group" validate:"required"`
	Source       string        `koanf:"source" validate:"required"`
	BatchSize    int64         `koanf:"batch_size" validate:"min=1,max=1000"`
	BlockTimeout time.Duration `koanf:"block_timeout" validate:"gt=0"`

	// ReclaimIdle must exceed the longest handler run, which is the video
	// generation poll timeout.
	ReclaimIdle     time.Duration `koanf:"reclaim_idle" validate:"gt=0"`
	ReclaimInterval time.Duration `koanf:"reclaim_interval" validate:"gt=0"`
}

// WorkerConfig controls the media optimization worker pool.
type WorkerConfig struct {
	Group            string        `koanf:"group" validate:"required"`
	BatchSize        int64         `koanf:"batch_size" validate:"min=1,max=1000"`
	BlockTimeout     time.Duration `koanf:"block_timeout" validate:"gt=0"`
	ImageConcurrency int64         `koanf:"image_concurrency" validate:"min=1"`
	VideoConcurrency int64         `koanf:"video_concurrency" validate:"min=1"`
	TaskTimeout      time.Duration `koanf:"task_timeout" validate:"gt=0"`
	ReclaimInterval  time.Duration `koanf:"reclaim_interval" validate:"gt=0"`
	ReclaimIdle      time.Duration `koanf:"reclaim_idle" validate:"gt=0"`
	MaxDeliveries    int64         `koanf:"max_deliveries" validate:"min=1"`
	MetricsInterval  time.Duration `koanf:"metrics_interval" validate:"gt=0"`
	DrainTimeout     time.Duration `koanf:"drain_timeout" validate:"gt=0"`
	CancelGrace      time.Duration `koanf:"cancel_grace" validate:"gt=0"`
}

// MediaConfig controls the transcoders.
type MediaConfig struct {
	ImageQuality    int    `koanf:"image_quality" validate:"min=1,max=100"`
	FFmpegPath      string `koanf:"ffmpeg_path" validate:"required"`
	HardwareEncoder string `koanf:"hardware_encoder"`
	CRF             int    `koanf:"crf" validate:"min=0,max=51"`
	TempDir         string `koanf:"temp_dir"`
}

type StorageConfig struct {
	Root string `koanf:"root" validate:"required"`
}

// QueueConfig controls the durable work queue used by the reconciler.
type QueueConfig struct {
	Backend    string        `koanf:"backend" validate:"oneof=redis badger"`
	Name       string        `koanf:"name" validate:"required"`
	TTL        time.Duration `koanf:"ttl" validate:"gt=0"`
	TriggerTTL time.Duration `koanf:"trigger_ttl" validate:"gt=0"`
	BadgerPath string        `koanf:"badger_path"`
}

type ReconcilerConfig struct {
	Interval time.Duration `koanf:"interval" validate:"gt=0"`
	Jitter   time.Duration `koanf:"jitter" validate:"min=0"`
	MaxAge   time.Duration `koanf:"max_age" validate:"gt=0"`
}

type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns" validate:"min=1"`
}

// VoiceConfig points at the text-to-speech provider.
type VoiceConfig struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// VideoConfig points at the image-to-video provider.
type VideoConfig struct {
	BaseURL      string        `koanf:"base_url"`
	Model        string        `koanf:"model"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
	PollTimeout  time.Duration `koanf:"poll_timeout" validate:"gt=0"`
}

// KeyPoolConfig lists provider credentials as "access:secret" strings.
type KeyPoolConfig struct {
	Keys     []string      `koanf:"keys"`
	Cooldown time.Duration `koanf:"cooldown" validate:"gt=0"`
}

// KeyPair is one parsed credential.
type KeyPair struct {
	Access string
	Secret string
}

// Pairs parses Keys. Empty entries are skipped.
func (c KeyPoolConfig) Pairs() ([]KeyPair, error) {
	pairs := make([]KeyPair, 0, len(c.Keys))
	for i, raw := range c.Keys {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		access, secret, ok := strings.Cut(raw, ":")
		if !ok || access == "" || secret == "" {
			return nil, fmt.Errorf("keypool.keys[%d]: expected access:secret", i)
		}
		pairs = append(pairs, KeyPair{Access: access, Secret: secret})
	}
	return pairs, nil
}

// ServerConfig controls the ops HTTP surface (health and metrics).
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	RateLimit       int           `koanf:"rate_limit" validate:"min=0"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
