// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mediaforge/config.yaml",
	"/etc/mediaforge/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// sliceConfigPaths accept comma-separated strings from the environment.
var sliceConfigPaths = []string{"roles", "keypool.keys"}

func defaultConfig() *Config {
	return &Config{
		Roles: []string{RoleWorker},
		EventLog: EventLogConfig{
			Backend:      "redis",
			StreamPrefix: "events:",
			MaxLen:       10000,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    20,
			DialTimeout: 5 * time.Second,
		},
		NATS: NATSConfig{
			URL:       "nats://127.0.0.1:4222",
			Host:      "127.0.0.1",
			Port:      4222,
			StoreDir:  "/data/nats",
			MaxMemory: 256 << 20,
			MaxStore:  4 << 30,
		},
		Bus: BusConfig{
			Group:           "mediaforge-bus",
			Source:          "mediaforge",
			BatchSize:       10,
			BlockTimeout:    time.Second,
			ReclaimIdle:     15 * time.Minute,
			ReclaimInterval: time.Minute,
		},
		Worker: WorkerConfig{
			Group:            "media-optimizer",
			BatchSize:        10,
			BlockTimeout:     time.Second,
			ImageConcurrency: 4,
			VideoConcurrency: 1,
			TaskTimeout:      10 * time.Minute,
			ReclaimInterval:  time.Minute,
			ReclaimIdle:      15 * time.Minute,
			MaxDeliveries:    5,
			MetricsInterval:  time.Minute,
			DrainTimeout:     30 * time.Second,
			CancelGrace:      5 * time.Second,
		},
		Media: MediaConfig{
			ImageQuality:    85,
			FFmpegPath:      "ffmpeg",
			HardwareEncoder: "h264_nvenc",
			CRF:             28,
		},
		Storage: StorageConfig{
			Root: "/data/media",
		},
		Queue: QueueConfig{
			Backend:    "redis",
			Name:       "voice_sync",
			TTL:        24 * time.Hour,
			TriggerTTL: time.Hour,
			BadgerPath: "/data/queue",
		},
		Reconciler: ReconcilerConfig{
			Interval: 30 * time.Second,
			Jitter:   3 * time.Second,
			MaxAge:   10 * time.Minute,
		},
		Postgres: PostgresConfig{
			MaxConns: 10,
		},
		Voice: VoiceConfig{
			Timeout: 30 * time.Second,
		},
		Video: VideoConfig{
			Model:        "kling-v1",
			Timeout:      30 * time.Second,
			PollInterval: 5 * time.Second,
			PollTimeout:  10 * time.Minute,
		},
		KeyPool: KeyPoolConfig{
			Cooldown: time.Minute,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8081,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       120,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  45 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file and
// the environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"mediaforge_roles": "roles",

	"eventlog_backend":       "eventlog.backend",
	"eventlog_stream_prefix": "eventlog.stream_prefix",
	"eventlog_max_len":       "eventlog.max_len",

	"redis_addr":         "redis.addr",
	"redis_password":     "redis.password",
	"redis_db":           "redis.db",
	"redis_pool_size":    "redis.pool_size",
	"redis_dial_timeout": "redis.dial_timeout",

	"nats_url":        "nats.url",
	"nats_embedded":   "nats.embedded",
	"nats_store_dir":  "nats.store_dir",
	"nats_max_memory": "nats.max_memory",
	"nats_max_store":  "nats.max_store",

	"bus_group":            "bus.group",
	"bus_source":           "bus.source",
	"bus_batch_size":       "bus.batch_size",
	"bus_block_timeout":    "bus.block_timeout",
	"bus_reclaim_idle":     "bus.reclaim_idle",
	"bus_reclaim_interval": "bus.reclaim_interval",

	"worker_group":             "worker.group",
	"worker_batch_size":        "worker.batch_size",
	"worker_image_concurrency": "worker.image_concurrency",
	"worker_video_concurrency": "worker.video_concurrency",
	"worker_task_timeout":      "worker.task_timeout",
	"worker_reclaim_interval":  "worker.reclaim_interval",
	"worker_reclaim_idle":      "worker.reclaim_idle",
	"worker_max_deliveries":    "worker.max_deliveries",
	"worker_drain_timeout":     "worker.drain_timeout",
	"worker_cancel_grace":      "worker.cancel_grace",

	"image_quality":    "media.image_quality",
	"ffmpeg_path":      "media.ffmpeg_path",
	"hardware_encoder": "media.hardware_encoder",
	"video_crf":        "media.crf",
	"media_temp_dir":   "media.temp_dir",

	"storage_root": "storage.root",

	"queue_backend":     "queue.backend",
	"queue_name":        "queue.name",
	"queue_ttl":         "queue.ttl",
	"queue_trigger_ttl": "queue.trigger_ttl",
	"queue_badger_path": "queue.badger_path",

	"reconciler_interval": "reconciler.interval",
	"reconciler_jitter":   "reconciler.jitter",
	"reconciler_max_age":  "reconciler.max_age",

	"database_url":       "postgres.dsn",
	"postgres_max_conns": "postgres.max_conns",

	"voice_base_url": "voice.base_url",
	"voice_api_key":  "voice.api_key",
	"voice_timeout":  "voice.timeout",

	"video_base_url":      "video.base_url",
	"video_model":         "video.model",
	"video_poll_interval": "video.poll_interval",
	"video_poll_timeout":  "video.poll_timeout",

	"keypool_keys":     "keypool.keys",
	"keypool_cooldown": "keypool.cooldown",

	"http_host":       "server.host",
	"http_port":       "server.port",
	"http_rate_limit": "server.rate_limit",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps known environment variables to koanf paths and
// drops everything else.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
