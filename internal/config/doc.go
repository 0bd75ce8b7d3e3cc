// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package config loads Mediaforge configuration with koanf.
//
// Sources are layered, later layers winning:
//
//  1. Built-in defaults (defaultConfig)
//  2. YAML file: CONFIG_PATH, ./config.yaml, /etc/mediaforge/config.yaml
//  3. Environment variables, mapped explicitly (REDIS_ADDR -> redis.addr)
//
// Unmapped environment variables are ignored. The merged result is
// validated with struct tags and cross-field rules before it is returned.
//
// # Example
//
//	roles: [worker, reconciler]
//	eventlog:
//	  backend: redis
//	redis:
//	  addr: redis:6379
//	keypool:
//	  keys:
//	    - "ak_primary:sk_primary"
//	    - "ak_backup:sk_backup"
package config
