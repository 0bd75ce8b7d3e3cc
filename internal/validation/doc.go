// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package validation wraps go-playground/validator with a shared instance
// and readable error messages. It validates configuration structs at
// startup and task payloads decoded from the event log.
//
// Field names in messages come from the koanf or json struct tag when one
// is present, so errors point at the key the operator actually wrote.
package validation
