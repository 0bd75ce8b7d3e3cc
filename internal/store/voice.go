// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package store persists voice records in PostgreSQL.
package store

import (
	"errors"
	"time"
)

// ErrRecordNotFound is returned when no voice has the requested id.
var ErrRecordNotFound = errors.New("voice record not found")

// Status is a voice record's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// InProgress reports whether the status is not yet final.
func (s Status) InProgress() bool {
	return s == StatusPending || s == StatusProcessing
}

// VoiceRecord is one user's voice clone.
type VoiceRecord struct {
	ID              string
	UserID          string
	ProviderVoiceID string
	Status          Status
	PreviewURL      string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	// EventPending is set when the record was finalized and its outcome
	// event has not been published yet.
	EventPending bool
}

// VoiceUpdate finalizes a record. Empty PreviewURL and ErrorMessage leave
// the stored values untouched.
type VoiceUpdate struct {
	ID           string
	Status       Status
	PreviewURL   string
	ErrorMessage string
	At           time.Time
}
