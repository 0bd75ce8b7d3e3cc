// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package eventbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// EventType identifies an event and selects its stream.
type EventType string

const (
	VoiceCreated   EventType = "voice.created"
	VoiceCompleted EventType = "voice.completed"
	VoiceFailed    EventType = "voice.failed"

	VideoRequested EventType = "video.requested"
	VideoCompleted EventType = "video.completed"
	VideoFailed    EventType = "video.failed"

	// MediaOptimize carries a worker task; see the worker package.
	MediaOptimize EventType = "media.optimize"

	// MediaDeadLetter records a task the worker gave up on.
	MediaDeadLetter EventType = "media.dead_letter"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case VoiceCreated, VoiceCompleted, VoiceFailed,
		VideoRequested, VideoCompleted, VideoFailed,
		MediaOptimize, MediaDeadLetter:
		return true
	}
	return false
}

// Event is immutable once published.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
}

// NewEvent stamps a new event with a random id and the current UTC time.
func NewEvent(t EventType, payload map[string]interface{}, source string) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Source:    source,
	}
}

// Validate checks required fields.
func (e *Event) Validate() error {
	if e.ID == "" {
		return errors.New("event id is required")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Timestamp.IsZero() {
		return errors.New("event timestamp is required")
	}
	return nil
}

// String returns a payload value as a string, or "" when absent or not a string.
func (e *Event) String(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// Marshal validates and encodes e.
func Marshal(e *Event) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Unmarshal decodes an event produced by Marshal.
func Unmarshal(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}
	return &e, nil
}

// DecodePayload re-encodes the payload into out, for handlers that want a
// typed view of it.
func (e *Event) DecodePayload(out interface{}) error {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
