// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package worker

import (
	"errors"
	"fmt"

	"github.com/tomtom215/mediaforge/internal/eventbus"
	"github.com/tomtom215/mediaforge/internal/eventlog"
	"github.com/tomtom215/mediaforge/internal/validation"
)

// Task types.
const (
	TaskImage = "image"
	TaskVideo = "video"
)

// Task is the payload of a media.optimize event.
type Task struct {
	TaskType   string `json:"task_type" validate:"required,oneof=image video"`
	RecordID   string `json:"record_id" validate:"required"`
	InputPath  string `json:"input_path" validate:"required"`
	OutputPath string `json:"output_path" validate:"required"`
}

// Payload returns t as an event payload.
func (t Task) Payload() map[string]interface{} {
	return map[string]interface{}{
		"task_type":   t.TaskType,
		"record_id":   t.RecordID,
		"input_path":  t.InputPath,
		"output_path": t.OutputPath,
	}
}

// Result tells the pool what to do with a message after its handler ran.
type Result int

const (
	// Ack acknowledges the message.
	Ack Result = iota
	// Retry leaves the message pending for the reclaim loop.
	Retry
	// Fatal acknowledges the message and dead-letters it.
	Fatal
)

func (r Result) String() string {
	switch r {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var errWrongEventType = errors.New("not a media.optimize event")

// decodeTask extracts and validates the task carried by m.
func decodeTask(m eventlog.Message) (*eventbus.Event, Task, error) {
	var task Task
	e, err := eventbus.Unmarshal([]byte(m.Fields[eventbus.FieldEvent]))
	if err != nil {
		return nil, task, err
	}
	if e.Type != eventbus.MediaOptimize {
		return e, task, fmt.Errorf("%w: %s", errWrongEventType, e.Type)
	}
	if err := e.DecodePayload(&task); err != nil {
		return e, task, err
	}
	if err := validation.ValidateStruct(task); err != nil {
		return e, task, err
	}
	return e, task, nil
}
