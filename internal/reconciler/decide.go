// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package reconciler

import (
	"time"

	"github.com/tomtom215/mediaforge/internal/store"
)

// Action is the outcome of Decide for one record.
type Action int

const (
	// ActionDequeue drops a record that is already final.
	ActionDequeue Action = iota
	ActionComplete
	// ActionCompleteDegraded completes without a preview URL after the
	// trigger succeeded but the URL never showed up.
	ActionCompleteDegraded
	ActionFail
	ActionWait
	ActionTrigger
)

func (a Action) String() string {
	switch a {
	case ActionDequeue:
		return "dequeue"
	case ActionComplete:
		return "complete"
	case ActionCompleteDegraded:
		return "complete_degraded"
	case ActionFail:
		return "fail"
	case ActionWait:
		return "wait"
	case ActionTrigger:
		return "trigger"
	default:
		return "unknown"
	}
}

// Input is everything Decide looks at.
type Input struct {
	Status     store.Status
	Age        time.Duration
	MaxAge     time.Duration
	PreviewURL string
	Triggered  bool
}

// Decide applies the reconciliation policy. It has no side effects.
func Decide(in Input) Action {
	switch {
	case !in.Status.InProgress():
		return ActionDequeue
	case in.PreviewURL != "":
		return ActionComplete
	case in.Age > in.MaxAge && in.Triggered:
		return ActionCompleteDegraded
	case in.Age > in.MaxAge:
		return ActionFail
	case in.Triggered:
		return ActionWait
	default:
		return ActionTrigger
	}
}
