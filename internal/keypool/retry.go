// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package keypool

import (
	"context"
	"errors"
	"fmt"
)

// ErrExhausted is returned when every credential failed with a retryable
// error.
var ErrExhausted = errors.New("all credentials failed")

// Do calls fn with the current credential. On a rate-limit or credential
// error it marks the credential failed, calls invalidate so cached auth for
// it is dropped, and retries with the next one, at most Size attempts.
// Fatal errors are returned at once.
func Do[T any](ctx context.Context, m *Manager, invalidate func(KeyPair), fn func(context.Context, KeyPair) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < m.Size(); attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		kp := m.Current()
		v, err := fn(ctx, kp)
		if err == nil {
			return v, nil
		}

		class := Classify(err)
		if !class.Retryable() {
			return zero, err
		}
		m.MarkKeyFailed(kp, class.String())
		if invalidate != nil {
			invalidate(kp)
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, m.Size(), lastErr)
}
