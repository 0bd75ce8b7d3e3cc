// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediaforge/internal/testinfra"
)

func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()
	pg := testinfra.NewPostgresContainer(ctx, t)

	s, err := NewPostgresStore(ctx, PostgresConfig{DSN: pg.DSN, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx))
	return s
}

func TestPostgresStoreGetAndApply(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Create(ctx, &VoiceRecord{
			ID: id, UserID: "u1", ProviderVoiceID: "p-" + id, Status: StatusProcessing, CreatedAt: created,
		}))
	}

	rec, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, rec.Status)
	assert.False(t, rec.EventPending)
	assert.True(t, rec.CreatedAt.Equal(created))
	assert.Nil(t, rec.CompletedAt)

	at := created.Add(5 * time.Minute)
	require.NoError(t, s.ApplyUpdates(ctx, []VoiceUpdate{
		{ID: "a", Status: StatusCompleted, PreviewURL: "https://cdn.example/a.mp3", At: at},
		{ID: "b", Status: StatusFailed, ErrorMessage: "timed out", At: at},
		{ID: "c", Status: StatusCompleted, At: at},
	}))

	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, a.Status)
	assert.Equal(t, "https://cdn.example/a.mp3", a.PreviewURL)
	require.NotNil(t, a.CompletedAt)
	assert.True(t, a.CompletedAt.Equal(at))
	assert.True(t, a.EventPending, "finalized in the same transaction as the marker")

	require.NoError(t, s.MarkPublished(ctx, "a"))
	a, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, a.EventPending)

	b, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, b.Status)
	assert.Equal(t, "timed out", b.ErrorMessage)

	c, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, c.Status)
	assert.Empty(t, c.PreviewURL)
}

func TestPostgresStoreBatchIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &VoiceRecord{ID: "a", UserID: "u1", Status: StatusProcessing}))

	err := s.ApplyUpdates(ctx, []VoiceUpdate{
		{ID: "a", Status: StatusCompleted},
		{ID: "a", Status: Status("bogus")},
	})
	require.Error(t, err)

	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, a.Status, "failed batch rolls back")
}

func TestPostgresStoreNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
