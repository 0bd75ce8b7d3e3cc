// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediaforge/internal/media"
	"github.com/tomtom215/mediaforge/internal/storage"
)

type fakeVideoEncoder struct {
	out []byte
	err error
	in  []byte
}

func (f *fakeVideoEncoder) Transcode(_ context.Context, data []byte) ([]byte, error) {
	f.in = data
	return f.out, f.err
}

// typedStore records the content type of every saved blob.
type typedStore struct {
	*storage.FSStore
	types map[string]string
}

func (s *typedStore) Save(ctx context.Context, path string, data []byte, contentType string) error {
	s.types[path] = contentType
	return s.FSStore.Save(ctx, path, data, contentType)
}

func newStore(t *testing.T) *storage.FSStore {
	t.Helper()
	s, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestImageHandlerWritesJPEG(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	task := imageTask("img-1")
	require.NoError(t, store.Save(ctx, task.InputPath, pngBytes(t), "image/png"))

	res, err := NewImageHandler(store, media.NewImageTranscoder(85))(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, Ack, res)

	out, err := store.Get(ctx, task.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, out[:2])
}

func TestImageHandlerMissingInputRetries(t *testing.T) {
	res, err := NewImageHandler(newStore(t), media.NewImageTranscoder(85))(context.Background(), imageTask("missing"))
	require.Error(t, err)
	assert.Equal(t, Retry, res)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestImageHandlerCorruptInputRetries(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	task := imageTask("bad")
	require.NoError(t, store.Save(ctx, task.InputPath, []byte{1, 2, 3}, "image/png"))

	res, err := NewImageHandler(store, media.NewImageTranscoder(85))(ctx, task)
	assert.Equal(t, Retry, res)
	assert.ErrorIs(t, err, media.ErrUnsupportedImage)

	_, err = store.Get(ctx, task.OutputPath)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandlerInvalidPathIsFatal(t *testing.T) {
	task := imageTask("x")
	task.InputPath = "/"
	res, err := NewImageHandler(newStore(t), media.NewImageTranscoder(85))(context.Background(), task)
	assert.Equal(t, Fatal, res)
	assert.ErrorIs(t, err, storage.ErrInvalidPath)
}

func TestVideoHandler(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	task := Task{TaskType: TaskVideo, RecordID: "v-1", InputPath: "in/v.mov", OutputPath: "out/v.mp4"}
	require.NoError(t, store.Save(ctx, task.InputPath, []byte("raw-video"), "video/quicktime"))

	enc := &fakeVideoEncoder{out: []byte("mp4")}
	res, err := NewVideoHandler(store, enc)(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, Ack, res)
	assert.Equal(t, []byte("raw-video"), enc.in)

	out, err := store.Get(ctx, task.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4"), out)

	enc.err = errors.New("ffmpeg exploded")
	res, err = NewVideoHandler(store, enc)(ctx, task)
	assert.Equal(t, Retry, res)
	assert.Error(t, err)
}

func TestHandlersSaveWithOutputContentType(t *testing.T) {
	store := &typedStore{FSStore: newStore(t), types: map[string]string{}}
	ctx := context.Background()

	img := imageTask("ct-img")
	require.NoError(t, store.FSStore.Save(ctx, img.InputPath, pngBytes(t), "image/png"))
	res, err := NewImageHandler(store, media.NewImageTranscoder(85))(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, Ack, res)
	assert.Equal(t, media.ContentTypeJPEG, store.types[img.OutputPath])

	vid := Task{TaskType: TaskVideo, RecordID: "ct-vid", InputPath: "in/c.mov", OutputPath: "out/c.mp4"}
	require.NoError(t, store.FSStore.Save(ctx, vid.InputPath, []byte("raw"), "video/quicktime"))
	res, err = NewVideoHandler(store, &fakeVideoEncoder{out: []byte("mp4")})(ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, Ack, res)
	assert.Equal(t, media.ContentTypeMP4, store.types[vid.OutputPath])
}
