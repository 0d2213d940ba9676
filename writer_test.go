package blobdir

import (
	"context"
	"io/fs"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldStoreWrittenContentOnFlush(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()

	w, err := d.OpenWrite(ctx, "segment.idx")
	require.NoError(t, err)

	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)

	data, err := d.AtomicRead(ctx, "segment.idx")
	require.NoError(t, err)
	assert.Empty(t, data, "nothing is stored before flush")

	require.NoError(t, w.Flush())
	data, err = d.AtomicRead(ctx, "segment.idx")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	_, err = w.Write([]byte("def"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err = d.AtomicRead(ctx, "segment.idx")
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
}

func TestShouldCommitAfterOpenContextIsCanceled(t *testing.T) {
	d := newTestDir(t)

	ctx, cancel := context.WithCancel(context.Background())
	w, err := d.OpenWrite(ctx, "seg")
	require.NoError(t, err)
	cancel()

	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	data, err := d.AtomicRead(context.Background(), "seg")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestShouldFailUsingClosedWriter(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()

	w, err := d.OpenWrite(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, fs.ErrClosed)
	assert.ErrorIs(t, w.Flush(), fs.ErrClosed)
	assert.ErrorIs(t, w.Close(), fs.ErrClosed)
}

func TestShouldNotifyWatchersOnMetadataFlush(t *testing.T) {
	d := newTestDir(t, WithMetaName("meta.json"))
	ctx := context.Background()

	var calls atomic.Int32
	h := d.Watch(func() { calls.Add(1) })
	defer h.Close()

	w, err := d.OpenWrite(ctx, "meta.json")
	require.NoError(t, err)
	assert.Zero(t, calls.Load(), "creating the file is not a write")

	_, err = w.Write([]byte(`{"segments":[]}`))
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, w.Close())
	assert.Equal(t, int32(2), calls.Load())
}
