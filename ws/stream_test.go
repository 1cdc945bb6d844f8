package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-fprint-manager/models"
)

func TestStream_ReplaysEventsPublishedBeforeConsumer(t *testing.T) {
	s := NewStream()
	s.Publish(models.EnrollEvent{Code: "enroll-started"})
	s.Publish(models.EnrollEvent{Code: "enroll-stage-passed", Stage: 1})
	s.Close()

	ctx := context.Background()

	ev, ok, err := s.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "enroll-started", ev.Code)

	ev, ok, err = s.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "enroll-stage-passed", ev.Code)
	require.Equal(t, 1, ev.Stage)

	// drained and closed
	_, ok, err = s.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStream_NextBlocksUntilPublish(t *testing.T) {
	s := NewStream()

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Publish(models.EnrollEvent{Code: "enroll-completed", Done: true})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev, ok, err := s.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "enroll-completed", ev.Code)
}

func TestStream_NextHonorsContext(t *testing.T) {
	s := NewStream()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, ok, err := s.Next(ctx)
	require.False(t, ok)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStream_PublishAfterCloseIsDropped(t *testing.T) {
	s := NewStream()
	s.Close()
	s.Publish(models.EnrollEvent{Code: "enroll-stage-passed"})

	_, ok, err := s.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHub_CreateGetRemove(t *testing.T) {
	h := NewHub()

	_, ok := h.Get("nope")
	require.False(t, ok)

	created := h.Create("session-1")
	got, ok := h.Get("session-1")
	require.True(t, ok)
	require.Same(t, created, got)

	h.Remove("session-1")
	_, ok = h.Get("session-1")
	require.False(t, ok)

	// the removed stream is closed for readers
	_, ok, err := created.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHub_CreateReplacesStaleStream(t *testing.T) {
	h := NewHub()
	first := h.Create("session-1")
	second := h.Create("session-1")
	require.NotSame(t, first, second)

	got, ok := h.Get("session-1")
	require.True(t, ok)
	require.Same(t, second, got)
}
