package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-fprint-manager/fprint"
	"go-fprint-manager/metrics"
	"go-fprint-manager/models"
	"go-fprint-manager/ws"
)

func testEnrollSession(id string) models.EnrollmentSession {
	return models.EnrollmentSession{
		ID:        id,
		Nonce:     "aabbccdd",
		Username:  "alice",
		Finger:    models.RightIndex,
		StartedAt: time.Now(),
	}
}

// drainStream reads the stream until end-of-stream or the timeout hits.
func drainStream(t *testing.T, stream *ws.Stream) []models.EnrollEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []models.EnrollEvent
	for {
		ev, ok, err := stream.Next(ctx)
		require.NoError(t, err)
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

func TestEnrollRunner_PublishesFullEventSequence(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.script = passingScript(3, 0)
	hub := ws.NewHub()
	runner := NewEnrollRunner(fake, hub, metrics.Noop{})

	session := testEnrollSession("s1")
	require.NoError(t, runner.Start(session, 3))

	stream, ok := hub.Get("s1")
	require.True(t, ok)

	events := drainStream(t, stream)
	require.Len(t, events, 4)

	require.Equal(t, models.EnrollStarted, events[0].Code)
	require.Equal(t, 1, events[1].Stage)
	require.Equal(t, 2, events[2].Stage)

	last := events[3]
	require.Equal(t, models.EnrollCompleted, last.Code)
	require.True(t, last.Done)
	require.True(t, last.Success)
}

func TestEnrollRunner_RejectsConcurrentEnrollment(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.script = passingScript(3, 100*time.Millisecond)
	hub := ws.NewHub()
	runner := NewEnrollRunner(fake, hub, metrics.Noop{})

	require.NoError(t, runner.Start(testEnrollSession("s1"), 3))
	require.ErrorIs(t, runner.Start(testEnrollSession("s2"), 3), ErrEnrollmentInProgress)

	// once the first finishes the device is free again
	stream, _ := hub.Get("s1")
	drainStream(t, stream)

	require.Eventually(t, func() bool {
		err := runner.Start(testEnrollSession("s3"), 3)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestEnrollRunner_CancelEndsWithCancelledEvent(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.script = passingScript(10, 100*time.Millisecond)
	hub := ws.NewHub()
	runner := NewEnrollRunner(fake, hub, metrics.Noop{})

	session := testEnrollSession("s1")
	require.NoError(t, runner.Start(session, 10))
	require.True(t, runner.Cancel("s1"))

	stream, ok := hub.Get("s1")
	require.True(t, ok)
	events := drainStream(t, stream)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	require.Equal(t, models.EnrollCancelled, last.Code)
	require.True(t, last.Done)
	require.False(t, last.Success)
}

func TestEnrollRunner_CancelUnknownSession(t *testing.T) {
	runner := NewEnrollRunner(newFakeFingerprintService(), ws.NewHub(), metrics.Noop{})
	require.False(t, runner.Cancel("nope"))
}

func TestEnrollRunner_DaemonErrorBecomesTerminalEvent(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.enrollErr = fprint.ErrClaimDevice
	hub := ws.NewHub()
	runner := NewEnrollRunner(fake, hub, metrics.Noop{})

	session := testEnrollSession("s1")
	require.NoError(t, runner.Start(session, 3))

	stream, _ := hub.Get("s1")
	events := drainStream(t, stream)
	require.GreaterOrEqual(t, len(events), 2)

	last := events[len(events)-1]
	require.True(t, last.Done)
	require.False(t, last.Success)
	require.Equal(t, "claim-device", last.Code)
	require.NotEmpty(t, last.Error)
}
