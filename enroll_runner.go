package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go-fprint-manager/fprint"
	"go-fprint-manager/metrics"
	"go-fprint-manager/models"
	"go-fprint-manager/ws"
)

// ErrEnrollmentInProgress is returned when a second enrollment is started
// while one is already holding the device claim.
var ErrEnrollmentInProgress = errors.New("an enrollment is already in progress")

// EnrollRunner drives enrollments in the background. fprintd claims are
// exclusive per device, so at most one enrollment runs at a time; its
// progress is published to the session's event stream.
type EnrollRunner struct {
	service FingerprintService
	streams *ws.Hub
	metrics metrics.Recorder

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	busy    bool
}

func NewEnrollRunner(service FingerprintService, streams *ws.Hub, recorder metrics.Recorder) *EnrollRunner {
	return &EnrollRunner{
		service: service,
		streams: streams,
		metrics: recorder,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start launches the enrollment goroutine for a stored session.
// totalStages of 0 means the device did not report its stage count.
func (r *EnrollRunner) Start(session models.EnrollmentSession, totalStages int) error {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return ErrEnrollmentInProgress
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.busy = true
	r.cancels[session.ID] = cancel
	r.mu.Unlock()

	stream := r.streams.Create(session.ID)
	r.metrics.RecordEnrollStarted()

	go r.run(ctx, session, totalStages, stream)
	return nil
}

// Cancel aborts a running enrollment. It reports false when the session has
// no running enrollment.
func (r *EnrollRunner) Cancel(sessionID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[sessionID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (r *EnrollRunner) run(ctx context.Context, session models.EnrollmentSession, totalStages int, stream *ws.Stream) {
	defer r.finish(session.ID)

	log := slog.With("session_id", session.ID, "username", session.Username, "finger", session.Finger)
	log.Info("Enrollment started")

	stream.Publish(models.EnrollEvent{
		Code:        models.EnrollStarted,
		Message:     "Place your finger on the reader.",
		TotalStages: totalStages,
	})

	stage := 0
	success := false
	err := r.service.Enroll(ctx, session.Username, session.Finger.String(), func(result string, done bool) {
		r.metrics.RecordScan(result)
		if models.IsStagePassed(result) {
			stage++
		}
		ev := models.EnrollEvent{
			Code:        result,
			Message:     models.FeedbackMessage(result),
			Done:        done,
			Stage:       stage,
			TotalStages: totalStages,
		}
		if done {
			ev.Success = models.IsEnrollSuccess(result)
			success = ev.Success
		}
		log.Debug("Enroll status received", "code", result, "done", done, "stage", stage)
		stream.Publish(ev)
	})

	switch {
	case err == nil:
		log.Info("Enrollment finished", "success", success)
	case errors.Is(err, context.Canceled):
		log.Info("Enrollment cancelled")
		stream.Publish(models.EnrollEvent{
			Code:    models.EnrollCancelled,
			Message: models.FeedbackMessage(models.EnrollCancelled),
			Done:    true,
			Stage:   stage,
		})
	default:
		log.Error("Enrollment failed", "error", err)
		code := fprint.ErrorCode(err)
		message := fprint.ErrorMessage(err)
		if code == "" {
			code = models.EnrollUnknownError
			message = models.FeedbackMessage(models.EnrollUnknownError)
		}
		stream.Publish(models.EnrollEvent{
			Code:    code,
			Message: message,
			Done:    true,
			Stage:   stage,
			Error:   err.Error(),
		})
	}

	r.metrics.RecordEnrollFinished(success)
}

func (r *EnrollRunner) finish(sessionID string) {
	r.mu.Lock()
	delete(r.cancels, sessionID)
	r.busy = false
	r.mu.Unlock()

	// Closing lets a connected reader drain the terminal event and see
	// end-of-stream. The session itself is removed once the stream has been
	// consumed, or by storage TTL if nobody ever connects.
	if stream, ok := r.streams.Get(sessionID); ok {
		stream.Close()
	}
}
