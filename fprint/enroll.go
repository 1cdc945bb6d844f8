package fprint

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// releaseTimeout bounds the Release/EnrollStop calls made while unwinding,
// which must run even when the caller's context is already cancelled.
const releaseTimeout = 5 * time.Second

// StatusFunc receives each EnrollStatus the daemon emits during Enroll.
type StatusFunc func(result string, done bool)

// Enroll runs one complete enrollment: claim the device, start enrollment of
// the finger, forward every EnrollStatus to status until the daemon reports
// done, then stop and release. Cancelling ctx aborts the enrollment; the
// device is stopped and released on every path once the claim succeeded.
func (d *Device) Enroll(ctx context.Context, username, finger string, status StatusFunc) error {
	if err := d.Claim(ctx, username); err != nil {
		return fmt.Errorf("claim device: %w", err)
	}
	defer d.releaseQuietly()

	events, stop, err := d.WatchEnrollStatus()
	if err != nil {
		return fmt.Errorf("subscribe to enroll status: %w", err)
	}
	defer stop()

	if err := d.EnrollStart(ctx, finger); err != nil {
		return fmt.Errorf("start enrollment: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			d.enrollStopQuietly()
			return ctx.Err()
		case st, ok := <-events:
			if !ok {
				d.enrollStopQuietly()
				return fmt.Errorf("enroll status stream closed unexpectedly")
			}
			status(st.Result, st.Done)
			if st.Done {
				d.enrollStopQuietly()
				return nil
			}
		}
	}
}

// DeleteFinger removes one enrolled finger for the user. A release failure is
// only surfaced when the deletion itself succeeded.
func (d *Device) DeleteFinger(ctx context.Context, username, finger string) error {
	if err := d.Claim(ctx, username); err != nil {
		return fmt.Errorf("claim device: %w", err)
	}
	delErr := d.DeleteEnrolledFinger(ctx, finger)
	relErr := d.Release(ctx)
	if delErr != nil {
		return delErr
	}
	return relErr
}

// ClearAll deletes every enrolled finger of every given user. Failures for
// one user do not stop the sweep; the last error seen is returned.
func (d *Device) ClearAll(ctx context.Context, usernames []string) error {
	var lastErr error
	for _, username := range usernames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.Claim(ctx, username); err != nil {
			lastErr = err
			continue
		}

		fingers, err := d.ListEnrolledFingers(ctx, username)
		if err != nil {
			lastErr = err
		} else {
			for _, finger := range fingers {
				if err := d.DeleteEnrolledFinger(ctx, finger); err != nil {
					lastErr = err
				}
			}
		}

		if err := d.Release(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (d *Device) releaseQuietly() {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := d.Release(ctx); err != nil {
		slog.Warn("failed to release fingerprint device", "path", d.path, "error", err)
	}
}

func (d *Device) enrollStopQuietly() {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := d.EnrollStop(ctx); err != nil {
		slog.Debug("enroll stop returned error", "path", d.path, "error", err)
	}
}
