package fprint

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const errorPrefix = "net.reactivated.Fprint.Error."

// Sentinel errors for the error names fprintd reports. Anything the daemon
// says outside this set is wrapped and passed through unchanged.
var (
	ErrPermissionDenied = errors.New("fprintd: permission denied")
	ErrAlreadyInUse     = errors.New("fprintd: device is already in use")
	ErrInternal         = errors.New("fprintd: internal daemon error")
	ErrNoEnrolledPrints = errors.New("fprintd: no fingerprints enrolled")
	ErrClaimDevice      = errors.New("fprintd: could not claim device")
	ErrPrintsNotDeleted = errors.New("fprintd: fingerprints were not deleted")
	ErrTimeout          = errors.New("fprintd: operation timed out")
	ErrDeviceNotFound   = errors.New("fprintd: no fingerprint device found")
)

var errorsByName = map[string]error{
	errorPrefix + "PermissionDenied": ErrPermissionDenied,
	errorPrefix + "AlreadyInUse":     ErrAlreadyInUse,
	errorPrefix + "Internal":         ErrInternal,
	errorPrefix + "NoEnrolledPrints": ErrNoEnrolledPrints,
	errorPrefix + "ClaimDevice":      ErrClaimDevice,
	errorPrefix + "PrintsNotDeleted": ErrPrintsNotDeleted,
	errorPrefix + "Timeout":          ErrTimeout,
	errorPrefix + "DeviceNotFound":   ErrDeviceNotFound,
}

// translateError maps a D-Bus method error onto the matching sentinel.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		if sentinel, ok := errorsByName[dbusErr.Name]; ok {
			return sentinel
		}
		return fmt.Errorf("fprintd: %s: %w", dbusErr.Name, err)
	}
	return err
}

// ErrorCode returns a stable machine readable class for an fprint error,
// or "" when the error does not originate here.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "permission-denied"
	case errors.Is(err, ErrAlreadyInUse):
		return "already-in-use"
	case errors.Is(err, ErrInternal):
		return "internal"
	case errors.Is(err, ErrNoEnrolledPrints):
		return "no-enrolled-prints"
	case errors.Is(err, ErrClaimDevice):
		return "claim-device"
	case errors.Is(err, ErrPrintsNotDeleted):
		return "prints-not-deleted"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrDeviceNotFound):
		return "device-not-found"
	}
	return ""
}

// ErrorMessage returns the human readable message for an fprint error, or ""
// when the error does not originate here.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Permission denied."
	case errors.Is(err, ErrAlreadyInUse):
		return "Device is already in use by another application."
	case errors.Is(err, ErrInternal):
		return "Internal fingerprint daemon error."
	case errors.Is(err, ErrNoEnrolledPrints):
		return "No fingerprints are enrolled."
	case errors.Is(err, ErrClaimDevice):
		return "Could not claim the fingerprint device."
	case errors.Is(err, ErrPrintsNotDeleted):
		return "Fingerprints could not be deleted."
	case errors.Is(err, ErrTimeout):
		return "The operation timed out."
	case errors.Is(err, ErrDeviceNotFound):
		return "Fingerprint device not found."
	}
	return ""
}
