package models

// Enrollment status codes emitted by fprintd through the EnrollStatus signal.
// The daemon reports these as raw strings; they are mapped here to human
// messages instead of being printed verbatim.
const (
	EnrollStagePassed       = "enroll-stage-passed"
	EnrollRetryScan         = "enroll-retry-scan"
	EnrollSwipeTooShort     = "enroll-swipe-too-short"
	EnrollFingerNotCentered = "enroll-finger-not-centered"
	EnrollRemoveAndRetry    = "enroll-remove-and-retry"
	EnrollCompleted         = "enroll-completed"
	EnrollFailed            = "enroll-failed"
	EnrollDisconnected      = "enroll-disconnected"
	EnrollDataFull          = "enroll-data-full"
	EnrollTooFast           = "enroll-too-fast"
	EnrollDuplicate         = "enroll-duplicate"
	EnrollUnknownError      = "enroll-unknown-error"
	EnrollCancelled         = "enroll-cancelled"
)

type enrollFeedback struct {
	message string
	// success is only meaningful for terminal codes.
	success bool
}

var enrollFeedbackTable = map[string]enrollFeedback{
	EnrollStagePassed:       {message: "Scan accepted."},
	EnrollRetryScan:         {message: "Scan not usable, try again."},
	EnrollSwipeTooShort:     {message: "Swipe was too short, try again."},
	EnrollFingerNotCentered: {message: "Finger was not centered on the reader, try again."},
	EnrollRemoveAndRetry:    {message: "Remove your finger and try again."},
	EnrollTooFast:           {message: "Finger moved too fast, try again."},
	EnrollCompleted:         {message: "Enrollment completed.", success: true},
	EnrollFailed:            {message: "Enrollment failed."},
	EnrollDisconnected:      {message: "Fingerprint reader was disconnected."},
	EnrollDataFull:          {message: "No storage left on the fingerprint reader."},
	EnrollDuplicate:         {message: "This fingerprint is already enrolled."},
	EnrollUnknownError:      {message: "An unknown error occurred during enrollment."},
	EnrollCancelled:         {message: "Enrollment cancelled."},
}

// FeedbackMessage translates a daemon status code into a human readable
// message. Unrecognized codes are passed through unchanged so nothing the
// daemon says is lost.
func FeedbackMessage(code string) string {
	if fb, ok := enrollFeedbackTable[code]; ok {
		return fb.message
	}
	return code
}

// IsStagePassed reports whether the status code advances enrollment progress.
func IsStagePassed(code string) bool {
	return code == EnrollStagePassed
}

// IsEnrollSuccess reports whether a terminal status code means the template
// was stored.
func IsEnrollSuccess(code string) bool {
	fb, ok := enrollFeedbackTable[code]
	return ok && fb.success
}
