package models

import "time"

// EnrollmentSession tracks one in-progress enrollment between the start
// request and the terminal daemon event. Stored in session storage for the
// lifetime of the enrollment only; fingerprint templates themselves live in
// fprintd.
type EnrollmentSession struct {
	ID        string    `json:"id"`
	Nonce     string    `json:"nonce"`
	Username  string    `json:"username"`
	Finger    Finger    `json:"finger"`
	StartedAt time.Time `json:"started_at"`
}

// EnrollEvent is one frame of enrollment progress streamed to the client.
type EnrollEvent struct {
	// Code is the daemon status code, or "enroll-started" for the opening frame.
	Code    string `json:"code"`
	Message string `json:"message"`
	Done    bool   `json:"done"`
	// Stage counts scans accepted so far. TotalStages is 0 when the device
	// does not report the number of enroll stages.
	Stage       int  `json:"stage"`
	TotalStages int  `json:"total_stages,omitempty"`
	Success     bool `json:"success,omitempty"`
	// Error carries a failure that ended the enrollment outside the daemon's
	// own status codes, such as losing the bus connection.
	Error string `json:"error,omitempty"`
}

// EnrollStarted is the code of the synthetic opening event.
const EnrollStarted = "enroll-started"

// DeviceInfo describes the fingerprint reader in use.
type DeviceInfo struct {
	Name            string `json:"name"`
	ScanType        string `json:"scan_type"`
	NumEnrollStages int    `json:"num_enroll_stages"`
}
