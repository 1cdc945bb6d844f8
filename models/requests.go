package models

// LoginRequest authenticates the management client.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

// EnrollRequest starts an enrollment session for one finger of one user.
type EnrollRequest struct {
	Username string `json:"username"`
	Finger   string `json:"finger"`
}

type EnrollResponse struct {
	SessionID string `json:"session_id"`
	Nonce     string `json:"nonce"`
	// TotalStages is 0 when the device does not report it.
	TotalStages int `json:"total_stages,omitempty"`
}

type ListFingersResponse struct {
	Username string   `json:"username"`
	Fingers  []Finger `json:"fingers"`
}

type UsersResponse struct {
	Users []UserOption `json:"users"`
}

// ErrorResponse is the uniform error body. Code is a stable machine
// readable class, Message is safe to show to a person.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
