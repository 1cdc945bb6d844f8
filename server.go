package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"go-fprint-manager/fprint"
	"go-fprint-manager/metrics"
	"go-fprint-manager/models"
	"go-fprint-manager/ws"
)

const ErrorInternal = "internal"
const ERR_MARSHAL = "failed to marshal response message"
const ERR_DECODE = "failed to decode request body"
const ERR_SESSION_RETRIEVAL = "failed to get session from storage"
const ERR_INVALID_NONCE_SESSION = "invalid session or nonce"
const ERR_ENROLL_START = "failed to start enrollment"
const ERR_SESSION_REMOVAL = "failed to remove session from storage"

type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	UseTls         bool   `json:"use_tls,omitempty"`
	TlsPrivKeyPath string `json:"tls_priv_key_path,omitempty"`
	TlsCertPath    string `json:"tls_cert_path,omitempty"`
}

type ServerState struct {
	fingerprints   FingerprintService
	accounts       AccountsService
	sessions       SessionStorage
	tokens         TokenIssuer
	authenticator  Authenticator
	streams        *ws.Hub
	runner         *EnrollRunner
	metrics        metrics.Recorder
	metricsHandler http.Handler
	tokenTTL       time.Duration
}

type Server struct {
	server *http.Server
	config ServerConfig
}

func (s *Server) ListenAndServe() error {
	if s.config.UseTls {
		slog.Info("Starting server with TLS", "host", s.config.Host, "port", s.config.Port, "cert", s.config.TlsCertPath, "key", s.config.TlsPrivKeyPath)
		return s.server.ListenAndServeTLS(s.config.TlsCertPath, s.config.TlsPrivKeyPath)
	} else {
		slog.Info("Starting server without TLS", "host", s.config.Host, "port", s.config.Port)
		return s.server.ListenAndServe()
	}
}

func (s *Server) Stop() error {
	slog.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		slog.Error("Error during server shutdown", "error", err)
	} else {
		slog.Info("Server shut down successfully")
	}
	return err
}

func NewServer(state *ServerState, config ServerConfig) (*Server, error) {
	slog.Info("Creating new server", "host", config.Host, "port", config.Port, "tls", config.UseTls)
	router := mux.NewRouter()

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("Health check request received")
		err := json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		if err != nil {
			slog.Error("failed to write body to http response", "error", err)
		}
	})

	router.HandleFunc("/api/login", instrument(state, "/api/login", func(w http.ResponseWriter, r *http.Request) {
		handleLogin(state, w, r)
	})).Methods(http.MethodPost)

	router.HandleFunc("/api/device", authed(state, "/api/device", func(w http.ResponseWriter, r *http.Request) {
		handleDeviceInfo(state, w, r)
	})).Methods(http.MethodGet)

	router.HandleFunc("/api/users", authed(state, "/api/users", func(w http.ResponseWriter, r *http.Request) {
		handleListUsers(state, w, r)
	})).Methods(http.MethodGet)

	router.HandleFunc("/api/fingers/{username}", authed(state, "/api/fingers", func(w http.ResponseWriter, r *http.Request) {
		handleListFingers(state, w, r)
	})).Methods(http.MethodGet)

	router.HandleFunc("/api/enroll", authed(state, "/api/enroll", func(w http.ResponseWriter, r *http.Request) {
		handleStartEnroll(state, w, r)
	})).Methods(http.MethodPost)

	// Not instrumented: the connection is hijacked for the websocket upgrade.
	router.HandleFunc("/api/enroll/{session_id}/events", requireAuth(state, func(w http.ResponseWriter, r *http.Request) {
		handleEnrollEvents(state, w, r)
	})).Methods(http.MethodGet)

	router.HandleFunc("/api/enroll/{session_id}/cancel", authed(state, "/api/enroll/cancel", func(w http.ResponseWriter, r *http.Request) {
		handleCancelEnroll(state, w, r)
	})).Methods(http.MethodPost)

	router.HandleFunc("/api/fingers/{username}/{finger}", authed(state, "/api/fingers/delete", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteFinger(state, w, r)
	})).Methods(http.MethodDelete)

	router.HandleFunc("/api/fingers/{username}", authed(state, "/api/fingers/delete-all", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteUserFingers(state, w, r)
	})).Methods(http.MethodDelete)

	router.HandleFunc("/api/wipe", authed(state, "/api/wipe", func(w http.ResponseWriter, r *http.Request) {
		handleWipe(state, w, r)
	})).Methods(http.MethodPost)

	if state.metricsHandler != nil {
		router.Handle("/metrics", state.metricsHandler).Methods(http.MethodGet)
	}

	slog.Debug("Registered all API routes")

	addr := fmt.Sprintf("%v:%v", config.Host, config.Port)
	srv := &http.Server{
		Handler: router,
		Addr:    addr,
		// Good practice: enforce timeouts for servers you create!
		// The events route lives past these through the hijacked connection.
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	slog.Info("Server created successfully", "address", addr)
	return &Server{
		server: srv,
		config: config,
	}, nil
}

type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// instrument records request count and latency for the route.
func instrument(state *ServerState, route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		captured := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}
		next(captured, r)
		state.metrics.RecordHTTPRequest(r.Method, route, captured.status, time.Since(start))
	}
}

// requireAuth rejects requests without a valid bearer token. The token is
// taken from the Authorization header, or from the "token" query parameter
// for websocket clients that cannot set headers.
func requireAuth(state *ServerState, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondWithErr(w, http.StatusUnauthorized, "unauthorized", "Authentication required.", "missing bearer token", nil)
			return
		}
		username, err := state.tokens.Validate(token)
		if err != nil {
			respondWithErr(w, http.StatusUnauthorized, "unauthorized", "Authentication failed.", "invalid bearer token", err)
			return
		}
		slog.Debug("Request authenticated", "token_subject", username, "path", r.URL.Path)
		next(w, r)
	}
}

func authed(state *ServerState, route string, next http.HandlerFunc) http.HandlerFunc {
	return instrument(state, route, requireAuth(state, next))
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func handleLogin(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	slog.Info("Received login request")

	var request models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "validation", "Malformed login request.", ERR_DECODE, err)
		return
	}

	if err := state.authenticator.Authenticate(request.Username, request.Password); err != nil {
		respondWithErr(w, http.StatusUnauthorized, "unauthorized", "Wrong username or password.", "login rejected", err)
		return
	}

	token, err := state.tokens.Issue(request.Username)
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "Could not create a token.", "failed to issue token", err)
		return
	}

	response := models.LoginResponse{
		Token:     token,
		ExpiresIn: int(state.tokenTTL.Seconds()),
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, ERR_MARSHAL, err)
		return
	}

	slog.Info("Login successful", "username", request.Username)
}

func handleDeviceInfo(state *ServerState, w http.ResponseWriter, r *http.Request) {
	slog.Debug("Received request for device info")

	info, err := state.fingerprints.DeviceInfo(r.Context())
	if err != nil {
		respondWithFprintErr(w, "failed to read device info", err)
		return
	}

	if err := writeJSON(w, http.StatusOK, info); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, ERR_MARSHAL, err)
	}
}

func handleListUsers(state *ServerState, w http.ResponseWriter, r *http.Request) {
	slog.Debug("Received request to list users")

	users, err := state.accounts.ListUsers(r.Context())
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "Could not list users.", "failed to list users", err)
		return
	}

	if err := writeJSON(w, http.StatusOK, models.UsersResponse{Users: users}); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, ERR_MARSHAL, err)
	}
}

func handleListFingers(state *ServerState, w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	slog.Debug("Received request to list enrolled fingers", "username", username)

	names, err := state.fingerprints.ListFingers(r.Context(), username)
	if err != nil {
		respondWithFprintErr(w, "failed to list enrolled fingers", err)
		return
	}

	fingers := make([]models.Finger, 0, len(names))
	for _, name := range names {
		fingers = append(fingers, models.Finger(name))
	}
	response := models.ListFingersResponse{Username: username, Fingers: fingers}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, ERR_MARSHAL, err)
	}
}

func handleStartEnroll(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	slog.Info("Received request to start enrollment")

	var request models.EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "validation", "Malformed enrollment request.", ERR_DECODE, err)
		return
	}

	if request.Username == "" {
		respondWithErr(w, http.StatusBadRequest, "validation", "A username is required.", "enroll request without username", nil)
		return
	}
	finger, err := models.ParseFinger(request.Finger)
	if err != nil {
		respondWithErr(w, http.StatusBadRequest, "validation", "Unknown finger name.", "enroll request with bad finger", err)
		return
	}

	// Stage count is informational; a device that does not report it does
	// not block enrollment. A missing device does.
	totalStages := 0
	if info, err := state.fingerprints.DeviceInfo(r.Context()); err == nil {
		totalStages = info.NumEnrollStages
	} else {
		slog.Warn("Could not read device info before enrollment", "error", err)
		if errors.Is(err, fprint.ErrDeviceNotFound) {
			respondWithFprintErr(w, "no device to enroll on", err)
			return
		}
	}

	nonce, err := GenerateNonce(8)
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "Could not create a session.", "failed to generate nonce", err)
		return
	}

	session := models.EnrollmentSession{
		ID:        uuid.NewString(),
		Nonce:     nonce,
		Username:  request.Username,
		Finger:    finger,
		StartedAt: time.Now(),
	}

	slog.Debug("Storing enrollment session", "session_id", session.ID)
	if err := state.sessions.StoreSession(session); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "Could not store the session.", "failed to store session", err)
		return
	}

	if err := state.runner.Start(session, totalStages); err != nil {
		if removeErr := state.sessions.RemoveSession(session.ID); removeErr != nil {
			slog.Error(ERR_SESSION_REMOVAL, "session_id", session.ID, "error", removeErr)
		}
		if errors.Is(err, ErrEnrollmentInProgress) {
			respondWithErr(w, http.StatusConflict, "already-in-use", "Another enrollment is already in progress.", ERR_ENROLL_START, err)
			return
		}
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "Could not start the enrollment.", ERR_ENROLL_START, err)
		return
	}

	response := models.EnrollResponse{
		SessionID:   session.ID,
		Nonce:       session.Nonce,
		TotalStages: totalStages,
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, ERR_MARSHAL, err)
		return
	}

	slog.Info("Enrollment session started", "session_id", session.ID, "username", request.Username, "finger", finger)
}

var upgrader = websocket.Upgrader{
	// The API is token-gated; browser origins are not part of the trust model.
	CheckOrigin: func(*http.Request) bool { return true },
}

func handleEnrollEvents(state *ServerState, w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	nonce := r.URL.Query().Get("nonce")

	slog.Debug("Received request to stream enrollment events", "session_id", sessionID)

	if err := validateSession(state.sessions, sessionID, nonce); err != nil {
		respondWithErr(w, http.StatusBadRequest, "validation", "Invalid session or nonce.", ERR_SESSION_RETRIEVAL, err)
		return
	}

	stream, ok := state.streams.Get(sessionID)
	if !ok {
		respondWithErr(w, http.StatusNotFound, "not-found", "No event stream for this session.", "stream not found", nil)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	client := ws.NewClient(conn, slog.With("session_id", sessionID))
	defer client.Close()

	for {
		event, ok, err := stream.Next(r.Context())
		if err != nil {
			slog.Debug("event stream consumer gone", "session_id", sessionID, "error", err)
			return
		}
		if !ok {
			break
		}
		if err := client.SendJSON(event); err != nil {
			return
		}
	}

	// Terminal event delivered; the session is spent.
	state.streams.Remove(sessionID)
	removeEnrollSession(state.sessions, sessionID)
	slog.Info("Enrollment event stream completed", "session_id", sessionID)
}

func handleCancelEnroll(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	sessionID := mux.Vars(r)["session_id"]
	slog.Info("Received request to cancel enrollment", "session_id", sessionID)

	var request struct {
		Nonce string `json:"nonce"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "validation", "Malformed cancel request.", ERR_DECODE, err)
		return
	}

	if err := validateSession(state.sessions, sessionID, request.Nonce); err != nil {
		respondWithErr(w, http.StatusBadRequest, "validation", "Invalid session or nonce.", ERR_SESSION_RETRIEVAL, err)
		return
	}

	if !state.runner.Cancel(sessionID) {
		respondWithErr(w, http.StatusConflict, "not-running", "This enrollment is not running.", "cancel for finished enrollment", nil)
		return
	}

	if err := writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true}); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, ERR_MARSHAL, err)
		return
	}

	slog.Info("Enrollment cancelled", "session_id", sessionID)
}

func handleDeleteFinger(state *ServerState, w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	username := vars["username"]

	finger, err := models.ParseFinger(vars["finger"])
	if err != nil {
		respondWithErr(w, http.StatusBadRequest, "validation", "Unknown finger name.", "delete request with bad finger", err)
		return
	}

	slog.Info("Received request to delete fingerprint", "username", username, "finger", finger)

	if err := state.fingerprints.DeleteFinger(r.Context(), username, finger.String()); err != nil {
		respondWithFprintErr(w, "failed to delete fingerprint", err)
		return
	}
	state.metrics.RecordDeletion()

	if err := writeJSON(w, http.StatusOK, map[string]bool{"deleted": true}); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, ERR_MARSHAL, err)
		return
	}

	slog.Info("Fingerprint deleted", "username", username, "finger", finger)
}

func handleDeleteUserFingers(state *ServerState, w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	slog.Info("Received request to delete all fingerprints of user", "username", username)

	if err := state.fingerprints.DeleteAllFingers(r.Context(), username); err != nil {
		respondWithFprintErr(w, "failed to delete fingerprints", err)
		return
	}
	state.metrics.RecordDeletion()

	if err := writeJSON(w, http.StatusOK, map[string]bool{"deleted": true}); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, ERR_MARSHAL, err)
		return
	}

	slog.Info("All fingerprints deleted for user", "username", username)
}

func handleWipe(state *ServerState, w http.ResponseWriter, r *http.Request) {
	slog.Info("Received request to wipe all fingerprints of all users")

	users, err := state.accounts.ListUsers(r.Context())
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "Could not list users.", "failed to list users for wipe", err)
		return
	}

	usernames := make([]string, 0, len(users))
	for _, u := range users {
		usernames = append(usernames, u.Username)
	}

	if err := state.fingerprints.ClearAll(r.Context(), usernames); err != nil {
		respondWithFprintErr(w, "failed to wipe fingerprints", err)
		return
	}
	state.metrics.RecordDeletion()

	if err := writeJSON(w, http.StatusOK, map[string]any{"wiped": true, "users": len(usernames)}); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, ERR_MARSHAL, err)
		return
	}

	slog.Info("Wipe completed", "users", len(usernames))
}

// -----------------------------------------------------------------------------------

// validateSession validates session and nonce
func validateSession(storage SessionStorage, sessionID, nonce string) error {
	slog.Debug("Validating session and nonce", "session_id", sessionID)
	session, err := storage.RetrieveSession(sessionID)
	if err != nil {
		slog.Warn("Failed to retrieve session from storage", "session_id", sessionID, "error", err)
		return fmt.Errorf("%s: %w", ERR_SESSION_RETRIEVAL, err)
	}

	if session.Nonce == "" || session.Nonce != nonce {
		slog.Warn("Invalid nonce or session", "session_id", sessionID, "nonce_empty", session.Nonce == "", "nonce_match", session.Nonce == nonce)
		return fmt.Errorf("%s", ERR_INVALID_NONCE_SESSION)
	}

	slog.Debug("Session validation successful", "session_id", sessionID)
	return nil
}

// removeEnrollSession removes a spent session and logs a failure to do so
func removeEnrollSession(storage SessionStorage, sessionID string) {
	slog.Debug("Removing enrollment session", "session_id", sessionID)
	if err := storage.RemoveSession(sessionID); err != nil {
		slog.Debug("session already removed", "session_id", sessionID, "error", err)
	}
}

// GenerateNonce generates a random nonce
func GenerateNonce(i int) (string, error) {
	nonce := make([]byte, i)
	if _, err := rand.Read(nonce); err != nil {
		slog.Error("failed to generate nonce", "error", err)
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	hexString := hex.EncodeToString(nonce)
	slog.Debug("Nonce generated successfully", "length", i)
	return hexString, nil
}

// respondWithFprintErr maps a daemon error onto an HTTP status and the
// structured error body, instead of echoing the raw daemon text.
func respondWithFprintErr(w http.ResponseWriter, logMsg string, err error) {
	status := http.StatusInternalServerError
	code := fprint.ErrorCode(err)
	message := fprint.ErrorMessage(err)

	switch code {
	case "permission-denied":
		status = http.StatusForbidden
	case "already-in-use":
		status = http.StatusConflict
	case "device-not-found", "no-enrolled-prints":
		status = http.StatusNotFound
	case "timeout":
		status = http.StatusGatewayTimeout
	case "":
		code = ErrorInternal
		message = "Internal error."
	}

	respondWithErr(w, status, code, message, logMsg, err)
}

func respondWithErr(w http.ResponseWriter, status int, code, message, logMsg string, e error) {
	slog.Error(logMsg, "error", e, "status_code", status, "error_code", code)
	body := models.ErrorResponse{
		Error:   logMsg,
		Code:    code,
		Message: message,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		slog.Error(ERR_MARSHAL, "error", err)
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
}

func closeRequestBody(r *http.Request) {
	if err := r.Body.Close(); err != nil {
		slog.Error("failed to close request body", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	slog.Debug("Writing JSON response", "status_code", status)
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal JSON payload", "error", err)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(payload)
	if err != nil {
		slog.Error("failed to write body to http response", "error", err)
	} else {
		slog.Debug("JSON response written successfully", "status_code", status, "payload_size", len(payload))
	}
	return nil
}
