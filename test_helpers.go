package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-fprint-manager/fprint"
	"go-fprint-manager/metrics"
	"go-fprint-manager/models"
	"go-fprint-manager/ws"
)

var testConfig = ServerConfig{
	Host:           "localhost",
	Port:           8081,
	UseTls:         false,
	TlsCertPath:    "",
	TlsPrivKeyPath: "",
}

const testBaseURL = "http://localhost:8081"
const testAdminUser = "admin"
const testAdminPassword = "hunter2"

func startTestServer(t *testing.T, fingerprints FingerprintService, sessions SessionStorage) *Server {
	t.Helper()

	secretPath := filepath.Join(t.TempDir(), "jwt.secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("0123456789abcdef0123456789abcdef"), 0o600))
	tokens, err := NewHMACTokenIssuer(secretPath, time.Hour)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	streams := ws.NewHub()
	testState := &ServerState{
		fingerprints:  fingerprints,
		accounts:      &fakeAccountsService{},
		sessions:      sessions,
		tokens:        tokens,
		authenticator: NewAdminAuthenticator(testAdminUser, string(hash)),
		streams:       streams,
		runner:        NewEnrollRunner(fingerprints, streams, metrics.Noop{}),
		metrics:       metrics.Noop{},
		tokenTTL:      time.Hour,
	}

	srv, err := NewServer(testState, testConfig)
	require.NoError(t, err)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("server error: %v", err)
		}
	}()

	waitUntilHealthy(t, testBaseURL+"/api/health")
	t.Cleanup(func() {
		if err := srv.Stop(); err != nil {
			t.Logf("error shutting down server: %v", err)
		}
	})
	return srv
}

func waitUntilHealthy(t *testing.T, url string) {
	t.Helper()
	const maxAttempts = 50
	for i := 0; i < maxAttempts; i++ {
		if resp, err := http.Get(url); err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server did not start in time")
}

// loginForToken logs in with the test admin credentials and returns the token.
func loginForToken(t *testing.T) string {
	t.Helper()
	request := models.LoginRequest{Username: testAdminUser, Password: testAdminPassword}
	resp, body, lr := doJSON[models.LoginResponse](t, http.MethodPost, testBaseURL+"/api/login", "", request)
	mustStatus(t, resp, http.StatusOK, body)
	require.NotEmpty(t, lr.Token)
	return lr.Token
}

func doJSON[T any](t *testing.T, method, url, token string, payload any) (*http.Response, []byte, *T) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(b)
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	var v T
	_ = json.Unmarshal(respBody, &v)

	return resp, respBody, &v
}

func mustStatus(t *testing.T, resp *http.Response, want int, body []byte) {
	t.Helper()
	require.Equalf(t, want, resp.StatusCode, "body: %s", body)
}

// test doubles

type scanStep struct {
	code  string
	done  bool
	delay time.Duration
}

// fakeFingerprintService scripts the daemon side of an enrollment.
type fakeFingerprintService struct {
	mu      sync.Mutex
	fingers map[string][]string

	info    models.DeviceInfo
	infoErr error

	script    []scanStep
	enrollErr error

	listErr   error
	deleteErr error
}

func newFakeFingerprintService() *fakeFingerprintService {
	return &fakeFingerprintService{
		fingers: map[string][]string{},
		info:    models.DeviceInfo{Name: "Test Reader", ScanType: "press", NumEnrollStages: 3},
	}
}

func (f *fakeFingerprintService) DeviceInfo(ctx context.Context) (models.DeviceInfo, error) {
	if f.infoErr != nil {
		return models.DeviceInfo{}, f.infoErr
	}
	return f.info, nil
}

func (f *fakeFingerprintService) ListFingers(ctx context.Context, username string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fingers[username]...), nil
}

func (f *fakeFingerprintService) Enroll(ctx context.Context, username, finger string, status fprint.StatusFunc) error {
	if f.enrollErr != nil {
		return f.enrollErr
	}
	for _, step := range f.script {
		if step.delay > 0 {
			select {
			case <-time.After(step.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		status(step.code, step.done)
		if step.done {
			if step.code == models.EnrollCompleted {
				f.mu.Lock()
				f.fingers[username] = append(f.fingers[username], finger)
				f.mu.Unlock()
			}
			return nil
		}
	}
	return nil
}

func (f *fakeFingerprintService) DeleteFinger(ctx context.Context, username, finger string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.fingers[username][:0]
	for _, existing := range f.fingers[username] {
		if existing != finger {
			kept = append(kept, existing)
		}
	}
	f.fingers[username] = kept
	return nil
}

func (f *fakeFingerprintService) DeleteAllFingers(ctx context.Context, username string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fingers, username)
	return nil
}

func (f *fakeFingerprintService) ClearAll(ctx context.Context, usernames []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fingers = map[string][]string{}
	return nil
}

type fakeAccountsService struct{}

func (fakeAccountsService) ListUsers(ctx context.Context) ([]models.UserOption, error) {
	return []models.UserOption{
		{Username: "alice", RealName: "Alice Example"},
		{Username: "bob"},
	}, nil
}

// passingScript finishes an enrollment after the given number of scans.
func passingScript(stages int, delay time.Duration) []scanStep {
	script := make([]scanStep, 0, stages)
	for i := 0; i < stages-1; i++ {
		script = append(script, scanStep{code: models.EnrollStagePassed, delay: delay})
	}
	return append(script, scanStep{code: models.EnrollCompleted, done: true, delay: delay})
}
