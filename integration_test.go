package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"go-fprint-manager/fprint"
	"go-fprint-manager/models"
)

func TestLogin_Success(t *testing.T) {
	startTestServer(t, newFakeFingerprintService(), NewInMemorySessionStorage())

	token := loginForToken(t)
	require.NotEmpty(t, token)
}

func TestLogin_Fail_WrongPassword(t *testing.T) {
	startTestServer(t, newFakeFingerprintService(), NewInMemorySessionStorage())

	request := models.LoginRequest{Username: testAdminUser, Password: "not-the-password"}
	resp, body, errBody := doJSON[models.ErrorResponse](t, http.MethodPost, testBaseURL+"/api/login", "", request)
	mustStatus(t, resp, http.StatusUnauthorized, body)
	require.Equal(t, "unauthorized", errBody.Code)
}

func TestProtectedRoute_RequiresToken(t *testing.T) {
	startTestServer(t, newFakeFingerprintService(), NewInMemorySessionStorage())

	resp, body, _ := doJSON[models.ErrorResponse](t, http.MethodGet, testBaseURL+"/api/device", "", nil)
	mustStatus(t, resp, http.StatusUnauthorized, body)

	resp, body, _ = doJSON[models.ErrorResponse](t, http.MethodGet, testBaseURL+"/api/device", "not-a-jwt", nil)
	mustStatus(t, resp, http.StatusUnauthorized, body)
}

func TestDeviceInfo(t *testing.T) {
	startTestServer(t, newFakeFingerprintService(), NewInMemorySessionStorage())
	token := loginForToken(t)

	resp, body, info := doJSON[models.DeviceInfo](t, http.MethodGet, testBaseURL+"/api/device", token, nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Equal(t, "Test Reader", info.Name)
	require.Equal(t, "press", info.ScanType)
	require.Equal(t, 3, info.NumEnrollStages)
}

func TestDeviceInfo_NoDevice(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.infoErr = fprint.ErrDeviceNotFound
	startTestServer(t, fake, NewInMemorySessionStorage())
	token := loginForToken(t)

	resp, body, errBody := doJSON[models.ErrorResponse](t, http.MethodGet, testBaseURL+"/api/device", token, nil)
	mustStatus(t, resp, http.StatusNotFound, body)
	require.Equal(t, "device-not-found", errBody.Code)
}

func TestListUsers(t *testing.T) {
	startTestServer(t, newFakeFingerprintService(), NewInMemorySessionStorage())
	token := loginForToken(t)

	resp, body, users := doJSON[models.UsersResponse](t, http.MethodGet, testBaseURL+"/api/users", token, nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Len(t, users.Users, 2)
	require.Equal(t, "Alice Example (alice)", users.Users[0].Display())
	require.Equal(t, "bob", users.Users[1].Display())
}

func TestListFingers(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.fingers["alice"] = []string{"right-index-finger", "left-thumb"}
	startTestServer(t, fake, NewInMemorySessionStorage())
	token := loginForToken(t)

	resp, body, fingers := doJSON[models.ListFingersResponse](t, http.MethodGet, testBaseURL+"/api/fingers/alice", token, nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Equal(t, "alice", fingers.Username)
	require.Equal(t, []models.Finger{models.RightIndex, models.LeftThumb}, fingers.Fingers)
}

func TestStartEnroll_Fail_BadFinger(t *testing.T) {
	startTestServer(t, newFakeFingerprintService(), NewInMemorySessionStorage())
	token := loginForToken(t)

	request := models.EnrollRequest{Username: "alice", Finger: "sixth-finger"}
	resp, body, errBody := doJSON[models.ErrorResponse](t, http.MethodPost, testBaseURL+"/api/enroll", token, request)
	mustStatus(t, resp, http.StatusBadRequest, body)
	require.Equal(t, "validation", errBody.Code)
}

func TestStartEnroll_Fail_NoUsername(t *testing.T) {
	startTestServer(t, newFakeFingerprintService(), NewInMemorySessionStorage())
	token := loginForToken(t)

	request := models.EnrollRequest{Finger: "right-index-finger"}
	resp, body, _ := doJSON[models.ErrorResponse](t, http.MethodPost, testBaseURL+"/api/enroll", token, request)
	mustStatus(t, resp, http.StatusBadRequest, body)
}

func startEnroll(t *testing.T, token, username, finger string) models.EnrollResponse {
	t.Helper()
	request := models.EnrollRequest{Username: username, Finger: finger}
	resp, body, er := doJSON[models.EnrollResponse](t, http.MethodPost, testBaseURL+"/api/enroll", token, request)
	mustStatus(t, resp, http.StatusOK, body)
	require.NotEmpty(t, er.SessionID)
	require.NotEmpty(t, er.Nonce)
	return *er
}

// dialEvents connects to the event stream of a session and reads every frame
// up to and including the terminal one.
func dialEvents(t *testing.T, token string, session models.EnrollResponse) []models.EnrollEvent {
	t.Helper()
	url := "ws://localhost:8081/api/enroll/" + session.SessionID + "/events?nonce=" + session.Nonce + "&token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var events []models.EnrollEvent
	for {
		var event models.EnrollEvent
		require.NoError(t, conn.ReadJSON(&event))
		events = append(events, event)
		if event.Done {
			return events
		}
	}
}

func TestEnroll_FullFlow(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.script = passingScript(3, 0)
	storage := NewInMemorySessionStorage()
	startTestServer(t, fake, storage)
	token := loginForToken(t)

	session := startEnroll(t, token, "alice", "right-index-finger")
	require.Equal(t, 3, session.TotalStages)

	events := dialEvents(t, token, session)
	require.GreaterOrEqual(t, len(events), 4)

	require.Equal(t, models.EnrollStarted, events[0].Code)
	require.Equal(t, 3, events[0].TotalStages)

	// Scans advance the stage counter one by one.
	require.Equal(t, models.EnrollStagePassed, events[1].Code)
	require.Equal(t, 1, events[1].Stage)
	require.Equal(t, models.EnrollStagePassed, events[2].Code)
	require.Equal(t, 2, events[2].Stage)

	last := events[len(events)-1]
	require.Equal(t, models.EnrollCompleted, last.Code)
	require.True(t, last.Done)
	require.True(t, last.Success)

	// The session is single use and gone once the stream is drained.
	require.Eventually(t, func() bool {
		_, err := storage.RetrieveSession(session.SessionID)
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)

	// The new fingerprint shows up in the listing.
	resp, body, fingers := doJSON[models.ListFingersResponse](t, http.MethodGet, testBaseURL+"/api/fingers/alice", token, nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Contains(t, fingers.Fingers, models.RightIndex)
}

func TestEnroll_Fail_SecondEnrollmentConflicts(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.script = passingScript(3, 200*time.Millisecond)
	startTestServer(t, fake, NewInMemorySessionStorage())
	token := loginForToken(t)

	startEnroll(t, token, "alice", "right-index-finger")

	request := models.EnrollRequest{Username: "bob", Finger: "left-thumb"}
	resp, body, errBody := doJSON[models.ErrorResponse](t, http.MethodPost, testBaseURL+"/api/enroll", token, request)
	mustStatus(t, resp, http.StatusConflict, body)
	require.Equal(t, "already-in-use", errBody.Code)
}

func TestEnroll_Cancel(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.script = passingScript(10, 150*time.Millisecond)
	startTestServer(t, fake, NewInMemorySessionStorage())
	token := loginForToken(t)

	session := startEnroll(t, token, "alice", "right-index-finger")

	cancelURL := testBaseURL + "/api/enroll/" + session.SessionID + "/cancel"
	resp, body, _ := doJSON[map[string]bool](t, http.MethodPost, cancelURL, token, map[string]string{"nonce": session.Nonce})
	mustStatus(t, resp, http.StatusOK, body)

	events := dialEvents(t, token, session)
	last := events[len(events)-1]
	require.Equal(t, models.EnrollCancelled, last.Code)
	require.True(t, last.Done)
	require.False(t, last.Success)
}

func TestEnroll_Cancel_Fail_BadNonce(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.script = passingScript(10, 150*time.Millisecond)
	startTestServer(t, fake, NewInMemorySessionStorage())
	token := loginForToken(t)

	session := startEnroll(t, token, "alice", "right-index-finger")

	cancelURL := testBaseURL + "/api/enroll/" + session.SessionID + "/cancel"
	resp, body, _ := doJSON[models.ErrorResponse](t, http.MethodPost, cancelURL, token, map[string]string{"nonce": "bad-nonce"})
	mustStatus(t, resp, http.StatusBadRequest, body)
}

func TestEnrollEvents_Fail_BadNonce(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.script = passingScript(3, 100*time.Millisecond)
	startTestServer(t, fake, NewInMemorySessionStorage())
	token := loginForToken(t)

	session := startEnroll(t, token, "alice", "right-index-finger")

	url := "ws://localhost:8081/api/enroll/" + session.SessionID + "/events?nonce=bad-nonce&token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEnrollEvents_Fail_UnknownSession(t *testing.T) {
	startTestServer(t, newFakeFingerprintService(), NewInMemorySessionStorage())
	token := loginForToken(t)

	url := "ws://localhost:8081/api/enroll/no-such-session/events?nonce=n&token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteFinger(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.fingers["alice"] = []string{"right-index-finger", "left-thumb"}
	startTestServer(t, fake, NewInMemorySessionStorage())
	token := loginForToken(t)

	resp, body, _ := doJSON[map[string]bool](t, http.MethodDelete, testBaseURL+"/api/fingers/alice/right-index-finger", token, nil)
	mustStatus(t, resp, http.StatusOK, body)

	require.Equal(t, []string{"left-thumb"}, fake.fingers["alice"])
}

func TestDeleteFinger_Fail_PermissionDenied(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.deleteErr = fprint.ErrPermissionDenied
	startTestServer(t, fake, NewInMemorySessionStorage())
	token := loginForToken(t)

	resp, body, errBody := doJSON[models.ErrorResponse](t, http.MethodDelete, testBaseURL+"/api/fingers/alice/right-index-finger", token, nil)
	mustStatus(t, resp, http.StatusForbidden, body)
	require.Equal(t, "permission-denied", errBody.Code)
}

func TestDeleteAllFingers(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.fingers["alice"] = []string{"right-index-finger", "left-thumb"}
	startTestServer(t, fake, NewInMemorySessionStorage())
	token := loginForToken(t)

	resp, body, _ := doJSON[map[string]bool](t, http.MethodDelete, testBaseURL+"/api/fingers/alice", token, nil)
	mustStatus(t, resp, http.StatusOK, body)

	require.Empty(t, fake.fingers["alice"])
}

func TestWipe(t *testing.T) {
	fake := newFakeFingerprintService()
	fake.fingers["alice"] = []string{"right-index-finger"}
	fake.fingers["bob"] = []string{"left-thumb"}
	startTestServer(t, fake, NewInMemorySessionStorage())
	token := loginForToken(t)

	resp, body, result := doJSON[map[string]any](t, http.MethodPost, testBaseURL+"/api/wipe", token, nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Equal(t, true, (*result)["wiped"])

	require.Empty(t, fake.fingers)
}
