// Package client is a small HTTP client for the fingerprint manager API,
// used by the fprintctl command.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"go-fprint-manager/models"
)

type Client struct {
	baseURL *url.URL
	http    *http.Client
}

func New(baseURL string) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", parsed.Scheme)
	}
	return &Client{
		baseURL: parsed,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// APIError carries the structured error body of a failed request.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d (%s)", e.Status, e.Code)
}

func (c *Client) Login(ctx context.Context, username, password string) (models.LoginResponse, error) {
	var response models.LoginResponse
	request := models.LoginRequest{Username: username, Password: password}
	err := c.doJSON(ctx, http.MethodPost, "/api/login", "", request, &response)
	return response, err
}

func (c *Client) DeviceInfo(ctx context.Context, token string) (models.DeviceInfo, error) {
	var info models.DeviceInfo
	err := c.doJSON(ctx, http.MethodGet, "/api/device", token, nil, &info)
	return info, err
}

func (c *Client) ListUsers(ctx context.Context, token string) ([]models.UserOption, error) {
	var response models.UsersResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/users", token, nil, &response)
	return response.Users, err
}

func (c *Client) ListFingers(ctx context.Context, token, username string) ([]models.Finger, error) {
	var response models.ListFingersResponse
	path := "/api/fingers/" + url.PathEscape(username)
	err := c.doJSON(ctx, http.MethodGet, path, token, nil, &response)
	return response.Fingers, err
}

func (c *Client) StartEnroll(ctx context.Context, token, username, finger string) (models.EnrollResponse, error) {
	var response models.EnrollResponse
	request := models.EnrollRequest{Username: username, Finger: finger}
	err := c.doJSON(ctx, http.MethodPost, "/api/enroll", token, request, &response)
	return response, err
}

func (c *Client) CancelEnroll(ctx context.Context, token, sessionID, nonce string) error {
	path := "/api/enroll/" + url.PathEscape(sessionID) + "/cancel"
	return c.doJSON(ctx, http.MethodPost, path, token, map[string]string{"nonce": nonce}, nil)
}

func (c *Client) DeleteFinger(ctx context.Context, token, username, finger string) error {
	path := "/api/fingers/" + url.PathEscape(username) + "/" + url.PathEscape(finger)
	return c.doJSON(ctx, http.MethodDelete, path, token, nil, nil)
}

func (c *Client) DeleteAllFingers(ctx context.Context, token, username string) error {
	path := "/api/fingers/" + url.PathEscape(username)
	return c.doJSON(ctx, http.MethodDelete, path, token, nil, nil)
}

func (c *Client) Wipe(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/wipe", token, nil, nil)
}

// FollowEnrollment connects to the event stream of an enrollment session and
// calls handle for every event until the stream ends or ctx is cancelled.
func (c *Client) FollowEnrollment(ctx context.Context, token, sessionID, nonce string, handle func(models.EnrollEvent)) error {
	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimRight(wsURL.Path, "/") + "/api/enroll/" + url.PathEscape(sessionID) + "/events"
	query := wsURL.Query()
	query.Set("nonce", nonce)
	query.Set("token", token)
	wsURL.RawQuery = query.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect to event stream: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("connect to event stream: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when the caller gives up.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event models.EnrollEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		handle(event)
		if event.Done {
			return nil
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	endpoint := c.baseURL.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody models.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Code != "" {
			return &APIError{Status: resp.StatusCode, Code: errBody.Code, Message: errBody.Message}
		}
		return &APIError{Status: resp.StatusCode, Code: "unknown"}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
