package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/turnwire/turnwire/pkg/types"
)

// Session mirrors the server's session payload.
type Session struct {
	ID string `json:"id"`
	types.Observable
}

// Client is a minimal coordinator API client for tests.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a client for the coordinator at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateSession creates a session and returns its id.
func (c *Client) CreateSession() (string, error) {
	var created Session
	if err := c.post("/api/sessions", nil, &created, http.StatusCreated); err != nil {
		return "", err
	}
	return created.ID, nil
}

// GetSession fetches one session's observable state.
func (c *Client) GetSession(id string) (*Session, error) {
	resp, err := c.HTTP.Get(c.BaseURL + "/api/sessions/" + id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get session: status %d", resp.StatusCode)
	}
	var s Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions lists every session.
func (c *Client) ListSessions() ([]Session, error) {
	resp, err := c.HTTP.Get(c.BaseURL + "/api/sessions")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out []Session
	return out, json.NewDecoder(resp.Body).Decode(&out)
}

// Send dispatches a prompt and returns its request id.
func (c *Client) Send(sessionID, prompt string) (string, error) {
	var sent struct {
		RequestID string `json:"requestId"`
	}
	body := map[string]string{"prompt": prompt}
	if err := c.post("/api/sessions/"+sessionID+"/send", body, &sent, http.StatusOK); err != nil {
		return "", err
	}
	return sent.RequestID, nil
}

// Reset resets the session and reports whether it applied.
func (c *Client) Reset(sessionID string) (bool, error) {
	var res struct {
		Reset bool `json:"reset"`
	}
	err := c.post("/api/sessions/"+sessionID+"/reset", nil, &res, http.StatusOK)
	return res.Reset, err
}

// DeleteSession removes the session.
func (c *Client) DeleteSession(id string) error {
	req, err := http.NewRequest(http.MethodDelete, c.BaseURL+"/api/sessions/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete session: status %d", resp.StatusCode)
	}
	return nil
}

// WaitForState polls the session until it reaches want.
func (c *Client) WaitForState(id string, want types.State, timeout time.Duration) (*Session, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s, err := c.GetSession(id)
		if err != nil {
			return nil, err
		}
		if s.State == want {
			return s, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil, fmt.Errorf("session %s never reached state %q", id, want)
}

func (c *Client) post(path string, body, out any, wantStatus int) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := c.HTTP.Post(c.BaseURL+path, "application/json", &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, detail)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
