// Package backend is the HTTP client for the chat backend contract:
// POST /chat, GET /chat_history, POST /clear_history, plus the cookie-based
// session endpoints that guard them.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"mathchat/pkg/logger"
)

// Role tags one side of a persisted conversation turn.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

// Turn is one message of the persisted conversation, in the shape the
// history endpoint produces. Immutable once received.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ErrUnauthorized is returned when the backend answers 401; the session
// cookie is missing or expired.
var ErrUnauthorized = errors.New("backend: unauthorized")

const sessionCookie = "access_token"

// Client talks to one chat backend. The underlying http.Client carries a
// cookie jar for the session and never follows redirects (a login success is
// a redirect status, and API endpoints are expected to answer in place).
// There is deliberately no timeout: a request runs to completion or failure.
type Client struct {
	baseURL     string
	http        *http.Client
	sessionPath string
}

// New builds a Client for baseURL. When sessionPath is non-empty, a session
// cookie persisted by a previous Login is loaded from it.
func New(baseURL, sessionPath string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("building cookie jar: %w", err)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		sessionPath: sessionPath,
	}
	if sessionPath != "" {
		if err := c.loadSession(); err != nil && !os.IsNotExist(err) {
			logger.WarnCF("backend", "could not load saved session", map[string]interface{}{
				"path": sessionPath, "error": err.Error(),
			})
		}
	}
	return c, nil
}

// Send posts one user message and returns the assistant reply. The same
// value travels under both the "message" and "messages" keys for backward
// compatibility with older backends. The reply is the first non-empty of the
// "output" and "reply" response fields; any other response shape is returned
// verbatim as the reply text.
func (c *Client) Send(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"message":  text,
		"messages": text,
	})
	if err != nil {
		return "", err
	}

	rid := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", rid)

	logger.DebugCF("backend", "chat request", map[string]interface{}{"request_id": rid})

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting chat message: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}
	if err := statusErr(resp.StatusCode, "/chat"); err != nil {
		return "", err
	}

	for _, key := range []string{"output", "reply"} {
		if v := gjson.GetBytes(data, key); v.Exists() && v.String() != "" {
			return v.String(), nil
		}
	}
	return string(data), nil
}

// History fetches the persisted conversation. A response without a history
// field yields an empty slice.
func (c *Client) History(ctx context.Context) ([]Turn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chat_history", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching chat history: %w", err)
	}
	defer resp.Body.Close()

	if err := statusErr(resp.StatusCode, "/chat_history"); err != nil {
		return nil, err
	}

	var parsed struct {
		History []Turn `json:"history"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding chat history: %w", err)
	}
	return parsed.History, nil
}

// Clear wipes the persisted conversation. The response body is ignored on
// success.
func (c *Client) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/clear_history", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("clearing chat history: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return statusErr(resp.StatusCode, "/clear_history")
}

// Login authenticates with the backend's form endpoint. Success is a
// redirect status carrying the session cookie; a 200 means the backend
// re-rendered the login page with an error.
func (c *Client) Login(ctx context.Context, email, password string) error {
	form := url.Values{
		"email":    {email},
		"password": {password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login",
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting login: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return fmt.Errorf("login rejected (status %d): check email and password", resp.StatusCode)
	}
	if c.session() == "" {
		return errors.New("login: backend did not set a session cookie")
	}

	if c.sessionPath != "" {
		if err := c.saveSession(); err != nil {
			logger.WarnCF("backend", "could not persist session", map[string]interface{}{
				"path": c.sessionPath, "error": err.Error(),
			})
		}
	}
	logger.InfoCF("backend", "logged in", map[string]interface{}{"email": email})
	return nil
}

// Signup registers a new account and logs it in. The backend answers the
// signup form with a rendered page whether it accepted or not, so the
// follow-up login is what confirms the account actually exists.
func (c *Client) Signup(ctx context.Context, firstName, lastName, email, password string) error {
	form := url.Values{
		"first_name":       {firstName},
		"last_name":        {lastName},
		"email":            {email},
		"password":         {password},
		"password_confirm": {password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/signup",
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting signup: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("signup rejected (status %d)", resp.StatusCode)
	}
	if err := c.Login(ctx, email, password); err != nil {
		return fmt.Errorf("signup was not accepted by the backend: %w", err)
	}
	return nil
}

// Logout clears the server-side cookie and drops the persisted session.
func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/logout", nil)
	if err != nil {
		return err
	}
	if resp, err := c.http.Do(req); err == nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	c.http.Jar = jar

	if c.sessionPath != "" {
		if err := os.Remove(c.sessionPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing saved session: %w", err)
		}
	}
	return nil
}

// LoggedIn reports whether a session cookie is held for the backend.
func (c *Client) LoggedIn() bool {
	return c.session() != ""
}

func (c *Client) session() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == sessionCookie {
			return ck.Value
		}
	}
	return ""
}

type sessionFile struct {
	Cookie string `json:"cookie"`
}

func (c *Client) loadSession() error {
	data, err := os.ReadFile(c.sessionPath)
	if err != nil {
		return err
	}
	var s sessionFile
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s.Cookie == "" {
		return nil
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	c.http.Jar.SetCookies(u, []*http.Cookie{{
		Name:  sessionCookie,
		Value: s.Cookie,
		Path:  "/",
	}})
	return nil
}

func (c *Client) saveSession() error {
	data, err := json.Marshal(sessionFile{Cookie: c.session()})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.sessionPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(c.sessionPath, data, 0600)
}

func statusErr(code int, endpoint string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("%s: unexpected status %d", endpoint, code)
	}
}
