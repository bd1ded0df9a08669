// Package api is the JSON-over-HTTP client for the remote session service.
// It performs no merging or caching; callers feed its results through the
// store's reconciliation.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/strandkit/strand/internal/core"
)

// Client talks to one server endpoint. The zero HTTPClient falls back to a
// client with a 30 second timeout; the event stream does not go through
// Client (see internal/stream), so a timeout here is safe.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// StatusError is returned when the server responds with a non-2xx status.
type StatusError struct {
	Status  int
	Type    string
	Message string
}

func (err *StatusError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("api: HTTP %d: %s: %s", err.Status, err.Type, err.Message)
	}
	return fmt.Sprintf("api: HTTP %d: %s", err.Status, err.Message)
}

// IsTransient reports whether the failure is worth retrying (5xx).
func (err *StatusError) IsTransient() bool {
	return err.Status >= 500
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// do issues one JSON request and decodes the response body into out when
// out is non-nil. Non-2xx responses become a *StatusError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient().Do(request)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return readStatusError(response)
	}

	if out == nil {
		io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s response: %w", method, path, err)
	}
	return nil
}

// readStatusError parses the common error body {"error":{"type","message"}},
// falling back to the raw body text when the shape does not match.
func readStatusError(response *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))

	var wire struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Error.Message != "" {
		return &StatusError{
			Status:  response.StatusCode,
			Type:    wire.Error.Type,
			Message: wire.Error.Message,
		}
	}

	return &StatusError{
		Status:  response.StatusCode,
		Message: string(body),
	}
}

// ListFilters narrows a session list request.
type ListFilters struct {
	Search   string
	Archived bool
	Limit    int
}

// SessionList is the session list response: one page of sessions plus the
// directory's total session count.
type SessionList struct {
	Sessions []core.Session `json:"sessions"`
	Total    int            `json:"total"`
}

// List fetches sessions for a directory.
func (c *Client) List(ctx context.Context, directory string, filters ListFilters) (SessionList, error) {
	query := url.Values{"directory": {directory}}
	if filters.Search != "" {
		query.Set("search", filters.Search)
	}
	if filters.Archived {
		query.Set("archived", "true")
	}
	if filters.Limit > 0 {
		query.Set("limit", strconv.Itoa(filters.Limit))
	}

	var list SessionList
	if err := c.do(ctx, http.MethodGet, "/session", query, nil, &list); err != nil {
		return SessionList{}, err
	}
	return list, nil
}

// Get fetches a single session.
func (c *Client) Get(ctx context.Context, sessionID core.SessionID) (core.Session, error) {
	var session core.Session
	err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(string(sessionID)), nil, nil, &session)
	return session, err
}

// MessageList is one page of a session transcript, newest messages last,
// plus the session's total message count for pagination.
type MessageList struct {
	Messages []core.MessageWithParts `json:"messages"`
	Total    int                     `json:"total"`
}

// Messages fetches up to limit most recent messages (with parts) for a
// session. Zero limit means the server default.
func (c *Client) Messages(ctx context.Context, directory string, sessionID core.SessionID, limit int) (MessageList, error) {
	query := url.Values{"directory": {directory}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var list MessageList
	err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(string(sessionID))+"/message", query, nil, &list)
	return list, err
}

// CreateRequest creates a session; ParentID forks an existing one.
type CreateRequest struct {
	Directory string         `json:"directory"`
	ParentID  core.SessionID `json:"parentID,omitempty"`
	Title     string         `json:"title,omitempty"`
}

func (c *Client) Create(ctx context.Context, req CreateRequest) (core.Session, error) {
	var session core.Session
	err := c.do(ctx, http.MethodPost, "/session", nil, req, &session)
	return session, err
}

// UpdateRequest mutates session metadata. Nil fields are left untouched.
type UpdateRequest struct {
	Title    *string `json:"title,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
}

func (c *Client) Update(ctx context.Context, sessionID core.SessionID, req UpdateRequest) (core.Session, error) {
	var session core.Session
	err := c.do(ctx, http.MethodPatch, "/session/"+url.PathEscape(string(sessionID)), nil, req, &session)
	return session, err
}

// Delete removes a session server-side. The server cascades to child
// sessions; the store mirrors that locally.
func (c *Client) Delete(ctx context.Context, sessionID core.SessionID) error {
	return c.do(ctx, http.MethodDelete, "/session/"+url.PathEscape(string(sessionID)), nil, nil, nil)
}

// Revert moves the session's revert marker to messageID.
func (c *Client) Revert(ctx context.Context, sessionID core.SessionID, messageID core.MessageID) (core.Session, error) {
	body := map[string]core.MessageID{"messageID": messageID}
	var session core.Session
	err := c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(string(sessionID))+"/revert", nil, body, &session)
	return session, err
}

// Unrevert clears the session's revert marker.
func (c *Client) Unrevert(ctx context.Context, sessionID core.SessionID) (core.Session, error) {
	var session core.Session
	err := c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(string(sessionID))+"/unrevert", nil, nil, &session)
	return session, err
}

// Fork creates a child session branching at messageID.
func (c *Client) Fork(ctx context.Context, sessionID core.SessionID, messageID core.MessageID) (core.Session, error) {
	body := map[string]core.MessageID{"messageID": messageID}
	var session core.Session
	err := c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(string(sessionID))+"/fork", nil, body, &session)
	return session, err
}

// Abort stops the session's active generation, if any.
func (c *Client) Abort(ctx context.Context, sessionID core.SessionID) error {
	return c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(string(sessionID))+"/abort", nil, nil, nil)
}

// Share publishes the session and returns it with share info set.
func (c *Client) Share(ctx context.Context, sessionID core.SessionID) (core.Session, error) {
	var session core.Session
	err := c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(string(sessionID))+"/share", nil, nil, &session)
	return session, err
}

func (c *Client) Unshare(ctx context.Context, sessionID core.SessionID) (core.Session, error) {
	var session core.Session
	err := c.do(ctx, http.MethodDelete, "/session/"+url.PathEscape(string(sessionID))+"/share", nil, nil, &session)
	return session, err
}

// Summarize asks the server to compact the session history.
func (c *Client) Summarize(ctx context.Context, sessionID core.SessionID) error {
	return c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(string(sessionID))+"/summarize", nil, nil, nil)
}

// Permissions lists all outstanding permission requests.
func (c *Client) Permissions(ctx context.Context) ([]core.Permission, error) {
	var list []core.Permission
	err := c.do(ctx, http.MethodGet, "/permission", nil, nil, &list)
	return list, err
}

// Respond resolves one permission request.
func (c *Client) Respond(ctx context.Context, sessionID core.SessionID, permissionID core.PermissionID, response core.PermissionResponse) error {
	body := map[string]core.PermissionResponse{"response": response}
	path := "/session/" + url.PathEscape(string(sessionID)) + "/permission/" + url.PathEscape(string(permissionID))
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}
