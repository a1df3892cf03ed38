// Package api is the HTTP client for the Grocery Buddy backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"grocerybuddy/internal/model"
)

// Error is a non-2xx response from the backend. Message carries the
// server-provided error body text when one was present.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: status %d", e.Status)
}

// Client talks JSON over HTTP/1.1 to the backend. Authenticated calls send
// the session token as a bearer Authorization header.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SignInResult is the successful /signin response.
type SignInResult struct {
	Token    string   `json:"token"`
	GroupIDs []string `json:"groupIds"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn exchanges credentials for a session token and the caller's group
// memberships. A non-2xx response is returned as *Error carrying the
// server's error text.
func (c *Client) SignIn(ctx context.Context, email, password string) (SignInResult, error) {
	var result SignInResult
	err := c.do(ctx, http.MethodPost, "/signin", "", signInRequest{Email: email, Password: password}, &result)
	if err != nil {
		return SignInResult{}, err
	}
	return result, nil
}

// GroupIDs fetches the group memberships for the token's subject.
func (c *Client) GroupIDs(ctx context.Context, token string) ([]string, error) {
	var resp struct {
		GroupIDs []string `json:"groupIds"`
	}
	if err := c.do(ctx, http.MethodGet, "/groupIds", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.GroupIDs, nil
}

type groupScopedRequest struct {
	GroupID string `json:"groupId"`
}

// GroceryList fetches the current list snapshot for the group.
func (c *Client) GroceryList(ctx context.Context, token, groupID string) (model.GroceryList, error) {
	var resp struct {
		GroceryList model.GroceryList `json:"groceryList"`
	}
	if err := c.do(ctx, http.MethodPost, "/groceryList", token, groupScopedRequest{GroupID: groupID}, &resp); err != nil {
		return nil, err
	}
	return resp.GroceryList, nil
}

// Transactions fetches the purchase history for the group. The backend
// serves history from the same endpoint as the live list, keyed by the
// "transactions" envelope instead of "groceryList".
func (c *Client) Transactions(ctx context.Context, token, groupID string) (model.Transactions, error) {
	var resp struct {
		Transactions model.Transactions `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodPost, "/groceryList", token, groupScopedRequest{GroupID: groupID}, &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

// CheckoutRequest removes one purchased item from the list, tagging it with
// the date bucket it was bought under.
type CheckoutRequest struct {
	ItemID   string `json:"itemId"`
	Category string `json:"category"`
	DateID   string `json:"dateId"`
	GroupID  string `json:"groupId"`
}

// CheckoutItem issues the per-item delete. The backend returns 200 with no
// body on success.
func (c *Client) CheckoutItem(ctx context.Context, token string, req CheckoutRequest) error {
	return c.do(ctx, http.MethodDelete, "/itemCheckout", token, req, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readErrorMessage pulls the "error" field out of a failure body, falling
// back to the raw text when the body is not JSON.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}
