package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mathiu1/aadhavmadhav-sub000/internal/types"
)

var (
	// ErrUnauthorized is returned when the backend rejects the bearer token.
	ErrUnauthorized = errors.New("chat: unauthorized")

	// ErrNoConversation is returned for operations that need an open
	// conversation when none is open.
	ErrNoConversation = errors.New("chat: no open conversation")
)

// Client talks to the storefront backend's message API. Requests are not
// retried; callers decide whether a failure is worth repeating.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client pointing at the given backend base URL
// (e.g. "http://localhost:5000/api").
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// sendRequest is the JSON body for posting a message.
type sendRequest struct {
	RecipientID string `json:"recipientId"`
	Text        string `json:"text"`
}

// Messages fetches one page of the conversation with userID, newest page
// first. offset counts messages already loaded.
func (c *Client) Messages(ctx context.Context, userID string, limit, offset int) ([]types.ChatMessage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	endpoint := c.baseURL + "/messages/" + url.PathEscape(userID) + "?" + q.Encode()

	var msgs []types.ChatMessage
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Send posts a message and returns the resolved message with its
// server-assigned id and timestamp.
func (c *Client) Send(ctx context.Context, recipientID, text string) (types.ChatMessage, error) {
	var msg types.ChatMessage
	err := c.do(ctx, http.MethodPost, c.baseURL+"/messages", sendRequest{
		RecipientID: recipientID,
		Text:        text,
	}, &msg)
	return msg, err
}

// MarkRead marks the conversation with userID as read.
func (c *Client) MarkRead(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPut, c.baseURL+"/messages/read/"+url.PathEscape(userID), nil, nil)
}

// Delete removes a single message by id.
func (c *Client) Delete(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, c.baseURL+"/messages/"+url.PathEscape(messageID), nil, nil)
}

// UnreadCounts returns the per-conversation unread message counts.
func (c *Client) UnreadCounts(ctx context.Context) (map[string]int, error) {
	var counts map[string]int
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/messages/unread", nil, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// SupportAgent resolves the designated support agent identity.
func (c *Client) SupportAgent(ctx context.Context) (types.UserSummary, error) {
	var agent types.UserSummary
	err := c.do(ctx, http.MethodGet, c.baseURL+"/users/support-agent", nil, &agent)
	return agent, err
}

// do performs one request with bearer auth and decodes the response into
// out when it is non-nil.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%s %s returned status %d", method, endpoint, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
