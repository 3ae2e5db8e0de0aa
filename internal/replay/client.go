package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/okian/posemon/internal/domain/types"
)

// Outcomes of a frame submission.
const (
	outcomeAccepted     = "accepted"
	outcomeDuplicate    = "duplicate"
	outcomeBackpressure = "backpressure"
	outcomeFailed       = "failed"
)

// Client talks to the service HTTP API.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	status, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, status)
	}
	return nil
}

// StartSession starts or restarts a session.
func (c *Client) StartSession(ctx context.Context, id, camera string) error {
	status, err := c.do(ctx, http.MethodPut, "/sessions/"+url.PathEscape(id), map[string]string{"camera": camera}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return fmt.Errorf("%w: start session %s: %d", ErrStatus, id, status)
	}
	return nil
}

// PostFrame submits one frame and classifies the answer.
func (c *Client) PostFrame(ctx context.Context, f *types.FrameRequest) (string, error) {
	var ack AckResponse
	status, err := c.do(ctx, http.MethodPost, "/frames", f, &ack)
	if err != nil {
		return outcomeFailed, err
	}
	switch {
	case status == http.StatusAccepted:
		return outcomeAccepted, nil
	case status == http.StatusOK && ack.Duplicate:
		return outcomeDuplicate, nil
	case status == http.StatusTooManyRequests:
		return outcomeBackpressure, nil
	}
	return outcomeFailed, fmt.Errorf("%w: post frame: %d", ErrStatus, status)
}

// Session reads the current state of a session.
func (c *Client) Session(ctx context.Context, id string) (types.Session, error) {
	var sess types.Session
	status, err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &sess)
	if err != nil {
		return types.Session{}, err
	}
	if status != http.StatusOK {
		return types.Session{}, fmt.Errorf("%w: get session %s: %d", ErrStatus, id, status)
	}
	return sess, nil
}

// EndSession ends a session.
func (c *Client) EndSession(ctx context.Context, id string) error {
	status, err := c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("%w: end session %s: %d", ErrStatus, id, status)
	}
	return nil
}

// do sends body as JSON and decodes a successful response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusBadRequest {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
