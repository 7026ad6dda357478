// Package apiclient talks to a running chess room server over its REST API
// and websocket.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/valyala/fasthttp"

	"github.com/park285/chess-room-server/internal/domain"
	"github.com/park285/chess-room-server/pkg/chessdto"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       uint
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max uint) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx answer. Domain carries the decoded error body
// when the server sent one.
type StatusError struct {
	Status int
	Domain chessdto.DomainError
	Body   string
}

func (e *StatusError) Error() string {
	if e.Domain.Code != "" {
		return fmt.Sprintf("chess api error: status=%d code=%s message=%s", e.Status, e.Domain.Code, e.Domain.Message)
	}
	return fmt.Sprintf("chess api error: status=%d body=%s", e.Status, truncate(e.Body, 512))
}

func (c *Client) Health(ctx context.Context) (chessdto.HealthResponse, error) {
	var out chessdto.HealthResponse
	err := c.doJSON(ctx, fasthttp.MethodGet, "/api/health", nil, &out, true)
	return out, err
}

func (c *Client) Bots(ctx context.Context) ([]domain.BotLevel, error) {
	var out []domain.BotLevel
	err := c.doJSON(ctx, fasthttp.MethodGet, "/api/bots", nil, &out, true)
	return out, err
}

// CreateRoom is not retried; a lost response would leak a room.
func (c *Client) CreateRoom(ctx context.Context, mode, botID string) (string, error) {
	var out chessdto.CreateRoomResponse
	req := chessdto.CreateRoomRequest{Mode: mode, BotID: botID}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/rooms", req, &out, false); err != nil {
		return "", err
	}
	return out.RoomID, nil
}

func (c *Client) RoomState(ctx context.Context, roomID string) (chessdto.RoomState, error) {
	var out chessdto.RoomState
	err := c.doJSON(ctx, fasthttp.MethodGet, "/api/rooms/"+url.PathEscape(roomID), nil, &out, true)
	return out, err
}

func (c *Client) Eval(ctx context.Context, fen, roomID string) (int, error) {
	q := url.Values{}
	q.Set("fen", fen)
	if roomID != "" {
		q.Set("roomId", roomID)
	}
	var out chessdto.EvalResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/eval?"+q.Encode(), nil, &out, false); err != nil {
		return 0, err
	}
	return out.EvalCP, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retryable bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := uint(1)
	if retryable && c.retryMax > 0 {
		attempts = c.retryMax
	}

	return retry.Do(
		func() error {
			if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			status := resp.StatusCode()
			if status < 200 || status >= 300 {
				se := &StatusError{Status: status, Body: string(resp.Body())}
				_ = json.Unmarshal(resp.Body(), &se.Domain)
				if !shouldRetryStatus(status) {
					return retry.Unrecoverable(se)
				}
				return se
			}
			if out != nil {
				if err := json.Unmarshal(resp.Body(), out); err != nil {
					return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
				}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
