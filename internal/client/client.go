package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stack-queue-parking/internal/parking"
)

const (
	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// ErrCommunication means the service could not be reached or answered with
// something that is not a parking response.
var ErrCommunication = errors.New("communication error")

// ServerError is a non-2xx response.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// DomainError is a 2xx response that carries an error instead of a state,
// such as parking in a full section.
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Client talks to a parking service over HTTP. It implements parking.Operator.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the default traced client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout. It applies to a copy of the
// HTTP client, whichever order the options come in.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c
}

func (c *Client) State(ctx context.Context) (parking.State, error) {
	return c.do(ctx, http.MethodGet, "/"+parking.OpState, nil)
}

// View fetches the state padded to spots entries per section.
func (c *Client) View(ctx context.Context, spots int) (parking.State, error) {
	return c.do(ctx, http.MethodGet, "/"+parking.OpState+"?max_spots="+strconv.Itoa(spots), nil)
}

func (c *Client) ParkStack(ctx context.Context, req parking.ParkRequest) (parking.State, error) {
	return c.do(ctx, http.MethodPost, "/"+parking.OpParkStack, &req)
}

func (c *Client) ParkQueue(ctx context.Context, req parking.ParkRequest) (parking.State, error) {
	return c.do(ctx, http.MethodPost, "/"+parking.OpParkQueue, &req)
}

func (c *Client) RemoveStack(ctx context.Context) (parking.State, error) {
	return c.do(ctx, http.MethodPost, "/"+parking.OpRemoveStack, nil)
}

func (c *Client) RemoveQueue(ctx context.Context) (parking.State, error) {
	return c.do(ctx, http.MethodPost, "/"+parking.OpRemoveQueue, nil)
}

func (c *Client) ClearAll(ctx context.Context) (parking.State, error) {
	return c.do(ctx, http.MethodPost, "/"+parking.OpClearAll, nil)
}

// response is either a state or an error; the service never sends both.
type response struct {
	Error string `json:"error"`
	parking.State
}

func (c *Client) do(ctx context.Context, method, path string, body *parking.ParkRequest) (parking.State, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return parking.State{}, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return parking.State{}, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return parking.State{}, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return parking.State{}, fmt.Errorf("%w: read body: %v", ErrCommunication, err)
	}

	var out response
	decodeErr := json.Unmarshal(data, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return parking.State{}, &ServerError{StatusCode: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return parking.State{}, fmt.Errorf("%w: decode body: %v", ErrCommunication, decodeErr)
	}
	if out.Error != "" {
		return parking.State{}, &DomainError{Message: out.Error}
	}
	return out.State, nil
}
