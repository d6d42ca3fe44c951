package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/satishbabariya/relq/internal/debug"
	"github.com/satishbabariya/relq/runtime/remote"
	"github.com/satishbabariya/relq/service"
)

// StatusError is a non-2xx response from the service.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps the error code back to the service's sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case CodeUnknownConfiguration:
		return service.ErrUnknownConfiguration
	case CodeUpdatesNotAllowed:
		return service.ErrUpdatesNotAllowed
	case CodeBadRequest:
		return service.ErrBadPayload
	}
	return nil
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Timeout bounds each attempt. Zero means 30 seconds.
	Timeout time.Duration
	// RetryMax is the number of retries for idempotent calls. Commands
	// that change data are never retried.
	RetryMax int
	Logger   *slog.Logger
}

// Client talks to a service exposed with NewHandler. One Client may be
// shared; Close does not affect other users.
type Client struct {
	base   *url.URL
	reads  *retryablehttp.Client
	writes *retryablehttp.Client
}

var _ remote.Client = (*Client)(nil)

// NewClient creates a client for the service at endpoint.
func NewClient(endpoint string, opts ClientOptions) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("endpoint %q must be an absolute URL", endpoint)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := debug.Or(opts.Logger, "http.client")

	newClient := func(retries int) *retryablehttp.Client {
		c := retryablehttp.NewClient()
		c.RetryMax = retries
		c.RetryWaitMin = 50 * time.Millisecond
		c.RetryWaitMax = time.Second
		c.HTTPClient.Timeout = opts.Timeout
		c.Logger = logger
		c.ErrorHandler = retryablehttp.PassthroughErrorHandler
		// Exhausted retries surface the last response rather than an error.
		c.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
			retry, _ := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
			return retry, err
		}
		return c
	}
	return &Client{
		base:   base,
		reads:  newClient(opts.RetryMax),
		writes: newClient(0),
	}, nil
}

// Factory returns a ClientFactory handing out c for every call.
func Factory(c *Client) remote.ClientFactory {
	return func(ctx context.Context) (remote.Client, error) {
		return c, nil
	}
}

func (c *Client) endpoint(configuration, op string) string {
	u := *c.base
	u.Path += "/api/v1/configurations/" + url.PathEscape(configuration) + "/" + op
	return u.String()
}

func (c *Client) do(ctx context.Context, hc *retryablehttp.Client, method, target string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequest(method, target, reader)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode, Code: CodeInternal, Message: http.StatusText(resp.StatusCode)}
		var er ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Code != "" {
			se.Code = er.Code
			se.Message = er.Message
		}
		return nil, se
	}
	return data, nil
}

// Configurations lists the configurations the service hosts.
func (c *Client) Configurations(ctx context.Context) ([]string, error) {
	u := *c.base
	u.Path += "/api/v1/configurations"
	data, err := c.do(ctx, c.reads, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("decode configurations: %w", err)
	}
	return names, nil
}

func (c *Client) GetInfo(ctx context.Context, configuration string) (*remote.ServiceInfo, error) {
	data, err := c.do(ctx, c.reads, http.MethodGet, c.endpoint(configuration, "info"), nil)
	if err != nil {
		return nil, err
	}
	var info remote.ServiceInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode service info: %w", err)
	}
	return &info, nil
}

func (c *Client) count(ctx context.Context, configuration, op string, payload []byte) (int, error) {
	data, err := c.do(ctx, c.writes, http.MethodPost, c.endpoint(configuration, op), payload)
	if err != nil {
		return 0, err
	}
	var resp CountResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, fmt.Errorf("decode %s response: %w", op, err)
	}
	return resp.Count, nil
}

func (c *Client) ExecuteNonQuery(ctx context.Context, configuration string, payload []byte) (int, error) {
	return c.count(ctx, configuration, "nonquery", payload)
}

func (c *Client) ExecuteBatch(ctx context.Context, configuration string, payload []byte) (int, error) {
	return c.count(ctx, configuration, "batch", payload)
}

func (c *Client) ExecuteScalar(ctx context.Context, configuration string, payload []byte) (any, error) {
	data, err := c.do(ctx, c.reads, http.MethodPost, c.endpoint(configuration, "scalar"), payload)
	if err != nil {
		return nil, err
	}
	return remote.DecodeScalar(data)
}

func (c *Client) ExecuteReader(ctx context.Context, configuration string, payload []byte) (*remote.ResultSet, error) {
	data, err := c.do(ctx, c.reads, http.MethodPost, c.endpoint(configuration, "reader"), payload)
	if err != nil {
		return nil, err
	}
	return remote.DecodeResultSet(data)
}

// Close is a no-op; connections are pooled by the underlying transport.
func (c *Client) Close() error {
	return nil
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.reads.HTTPClient.CloseIdleConnections()
	c.writes.HTTPClient.CloseIdleConnections()
}
