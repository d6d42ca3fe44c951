// Package local connects remote data contexts to a service in the same
// process.
package local

import (
	"context"
	"sync/atomic"

	"github.com/satishbabariya/relq/runtime/remote"
	"github.com/satishbabariya/relq/service"
)

// Client calls a *service.Service directly.
type Client struct {
	svc    *service.Service
	closed atomic.Bool
}

var _ remote.Client = (*Client)(nil)

// NewClient returns a client over svc.
func NewClient(svc *service.Service) *Client {
	return &Client{svc: svc}
}

// Factory returns a ClientFactory that hands out a fresh client per call.
func Factory(svc *service.Service) remote.ClientFactory {
	return func(ctx context.Context) (remote.Client, error) {
		return NewClient(svc), nil
	}
}

func (c *Client) check() error {
	if c.closed.Load() {
		return errClosed
	}
	return nil
}

func (c *Client) GetInfo(ctx context.Context, configuration string) (*remote.ServiceInfo, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.svc.GetInfo(ctx, configuration)
}

func (c *Client) ExecuteNonQuery(ctx context.Context, configuration string, payload []byte) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	return c.svc.ExecuteNonQuery(ctx, configuration, payload)
}

func (c *Client) ExecuteScalar(ctx context.Context, configuration string, payload []byte) (any, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.svc.ExecuteScalar(ctx, configuration, payload)
}

func (c *Client) ExecuteReader(ctx context.Context, configuration string, payload []byte) (*remote.ResultSet, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.svc.ExecuteReader(ctx, configuration, payload)
}

func (c *Client) ExecuteBatch(ctx context.Context, configuration string, payload []byte) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	return c.svc.ExecuteBatch(ctx, configuration, payload)
}

// Close releases the client. The service stays open.
func (c *Client) Close() error {
	c.closed.Store(true)
	return nil
}
