package remote

import "context"

// Client is a connection to an execution service. A client is acquired
// for one logical call and closed right after it.
type Client interface {
	GetInfo(ctx context.Context, configuration string) (*ServiceInfo, error)
	ExecuteNonQuery(ctx context.Context, configuration string, payload []byte) (int, error)
	ExecuteScalar(ctx context.Context, configuration string, payload []byte) (any, error)
	ExecuteReader(ctx context.Context, configuration string, payload []byte) (*ResultSet, error)
	ExecuteBatch(ctx context.Context, configuration string, payload []byte) (int, error)
	Close() error
}

// ClientFactory acquires a client.
type ClientFactory func(ctx context.Context) (Client, error)
