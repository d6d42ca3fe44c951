package commands

import (
	"errors"

	"github.com/satishbabariya/relq/internal/config"
	"github.com/satishbabariya/relq/internal/debug"
	"github.com/satishbabariya/relq/runtime/remote"
	"github.com/satishbabariya/relq/transport/httptransport"
)

var errNoConfiguration = errors.New("no configuration selected: pass --configuration or set client.configuration")

// clientConfig applies the command line overrides to the loaded client
// settings.
func (a *app) clientConfig() config.ClientConfig {
	cc := a.cfg.Client
	if a.endpoint != "" {
		cc.Endpoint = a.endpoint
	}
	if a.configuration != "" {
		cc.Configuration = a.configuration
	}
	return cc
}

func (a *app) httpClient() (*httptransport.Client, error) {
	cc := a.clientConfig()
	return httptransport.NewClient(cc.Endpoint, httptransport.ClientOptions{
		Timeout:  cc.Timeout,
		RetryMax: cc.RetryMax,
		Logger:   debug.Component("http"),
	})
}

// dataContext opens a data context on the selected configuration. The
// mapping files in the config are registered first so the schema type the
// server reports can be instantiated locally.
func (a *app) dataContext(opts ...remote.Option) (*remote.DataContext, *httptransport.Client, error) {
	cc := a.clientConfig()
	if cc.Configuration == "" {
		return nil, nil, errNoConfiguration
	}
	if err := a.cfg.ValidateMappings(); err != nil {
		return nil, nil, err
	}
	if err := config.RegisterMappings(config.AppFs, a.cfg.Mappings); err != nil {
		return nil, nil, err
	}

	client, err := a.httpClient()
	if err != nil {
		return nil, nil, err
	}

	logger := debug.Component("remote")
	opts = append([]remote.Option{
		remote.WithLogger(logger),
		remote.WithMiddleware(remote.LoggingMiddleware(logger)),
	}, opts...)
	return remote.NewDataContext(cc.Configuration, httptransport.Factory(client), opts...), client, nil
}
