package remote

import (
	"log/slog"

	"github.com/satishbabariya/relq/mapping"
)

// Option configures a DataContext.
type Option func(*DataContext)

// WithCaches shares caches between contexts. Without it a context gets
// caches of its own.
func WithCaches(c *Caches) Option {
	return func(dc *DataContext) {
		dc.caches = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(dc *DataContext) {
		dc.logger = l
	}
}

// WithContextIDPrefix sets the configuration name of the remote mapping
// schema, which becomes the context ID.
func WithContextIDPrefix(prefix string) Option {
	return func(dc *DataContext) {
		dc.prefix = prefix
	}
}

// WithInterceptor registers a lifecycle interceptor.
func WithInterceptor(i Interceptor) Option {
	return func(dc *DataContext) {
		dc.interceptor = combineInterceptors(dc.interceptor, i)
	}
}

// WithMiddleware appends transport call middleware.
func WithMiddleware(mw ...Middleware) Option {
	return func(dc *DataContext) {
		dc.middlewares = append(dc.middlewares, mw...)
	}
}

// WithMappingSchema overrides the schema reported by the service.
func WithMappingSchema(ms *mapping.MappingSchema) Option {
	return func(dc *DataContext) {
		dc.schema = ms
	}
}

// WithSqlBuilderType overrides the builder type reported by the service.
func WithSqlBuilderType(name string) Option {
	return func(dc *DataContext) {
		dc.builderType = name
	}
}

// WithSqlOptimizerType overrides the optimizer type reported by the
// service.
func WithSqlOptimizerType(name string) Option {
	return func(dc *DataContext) {
		dc.optimizerType = name
	}
}
