// Package remote provides a data context that builds queries locally and
// executes them through an execution service reached over a transport.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/satishbabariya/relq/dialect"
	"github.com/satishbabariya/relq/internal/debug"
	"github.com/satishbabariya/relq/mapping"
	"github.com/satishbabariya/relq/query/builder"
)

// DefaultContextIDPrefix is the configuration name of the remote mapping
// schema unless WithContextIDPrefix says otherwise.
const DefaultContextIDPrefix = "Remote"

// DataContext is one session against a named configuration of an
// execution service. Configuration metadata and SQL strategy factories
// are resolved lazily and shared through its Caches.
//
// A DataContext is not safe for concurrent use, with the exception of
// Close, Dispose and their context variants.
type DataContext struct {
	configuration string
	prefix        string
	clients       ClientFactory
	caches        *Caches
	base          *slog.Logger
	logger        *slog.Logger
	middlewares   []Middleware
	interceptor   Interceptor
	session       uuid.UUID

	// InlineParameters renders parameter values into the statement text
	// before it is sent.
	InlineParameters bool
	// CloseAfterUse closes the context after its first completed call.
	CloseAfterUse bool

	info          *ConfigurationInfo
	schema        *mapping.MappingSchema
	contextID     string
	builderType   string
	optimizerType string
	newBuilder    func() dialect.SqlBuilder
	newOptimizer  func() dialect.SqlOptimizer

	queryHints     []string
	nextQueryHints []string

	batchDepth int
	batch      []Command

	disposed atomic.Bool
}

// NewDataContext creates a context bound to configuration. clients is
// called once per transport call.
func NewDataContext(configuration string, clients ClientFactory, opts ...Option) *DataContext {
	dc := &DataContext{
		configuration: configuration,
		prefix:        DefaultContextIDPrefix,
		clients:       clients,
		session:       uuid.New(),
	}
	for _, opt := range opts {
		opt(dc)
	}
	dc.base = debug.Or(dc.logger, "remote")
	dc.logger = dc.base.With("session", dc.session.String())
	if dc.caches == nil {
		dc.caches = NewCaches(dc.base)
	}
	return dc
}

// Session returns the unique id of this context instance.
func (c *DataContext) Session() uuid.UUID {
	return c.session
}

// Configuration returns the bound configuration name.
func (c *DataContext) Configuration() string {
	return c.configuration
}

// SetConfiguration rebinds the context. Metadata resolved for the
// previous configuration is dropped; explicit overrides are kept.
func (c *DataContext) SetConfiguration(name string) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	if c.batchDepth > 0 {
		return fmt.Errorf("set configuration: %w", ErrBatching)
	}
	if name == c.configuration {
		return nil
	}
	c.configuration = name
	c.info = nil
	c.contextID = ""
	c.newBuilder = nil
	c.newOptimizer = nil
	return nil
}

// Caches returns the caches the context resolves through.
func (c *DataContext) Caches() *Caches {
	return c.caches
}

// Disposed reports whether the context has been closed.
func (c *DataContext) Disposed() bool {
	return c.disposed.Load()
}

func (c *DataContext) displayID() string {
	id := c.contextID
	if id == "" {
		id = c.prefix
	}
	return fmt.Sprintf("%s(%s)", id, c.session)
}

// ignoredAfterClose reports whether the context is closed, in which case
// the setter op does nothing.
func (c *DataContext) ignoredAfterClose(op string) bool {
	if !c.disposed.Load() {
		return false
	}
	c.logger.Debug("ignored on closed data context", "op", op)
	return true
}

func (c *DataContext) checkDisposed() error {
	if c.disposed.Load() {
		return &DisposedError{ContextID: c.displayID()}
	}
	return nil
}

func (c *DataContext) configurationInfo(ctx context.Context) (*ConfigurationInfo, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}
	if c.info != nil {
		return c.info, nil
	}
	info, err := c.caches.Configurations.Get(ctx, c.prefix, c.configuration, c.fetchConfiguration)
	if err != nil {
		return nil, err
	}
	c.info = info
	return info, nil
}

func (c *DataContext) fetchConfiguration(ctx context.Context) (*ConfigurationInfo, error) {
	var si *ServiceInfo
	err := c.call(ctx, "GetInfo", 0, func(ctx context.Context, cl Client) error {
		var err error
		si, err = cl.GetInfo(ctx, c.configuration)
		return err
	})
	if err != nil {
		return nil, err
	}
	if si == nil {
		return nil, &ConfigurationError{Configuration: c.configuration, Reason: "service returned no info"}
	}
	if err := CheckProtocol(si.ProtocolVersion); err != nil {
		return nil, &ConfigurationError{Configuration: c.configuration, Reason: "incompatible service", Cause: err}
	}

	ms, err := mapping.NewSchemaByName(si.MappingSchemaType)
	if err != nil {
		return nil, &ConfigurationError{
			Configuration: c.configuration,
			TypeName:      si.MappingSchemaType,
			Reason:        "cannot instantiate mapping schema",
			Cause:         err,
		}
	}

	return &ConfigurationInfo{
		ServiceInfo:   si,
		MappingSchema: mapping.NewMappingSchema(c.prefix, ms),
	}, nil
}

// ServiceInfo returns the capabilities the service reported.
func (c *DataContext) ServiceInfo(ctx context.Context) (*ServiceInfo, error) {
	info, err := c.configurationInfo(ctx)
	if err != nil {
		return nil, err
	}
	return info.ServiceInfo, nil
}

// MappingSchema returns the override set with SetMappingSchema, or the
// remote schema of the configuration.
func (c *DataContext) MappingSchema(ctx context.Context) (*mapping.MappingSchema, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}
	if c.schema != nil {
		return c.schema, nil
	}
	info, err := c.configurationInfo(ctx)
	if err != nil {
		return nil, err
	}
	return info.MappingSchema, nil
}

// SetMappingSchema overrides the schema used to build queries. Ignored
// once the context is closed.
func (c *DataContext) SetMappingSchema(ms *mapping.MappingSchema) {
	if c.ignoredAfterClose("SetMappingSchema") {
		return
	}
	c.schema = ms
	c.contextID = ""
	c.newBuilder = nil
}

// ContextID identifies the kind of context for query caching. It is the
// first configuration of the mapping schema.
func (c *DataContext) ContextID(ctx context.Context) (string, error) {
	if err := c.checkDisposed(); err != nil {
		return "", err
	}
	if c.contextID != "" {
		return c.contextID, nil
	}
	ms, err := c.MappingSchema(ctx)
	if err != nil {
		return "", err
	}
	id := c.prefix
	if list := ms.ConfigurationList(); len(list) > 0 {
		id = list[0]
	}
	c.contextID = id
	return id, nil
}

// SqlProviderFlags returns the provider capabilities.
func (c *DataContext) SqlProviderFlags(ctx context.Context) (dialect.ProviderFlags, error) {
	info, err := c.configurationInfo(ctx)
	if err != nil {
		return dialect.ProviderFlags{}, err
	}
	return info.ServiceInfo.SqlProviderFlags, nil
}

// SupportedTableOptions returns the table options the provider supports.
func (c *DataContext) SupportedTableOptions(ctx context.Context) (dialect.TableOptions, error) {
	info, err := c.configurationInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.ServiceInfo.SupportedTableOptions, nil
}

// SqlBuilderType returns the builder type name in effect.
func (c *DataContext) SqlBuilderType(ctx context.Context) (string, error) {
	if c.builderType != "" {
		return c.builderType, c.checkDisposed()
	}
	info, err := c.configurationInfo(ctx)
	if err != nil {
		return "", err
	}
	return info.ServiceInfo.SqlBuilderType, nil
}

// SetSqlBuilderType overrides the builder type name. Ignored once the
// context is closed.
func (c *DataContext) SetSqlBuilderType(name string) {
	if c.ignoredAfterClose("SetSqlBuilderType") {
		return
	}
	c.builderType = name
	c.newBuilder = nil
}

// SqlOptimizerType returns the optimizer type name in effect.
func (c *DataContext) SqlOptimizerType(ctx context.Context) (string, error) {
	if c.optimizerType != "" {
		return c.optimizerType, c.checkDisposed()
	}
	info, err := c.configurationInfo(ctx)
	if err != nil {
		return "", err
	}
	return info.ServiceInfo.SqlOptimizerType, nil
}

// SetSqlOptimizerType overrides the optimizer type name. Ignored once the
// context is closed.
func (c *DataContext) SetSqlOptimizerType(name string) {
	if c.ignoredAfterClose("SetSqlOptimizerType") {
		return
	}
	c.optimizerType = name
	c.newOptimizer = nil
	c.newBuilder = nil
}

// GetSqlOptimizer returns the factory of optimizer instances for the
// configuration. Factories are shared by every context using the same
// optimizer type and provider flags.
func (c *DataContext) GetSqlOptimizer(ctx context.Context) (func() dialect.SqlOptimizer, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}
	if c.newOptimizer != nil {
		return c.newOptimizer, nil
	}

	name, err := c.SqlOptimizerType(ctx)
	if err != nil {
		return nil, err
	}
	flags, err := c.SqlProviderFlags(ctx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, &ConfigurationError{Configuration: c.configuration, Reason: "no sql optimizer type"}
	}

	fn, err := c.caches.Optimizers.Get(ctx, FactoryKey{TypeName: name, Flags: flags}, func(context.Context) (func() dialect.SqlOptimizer, error) {
		ctor, err := dialect.LookupOptimizer(name)
		if err != nil {
			return nil, &ConfigurationError{
				Configuration: c.configuration,
				TypeName:      name,
				Reason:        "cannot resolve sql optimizer",
				Cause:         err,
			}
		}
		return func() dialect.SqlOptimizer { return ctor(flags) }, nil
	})
	if err != nil {
		return nil, err
	}
	c.newOptimizer = fn
	return fn, nil
}

// CreateSqlBuilder returns the factory of builder instances for the
// configuration. The factory is shared by every context using the same
// builder type and provider flags and closes over the mapping schema and
// optimizer of the context that constructed it.
func (c *DataContext) CreateSqlBuilder(ctx context.Context) (func() dialect.SqlBuilder, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}
	if c.newBuilder != nil {
		return c.newBuilder, nil
	}

	name, err := c.SqlBuilderType(ctx)
	if err != nil {
		return nil, err
	}
	flags, err := c.SqlProviderFlags(ctx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, &ConfigurationError{Configuration: c.configuration, Reason: "no sql builder type"}
	}

	ms, err := c.MappingSchema(ctx)
	if err != nil {
		return nil, err
	}
	newOptimizer, err := c.GetSqlOptimizer(ctx)
	if err != nil {
		return nil, err
	}

	fn, err := c.caches.Builders.Get(ctx, FactoryKey{TypeName: name, Flags: flags}, func(context.Context) (func() dialect.SqlBuilder, error) {
		ctor, err := dialect.LookupBuilder(name)
		if err != nil {
			return nil, &ConfigurationError{
				Configuration: c.configuration,
				TypeName:      name,
				Reason:        "cannot resolve sql builder",
				Cause:         err,
			}
		}
		return func() dialect.SqlBuilder { return ctor(ms, newOptimizer(), flags) }, nil
	})
	if err != nil {
		return nil, err
	}
	c.newBuilder = fn
	return fn, nil
}

// NewSqlBuilder returns a fresh builder instance.
func (c *DataContext) NewSqlBuilder(ctx context.Context) (dialect.SqlBuilder, error) {
	fn, err := c.CreateSqlBuilder(ctx)
	if err != nil {
		return nil, err
	}
	return fn(), nil
}

// NewExpressionBuilder starts a query build pass over the context's
// mapping schema.
func (c *DataContext) NewExpressionBuilder(ctx context.Context) (*builder.ExpressionBuilder, error) {
	ms, err := c.MappingSchema(ctx)
	if err != nil {
		return nil, err
	}
	return builder.NewExpressionBuilder(ms, builder.WithLogger(c.logger)), nil
}

// QueryHints returns the hints added to every command.
func (c *DataContext) QueryHints() []string {
	return slices.Clone(c.queryHints)
}

// AddQueryHints adds hints sent with every command.
func (c *DataContext) AddQueryHints(hints ...string) {
	if c.ignoredAfterClose("AddQueryHints") {
		return
	}
	c.queryHints = append(c.queryHints, hints...)
}

// ClearQueryHints removes every persistent hint.
func (c *DataContext) ClearQueryHints() {
	c.queryHints = nil
}

// NextQueryHints returns the hints pending for the next command.
func (c *DataContext) NextQueryHints() []string {
	return slices.Clone(c.nextQueryHints)
}

// AddNextQueryHints adds hints sent with the next command only.
func (c *DataContext) AddNextQueryHints(hints ...string) {
	if c.ignoredAfterClose("AddNextQueryHints") {
		return
	}
	c.nextQueryHints = append(c.nextQueryHints, hints...)
}

func (c *DataContext) prepare(ctx context.Context, cmd Command) (Command, error) {
	var hints []string
	hints = append(hints, c.queryHints...)
	hints = append(hints, c.nextQueryHints...)
	hints = append(hints, cmd.QueryHints...)
	c.nextQueryHints = nil
	cmd.QueryHints = hints

	if c.InlineParameters && len(cmd.Parameters) > 0 {
		b, err := c.NewSqlBuilder(ctx)
		if err != nil {
			return cmd, err
		}
		sql, err := b.InlineParameters(cmd.SQL, cmd.Values())
		if err != nil {
			return cmd, err
		}
		cmd.SQL = sql
		cmd.Parameters = nil
	}
	return cmd, nil
}

// BeginBatch starts, or nests into, a batch. Non-query commands are
// queued until the outermost CommitBatch.
func (c *DataContext) BeginBatch() error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	c.batchDepth++
	if c.batch == nil {
		c.batch = make([]Command, 0, 8)
	}
	c.logger.Debug("begin batch", "depth", c.batchDepth)
	return nil
}

// BatchDepth returns the current batch nesting depth.
func (c *DataContext) BatchDepth() int {
	return c.batchDepth
}

// CommitBatch is CommitBatchContext with a background context.
func (c *DataContext) CommitBatch() error {
	return c.CommitBatchContext(context.Background())
}

// CommitBatchContext closes one batch level. Closing the outermost level
// submits every queued command as one payload. Pending state is cleared
// whether or not submission succeeds.
func (c *DataContext) CommitBatchContext(ctx context.Context) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	if c.batchDepth == 0 {
		return &ConfigurationError{
			Configuration: c.configuration,
			Reason:        "commit batch",
			Cause:         ErrUnbalancedCommit,
		}
	}

	c.batchDepth--
	if c.batchDepth > 0 {
		c.logger.Debug("commit nested batch", "depth", c.batchDepth)
		return nil
	}

	commands := c.batch
	c.batch = nil

	if len(commands) == 0 {
		c.logger.Debug("commit empty batch")
		return nil
	}

	payload, err := Encode(commands...)
	if err != nil {
		return err
	}
	err = c.call(ctx, "ExecuteBatch", len(commands), func(ctx context.Context, cl Client) error {
		_, err := cl.ExecuteBatch(ctx, c.configuration, payload)
		return err
	})
	c.logger.Debug("batch submitted", "commands", len(commands), "error", err)
	c.afterUse(ctx)
	return err
}

// ExecuteNonQuery runs cmd and returns the affected row count. Inside a
// batch the command is queued and -1 is returned.
func (c *DataContext) ExecuteNonQuery(ctx context.Context, cmd Command) (int, error) {
	if err := c.checkDisposed(); err != nil {
		return 0, err
	}
	cmd, err := c.prepare(ctx, cmd)
	if err != nil {
		return 0, err
	}
	if c.batchDepth > 0 {
		c.batch = append(c.batch, cmd)
		return -1, nil
	}

	payload, err := Encode(cmd)
	if err != nil {
		return 0, err
	}
	var n int
	err = c.call(ctx, "ExecuteNonQuery", 1, func(ctx context.Context, cl Client) error {
		var err error
		n, err = cl.ExecuteNonQuery(ctx, c.configuration, payload)
		return err
	})
	c.afterUse(ctx)
	return n, err
}

// ExecuteScalar runs cmd and returns the first column of the first row.
func (c *DataContext) ExecuteScalar(ctx context.Context, cmd Command) (any, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}
	cmd, err := c.prepare(ctx, cmd)
	if err != nil {
		return nil, err
	}
	payload, err := Encode(cmd)
	if err != nil {
		return nil, err
	}
	var v any
	err = c.call(ctx, "ExecuteScalar", 1, func(ctx context.Context, cl Client) error {
		var err error
		v, err = cl.ExecuteScalar(ctx, c.configuration, payload)
		return err
	})
	c.afterUse(ctx)
	return v, err
}

// ExecuteReader runs cmd and returns its materialized rows.
func (c *DataContext) ExecuteReader(ctx context.Context, cmd Command) (*ResultSet, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}
	cmd, err := c.prepare(ctx, cmd)
	if err != nil {
		return nil, err
	}
	payload, err := Encode(cmd)
	if err != nil {
		return nil, err
	}
	var rs *ResultSet
	err = c.call(ctx, "ExecuteReader", 1, func(ctx context.Context, cl Client) error {
		var err error
		rs, err = cl.ExecuteReader(ctx, c.configuration, payload)
		return err
	})
	c.afterUse(ctx)
	return rs, err
}

// call acquires a client, runs fn through the middleware chain and
// releases the client on every path.
func (c *DataContext) call(ctx context.Context, op string, commands int, fn func(context.Context, Client) error) error {
	event := &CallEvent{
		Op:            op,
		Configuration: c.configuration,
		ContextID:     c.displayID(),
		Commands:      commands,
	}
	return runMiddleware(ctx, c.middlewares, event, func() error {
		client, err := c.clients(ctx)
		if err != nil {
			return &TransportError{Op: op, Configuration: c.configuration, Cause: err}
		}
		defer func() {
			if cerr := client.Close(); cerr != nil {
				c.logger.Warn("release client", "op", op, "error", cerr)
			}
		}()
		if err := fn(ctx, client); err != nil {
			return &TransportError{Op: op, Configuration: c.configuration, Cause: err}
		}
		return nil
	})
}

func (c *DataContext) afterUse(ctx context.Context) {
	if !c.CloseAfterUse || c.batchDepth > 0 {
		return
	}
	if err := c.CloseContext(ctx); err != nil {
		c.logger.Warn("close after use", "error", err)
	}
}

// Clone returns a new context bound to the same configuration and caches.
// Interceptors implementing Cloner are cloned, others are shared. Batch
// state is not copied.
func (c *DataContext) Clone() (*DataContext, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}
	clone := &DataContext{
		configuration:    c.configuration,
		prefix:           c.prefix,
		clients:          c.clients,
		caches:           c.caches,
		base:             c.base,
		middlewares:      slices.Clone(c.middlewares),
		interceptor:      c.interceptor,
		session:          uuid.New(),
		InlineParameters: c.InlineParameters,
		CloseAfterUse:    c.CloseAfterUse,
		info:             c.info,
		schema:           c.schema,
		contextID:        c.contextID,
		builderType:      c.builderType,
		optimizerType:    c.optimizerType,
		newBuilder:       c.newBuilder,
		newOptimizer:     c.newOptimizer,
		queryHints:       slices.Clone(c.queryHints),
	}
	clone.logger = clone.base.With("session", clone.session.String())
	if cl, ok := c.interceptor.(Cloner); ok {
		clone.interceptor = cl.Clone()
	}
	return clone, nil
}

// AddInterceptor registers a lifecycle interceptor. A closed context
// never notifies again, so registration after Close is ignored.
func (c *DataContext) AddInterceptor(i Interceptor) {
	if c.ignoredAfterClose("AddInterceptor") {
		return
	}
	c.interceptor = combineInterceptors(c.interceptor, i)
}

// Interceptor returns the registered interceptor, possibly an
// *AggregatedInterceptor.
func (c *DataContext) Interceptor() Interceptor {
	return c.interceptor
}

// Use appends transport call middleware. Ignored once the context is
// closed.
func (c *DataContext) Use(mw ...Middleware) {
	if c.ignoredAfterClose("Use") {
		return
	}
	c.middlewares = append(c.middlewares, mw...)
}

// Close is CloseContext with a background context.
func (c *DataContext) Close() error {
	return c.CloseContext(context.Background())
}

// CloseContext disposes the context. The first call notifies the
// interceptor, closing then closed; later calls do nothing. A pending
// batch is discarded.
func (c *DataContext) CloseContext(ctx context.Context) error {
	if !c.disposed.CompareAndSwap(false, true) {
		return nil
	}
	if c.batchDepth > 0 {
		c.logger.Warn("closing with open batch", "depth", c.batchDepth, "discarded", len(c.batch))
	}
	c.batchDepth = 0
	c.batch = nil
	c.logger.Debug("closing data context", "configuration", c.configuration)

	if c.interceptor == nil {
		return nil
	}
	event := CloseEvent{Context: c}
	closingErr := c.interceptor.OnClosing(ctx, event)
	closedErr := c.interceptor.OnClosed(ctx, event)
	return errors.Join(closingErr, closedErr)
}

// Dispose is Close.
func (c *DataContext) Dispose() error {
	return c.CloseContext(context.Background())
}

// DisposeContext is CloseContext.
func (c *DataContext) DisposeContext(ctx context.Context) error {
	return c.CloseContext(ctx)
}
