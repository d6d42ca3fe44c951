package remote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/satishbabariya/relq/dialect"
	"github.com/satishbabariya/relq/mapping"
	"github.com/satishbabariya/relq/query/expr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const northwindSchemaType = "northwind-remote-test"

func init() {
	ms := mapping.NewMappingSchema("Northwind")
	b := mapping.NewBuilder(ms)
	b.Entity("Customer").Table("customers")
	b.Entity("Order").Table("orders").
		HasOne("Customer", "Customer", []string{"CustomerID"}, []string{"ID"}, mapping.Nullable(true))
	if err := b.Build(); err != nil {
		panic(err)
	}
	mapping.RegisterSchema(northwindSchemaType, ms)
}

type fakeService struct {
	mu       sync.Mutex
	info     ServiceInfo
	infoErr  error
	execErr  error
	delay    time.Duration
	batches  [][]byte
	commands [][]byte

	infoCalls atomic.Int32
	acquired  atomic.Int32
	released  atomic.Int32
}

func newFakeService() *fakeService {
	return &fakeService{
		info: ServiceInfo{
			MappingSchemaType: northwindSchemaType,
			SqlBuilderType:    "postgres",
			SqlOptimizerType:  dialect.BasicOptimizerType,
			SqlProviderFlags:  dialect.DefaultFlags("postgres"),
			ProtocolVersion:   ProtocolVersion,
		},
	}
}

func (s *fakeService) clients() ClientFactory {
	return func(ctx context.Context) (Client, error) {
		s.acquired.Add(1)
		return &fakeClient{s: s}, nil
	}
}

func (s *fakeService) batchPayloads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.batches...)
}

type fakeClient struct {
	s *fakeService
}

func (c *fakeClient) GetInfo(ctx context.Context, configuration string) (*ServiceInfo, error) {
	c.s.infoCalls.Add(1)
	if c.s.delay > 0 {
		select {
		case <-time.After(c.s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.s.infoErr != nil {
		return nil, c.s.infoErr
	}
	info := c.s.info
	return &info, nil
}

func (c *fakeClient) ExecuteNonQuery(ctx context.Context, configuration string, payload []byte) (int, error) {
	if c.s.execErr != nil {
		return 0, c.s.execErr
	}
	c.s.mu.Lock()
	c.s.commands = append(c.s.commands, payload)
	c.s.mu.Unlock()
	return 1, nil
}

func (c *fakeClient) ExecuteScalar(ctx context.Context, configuration string, payload []byte) (any, error) {
	if c.s.execErr != nil {
		return nil, c.s.execErr
	}
	return int64(42), nil
}

func (c *fakeClient) ExecuteReader(ctx context.Context, configuration string, payload []byte) (*ResultSet, error) {
	if c.s.execErr != nil {
		return nil, c.s.execErr
	}
	return &ResultSet{Columns: []string{"ID"}, Rows: [][]any{{int64(1)}}}, nil
}

func (c *fakeClient) ExecuteBatch(ctx context.Context, configuration string, payload []byte) (int, error) {
	if c.s.execErr != nil {
		return 0, c.s.execErr
	}
	c.s.mu.Lock()
	c.s.batches = append(c.s.batches, payload)
	c.s.mu.Unlock()
	return 1, nil
}

func (c *fakeClient) Close() error {
	c.s.released.Add(1)
	return nil
}

type closeCounter struct {
	closing atomic.Int32
	closed  atomic.Int32
	order   []string
}

func (c *closeCounter) OnClosing(ctx context.Context, e CloseEvent) error {
	c.closing.Add(1)
	c.order = append(c.order, "closing")
	return nil
}

func (c *closeCounter) OnClosed(ctx context.Context, e CloseEvent) error {
	c.closed.Add(1)
	c.order = append(c.order, "closed")
	return nil
}

type cloneableCounter struct {
	closeCounter
	clones int
}

func (c *cloneableCounter) Clone() Interceptor {
	c.clones++
	return &cloneableCounter{}
}

func TestBatch_NestedSubmitsOnePayload(t *testing.T) {
	svc := newFakeService()
	dc := NewDataContext("Northwind", svc.clients())
	ctx := context.Background()

	require.NoError(t, dc.BeginBatch())
	require.NoError(t, dc.BeginBatch())

	n, err := dc.ExecuteNonQuery(ctx, NewCommand("INSERT INTO orders (ID) VALUES ($1)", 1))
	require.NoError(t, err)
	assert.Equal(t, -1, n, "queued commands report no row count")

	require.NoError(t, dc.CommitBatch())
	assert.Empty(t, svc.batchPayloads(), "inner commit does not submit")
	assert.Equal(t, 1, dc.BatchDepth())

	require.NoError(t, dc.CommitBatch())
	payloads := svc.batchPayloads()
	require.Len(t, payloads, 1)

	p, err := Decode(payloads[0])
	require.NoError(t, err)
	require.Len(t, p.Commands, 1)
	assert.Equal(t, "INSERT INTO orders (ID) VALUES ($1)", p.Commands[0].SQL)
	assert.Equal(t, []any{int64(1)}, p.Commands[0].Values())
	assert.Equal(t, 0, dc.BatchDepth())
}

func TestBatch_PreservesOrder(t *testing.T) {
	svc := newFakeService()
	dc := NewDataContext("Northwind", svc.clients())
	ctx := context.Background()

	require.NoError(t, dc.BeginBatch())
	for _, sql := range []string{"DELETE FROM a", "DELETE FROM b", "DELETE FROM c"} {
		_, err := dc.ExecuteNonQuery(ctx, NewCommand(sql))
		require.NoError(t, err)
	}
	require.NoError(t, dc.CommitBatchContext(ctx))

	p, err := Decode(svc.batchPayloads()[0])
	require.NoError(t, err)
	var got []string
	for _, c := range p.Commands {
		got = append(got, c.SQL)
	}
	assert.Equal(t, []string{"DELETE FROM a", "DELETE FROM b", "DELETE FROM c"}, got)
}

func TestBatch_UnbalancedCommit(t *testing.T) {
	dc := NewDataContext("Northwind", newFakeService().clients())

	err := dc.CommitBatch()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnbalancedCommit))
	assert.True(t, IsConfiguration(err))
}

func TestBatch_EmptyCommitSubmitsNothing(t *testing.T) {
	svc := newFakeService()
	dc := NewDataContext("Northwind", svc.clients())

	require.NoError(t, dc.BeginBatch())
	require.NoError(t, dc.CommitBatch())
	assert.Empty(t, svc.batchPayloads())
	assert.Zero(t, svc.acquired.Load())
}

func TestBatch_TransportErrorReleasesClientAndClearsState(t *testing.T) {
	svc := newFakeService()
	boom := errors.New("connection reset")
	svc.execErr = boom
	dc := NewDataContext("Northwind", svc.clients())
	ctx := context.Background()

	require.NoError(t, dc.BeginBatch())
	_, err := dc.ExecuteNonQuery(ctx, NewCommand("UPDATE orders SET x = 1"))
	require.NoError(t, err)

	err = dc.CommitBatchContext(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "ExecuteBatch", te.Op)

	assert.Equal(t, svc.acquired.Load(), svc.released.Load(), "every client is released")
	assert.Equal(t, 0, dc.BatchDepth())

	// A new batch starts clean.
	svc.execErr = nil
	require.NoError(t, dc.BeginBatch())
	require.NoError(t, dc.CommitBatch())
	assert.Empty(t, svc.batchPayloads())
}

func TestExecute_OutsideBatch(t *testing.T) {
	svc := newFakeService()
	dc := NewDataContext("Northwind", svc.clients())
	ctx := context.Background()

	n, err := dc.ExecuteNonQuery(ctx, NewCommand("DELETE FROM orders"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, err := dc.ExecuteScalar(ctx, NewCommand("SELECT COUNT(*) FROM orders"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	rs, err := dc.ExecuteReader(ctx, NewCommand("SELECT ID FROM orders"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ID"}, rs.Columns)

	assert.Equal(t, int32(3), svc.acquired.Load())
	assert.Equal(t, int32(3), svc.released.Load())
}

func TestExecute_HintsAndInlining(t *testing.T) {
	svc := newFakeService()
	dc := NewDataContext("Northwind", svc.clients(), WithCaches(NewCaches(nil)))
	ctx := context.Background()

	dc.AddQueryHints("/* app */")
	dc.AddNextQueryHints("/* once */")
	dc.InlineParameters = true

	_, err := dc.ExecuteNonQuery(ctx, NewCommand("DELETE FROM orders WHERE ID = $1", 7))
	require.NoError(t, err)
	_, err = dc.ExecuteNonQuery(ctx, NewCommand("DELETE FROM orders"))
	require.NoError(t, err)

	require.Len(t, svc.commands, 2)
	first, err := Decode(svc.commands[0])
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM orders WHERE ID = 7", first.Commands[0].SQL)
	assert.Empty(t, first.Commands[0].Parameters)
	assert.Equal(t, []string{"/* app */", "/* once */"}, first.Commands[0].QueryHints)

	second, err := Decode(svc.commands[1])
	require.NoError(t, err)
	assert.Equal(t, []string{"/* app */"}, second.Commands[0].QueryHints)
	assert.Empty(t, dc.NextQueryHints())
}

func TestClose_Idempotent(t *testing.T) {
	counter := &closeCounter{}
	dc := NewDataContext("Northwind", newFakeService().clients(), WithInterceptor(counter))

	require.NoError(t, dc.Close())
	require.NoError(t, dc.Dispose())
	require.NoError(t, dc.DisposeContext(context.Background()))

	assert.Equal(t, int32(1), counter.closing.Load())
	assert.Equal(t, int32(1), counter.closed.Load())
	assert.Equal(t, []string{"closing", "closed"}, counter.order)
	assert.True(t, dc.Disposed())

	err := dc.BeginBatch()
	require.Error(t, err)
	assert.True(t, IsDisposed(err))
	var de *DisposedError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, de.ContextID, dc.Session().String())

	_, err = dc.ExecuteNonQuery(context.Background(), NewCommand("SELECT 1"))
	assert.True(t, IsDisposed(err))
	_, err = dc.Clone()
	assert.True(t, IsDisposed(err))
	_, err = dc.CreateSqlBuilder(context.Background())
	assert.True(t, IsDisposed(err))
}

func TestClose_SettersAreInert(t *testing.T) {
	ctx := context.Background()
	dc := NewDataContext("Northwind", newFakeService().clients())
	id, err := dc.ContextID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, dc.Close())

	_, err = dc.ContextID(ctx)
	assert.True(t, IsDisposed(err), "a cached id is not returned after close")

	counter := &closeCounter{}
	dc.AddQueryHints("/* late */")
	dc.AddNextQueryHints("/* late */")
	dc.AddInterceptor(counter)
	dc.Use(func(ctx context.Context, e *CallEvent, next func() error) error { return next() })
	dc.SetSqlBuilderType("mysql")
	dc.SetSqlOptimizerType("basic")
	dc.SetMappingSchema(mapping.NewMappingSchema("late"))

	assert.Empty(t, dc.QueryHints())
	assert.Empty(t, dc.NextQueryHints())
	assert.Nil(t, dc.Interceptor())
	_, err = dc.SqlBuilderType(ctx)
	assert.True(t, IsDisposed(err))
	_, err = dc.MappingSchema(ctx)
	assert.True(t, IsDisposed(err))

	require.NoError(t, dc.Close())
	assert.Zero(t, counter.closing.Load())
}

func TestClose_Concurrent(t *testing.T) {
	counter := &closeCounter{}
	dc := NewDataContext("Northwind", newFakeService().clients(), WithInterceptor(InterceptorFuncs{
		Closing: func(ctx context.Context, e CloseEvent) error {
			counter.closing.Add(1)
			return nil
		},
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = dc.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), counter.closing.Load())
}

func TestClose_DiscardsOpenBatch(t *testing.T) {
	svc := newFakeService()
	dc := NewDataContext("Northwind", svc.clients())

	require.NoError(t, dc.BeginBatch())
	_, err := dc.ExecuteNonQuery(context.Background(), NewCommand("DELETE FROM orders"))
	require.NoError(t, err)
	require.NoError(t, dc.Close())

	assert.Empty(t, svc.batchPayloads())
	assert.Zero(t, svc.acquired.Load())
}

func TestCloseAfterUse(t *testing.T) {
	counter := &closeCounter{}
	dc := NewDataContext("Northwind", newFakeService().clients(), WithInterceptor(counter))
	dc.CloseAfterUse = true

	_, err := dc.ExecuteNonQuery(context.Background(), NewCommand("DELETE FROM orders"))
	require.NoError(t, err)
	assert.True(t, dc.Disposed())
	assert.Equal(t, int32(1), counter.closed.Load())
}

func TestClone(t *testing.T) {
	caches := NewCaches(nil)
	shared := &closeCounter{}
	cloneable := &cloneableCounter{}

	dc := NewDataContext("Northwind", newFakeService().clients(),
		WithCaches(caches),
		WithInterceptor(shared),
		WithInterceptor(cloneable))
	dc.AddQueryHints("/* h */")
	require.NoError(t, dc.BeginBatch())

	clone, err := dc.Clone()
	require.NoError(t, err)

	assert.Equal(t, "Northwind", clone.Configuration())
	assert.Same(t, caches, clone.Caches())
	assert.NotEqual(t, dc.Session(), clone.Session())
	assert.Equal(t, 0, clone.BatchDepth(), "batch state is not inherited")
	assert.Equal(t, []string{"/* h */"}, clone.QueryHints())
	assert.Equal(t, 1, cloneable.clones)

	agg, ok := clone.Interceptor().(*AggregatedInterceptor)
	require.True(t, ok)
	members := agg.Interceptors()
	require.Len(t, members, 2)
	assert.Same(t, shared, members[0], "plain interceptors are shared")
	assert.NotSame(t, cloneable, members[1])

	require.NoError(t, clone.Close())
	assert.Equal(t, int32(1), shared.closing.Load())
	assert.Zero(t, cloneable.closing.Load())
	assert.False(t, dc.Disposed())
}

func TestConfigurationCache_SingleFetch(t *testing.T) {
	svc := newFakeService()
	svc.delay = 20 * time.Millisecond
	caches := NewCaches(nil)

	const n = 16
	var wg sync.WaitGroup
	infos := make([]*ServiceInfo, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dc := NewDataContext("Northwind", svc.clients(), WithCaches(caches))
			infos[i], errs[i] = dc.ServiceInfo(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, infos[0], infos[i])
	}
	assert.Equal(t, int32(1), svc.infoCalls.Load())
	assert.Equal(t, int64(1), caches.Configurations.Fetches())
	assert.Equal(t, svc.acquired.Load(), svc.released.Load())
}

func TestConfigurationCache_FailuresAreNotCached(t *testing.T) {
	svc := newFakeService()
	svc.info.MappingSchemaType = "no-such-schema"
	caches := NewCaches(nil)
	ctx := context.Background()

	dc := NewDataContext("Northwind", svc.clients(), WithCaches(caches))
	_, err := dc.MappingSchema(ctx)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "no-such-schema", ce.TypeName)

	svc.info.MappingSchemaType = northwindSchemaType
	ms, err := dc.MappingSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), svc.infoCalls.Load())
	assert.Equal(t, []string{DefaultContextIDPrefix, "Northwind"}, ms.ConfigurationList())

	id, err := dc.ContextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultContextIDPrefix, id)

	caches.Configurations.Invalidate(DefaultContextIDPrefix, "Northwind")
	assert.Zero(t, caches.Configurations.Len())
}

func TestConfigurationCache_IncompatibleProtocol(t *testing.T) {
	svc := newFakeService()
	svc.info.ProtocolVersion = "2.0.0"
	dc := NewDataContext("Northwind", svc.clients())

	_, err := dc.ServiceInfo(context.Background())
	assert.True(t, IsConfiguration(err))
}

func TestFactoryCache_SingleConstruction(t *testing.T) {
	svc := newFakeService()
	caches := NewCaches(nil)

	const n = 32
	var wg sync.WaitGroup
	names := make([]string, n)
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			dc := NewDataContext("Northwind", svc.clients(), WithCaches(caches))
			b, err := dc.NewSqlBuilder(context.Background())
			errs[i] = err
			if err == nil {
				names[i] = b.Name()
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "postgres", names[i])
	}
	assert.Equal(t, int64(1), caches.Builders.Constructions())
	assert.Equal(t, int64(1), caches.Optimizers.Constructions())
}

func TestFactoryCache_Get(t *testing.T) {
	ctx := context.Background()
	fc := NewFactoryCache[int]("counter", nil)
	var builds atomic.Int32
	key := FactoryKey{TypeName: "Counter", Flags: dialect.ProviderFlags{MaxInListValuesCount: 10}}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn, err := fc.Get(ctx, key, func(context.Context) (func() int, error) {
				builds.Add(1)
				time.Sleep(5 * time.Millisecond)
				return func() int { return 7 }, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 7, fn())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), builds.Load())

	other := key
	other.Flags.MaxInListValuesCount = 11
	_, err := fc.Get(ctx, other, func(context.Context) (func() int, error) { return nil, errors.New("nope") })
	assert.Error(t, err)
	assert.Equal(t, 1, fc.Len(), "failed constructions are not stored")

	fc.Invalidate(key)
	assert.Zero(t, fc.Len())
}

func TestCreateSqlBuilder_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown builder type", func(t *testing.T) {
		svc := newFakeService()
		svc.info.SqlBuilderType = "oracle"
		dc := NewDataContext("Northwind", svc.clients())
		_, err := dc.CreateSqlBuilder(ctx)
		var ce *ConfigurationError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "oracle", ce.TypeName)
	})

	t.Run("constructor shape", func(t *testing.T) {
		dialect.RegisterOptimizer("wrong-shape", func(string) dialect.SqlOptimizer { return nil })
		t.Cleanup(func() { dialect.Optimizers.Unregister("wrong-shape") })

		dc := NewDataContext("Northwind", newFakeService().clients(), WithSqlOptimizerType("wrong-shape"))
		_, err := dc.GetSqlOptimizer(ctx)
		assert.True(t, IsConfiguration(err))
		assert.True(t, errors.Is(err, dialect.ErrConstructorShape))
	})

	t.Run("override", func(t *testing.T) {
		dc := NewDataContext("Northwind", newFakeService().clients())
		dc.SetSqlBuilderType("mysql")
		b, err := dc.NewSqlBuilder(ctx)
		require.NoError(t, err)
		assert.Equal(t, "mysql", b.Name())
	})
}

func TestMiddleware(t *testing.T) {
	var ops []string
	dc := NewDataContext("Northwind", newFakeService().clients(), WithMiddleware(
		func(ctx context.Context, e *CallEvent, next func() error) error {
			ops = append(ops, e.Op)
			return next()
		}))
	var timed []string
	dc.Use(TimingMiddleware(func(op string, d time.Duration) { timed = append(timed, op) }))

	_, err := dc.ExecuteNonQuery(context.Background(), NewCommand("DELETE FROM orders"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ExecuteNonQuery"}, ops)
	assert.Equal(t, []string{"ExecuteNonQuery"}, timed)
}

func TestNorthwind_EndToEnd(t *testing.T) {
	svc := newFakeService()
	dc := NewDataContext("Northwind", svc.clients())
	ctx := context.Background()

	eb, err := dc.NewExpressionBuilder(ctx)
	require.NoError(t, err)
	table := eb.NewTableContext("Order")
	customer := func() expr.Expr {
		return expr.Member(eb.Root(table), mapping.Property("Order", "Customer"), "Customer")
	}

	first, _, err := eb.MakeAssociation(customer())
	require.NoError(t, err)
	second, _, err := eb.MakeAssociation(customer())
	require.NoError(t, err)
	assert.Same(t, first, second)
	require.Len(t, table.SelectQuery().Joins, 1)

	b, err := dc.NewSqlBuilder(ctx)
	require.NoError(t, err)
	sql, err := b.BuildSelect(table.SelectQuery())
	require.NoError(t, err)
	assert.Equal(t, `SELECT "t1".*, "customer".* FROM "orders" AS "t1" LEFT JOIN "customers" AS "customer" ON "customer"."ID" = "t1"."CustomerID"`, sql)

	require.NoError(t, dc.BeginBatch())
	require.NoError(t, dc.BeginBatch())
	_, err = dc.ExecuteNonQuery(ctx, NewCommand(`INSERT INTO "orders" ("CustomerID") VALUES ($1)`, "ALFKI"))
	require.NoError(t, err)
	require.NoError(t, dc.CommitBatch())
	assert.Empty(t, svc.batchPayloads())
	require.NoError(t, dc.CommitBatch())
	require.Len(t, svc.batchPayloads(), 1)
}

func TestSetConfiguration(t *testing.T) {
	svc := newFakeService()
	dc := NewDataContext("Northwind", svc.clients())
	ctx := context.Background()

	_, err := dc.ServiceInfo(ctx)
	require.NoError(t, err)

	require.NoError(t, dc.BeginBatch())
	assert.ErrorIs(t, dc.SetConfiguration("Other"), ErrBatching)
	require.NoError(t, dc.CommitBatch())

	require.NoError(t, dc.SetConfiguration("Other"))
	_, err = dc.ServiceInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), svc.infoCalls.Load())
}

func TestCheckProtocol(t *testing.T) {
	assert.NoError(t, CheckProtocol(""))
	assert.NoError(t, CheckProtocol("1.4.2"))
	assert.Error(t, CheckProtocol("2.0.0"))
	assert.Error(t, CheckProtocol("0.9.0"))
	assert.Error(t, CheckProtocol("banana"))
}

func TestDecode_RejectsEmptyPayload(t *testing.T) {
	_, err := Encode()
	assert.Error(t, err)

	_, err = Decode([]byte(`{"version":"1.0.0","commands":[]}`))
	assert.Error(t, err)
}

func TestConfigurationCache_CancellationIsPerCaller(t *testing.T) {
	svc := newFakeService()
	svc.delay = 100 * time.Millisecond
	caches := NewCaches(nil)

	first := NewDataContext("Northwind", svc.clients(), WithCaches(caches))
	second := NewDataContext("Northwind", svc.clients(), WithCaches(caches))

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := first.ServiceInfo(ctx)
		firstErr <- err
	}()
	time.AfterFunc(10*time.Millisecond, cancel)

	time.Sleep(2 * time.Millisecond)
	info, err := second.ServiceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "postgres", info.SqlBuilderType)

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	assert.Equal(t, int32(1), svc.infoCalls.Load())
	assert.Equal(t, 1, caches.Configurations.Len())
}

func TestConfigurationCache_InvalidateDuringFetch(t *testing.T) {
	cache := NewConfigurationCache(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (*ConfigurationInfo, error) {
		close(started)
		<-release
		return &ConfigurationInfo{ServiceInfo: &ServiceInfo{SqlBuilderType: "postgres"}}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := cache.Get(context.Background(), "Remote", "Northwind", fetch)
		done <- err
	}()
	<-started
	cache.Invalidate("Remote", "Northwind")
	close(release)
	require.NoError(t, <-done)

	assert.Zero(t, cache.Len(), "a fetch overtaken by invalidation is not stored")

	var refetched atomic.Bool
	_, err := cache.Get(context.Background(), "Remote", "Northwind", func(ctx context.Context) (*ConfigurationInfo, error) {
		refetched.Store(true)
		return &ConfigurationInfo{ServiceInfo: &ServiceInfo{}}, nil
	})
	require.NoError(t, err)
	assert.True(t, refetched.Load())
	assert.Equal(t, 1, cache.Len())
}
