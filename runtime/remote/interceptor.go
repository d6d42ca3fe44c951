package remote

import (
	"context"
	"errors"
)

// CloseEvent is passed to interceptors when a context closes.
type CloseEvent struct {
	Context *DataContext
}

// Interceptor observes the lifecycle of a data context.
type Interceptor interface {
	OnClosing(ctx context.Context, event CloseEvent) error
	OnClosed(ctx context.Context, event CloseEvent) error
}

// Cloner is implemented by interceptors that carry per-context state and
// must be copied when the context is cloned.
type Cloner interface {
	Clone() Interceptor
}

// InterceptorFuncs adapts functions to Interceptor. Nil fields are
// skipped.
type InterceptorFuncs struct {
	Closing func(ctx context.Context, event CloseEvent) error
	Closed  func(ctx context.Context, event CloseEvent) error
}

// OnClosing implements Interceptor.
func (f InterceptorFuncs) OnClosing(ctx context.Context, event CloseEvent) error {
	if f.Closing == nil {
		return nil
	}
	return f.Closing(ctx, event)
}

// OnClosed implements Interceptor.
func (f InterceptorFuncs) OnClosed(ctx context.Context, event CloseEvent) error {
	if f.Closed == nil {
		return nil
	}
	return f.Closed(ctx, event)
}

// AggregatedInterceptor fans out to several interceptors in registration
// order.
type AggregatedInterceptor struct {
	interceptors []Interceptor
}

// NewAggregatedInterceptor creates an aggregate of interceptors.
func NewAggregatedInterceptor(interceptors ...Interceptor) *AggregatedInterceptor {
	a := &AggregatedInterceptor{}
	for _, i := range interceptors {
		a.Add(i)
	}
	return a
}

// Add appends i. Aggregates are flattened.
func (a *AggregatedInterceptor) Add(i Interceptor) {
	if i == nil {
		return
	}
	if agg, ok := i.(*AggregatedInterceptor); ok {
		a.interceptors = append(a.interceptors, agg.interceptors...)
		return
	}
	a.interceptors = append(a.interceptors, i)
}

// Interceptors returns the registered interceptors.
func (a *AggregatedInterceptor) Interceptors() []Interceptor {
	return append([]Interceptor(nil), a.interceptors...)
}

// OnClosing implements Interceptor. Every interceptor is called; errors
// are joined.
func (a *AggregatedInterceptor) OnClosing(ctx context.Context, event CloseEvent) error {
	var errs []error
	for _, i := range a.interceptors {
		if err := i.OnClosing(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnClosed implements Interceptor.
func (a *AggregatedInterceptor) OnClosed(ctx context.Context, event CloseEvent) error {
	var errs []error
	for _, i := range a.interceptors {
		if err := i.OnClosed(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clone returns an independent aggregate. Members implementing Cloner are
// cloned; the rest are shared.
func (a *AggregatedInterceptor) Clone() Interceptor {
	c := &AggregatedInterceptor{interceptors: make([]Interceptor, 0, len(a.interceptors))}
	for _, i := range a.interceptors {
		if cl, ok := i.(Cloner); ok {
			i = cl.Clone()
		}
		c.interceptors = append(c.interceptors, i)
	}
	return c
}

// combineInterceptors adds next to current the way contexts accumulate
// interceptors.
func combineInterceptors(current, next Interceptor) Interceptor {
	switch {
	case current == nil:
		return next
	case next == nil:
		return current
	}
	if agg, ok := current.(*AggregatedInterceptor); ok {
		agg.Add(next)
		return agg
	}
	return NewAggregatedInterceptor(current, next)
}
