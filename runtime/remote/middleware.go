package remote

import (
	"context"
	"log/slog"
	"time"
)

// CallEvent describes one transport call.
type CallEvent struct {
	Op            string
	Configuration string
	ContextID     string
	Commands      int
	Start         time.Time
	End           time.Time
	Duration      time.Duration
	Error         error
}

// Middleware intercepts transport calls. It must call next to proceed.
type Middleware func(ctx context.Context, event *CallEvent, next func() error) error

// runMiddleware runs exec through the chain.
func runMiddleware(ctx context.Context, chain []Middleware, event *CallEvent, exec func() error) error {
	event.Start = time.Now()

	index := 0
	var next func() error
	next = func() error {
		if index >= len(chain) {
			err := exec()
			event.End = time.Now()
			event.Duration = event.End.Sub(event.Start)
			event.Error = err
			return err
		}
		mw := chain[index]
		index++
		return mw(ctx, event, next)
	}
	return next()
}

// LoggingMiddleware logs every call.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, event *CallEvent, next func() error) error {
		logger.DebugContext(ctx, "remote call",
			"op", event.Op,
			"configuration", event.Configuration,
			"commands", event.Commands)
		err := next()
		if err != nil {
			logger.WarnContext(ctx, "remote call failed",
				"op", event.Op,
				"configuration", event.Configuration,
				"error", err)
		} else {
			logger.DebugContext(ctx, "remote call completed",
				"op", event.Op,
				"duration", event.Duration)
		}
		return err
	}
}

// TimingMiddleware reports the duration of every call.
func TimingMiddleware(onTiming func(op string, duration time.Duration)) Middleware {
	return func(ctx context.Context, event *CallEvent, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(event.Op, event.Duration)
		}
		return err
	}
}

// ErrorMiddleware reports failed calls.
func ErrorMiddleware(onError func(op string, err error)) Middleware {
	return func(ctx context.Context, event *CallEvent, next func() error) error {
		err := next()
		if err != nil && onError != nil {
			onError(event.Op, err)
		}
		return err
	}
}
