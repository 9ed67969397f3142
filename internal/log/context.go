// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"context"

	"github.com/rs/zerolog"
)

// Correlation ties a log line to what caused it: an API request, a rebuild
// pass, and the loop trigger that started that pass.
type Correlation struct {
	RequestID string
	RebuildID string
	Trigger   string
}

func (c Correlation) empty() bool { return c == Correlation{} }

type correlationKey struct{}

// CorrelationFromContext returns the correlation carried by ctx.
func CorrelationFromContext(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	c, _ := ctx.Value(correlationKey{}).(Correlation)
	return c
}

func update(ctx context.Context, fn func(*Correlation)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := CorrelationFromContext(ctx)
	fn(&c)
	return context.WithValue(ctx, correlationKey{}, c)
}

// ContextWithRequestID records the API request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return update(ctx, func(c *Correlation) { c.RequestID = id })
}

// ContextWithRebuildID records the id of the running rebuild pass.
func ContextWithRebuildID(ctx context.Context, id string) context.Context {
	return update(ctx, func(c *Correlation) { c.RebuildID = id })
}

// ContextWithTrigger records why the loop started a cycle ("timer",
// "notify:rules.changed", ...).
func ContextWithTrigger(ctx context.Context, trigger string) context.Context {
	return update(ctx, func(c *Correlation) { c.Trigger = trigger })
}

// RequestIDFromContext returns the API request id, if any.
func RequestIDFromContext(ctx context.Context) string {
	return CorrelationFromContext(ctx).RequestID
}

// WithContext adds the correlation fields of ctx to logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	c := CorrelationFromContext(ctx)
	if c.empty() {
		return logger
	}
	b := logger.With()
	if c.RequestID != "" {
		b = b.Str(FieldRequestID, c.RequestID)
	}
	if c.RebuildID != "" {
		b = b.Str(FieldRebuildID, c.RebuildID)
	}
	if c.Trigger != "" {
		b = b.Str(FieldTrigger, c.Trigger)
	}
	return b.Logger()
}

// WithComponentFromContext is WithComponent plus the correlation of ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
