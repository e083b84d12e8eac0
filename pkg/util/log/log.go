// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package log is a small, self-contained stand-in for cockroach's
// util/log: package-level severity functions plus a verbosity-gated
// VEventf used for high-frequency tracing calls on the sink's hot paths.
// Arguments are rendered through redact.Sprintf so that batch contents
// (arbitrary caller rows) are never interpolated into a log line
// unredacted.
package log

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/redact"
)

// VDepth controls which VEventf calls are emitted. It mirrors the
// --vmodule-style verbosity knob cockroach exposes per logging tag, but
// flattened to a single global level since this module has no subsystem
// tags of its own.
var vDepth atomic.Int32

// SetVerbosity sets the global verbosity level used by VEventf.
func SetVerbosity(level int32) {
	vDepth.Store(level)
}

func output(ctx context.Context, severity string, format string, args ...interface{}) {
	msg := redact.Sprintf(format, args...)
	if component, ok := ctx.Value(componentKey{}).(string); ok && component != "" {
		fmt.Fprintf(os.Stderr, "%s: [%s] %s\n", severity, component, msg.Redact().StripMarkers())
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", severity, msg.Redact().StripMarkers())
}

// Infof logs an informational message.
func Infof(ctx context.Context, format string, args ...interface{}) {
	output(ctx, "I", format, args...)
}

// Warningf logs a warning.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, "W", format, args...)
}

// Errorf logs an error.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, "E", format, args...)
}

// Fatalf logs a fatal message and terminates the process. Reserved for
// conditions the caller has already decided are unrecoverable; the
// operator itself never calls this directly (see execerror for how
// internal inconsistencies are surfaced as errors instead).
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, "F", format, args...)
	os.Exit(1)
}

// VEventf logs a message if the configured verbosity is at least level.
// Used for the high-frequency, low-value-per-call tracing that happens on
// every Sink/NextBatch/flush invocation.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	if vDepth.Load() < level {
		return
	}
	output(ctx, "V", format, args...)
}

// AmbientContext carries a component tag that annotated contexts surface
// in every log line, matching the role log.AmbientContext plays for
// cockroach's FlowScheduler and friends.
type AmbientContext struct {
	component string
}

// MakeAmbientContext returns an AmbientContext tagged with component.
func MakeAmbientContext(component string) AmbientContext {
	return AmbientContext{component: component}
}

type componentKey struct{}

// AnnotateCtx returns a context tagged with the ambient component, for use
// by background goroutines started without an inherited tagged context
// (e.g. the finalize event's worker pool).
func (a AmbientContext) AnnotateCtx(ctx context.Context) context.Context {
	if a.component == "" {
		return ctx
	}
	return context.WithValue(ctx, componentKey{}, a.component)
}

// ComponentFromContext returns the component tag AnnotateCtx attached to
// ctx, if any.
func ComponentFromContext(ctx context.Context) (string, bool) {
	component, ok := ctx.Value(componentKey{}).(string)
	return component, ok
}
