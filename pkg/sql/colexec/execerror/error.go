// Copyright 2019 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package execerror draws the line between the two error classes the
// batch-copy sink must never confuse: a fatal internal inconsistency
// (duplicate batch index, out-of-order flush, residual tasks at finalize)
// versus an ordinary backend-reported failure. Internal errors are raised
// as panics of a sentinel type and caught at the single goroutine
// boundary responsible for turning them back into a returned error —
// mirroring colexecerror's InternalError/CatchVectorizedRuntimeError pair,
// exercised against real call sites in
// colexec/parallel_unordered_synchronizer_test.go. Backend errors are
// never routed through this package; they propagate as plain returned
// errors per spec.
package execerror

import "github.com/cockroachdb/errors"

// internalError tags a panic value raised by InternalError so that
// CatchInternalError can distinguish "the sink detected it violated its
// own invariants" from an unrelated runtime panic (nil dereference, index
// out of range) that should keep propagating.
type internalError struct {
	cause error
}

func (e *internalError) Error() string { return e.cause.Error() }

// InternalError panics with err wrapped as an internal error. Use this
// only for conditions §7 of the spec calls fatal: they indicate the sink
// violated one of its own invariants, not a problem with caller-supplied
// data or the backend.
func InternalError(err error) {
	panic(&internalError{cause: err})
}

// InternalErrorf is InternalError with fmt.Errorf-style formatting.
func InternalErrorf(format string, args ...interface{}) {
	InternalError(errors.Newf(format, args...))
}

// CatchInternalError runs fn and converts any panic raised via
// InternalError/InternalErrorf into a returned error. Panics of any other
// kind (including backend panics) are left to propagate, since only
// internal-error panics are this package's concern.
func CatchInternalError(fn func()) (retErr error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if ierr, ok := r.(*internalError); ok {
			retErr = ierr.cause
			return
		}
		panic(r)
	}()
	fn()
	return nil
}
