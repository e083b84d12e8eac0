// Copyright 2014 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package stop provides a minimal reconstruction of cockroach's
// stop.Stopper: a quiescable task tracker used to fan out and then
// cleanly drain the goroutines FinalizeEvent spawns to process residual
// batch-copy tasks. The full stop.Stopper source was not present in this
// module's reference material; this reconstruction matches the subset of
// its API contract exercised by pkg/sql/flowinfra/flow_scheduler.go
// (RunAsyncTask, RunTaskWithErr, ShouldQuiesce, Stop).
package stop

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrUnavailable is returned by RunTaskWithErr and RunAsyncTask once the
// Stopper has begun quiescing.
var ErrUnavailable = errors.New("stopper unavailable; must Stop() or be draining")

// A Stopper tracks outstanding goroutines started on its behalf and
// coordinates their shutdown. The zero value is not usable; use
// NewStopper.
type Stopper struct {
	mu struct {
		sync.Mutex
		quiescing bool
	}
	wg       sync.WaitGroup
	quiesceC chan struct{}
}

// NewStopper creates a ready-to-use Stopper.
func NewStopper() *Stopper {
	return &Stopper{quiesceC: make(chan struct{})}
}

// RunTaskWithErr runs fn synchronously, tracking it as an outstanding task
// so Stop() can wait for it. Returns ErrUnavailable without running fn if
// the Stopper is quiescing.
func (s *Stopper) RunTaskWithErr(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if !s.runPrologue() {
		return ErrUnavailable
	}
	defer s.wg.Done()
	return fn(ctx)
}

// RunAsyncTask runs fn in a new goroutine, tracking it as an outstanding
// task. Returns ErrUnavailable without starting fn if the Stopper is
// quiescing.
func (s *Stopper) RunAsyncTask(ctx context.Context, _ string, fn func(ctx context.Context)) error {
	if !s.runPrologue() {
		return ErrUnavailable
	}
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
	return nil
}

func (s *Stopper) runPrologue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.quiescing {
		return false
	}
	s.wg.Add(1)
	return true
}

// ShouldQuiesce returns a channel that is closed once Stop has been
// called, allowing long-running loops to select on it alongside their
// other work channels.
func (s *Stopper) ShouldQuiesce() <-chan struct{} {
	return s.quiesceC
}

// Stop signals quiescence and blocks until every tracked task has
// returned.
func (s *Stopper) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.mu.quiescing {
		s.mu.Unlock()
		return
	}
	s.mu.quiescing = true
	s.mu.Unlock()
	close(s.quiesceC)
	s.wg.Wait()
}
