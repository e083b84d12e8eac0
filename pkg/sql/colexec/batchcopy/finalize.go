// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import (
	"context"
	"math"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/owenthereal/duckdb/pkg/sql/colexec/execerror"
	"github.com/owenthereal/duckdb/pkg/util/log"
)

// Finalize force-repartitions every remaining raw batch regardless of
// size, then drains the task queue — inline if at most one task remains,
// otherwise by fanning out numWorkers goroutines, mirroring
// ProcessRemainingBatchesEvent in the original operator — before calling
// the backend's optional Finalize hook and renaming the temporary output
// into place. Finalize must be called exactly once, after every producer
// has called Combine.
func (op *Operator) Finalize(ctx context.Context, numWorkers int) (err error) {
	catchErr := execerror.CatchInternalError(func() {
		err = op.finalizeImpl(ctx, numWorkers)
	})
	if catchErr != nil {
		return catchErr
	}
	return err
}

func (op *Operator) finalizeImpl(ctx context.Context, numWorkers int) error {
	// Finalize's worker fan-out is the only background work this operator
	// ever starts without an inherited, already-tagged context; quiesce
	// the stopper once that fan-out (or the inline fallback below) has
	// returned, since nothing runs after Finalize.
	defer op.stopper.Stop(ctx)

	op.storeMu.Lock()
	op.repartitionLocked(ctx, math.MaxUint64, true)
	remaining := op.tasks.len()
	op.storeMu.Unlock()

	log.VEventf(ctx, 1, "finalizing with %d residual tasks across %d workers", remaining, numWorkers)

	if remaining <= 1 || numWorkers <= 1 {
		if err := op.executeTasks(ctx); err != nil {
			return err
		}
		return op.finalFlush(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < numWorkers; i++ {
		g.Go(func() error {
			workerCtx := op.cfg.Ambient.AnnotateCtx(gctx)
			return op.stopper.RunTaskWithErr(workerCtx, "batchcopy-finalize-worker", func(ctx context.Context) error {
				var err error
				if catchErr := execerror.CatchInternalError(func() {
					err = op.drainTasksUntilEmpty(ctx)
				}); catchErr != nil {
					return catchErr
				}
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return op.finalFlush(ctx)
}

// drainTasksUntilEmpty runs tasks and flushes until the queue is empty,
// returning the first backend error unchanged. It is only ever invoked
// from inside a CatchInternalError boundary (see finalizeImpl), which
// turns an internal-error panic raised by a task or the flusher into that
// worker's returned error.
func (op *Operator) drainTasksUntilEmpty(ctx context.Context) error {
	for {
		ran, err := op.executeTask(ctx)
		if err != nil {
			return err
		}
		if !ran {
			return nil
		}
		if err := op.flush(ctx); err != nil {
			return err
		}
	}
}

// finalFlush asserts the task queue is empty, flushes every remaining
// prepared batch, asserts the scheduled and flushed indexes converged,
// then runs the backend's optional Finalize hook and atomic rename.
func (op *Operator) finalFlush(ctx context.Context) error {
	if n := op.tasks.len(); n != 0 {
		execerror.InternalErrorf("unexecuted tasks remaining at finalize: %d", n)
	}
	if err := op.flush(ctx); err != nil {
		return err
	}
	if scheduled, flushed := op.scheduledIndex.Load(), op.flushedIndex.Load(); scheduled != flushed {
		execerror.InternalErrorf("not all batches were flushed: scheduled=%d flushed=%d", scheduled, flushed)
	}

	if f, ok := op.backend.(Finalizer); ok {
		if err := f.Finalize(ctx, op.global); err != nil {
			return err
		}
	}

	if op.cfg.TmpPath != "" && op.cfg.TmpPath != op.cfg.Path {
		rename := op.cfg.RenameFunc
		if rename == nil {
			rename = os.Rename
		}
		if err := rename(op.cfg.TmpPath, op.cfg.Path); err != nil {
			return err
		}
	}
	return nil
}
