// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import (
	"context"

	"github.com/owenthereal/duckdb/pkg/util/log"
)

// flush drains the in-order prefix of prepared batches into the backend.
// Any number of goroutines may call flush concurrently; anyFlushing
// serializes the actual draining behind a test-and-set so callers that
// lose the race return immediately rather than forming an explicit wait
// queue — whichever goroutine is flushing will pick up whatever became
// flushable while the others were turned away.
func (op *Operator) flush(ctx context.Context) error {
	op.flushMu.Lock()
	if op.anyFlushing.Load() {
		op.flushMu.Unlock()
		return nil
	}
	op.anyFlushing.Store(true)
	op.flushMu.Unlock()
	defer op.anyFlushing.Store(false)

	for {
		op.storeMu.Lock()
		batch, ok := op.prepared.popIfFlushable(op.flushedIndex.Load())
		op.storeMu.Unlock()
		if !ok {
			return nil
		}

		log.VEventf(ctx, 2, "flushing batch %d", batch.Index)
		if err := op.backend.FlushBatch(ctx, op.global, batch.Artifact); err != nil {
			return err
		}
		op.unflushedMemory.Add(-int64(batch.MemoryUsage))
		op.flushedIndex.Add(1)
	}
}
