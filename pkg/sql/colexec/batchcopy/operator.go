// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/marusama/semaphore"

	"github.com/owenthereal/duckdb/pkg/util/log"
	"github.com/owenthereal/duckdb/pkg/util/stop"
	"github.com/owenthereal/duckdb/pkg/util/syncutil"
)

// defaultVectorSize is used when Config.VectorSize is left at zero.
const defaultVectorSize = 2048

// minimumMemoryPerColumnPerThread is how much headroom MaxThreads grants
// each candidate producer thread, per output column.
const minimumMemoryPerColumnPerThread int64 = 4 * 1024 * 1024

// defaultMaxConcurrentPrepares bounds concurrent backend PrepareBatch
// calls when Config.MaxConcurrentPrepares is left at zero.
const defaultMaxConcurrentPrepares = 8

// Config configures an Operator. Backend, Factory and MemoryManager are
// this module's three abstract, injected collaborators; everything else
// tunes the sink's own behavior.
type Config struct {
	Backend       CopyFunction
	Factory       CollectionFactory
	MemoryManager TemporaryMemoryManager

	// QueryMaxMemory is the engine-wide memory ceiling memoryBudget.reserve
	// caps its requests against.
	QueryMaxMemory int64
	// VectorSize is this module's STANDARD_VECTOR_SIZE: the batch-size
	// alignment tolerance used throughout repartitioning. Defaults to
	// 2048 if zero.
	VectorSize uint64
	// ColumnCount feeds the minimum-memory-per-thread heuristic MaxThreads
	// uses.
	ColumnCount int
	// MaxConcurrentPrepares bounds how many PrepareBatch calls may be in
	// flight at once. Defaults to 8 if zero.
	MaxConcurrentPrepares int

	// Path is the sink's final output path. TmpPath, if set and different
	// from Path, is the path the backend actually writes to; Finalize
	// renames TmpPath to Path on success via RenameFunc (os.Rename if
	// nil).
	Path       string
	TmpPath    string
	RenameFunc func(oldpath, newpath string) error

	// AlwaysReportOutOfMemory forces every OOM check to report true,
	// exercising the blocked/task-stealing path under test even when
	// memory is plentiful.
	AlwaysReportOutOfMemory bool

	Ambient log.AmbientContext
}

// Operator is the fixed-size batch copy-to-file sink: it drains
// out-of-order, arbitrarily sized producer batches and writes them to
// Config.Backend as an ordered sequence of Config.Backend.DesiredBatchSize
// -sized batches.
//
// Operator's state is guarded by three independent locks, acquired in
// this order when more than one is needed: storeMu (raw and prepared
// batch stores, plus scheduledIndex), flushMu (the anyFlushing gate), and
// blocked.mu (parked producers and min_batch_index). taskQueue has its
// own, unrelated lock: any goroutine may pop a task while another holds
// one of the three above.
type Operator struct {
	cfg     Config
	backend CopyFunction
	factory CollectionFactory
	global  GlobalState

	batchSize              uint64
	vectorSize             uint64
	minimumMemoryPerThread int64

	budget     *memoryBudget
	prepareSem semaphore.Semaphore

	storeMu  syncutil.Mutex
	raw      *rawBatchStore
	prepared *preparedBatchStore

	scheduledIndex atomic.Uint64

	flushMu         syncutil.Mutex
	anyFlushing     atomic.Bool
	flushedIndex    atomic.Uint64
	unflushedMemory atomic.Int64

	blocked blockedTasks
	tasks   *taskQueue

	// stopper tracks the goroutines Finalize fans out to drain residual
	// tasks, so it can wait for all of them to return before reporting
	// Finalize complete.
	stopper *stop.Stopper

	anyFinished atomic.Bool
	rowsCopied  atomic.Uint64
}

// NewOperator constructs an Operator, registering with cfg.MemoryManager
// and calling the backend's InitializeGlobal and DesiredBatchSize.
func NewOperator(ctx context.Context, cfg Config) (*Operator, error) {
	global, err := cfg.Backend.InitializeGlobal(ctx, cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, "batchcopy: initializing backend global state")
	}
	batchSize, err := cfg.Backend.DesiredBatchSize(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "batchcopy: getting desired batch size")
	}
	if batchSize == 0 {
		return nil, errors.New("batchcopy: backend DesiredBatchSize must be positive")
	}

	vectorSize := cfg.VectorSize
	if vectorSize == 0 {
		vectorSize = defaultVectorSize
	}
	maxConcurrentPrepares := cfg.MaxConcurrentPrepares
	if maxConcurrentPrepares <= 0 {
		maxConcurrentPrepares = defaultMaxConcurrentPrepares
	}

	op := &Operator{
		cfg:                    cfg,
		backend:                cfg.Backend,
		factory:                cfg.Factory,
		global:                 global,
		batchSize:              batchSize,
		vectorSize:             vectorSize,
		minimumMemoryPerThread: minimumMemoryPerColumnPerThread * int64(maxInt(cfg.ColumnCount, 1)),
		raw:                    newRawBatchStore(),
		prepared:               newPreparedBatchStore(),
		tasks:                  newTaskQueue(),
		prepareSem:             semaphore.New(maxConcurrentPrepares),
		budget:                 newMemoryBudget(cfg.MemoryManager.Register(ctx), cfg.QueryMaxMemory),
		stopper:                stop.NewStopper(),
	}
	op.budget.reserve(ctx, op.minimumMemoryPerThread)
	return op, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// MaxThreads answers the caller's planner: how many concurrent producer
// threads can this sink usefully support given its memory budget and
// sourceHint, the planner's own upper bound.
func (op *Operator) MaxThreads(ctx context.Context, sourceHint int) int {
	op.budget.reserve(ctx, int64(sourceHint)*op.minimumMemoryPerThread)
	capacity := int(op.budget.current()/op.minimumMemoryPerThread) + 1
	if sourceHint < capacity {
		return sourceHint
	}
	return capacity
}

// RowsCopied returns the running total of rows appended across every
// producer that has called Combine so far. Safe to call at any point in
// the operator's lifecycle, including concurrently with Sink/NextBatch.
func (op *Operator) RowsCopied() uint64 {
	return op.rowsCopied.Load()
}
