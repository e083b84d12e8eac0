// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/owenthereal/duckdb/pkg/util/log"
)

// fakeChunk is the simplest possible Chunk: a row count and nothing else.
type fakeChunk struct {
	rows uint64
}

func (c fakeChunk) RowCount() uint64 { return c.rows }

// fakeCollection is an in-memory Collection that tracks the chunks handed
// to it and treats each row as occupying 8 bytes, so SizeBytes gives
// tests something deterministic to assert on.
type fakeCollection struct {
	chunks []Chunk
	rows   uint64
}

func (c *fakeCollection) RowCount() uint64  { return c.rows }
func (c *fakeCollection) SizeBytes() uint64 { return c.rows * 8 }

func (c *fakeCollection) Append(_ context.Context, chunk Chunk) error {
	c.chunks = append(c.chunks, chunk)
	c.rows += chunk.RowCount()
	return nil
}

func (c *fakeCollection) Chunks() []Chunk { return c.chunks }

type fakeFactory struct{}

func (fakeFactory) NewCollection() Collection { return &fakeCollection{} }

// fakeBackend is a CopyFunction (and Finalizer) that hands artifacts
// straight through as the Collection it was given, recording flushed row
// counts in flush order for assertions on ordering and batch uniformity.
type fakeBackend struct {
	batchSize uint64

	mu             sync.Mutex
	flushedRows    []uint64
	finalizeCalled bool
	flushErr       error
	prepareDelay   func()
	seenComponents map[string]bool
}

func (b *fakeBackend) InitializeGlobal(context.Context, string) (GlobalState, error) {
	return nil, nil
}

func (b *fakeBackend) DesiredBatchSize(context.Context) (uint64, error) {
	return b.batchSize, nil
}

func (b *fakeBackend) PrepareBatch(ctx context.Context, _ GlobalState, collection Collection) (PreparedArtifact, error) {
	if component, ok := log.ComponentFromContext(ctx); ok {
		b.mu.Lock()
		if b.seenComponents == nil {
			b.seenComponents = make(map[string]bool)
		}
		b.seenComponents[component] = true
		b.mu.Unlock()
	}
	if b.prepareDelay != nil {
		b.prepareDelay()
	}
	return collection, nil
}

func (b *fakeBackend) FlushBatch(_ context.Context, _ GlobalState, artifact PreparedArtifact) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushErr != nil {
		return b.flushErr
	}
	b.flushedRows = append(b.flushedRows, artifact.(Collection).RowCount())
	return nil
}

func (b *fakeBackend) Finalize(context.Context, GlobalState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finalizeCalled = true
	return nil
}

func (b *fakeBackend) totalFlushedRows() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total uint64
	for _, r := range b.flushedRows {
		total += r
	}
	return total
}

func (b *fakeBackend) flushCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.flushedRows)
}

func (b *fakeBackend) sawComponent(component string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seenComponents[component]
}

// fakeMemoryState grants whatever is asked for, unconditionally — used
// where a test has no interest in exercising memory pressure.
type fakeMemoryState struct {
	reservation atomic.Int64
}

func (s *fakeMemoryState) SetRemainingSize(_ context.Context, size int64) {
	s.reservation.Store(size)
}

func (s *fakeMemoryState) GetReservation() int64 { return s.reservation.Load() }

type unlimitedMemoryManager struct{}

func (unlimitedMemoryManager) Register(context.Context) TemporaryMemoryState {
	return &fakeMemoryState{}
}

// cappedMemoryState never grants more than limit bytes in total.
type cappedMemoryState struct {
	limit       int64
	reservation int64
}

func (s *cappedMemoryState) SetRemainingSize(_ context.Context, size int64) {
	if size > s.limit {
		size = s.limit
	}
	if size < 0 {
		size = 0
	}
	s.reservation = size
}

func (s *cappedMemoryState) GetReservation() int64 { return s.reservation }

type cappedMemoryManager struct {
	limit int64
}

func (m cappedMemoryManager) Register(context.Context) TemporaryMemoryState {
	return &cappedMemoryState{limit: m.limit}
}
