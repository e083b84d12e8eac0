// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaskQueueIsFIFO(t *testing.T) {
	q := newTaskQueue()
	require.Nil(t, q.pop())

	first := &flushTask{}
	second := &prepareBatchTask{index: 1}
	q.push(first)
	q.push(second)
	require.Equal(t, 2, q.len())

	require.Same(t, first, q.pop().(*flushTask))
	require.Same(t, second, q.pop().(*prepareBatchTask))
	require.Nil(t, q.pop())
}

func TestBlockedTasksWakeAllClearsRegistry(t *testing.T) {
	var b blockedTasks
	require.False(t, b.wakeAll())

	var woken int
	b.mu.Lock()
	b.block(func() { woken++ })
	b.block(func() { woken++ })
	b.mu.Unlock()

	require.True(t, b.wakeAll())
	require.Equal(t, 2, woken)
	require.False(t, b.wakeAll())
}

func TestBlockedTasksUpdateMinBatchIndexOnlyAdvances(t *testing.T) {
	var b blockedTasks
	require.Equal(t, uint64(0), b.minIndex())

	b.updateMinBatchIndex(5)
	require.Equal(t, uint64(5), b.minIndex())

	b.updateMinBatchIndex(3) // must not regress
	require.Equal(t, uint64(5), b.minIndex())

	var woken bool
	b.mu.Lock()
	b.block(func() { woken = true })
	b.mu.Unlock()

	b.updateMinBatchIndex(6)
	require.True(t, woken)
	require.Equal(t, uint64(6), b.minIndex())
}
