// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import (
	"context"

	"github.com/owenthereal/duckdb/pkg/sql/mon"
)

// monMemoryManager adapts a *mon.BytesMonitor to TemporaryMemoryManager.
// It exists because Go interface satisfaction is structural on each
// method's own signature: mon.BytesMonitor.Register returns a concrete
// *mon.BoundAccount, not the batchcopy.TemporaryMemoryState interface, so
// BytesMonitor cannot implement TemporaryMemoryManager directly even
// though *mon.BoundAccount satisfies TemporaryMemoryState's method set.
type monMemoryManager struct {
	monitor *mon.BytesMonitor
}

// NewMonMemoryManager wires monitor in as this operator's
// TemporaryMemoryManager.
func NewMonMemoryManager(monitor *mon.BytesMonitor) TemporaryMemoryManager {
	return monMemoryManager{monitor: monitor}
}

func (m monMemoryManager) Register(ctx context.Context) TemporaryMemoryState {
	return m.monitor.Register(ctx)
}
