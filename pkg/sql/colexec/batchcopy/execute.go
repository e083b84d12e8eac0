// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import "context"

// executeTask pops and runs a single queued task, if any. Returns
// ran=false when the queue was empty.
func (op *Operator) executeTask(ctx context.Context) (ran bool, err error) {
	t := op.tasks.pop()
	if t == nil {
		return false, nil
	}
	if err := t.run(ctx, op); err != nil {
		return true, err
	}
	return true, nil
}

// executeTasks drains the task queue until it is empty or a task returns
// an error.
func (op *Operator) executeTasks(ctx context.Context) error {
	for {
		ran, err := op.executeTask(ctx)
		if err != nil {
			return err
		}
		if !ran {
			return nil
		}
	}
}
