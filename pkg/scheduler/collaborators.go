// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package scheduler

import "context"

// TransactionEngine is the process-wide, internally-synchronized
// transaction engine the scheduler treats as an opaque collaborator. It is
// safe to call FullGC concurrently from every scheduler in the fleet
// provided each passes its own distinct schedulerID.
type TransactionEngine interface {
	// FullGC triggers this scheduler's partition of a cross-scheduler
	// transaction GC pass. The engine uses totalSchedulers/schedulerID to
	// partition its own work; the scheduler does not know how.
	FullGC(ctx context.Context, totalSchedulers int32, schedulerID int32)
	// RunPendingTransactions advances whatever transactions are pending
	// commit/rollback on this scheduler's sessions.
	RunPendingTransactions(ctx context.Context)
}

// MemoryManager is read-only from the scheduler's perspective.
type MemoryManager interface {
	// NeedFullGC reports whether process-wide memory pressure has crossed
	// the threshold that should trigger a GC coordinator pass.
	NeedFullGC() bool
}

// PageOpQueue, PendingTaskQueue are externally-defined queues the scheduler
// merely drains in the prescribed order each housekeeping pass.
type PageOpQueue interface {
	// RunDuePageOps runs whatever page operations are due now.
	RunDuePageOps(ctx context.Context)
}

// PendingTaskQueue is a generic externally-owned task queue drained once
// per housekeeping pass, distinct from the scheduler's own MiscQueue.
type PendingTaskQueue interface {
	RunPendingTasks(ctx context.Context)
}
