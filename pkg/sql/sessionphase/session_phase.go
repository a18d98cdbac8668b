// Copyright 2021 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package sessionphase tracks the timestamps a session's current statement
// has passed through, so the dispatcher and its collaborators can report
// parse/plan/run latency breakdowns without threading a stopwatch through
// every call site.
package sessionphase

import (
	"time"

	"github.com/loomdb/loom/pkg/util/timeutil"
)

// Phase indexes the Times.times array.
type Phase int

const (
	// QueryReceived is the Phase when a query is received.
	QueryReceived = iota

	// StartParse is the Phase when parsing starts.
	StartParse

	// EndParse is the Phase when parsing ends.
	EndParse

	// StartLogicalPlan is the Phase when planning starts.
	StartLogicalPlan

	// EndLogicalPlan is the Phase when planning ends.
	EndLogicalPlan

	// StartExecStmt is the Phase when execution starts.
	StartExecStmt

	// EndExecStmt is the Phase when execution ends.
	EndExecStmt

	// QueryServiced is the Phase when a query is serviced. Computed even
	// for empty queries or statements with no execution.
	QueryServiced

	// TransactionStarted is the Phase when a transaction is started.
	TransactionStarted

	// FirstStartExecTransaction is the Phase when a transaction is started
	// for the first time.
	FirstStartExecTransaction

	// MostRecentStartExecTransaction is the Phase when a transaction is
	// started for the most recent time.
	MostRecentStartExecTransaction

	// EndExecTransaction is the Phase when a transaction is either
	// committed or rolled back.
	EndExecTransaction

	// StartTransactionCommit is the Phase when a transaction COMMIT
	// starts.
	StartTransactionCommit

	// EndTransactionCommit is the Phase when a transaction COMMIT ends.
	EndTransactionCommit

	// NumPhases must be listed last so it can size the times array.
	NumPhases
)

// Times tracks the time a session's current statement passed through each
// Phase.
type Times struct {
	initTime time.Time
	times    [NumPhases]time.Time
}

// NewTimes creates a new Times, stamped with the session's creation time.
func NewTimes() *Times {
	return &Times{initTime: timeutil.Now()}
}

// Set records the time for a given Phase.
func (t *Times) Set(p Phase, at time.Time) {
	t.times[p] = at
}

// SetNow records the current time for a given Phase.
func (t *Times) SetNow(p Phase) {
	t.times[p] = timeutil.Now()
}

// Get retrieves the time for a given Phase; the zero time if never set.
func (t *Times) Get(p Phase) time.Time {
	return t.times[p]
}

// InitTime is the time this Times instance was created, coinciding with
// session initialization.
func (t *Times) InitTime() time.Time {
	return t.initTime
}

// Clone returns a copy of the current Times.
func (t *Times) Clone() *Times {
	tCopy := &Times{}
	*tCopy = *t
	return tCopy
}

// ServiceLatencyNoOverhead returns the latency of serving a query excluding
// sources of overhead like internal retries. Safe to call before
// QueryServiced is set.
func (t *Times) ServiceLatencyNoOverhead() time.Duration {
	queryReceived := t.times[QueryReceived]
	if t.times[EndParse].IsZero() {
		queryReceived = t.times[StartParse]
	}
	parseLatency := t.times[EndParse].Sub(queryReceived)

	queryEndExec := t.times[EndExecStmt]
	if queryEndExec.IsZero() {
		queryEndExec = t.times[EndLogicalPlan]
	}
	planAndExecLatency := queryEndExec.Sub(t.times[StartLogicalPlan])
	return parseLatency + planAndExecLatency
}

// ServiceLatencyTotal returns the total latency of serving a query,
// including overhead. QueryServiced must have been set.
func (t *Times) ServiceLatencyTotal() time.Duration {
	return t.times[QueryServiced].Sub(t.times[QueryReceived])
}

// RunLatency returns the time between a query's execution starting and
// ending.
func (t *Times) RunLatency() time.Duration {
	return t.times[EndExecStmt].Sub(t.times[StartExecStmt])
}

// PlanningLatency returns the time a query took to plan.
func (t *Times) PlanningLatency() time.Duration {
	return t.times[EndLogicalPlan].Sub(t.times[StartLogicalPlan])
}

// ParsingLatency returns the time a query took to parse.
func (t *Times) ParsingLatency() time.Duration {
	return t.times[EndParse].Sub(t.times[StartParse])
}

// CommitLatency returns the time spent for the transaction to finish
// commit.
func (t *Times) CommitLatency() time.Duration {
	return t.times[EndTransactionCommit].Sub(t.times[StartTransactionCommit])
}

// TransactionRetryLatency returns the time spent retrying the transaction.
func (t *Times) TransactionRetryLatency() time.Duration {
	return t.times[MostRecentStartExecTransaction].Sub(t.times[FirstStartExecTransaction])
}

// TransactionServiceLatency returns the total time to service the
// transaction.
func (t *Times) TransactionServiceLatency() time.Duration {
	return t.times[EndExecTransaction].Sub(t.times[TransactionStarted])
}

// SessionAge returns the age of the session since initialization, as of
// the last recorded execution end.
func (t *Times) SessionAge() time.Duration {
	return t.times[EndExecStmt].Sub(t.initTime)
}

// IdleLatency estimates the time spent waiting for the client while a
// transaction is open, given the Times of the previous statement (nil if
// this is the first statement of the session).
func (t *Times) IdleLatency(previous *Times) time.Duration {
	queryReceived := t.times[QueryReceived]

	var previousQueryReceived, previousQueryServiced time.Time
	if previous != nil {
		previousQueryReceived = previous.times[QueryReceived]
		previousQueryServiced = previous.times[QueryServiced]
	}

	if queryReceived.Equal(previousQueryReceived) {
		return 0
	}

	waitingSince := previousQueryServiced
	transactionStarted := t.times[TransactionStarted]
	if transactionStarted.IsZero() {
		return 0
	}
	if transactionStarted.After(waitingSince) {
		waitingSince = transactionStarted
	}
	if waitingSince.After(queryReceived) {
		return 0
	}
	return queryReceived.Sub(waitingSince)
}
