// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

// Package log provides the leveled, context-scoped logging facility used
// throughout the scheduler. It intentionally covers only the call shapes
// the scheduler packages need (Infof/Warningf/Errorf/Fatalf/VEventf); it is
// not a replacement for a full multi-sink logging stack.
package log

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/redact"
)

// Severity orders log messages for filtering and formatting.
type Severity int32

// Severity levels, ordered least to most severe.
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "I"
	case SeverityWarning:
		return "W"
	case SeverityError:
		return "E"
	case SeverityFatal:
		return "F"
	default:
		return "?"
	}
}

// sink is where formatted entries are written. Tests may swap this out.
var sink = os.Stderr

// exitFunc is called after a Fatal entry is emitted. Tests may override it
// to avoid terminating the test binary.
var exitFunc = os.Exit

func output(ctx context.Context, sev Severity, depth int, format string, args []interface{}) {
	msg := redact.Sprintf(format, args...)
	now := time.Now().UTC().Format("2006-01-02 15:04:05.000000")
	tags := formatTags(ctx)
	fmt.Fprintf(sink, "%s %s%s %s\n", now, sev, tags, msg.Redact())
	if sev == SeverityFatal {
		exitFunc(1)
	}
}

// Infof logs an informational message.
func Infof(ctx context.Context, format string, args ...interface{}) {
	output(ctx, SeverityInfo, 1, format, args)
}

// Warningf logs a warning. Used for recoverable per-task and per-command
// failures that must not interrupt the scheduler loop.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, SeverityWarning, 1, format, args)
}

// Errorf logs an error that was handled but is noteworthy.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, SeverityError, 1, format, args)
}

// Fatalf logs and then terminates the process. Reserved for programming
// errors and violated single-owner invariants; never used for collaborator
// failures, which are always recoverable from the scheduler's perspective.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, SeverityFatal, 1, format, args)
}

// VEventf logs at verbose-event granularity; it is a no-op unless verbose
// logging has been enabled with SetVerbose, and then emits only calls whose
// level is at or below the configured one.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	v := verboseLevel.Load()
	if v <= 0 || level > v {
		return
	}
	output(ctx, SeverityInfo, 1, format, args)
}

func formatTags(ctx context.Context) string {
	tags := tagsFromContext(ctx)
	if len(tags) == 0 {
		return ""
	}
	out := " ["
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out + "]"
}
