// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package log

import "sync/atomic"

var verboseLevel atomic.Int32

// SetVerbose configures the level at which VEventf calls are emitted.
// Level 0 (the default) suppresses all VEventf output.
func SetVerbose(level int32) {
	verboseLevel.Store(level)
}
