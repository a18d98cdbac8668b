// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package main

import (
	"github.com/loomdb/loom/pkg/eventloop"
	"github.com/loomdb/loom/pkg/scheduler"
	"github.com/loomdb/loom/pkg/scheduler/accept"
)

// buildScheduler constructs a Scheduler with a real platform event loop and
// a fresh fleet-local acceptor bridge, but no TransactionEngine, memory
// manager, or page-op queue: those are injected by the server process that
// embeds loomd's scheduler into a real fleet, not by this standalone
// command.
func buildScheduler(cfg scheduler.Config) (*scheduler.Scheduler, error) {
	loop, err := eventloop.NewLoop()
	if err != nil {
		return nil, err
	}
	bridge := accept.New()
	return scheduler.New(cfg, loop, bridge, nil, nil, nil, nil), nil
}
