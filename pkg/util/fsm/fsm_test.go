// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type stateA struct{}
type stateB struct{}

func (stateA) State() {}
func (stateB) State() {}

type eventGo struct{ Ok Bool }

func (eventGo) Event() {}

func TestMachineAppliesWildcardTransition(t *testing.T) {
	var lastOk bool
	pattern := Pattern{
		stateA{}: {
			eventGo{Ok: Wildcard}: Transition{
				Next: stateB{},
				Action: func(a Args) error {
					lastOk = a.Event.(eventGo).Ok == True
					return nil
				},
			},
		},
	}

	m := MakeMachine(pattern, stateA{})
	require.Equal(t, stateA{}, m.CurState())

	err := m.Apply(nil, eventGo{Ok: True})
	require.NoError(t, err)
	require.Equal(t, stateB{}, m.CurState())
	require.True(t, lastOk)
}

func TestMachinePanicsOnUndefinedTransition(t *testing.T) {
	pattern := Pattern{
		stateA{}: {
			eventGo{Ok: True}: Transition{Next: stateB{}},
		},
	}
	m := MakeMachine(pattern, stateA{})

	require.Panics(t, func() {
		_ = m.Apply(nil, eventGo{Ok: False})
	})
}
