// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRegisterWithSucceedsOnceEachPerRegistry(t *testing.T) {
	m := New(1)
	reg := prometheus.NewRegistry()
	require.NoError(t, m.RegisterWith(reg))

	m.SessionsAdmitted.Inc()
	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestTwoSchedulersDoNotCollideOnOneRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, New(1).RegisterWith(reg))
	require.NoError(t, New(2).RegisterWith(reg))
}
