// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/loomdb/loom/pkg/scheduler"
	"github.com/loomdb/loom/pkg/scheduler/gccoord"
	"github.com/loomdb/loom/pkg/util/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		id                int64
		schedulerCount    int64
		sessionTimeout    string
		pollTimeoutMillis int64
		baseLoad          int64
		verbose           int32
		metricsAddr       string
		adminAddr         string
	)

	cmd := &cobra.Command{
		Use:   "loomd",
		Short: "loomd runs one scheduler shard of the loom database server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.SetVerbose(verbose)

			cfg := scheduler.Config{
				scheduler.ConfigKeyID:               fmt.Sprintf("%d", id),
				scheduler.ConfigKeySchedulerCount:    fmt.Sprintf("%d", schedulerCount),
				scheduler.ConfigKeySessionTimeout:    sessionTimeout,
				scheduler.ConfigKeyPollTimeoutMillis: fmt.Sprintf("%d", pollTimeoutMillis),
				scheduler.ConfigKeyBaseLoad:          fmt.Sprintf("%d", baseLoad),
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runScheduler(ctx, cfg, metricsAddr, adminAddr)
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&id, "id", 0, "this scheduler's fleet-unique id")
	flags.Int64Var(&schedulerCount, "scheduler-count", 1, "total number of schedulers in the fleet")
	flags.StringVar(&sessionTimeout, "session-timeout", "30m", "per-session inactivity timeout")
	flags.Int64Var(&pollTimeoutMillis, "poll-timeout-millis", 1000, "event loop poll timeout in milliseconds")
	flags.Int64Var(&baseLoad, "base-load", 0, "constant added to live session count when reporting load")
	flags.Int32Var(&verbose, "verbose", 0, "verbose logging level")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics on, empty disables it")
	flags.StringVar(&adminAddr, "admin-addr", "", "address to serve operator endpoints (e.g. POST /gc) on, empty disables it")

	return cmd
}

func runScheduler(ctx context.Context, cfg scheduler.Config, metricsAddr, adminAddr string) error {
	// Wiring a real listener, transaction engine, and memory manager is the
	// responsibility of the server process that embeds this scheduler;
	// loomd on its own exercises the scheduler against no collaborators so
	// operators can smoke-test the binary's flag parsing and shutdown path.
	sched, err := buildScheduler(cfg)
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := sched.Metrics().RegisterWith(reg); err != nil {
			return err
		}
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warningf(ctx, "metrics server exited: %v", err)
			}
		}()
		defer srv.Close()
	}

	if adminAddr != "" {
		coord := gccoord.New(1)
		fleet := []gccoord.Triggerable{sched}
		mux := http.NewServeMux()
		mux.HandleFunc("/gc", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			if err := coord.SweepAll(r.Context(), fleet, func(t gccoord.Triggerable) {
				t.(*scheduler.Scheduler).ForceGC(r.Context())
			}); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		})
		srv := &http.Server{Addr: adminAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warningf(ctx, "admin server exited: %v", err)
			}
		}()
		defer srv.Close()
	}

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	<-ctx.Done()
	sched.Stop()
	return <-done
}
