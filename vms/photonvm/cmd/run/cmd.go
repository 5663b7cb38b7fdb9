// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"

	"github.com/luxfi/photon/vms/photonvm"
)

const shutdownTimeout = 10 * time.Second

func Command(logger log.Logger) *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Runs a Photon endpoint and serves its API",
		RunE: func(c *cobra.Command, args []string) error {
			return runFunc(c, args, logger)
		},
	}
	AddFlags(c.Flags())
	return c
}

func runFunc(c *cobra.Command, args []string, logger log.Logger) error {
	config, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	if err := errors.Join(
		registry.Register(collectors.NewGoCollector()),
		registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})),
	); err != nil {
		return err
	}

	factory := &photonvm.Factory{}
	intf, err := factory.New(logger)
	if err != nil {
		return err
	}
	vm := intf.(*photonvm.VM)
	if err := vm.Initialize(ctx, memdb.New(), config.ConfigBytes, registry); err != nil {
		return err
	}
	if err := vm.Start(ctx); err != nil {
		return err
	}

	router, err := vm.Router(ctx)
	if err != nil {
		return err
	}
	addr := config.HTTPAddr
	if addr == "" {
		addr = vm.Config.HTTPAddr
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("serving API",
			log.String("addr", addr),
		)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = errors.Join(
		ignoreClosed(err),
		server.Shutdown(shutdownCtx),
		vm.Shutdown(shutdownCtx),
	)
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
