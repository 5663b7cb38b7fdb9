// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package photonvm hosts a Photon endpoint. It serves the endpoint over
// JSON-RPC and can run a relay that delivers the proposals of another node
// to it.
package photonvm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/rpc/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/photon/utils/json"
	utilmetric "github.com/luxfi/photon/utils/metric"
	"github.com/luxfi/photon/utils/timer/mockable"
	"github.com/luxfi/photon/vms/photonvm/config"
	"github.com/luxfi/photon/vms/photonvm/endpoint"
	"github.com/luxfi/photon/vms/photonvm/relay"
)

const (
	// Version of the Photon VM
	Version = "1.0.0"

	// VMID is the unique identifier for the Photon VM
	VMID = "photonvm"
)

var (
	endpointPrefix = []byte("endpoint")
	relayPrefix    = []byte("relay")

	errVMShutdown       = errors.New("VM is shutting down")
	errNotInitialized   = errors.New("VM is not initialized")
	errAlreadyStarted   = errors.New("VM already started")
	errRelayNotEnabled  = errors.New("relay is not enabled")
	errRelayUnavailable = errors.New("relay source is unreachable")
)

// VM hosts an endpoint and, when configured, its relay.
type VM struct {
	config.Config

	ctx    context.Context
	cancel context.CancelFunc
	log    log.Logger
	db     database.Database

	registry *prometheus.Registry
	endpoint *endpoint.Endpoint

	relayer    *relay.Relayer
	listener   *relay.Listener
	extensions *relay.Extensions
	source     *Client
	group      *errgroup.Group

	rpcServer *rpc.Server

	// Lifecycle
	started      bool
	shuttingDown bool
	shutdownLock sync.RWMutex

	clock     mockable.Clock
	startTime time.Time
}

// Initialize builds the endpoint from configBytes. Metrics are registered
// in registry and served from it.
func (vm *VM) Initialize(
	ctx context.Context,
	db database.Database,
	configBytes []byte,
	registry *prometheus.Registry,
) error {
	vm.ctx, vm.cancel = context.WithCancel(ctx)
	vm.db = db
	vm.registry = registry
	if vm.log == nil {
		vm.log = log.NewNoOpLogger()
	}

	cfg, err := config.ParseConfig(configBytes)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	vm.Config = cfg

	if err := vm.Config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	vm.endpoint, err = endpoint.New(
		vm.Config.Endpoint(),
		prefixdb.New(endpointPrefix, db),
		vm.log,
		registry,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create endpoint: %w", err)
	}

	if vm.Config.Relay.Enabled {
		if err := vm.initializeRelay(); err != nil {
			return fmt.Errorf("failed to initialize relay: %w", err)
		}
	}

	if err := vm.initializeHTTPHandlers(); err != nil {
		return fmt.Errorf("failed to initialize HTTP handlers: %w", err)
	}

	vm.startTime = vm.clock.Time()
	vm.log.Info("Photon VM initialized",
		log.String("version", Version),
		log.Stringer("endpointID", vm.Config.EndpointID),
		log.Stringer("chainID", vm.Config.ChainID),
		log.Stringer("encoding", vm.Config.Encoding),
		log.Stringer("failurePolicy", vm.Config.FailurePolicy),
		log.Bool("relay", vm.Config.Relay.Enabled),
	)
	return nil
}

func (vm *VM) initializeRelay() error {
	relayConfig := &vm.Config.Relay

	source, err := NewClient(relayConfig.SourceURL)
	if err != nil {
		return err
	}
	keys, err := relayConfig.Keys()
	if err != nil {
		return err
	}

	vm.source = source
	vm.extensions = relay.NewExtensions()
	vm.relayer, err = relay.New(
		relayConfig.Relayer(),
		vm.Config.Encoding,
		relay.NewLocalTransactor(vm.endpoint, relayConfig.Executor),
		vm.extensions,
		vm.log,
		vm.registry,
	)
	if err != nil {
		return err
	}
	vm.listener, err = relay.NewListener(
		relayConfig.Listener(vm.Config.ChainID, vm.Config.Encoding),
		source,
		relay.NewKeyCollector(keys...),
		vm.relayer,
		prefixdb.New(relayPrefix, vm.db),
		vm.log,
		vm.registry,
	)
	return err
}

func (vm *VM) initializeHTTPHandlers() error {
	vm.rpcServer = rpc.NewServer()
	vm.rpcServer.RegisterCodec(json.NewCodec(), "application/json")
	vm.rpcServer.RegisterCodec(json.NewCodec(), "application/json;charset=UTF-8")

	interceptor, err := utilmetric.NewAPIInterceptor("photon_api", vm.registry)
	if err != nil {
		return err
	}
	vm.rpcServer.RegisterInterceptFunc(interceptor.InterceptRequest)
	vm.rpcServer.RegisterAfterFunc(interceptor.AfterRequest)
	return vm.rpcServer.RegisterService(&Service{vm: vm}, ServiceName)
}

// Endpoint returns the hosted endpoint.
func (vm *VM) Endpoint() *endpoint.Endpoint {
	return vm.endpoint
}

// RegisterHandler routes operations targeting addr to handler.
func (vm *VM) RegisterHandler(addr ids.ID, handler endpoint.Handler) error {
	if vm.endpoint == nil {
		return errNotInitialized
	}
	return vm.endpoint.Handlers().Register(addr, handler)
}

// RegisterExtension adds a protocol extension to the relay. Extensions must
// be registered before Start.
func (vm *VM) RegisterExtension(ext relay.Extension) error {
	if vm.extensions == nil {
		return errRelayNotEnabled
	}
	return vm.extensions.Register(ext)
}

// Start runs the relay. It is a no-op when the relay is disabled.
func (vm *VM) Start(ctx context.Context) error {
	vm.shutdownLock.Lock()
	defer vm.shutdownLock.Unlock()

	switch {
	case vm.shuttingDown:
		return errVMShutdown
	case vm.endpoint == nil:
		return errNotInitialized
	case vm.started:
		return errAlreadyStarted
	case vm.relayer == nil:
		return nil
	}
	vm.started = true

	if err := vm.relayer.Start(vm.ctx); err != nil {
		return err
	}

	vm.group = &errgroup.Group{}
	vm.group.Go(func() error {
		return vm.listener.Run(vm.ctx)
	})
	vm.group.Go(func() error {
		vm.drainAcks(vm.ctx)
		return nil
	})

	vm.log.Info("relay started",
		log.String("source", vm.Config.Relay.SourceURL),
		log.Stringer("srcChainID", vm.Config.Relay.SrcChainID),
		log.Stringer("executor", vm.Config.Relay.Executor),
	)
	return nil
}

func (vm *VM) drainAcks(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ack := <-vm.relayer.Acks():
			vm.log.Debug("relay acknowledgement",
				log.Stringer("opHash", ack.OpHash),
				log.Uint64("blockNumber", ack.BlockNumber),
				log.Stringer("status", ack.Status),
			)
		}
	}
}

// Shutdown stops the relay.
func (vm *VM) Shutdown(context.Context) error {
	vm.shutdownLock.Lock()
	vm.shuttingDown = true
	vm.shutdownLock.Unlock()

	vm.log.Info("shutting down Photon VM")

	if vm.cancel != nil {
		vm.cancel()
	}
	if vm.relayer != nil {
		vm.relayer.Stop()
	}
	var err error
	if vm.group != nil {
		err = vm.group.Wait()
	}

	vm.log.Info("Photon VM shutdown complete")
	return err
}

// Version returns the VM version.
func (*VM) Version(context.Context) (string, error) {
	return Version, nil
}

// HealthCheck reports whether the endpoint is initialized and, when the
// relay runs, whether its source is reachable.
func (vm *VM) HealthCheck(ctx context.Context) (interface{}, error) {
	vm.shutdownLock.RLock()
	shuttingDown := vm.shuttingDown
	vm.shutdownLock.RUnlock()

	details := map[string]interface{}{
		"version":     Version,
		"uptime":      vm.clock.Since(vm.startTime).String(),
		"initialized": false,
	}
	if shuttingDown {
		return details, errVMShutdown
	}
	if vm.endpoint == nil {
		return details, errNotInitialized
	}

	cfg, err := vm.endpoint.Config()
	switch {
	case errors.Is(err, endpoint.ErrNotInitialized):
	case err != nil:
		return details, err
	default:
		details["initialized"] = cfg.Initialized
		details["nonce"] = cfg.Nonce
	}

	if vm.listener == nil {
		return details, nil
	}
	checkpoint, err := vm.listener.Checkpoint()
	if err != nil {
		return details, err
	}
	details["relayCheckpoint"] = checkpoint
	if _, err := vm.source.Config(ctx); err != nil && !errors.Is(err, endpoint.ErrNotInitialized) {
		return details, fmt.Errorf("%w: %w", errRelayUnavailable, err)
	}
	return details, nil
}

// CreateHandlers returns HTTP handlers for the VM.
func (vm *VM) CreateHandlers(context.Context) (map[string]http.Handler, error) {
	return map[string]http.Handler{
		"/rpc":     vm.rpcServer,
		"/metrics": promhttp.HandlerFor(vm.registry, promhttp.HandlerOpts{}),
	}, nil
}

// Router mounts the handlers of CreateHandlers on a single router.
func (vm *VM) Router(ctx context.Context) (*mux.Router, error) {
	handlers, err := vm.CreateHandlers(ctx)
	if err != nil {
		return nil, err
	}
	router := mux.NewRouter()
	for path, handler := range handlers {
		router.Handle(path, handler)
	}
	return router, nil
}
