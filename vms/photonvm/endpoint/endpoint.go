// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package endpoint implements the on-chain half of the bridge: operations
// are loaded, signed by transmitters until consensus and then executed
// exactly once against their protocol handler.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/luxfi/database"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/photon/vms/photonvm/events"
	"github.com/luxfi/photon/vms/photonvm/opdata"
	"github.com/luxfi/photon/vms/photonvm/state"
)

// Endpoint serializes every call and applies it to the database atomically.
type Endpoint struct {
	config   Config
	log      log.Logger
	metrics  *metrics
	handlers *Handlers

	lock sync.Mutex
	db   database.Database
}

func New(
	config Config,
	db database.Database,
	logger log.Logger,
	registerer metric.Registerer,
	handlers *Handlers,
) (*Endpoint, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid endpoint config: %w", err)
	}
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register endpoint metrics: %w", err)
	}
	if handlers == nil {
		handlers = NewHandlers()
	}
	return &Endpoint{
		config:   config,
		log:      logger,
		metrics:  m,
		handlers: handlers,
		db:       db,
	}, nil
}

func (e *Endpoint) ID() ids.ID {
	return e.config.ID
}

func (e *Endpoint) ChainID() *uint256.Int {
	return e.config.ChainID.Clone()
}

func (e *Endpoint) Encoding() opdata.Encoding {
	return e.config.Encoding
}

func (e *Endpoint) Handlers() *Handlers {
	return e.handlers
}

// CallAuthority returns the identity used to call the handler of protocol.
func (e *Endpoint) CallAuthority(protocol opdata.ProtocolID) ids.ID {
	return state.CallAuthority(e.config.ID, protocol)
}

// HashOperation returns the identifier op is loaded and signed under.
func (e *Endpoint) HashOperation(op *opdata.Operation) (common.Hash, error) {
	return op.MessageHash(e.config.Encoding)
}

// txn is a single endpoint call in progress.
type txn struct {
	state  *state.State
	events []events.Event
}

func (t *txn) emit(event events.Event) {
	t.events = append(t.events, event)
}

func (t *txn) config() (*state.Config, error) {
	config, err := t.state.GetConfig()
	if errors.Is(err, state.ErrConfigNotFound) {
		return nil, ErrNotInitialized
	}
	return config, err
}

// update runs fn against a fresh database layer. The layer and the events
// fn emitted are committed only if fn succeeds.
func (e *Endpoint) update(fn func(*txn) error) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	vdb := versiondb.New(e.db)
	defer vdb.Abort()

	t := &txn{state: state.New(vdb)}
	if err := fn(t); err != nil {
		return err
	}
	for _, event := range t.events {
		b, err := events.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", event.Type(), err)
		}
		if _, err := t.state.AppendEvent(b); err != nil {
			return fmt.Errorf("failed to append %s: %w", event.Type(), err)
		}
	}
	return vdb.Commit()
}

func (e *Endpoint) read() *state.State {
	return state.New(e.db)
}

// InitializeArgs configures the endpoint and its governance registry.
type InitializeArgs struct {
	EOBChainID             uint64
	EOBMasterSmartContract []byte
	ConsensusTargetRate    uint64
	GovTransmitters        []common.Address
	GovExecutors           []ids.ID
}

// Initialize creates the endpoint config with admin as its administrator
// and registers the governance protocol at the endpoint's own address.
func (e *Endpoint) Initialize(_ context.Context, admin ids.ID, args InitializeArgs) error {
	err := e.update(func(t *txn) error {
		switch _, err := t.state.GetConfig(); {
		case err == nil:
			return ErrAlreadyInitialized
		case !errors.Is(err, state.ErrConfigNotFound):
			return err
		}
		if len(args.EOBMasterSmartContract) != common.HashLength {
			return fmt.Errorf("%w: master contract is %d bytes", ErrInvalidAddress, len(args.EOBMasterSmartContract))
		}
		switch {
		case args.ConsensusTargetRate == 0:
			return ErrConsensusTargetRateTooLow
		case args.ConsensusTargetRate > state.RateDecimals:
			return ErrConsensusTargetRateTooHigh
		}

		info := state.NewProtocolInfo(e.config.Capacities)
		info.IsInit = true
		info.ConsensusTargetRate = args.ConsensusTargetRate
		info.ProtocolAddress = e.config.ID
		for _, transmitter := range args.GovTransmitters {
			if info.Transmitters.Contains(transmitter) {
				continue
			}
			if err := info.Transmitters.Insert(transmitter); err != nil {
				return fmt.Errorf("%w: %w", ErrMaxTransmittersExceeded, err)
			}
		}
		for _, executor := range args.GovExecutors {
			if info.Executors.Contains(executor) {
				continue
			}
			if err := info.Executors.Insert(executor); err != nil {
				return fmt.Errorf("%w: %w", ErrMaxExecutorsExceeded, err)
			}
		}

		config := &state.Config{
			Initialized:            true,
			Admin:                  admin,
			EOBChainID:             args.EOBChainID,
			EOBMasterSmartContract: common.BytesToHash(args.EOBMasterSmartContract),
		}
		return errors.Join(
			t.state.PutConfig(config),
			t.state.PutProtocol(opdata.GovProtocolID, info),
		)
	})
	if err != nil {
		return e.metrics.reject("initialize", err)
	}

	e.log.Info("endpoint initialized",
		log.Stringer("admin", admin),
		log.Uint64("eobChainID", args.EOBChainID),
		log.Int("govTransmitters", len(args.GovTransmitters)),
		log.Int("govExecutors", len(args.GovExecutors)),
	)
	return nil
}

// ProposeArgs describes an operation to deliver to another chain.
type ProposeArgs struct {
	ProtocolID       opdata.ProtocolID
	DstChainID       *uint256.Int
	ProtocolAddress  []byte
	FunctionSelector opdata.FunctionSelector
	Params           []byte
}

// Propose emits a ProposeEvent for relays on behalf of proposer.
func (e *Endpoint) Propose(_ context.Context, proposer ids.ID, args ProposeArgs) (*events.ProposeEvent, error) {
	var proposal *events.ProposeEvent
	err := e.update(func(t *txn) error {
		config, err := t.config()
		if err != nil {
			return err
		}
		info, err := t.state.GetProtocol(args.ProtocolID)
		switch {
		case errors.Is(err, state.ErrProtocolNotFound):
			return fmt.Errorf("%w: %s", ErrProtocolNotInit, args.ProtocolID)
		case err != nil:
			return err
		case !info.IsInit:
			return fmt.Errorf("%w: %s", ErrProtocolNotInit, args.ProtocolID)
		case !info.Proposers.Contains(proposer):
			return fmt.Errorf("%w: %s", ErrProposerIsNotAllowed, proposer)
		case args.FunctionSelector.Kind == opdata.SelectorDummy:
			return fmt.Errorf("%w: %w", ErrInvalidMethodSelector, opdata.ErrUninitializedSelector)
		}
		selector, err := args.FunctionSelector.Bytes()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMethodSelector, err)
		}

		proposal = &events.ProposeEvent{
			ProtocolID:       args.ProtocolID,
			Nonce:            config.Nonce,
			DstChainID:       events.ChainWord(args.DstChainID),
			ProtocolAddress:  args.ProtocolAddress,
			FunctionSelector: selector,
			Params:           args.Params,
		}
		config.Nonce++
		t.emit(proposal)
		return t.state.PutConfig(config)
	})
	if err != nil {
		return nil, e.metrics.reject("propose", err)
	}

	e.metrics.proposals.Inc()
	e.log.Debug("proposal emitted",
		log.Stringer("protocolID", args.ProtocolID),
		log.Uint64("nonce", proposal.Nonce),
		log.Stringer("dstChainID", proposal.DstChain()),
	)
	return proposal, nil
}

// Config returns the endpoint config.
func (e *Endpoint) Config() (*state.Config, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	config, err := e.read().GetConfig()
	if errors.Is(err, state.ErrConfigNotFound) {
		return nil, ErrNotInitialized
	}
	return config, err
}

// Protocol returns the registry of id.
func (e *Endpoint) Protocol(id opdata.ProtocolID) (*state.ProtocolInfo, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.read().GetProtocol(id)
}

// Operation returns the stored state of opHash.
func (e *Endpoint) Operation(opHash common.Hash) (*state.OpInfo, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.read().GetOperation(opHash)
}

// OperationStatus returns StatusNone for unknown operations.
func (e *Endpoint) OperationStatus(opHash common.Hash) (state.Status, error) {
	info, err := e.Operation(opHash)
	switch {
	case errors.Is(err, state.ErrOperationNotFound):
		return state.StatusNone, nil
	case err != nil:
		return state.StatusNone, err
	default:
		return info.Status, nil
	}
}

// Events returns up to limit journaled events starting at sequence from.
func (e *Endpoint) Events(from uint64, limit int) ([]events.Record, error) {
	e.lock.Lock()
	raw, err := e.read().Events(from, limit)
	e.lock.Unlock()
	if err != nil {
		return nil, err
	}

	records := make([]events.Record, 0, len(raw))
	for _, r := range raw {
		record, err := events.NewRecord(r.Seq, r.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", r.Seq, err)
		}
		records = append(records, record)
	}
	return records, nil
}
