// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/photon/vms/photonvm/events"
	"github.com/luxfi/photon/vms/photonvm/gov"
	"github.com/luxfi/photon/vms/photonvm/opdata"
	"github.com/luxfi/photon/vms/photonvm/signature"
	"github.com/luxfi/photon/vms/photonvm/state"
)

// allowedProtocol returns the initialized registry of id, requiring executor
// to be one of its executors.
func allowedProtocol(t *txn, id opdata.ProtocolID, executor ids.ID) (*state.ProtocolInfo, error) {
	info, err := t.state.GetProtocol(id)
	switch {
	case errors.Is(err, state.ErrProtocolNotFound):
		return nil, fmt.Errorf("%w: %s", ErrProtocolNotInit, id)
	case err != nil:
		return nil, err
	case !info.IsInit:
		return nil, fmt.Errorf("%w: %s", ErrProtocolNotInit, id)
	case !info.Executors.Contains(executor):
		return nil, fmt.Errorf("%w: %s", ErrExecutorIsNotAllowed, executor)
	}
	return info, nil
}

func loadedOperation(t *txn, opHash common.Hash) (*state.OpInfo, error) {
	op, err := t.state.GetOperation(opHash)
	if errors.Is(err, state.ErrOperationNotFound) {
		return nil, fmt.Errorf("%w: %s is not loaded", ErrOpStateInvalid, opHash)
	}
	return op, err
}

// LoadOperation stores op with status Init. cachedHash must be the
// operation's message hash.
func (e *Endpoint) LoadOperation(_ context.Context, executor ids.ID, op *opdata.Operation, cachedHash common.Hash) error {
	err := e.update(func(t *txn) error {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOpData, err)
		}
		config, err := t.config()
		if err != nil {
			return err
		}
		info, err := allowedProtocol(t, op.Protocol(), executor)
		if err != nil {
			return err
		}

		opHash, err := op.MessageHash(e.config.Encoding)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOpData, err)
		}
		if opHash != cachedHash {
			return fmt.Errorf("%w: computed %s, cached %s", ErrCachedOpHashMismatch, opHash, cachedHash)
		}
		switch exists, err := t.state.HasOperation(opHash); {
		case err != nil:
			return err
		case exists:
			return fmt.Errorf("%w: %s is already loaded", ErrOpStateInvalid, opHash)
		}

		dest := op.DestChainID
		if dest == nil {
			dest = new(uint256.Int)
		}
		if !dest.Eq(e.config.ChainID) {
			return fmt.Errorf("%w: destination %s, this chain %s", ErrOpIsNotForThisChain, dest, e.config.ChainID)
		}
		if op.ProtocolAddr != info.ProtocolAddress {
			return fmt.Errorf("%w: operation targets %s, registry has %s", ErrProtocolAddressMismatch, op.ProtocolAddr, info.ProtocolAddress)
		}
		if e.config.SequentialNonce {
			if op.Nonce != config.LoadNonce {
				return fmt.Errorf("%w: expected %d, got %d", ErrInvalidNonce, config.LoadNonce, op.Nonce)
			}
			config.LoadNonce++
			if err := t.state.PutConfig(config); err != nil {
				return err
			}
		}

		t.emit(&events.ProposalLoaded{
			OpHash:   opHash,
			Executor: executor,
		})
		return t.state.PutOperation(opHash, &state.OpInfo{
			Status:        state.StatusInit,
			UniqueSigners: state.NewSet[common.Address](e.config.Capacities.Transmitters),
			Operation:     *op,
		})
	})
	if err != nil {
		return e.metrics.reject("load", err)
	}

	e.metrics.loaded.Inc()
	e.log.Info("operation loaded",
		log.Stringer("opHash", cachedHash),
		log.Stringer("protocolID", op.Protocol()),
		log.Stringer("executor", executor),
		log.Uint64("nonce", op.Nonce),
	)
	return nil
}

// SignOperation records the transmitters that signed opHash and reports
// whether consensus has been reached. Signatures are processed in order
// until consensus. Any invalid signature fails the whole call.
func (e *Endpoint) SignOperation(_ context.Context, executor ids.ID, opHash common.Hash, sigs []signature.Signature) (bool, error) {
	var (
		consensus bool
		added     int
	)
	err := e.update(func(t *txn) error {
		op, err := loadedOperation(t, opHash)
		if err != nil {
			return err
		}
		if op.Status != state.StatusInit && op.Status != state.StatusSigned {
			return fmt.Errorf("%w: %s is %s", ErrOpStateInvalid, opHash, op.Status)
		}
		info, err := allowedProtocol(t, op.Operation.Protocol(), executor)
		if err != nil {
			return err
		}
		if info.Transmitters.Len() == 0 {
			return ErrNoTransmittersAllowed
		}

		reached := func() bool {
			return info.ConsensusRate(op.UniqueSigners.Len()) >= info.ConsensusTargetRate
		}
		approve := func() error {
			op.Status = state.StatusSigned
			t.emit(&events.ProposalApproved{
				OpHash:   opHash,
				Executor: executor,
			})
			return t.state.PutOperation(opHash, op)
		}

		if reached() {
			consensus = true
			if op.Status == state.StatusInit {
				return approve()
			}
			return nil
		}

		for _, sig := range sigs {
			signer, err := signature.Recover(opHash, sig)
			if err != nil {
				return err
			}
			if !info.Transmitters.Contains(signer) || op.UniqueSigners.Contains(signer) {
				continue
			}
			if err := op.UniqueSigners.Insert(signer); err != nil {
				return err
			}
			added++
			if reached() {
				consensus = true
				return approve()
			}
		}
		return t.state.PutOperation(opHash, op)
	})
	if err != nil {
		return false, e.metrics.reject("sign", err)
	}

	e.metrics.acceptedSigners.Add(float64(added))
	if consensus && added > 0 {
		e.metrics.approved.Inc()
		e.log.Info("operation approved",
			log.Stringer("opHash", opHash),
			log.Stringer("executor", executor),
		)
	}
	return consensus, nil
}

// ExecuteArgs carries the accounts handed to the handler. Accounts[0] must
// be the operation's protocol address. TargetProtocol, when set, must match
// the registry a governance operation changes. ComputeBudget is passed to
// external handlers as their execution allowance. Zero means unbounded.
type ExecuteArgs struct {
	Accounts       []ids.ID
	TargetProtocol []byte
	ComputeBudget  uint32
}

// ExecuteOperation dispatches a Signed operation to its handler and marks
// it Executed.
func (e *Endpoint) ExecuteOperation(ctx context.Context, executor ids.ID, opHash common.Hash, args ExecuteArgs) error {
	var handlerErr error
	err := e.update(func(t *txn) error {
		handlerErr = nil

		op, err := loadedOperation(t, opHash)
		if err != nil {
			return err
		}
		if op.Status != state.StatusSigned {
			return fmt.Errorf("%w: %s is %s", ErrOpStateInvalid, opHash, op.Status)
		}
		protocol := op.Operation.Protocol()
		if _, err := allowedProtocol(t, protocol, executor); err != nil {
			return err
		}
		if len(args.Accounts) == 0 || args.Accounts[0] != op.Operation.ProtocolAddr {
			return ErrProtocolAddressNotProvided
		}

		if protocol == opdata.GovProtocolID && op.Operation.ProtocolAddr == e.config.ID {
			handlerErr, err = e.executeGov(t, &op.Operation, args.TargetProtocol)
		} else {
			handlerErr = e.executeExternal(ctx, opHash, &op.Operation, args)
		}
		if err != nil {
			return err
		}
		if handlerErr != nil && e.config.FailurePolicy == FailurePolicyRevert {
			return fmt.Errorf("%w: %w", ErrHandlerFailed, handlerErr)
		}

		executed := &events.ProposalExecuted{
			OpHash:   opHash,
			Executor: executor,
		}
		if handlerErr != nil {
			executed.Err = handlerErr.Error()
		}
		op.Status = state.StatusExecuted
		t.emit(executed)
		return t.state.PutOperation(opHash, op)
	})
	if handlerErr != nil {
		e.metrics.handlerFailures.Inc()
		e.log.Warn("operation handler failed",
			log.Stringer("opHash", opHash),
			log.Stringer("policy", e.config.FailurePolicy),
			log.Err(handlerErr),
		)
	}
	if err != nil {
		return e.metrics.reject("execute", err)
	}

	e.metrics.executed.Inc()
	e.log.Info("operation executed",
		log.Stringer("opHash", opHash),
		log.Stringer("executor", executor),
		log.Bool("succeeded", handlerErr == nil),
	)
	return nil
}

// executeGov applies a governance operation in process. The first return
// is the governance failure, the second an error that aborts the call
// regardless of the failure policy.
func (e *Endpoint) executeGov(t *txn, op *opdata.Operation, declared []byte) (error, error) {
	if op.FunctionSelector.Kind != opdata.SelectorByCode {
		return fmt.Errorf("%w: governance requires a code selector", ErrInvalidMethodSelector), nil
	}
	code := op.FunctionSelector.Code

	target, err := gov.TargetProtocol(code, op.Params)
	if err != nil {
		return err, nil
	}
	if declared != nil && opdata.ProtocolID(common.BytesToHash(declared)) != target {
		return nil, fmt.Errorf("%w: declared %x, operation changes %s", ErrTargetProtocolMismatch, declared, target)
	}

	config, err := t.config()
	if err != nil {
		return nil, err
	}
	info, err := t.state.GetOrCreateProtocol(target, e.config.Capacities)
	if err != nil {
		return nil, err
	}
	proposal, err := gov.Handle(&gov.Context{
		Config:   config,
		ChainID:  e.config.ChainID,
		Protocol: target,
		Info:     info,
	}, code, op.Params)
	if err != nil {
		return err, nil
	}

	if proposal != nil {
		t.emit(proposal)
		e.metrics.proposals.Inc()
	}
	e.log.Info("governance operation applied",
		log.Stringer("target", target),
		log.Bool("proposed", proposal != nil),
	)
	return nil, errors.Join(
		t.state.PutConfig(config),
		t.state.PutProtocol(target, info),
	)
}

func (e *Endpoint) executeExternal(ctx context.Context, opHash common.Hash, op *opdata.Operation, args ExecuteArgs) error {
	handler, ok := e.handlers.Get(op.ProtocolAddr)
	if !ok {
		return fmt.Errorf("%w: %s", ErrHandlerNotFound, op.ProtocolAddr)
	}

	protocol := op.Protocol()
	call := &Call{
		Authority:  e.CallAuthority(protocol),
		OpHash:     opHash,
		ProtocolID: protocol,
		Params:     op.Params,
		Accounts:   args.Accounts,
		Budget:     args.ComputeBudget,
	}
	switch op.FunctionSelector.Kind {
	case opdata.SelectorByCode:
		call.Method = ReceiveMethod
		call.Selector = op.FunctionSelector.Code
	case opdata.SelectorByName:
		call.Method = op.FunctionSelector.Name
	default:
		return opdata.ErrUninitializedSelector
	}
	return handler.HandlePhotonMsg(ctx, call)
}
