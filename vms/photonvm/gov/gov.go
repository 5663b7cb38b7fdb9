// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gov mutates target registries from governance operations that
// passed the same load, sign and execute pipeline as any other operation.
package gov

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/luxfi/ids"

	"github.com/luxfi/photon/vms/photonvm/events"
	"github.com/luxfi/photon/vms/photonvm/opdata"
	"github.com/luxfi/photon/vms/photonvm/state"
)

// HandleAddAllowedProtocolSelector is invoked on the master contract once
// a protocol has been registered here.
var HandleAddAllowedProtocolSelector = [32]byte{0xba, 0x96, 0x6e, 0x5f}

// Context is the state a governance operation runs against.
type Context struct {
	Config *state.Config
	// ChainID identifies this chain in outbound proposals
	ChainID *uint256.Int
	// Protocol is the id of the registry in Info
	Protocol opdata.ProtocolID
	Info     *state.ProtocolInfo
}

// TargetProtocol returns the protocol whose registry the governance call
// described by code and params changes.
func TargetProtocol(code, params []byte) (opdata.ProtocolID, error) {
	m, err := ParseMethod(code)
	if err != nil {
		return opdata.ProtocolID{}, err
	}
	_, id, err := decodeParams(m, params)
	if err != nil {
		return opdata.ProtocolID{}, err
	}
	return opdata.ProtocolID(id), nil
}

// Handle applies the governance call to ctx. Registering a protocol returns
// the proposal that notifies the master contract.
func Handle(ctx *Context, code, params []byte) (*events.ProposeEvent, error) {
	m, err := ParseMethod(code)
	if err != nil {
		return nil, err
	}
	decoded, id, err := decodeParams(m, params)
	if err != nil {
		return nil, err
	}
	if opdata.ProtocolID(id) != ctx.Protocol {
		return nil, fmt.Errorf("%w: params name %s, registry is %s",
			ErrTargetProtocolMismatch, opdata.ProtocolID(id), ctx.Protocol)
	}

	info := ctx.Info
	switch p := decoded.(type) {
	case *ProtocolParams:
		return addAllowedProtocol(ctx, p)
	case *AddressParams:
		switch m {
		case AddAllowedProtocolAddress:
			addr, err := toID(p.Addr)
			if err != nil {
				return nil, err
			}
			info.ProtocolAddress = addr
		case RemoveAllowedProtocolAddress:
			info.ProtocolAddress = ids.Empty
		case AddAllowedProposerAddress:
			return nil, addProposer(info, p.Addr)
		case RemoveAllowedProposerAddress:
			proposer, err := toID(p.Addr)
			if err != nil {
				return nil, err
			}
			info.Proposers.Remove(proposer)
		case AddExecutor:
			return nil, addExecutor(info, p.Addr)
		case RemoveExecutor:
			return nil, removeExecutor(ctx, p.Addr)
		}
	case *TransmittersParams:
		if m == RemoveTransmitters {
			removeTransmitters(info, p.Transmitters)
			return nil, nil
		}
		toAdd := nonZero(p.Transmitters)
		if len(toAdd) == 0 {
			return nil, ErrNoTransmittersAllowed
		}
		return nil, setTransmitters(info, append(info.Transmitters.List(), toAdd...))
	case *UpdateTransmittersParams:
		removeTransmitters(info, p.ToRemove)
		if toAdd := nonZero(p.ToAdd); len(toAdd) > 0 {
			return nil, setTransmitters(info, append(info.Transmitters.List(), toAdd...))
		}
	case *RateParams:
		rate, err := checkRate(p.ConsensusTargetRate)
		if err != nil {
			return nil, err
		}
		info.ConsensusTargetRate = rate
	}
	return nil, nil
}

func addAllowedProtocol(ctx *Context, p *ProtocolParams) (*events.ProposeEvent, error) {
	rate, err := checkRate(p.ConsensusTargetRate)
	if err != nil {
		return nil, err
	}
	if err := setTransmitters(ctx.Info, nonZero(p.Transmitters)); err != nil {
		return nil, err
	}
	ctx.Info.IsInit = true
	ctx.Info.ConsensusTargetRate = rate

	selector, err := bytes32Scheme.Pack(HandleAddAllowedProtocolSelector)
	if err != nil {
		return nil, err
	}
	chainID := new(big.Int)
	if ctx.ChainID != nil {
		chainID = ctx.ChainID.ToBig()
	}
	params, err := protocolChainScheme.Pack(protocolChainParams{
		ProtocolId: p.ProtocolId,
		ChainId:    chainID,
	})
	if err != nil {
		return nil, err
	}

	nonce := ctx.Config.Nonce
	ctx.Config.Nonce++
	return &events.ProposeEvent{
		ProtocolID:       opdata.GovProtocolID,
		Nonce:            nonce,
		DstChainID:       events.ChainWord(uint256.NewInt(ctx.Config.EOBChainID)),
		ProtocolAddress:  ctx.Config.EOBMasterSmartContract.Bytes(),
		FunctionSelector: append([]byte{byte(opdata.SelectorByCode), opdata.MaxSelectorLen}, selector...),
		Params:           params,
	}, nil
}

func addProposer(info *state.ProtocolInfo, addr []byte) error {
	proposer, err := toID(addr)
	if err != nil {
		return err
	}
	switch {
	case proposer == ids.Empty:
		return ErrInvalidProposerAddress
	case info.Proposers.Contains(proposer):
		return ErrProposerIsAlreadyAllowed
	case info.Proposers.Len() >= info.Proposers.Cap():
		return fmt.Errorf("%w: capacity %d", ErrMaxProposersExceeded, info.Proposers.Cap())
	}
	return info.Proposers.Insert(proposer)
}

func addExecutor(info *state.ProtocolInfo, addr []byte) error {
	executor, err := toID(addr)
	if err != nil {
		return err
	}
	switch {
	case executor == ids.Empty:
		return ErrInvalidExecutorAddress
	case info.Executors.Contains(executor):
		return ErrExecutorIsAlreadyAllowed
	case info.Executors.Len() >= info.Executors.Cap():
		return fmt.Errorf("%w: capacity %d", ErrMaxExecutorsExceeded, info.Executors.Cap())
	}
	return info.Executors.Insert(executor)
}

func removeExecutor(ctx *Context, addr []byte) error {
	executor, err := toID(addr)
	if err != nil {
		return err
	}
	executors := ctx.Info.Executors
	if !executors.Contains(executor) {
		return nil
	}
	if executors.Len() == 1 && ctx.Protocol == opdata.GovProtocolID {
		return ErrTryingToRemoveLastGovExecutor
	}
	ctx.Info.Executors.Remove(executor)
	return nil
}

// setTransmitters replaces the transmitter set with the distinct entries of
// addrs. Nothing changes if they do not fit.
func setTransmitters(info *state.ProtocolInfo, addrs []common.Address) error {
	next := state.NewSet[common.Address](info.Transmitters.Cap())
	for _, addr := range addrs {
		if next.Contains(addr) {
			continue
		}
		if err := next.Insert(addr); err != nil {
			return fmt.Errorf("%w: capacity %d", ErrMaxTransmittersExceeded, next.Cap())
		}
	}
	info.Transmitters = next
	return nil
}

func removeTransmitters(info *state.ProtocolInfo, addrs []common.Address) {
	for _, addr := range addrs {
		info.Transmitters.Remove(addr)
	}
}

func nonZero(addrs []common.Address) []common.Address {
	filtered := make([]common.Address, 0, len(addrs))
	for _, addr := range addrs {
		if addr != (common.Address{}) {
			filtered = append(filtered, addr)
		}
	}
	return filtered
}

func checkRate(rate *big.Int) (uint64, error) {
	switch {
	case rate == nil || rate.Sign() <= 0:
		return 0, ErrConsensusTargetRateTooLow
	case !rate.IsUint64() || rate.Uint64() > state.RateDecimals:
		return 0, fmt.Errorf("%w: %s > %d", ErrConsensusTargetRateTooHigh, rate, state.RateDecimals)
	}
	return rate.Uint64(), nil
}

func toID(addr []byte) (ids.ID, error) {
	id, err := ids.ToID(addr)
	if err != nil {
		return ids.Empty, fmt.Errorf("%w: address is %d bytes", ErrInvalidGovMsg, len(addr))
	}
	return id, nil
}
