// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package events defines what the endpoint reports to relays.
package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/luxfi/ids"

	"github.com/luxfi/photon/vms/photonvm/opdata"
)

var (
	_ Event = (*ProposalLoaded)(nil)
	_ Event = (*ProposalApproved)(nil)
	_ Event = (*ProposalExecuted)(nil)
	_ Event = (*ProposeEvent)(nil)
)

type Event interface {
	Type() string
}

// ProposalLoaded is emitted when an operation is loaded.
type ProposalLoaded struct {
	OpHash   common.Hash `serialize:"true" json:"opHash"`
	Executor ids.ID      `serialize:"true" json:"executor"`
}

func (*ProposalLoaded) Type() string { return "ProposalLoaded" }

// ProposalApproved is emitted when an operation first reaches consensus.
type ProposalApproved struct {
	OpHash   common.Hash `serialize:"true" json:"opHash"`
	Executor ids.ID      `serialize:"true" json:"executor"`
}

func (*ProposalApproved) Type() string { return "ProposalApproved" }

// ProposalExecuted is emitted after dispatch. Err holds the handler error
// when failures are recorded rather than reverted.
type ProposalExecuted struct {
	OpHash   common.Hash `serialize:"true" json:"opHash"`
	Executor ids.ID      `serialize:"true" json:"executor"`
	Err      string      `serialize:"true" json:"err,omitempty"`
}

func (*ProposalExecuted) Type() string { return "ProposalExecuted" }

// ProposeEvent asks relays to deliver an operation to another chain.
type ProposeEvent struct {
	ProtocolID      opdata.ProtocolID `serialize:"true" json:"protocolId"`
	Nonce           uint64            `serialize:"true" json:"nonce"`
	DstChainID      common.Hash       `serialize:"true" json:"dstChainId"`
	ProtocolAddress hexutil.Bytes     `serialize:"true" json:"protocolAddress"`
	// FunctionSelector is the tag, length and payload encoding
	FunctionSelector hexutil.Bytes `serialize:"true" json:"functionSelector"`
	Params           hexutil.Bytes `serialize:"true" json:"params"`
}

func (*ProposeEvent) Type() string { return "ProposeEvent" }

// DstChain returns the destination chain id as an integer.
func (e *ProposeEvent) DstChain() *uint256.Int {
	return new(uint256.Int).SetBytes32(e.DstChainID[:])
}

// Selector decodes FunctionSelector.
func (e *ProposeEvent) Selector() (opdata.FunctionSelector, error) {
	return opdata.ParseFunctionSelector(e.FunctionSelector)
}

// ChainWord encodes a chain id as a 32 byte big-endian word.
func ChainWord(id *uint256.Int) common.Hash {
	if id == nil {
		return common.Hash{}
	}
	return id.Bytes32()
}
