// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/ids"

	"github.com/luxfi/photon/utils/math"
	"github.com/luxfi/photon/vms/photonvm/opdata"
)

const (
	// RateDecimals is the denominator of every consensus target rate
	RateDecimals uint64 = 10_000

	MaxTransmitters = 20
	MaxExecutors    = 20
	MaxProposers    = 20
)

var (
	ErrInvalidCapacities = errors.New("registry capacities must be positive")

	errUnknownStatus = errors.New("unknown operation status")
)

// Capacities bounds the size of each registry set.
type Capacities struct {
	Transmitters int `json:"transmitters"`
	Executors    int `json:"executors"`
	Proposers    int `json:"proposers"`
}

func DefaultCapacities() Capacities {
	return Capacities{
		Transmitters: MaxTransmitters,
		Executors:    MaxExecutors,
		Proposers:    MaxProposers,
	}
}

func (c Capacities) Validate() error {
	if c.Transmitters <= 0 || c.Executors <= 0 || c.Proposers <= 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidCapacities, c)
	}
	return nil
}

// ProtocolInfo is the target registry of a single protocol.
type ProtocolInfo struct {
	IsInit              bool                `json:"isInit"`
	ConsensusTargetRate uint64              `json:"consensusTargetRate"`
	ProtocolAddress     ids.ID              `json:"protocolAddress"`
	Transmitters        Set[common.Address] `json:"transmitters"`
	Executors           Set[ids.ID]         `json:"executors"`
	Proposers           Set[ids.ID]         `json:"proposers"`
}

// NewProtocolInfo returns an uninitialized registry sized by caps.
func NewProtocolInfo(caps Capacities) *ProtocolInfo {
	return &ProtocolInfo{
		Transmitters: NewSet[common.Address](caps.Transmitters),
		Executors:    NewSet[ids.ID](caps.Executors),
		Proposers:    NewSet[ids.ID](caps.Proposers),
	}
}

// ConsensusRate returns signers * RateDecimals / transmitters, rounded up.
func (p *ProtocolInfo) ConsensusRate(signers int) uint64 {
	n := p.Transmitters.Len()
	if n == 0 {
		return 0
	}
	// signers never exceeds the transmitter capacity
	rate, _ := math.MulDivCeil(uint64(signers), RateDecimals, uint64(n))
	return rate
}

// Status is the lifecycle position of an operation. It only moves forward.
type Status uint8

const (
	StatusNone Status = iota
	StatusInit
	StatusSigned
	StatusExecuted
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusInit:
		return "init"
	case StatusSigned:
		return "signed"
	case StatusExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if s > StatusExecuted {
		return nil, fmt.Errorf("%w: %d", errUnknownStatus, s)
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for candidate := StatusNone; candidate <= StatusExecuted; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("%w: %q", errUnknownStatus, text)
}

// OpInfo is the stored state of a loaded operation.
type OpInfo struct {
	Status        Status              `json:"status"`
	UniqueSigners Set[common.Address] `json:"uniqueSigners"`
	Operation     opdata.Operation    `json:"operation"`
}

// Config is the endpoint wide singleton.
type Config struct {
	Initialized            bool        `json:"initialized"`
	Admin                  ids.ID      `json:"admin"`
	EOBChainID             uint64      `json:"eobChainId"`
	EOBMasterSmartContract common.Hash `json:"eobMasterSmartContract"`
	// Nonce is attached to outbound proposals
	Nonce uint64 `json:"nonce"`
	// LoadNonce is the next inbound nonce when loads are sequential
	LoadNonce uint64 `json:"loadNonce"`
}
