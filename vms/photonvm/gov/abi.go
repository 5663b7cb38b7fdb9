// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gov

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Governance params are ABI encoded as a single tuple whose first member is
// the protocol id of the registry being changed.

type ProtocolParams struct {
	ProtocolId          [32]byte
	ConsensusTargetRate *big.Int
	Transmitters        []common.Address
}

// AddressParams carries a handler, proposer or executor address.
type AddressParams struct {
	ProtocolId [32]byte
	Addr       []byte
}

type TransmittersParams struct {
	ProtocolId   [32]byte
	Transmitters []common.Address
}

type UpdateTransmittersParams struct {
	ProtocolId [32]byte
	ToAdd      []common.Address
	ToRemove   []common.Address
}

type RateParams struct {
	ProtocolId          [32]byte
	ConsensusTargetRate *big.Int
}

// protocolChainParams is the payload echoed back to the master contract
// after a protocol is registered.
type protocolChainParams struct {
	ProtocolId [32]byte
	ChainId    *big.Int
}

var (
	protocolScheme = tupleArgs(
		abi.ArgumentMarshaling{Name: "protocolId", Type: "bytes32"},
		abi.ArgumentMarshaling{Name: "consensusTargetRate", Type: "uint256"},
		abi.ArgumentMarshaling{Name: "transmitters", Type: "address[]"},
	)
	addressScheme = tupleArgs(
		abi.ArgumentMarshaling{Name: "protocolId", Type: "bytes32"},
		abi.ArgumentMarshaling{Name: "addr", Type: "bytes"},
	)
	transmittersScheme = tupleArgs(
		abi.ArgumentMarshaling{Name: "protocolId", Type: "bytes32"},
		abi.ArgumentMarshaling{Name: "transmitters", Type: "address[]"},
	)
	updateTransmittersScheme = tupleArgs(
		abi.ArgumentMarshaling{Name: "protocolId", Type: "bytes32"},
		abi.ArgumentMarshaling{Name: "toAdd", Type: "address[]"},
		abi.ArgumentMarshaling{Name: "toRemove", Type: "address[]"},
	)
	rateScheme = tupleArgs(
		abi.ArgumentMarshaling{Name: "protocolId", Type: "bytes32"},
		abi.ArgumentMarshaling{Name: "consensusTargetRate", Type: "uint256"},
	)
	protocolChainScheme = tupleArgs(
		abi.ArgumentMarshaling{Name: "protocolId", Type: "bytes32"},
		abi.ArgumentMarshaling{Name: "chainId", Type: "uint256"},
	)
	bytes32Scheme = abi.Arguments{{Type: mustType("bytes32", nil)}}

	schemes = map[Method]abi.Arguments{
		AddAllowedProtocol:           protocolScheme,
		AddAllowedProtocolAddress:    addressScheme,
		RemoveAllowedProtocolAddress: addressScheme,
		AddAllowedProposerAddress:    addressScheme,
		RemoveAllowedProposerAddress: addressScheme,
		AddExecutor:                  addressScheme,
		RemoveExecutor:               addressScheme,
		AddTransmitters:              transmittersScheme,
		RemoveTransmitters:           transmittersScheme,
		UpdateTransmitters:           updateTransmittersScheme,
		SetConsensusTargetRate:       rateScheme,
	}
)

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

func tupleArgs(components ...abi.ArgumentMarshaling) abi.Arguments {
	return abi.Arguments{{Type: mustType("tuple", components)}}
}

// Encode ABI encodes the params of m. params must be the struct matching m,
// such as ProtocolParams for AddAllowedProtocol.
func Encode(m Method, params any) ([]byte, error) {
	scheme, ok := schemes[m]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMethodSelector, m)
	}
	return scheme.Pack(params)
}

// decodeTuple unpacks data with scheme into a new T.
func decodeTuple[T any](scheme abi.Arguments, data []byte) (*T, error) {
	out, err := scheme.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProtoMsg, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: expected 1 value, got %d", ErrInvalidProtoMsg, len(out))
	}
	return abi.ConvertType(out[0], new(T)).(*T), nil
}

// decodeParams decodes data with the scheme of m and returns the decoded
// params and their protocol id.
func decodeParams(m Method, data []byte) (any, [32]byte, error) {
	switch m {
	case AddAllowedProtocol:
		p, err := decodeTuple[ProtocolParams](protocolScheme, data)
		if err != nil {
			return nil, [32]byte{}, err
		}
		return p, p.ProtocolId, nil
	case AddAllowedProtocolAddress, RemoveAllowedProtocolAddress,
		AddAllowedProposerAddress, RemoveAllowedProposerAddress,
		AddExecutor, RemoveExecutor:
		p, err := decodeTuple[AddressParams](addressScheme, data)
		if err != nil {
			return nil, [32]byte{}, err
		}
		return p, p.ProtocolId, nil
	case AddTransmitters, RemoveTransmitters:
		p, err := decodeTuple[TransmittersParams](transmittersScheme, data)
		if err != nil {
			return nil, [32]byte{}, err
		}
		return p, p.ProtocolId, nil
	case UpdateTransmitters:
		p, err := decodeTuple[UpdateTransmittersParams](updateTransmittersScheme, data)
		if err != nil {
			return nil, [32]byte{}, err
		}
		return p, p.ProtocolId, nil
	case SetConsensusTargetRate:
		p, err := decodeTuple[RateParams](rateScheme, data)
		if err != nil {
			return nil, [32]byte{}, err
		}
		return p, p.ProtocolId, nil
	default:
		return nil, [32]byte{}, fmt.Errorf("%w: %s", ErrInvalidMethodSelector, m)
	}
}
