// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gov

import (
	"encoding/binary"
	"fmt"

	"github.com/luxfi/photon/vms/photonvm/opdata"
)

const selectorLen = 4

// Method is the 4 byte big-endian code carried by a governance operation's
// by-code selector.
type Method uint32

const (
	AddAllowedProtocol           Method = 0x45a004b9
	AddAllowedProtocolAddress    Method = 0xd296a0ff
	RemoveAllowedProtocolAddress Method = 0xb0a4ca98
	AddAllowedProposerAddress    Method = 0xce0940a5
	RemoveAllowedProposerAddress Method = 0xb8e5f3f4
	AddExecutor                  Method = 0xe0aafb68
	RemoveExecutor               Method = 0x04fa384a
	AddTransmitters              Method = 0x6c5f5666
	RemoveTransmitters           Method = 0x5206da70
	UpdateTransmitters           Method = 0x654b46e1
	SetConsensusTargetRate       Method = 0x970b6109
)

var methodNames = map[Method]string{
	AddAllowedProtocol:           "addAllowedProtocol",
	AddAllowedProtocolAddress:    "addAllowedProtocolAddress",
	RemoveAllowedProtocolAddress: "removeAllowedProtocolAddress",
	AddAllowedProposerAddress:    "addAllowedProposerAddress",
	RemoveAllowedProposerAddress: "removeAllowedProposerAddress",
	AddExecutor:                  "addExecutor",
	RemoveExecutor:               "removeExecutor",
	AddTransmitters:              "addTransmitters",
	RemoveTransmitters:           "removeTransmitters",
	UpdateTransmitters:           "updateTransmitters",
	SetConsensusTargetRate:       "setConsensusTargetRate",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%#08x)", uint32(m))
}

// Selector returns the by-code selector that invokes m.
func (m Method) Selector() opdata.FunctionSelector {
	code := make([]byte, selectorLen)
	binary.BigEndian.PutUint32(code, uint32(m))
	return opdata.ByCode(code)
}

// ParseMethod reads the method from the first 4 bytes of code.
func ParseMethod(code []byte) (Method, error) {
	if len(code) < selectorLen {
		return 0, fmt.Errorf("%w: %d byte code", ErrInvalidMethodSelector, len(code))
	}
	m := Method(binary.BigEndian.Uint32(code))
	if _, ok := methodNames[m]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidMethodSelector, m)
	}
	return m, nil
}
