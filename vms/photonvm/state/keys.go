// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"

	"github.com/luxfi/photon/vms/photonvm/opdata"
)

// Every key starts with the root label followed by a fixed record label so
// any caller can derive a record's key without an index.
var (
	Root = []byte("root-0")

	configLabel        = []byte("CONFIG")
	protocolLabel      = []byte("PROTOCOL")
	opLabel            = []byte("OP")
	eventLabel         = []byte("EVENT")
	eventSeqLabel      = []byte("NEXT_EVENT")
	callAuthorityLabel = []byte("CALL_AUTHORITY")
)

func key(label []byte, suffix ...[]byte) []byte {
	size := len(Root) + len(label)
	for _, s := range suffix {
		size += len(s)
	}
	k := make([]byte, 0, size)
	k = append(k, Root...)
	k = append(k, label...)
	for _, s := range suffix {
		k = append(k, s...)
	}
	return k
}

func ConfigKey() []byte {
	return key(configLabel)
}

func ProtocolKey(id opdata.ProtocolID) []byte {
	return key(protocolLabel, id[:])
}

func OperationKey(opHash common.Hash) []byte {
	return key(opLabel, opHash[:])
}

func EventKey(seq uint64) []byte {
	return key(eventLabel, database.PackUInt64(seq))
}

func eventPrefix() []byte {
	return key(eventLabel)
}

func eventSeqKey() []byte {
	return key(eventSeqLabel)
}

// CallAuthority derives the identity an endpoint uses when it invokes the
// handler of protocol. Each protocol gets its own authority.
func CallAuthority(endpoint ids.ID, protocol opdata.ProtocolID) ids.ID {
	return ids.ID(crypto.Keccak256Hash(key(callAuthorityLabel, protocol[:], endpoint[:])))
}
