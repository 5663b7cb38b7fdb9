// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package opdata

import (
	"bytes"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ProtocolIDLen is the length of a protocol identifier
const ProtocolIDLen = 32

var ErrInvalidProtocolID = errors.New("protocol id must be 32 non-zero bytes")

// ProtocolID identifies a logical target protocol across every chain.
type ProtocolID [ProtocolIDLen]byte

// GovProtocolID is the reserved identifier of the governance protocol.
var GovProtocolID = ProtocolID{'p', 'h', 'o', 't', 'o', 'n', '-', 'g', 'o', 'v'}

// ToProtocolID converts b to a ProtocolID. b must be exactly 32 bytes and
// must not be all zeros.
func ToProtocolID(b []byte) (ProtocolID, error) {
	var id ProtocolID
	if len(b) != ProtocolIDLen {
		return id, fmt.Errorf("%w: got %d bytes", ErrInvalidProtocolID, len(b))
	}
	copy(id[:], b)
	if id.IsZero() {
		return id, ErrInvalidProtocolID
	}
	return id, nil
}

// ProtocolIDFromString right-pads name with zeros.
func ProtocolIDFromString(name string) (ProtocolID, error) {
	var id ProtocolID
	if len(name) == 0 || len(name) > ProtocolIDLen {
		return id, fmt.Errorf("%w: %q", ErrInvalidProtocolID, name)
	}
	copy(id[:], name)
	return id, nil
}

func (id ProtocolID) IsZero() bool {
	return id == ProtocolID{}
}

func (id ProtocolID) Bytes() []byte {
	return id[:]
}

// String returns the zero-trimmed name when it is printable text and the
// hex encoding otherwise.
func (id ProtocolID) String() string {
	name := bytes.TrimRight(id[:], "\x00")
	if len(name) > 0 && utf8.Valid(name) && isPrintable(name) {
		return string(name)
	}
	return hexutil.Encode(id[:])
}

func (id ProtocolID) MarshalText() ([]byte, error) {
	return []byte(hexutil.Encode(id[:])), nil
}

func (id *ProtocolID) UnmarshalText(text []byte) error {
	b, err := hexutil.Decode(string(text))
	if err != nil {
		return err
	}
	parsed, err := ToProtocolID(b)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func isPrintable(b []byte) bool {
	for _, r := range string(b) {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
