// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package opdata

import (
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/luxfi/ids"

	"github.com/luxfi/photon/utils/wrappers"
)

const (
	// SrcOpTxIDLen is the length of the source transaction id
	SrcOpTxIDLen = 32

	// MaxChainIDBits bounds chain ids to the 128 bit range
	MaxChainIDBits = 128

	messagePrefix = "\x19Ethereum Signed Message:\n32"
)

var (
	ErrInvalidSrcOpTxID = errors.New("source operation tx id must be 32 bytes")
	ErrChainIDOverflow  = errors.New("chain id exceeds 128 bits")
	ErrUnknownEncoding  = errors.New("unknown preimage encoding")

	// DefaultMeta is the meta word attached to operations that carry no
	// extra flags.
	DefaultMeta = common.Hash{31: 1}
)

// Encoding selects the preimage layout that operation hashes are computed
// over.
type Encoding uint8

const (
	// EncodingV2 includes the meta word and the reserved trailer.
	EncodingV2 Encoding = iota
	// EncodingV1 is the legacy layout. Code selectors are padded to a
	// full word and there is no meta or reserved section.
	EncodingV1
)

func (e Encoding) String() string {
	switch e {
	case EncodingV2:
		return "v2"
	case EncodingV1:
		return "v1"
	default:
		return fmt.Sprintf("unknown(%d)", e)
	}
}

// ParseEncoding parses the String form of an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "v2", "":
		return EncodingV2, nil
	case "v1":
		return EncodingV1, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEncoding, s)
	}
}

func (e Encoding) MarshalText() ([]byte, error) {
	if e > EncodingV1 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEncoding, e)
	}
	return []byte(e.String()), nil
}

func (e *Encoding) UnmarshalText(text []byte) error {
	parsed, err := ParseEncoding(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Operation is a cross-chain message attested by transmitters on the
// source chain.
type Operation struct {
	ProtocolID       hexutil.Bytes    `json:"protocolId"`
	Meta             common.Hash      `json:"meta"`
	SrcChainID       *uint256.Int     `json:"srcChainId"`
	SrcBlockNumber   uint64           `json:"srcBlockNumber"`
	SrcOpTxID        hexutil.Bytes    `json:"srcOpTxId"`
	Nonce            uint64           `json:"nonce"`
	DestChainID      *uint256.Int     `json:"destChainId"`
	ProtocolAddr     ids.ID           `json:"protocolAddr"`
	FunctionSelector FunctionSelector `json:"functionSelector"`
	Params           hexutil.Bytes    `json:"params"`
	Reserved         hexutil.Bytes    `json:"reserved"`
}

// Protocol returns the typed protocol id. Validate must have succeeded.
func (op *Operation) Protocol() ProtocolID {
	var id ProtocolID
	copy(id[:], op.ProtocolID)
	return id
}

// Validate checks the structural constraints shared by every encoding.
func (op *Operation) Validate() error {
	if _, err := ToProtocolID(op.ProtocolID); err != nil {
		return err
	}
	if len(op.SrcOpTxID) != SrcOpTxIDLen {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidSrcOpTxID, len(op.SrcOpTxID))
	}
	if op.FunctionSelector.Kind == SelectorDummy {
		return ErrUninitializedSelector
	}
	if _, err := op.FunctionSelector.Bytes(); err != nil {
		return err
	}
	return errors.Join(
		checkChainID("source", op.SrcChainID),
		checkChainID("destination", op.DestChainID),
	)
}

func checkChainID(name string, id *uint256.Int) error {
	if id != nil && id.BitLen() > MaxChainIDBits {
		return fmt.Errorf("%w: %s chain id has %d bits", ErrChainIDOverflow, name, id.BitLen())
	}
	return nil
}

// Preimage returns the bytes that are hashed to identify the operation.
func (op *Operation) Preimage(enc Encoding) ([]byte, error) {
	sel := op.FunctionSelector
	if sel.Kind == SelectorDummy {
		return nil, ErrUninitializedSelector
	}
	if err := errors.Join(
		checkChainID("source", op.SrcChainID),
		checkChainID("destination", op.DestChainID),
	); err != nil {
		return nil, err
	}

	size := len(op.ProtocolID) + len(op.SrcOpTxID) + 4*wrappers.WordLen +
		ids.IDLen + 2*wrappers.ByteLen + wrappers.WordLen + len(op.Params)
	if enc == EncodingV2 {
		size += wrappers.WordLen + len(op.Reserved)
	}
	p := wrappers.Packer{
		MaxSize: math.MaxInt,
		Bytes:   make([]byte, 0, size),
	}

	p.PackFixedBytes(op.ProtocolID)
	switch enc {
	case EncodingV2:
		p.PackFixedBytes(op.Meta[:])
	case EncodingV1:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownEncoding, enc)
	}
	p.PackWord(op.SrcChainID)
	p.PackUint64Word(op.SrcBlockNumber)
	p.PackFixedBytes(op.SrcOpTxID)
	p.PackUint64Word(op.Nonce)
	p.PackWord(op.DestChainID)
	p.PackFixedBytes(op.ProtocolAddr[:])

	if enc == EncodingV1 && sel.Kind == SelectorByCode {
		p.PackByte(byte(SelectorByCode))
		p.PackByte(MaxSelectorLen)
		p.PackPaddedBytes(sel.Code, MaxSelectorLen)
	} else {
		selBytes, err := sel.Bytes()
		if err != nil {
			return nil, err
		}
		p.PackFixedBytes(selBytes)
	}
	if errors.Is(p.Err, wrappers.ErrOversized) {
		return nil, ErrSelectorTooBig
	}

	p.PackFixedBytes(op.Params)
	if enc == EncodingV2 {
		p.PackFixedBytes(op.Reserved)
	}
	return p.Bytes, p.Err
}

// Hash returns keccak256 of the preimage.
func (op *Operation) Hash(enc Encoding) (common.Hash, error) {
	preimage, err := op.Preimage(enc)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(preimage), nil
}

// MessageHash returns the digest that transmitters sign.
func (op *Operation) MessageHash(enc Encoding) (common.Hash, error) {
	h, err := op.Hash(enc)
	if err != nil {
		return common.Hash{}, err
	}
	return HashWithMessage(h), nil
}

// HashWithMessage wraps an operation hash in the personal message envelope.
func HashWithMessage(h common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte(messagePrefix), h[:])
}
