// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package opdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/luxfi/photon/utils/wrappers"
)

// MaxSelectorLen is the largest selector payload accepted anywhere.
const MaxSelectorLen = 32

var (
	ErrSelectorTooBig        = errors.New("function selector payload exceeds 32 bytes")
	ErrInvalidSelector       = errors.New("malformed function selector")
	ErrUninitializedSelector = errors.New("function selector is not initialized")
)

// SelectorKind is the tag byte of an encoded function selector.
type SelectorKind uint8

const (
	SelectorByCode SelectorKind = iota
	SelectorByName
	SelectorDummy
)

func (k SelectorKind) String() string {
	switch k {
	case SelectorByCode:
		return "code"
	case SelectorByName:
		return "name"
	case SelectorDummy:
		return "dummy"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// FunctionSelector names the entrypoint invoked on the target handler,
// either as a raw code or as a method name.
type FunctionSelector struct {
	Kind SelectorKind
	Code []byte
	Name string
}

// ByCode returns a code selector.
func ByCode(code []byte) FunctionSelector {
	return FunctionSelector{Kind: SelectorByCode, Code: code}
}

// ByName returns a name selector.
func ByName(name string) FunctionSelector {
	return FunctionSelector{Kind: SelectorByName, Name: name}
}

// Payload returns the raw code or the name bytes.
func (s FunctionSelector) Payload() []byte {
	switch s.Kind {
	case SelectorByCode:
		return s.Code
	case SelectorByName:
		return []byte(s.Name)
	default:
		return nil
	}
}

// Bytes encodes the selector as tag || length || payload.
func (s FunctionSelector) Bytes() ([]byte, error) {
	if s.Kind > SelectorDummy {
		return nil, fmt.Errorf("%w: tag %d", ErrInvalidSelector, s.Kind)
	}
	payload := s.Payload()
	if len(payload) > MaxSelectorLen {
		return nil, ErrSelectorTooBig
	}
	p := wrappers.Packer{
		MaxSize: 2*wrappers.ByteLen + MaxSelectorLen,
		Bytes:   make([]byte, 0, 2*wrappers.ByteLen+len(payload)),
	}
	p.PackByte(byte(s.Kind))
	p.PackByte(byte(len(payload)))
	p.PackFixedBytes(payload)
	return p.Bytes, p.Err
}

// ParseFunctionSelector decodes the output of Bytes.
func ParseFunctionSelector(b []byte) (FunctionSelector, error) {
	p := wrappers.Packer{MaxSize: math.MaxInt, Bytes: b}
	tag := SelectorKind(p.UnpackByte())
	length := p.UnpackByte()
	payload := p.UnpackRemaining()
	switch {
	case p.Errored():
		return FunctionSelector{}, fmt.Errorf("%w: %w", ErrInvalidSelector, p.Err)
	case int(length) != len(payload):
		return FunctionSelector{}, fmt.Errorf("%w: declared %d bytes, got %d", ErrInvalidSelector, length, len(payload))
	case len(payload) > MaxSelectorLen:
		return FunctionSelector{}, ErrSelectorTooBig
	}

	switch tag {
	case SelectorByCode:
		return ByCode(append([]byte(nil), payload...)), nil
	case SelectorByName:
		if !utf8.Valid(payload) {
			return FunctionSelector{}, fmt.Errorf("%w: name is not utf-8", ErrInvalidSelector)
		}
		return ByName(string(payload)), nil
	case SelectorDummy:
		return FunctionSelector{Kind: SelectorDummy}, nil
	default:
		return FunctionSelector{}, fmt.Errorf("%w: tag %d", ErrInvalidSelector, tag)
	}
}

func (s FunctionSelector) String() string {
	switch s.Kind {
	case SelectorByCode:
		return "code:" + hexutil.Encode(s.Code)
	case SelectorByName:
		return "name:" + s.Name
	default:
		return s.Kind.String()
	}
}

func (s FunctionSelector) MarshalJSON() ([]byte, error) {
	b, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	return json.Marshal(hexutil.Bytes(b))
}

func (s *FunctionSelector) UnmarshalJSON(data []byte) error {
	var b hexutil.Bytes
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	parsed, err := ParseFunctionSelector(b)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
