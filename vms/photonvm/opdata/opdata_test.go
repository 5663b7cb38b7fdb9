// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package opdata

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
)

func testOperation() *Operation {
	return &Operation{
		ProtocolID:       bytes.Repeat([]byte{0x11}, ProtocolIDLen),
		Meta:             DefaultMeta,
		SrcChainID:       uint256.NewInt(1),
		SrcBlockNumber:   42,
		SrcOpTxID:        bytes.Repeat([]byte{0x22}, SrcOpTxIDLen),
		Nonce:            7,
		DestChainID:      uint256.NewInt(96369),
		ProtocolAddr:     ids.ID{0x33},
		FunctionSelector: ByCode([]byte{0xde, 0xad, 0xbe, 0xef}),
		Params:           []byte{0x01, 0x02, 0x03},
		Reserved:         []byte{0x04},
	}
}

func TestPreimageLayoutV2(t *testing.T) {
	require := require.New(t)

	op := testOperation()
	preimage, err := op.Preimage(EncodingV2)
	require.NoError(err)

	expected := make([]byte, 0, len(preimage))
	expected = append(expected, op.ProtocolID...)
	expected = append(expected, op.Meta[:]...)
	srcChain := op.SrcChainID.Bytes32()
	expected = append(expected, srcChain[:]...)
	block := uint256.NewInt(op.SrcBlockNumber).Bytes32()
	expected = append(expected, block[:]...)
	expected = append(expected, op.SrcOpTxID...)
	nonce := uint256.NewInt(op.Nonce).Bytes32()
	expected = append(expected, nonce[:]...)
	destChain := op.DestChainID.Bytes32()
	expected = append(expected, destChain[:]...)
	expected = append(expected, op.ProtocolAddr[:]...)
	expected = append(expected, 0, 4, 0xde, 0xad, 0xbe, 0xef)
	expected = append(expected, op.Params...)
	expected = append(expected, op.Reserved...)
	require.Equal(expected, preimage)

	h, err := op.Hash(EncodingV2)
	require.NoError(err)
	require.Equal(crypto.Keccak256Hash(expected), h)
}

func TestPreimageLayoutV1(t *testing.T) {
	require := require.New(t)

	op := testOperation()
	v1, err := op.Preimage(EncodingV1)
	require.NoError(err)

	// protocol id, four words, tx id, protocol address, padded selector, params
	require.Len(v1, 32+4*32+32+32+2+32+len(op.Params))

	selOffset := 32 + 4*32 + 32 + 32
	require.Equal(byte(SelectorByCode), v1[selOffset])
	require.Equal(byte(32), v1[selOffset+1])
	require.Equal([]byte{0xde, 0xad, 0xbe, 0xef}, v1[selOffset+2:selOffset+6])
	require.Equal(make([]byte, 28), v1[selOffset+6:selOffset+34])

	// meta and reserved do not contribute
	before, err := op.Hash(EncodingV1)
	require.NoError(err)
	op.Meta = [32]byte{}
	op.Reserved = []byte{0xff, 0xff}
	after, err := op.Hash(EncodingV1)
	require.NoError(err)
	require.Equal(before, after)
}

func TestPreimageV1ByName(t *testing.T) {
	require := require.New(t)

	op := testOperation()
	op.FunctionSelector = ByName("transfer")
	v1, err := op.Preimage(EncodingV1)
	require.NoError(err)
	selOffset := 32 + 4*32 + 32 + 32
	require.Equal(append([]byte{1, 8}, "transfer"...), v1[selOffset:selOffset+10])
}

func TestHashDeterministic(t *testing.T) {
	require := require.New(t)

	for _, enc := range []Encoding{EncodingV1, EncodingV2} {
		h1, err := testOperation().Hash(enc)
		require.NoError(err)
		h2, err := testOperation().Hash(enc)
		require.NoError(err)
		require.Equal(h1, h2)
	}
}

func TestHashSingleFieldSensitivity(t *testing.T) {
	base, err := testOperation().Hash(EncodingV2)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Operation)
	}{
		{"protocol id", func(op *Operation) { op.ProtocolID[31] ^= 1 }},
		{"meta", func(op *Operation) { op.Meta[0] ^= 1 }},
		{"src chain id", func(op *Operation) { op.SrcChainID = uint256.NewInt(2) }},
		{"src block number", func(op *Operation) { op.SrcBlockNumber++ }},
		{"src op tx id", func(op *Operation) { op.SrcOpTxID[0] ^= 1 }},
		{"nonce", func(op *Operation) { op.Nonce++ }},
		{"dest chain id", func(op *Operation) { op.DestChainID = uint256.NewInt(1) }},
		{"protocol addr", func(op *Operation) { op.ProtocolAddr[5] ^= 1 }},
		{"selector", func(op *Operation) { op.FunctionSelector = ByName("deadbeef") }},
		{"params", func(op *Operation) { op.Params = append(op.Params, 0) }},
		{"reserved", func(op *Operation) { op.Reserved = nil }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			op := testOperation()
			test.mutate(op)
			h, err := op.Hash(EncodingV2)
			require.NoError(t, err)
			require.NotEqual(t, base, h)
		})
	}
}

func TestPreimageErrors(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Operation)
		expectedErr error
	}{
		{
			name:        "dummy selector",
			mutate:      func(op *Operation) { op.FunctionSelector = FunctionSelector{Kind: SelectorDummy} },
			expectedErr: ErrUninitializedSelector,
		},
		{
			name:        "selector too big",
			mutate:      func(op *Operation) { op.FunctionSelector = ByCode(make([]byte, 33)) },
			expectedErr: ErrSelectorTooBig,
		},
		{
			name: "chain id overflow",
			mutate: func(op *Operation) {
				op.DestChainID = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
			},
			expectedErr: ErrChainIDOverflow,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			op := testOperation()
			test.mutate(op)
			for _, enc := range []Encoding{EncodingV1, EncodingV2} {
				_, err := op.Preimage(enc)
				require.ErrorIs(t, err, test.expectedErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Operation)
		expectedErr error
	}{
		{
			name:   "valid",
			mutate: func(*Operation) {},
		},
		{
			name:        "short protocol id",
			mutate:      func(op *Operation) { op.ProtocolID = op.ProtocolID[:31] },
			expectedErr: ErrInvalidProtocolID,
		},
		{
			name:        "zero protocol id",
			mutate:      func(op *Operation) { op.ProtocolID = make([]byte, 32) },
			expectedErr: ErrInvalidProtocolID,
		},
		{
			name:        "short tx id",
			mutate:      func(op *Operation) { op.SrcOpTxID = []byte{1} },
			expectedErr: ErrInvalidSrcOpTxID,
		},
		{
			name:        "dummy selector",
			mutate:      func(op *Operation) { op.FunctionSelector = FunctionSelector{Kind: SelectorDummy} },
			expectedErr: ErrUninitializedSelector,
		},
		{
			name: "source chain overflow",
			mutate: func(op *Operation) {
				op.SrcChainID = new(uint256.Int).Lsh(uint256.NewInt(1), 200)
			},
			expectedErr: ErrChainIDOverflow,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			op := testOperation()
			test.mutate(op)
			err := op.Validate()
			require.ErrorIs(t, err, test.expectedErr)
		})
	}
}

func TestHashWithMessage(t *testing.T) {
	require := require.New(t)

	op := testOperation()
	h, err := op.Hash(EncodingV2)
	require.NoError(err)
	msg, err := op.MessageHash(EncodingV2)
	require.NoError(err)

	expected := crypto.Keccak256Hash(append([]byte("\x19Ethereum Signed Message:\n32"), h[:]...))
	require.Equal(expected, msg)
	require.Equal(expected, HashWithMessage(h))
}

func TestFunctionSelectorBytes(t *testing.T) {
	tests := []struct {
		name     string
		sel      FunctionSelector
		expected []byte
	}{
		{
			name:     "by code",
			sel:      ByCode([]byte{0x45, 0xa0, 0x04, 0xb9}),
			expected: []byte{0, 4, 0x45, 0xa0, 0x04, 0xb9},
		},
		{
			name:     "by name",
			sel:      ByName("mint"),
			expected: []byte{1, 4, 'm', 'i', 'n', 't'},
		},
		{
			name:     "dummy",
			sel:      FunctionSelector{Kind: SelectorDummy},
			expected: []byte{2, 0},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			b, err := test.sel.Bytes()
			require.NoError(err)
			require.Equal(test.expected, b)

			parsed, err := ParseFunctionSelector(b)
			require.NoError(err)
			require.Equal(test.sel.Kind, parsed.Kind)
			require.Equal(test.sel.Payload(), parsed.Payload())
		})
	}
}

func TestParseFunctionSelectorErrors(t *testing.T) {
	tests := []struct {
		name        string
		input       []byte
		expectedErr error
	}{
		{"empty", nil, ErrInvalidSelector},
		{"only tag", []byte{0}, ErrInvalidSelector},
		{"length mismatch", []byte{0, 3, 1}, ErrInvalidSelector},
		{"unknown tag", []byte{9, 0}, ErrInvalidSelector},
		{"invalid name", []byte{1, 1, 0xff}, ErrInvalidSelector},
		{"too big", append([]byte{0, 33}, make([]byte, 33)...), ErrSelectorTooBig},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseFunctionSelector(test.input)
			require.ErrorIs(t, err, test.expectedErr)
		})
	}
}

func TestOperationJSON(t *testing.T) {
	require := require.New(t)

	op := testOperation()
	b, err := json.Marshal(op)
	require.NoError(err)

	var parsed Operation
	require.NoError(json.Unmarshal(b, &parsed))

	want, err := op.Hash(EncodingV2)
	require.NoError(err)
	got, err := parsed.Hash(EncodingV2)
	require.NoError(err)
	require.Equal(want, got)
}

func TestProtocolID(t *testing.T) {
	require := require.New(t)

	require.Equal("photon-gov", GovProtocolID.String())

	id, err := ProtocolIDFromString("photon-gov")
	require.NoError(err)
	require.Equal(GovProtocolID, id)

	_, err = ProtocolIDFromString("")
	require.ErrorIs(err, ErrInvalidProtocolID)

	text, err := GovProtocolID.MarshalText()
	require.NoError(err)
	var parsed ProtocolID
	require.NoError(parsed.UnmarshalText(text))
	require.Equal(GovProtocolID, parsed)

	_, err = ToProtocolID(make([]byte, 32))
	require.ErrorIs(err, ErrInvalidProtocolID)
}

func TestParseEncoding(t *testing.T) {
	require := require.New(t)

	enc, err := ParseEncoding("v1")
	require.NoError(err)
	require.Equal(EncodingV1, enc)

	enc, err = ParseEncoding("")
	require.NoError(err)
	require.Equal(EncodingV2, enc)

	_, err = ParseEncoding("v3")
	require.ErrorIs(err, ErrUnknownEncoding)
}
