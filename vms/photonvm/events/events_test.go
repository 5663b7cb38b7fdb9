// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/luxfi/photon/vms/photonvm/opdata"
)

func testEvents() []Event {
	return []Event{
		&ProposalLoaded{OpHash: common.Hash{1}, Executor: ids.ID{2}},
		&ProposalApproved{OpHash: common.Hash{3}, Executor: ids.ID{4}},
		&ProposalExecuted{OpHash: common.Hash{5}, Executor: ids.ID{6}, Err: "handler failed"},
		&ProposeEvent{
			ProtocolID:       opdata.GovProtocolID,
			Nonce:            11,
			DstChainID:       ChainWord(uint256.NewInt(33133)),
			ProtocolAddress:  []byte{0xaa, 0xbb},
			FunctionSelector: []byte{1, 4, 'm', 'i', 'n', 't'},
			Params:           []byte{0x01},
		},
	}
}

func TestCodec(t *testing.T) {
	for _, event := range testEvents() {
		t.Run(event.Type(), func(t *testing.T) {
			require := require.New(t)

			b, err := Marshal(event)
			require.NoError(err)

			parsed, err := Unmarshal(b)
			require.NoError(err)
			require.Equal(event, parsed)

			record, err := NewRecord(3, b)
			require.NoError(err)
			require.Equal(uint64(3), record.Seq)
			require.Equal(event.Type(), record.Type)
		})
	}
}

func TestMarshalNil(t *testing.T) {
	_, err := Marshal(nil)
	require.ErrorIs(t, err, errNilEvent)
}

func TestRecordJSON(t *testing.T) {
	for i, event := range testEvents() {
		t.Run(event.Type(), func(t *testing.T) {
			require := require.New(t)

			record := Record{Seq: uint64(i), Type: event.Type(), Event: event}
			b, err := json.Marshal(record)
			require.NoError(err)

			var parsed Record
			require.NoError(json.Unmarshal(b, &parsed))
			require.Equal(record, parsed)
		})
	}

	var r Record
	require.ErrorIs(t, json.Unmarshal([]byte(`{"type":"Nope","event":{}}`), &r), errUnknownEvent)
}

func TestProposeEventHelpers(t *testing.T) {
	require := require.New(t)

	e := &ProposeEvent{
		DstChainID:       ChainWord(uint256.NewInt(96369)),
		FunctionSelector: []byte{0, 2, 0xab, 0xcd},
	}
	require.Equal(uint256.NewInt(96369), e.DstChain())

	sel, err := e.Selector()
	require.NoError(err)
	require.Equal(opdata.ByCode([]byte{0xab, 0xcd}), sel)

	require.Equal(common.Hash{}, ChainWord(nil))
}
