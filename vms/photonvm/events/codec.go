// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/luxfi/codec"
	"github.com/luxfi/codec/linearcodec"
)

const CodecVersion = 0

var (
	Codec codec.Manager

	errNilEvent     = errors.New("nil event")
	errUnknownEvent = errors.New("unknown event type")
)

func init() {
	Codec = codec.NewManager(math.MaxInt)
	lc := linearcodec.NewDefault()

	err := errors.Join(
		lc.RegisterType(&ProposalLoaded{}),
		lc.RegisterType(&ProposalApproved{}),
		lc.RegisterType(&ProposalExecuted{}),
		lc.RegisterType(&ProposeEvent{}),
		Codec.RegisterCodec(CodecVersion, lc),
	)
	if err != nil {
		panic(err)
	}
}

// envelope lets the journal store any registered event.
type envelope struct {
	Event Event `serialize:"true"`
}

// Record is a journaled event and its position.
type Record struct {
	Seq   uint64 `json:"seq"`
	Type  string `json:"type"`
	Event Event  `json:"event"`
}

func Marshal(event Event) ([]byte, error) {
	if event == nil {
		return nil, errNilEvent
	}
	return Codec.Marshal(CodecVersion, &envelope{Event: event})
}

func Unmarshal(b []byte) (Event, error) {
	env := envelope{}
	if _, err := Codec.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	if env.Event == nil {
		return nil, errNilEvent
	}
	return env.Event, nil
}

// NewRecord decodes an event stored at seq.
func NewRecord(seq uint64, b []byte) (Record, error) {
	event, err := Unmarshal(b)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Seq:   seq,
		Type:  event.Type(),
		Event: event,
	}, nil
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var raw struct {
		Seq   uint64          `json:"seq"`
		Type  string          `json:"type"`
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var event Event
	switch raw.Type {
	case (*ProposalLoaded)(nil).Type():
		event = &ProposalLoaded{}
	case (*ProposalApproved)(nil).Type():
		event = &ProposalApproved{}
	case (*ProposalExecuted)(nil).Type():
		event = &ProposalExecuted{}
	case (*ProposeEvent)(nil).Type():
		event = &ProposeEvent{}
	default:
		return fmt.Errorf("%w: %q", errUnknownEvent, raw.Type)
	}
	if err := json.Unmarshal(raw.Event, event); err != nil {
		return err
	}
	*r = Record{
		Seq:   raw.Seq,
		Type:  raw.Type,
		Event: event,
	}
	return nil
}
