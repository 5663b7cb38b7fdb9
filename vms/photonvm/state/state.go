// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/database"

	"github.com/luxfi/photon/vms/photonvm/opdata"
)

var (
	ErrConfigNotFound    = errors.New("endpoint config not found")
	ErrProtocolNotFound  = errors.New("protocol not found")
	ErrOperationNotFound = errors.New("operation not found")
)

// RawEvent is an encoded journal entry.
type RawEvent struct {
	Seq   uint64
	Bytes []byte
}

// State reads and writes endpoint records. It does not synchronize access;
// callers wrap it around a per-call database layer.
type State struct {
	db database.Database
}

func New(db database.Database) *State {
	return &State{db: db}
}

func (s *State) GetConfig() (*Config, error) {
	config := &Config{}
	if err := s.get(ConfigKey(), config, ErrConfigNotFound); err != nil {
		return nil, err
	}
	return config, nil
}

func (s *State) PutConfig(config *Config) error {
	return s.put(ConfigKey(), config)
}

func (s *State) GetProtocol(id opdata.ProtocolID) (*ProtocolInfo, error) {
	info := &ProtocolInfo{}
	if err := s.get(ProtocolKey(id), info, ErrProtocolNotFound); err != nil {
		return nil, err
	}
	return info, nil
}

// GetOrCreateProtocol returns the stored registry of id or a fresh,
// uninitialized one sized by caps.
func (s *State) GetOrCreateProtocol(id opdata.ProtocolID, caps Capacities) (*ProtocolInfo, error) {
	info, err := s.GetProtocol(id)
	if errors.Is(err, ErrProtocolNotFound) {
		return NewProtocolInfo(caps), nil
	}
	return info, err
}

func (s *State) PutProtocol(id opdata.ProtocolID, info *ProtocolInfo) error {
	return s.put(ProtocolKey(id), info)
}

func (s *State) GetOperation(opHash common.Hash) (*OpInfo, error) {
	info := &OpInfo{}
	if err := s.get(OperationKey(opHash), info, ErrOperationNotFound); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *State) HasOperation(opHash common.Hash) (bool, error) {
	return s.db.Has(OperationKey(opHash))
}

func (s *State) PutOperation(opHash common.Hash, info *OpInfo) error {
	return s.put(OperationKey(opHash), info)
}

// NextEventSeq returns the sequence number the next appended event gets.
func (s *State) NextEventSeq() (uint64, error) {
	seq, err := database.GetUInt64(s.db, eventSeqKey())
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	return seq, err
}

// AppendEvent stores an encoded event and returns its sequence number.
func (s *State) AppendEvent(event []byte) (uint64, error) {
	seq, err := s.NextEventSeq()
	if err != nil {
		return 0, fmt.Errorf("failed to read event sequence: %w", err)
	}
	if err := s.db.Put(EventKey(seq), event); err != nil {
		return 0, err
	}
	return seq, database.PutUInt64(s.db, eventSeqKey(), seq+1)
}

// Events returns up to limit events with a sequence number of at least
// from, in order.
func (s *State) Events(from uint64, limit int) ([]RawEvent, error) {
	prefix := eventPrefix()
	it := s.db.NewIteratorWithStartAndPrefix(EventKey(from), prefix)
	defer it.Release()

	var events []RawEvent
	for (limit <= 0 || len(events) < limit) && it.Next() {
		k := it.Key()
		seqBytes := k[len(prefix):]
		if len(seqBytes) != database.Uint64Size {
			return nil, fmt.Errorf("malformed event key %x", k)
		}
		events = append(events, RawEvent{
			Seq:   binary.BigEndian.Uint64(seqBytes),
			Bytes: append([]byte(nil), it.Value()...),
		})
	}
	return events, it.Error()
}

func (s *State) get(key []byte, v any, notFound error) error {
	data, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return notFound
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %w", v, err)
	}
	return nil
}

func (s *State) put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	return s.db.Put(key, data)
}
