// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/photon/vms/photonvm/endpoint"
	"github.com/luxfi/photon/vms/photonvm/events"
	"github.com/luxfi/photon/vms/photonvm/opdata"
	"github.com/luxfi/photon/vms/photonvm/signature"
)

var checkpointKey = []byte("checkpoint")

// EventSource is the event journal of the source chain.
type EventSource interface {
	Events(ctx context.Context, from uint64, limit int) ([]events.Record, error)
}

// LocalSource reads the journal of an in-process endpoint.
type LocalSource struct {
	Endpoint *endpoint.Endpoint
}

func (s LocalSource) Events(_ context.Context, from uint64, limit int) ([]events.Record, error) {
	return s.Endpoint.Events(from, limit)
}

// Collector gathers the transmitter signatures of an operation.
type Collector interface {
	Collect(ctx context.Context, opHash common.Hash, op *opdata.Operation) ([]signature.Signature, error)
}

// KeyCollector signs with transmitter keys it holds.
type KeyCollector struct {
	keys []*ecdsa.PrivateKey
}

func NewKeyCollector(keys ...*ecdsa.PrivateKey) *KeyCollector {
	return &KeyCollector{keys: keys}
}

func (c *KeyCollector) Collect(_ context.Context, opHash common.Hash, _ *opdata.Operation) ([]signature.Signature, error) {
	sigs := make([]signature.Signature, 0, len(c.keys))
	for _, key := range c.keys {
		sig, err := signature.Sign(opHash, key)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// Submitter accepts signed operations, usually a *Relayer.
type Submitter interface {
	Submit(ctx context.Context, op *SignedOperation) error
}

type ListenerConfig struct {
	// SrcChainID is the chain the journal belongs to.
	SrcChainID *uint256.Int
	// DstChainID is the chain proposals are relayed to. Others are skipped.
	DstChainID   *uint256.Int
	Encoding     opdata.Encoding
	BatchSize    int
	PollInterval time.Duration
}

// Listener turns proposals from a source journal into signed operations.
// The sequence of the next unread event is checkpointed in db.
type Listener struct {
	config    ListenerConfig
	log       log.Logger
	source    EventSource
	collector Collector
	submitter Submitter
	metrics   *listenerMetrics
	db        database.Database
}

func NewListener(
	config ListenerConfig,
	source EventSource,
	collector Collector,
	submitter Submitter,
	db database.Database,
	logger log.Logger,
	registerer metric.Registerer,
) (*Listener, error) {
	switch {
	case config.SrcChainID == nil || config.DstChainID == nil:
		return nil, fmt.Errorf("%w: chain ids are required", errInvalidConfig)
	case config.BatchSize <= 0 || config.PollInterval <= 0:
		return nil, fmt.Errorf("%w: batch size and poll interval must be positive", errInvalidConfig)
	}
	m, err := newListenerMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register listener metrics: %w", err)
	}
	return &Listener{
		config:    config,
		log:       logger,
		source:    source,
		collector: collector,
		submitter: submitter,
		metrics:   m,
		db:        db,
	}, nil
}

// Checkpoint returns the sequence of the next event to read.
func (l *Listener) Checkpoint() (uint64, error) {
	next, err := database.GetUInt64(l.db, checkpointKey)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	return next, err
}

// Run polls the journal until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := l.Poll(ctx); err != nil && ctx.Err() == nil {
			l.log.Warn("failed to poll source journal",
				log.Err(err),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll reads one batch of events and submits the proposals addressed to
// the destination chain. It returns the number of submitted operations.
// The checkpoint only advances past events that were handled.
func (l *Listener) Poll(ctx context.Context) (int, error) {
	next, err := l.Checkpoint()
	if err != nil {
		return 0, err
	}
	records, err := l.source.Events(ctx, next, l.config.BatchSize)
	if err != nil {
		return 0, err
	}

	submitted := 0
	for _, record := range records {
		err := l.handle(ctx, record)
		switch {
		case err == nil:
			submitted++
		case errors.Is(err, errSkipped):
		case errors.Is(err, ErrInFlight):
		default:
			return submitted, err
		}
		if err := database.PutUInt64(l.db, checkpointKey, record.Seq+1); err != nil {
			return submitted, err
		}
	}
	return submitted, nil
}

var errSkipped = errors.New("skipped")

func (l *Listener) handle(ctx context.Context, record events.Record) error {
	proposal, ok := record.Event.(*events.ProposeEvent)
	if !ok {
		return errSkipped
	}
	l.metrics.received.Inc()

	if !proposal.DstChain().Eq(l.config.DstChainID) {
		l.metrics.skipped.Inc()
		return errSkipped
	}
	op, err := l.operation(record.Seq, proposal)
	if err != nil {
		l.metrics.skipped.Inc()
		l.log.Warn("skipping malformed proposal",
			log.Uint64("seq", record.Seq),
			log.Err(err),
		)
		return errSkipped
	}
	opHash, err := op.MessageHash(l.config.Encoding)
	if err != nil {
		l.metrics.skipped.Inc()
		return errSkipped
	}
	sigs, err := l.collector.Collect(ctx, opHash, op)
	if err != nil {
		return fmt.Errorf("failed to collect signatures for %s: %w", opHash, err)
	}

	l.log.Debug("relaying proposal",
		log.Uint64("seq", record.Seq),
		log.Stringer("opHash", opHash),
		log.Stringer("protocolID", proposal.ProtocolID),
		log.Int("signatures", len(sigs)),
	)
	return l.submitter.Submit(ctx, &SignedOperation{
		Operation:   *op,
		Signatures:  sigs,
		BlockNumber: record.Seq,
	})
}

// operation builds the inbound operation for a proposal at journal
// sequence seq. The source transaction id commits to the source chain and
// the sequence.
func (l *Listener) operation(seq uint64, proposal *events.ProposeEvent) (*opdata.Operation, error) {
	selector, err := proposal.Selector()
	if err != nil {
		return nil, err
	}
	addr, err := ids.ToID(proposal.ProtocolAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: protocol address is %d bytes", endpoint.ErrInvalidAddress, len(proposal.ProtocolAddress))
	}
	src := events.ChainWord(l.config.SrcChainID)
	op := &opdata.Operation{
		ProtocolID:       proposal.ProtocolID.Bytes(),
		Meta:             opdata.DefaultMeta,
		SrcChainID:       l.config.SrcChainID.Clone(),
		SrcBlockNumber:   seq,
		SrcOpTxID:        crypto.Keccak256(src.Bytes(), database.PackUInt64(seq)),
		Nonce:            proposal.Nonce,
		DestChainID:      proposal.DstChain(),
		ProtocolAddr:     addr,
		FunctionSelector: selector,
		Params:           common.CopyBytes(proposal.Params),
	}
	return op, op.Validate()
}
