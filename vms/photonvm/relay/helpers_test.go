// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/photon/vms/photonvm/endpoint"
	"github.com/luxfi/photon/vms/photonvm/gov"
	"github.com/luxfi/photon/vms/photonvm/opdata"
	"github.com/luxfi/photon/vms/photonvm/signature"
	"github.com/luxfi/photon/vms/photonvm/state"
)

var (
	testProtocol   = opdata.ProtocolID{'b', 'r', 'i', 'd', 'g', 'e'}
	testEOBChainID = uint64(33133)
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func addresses(keys ...*ecdsa.PrivateKey) []common.Address {
	addrs := make([]common.Address, len(keys))
	for i, key := range keys {
		addrs[i] = signature.Address(key)
	}
	return addrs
}

// testChain is an initialized endpoint governed by one transmitter and one
// executor.
type testChain struct {
	t        *testing.T
	chainID  *uint256.Int
	endpoint *endpoint.Endpoint
	govKey   *ecdsa.PrivateKey
	executor ids.ID
	srcTx    byte
}

func newChain(t *testing.T, chainID uint64) *testChain {
	c := &testChain{
		t:        t,
		chainID:  uint256.NewInt(chainID),
		govKey:   newKey(t),
		executor: ids.GenerateTestID(),
	}
	e, err := endpoint.New(endpoint.Config{
		ID:         ids.GenerateTestID(),
		ChainID:    c.chainID,
		Capacities: state.DefaultCapacities(),
	}, memdb.New(), log.NewNoOpLogger(), metric.NewRegistry(), nil)
	require.NoError(t, err)
	c.endpoint = e

	require.NoError(t, e.Initialize(context.Background(), ids.GenerateTestID(), endpoint.InitializeArgs{
		EOBChainID:             testEOBChainID,
		EOBMasterSmartContract: common.Hash{0xee}.Bytes(),
		ConsensusTargetRate:    state.RateDecimals,
		GovTransmitters:        addresses(c.govKey),
		GovExecutors:           []ids.ID{c.executor},
	}))
	return c
}

func (c *testChain) transactor() *LocalTransactor {
	return NewLocalTransactor(c.endpoint, c.executor)
}

func (c *testChain) operation(protocol opdata.ProtocolID, addr ids.ID, selector opdata.FunctionSelector, params []byte) opdata.Operation {
	c.srcTx++
	return opdata.Operation{
		ProtocolID:       protocol.Bytes(),
		Meta:             opdata.DefaultMeta,
		SrcChainID:       uint256.NewInt(testEOBChainID),
		SrcBlockNumber:   uint64(c.srcTx),
		SrcOpTxID:        common.Hash{c.srcTx}.Bytes(),
		DestChainID:      c.chainID,
		ProtocolAddr:     addr,
		FunctionSelector: selector,
		Params:           params,
	}
}

func (c *testChain) sign(op *opdata.Operation, keys ...*ecdsa.PrivateKey) *SignedOperation {
	opHash, err := c.endpoint.HashOperation(op)
	require.NoError(c.t, err)
	signed, err := NewKeyCollector(keys...).Collect(context.Background(), opHash, op)
	require.NoError(c.t, err)
	return &SignedOperation{
		Operation:   *op,
		Signatures:  signed,
		BlockNumber: op.SrcBlockNumber,
	}
}

// govOperation returns a governance operation signed by the governance
// transmitter.
func (c *testChain) govOperation(m gov.Method, params any) *SignedOperation {
	b, err := gov.Encode(m, params)
	require.NoError(c.t, err)
	op := c.operation(opdata.GovProtocolID, c.endpoint.ID(), m.Selector(), b)
	return c.sign(&op, c.govKey)
}

// applyGov runs a governance operation through the endpoint directly.
func (c *testChain) applyGov(m gov.Method, params any) {
	signed := c.govOperation(m, params)
	tx := c.transactor()
	ctx := context.Background()

	opHash, err := c.endpoint.HashOperation(&signed.Operation)
	require.NoError(c.t, err)
	require.NoError(c.t, tx.Submit(ctx, &Transaction{Step: StepLoad, OpHash: opHash, Operation: &signed.Operation}))
	require.NoError(c.t, tx.Submit(ctx, &Transaction{Step: StepSign, OpHash: opHash, Signatures: signed.Signatures}))
	require.NoError(c.t, tx.Submit(ctx, &Transaction{
		Step:     StepExecute,
		OpHash:   opHash,
		Accounts: []ids.ID{c.endpoint.ID()},
	}))
}

// registerProtocol allows testProtocol at addr with the given transmitters
// and lets the chain executor run its operations.
func (c *testChain) registerProtocol(addr ids.ID, rate int64, transmitters ...*ecdsa.PrivateKey) {
	c.applyGov(gov.AddAllowedProtocol, gov.ProtocolParams{
		ProtocolId:          testProtocol,
		ConsensusTargetRate: big.NewInt(rate),
		Transmitters:        addresses(transmitters...),
	})
	c.applyGov(gov.AddAllowedProtocolAddress, gov.AddressParams{
		ProtocolId: testProtocol,
		Addr:       addr[:],
	})
	c.applyGov(gov.AddExecutor, gov.AddressParams{
		ProtocolId: testProtocol,
		Addr:       c.executor[:],
	})
}

func testConfig() Config {
	return Config{
		Workers:             4,
		QueueSize:           16,
		MaxAttempts:         3,
		FinalizationTimeout: 20 * time.Millisecond,
		PollInterval:        time.Millisecond,
		RetryDelay:          time.Millisecond,
		CompletedCacheSize:  16,
	}
}

func newRelayer(t *testing.T, transactor Transactor, extensions *Extensions) *Relayer {
	r, err := New(testConfig(), opdata.EncodingV2, transactor, extensions, log.NewNoOpLogger(), metric.NewRegistry())
	require.NoError(t, err)
	return r
}

func startRelayer(t *testing.T, r *Relayer) {
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Stop)
}

// waitAck returns the first acknowledgement of opHash that is not AckNew.
func waitAck(t *testing.T, r *Relayer, opHash common.Hash) Ack {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ack := <-r.Acks():
			if ack.OpHash == opHash && ack.Status != AckNew {
				return ack
			}
		case <-timeout:
			require.FailNow(t, "timed out waiting for acknowledgement", opHash.String())
		}
	}
}

func hashOf(t *testing.T, op *SignedOperation) common.Hash {
	opHash, err := op.Operation.MessageHash(opdata.EncodingV2)
	require.NoError(t, err)
	return opHash
}

// fakeTransactor advances a single operation one status per successful
// submission.
type fakeTransactor struct {
	lock     sync.Mutex
	status   state.Status
	failures int
	err      error
	steps    []Step
}

func (f *fakeTransactor) Status(context.Context, common.Hash) (state.Status, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.status, nil
}

func (f *fakeTransactor) Submit(_ context.Context, tx *Transaction) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.steps = append(f.steps, tx.Step)
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	switch tx.Step {
	case StepLoad:
		f.status = state.StatusInit
	case StepSign:
		f.status = state.StatusSigned
	case StepExecute:
		f.status = state.StatusExecuted
	}
	return nil
}

func (f *fakeTransactor) submitted() []Step {
	f.lock.Lock()
	defer f.lock.Unlock()

	return append([]Step(nil), f.steps...)
}
