// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package photonvm

import (
	"context"
	"crypto/ecdsa"
	stdjson "encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/photon/utils/json"
	"github.com/luxfi/photon/utils/rpc"
	"github.com/luxfi/photon/vms/photonvm/config"
	"github.com/luxfi/photon/vms/photonvm/endpoint"
	"github.com/luxfi/photon/vms/photonvm/gov"
	"github.com/luxfi/photon/vms/photonvm/opdata"
	"github.com/luxfi/photon/vms/photonvm/relay"
	"github.com/luxfi/photon/vms/photonvm/signature"
	"github.com/luxfi/photon/vms/photonvm/state"
)

const (
	testEOBChainID    = 33133
	testComputeBudget = 250_000
)

var testProtocol = opdata.ProtocolID{'t', 'o', 'k', 'e', 'n'}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func testConfig(chainID uint64) config.Config {
	c := config.DefaultConfig()
	c.EndpointID = ids.GenerateTestID()
	c.ChainID = uint256.NewInt(chainID)
	return c
}

func initializeArgs(govKey *ecdsa.PrivateKey, executor ids.ID) endpoint.InitializeArgs {
	return endpoint.InitializeArgs{
		EOBChainID:             testEOBChainID,
		EOBMasterSmartContract: common.Hash{0xee}.Bytes(),
		ConsensusTargetRate:    state.RateDecimals,
		GovTransmitters:        []common.Address{signature.Address(govKey)},
		GovExecutors:           []ids.ID{executor},
	}
}

func newVM(t *testing.T, c config.Config) *VM {
	configBytes, err := stdjson.Marshal(c)
	require.NoError(t, err)

	factory := &Factory{}
	intf, err := factory.New(log.NewNoOpLogger())
	require.NoError(t, err)
	vm := intf.(*VM)
	require.NoError(t, vm.Initialize(context.Background(), memdb.New(), configBytes, prometheus.NewRegistry()))
	t.Cleanup(func() {
		require.NoError(t, vm.Shutdown(context.Background()))
	})
	return vm
}

// serve exposes vm over HTTP and returns the url of its JSON-RPC service.
func serve(t *testing.T, vm *VM) string {
	router, err := vm.Router(context.Background())
	require.NoError(t, err)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server.URL + "/rpc"
}

// node is a governed endpoint reached through a relay.Transactor.
type node struct {
	t          *testing.T
	endpointID ids.ID
	chainID    uint64
	govKey     *ecdsa.PrivateKey
	executor   ids.ID
	transactor relay.Transactor
	srcTx      byte
}

func (n *node) operation(protocol opdata.ProtocolID, addr ids.ID, selector opdata.FunctionSelector, params []byte) opdata.Operation {
	n.srcTx++
	return opdata.Operation{
		ProtocolID:       protocol.Bytes(),
		Meta:             opdata.DefaultMeta,
		SrcChainID:       uint256.NewInt(testEOBChainID),
		SrcBlockNumber:   uint64(n.srcTx),
		SrcOpTxID:        common.Hash{n.srcTx}.Bytes(),
		DestChainID:      uint256.NewInt(n.chainID),
		ProtocolAddr:     addr,
		FunctionSelector: selector,
		Params:           params,
	}
}

// deliver runs op through Load, Sign and Execute with testComputeBudget.
func (n *node) deliver(op opdata.Operation, accounts []ids.ID, keys ...*ecdsa.PrivateKey) common.Hash {
	require := require.New(n.t)
	ctx := context.Background()

	opHash, err := op.MessageHash(opdata.EncodingV2)
	require.NoError(err)

	sigs := make([]signature.Signature, len(keys))
	for i, key := range keys {
		sigs[i], err = signature.Sign(opHash, key)
		require.NoError(err)
	}

	require.NoError(n.transactor.Submit(ctx, &relay.Transaction{Step: relay.StepLoad, OpHash: opHash, Operation: &op}))
	require.NoError(n.transactor.Submit(ctx, &relay.Transaction{Step: relay.StepSign, OpHash: opHash, Signatures: sigs}))
	require.NoError(n.transactor.Submit(ctx, &relay.Transaction{
		Step:          relay.StepExecute,
		OpHash:        opHash,
		Accounts:      accounts,
		ComputeBudget: testComputeBudget,
	}))
	return opHash
}

func (n *node) gov(m gov.Method, params any) {
	b, err := gov.Encode(m, params)
	require.NoError(n.t, err)
	op := n.operation(opdata.GovProtocolID, n.endpointID, m.Selector(), b)
	n.deliver(op, []ids.ID{n.endpointID}, n.govKey)
}

func (n *node) registerProtocol(addr ids.ID, executor ids.ID, transmitters ...*ecdsa.PrivateKey) {
	addrs := make([]common.Address, len(transmitters))
	for i, key := range transmitters {
		addrs[i] = signature.Address(key)
	}
	n.gov(gov.AddAllowedProtocol, gov.ProtocolParams{
		ProtocolId:          testProtocol,
		ConsensusTargetRate: big.NewInt(int64(state.RateDecimals)),
		Transmitters:        addrs,
	})
	n.gov(gov.AddAllowedProtocolAddress, gov.AddressParams{
		ProtocolId: testProtocol,
		Addr:       addr[:],
	})
	n.gov(gov.AddExecutor, gov.AddressParams{
		ProtocolId: testProtocol,
		Addr:       executor[:],
	})
}

func TestInitializeErrors(t *testing.T) {
	require := require.New(t)

	vm := &VM{log: log.NewNoOpLogger()}
	err := vm.Initialize(context.Background(), memdb.New(), []byte(`{`), prometheus.NewRegistry())
	require.ErrorContains(err, "failed to parse config")

	vm = &VM{log: log.NewNoOpLogger()}
	err = vm.Initialize(context.Background(), memdb.New(), nil, prometheus.NewRegistry())
	require.ErrorContains(err, "invalid configuration")

	vm = &VM{}
	require.ErrorIs(vm.RegisterHandler(ids.GenerateTestID(), nil), errNotInitialized)
	require.ErrorIs(vm.Start(context.Background()), errNotInitialized)
	_, err = vm.HealthCheck(context.Background())
	require.ErrorIs(err, errNotInitialized)
}

func TestServiceLifecycle(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	c := testConfig(96369)
	vm := newVM(t, c)
	uri := serve(t, vm)
	client, err := NewClient(uri)
	require.NoError(err)
	u, err := url.Parse(uri)
	require.NoError(err)

	_, err = client.Config(ctx)
	require.ErrorIs(err, endpoint.ErrNotInitialized)

	govKey := newKey(t)
	executor := ids.GenerateTestID()
	require.NoError(rpc.SendJSONRequest(ctx, u, "photon.Initialize", &InitializeArgs{
		Admin:                  ids.GenerateTestID(),
		EOBChainID:             testEOBChainID,
		EOBMasterSmartContract: common.Hash{0xee}.Bytes(),
		ConsensusTargetRate:    json.Uint64(state.RateDecimals),
		GovTransmitters:        []common.Address{signature.Address(govKey)},
		GovExecutors:           []ids.ID{executor},
	}, &EmptyReply{}))

	cfg, err := client.Config(ctx)
	require.NoError(err)
	require.True(cfg.Initialized)
	require.Equal(uint64(testEOBChainID), cfg.EOBChainID)

	n := &node{
		t:          t,
		endpointID: c.EndpointID,
		chainID:    96369,
		govKey:     govKey,
		executor:   executor,
		transactor: NewRemoteTransactor(client, executor),
	}
	addr := ids.GenerateTestID()
	k1 := newKey(t)
	n.registerProtocol(addr, executor, k1)

	var protocolReply GetProtocolReply
	require.NoError(rpc.SendJSONRequest(ctx, u, "photon.GetProtocol", &GetProtocolArgs{ProtocolID: testProtocol}, &protocolReply))
	require.True(protocolReply.Protocol.IsInit)
	require.Equal(addr, protocolReply.Protocol.ProtocolAddress)
	require.True(protocolReply.Protocol.Executors.Contains(executor))

	called := make(chan *endpoint.Call, 1)
	require.NoError(vm.RegisterHandler(addr, endpoint.HandlerFunc(func(_ context.Context, call *endpoint.Call) error {
		called <- call
		return nil
	})))

	op := n.operation(testProtocol, addr, opdata.ByName("mint"), []byte{1, 2})

	var hashReply HashOperationReply
	require.NoError(rpc.SendJSONRequest(ctx, u, "photon.HashOperation", &HashOperationArgs{Operation: op}, &hashReply))
	want, err := op.Hash(opdata.EncodingV2)
	require.NoError(err)
	require.Equal(want, hashReply.Hash)

	// loading requires the caller's hash of the operation
	err = client.LoadOperation(ctx, executor, &op, common.Hash{1})
	require.ErrorIs(err, endpoint.ErrCachedOpHashMismatch)
	err = rpc.SendJSONRequest(ctx, u, "photon.LoadOperation", map[string]interface{}{
		"executor":  executor,
		"operation": op,
	}, &OpHashReply{})
	require.ErrorContains(err, endpoint.ErrCachedOpHashMismatch.Error())
	status, err := client.OperationStatus(ctx, hashReply.MessageHash)
	require.NoError(err)
	require.Equal(state.StatusNone, status)

	opHash := n.deliver(op, []ids.ID{addr}, k1)
	require.Equal(hashReply.MessageHash, opHash)

	call := <-called
	require.Equal(hexutil.Bytes{1, 2}, hexutil.Bytes(call.Params))
	require.Equal("mint", call.Method)
	require.Equal(uint32(testComputeBudget), call.Budget)

	status, err = client.OperationStatus(ctx, opHash)
	require.NoError(err)
	require.Equal(state.StatusExecuted, status)

	var opReply GetOperationReply
	require.NoError(rpc.SendJSONRequest(ctx, u, "photon.GetOperation", &OpHashArgs{OpHash: opHash}, &opReply))
	require.Equal(state.StatusExecuted, opReply.Operation.Status)
	require.True(opReply.Operation.UniqueSigners.Contains(signature.Address(k1)))

	// errors keep their identity over the wire
	err = n.transactor.Submit(ctx, &relay.Transaction{Step: relay.StepSign, OpHash: opHash})
	require.ErrorIs(err, endpoint.ErrOpStateInvalid)
	require.False(endpoint.IsRetryable(err))

	_, err = client.SignOperation(ctx, ids.GenerateTestID(), common.Hash{1}, nil)
	require.ErrorIs(err, endpoint.ErrOpStateInvalid)

	records, err := client.Events(ctx, 0, 0)
	require.NoError(err)
	require.NotEmpty(records)
	require.Equal("ProposalExecuted", records[len(records)-1].Type)

	records, err = client.Events(ctx, uint64(len(records)), 10)
	require.NoError(err)
	require.Empty(records)

	health, err := vm.HealthCheck(ctx)
	require.NoError(err)
	require.Equal(true, health.(map[string]interface{})["initialized"])
}

func TestServicePropose(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	c := testConfig(1)
	vm := newVM(t, c)
	u, err := url.Parse(serve(t, vm))
	require.NoError(err)

	govKey := newKey(t)
	executor := ids.GenerateTestID()
	require.NoError(vm.Endpoint().Initialize(ctx, ids.GenerateTestID(), initializeArgs(govKey, executor)))
	n := &node{
		t:          t,
		endpointID: c.EndpointID,
		chainID:    1,
		govKey:     govKey,
		executor:   executor,
		transactor: relay.NewLocalTransactor(vm.Endpoint(), executor),
	}
	n.registerProtocol(ids.GenerateTestID(), executor, newKey(t))
	proposer := ids.GenerateTestID()
	n.gov(gov.AddAllowedProposerAddress, gov.AddressParams{
		ProtocolId: testProtocol,
		Addr:       proposer[:],
	})

	args := &ProposeArgs{
		Proposer:         proposer,
		ProtocolID:       testProtocol,
		DstChainID:       uint256.NewInt(2),
		ProtocolAddress:  hexutil.Bytes{0xaa},
		FunctionSelector: opdata.ByName("mint"),
		Params:           hexutil.Bytes{3},
	}
	var reply ProposeReply
	require.NoError(rpc.SendJSONRequest(ctx, u, "photon.Propose", args, &reply))
	require.Equal(uint256.NewInt(2), reply.Proposal.DstChain())
	first := reply.Proposal.Nonce

	require.NoError(rpc.SendJSONRequest(ctx, u, "photon.Propose", args, &reply))
	require.Equal(first+1, reply.Proposal.Nonce)

	args.Proposer = ids.GenerateTestID()
	err = rpc.SendJSONRequest(ctx, u, "photon.Propose", args, &reply)
	require.ErrorContains(err, endpoint.ErrProposerIsNotAllowed.Error())

	args.DstChainID = nil
	err = rpc.SendJSONRequest(ctx, u, "photon.Propose", args, &reply)
	require.ErrorContains(err, endpoint.ErrInvalidOpData.Error())
}

func TestRelayAcrossNodes(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	// source chain proposes
	srcConfig := testConfig(1)
	src := newVM(t, srcConfig)
	srcURI := serve(t, src)

	srcGovKey := newKey(t)
	srcExecutor := ids.GenerateTestID()
	require.NoError(src.Endpoint().Initialize(ctx, ids.GenerateTestID(), initializeArgs(srcGovKey, srcExecutor)))
	srcNode := &node{
		t:          t,
		endpointID: srcConfig.EndpointID,
		chainID:    1,
		govKey:     srcGovKey,
		executor:   srcExecutor,
		transactor: relay.NewLocalTransactor(src.Endpoint(), srcExecutor),
	}
	srcNode.registerProtocol(ids.GenerateTestID(), srcExecutor, newKey(t))
	proposer := ids.GenerateTestID()
	srcNode.gov(gov.AddAllowedProposerAddress, gov.AddressParams{
		ProtocolId: testProtocol,
		Addr:       proposer[:],
	})

	// destination chain relays from the source
	transmitter := newKey(t)
	relayExecutor := ids.GenerateTestID()
	dstConfig := testConfig(2)
	dstConfig.Relay.Enabled = true
	dstConfig.Relay.SourceURL = srcURI
	dstConfig.Relay.SrcChainID = uint256.NewInt(1)
	dstConfig.Relay.Executor = relayExecutor
	dstConfig.Relay.TransmitterKeys = []string{hexutil.Encode(crypto.FromECDSA(transmitter))}
	dstConfig.Relay.PollInterval = 5 * time.Millisecond
	dstConfig.Relay.RetryDelay = 5 * time.Millisecond
	dstConfig.Relay.FinalizationTimeout = time.Second
	dst := newVM(t, dstConfig)

	dstGovKey := newKey(t)
	require.NoError(dst.Endpoint().Initialize(ctx, ids.GenerateTestID(), initializeArgs(dstGovKey, relayExecutor)))
	dstNode := &node{
		t:          t,
		endpointID: dstConfig.EndpointID,
		chainID:    2,
		govKey:     dstGovKey,
		executor:   relayExecutor,
		transactor: relay.NewLocalTransactor(dst.Endpoint(), relayExecutor),
	}
	addr := ids.GenerateTestID()
	dstNode.registerProtocol(addr, relayExecutor, transmitter)

	called := make(chan []byte, 1)
	require.NoError(dst.RegisterHandler(addr, endpoint.HandlerFunc(func(_ context.Context, call *endpoint.Call) error {
		called <- call.Params
		return nil
	})))
	require.NoError(dst.RegisterExtension(relay.StaticExtension{Protocol: testProtocol}))
	require.NoError(dst.Start(ctx))
	require.ErrorIs(dst.Start(ctx), errAlreadyStarted)

	_, err := src.Endpoint().Propose(ctx, proposer, endpoint.ProposeArgs{
		ProtocolID:       testProtocol,
		DstChainID:       uint256.NewInt(2),
		ProtocolAddress:  addr[:],
		FunctionSelector: opdata.ByName("mint"),
		Params:           []byte{42},
	})
	require.NoError(err)

	select {
	case params := <-called:
		require.Equal([]byte{42}, params)
	case <-time.After(10 * time.Second):
		require.FailNow("proposal was not relayed")
	}

	health, err := dst.HealthCheck(ctx)
	require.NoError(err)
	require.Contains(health.(map[string]interface{}), "relayCheckpoint")
}

func TestRelayDisabled(t *testing.T) {
	require := require.New(t)

	vm := newVM(t, testConfig(1))
	require.ErrorIs(vm.RegisterExtension(relay.StaticExtension{Protocol: testProtocol}), errRelayNotEnabled)
	require.NoError(vm.Start(context.Background()))
}

func TestMetricsHandler(t *testing.T) {
	require := require.New(t)

	vm := newVM(t, testConfig(1))
	uri := serve(t, vm)
	client, err := NewClient(uri)
	require.NoError(err)
	_, err = client.Config(context.Background())
	require.ErrorIs(err, endpoint.ErrNotInitialized)

	resp, err := http.Get(strings.TrimSuffix(uri, "/rpc") + "/metrics")
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(err)
	require.Contains(string(body), "photon_api_request_duration_count")
	require.Contains(string(body), "photon_api_request_error_count")
}
