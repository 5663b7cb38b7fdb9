// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package photonvm

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/luxfi/ids"

	"github.com/luxfi/photon/utils/json"
	"github.com/luxfi/photon/utils/rpc"
	"github.com/luxfi/photon/vms/photonvm/endpoint"
	"github.com/luxfi/photon/vms/photonvm/events"
	"github.com/luxfi/photon/vms/photonvm/opdata"
	"github.com/luxfi/photon/vms/photonvm/relay"
	"github.com/luxfi/photon/vms/photonvm/signature"
	"github.com/luxfi/photon/vms/photonvm/state"
)

var (
	_ relay.EventSource = (*Client)(nil)
	_ relay.Transactor  = (*RemoteTransactor)(nil)
)

// Client talks to the Service of a remote node.
type Client struct {
	uri *url.URL
}

// NewClient returns a client of the service served at uri, usually
// "http://host:port/rpc".
func NewClient(uri string) (*Client, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	return &Client{uri: u}, nil
}

func (c *Client) call(ctx context.Context, method string, args, reply interface{}) error {
	err := rpc.SendJSONRequest(ctx, c.uri, ServiceName+"."+method, args, reply)
	var rpcErr *json2.Error
	if errors.As(err, &rpcErr) {
		return endpoint.ParseError(rpcErr.Message)
	}
	return err
}

func (c *Client) LoadOperation(ctx context.Context, executor ids.ID, op *opdata.Operation, opHash common.Hash) error {
	return c.call(ctx, "LoadOperation", &LoadOperationArgs{
		Executor:  executor,
		Operation: *op,
		OpHash:    opHash,
	}, &OpHashReply{})
}

func (c *Client) SignOperation(ctx context.Context, executor ids.ID, opHash common.Hash, sigs []signature.Signature) (bool, error) {
	reply := &SignOperationReply{}
	err := c.call(ctx, "SignOperation", &SignOperationArgs{
		Executor:   executor,
		OpHash:     opHash,
		Signatures: sigs,
	}, reply)
	return reply.Reached, err
}

func (c *Client) ExecuteOperation(ctx context.Context, executor ids.ID, opHash common.Hash, args endpoint.ExecuteArgs) error {
	return c.call(ctx, "ExecuteOperation", &ExecuteOperationArgs{
		Executor:       executor,
		OpHash:         opHash,
		Accounts:       args.Accounts,
		TargetProtocol: args.TargetProtocol,
		ComputeBudget:  json.Uint32(args.ComputeBudget),
	}, &EmptyReply{})
}

func (c *Client) OperationStatus(ctx context.Context, opHash common.Hash) (state.Status, error) {
	reply := &GetOperationStatusReply{}
	err := c.call(ctx, "GetOperationStatus", &OpHashArgs{OpHash: opHash}, reply)
	return reply.Status, err
}

func (c *Client) Config(ctx context.Context) (*state.Config, error) {
	reply := &GetConfigReply{}
	err := c.call(ctx, "GetConfig", &struct{}{}, reply)
	return reply.Config, err
}

func (c *Client) Events(ctx context.Context, from uint64, limit int) ([]events.Record, error) {
	reply := &GetEventsReply{}
	err := c.call(ctx, "GetEvents", &GetEventsArgs{
		From:  json.Uint64(from),
		Limit: limit,
	}, reply)
	return reply.Events, err
}

// RemoteTransactor submits relay transactions to a remote endpoint as
// executor.
type RemoteTransactor struct {
	client   *Client
	executor ids.ID
}

func NewRemoteTransactor(client *Client, executor ids.ID) *RemoteTransactor {
	return &RemoteTransactor{
		client:   client,
		executor: executor,
	}
}

func (t *RemoteTransactor) Status(ctx context.Context, opHash common.Hash) (state.Status, error) {
	return t.client.OperationStatus(ctx, opHash)
}

func (t *RemoteTransactor) Submit(ctx context.Context, tx *relay.Transaction) error {
	switch tx.Step {
	case relay.StepLoad:
		return t.client.LoadOperation(ctx, t.executor, tx.Operation, tx.OpHash)
	case relay.StepSign:
		_, err := t.client.SignOperation(ctx, t.executor, tx.OpHash, tx.Signatures)
		return err
	case relay.StepExecute:
		return t.client.ExecuteOperation(ctx, t.executor, tx.OpHash, endpoint.ExecuteArgs{
			Accounts:       tx.Accounts,
			TargetProtocol: tx.TargetProtocol,
			ComputeBudget:  tx.ComputeBudget,
		})
	default:
		return fmt.Errorf("unknown step %s", tx.Step)
	}
}
