// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/ids"

	"github.com/luxfi/photon/vms/photonvm/endpoint"
	"github.com/luxfi/photon/vms/photonvm/opdata"
	"github.com/luxfi/photon/vms/photonvm/signature"
	"github.com/luxfi/photon/vms/photonvm/state"
)

const defaultComputeBudget uint32 = 200_000

// Step is one endpoint call of the lifecycle.
type Step uint8

const (
	StepLoad Step = iota
	StepSign
	StepExecute
)

func (s Step) String() string {
	switch s {
	case StepLoad:
		return "load"
	case StepSign:
		return "sign"
	case StepExecute:
		return "execute"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Transaction is a single endpoint call built by the relay.
type Transaction struct {
	Step   Step
	OpHash common.Hash

	// Load
	Operation *opdata.Operation
	// Sign
	Signatures []signature.Signature
	// Execute
	Accounts       []ids.ID
	TargetProtocol []byte
	ComputeBudget  uint32
}

// Transactor submits transactions to the destination endpoint.
type Transactor interface {
	Status(ctx context.Context, opHash common.Hash) (state.Status, error)
	Submit(ctx context.Context, tx *Transaction) error
}

// LocalTransactor calls an in-process endpoint as executor.
type LocalTransactor struct {
	endpoint *endpoint.Endpoint
	executor ids.ID
}

func NewLocalTransactor(e *endpoint.Endpoint, executor ids.ID) *LocalTransactor {
	return &LocalTransactor{
		endpoint: e,
		executor: executor,
	}
}

func (t *LocalTransactor) Status(_ context.Context, opHash common.Hash) (state.Status, error) {
	return t.endpoint.OperationStatus(opHash)
}

func (t *LocalTransactor) Submit(ctx context.Context, tx *Transaction) error {
	switch tx.Step {
	case StepLoad:
		return t.endpoint.LoadOperation(ctx, t.executor, tx.Operation, tx.OpHash)
	case StepSign:
		_, err := t.endpoint.SignOperation(ctx, t.executor, tx.OpHash, tx.Signatures)
		return err
	case StepExecute:
		return t.endpoint.ExecuteOperation(ctx, t.executor, tx.OpHash, endpoint.ExecuteArgs{
			Accounts:       tx.Accounts,
			TargetProtocol: tx.TargetProtocol,
			ComputeBudget:  tx.ComputeBudget,
		})
	default:
		return fmt.Errorf("%w: %s", errUnknownStep, tx.Step)
	}
}
