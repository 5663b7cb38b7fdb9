// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package photonvm

import (
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/photon/utils/json"
	"github.com/luxfi/photon/vms/photonvm/endpoint"
	"github.com/luxfi/photon/vms/photonvm/events"
	"github.com/luxfi/photon/vms/photonvm/opdata"
	"github.com/luxfi/photon/vms/photonvm/signature"
	"github.com/luxfi/photon/vms/photonvm/state"
)

const (
	// ServiceName is the JSON-RPC namespace of Service.
	ServiceName = "photon"

	maxEventsPerRequest = 1024
)

// Service is the JSON-RPC API of the endpoint. Callers declare the account
// they act as. Authorization of that account is the endpoint's.
type Service struct {
	vm *VM
}

// EmptyReply is returned by calls without a result.
type EmptyReply struct{}

type InitializeArgs struct {
	Admin                  ids.ID           `json:"admin"`
	EOBChainID             json.Uint64      `json:"eobChainId"`
	EOBMasterSmartContract hexutil.Bytes    `json:"eobMasterSmartContract"`
	ConsensusTargetRate    json.Uint64      `json:"consensusTargetRate"`
	GovTransmitters        []common.Address `json:"govTransmitters"`
	GovExecutors           []ids.ID         `json:"govExecutors"`
}

// Initialize creates the endpoint config and the governance registry.
func (s *Service) Initialize(r *http.Request, args *InitializeArgs, _ *EmptyReply) error {
	s.vm.log.Debug("API called",
		log.String("service", ServiceName),
		log.String("method", "initialize"),
		log.Stringer("admin", args.Admin),
	)

	return s.vm.endpoint.Initialize(r.Context(), args.Admin, endpoint.InitializeArgs{
		EOBChainID:             uint64(args.EOBChainID),
		EOBMasterSmartContract: args.EOBMasterSmartContract,
		ConsensusTargetRate:    uint64(args.ConsensusTargetRate),
		GovTransmitters:        args.GovTransmitters,
		GovExecutors:           args.GovExecutors,
	})
}

type LoadOperationArgs struct {
	Executor  ids.ID           `json:"executor"`
	Operation opdata.Operation `json:"operation"`
	// OpHash must be the message hash of Operation.
	OpHash common.Hash `json:"opHash"`
}

type OpHashReply struct {
	OpHash common.Hash `json:"opHash"`
}

// LoadOperation loads an inbound operation. A missing or stale OpHash fails
// with ErrCachedOpHashMismatch.
func (s *Service) LoadOperation(r *http.Request, args *LoadOperationArgs, reply *OpHashReply) error {
	s.vm.log.Debug("API called",
		log.String("service", ServiceName),
		log.String("method", "loadOperation"),
		log.Stringer("opHash", args.OpHash),
	)

	if err := s.vm.endpoint.LoadOperation(r.Context(), args.Executor, &args.Operation, args.OpHash); err != nil {
		return err
	}
	reply.OpHash = args.OpHash
	return nil
}

type SignOperationArgs struct {
	Executor   ids.ID                `json:"executor"`
	OpHash     common.Hash           `json:"opHash"`
	Signatures []signature.Signature `json:"signatures"`
}

type SignOperationReply struct {
	// Reached is true once the operation is Signed.
	Reached bool `json:"reached"`
}

// SignOperation adds transmitter signatures to a loaded operation.
func (s *Service) SignOperation(r *http.Request, args *SignOperationArgs, reply *SignOperationReply) error {
	s.vm.log.Debug("API called",
		log.String("service", ServiceName),
		log.String("method", "signOperation"),
		log.Stringer("opHash", args.OpHash),
		log.Int("signatures", len(args.Signatures)),
	)

	reached, err := s.vm.endpoint.SignOperation(r.Context(), args.Executor, args.OpHash, args.Signatures)
	reply.Reached = reached
	return err
}

type ExecuteOperationArgs struct {
	Executor ids.ID      `json:"executor"`
	OpHash   common.Hash `json:"opHash"`
	// Accounts are passed to the handler. The first one must be the
	// protocol address.
	Accounts       []ids.ID      `json:"accounts"`
	TargetProtocol hexutil.Bytes `json:"targetProtocol,omitempty"`
	ComputeBudget  json.Uint32   `json:"computeBudget"`
}

// ExecuteOperation dispatches a Signed operation.
func (s *Service) ExecuteOperation(r *http.Request, args *ExecuteOperationArgs, _ *EmptyReply) error {
	s.vm.log.Debug("API called",
		log.String("service", ServiceName),
		log.String("method", "executeOperation"),
		log.Stringer("opHash", args.OpHash),
	)

	return s.vm.endpoint.ExecuteOperation(r.Context(), args.Executor, args.OpHash, endpoint.ExecuteArgs{
		Accounts:       args.Accounts,
		TargetProtocol: args.TargetProtocol,
		ComputeBudget:  uint32(args.ComputeBudget),
	})
}

type ProposeArgs struct {
	Proposer         ids.ID                  `json:"proposer"`
	ProtocolID       opdata.ProtocolID       `json:"protocolId"`
	DstChainID       *uint256.Int            `json:"dstChainId"`
	ProtocolAddress  hexutil.Bytes           `json:"protocolAddress"`
	FunctionSelector opdata.FunctionSelector `json:"functionSelector"`
	Params           hexutil.Bytes           `json:"params"`
}

type ProposeReply struct {
	Proposal *events.ProposeEvent `json:"proposal"`
}

// Propose emits a ProposeEvent for relays.
func (s *Service) Propose(r *http.Request, args *ProposeArgs, reply *ProposeReply) error {
	if args.DstChainID == nil {
		return fmt.Errorf("%w: destination chain id is required", endpoint.ErrInvalidOpData)
	}

	s.vm.log.Debug("API called",
		log.String("service", ServiceName),
		log.String("method", "propose"),
		log.Stringer("protocolID", args.ProtocolID),
	)

	proposal, err := s.vm.endpoint.Propose(r.Context(), args.Proposer, endpoint.ProposeArgs{
		ProtocolID:       args.ProtocolID,
		DstChainID:       args.DstChainID,
		ProtocolAddress:  args.ProtocolAddress,
		FunctionSelector: args.FunctionSelector,
		Params:           args.Params,
	})
	reply.Proposal = proposal
	return err
}

type OpHashArgs struct {
	OpHash common.Hash `json:"opHash"`
}

type GetOperationReply struct {
	Operation *state.OpInfo `json:"operation"`
}

func (s *Service) GetOperation(_ *http.Request, args *OpHashArgs, reply *GetOperationReply) error {
	info, err := s.vm.endpoint.Operation(args.OpHash)
	reply.Operation = info
	return err
}

type GetOperationStatusReply struct {
	Status state.Status `json:"status"`
}

// GetOperationStatus returns None for unknown operations.
func (s *Service) GetOperationStatus(_ *http.Request, args *OpHashArgs, reply *GetOperationStatusReply) error {
	status, err := s.vm.endpoint.OperationStatus(args.OpHash)
	reply.Status = status
	return err
}

type GetProtocolArgs struct {
	ProtocolID opdata.ProtocolID `json:"protocolId"`
}

type GetProtocolReply struct {
	Protocol *state.ProtocolInfo `json:"protocol"`
}

func (s *Service) GetProtocol(_ *http.Request, args *GetProtocolArgs, reply *GetProtocolReply) error {
	info, err := s.vm.endpoint.Protocol(args.ProtocolID)
	reply.Protocol = info
	return err
}

type GetConfigReply struct {
	Config *state.Config `json:"config"`
}

func (s *Service) GetConfig(_ *http.Request, _ *struct{}, reply *GetConfigReply) error {
	config, err := s.vm.endpoint.Config()
	reply.Config = config
	return err
}

type GetEventsArgs struct {
	From  json.Uint64 `json:"from"`
	Limit int         `json:"limit"`
}

type GetEventsReply struct {
	Events []events.Record `json:"events"`
}

// GetEvents pages through the event journal.
func (s *Service) GetEvents(_ *http.Request, args *GetEventsArgs, reply *GetEventsReply) error {
	limit := args.Limit
	if limit <= 0 || limit > maxEventsPerRequest {
		limit = maxEventsPerRequest
	}
	records, err := s.vm.endpoint.Events(uint64(args.From), limit)
	reply.Events = records
	return err
}

type HashOperationArgs struct {
	Operation opdata.Operation `json:"operation"`
}

type HashOperationReply struct {
	Hash        common.Hash `json:"hash"`
	MessageHash common.Hash `json:"messageHash"`
}

// HashOperation returns the preimage hash and the signed message hash of an
// operation under the endpoint encoding.
func (s *Service) HashOperation(_ *http.Request, args *HashOperationArgs, reply *HashOperationReply) error {
	encoding := s.vm.endpoint.Encoding()
	hash, err := args.Operation.Hash(encoding)
	if err != nil {
		return err
	}
	messageHash, err := args.Operation.MessageHash(encoding)
	if err != nil {
		return err
	}
	reply.Hash = hash
	reply.MessageHash = messageHash
	return nil
}
