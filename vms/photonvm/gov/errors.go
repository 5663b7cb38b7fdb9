// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gov

import "errors"

var (
	ErrInvalidMethodSelector         = errors.New("invalid method selector")
	ErrInvalidProtoMsg               = errors.New("invalid protocol message")
	ErrInvalidGovMsg                 = errors.New("invalid governance message")
	ErrTargetProtocolMismatch        = errors.New("target protocol mismatch")
	ErrConsensusTargetRateTooLow     = errors.New("consensus target rate too low")
	ErrConsensusTargetRateTooHigh    = errors.New("consensus target rate too high")
	ErrInvalidProposerAddress        = errors.New("invalid proposer address")
	ErrProposerIsAlreadyAllowed      = errors.New("proposer is already allowed")
	ErrMaxProposersExceeded          = errors.New("max proposers exceeded")
	ErrInvalidExecutorAddress        = errors.New("invalid executor address")
	ErrExecutorIsAlreadyAllowed      = errors.New("executor is already allowed")
	ErrMaxExecutorsExceeded          = errors.New("max executors exceeded")
	ErrTryingToRemoveLastGovExecutor = errors.New("trying to remove the last governance executor")
	ErrNoTransmittersAllowed         = errors.New("no transmitters allowed")
	ErrMaxTransmittersExceeded       = errors.New("max transmitters exceeded")
)
