// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/photon/vms/photonvm/gov"
	"github.com/luxfi/photon/vms/photonvm/signature"
)

var (
	ErrAlreadyInitialized         = errors.New("endpoint already initialized")
	ErrNotInitialized             = errors.New("endpoint not initialized")
	ErrInvalidAddress             = errors.New("invalid address")
	ErrInvalidOpData              = errors.New("invalid operation data")
	ErrProtocolNotInit            = errors.New("protocol not initialized")
	ErrExecutorIsNotAllowed       = errors.New("executor is not allowed")
	ErrProposerIsNotAllowed       = errors.New("proposer is not allowed")
	ErrCachedOpHashMismatch       = errors.New("cached operation hash mismatch")
	ErrOpStateInvalid             = errors.New("operation state invalid")
	ErrOpIsNotForThisChain        = errors.New("operation is not for this chain")
	ErrProtocolAddressMismatch    = errors.New("protocol address mismatch")
	ErrInvalidNonce               = errors.New("invalid nonce")
	ErrProtocolAddressNotProvided = errors.New("protocol address not provided")
	ErrInvalidEndpoint            = errors.New("invalid endpoint")
	ErrHandlerNotFound            = errors.New("handler not found")
	ErrHandlerExists              = errors.New("handler already registered")
	ErrHandlerFailed              = errors.New("handler failed")

	ErrInvalidSignature           = signature.ErrInvalidSignature
	ErrInvalidMethodSelector      = gov.ErrInvalidMethodSelector
	ErrTargetProtocolMismatch     = gov.ErrTargetProtocolMismatch
	ErrNoTransmittersAllowed      = gov.ErrNoTransmittersAllowed
	ErrMaxTransmittersExceeded    = gov.ErrMaxTransmittersExceeded
	ErrMaxExecutorsExceeded       = gov.ErrMaxExecutorsExceeded
	ErrConsensusTargetRateTooLow  = gov.ErrConsensusTargetRateTooLow
	ErrConsensusTargetRateTooHigh = gov.ErrConsensusTargetRateTooHigh
)

// IsRetryable reports whether a failed endpoint call may succeed when
// submitted again unchanged. Validation, authorization and state machine
// errors are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, final := range finalErrs {
		if errors.Is(err, final) {
			return false
		}
	}
	return true
}

var finalErrs = []error{
	ErrAlreadyInitialized,
	ErrNotInitialized,
	ErrInvalidAddress,
	ErrInvalidOpData,
	ErrProtocolNotInit,
	ErrExecutorIsNotAllowed,
	ErrProposerIsNotAllowed,
	ErrCachedOpHashMismatch,
	ErrOpStateInvalid,
	ErrOpIsNotForThisChain,
	ErrProtocolAddressMismatch,
	ErrInvalidNonce,
	ErrProtocolAddressNotProvided,
	ErrInvalidEndpoint,
	ErrInvalidSignature,
	ErrInvalidMethodSelector,
	ErrTargetProtocolMismatch,
	ErrNoTransmittersAllowed,
}

// ParseError maps an error message received over the wire back to the
// endpoint error it starts with. Messages that match none are returned as
// plain errors.
func ParseError(msg string) error {
	for _, known := range wireErrs {
		if strings.HasPrefix(msg, known.Error()) {
			return fmt.Errorf("%w%s", known, strings.TrimPrefix(msg, known.Error()))
		}
	}
	return errors.New(msg)
}

var wireErrs = append([]error{
	ErrHandlerNotFound,
	ErrHandlerFailed,
}, finalErrs...)
