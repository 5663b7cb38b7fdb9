// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/ids"

	"github.com/luxfi/photon/vms/photonvm/opdata"
	"github.com/luxfi/photon/vms/photonvm/state"
)

var (
	errMissingID      = errors.New("endpoint id is required")
	errMissingChainID = errors.New("chain id is required")
	errUnknownPolicy  = errors.New("unknown failure policy")
)

// FailurePolicy decides what happens to an operation whose handler fails.
type FailurePolicy uint8

const (
	// FailurePolicyRevert rolls the execution back. The operation stays
	// Signed and can be executed again.
	FailurePolicyRevert FailurePolicy = iota
	// FailurePolicyRecord marks the operation Executed and reports the
	// handler error in ProposalExecuted.
	FailurePolicyRecord
)

func (p FailurePolicy) String() string {
	switch p {
	case FailurePolicyRevert:
		return "revert"
	case FailurePolicyRecord:
		return "record"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "revert", "":
		return FailurePolicyRevert, nil
	case "record":
		return FailurePolicyRecord, nil
	default:
		return 0, fmt.Errorf("%w: %q", errUnknownPolicy, s)
	}
}

func (p FailurePolicy) MarshalText() ([]byte, error) {
	if p > FailurePolicyRecord {
		return nil, fmt.Errorf("%w: %d", errUnknownPolicy, p)
	}
	return []byte(p.String()), nil
}

func (p *FailurePolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseFailurePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Config is the static configuration of an endpoint.
type Config struct {
	// ID is the endpoint's own address. Governance operations target it.
	ID      ids.ID
	ChainID *uint256.Int

	Encoding   opdata.Encoding
	Capacities state.Capacities

	// SequentialNonce requires inbound operations to be loaded in nonce
	// order. Otherwise replays are only rejected by operation hash.
	SequentialNonce bool
	FailurePolicy   FailurePolicy
}

func (c *Config) Validate() error {
	switch {
	case c.ID == ids.Empty:
		return errMissingID
	case c.ChainID == nil:
		return errMissingChainID
	case c.ChainID.BitLen() > opdata.MaxChainIDBits:
		return opdata.ErrChainIDOverflow
	case c.FailurePolicy > FailurePolicyRecord:
		return fmt.Errorf("%w: %d", errUnknownPolicy, c.FailurePolicy)
	case c.Encoding > opdata.EncodingV1:
		return fmt.Errorf("%w: %d", opdata.ErrUnknownEncoding, c.Encoding)
	}
	return c.Capacities.Validate()
}
