// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package signature recovers transmitter addresses from secp256k1
// signatures over operation message hashes.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	rsLen = 64

	// recoveryOffset is the legacy Ethereum offset applied to the recovery id
	recoveryOffset = 27
)

var ErrInvalidSignature = errors.New("invalid signature")

// Signature is a recoverable secp256k1 signature split into its parts.
type Signature struct {
	V uint8         `json:"v"`
	R hexutil.Bytes `json:"r"`
	S hexutil.Bytes `json:"s"`
}

// Bytes returns R || S || recovery id.
func (s Signature) Bytes() ([]byte, error) {
	if len(s.R)+len(s.S) != rsLen {
		return nil, fmt.Errorf("%w: r||s is %d bytes", ErrInvalidSignature, len(s.R)+len(s.S))
	}
	v := s.V % recoveryOffset
	if v > 1 {
		return nil, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, s.V)
	}
	sig := make([]byte, 0, crypto.SignatureLength)
	sig = append(sig, s.R...)
	sig = append(sig, s.S...)
	return append(sig, v), nil
}

// Recover returns the address that produced sig over hash.
func Recover(hash common.Hash, sig Signature) (common.Address, error) {
	raw, err := sig.Bytes()
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(hash[:], raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Sign signs hash with key and returns the signature with V in {27, 28}.
func Sign(hash common.Hash, key *ecdsa.PrivateKey) (Signature, error) {
	raw, err := crypto.Sign(hash[:], key)
	if err != nil {
		return Signature{}, err
	}
	return Signature{
		V: raw[rsLen] + recoveryOffset,
		R: raw[:rsLen/2],
		S: raw[rsLen/2 : rsLen],
	}, nil
}

// Address returns the address controlled by key.
func Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
