// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wrappers provides error accumulation and the ABI word packer used
// to build operation preimages.
package wrappers

const (
	// ByteLen is the number of bytes per byte
	ByteLen = 1
	// LongLen is the number of bytes per long
	LongLen = 8
	// WordLen is the number of bytes per ABI word
	WordLen = 32
	// AddressLen is the number of bytes per EVM address
	AddressLen = 20
)

// Errs collects errors during a series of operations.
type Errs struct {
	Err error
}

// Errored returns true if an error has been recorded.
func (errs *Errs) Errored() bool {
	return errs.Err != nil
}

// Add records the first non-nil error.
func (errs *Errs) Add(errors ...error) {
	if errs.Err == nil {
		for _, err := range errors {
			if err != nil {
				errs.Err = err
				break
			}
		}
	}
}
