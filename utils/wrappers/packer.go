// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wrappers

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrInsufficientLength = errors.New("packer has insufficient length for input")
	ErrOversized          = errors.New("size is larger than limit")
	errNegativeOffset     = errors.New("negative offset")
	errInvalidInput       = errors.New("input does not match expected format")
)

// Packer packs and unpacks a byte array using the EVM convention of
// big-endian, left zero-padded 32 byte words for integers and raw,
// undelimited bytes for everything else.
type Packer struct {
	Errs

	// The largest allowed size of expanding the byte array
	MaxSize int
	// The current byte array
	Bytes []byte
	// The offset that is being written to in the byte array
	Offset int
}

// PackByte appends a byte to the byte array
func (p *Packer) PackByte(val byte) {
	p.expand(ByteLen)
	if p.Errored() {
		return
	}

	p.Bytes[p.Offset] = val
	p.Offset++
}

// UnpackByte unpacks a byte from the byte array
func (p *Packer) UnpackByte() byte {
	p.checkSpace(ByteLen)
	if p.Errored() {
		return 0
	}

	val := p.Bytes[p.Offset]
	p.Offset += ByteLen
	return val
}

// PackWord appends val as a 32 byte big-endian word.
func (p *Packer) PackWord(val *uint256.Int) {
	if val == nil {
		val = new(uint256.Int)
	}
	word := val.Bytes32()
	p.PackFixedBytes(word[:])
}

// PackUint64Word appends val as a 32 byte big-endian word.
func (p *Packer) PackUint64Word(val uint64) {
	p.PackWord(uint256.NewInt(val))
}

// UnpackWord unpacks a 32 byte big-endian word.
func (p *Packer) UnpackWord() *uint256.Int {
	b := p.UnpackFixedBytes(WordLen)
	if p.Errored() {
		return nil
	}
	return new(uint256.Int).SetBytes32(b)
}

// PackFixedBytes appends a byte slice with no length descriptor to the byte array
func (p *Packer) PackFixedBytes(bytes []byte) {
	p.expand(len(bytes))
	if p.Errored() {
		return
	}

	copy(p.Bytes[p.Offset:], bytes)
	p.Offset += len(bytes)
}

// PackPaddedBytes appends bytes right-padded with zeros to size. Inputs longer
// than size add ErrOversized to the packer.
func (p *Packer) PackPaddedBytes(bytes []byte, size int) {
	if len(bytes) > size {
		p.Add(ErrOversized)
		return
	}
	p.expand(size)
	if p.Errored() {
		return
	}

	copy(p.Bytes[p.Offset:], bytes)
	clear(p.Bytes[p.Offset+len(bytes) : p.Offset+size])
	p.Offset += size
}

// UnpackFixedBytes unpacks a byte slice with no length descriptor from the byte array
func (p *Packer) UnpackFixedBytes(size int) []byte {
	p.checkSpace(size)
	if p.Errored() {
		return nil
	}

	bytes := p.Bytes[p.Offset : p.Offset+size]
	p.Offset += size
	return bytes
}

// UnpackRemaining returns every byte after the current offset.
func (p *Packer) UnpackRemaining() []byte {
	return p.UnpackFixedBytes(len(p.Bytes) - p.Offset)
}

// checkSpace requires that there is at least bytes of write space left in the
// byte array. If this is not true, an error is added to the packer.
func (p *Packer) checkSpace(bytes int) {
	switch {
	case p.Offset < 0:
		p.Add(errNegativeOffset)
	case bytes < 0:
		p.Add(errInvalidInput)
	case len(p.Bytes)-p.Offset < bytes:
		p.Add(ErrInsufficientLength)
	}
}

// expand ensures that there is bytes bytes left of space in the byte slice.
// If this is not allowed due to the maximum size, an error is added to the packer.
func (p *Packer) expand(bytes int) {
	neededSize := bytes + p.Offset
	switch {
	case neededSize <= len(p.Bytes):
		return
	case neededSize > p.MaxSize:
		p.Err = ErrInsufficientLength
		return
	case neededSize <= cap(p.Bytes):
		p.Bytes = p.Bytes[:neededSize]
		return
	default:
		p.Bytes = append(p.Bytes[:cap(p.Bytes)], make([]byte, neededSize-cap(p.Bytes))...)
	}
}
