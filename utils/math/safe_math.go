// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package math

import (
	"errors"
)

// Unsigned is a constraint that permits any unsigned integer type.
type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

var (
	ErrOverflow     = errors.New("overflow")
	ErrDivideByZero = errors.New("divide by zero")
)

// MaxUint returns the maximum value of an unsigned integer of type T.
func MaxUint[T Unsigned]() T {
	return ^T(0)
}

// Add returns:
// 1) a + b
// 2) If there is overflow, an error
func Add[T Unsigned](a, b T) (T, error) {
	if a > MaxUint[T]()-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Mul returns:
// 1) a * b
// 2) If there is overflow, an error
func Mul[T Unsigned](a, b T) (T, error) {
	if b != 0 && a > MaxUint[T]()/b {
		return 0, ErrOverflow
	}
	return a * b, nil
}

// MulDiv returns floor(a * b / d). The product must not overflow T.
func MulDiv[T Unsigned](a, b, d T) (T, error) {
	if d == 0 {
		return 0, ErrDivideByZero
	}
	product, err := Mul(a, b)
	if err != nil {
		return 0, err
	}
	return product / d, nil
}

// MulDivCeil returns ceil(a * b / d). The product must not overflow T.
func MulDivCeil[T Unsigned](a, b, d T) (T, error) {
	if d == 0 {
		return 0, ErrDivideByZero
	}
	product, err := Mul(a, b)
	if err != nil {
		return 0, err
	}
	q := product / d
	if product%d != 0 {
		q++
	}
	return q, nil
}
