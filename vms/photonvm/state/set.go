// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrDuplicate        = errors.New("element already present")
	ErrCapacityExceeded = errors.New("set capacity exceeded")
)

// Set is an insertion ordered set that never holds more than its capacity.
// Membership is tracked by an explicit length so zero values are ordinary
// elements.
type Set[T comparable] struct {
	items    []T
	capacity int
}

// NewSet returns an empty set that holds at most capacity elements.
func NewSet[T comparable](capacity int) Set[T] {
	return Set[T]{capacity: capacity}
}

func (s *Set[T]) Len() int {
	return len(s.items)
}

func (s *Set[T]) Cap() int {
	return s.capacity
}

func (s *Set[T]) Contains(elt T) bool {
	return slices.Contains(s.items, elt)
}

// Insert adds elt. It fails with ErrDuplicate when elt is present and
// ErrCapacityExceeded when the set is full.
func (s *Set[T]) Insert(elt T) error {
	if s.Contains(elt) {
		return ErrDuplicate
	}
	if len(s.items) >= s.capacity {
		return fmt.Errorf("%w: capacity %d", ErrCapacityExceeded, s.capacity)
	}
	s.items = append(s.items, elt)
	return nil
}

// Remove deletes elt and reports whether it was present.
func (s *Set[T]) Remove(elt T) bool {
	i := slices.Index(s.items, elt)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true
}

// List returns a copy of the elements in insertion order.
func (s *Set[T]) List() []T {
	return slices.Clone(s.items)
}

// Reset removes every element.
func (s *Set[T]) Reset() {
	s.items = nil
}

type setJSON[T comparable] struct {
	Capacity int `json:"capacity"`
	Items    []T `json:"items"`
}

func (s Set[T]) MarshalJSON() ([]byte, error) {
	items := s.items
	if items == nil {
		items = []T{}
	}
	return json.Marshal(setJSON[T]{
		Capacity: s.capacity,
		Items:    items,
	})
}

func (s *Set[T]) UnmarshalJSON(b []byte) error {
	var raw setJSON[T]
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	decoded := Set[T]{capacity: raw.Capacity}
	for _, elt := range raw.Items {
		if err := decoded.Insert(elt); err != nil {
			return err
		}
	}
	*s = decoded
	return nil
}
