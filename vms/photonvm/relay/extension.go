// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"fmt"
	"sync"

	"github.com/luxfi/ids"

	"github.com/luxfi/photon/vms/photonvm/gov"
	"github.com/luxfi/photon/vms/photonvm/opdata"
)

const govComputeBudget uint32 = 400_000

// Extension supplies the protocol specific parts of an execute transaction.
type Extension interface {
	ProtocolID() opdata.ProtocolID
	// Accounts returns the accounts passed to the handler after the protocol
	// address.
	Accounts(selector opdata.FunctionSelector, params []byte) ([]ids.ID, error)
	SignTransaction(selector opdata.FunctionSelector, params []byte, tx *Transaction) error
	ComputeBudget(selector opdata.FunctionSelector, params []byte) (uint32, bool)
}

// Extensions is the set of extensions linked into the relay, keyed by
// protocol.
type Extensions struct {
	lock       sync.RWMutex
	extensions map[opdata.ProtocolID]Extension
}

// NewExtensions returns a registry holding the governance extension.
func NewExtensions() *Extensions {
	return &Extensions{
		extensions: map[opdata.ProtocolID]Extension{
			opdata.GovProtocolID: GovExtension{},
		},
	}
}

func (e *Extensions) Register(ext Extension) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	id := ext.ProtocolID()
	if _, ok := e.extensions[id]; ok {
		return fmt.Errorf("%w: %s", ErrExtensionExists, id)
	}
	e.extensions[id] = ext
	return nil
}

func (e *Extensions) Get(id opdata.ProtocolID) (Extension, bool) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	ext, ok := e.extensions[id]
	return ext, ok
}

// GovExtension executes governance operations. It declares the registry the
// operation changes so the endpoint can reject a mismatch.
type GovExtension struct{}

func (GovExtension) ProtocolID() opdata.ProtocolID {
	return opdata.GovProtocolID
}

func (GovExtension) Accounts(opdata.FunctionSelector, []byte) ([]ids.ID, error) {
	return nil, nil
}

func (GovExtension) SignTransaction(selector opdata.FunctionSelector, params []byte, tx *Transaction) error {
	target, err := gov.TargetProtocol(selector.Code, params)
	if err != nil {
		return err
	}
	tx.TargetProtocol = target.Bytes()
	return nil
}

func (GovExtension) ComputeBudget(opdata.FunctionSelector, []byte) (uint32, bool) {
	return govComputeBudget, true
}

// StaticExtension serves protocols whose handlers need a fixed account list.
// A zero Budget leaves the relay default in place.
type StaticExtension struct {
	Protocol      opdata.ProtocolID
	ExtraAccounts []ids.ID
	Budget        uint32
}

func (s StaticExtension) ProtocolID() opdata.ProtocolID {
	return s.Protocol
}

func (s StaticExtension) Accounts(opdata.FunctionSelector, []byte) ([]ids.ID, error) {
	return s.ExtraAccounts, nil
}

func (StaticExtension) SignTransaction(opdata.FunctionSelector, []byte, *Transaction) error {
	return nil
}

func (s StaticExtension) ComputeBudget(opdata.FunctionSelector, []byte) (uint32, bool) {
	return s.Budget, s.Budget != 0
}
