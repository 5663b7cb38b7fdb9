// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/ids"

	"github.com/luxfi/photon/vms/photonvm/opdata"
)

// ReceiveMethod is the handler method invoked for by-code selectors.
const ReceiveMethod = "receive_photon_msg"

// Call is a delegated invocation of a protocol handler.
type Call struct {
	// Authority is the identity the endpoint calls protocol handlers with.
	// It is unique per protocol.
	Authority  ids.ID
	Method     string
	OpHash     common.Hash
	ProtocolID opdata.ProtocolID
	// Selector is only set for by-code calls
	Selector []byte
	Params   []byte
	Accounts []ids.ID
	// Budget is the compute allowance the relay paid for. Zero means
	// unbounded.
	Budget uint32
}

// Handler executes operations addressed to a protocol.
//
// Handlers run while the endpoint is locked and must not call back into it.
type Handler interface {
	HandlePhotonMsg(ctx context.Context, call *Call) error
}

type HandlerFunc func(ctx context.Context, call *Call) error

func (f HandlerFunc) HandlePhotonMsg(ctx context.Context, call *Call) error {
	return f(ctx, call)
}

// Handlers maps protocol addresses to their handlers.
type Handlers struct {
	lock     sync.RWMutex
	handlers map[ids.ID]Handler
}

func NewHandlers() *Handlers {
	return &Handlers{
		handlers: make(map[ids.ID]Handler),
	}
}

func (h *Handlers) Register(addr ids.ID, handler Handler) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.handlers[addr]; ok {
		return fmt.Errorf("%w: %s", ErrHandlerExists, addr)
	}
	h.handlers[addr] = handler
	return nil
}

func (h *Handlers) Get(addr ids.ID) (Handler, bool) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	handler, ok := h.handlers[addr]
	return handler, ok
}
