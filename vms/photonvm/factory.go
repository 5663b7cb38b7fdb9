// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package photonvm

import (
	"github.com/luxfi/log"

	"github.com/luxfi/photon"
)

var (
	_ photon.Factory = (*Factory)(nil)
	_ photon.VM      = (*VM)(nil)
)

// Factory creates Photon VM instances.
type Factory struct{}

// New creates a new Photon VM instance. The configuration is read in
// Initialize.
func (*Factory) New(logger log.Logger) (interface{}, error) {
	return &VM{log: logger}, nil
}
