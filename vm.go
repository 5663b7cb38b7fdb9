// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package photon defines the interfaces implemented by the Photon VM.
package photon

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/database"
)

// VM is a virtual machine hosting a Photon endpoint.
type VM interface {
	// Initialize initializes the VM with its JSON configuration
	Initialize(ctx context.Context, db database.Database, configBytes []byte, registry *prometheus.Registry) error

	// Start begins background work
	Start(context.Context) error

	// Shutdown cleanly stops the VM
	Shutdown(context.Context) error

	// Version returns the VM version
	Version(context.Context) (string, error)

	// HealthCheck returns health details of the VM
	HealthCheck(context.Context) (interface{}, error)

	// CreateHandlers returns the HTTP handlers of the VM by path
	CreateHandlers(context.Context) (map[string]http.Handler, error)
}
