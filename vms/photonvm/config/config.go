// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/luxfi/ids"

	"github.com/luxfi/photon/vms/photonvm/endpoint"
	"github.com/luxfi/photon/vms/photonvm/opdata"
	"github.com/luxfi/photon/vms/photonvm/relay"
	"github.com/luxfi/photon/vms/photonvm/state"
)

const DefaultHTTPAddr = "127.0.0.1:9650"

var (
	ErrInvalidRelay    = errors.New("invalid relay configuration")
	ErrInvalidHTTP     = errors.New("invalid http configuration")
	ErrInvalidKey      = errors.New("invalid transmitter key")
	errMissingSource   = errors.New("relay source url is required")
	errMissingExecutor = errors.New("relay executor is required")
)

// Config holds configuration for the Photon VM.
type Config struct {
	// Endpoint settings
	EndpointID      ids.ID                 `json:"endpointId"`
	ChainID         *uint256.Int           `json:"chainId"`
	Encoding        opdata.Encoding        `json:"encoding"`
	Capacities      state.Capacities       `json:"capacities"`
	SequentialNonce bool                   `json:"sequentialNonce"`
	FailurePolicy   endpoint.FailurePolicy `json:"failurePolicy"`

	// HTTP service
	HTTPAddr string `json:"httpAddr"`

	Relay RelayConfig `json:"relay"`
}

// RelayConfig enables the relay that delivers proposals of a source node to
// this endpoint.
type RelayConfig struct {
	Enabled bool `json:"enabled"`

	// SourceURL is the JSON-RPC url of the source node.
	SourceURL  string       `json:"sourceUrl"`
	SrcChainID *uint256.Int `json:"srcChainId"`

	// Executor submits the operations. It must be an allowed executor of
	// every relayed protocol.
	Executor ids.ID `json:"executor"`

	// TransmitterKeys are hex encoded secp256k1 private keys.
	TransmitterKeys []string `json:"transmitterKeys"`

	Workers             int           `json:"workers"`
	QueueSize           int           `json:"queueSize"`
	MaxAttempts         int           `json:"maxAttempts"`
	FinalizationTimeout time.Duration `json:"finalizationTimeout"`
	PollInterval        time.Duration `json:"pollInterval"`
	RetryDelay          time.Duration `json:"retryDelay"`
	CompletedCacheSize  int           `json:"completedCacheSize"`
	BatchSize           int           `json:"batchSize"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() Config {
	r := relay.DefaultConfig()
	return Config{
		Encoding:      opdata.EncodingV2,
		Capacities:    state.DefaultCapacities(),
		FailurePolicy: endpoint.FailurePolicyRevert,
		HTTPAddr:      DefaultHTTPAddr,
		Relay: RelayConfig{
			Workers:             r.Workers,
			QueueSize:           r.QueueSize,
			MaxAttempts:         r.MaxAttempts,
			FinalizationTimeout: r.FinalizationTimeout,
			PollInterval:        r.PollInterval,
			RetryDelay:          r.RetryDelay,
			CompletedCacheSize:  r.CompletedCacheSize,
			BatchSize:           100,
		},
	}
}

// Endpoint returns the endpoint configuration.
func (c *Config) Endpoint() endpoint.Config {
	return endpoint.Config{
		ID:              c.EndpointID,
		ChainID:         c.ChainID,
		Encoding:        c.Encoding,
		Capacities:      c.Capacities,
		SequentialNonce: c.SequentialNonce,
		FailurePolicy:   c.FailurePolicy,
	}
}

// Relayer returns the relayer configuration.
func (c *RelayConfig) Relayer() relay.Config {
	return relay.Config{
		Workers:             c.Workers,
		QueueSize:           c.QueueSize,
		MaxAttempts:         c.MaxAttempts,
		FinalizationTimeout: c.FinalizationTimeout,
		PollInterval:        c.PollInterval,
		RetryDelay:          c.RetryDelay,
		CompletedCacheSize:  c.CompletedCacheSize,
	}
}

// Listener returns the listener configuration for a relay delivering to
// dstChainID.
func (c *RelayConfig) Listener(dstChainID *uint256.Int, encoding opdata.Encoding) relay.ListenerConfig {
	return relay.ListenerConfig{
		SrcChainID:   c.SrcChainID,
		DstChainID:   dstChainID,
		Encoding:     encoding,
		BatchSize:    c.BatchSize,
		PollInterval: c.PollInterval,
	}
}

// Keys decodes the transmitter keys.
func (c *RelayConfig) Keys() ([]*ecdsa.PrivateKey, error) {
	keys := make([]*ecdsa.PrivateKey, len(c.TransmitterKeys))
	for i, s := range c.TransmitterKeys {
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %w", ErrInvalidKey, i, err)
		}
		key, err := crypto.ToECDSA(b)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %w", ErrInvalidKey, i, err)
		}
		keys[i] = key
	}
	return keys, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	endpointConfig := c.Endpoint()
	if err := endpointConfig.Validate(); err != nil {
		return err
	}
	if c.HTTPAddr == "" {
		return ErrInvalidHTTP
	}
	if !c.Relay.Enabled {
		return nil
	}
	return c.Relay.Validate()
}

func (c *RelayConfig) Validate() error {
	switch {
	case c.SourceURL == "":
		return fmt.Errorf("%w: %w", ErrInvalidRelay, errMissingSource)
	case c.SrcChainID == nil:
		return fmt.Errorf("%w: source chain id is required", ErrInvalidRelay)
	case c.Executor == ids.Empty:
		return fmt.Errorf("%w: %w", ErrInvalidRelay, errMissingExecutor)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidRelay)
	}
	if _, err := url.Parse(c.SourceURL); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRelay, err)
	}
	if _, err := c.Keys(); err != nil {
		return err
	}
	relayer := c.Relayer()
	if err := relayer.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRelay, err)
	}
	return nil
}

// ParseConfig parses configuration from JSON bytes.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
