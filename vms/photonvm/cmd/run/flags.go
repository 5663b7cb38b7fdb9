// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"os"

	"github.com/spf13/pflag"
)

const (
	ConfigKey   = "config"
	HTTPAddrKey = "http-addr"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(ConfigKey, "", "Path to the JSON VM configuration")
	flags.String(HTTPAddrKey, "", "Address to serve the API on. Overrides the configured httpAddr")
}

type Config struct {
	ConfigBytes []byte
	HTTPAddr    string
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	configPath, err := flags.GetString(ConfigKey)
	if err != nil {
		return nil, err
	}

	var configBytes []byte
	if configPath != "" {
		configBytes, err = os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
	}

	httpAddr, err := flags.GetString(HTTPAddrKey)
	if err != nil {
		return nil, err
	}

	return &Config{
		ConfigBytes: configBytes,
		HTTPAddr:    httpAddr,
	}, nil
}
