// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hash

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/luxfi/photon/vms/photonvm/opdata"
)

const (
	FileKey     = "file"
	EncodingKey = "encoding"
)

var errMissingFile = errors.New("--file is required")

func AddFlags(flags *pflag.FlagSet) {
	flags.String(FileKey, "", "Path to a JSON operation (required)")
	flags.String(EncodingKey, opdata.EncodingV2.String(), "Preimage encoding, v1 or v2")
}

type Config struct {
	Operation opdata.Operation
	Encoding  opdata.Encoding
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	path, err := flags.GetString(FileKey)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errMissingFile
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var op opdata.Operation
	if err := json.Unmarshal(b, &op); err != nil {
		return nil, fmt.Errorf("failed to parse operation: %w", err)
	}

	encodingStr, err := flags.GetString(EncodingKey)
	if err != nil {
		return nil, err
	}
	encoding, err := opdata.ParseEncoding(encodingStr)
	if err != nil {
		return nil, err
	}

	return &Config{
		Operation: op,
		Encoding:  encoding,
	}, nil
}
