// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hash

import (
	"fmt"

	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "hash",
		Short: "Prints the hash and the signed message hash of an operation",
		RunE:  hashFunc,
	}
	AddFlags(c.Flags())
	return c
}

func hashFunc(c *cobra.Command, args []string) error {
	config, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}
	if err := config.Operation.Validate(); err != nil {
		return err
	}

	hash, err := config.Operation.Hash(config.Encoding)
	if err != nil {
		return err
	}
	messageHash, err := config.Operation.MessageHash(config.Encoding)
	if err != nil {
		return err
	}

	out := c.OutOrStdout()
	fmt.Fprintf(out, "hash:        %s\n", hash)
	fmt.Fprintf(out, "messageHash: %s\n", messageHash)
	return nil
}
