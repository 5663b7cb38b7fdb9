// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luxfi/log"

	"github.com/luxfi/photon/vms/photonvm"
	"github.com/luxfi/photon/vms/photonvm/cmd/hash"
	"github.com/luxfi/photon/vms/photonvm/cmd/run"
)

func main() {
	cmd := &cobra.Command{
		Use:     "photon",
		Short:   "Photon cross-chain message endpoint",
		Version: photonvm.Version,
	}
	cmd.AddCommand(
		run.Command(log.Root()),
		hash.Command(),
	)
	cmd.SilenceUsage = true

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "command failed %v\n", err)
		os.Exit(1)
	}
}
