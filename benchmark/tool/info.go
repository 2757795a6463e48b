// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.


package main

import (
	"fmt"
	"unsafe"

	"github.com/0xsoniclabs/refbench/backend/arena"
	"github.com/0xsoniclabs/refbench/common/compact"
	"github.com/0xsoniclabs/refbench/common/platform"
	"github.com/0xsoniclabs/refbench/database/tree"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pbnjay/memory"
	"github.com/urfave/cli/v2"
)

var InfoCmd = cli.Command{
	Action: doInfo,
	Name:   "info",
	Usage:  "lists properties of the platform relevant for the benchmark",
	Flags: []cli.Flag{
		&depthFlag,
	},
}

func doInfo(context *cli.Context) error {
	desc, err := platform.NewHostProbe(arena.LowSourceSupported()).Describe()
	if err != nil {
		return err
	}
	depth := context.Int(depthFlag.Name)
	lo, hi := compact.Window()

	out := context.App.Writer
	fmt.Fprintf(out, "Platform:             %v\n", desc)
	fmt.Fprintf(out, "Pointer size:         %d bits\n", desc.PointerBits)
	fmt.Fprintf(out, "Compact window:       [%#x, %#x]\n", lo, hi)
	fmt.Fprintf(out, "Native node size:     %d bytes\n", unsafe.Sizeof(tree.NativeNode{}))
	fmt.Fprintf(out, "Compact node size:    %d bytes\n", unsafe.Sizeof(tree.CompactNode{}))
	fmt.Fprintf(out, "Physical memory:      %v\n", ethcommon.StorageSize(memory.TotalMemory()))
	fmt.Fprintf(out, "Free memory:          %v\n", ethcommon.StorageSize(memory.FreeMemory()))
	fmt.Fprintf(out, "Default node budget:  %v\n", ethcommon.StorageSize(arena.DefaultLimit()))
	fmt.Fprintf(out, "Nodes at depth %d:     at most %d, expected %.0f\n",
		depth, tree.MaxNodes(depth), tree.ExpectedNodes(depth))
	return nil
}
