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
	"os"

	"github.com/0xsoniclabs/refbench/common/diagnostics"
	"github.com/urfave/cli/v2"
)

// Run using
//  go run ./benchmark/tool <flags>
//  go run ./benchmark/tool info

var commands = []*cli.Command{
	&InfoCmd,
}

func newApp() *cli.App {
	flags := diagnostics.DefaultFlags()
	return &cli.App{
		Name:      "tool",
		Usage:     "compares native pointers with compact 32-bit references in a large tree",
		Copyright: "(c) 2022-25 Sonic Operations Ltd",
		Flags:     append(flags.List(), benchmarkFlags...),
		Action:    diagnostics.AddPerformanceDiagnosticsAction(doBenchmark, flags),
		Commands:  commands,
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
