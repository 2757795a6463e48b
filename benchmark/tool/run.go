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
	"github.com/0xsoniclabs/refbench/backend/arena"
	"github.com/0xsoniclabs/refbench/benchmark"
	"github.com/0xsoniclabs/refbench/common/logger"
	"github.com/0xsoniclabs/refbench/common/platform"
	"github.com/urfave/cli/v2"
)

var (
	depthFlag = cli.IntFlag{
		Name:  "depth",
		Usage: "maximum depth of the random tree",
		Value: benchmark.DefaultDepth,
	}
	walksFlag = cli.Uint64Flag{
		Name:  "walks",
		Usage: "number of walks performed on each tree",
		Value: benchmark.DefaultWalks,
	}
	seedFlag = cli.Uint64Flag{
		Name:  "seed",
		Usage: "seed of the random source shaping the tree",
		Value: 0,
	}
	variantFlag = cli.StringFlag{
		Name:  "variant",
		Usage: "reference representation to be measured: auto, native, compact, or both",
		Value: string(benchmark.VariantAuto),
	}
	chunkSizeFlag = cli.IntFlag{
		Name:  "chunk-size",
		Usage: "number of nodes allocated at once",
		Value: arena.DefaultChunkSize,
	}
	memoryLimitFlag = cli.Uint64Flag{
		Name:  "memory-limit",
		Usage: "maximum number of bytes used for the nodes of a tree, 0 for 3/4 of the physical memory",
		Value: 0,
	}
	checkRefsFlag = cli.BoolFlag{
		Name:  "check-refs",
		Usage: "verify every child reference while building the tree",
	}
	progressIntervalFlag = cli.IntFlag{
		Name:  "progress-interval",
		Usage: "number of walks between progress reports, 0 to disable",
		Value: benchmark.DefaultProgressInterval,
	}
	printFootprintFlag = cli.BoolFlag{
		Name:  "print-footprint",
		Usage: "print a breakdown of the memory used for nodes",
	}
)

var benchmarkFlags = []cli.Flag{
	&depthFlag,
	&walksFlag,
	&seedFlag,
	&variantFlag,
	&chunkSizeFlag,
	&memoryLimitFlag,
	&checkRefsFlag,
	&progressIntervalFlag,
	&printFootprintFlag,
}

func doBenchmark(context *cli.Context) error {
	variant, err := benchmark.ParseVariant(context.String(variantFlag.Name))
	if err != nil {
		return err
	}
	config := benchmark.Config{
		Depth:            context.Int(depthFlag.Name),
		Walks:            context.Uint64(walksFlag.Name),
		Seed:             context.Uint64(seedFlag.Name),
		Variant:          variant,
		ChunkSize:        context.Int(chunkSizeFlag.Name),
		MemoryLimit:      context.Uint64(memoryLimitFlag.Name),
		CheckRefs:        context.Bool(checkRefsFlag.Name),
		ProgressInterval: context.Int(progressIntervalFlag.Name),
		PrintFootprint:   context.Bool(printFootprintFlag.Name),
	}

	log := logger.NewLog()
	harness := benchmark.NewHarness(
		log,
		platform.NewHostProbe(arena.LowSourceSupported()),
		platform.NewProcessMemoryProbe(),
	)
	reports, err := harness.Run(config)
	if err != nil {
		return err
	}
	summarize(log, reports)
	return nil
}

// summarize compares the native and the compact run, if both succeeded.
func summarize(log logger.Sink, reports []benchmark.Report) {
	var native, compact *benchmark.Report
	for i := range reports {
		if reports[i].Err != nil {
			continue
		}
		switch reports[i].Variant {
		case benchmark.VariantNative:
			native = &reports[i]
		case benchmark.VariantCompact:
			compact = &reports[i]
		}
	}
	if native == nil || compact == nil || native.WalkTime == 0 || native.DataSize == 0 {
		return
	}
	log.Printf("compact references: %.2fx walk time, %.1f%% of the node data of native pointers",
		compact.WalkTime.Seconds()/native.WalkTime.Seconds(),
		100*float64(compact.DataSize)/float64(native.DataSize),
	)
}
