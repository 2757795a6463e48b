// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.


// Package benchmark compares the cost of native pointers and compact 32-bit
// references by building a large random tree with each representation and
// walking it repeatedly.
package benchmark

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/0xsoniclabs/refbench/backend/arena"
	"github.com/0xsoniclabs/refbench/common"
	"github.com/0xsoniclabs/refbench/common/compact"
	"github.com/0xsoniclabs/refbench/common/logger"
	"github.com/0xsoniclabs/refbench/common/platform"
	"github.com/0xsoniclabs/refbench/database/tree"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Report summarizes the run of a single variant.
type Report struct {
	Variant     Variant
	Nodes       int     // < nodes allocated from the arena, the root excluded
	Depth       int     // < depth passed to the builder
	NodeSize    uintptr // < size of a single node in bytes
	DataSize    uint64  // < Nodes * NodeSize
	MemoryUsage uint64  // < resident memory of the process after the build
	Overhead    float64 // < memory usage relative to the data size in percent, zero without data
	Walks       uint64
	Sum         *uint256.Int // < sum of the payloads of all reached nodes
	Fingerprint ethcommon.Hash
	Footprint   *common.MemoryFootprint
	BuildTime   time.Duration
	WalkTime    time.Duration
	// Err is set if the variant could not be completed.
	Err error
}

// Harness runs benchmarks and reports their progress to a log.
type Harness struct {
	log      logger.Sink
	platform platform.Probe
	memory   platform.MemoryProbe
	reclaim  func() // < returns memory of finished variants to the OS
}

// NewHarness creates a harness using the given collaborators.
func NewHarness(log logger.Sink, probe platform.Probe, memory platform.MemoryProbe) *Harness {
	return &Harness{
		log:      log,
		platform: probe,
		memory:   memory,
		reclaim:  reclaimMemory,
	}
}

// reclaimMemory returns freed heap memory to the operating system, such that
// the memory usage measured by a subsequent variant only covers its own tree.
func reclaimMemory() {
	runtime.GC()
	debug.FreeOSMemory()
}

// Run performs a benchmark run for each selected variant. A variant failing
// to build its tree is reported and skipped; an error is only returned for
// invalid configurations.
func (h *Harness) Run(config Config) ([]Report, error) {
	config = config.withDefaults()
	if err := config.check(); err != nil {
		return nil, err
	}

	desc, err := h.platform.Describe()
	h.log.Plainf("X32-ABI test; %v\n", desc)
	if err != nil {
		h.log.Printf("platform detection incomplete: %v", err)
	}

	runs := plan(config.Variant, desc)
	if !desc.WideAddresses() && config.Variant != VariantAuto && config.Variant != VariantNative {
		h.log.Printf("compact references offer no benefit with %d-bit pointers, running native only", desc.PointerBits)
	}

	reports := make([]Report, 0, len(runs))
	for _, run := range runs {
		h.log.Printf("%s", run.title)
		var report Report
		switch run.variant {
		case VariantCompact:
			report = runVariant[tree.CompactNode](h, config, run)
		default:
			report = runVariant[tree.NativeNode](h, config, run)
		}
		reports = append(reports, report)
		h.reclaim()
	}
	h.log.Printf("done.")
	return reports, nil
}

// run is a single variant scheduled for execution.
type run struct {
	variant Variant
	title   string
	source  arena.Source
}

// plan selects the variants to be executed on the given platform. On
// platforms with 32-bit pointers a compact reference is as wide as a native
// one, so only the native variant is run.
func plan(requested Variant, desc platform.Descriptor) []run {
	if !desc.WideAddresses() {
		return []run{{variant: VariantNative, title: "native...", source: arena.HeapSource}}
	}
	native := run{variant: VariantNative, title: "native_node...", source: arena.HeapSource}
	compact := run{variant: VariantCompact, title: "compact_node...", source: arena.LowSource}
	switch requested {
	case VariantNative:
		return []run{native}
	case VariantCompact:
		return []run{compact}
	case VariantBoth:
		return []run{native, compact}
	}
	if desc.LowWindow {
		return []run{compact}
	}
	return []run{native}
}

func runVariant[N any, P tree.Node[N]](h *Harness, config Config, run run) Report {
	report := Report{
		Variant: run.variant,
		Depth:   config.Depth,
	}

	nodes, err := arena.New[N](arena.Config{
		Source:               run.source,
		ChunkSize:            config.ChunkSize,
		Limit:                config.MemoryLimit,
		RequireCompactWindow: run.variant == VariantCompact,
	})
	if err != nil {
		report.Err = fmt.Errorf("failed to create node arena: %w", err)
		h.log.Printf("%v", report.Err)
		return report
	}
	defer func() {
		if err := nodes.Release(); err != nil {
			h.log.Printf("failed to release node arena: %v", err)
		}
	}()

	// Build.
	start := time.Now()
	builder := tree.NewBuilder[N, P](nodes, tree.BuilderConfig{
		Seed:      config.Seed,
		CheckRefs: config.CheckRefs,
	})
	root := builder.NewRoot()
	err = builder.Build(root, config.Depth)
	report.BuildTime = time.Since(start)
	report.Nodes = builder.Allocated()
	report.NodeSize = builder.NodeSize()
	report.DataSize = builder.DataSize()
	if err != nil {
		report.Err = err
		switch {
		case errors.Is(err, arena.ErrOutOfMemory):
			h.log.Printf("bad alloc: %v", err)
		case errors.Is(err, arena.ErrAddressWindow), errors.Is(err, compact.ErrAddressTruncated):
			h.log.Printf("bad address: %v", err)
		default:
			h.log.Printf("failed to build tree: %v", err)
		}
		return report
	}
	h.log.Printf("built tree of %d nodes in %d levels", report.Nodes, config.Depth)

	// Measure.
	usage, err := h.memory.Usage()
	if err != nil {
		h.log.Printf("failed to query memory usage: %v", err)
	} else {
		report.MemoryUsage = usage
		if report.DataSize > 0 {
			report.Overhead = overhead(usage, report.DataSize)
		}
		h.log.Printf("%s", describeUsage(usage, report.DataSize))
	}

	// Walk.
	start = time.Now()
	report.Walks = config.Walks
	report.Sum = walk[N, P](h.log, root, config.Walks, config.ProgressInterval)
	report.WalkTime = time.Since(start)
	h.log.Printf("walked tree %d times, sum of data is %s", report.Walks, report.Sum.Dec())

	report.Fingerprint = tree.Fingerprint[N, P](root)
	h.log.Printf("tree fingerprint %x", report.Fingerprint)

	report.Footprint = nodes.GetMemoryFootprint()
	if config.PrintFootprint {
		h.log.Printf("node arena memory:\n%v", report.Footprint)
	}
	return report
}

// sumFlushInterval is the number of payloads that can be added to a uint64
// without overflowing, since payloads are below 2^31.
const sumFlushInterval = 1 << 32

// walk performs the given number of walks, using seeds 0 to walks-1, and
// returns the sum of the payloads of all reached nodes.
func walk[N any, P tree.Node[N]](log logger.Sink, root *N, walks uint64, interval int) *uint256.Int {
	sum := new(uint256.Int)
	var partial uint64
	var progress *logger.ProgressLogger
	if interval > 0 {
		progress = logger.NewProgressTracker(log, "walked tree %d times, %.2f walks/s", interval)
	}
	for seed := uint64(0); seed < walks; seed++ {
		partial += uint64(P(tree.Walk[N, P](root, seed)).Payload())
		if (seed+1)%sumFlushInterval == 0 {
			sum.AddUint64(sum, partial)
			partial = 0
		}
		if progress != nil && (seed+1)%uint64(interval) == 0 {
			progress.Step(interval)
		}
	}
	return sum.AddUint64(sum, partial)
}

// describeUsage summarizes the memory usage relative to the stored data. The
// overhead is not applicable if there is no data.
func describeUsage(usage, dataSize uint64) string {
	if dataSize == 0 {
		return fmt.Sprintf("using %.1f MB to store %.1f MB of data (n/a overhead)",
			megabytes(usage), megabytes(dataSize))
	}
	return fmt.Sprintf("using %.1f MB to store %.1f MB of data (%.2f%% overhead)",
		megabytes(usage), megabytes(dataSize), overhead(usage, dataSize))
}

func overhead(usage, dataSize uint64) float64 {
	return 100*float64(usage)/float64(dataSize) - 100
}

func megabytes(bytes uint64) float64 {
	return float64(bytes) / (1024 * 1024)
}
