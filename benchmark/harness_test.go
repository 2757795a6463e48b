// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.


package benchmark

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"unsafe"

	"github.com/0xsoniclabs/refbench/backend/arena"
	"github.com/0xsoniclabs/refbench/common/platform"
	"github.com/0xsoniclabs/refbench/database/tree"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recordingLog struct {
	messages []string
}

func (l *recordingLog) Printf(format string, args ...any) {
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

func (l *recordingLog) Plainf(format string, args ...any) {
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

var (
	narrow   = platform.Descriptor{Arch: "x86-32", Label: "x86-64", PointerBits: 32}
	wide     = platform.Descriptor{Arch: "x86-64", Label: platform.LabelNative, PointerBits: 64, LowWindow: true}
	wideOnly = platform.Descriptor{Arch: "arm-64", Label: platform.LabelNative, PointerBits: 64}
)

func newTestHarness(t *testing.T, desc platform.Descriptor) (*Harness, *recordingLog, *platform.MockMemoryProbe) {
	ctrl := gomock.NewController(t)
	probe := platform.NewMockProbe(ctrl)
	probe.EXPECT().Describe().Return(desc, nil)
	memory := platform.NewMockMemoryProbe(ctrl)
	log := &recordingLog{}
	return NewHarness(log, probe, memory), log, memory
}

// reference builds and walks a native tree without the harness.
type reference struct {
	nodes int
	sum   uint64
}

func getReference(t *testing.T, config Config) reference {
	t.Helper()
	nodes, err := arena.New[tree.NativeNode](arena.Config{})
	require.NoError(t, err)
	defer nodes.Release()
	builder := tree.NewBuilder[tree.NativeNode](nodes, tree.BuilderConfig{Seed: config.Seed})
	root := builder.NewRoot()
	require.NoError(t, builder.Build(root, config.Depth))
	res := reference{nodes: builder.Allocated()}
	for seed := uint64(0); seed < config.Walks; seed++ {
		res.sum += uint64(tree.Walk(root, seed).Payload())
	}
	return res
}

func TestHarness_Run_NarrowPlatform_ProducesReportInOrder(t *testing.T) {
	require := require.New(t)
	harness, log, memory := newTestHarness(t, narrow)
	config := Config{Depth: 2, Walks: 100, Seed: 7}
	want := getReference(t, config)
	dataSize := uint64(want.nodes) * uint64(unsafe.Sizeof(tree.NativeNode{}))
	memory.EXPECT().Usage().Return(2*dataSize, nil)

	reports, err := harness.Run(config)
	require.NoError(err)
	require.Len(reports, 1)

	report := reports[0]
	require.NoError(report.Err)
	require.Equal(VariantNative, report.Variant)
	require.Equal(want.nodes, report.Nodes)
	require.Equal(dataSize, report.DataSize)
	require.Equal(100.0, report.Overhead)
	require.Equal(want.sum, report.Sum.Uint64())
	require.True(report.Sum.IsUint64())

	require.Len(log.messages, 7)
	require.Equal("X32-ABI test; x86-32 on x86-64, low address window DISABLED\n", log.messages[0])
	require.Equal("native...", log.messages[1])
	require.Equal(fmt.Sprintf("built tree of %d nodes in 2 levels", want.nodes), log.messages[2])
	require.Equal(fmt.Sprintf("using %.1f MB to store %.1f MB of data (100.00%% overhead)",
		float64(2*dataSize)/(1<<20), float64(dataSize)/(1<<20)), log.messages[3])
	require.Equal(fmt.Sprintf("walked tree 100 times, sum of data is %d", want.sum), log.messages[4])
	require.Equal(fmt.Sprintf("tree fingerprint %x", report.Fingerprint), log.messages[5])
	require.Equal("done.", log.messages[6])
}

func TestHarness_Run_NarrowPlatform_IgnoresCompactRequests(t *testing.T) {
	for _, variant := range []Variant{VariantCompact, VariantBoth} {
		t.Run(string(variant), func(t *testing.T) {
			require := require.New(t)
			harness, log, memory := newTestHarness(t, narrow)
			memory.EXPECT().Usage().Return(uint64(1<<20), nil)

			reports, err := harness.Run(Config{Depth: 1, Walks: 1, Variant: variant})
			require.NoError(err)
			require.Len(reports, 1)
			require.Equal(VariantNative, reports[0].Variant)
			require.Contains(log.messages[1], "offer no benefit with 32-bit pointers")
			require.Equal("native...", log.messages[2])
		})
	}
}

func TestHarness_Run_WidePlatformWithoutLowWindow_RunsNative(t *testing.T) {
	require := require.New(t)
	harness, log, memory := newTestHarness(t, wideOnly)
	memory.EXPECT().Usage().Return(uint64(1<<20), nil)

	reports, err := harness.Run(Config{Depth: 1, Walks: 1})
	require.NoError(err)
	require.Len(reports, 1)
	require.Equal(VariantNative, reports[0].Variant)
	require.Equal("X32-ABI test; arm-64 on native, low address window DISABLED\n", log.messages[0])
	require.Equal("native_node...", log.messages[1])
}

func TestHarness_Run_BothVariantsAgreeOnShapeAndSum(t *testing.T) {
	if strconv.IntSize != 64 || !arena.LowSourceSupported() {
		t.Skip("low address window not available")
	}
	require := require.New(t)
	harness, log, memory := newTestHarness(t, wide)
	memory.EXPECT().Usage().Return(uint64(64<<20), nil).Times(2)

	reports, err := harness.Run(Config{Depth: 4, Walks: 1000, Seed: 3, Variant: VariantBoth, CheckRefs: true})
	require.NoError(err)
	require.Len(reports, 2)
	native, compact := reports[0], reports[1]
	require.NoError(native.Err)
	require.NoError(compact.Err)
	require.Equal(VariantNative, native.Variant)
	require.Equal(VariantCompact, compact.Variant)
	require.Equal(native.Nodes, compact.Nodes)
	require.Equal(native.Sum, compact.Sum)
	require.Equal(native.Fingerprint, compact.Fingerprint)
	require.Equal(2*compact.NodeSize, native.NodeSize)
	require.Less(compact.DataSize, native.DataSize)

	require.Contains(log.messages, "native_node...")
	require.Contains(log.messages, "compact_node...")
	require.Equal("done.", log.messages[len(log.messages)-1])
}

func TestHarness_Run_OutOfMemory_IsReportedAndNextVariantRuns(t *testing.T) {
	require := require.New(t)
	harness, log, _ := newTestHarness(t, wide)

	reports, err := harness.Run(Config{Depth: 5, Walks: 10, Variant: VariantBoth, MemoryLimit: 1000})
	require.NoError(err)
	require.Len(reports, 2)
	require.True(errors.Is(reports[0].Err, arena.ErrOutOfMemory), "got %v", reports[0].Err)
	require.Greater(reports[0].Nodes, 0)
	require.Error(reports[1].Err)

	badAlloc := -1
	for i, msg := range log.messages {
		if strings.HasPrefix(msg, "bad alloc: ") {
			badAlloc = i
			break
		}
	}
	require.Greater(badAlloc, 0)
	require.Equal("compact_node...", log.messages[badAlloc+1])
	require.Equal("done.", log.messages[len(log.messages)-1])
	for _, msg := range log.messages {
		require.False(strings.HasPrefix(msg, "walked tree"), "walk performed after failed build")
	}
}

func TestHarness_Run_MemoryProbeFailure_DoesNotStopTheWalk(t *testing.T) {
	require := require.New(t)
	harness, log, memory := newTestHarness(t, narrow)
	memory.EXPECT().Usage().Return(uint64(0), fmt.Errorf("injected error"))

	reports, err := harness.Run(Config{Depth: 2, Walks: 10})
	require.NoError(err)
	require.Len(reports, 1)
	require.NoError(reports[0].Err)
	require.Equal(uint64(0), reports[0].MemoryUsage)
	require.Equal("failed to query memory usage: injected error", log.messages[3])
	require.True(strings.HasPrefix(log.messages[4], "walked tree 10 times"))
}

func TestHarness_Run_PlatformDetectionFailure_IsReported(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	probe := platform.NewMockProbe(ctrl)
	desc := platform.Descriptor{Arch: "x86-64", Label: platform.LabelError, PointerBits: 64}
	probe.EXPECT().Describe().Return(desc, fmt.Errorf("injected error"))
	memory := platform.NewMockMemoryProbe(ctrl)
	memory.EXPECT().Usage().Return(uint64(1<<20), nil)
	log := &recordingLog{}

	_, err := NewHarness(log, probe, memory).Run(Config{Depth: 1, Walks: 1})
	require.NoError(err)
	require.Equal("X32-ABI test; x86-64 on error, low address window DISABLED\n", log.messages[0])
	require.Equal("platform detection incomplete: injected error", log.messages[1])
	require.Equal("native_node...", log.messages[2])
}

func TestHarness_Run_ReportsProgressOfWalks(t *testing.T) {
	require := require.New(t)
	harness, log, memory := newTestHarness(t, narrow)
	memory.EXPECT().Usage().Return(uint64(1<<20), nil)

	_, err := harness.Run(Config{Depth: 1, Walks: 35, ProgressInterval: 10})
	require.NoError(err)
	progress := 0
	for _, msg := range log.messages {
		if strings.Contains(msg, "walks/s") {
			progress++
		}
	}
	require.Equal(3, progress)
}

func TestHarness_Run_IsDeterministic(t *testing.T) {
	require := require.New(t)
	config := Config{Depth: 3, Walks: 500, Seed: 42}
	run := func() Report {
		harness, _, memory := newTestHarness(t, narrow)
		memory.EXPECT().Usage().Return(uint64(1<<20), nil)
		reports, err := harness.Run(config)
		require.NoError(err)
		require.Len(reports, 1)
		return reports[0]
	}
	a, b := run(), run()
	require.Equal(a.Nodes, b.Nodes)
	require.Equal(a.Sum, b.Sum)
	require.Equal(a.Fingerprint, b.Fingerprint)
}

func TestHarness_Run_NativeOverheadIsNonNegative(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	probe := platform.NewMockProbe(ctrl)
	probe.EXPECT().Describe().Return(narrow, nil)
	log := &recordingLog{}
	harness := NewHarness(log, probe, platform.NewProcessMemoryProbe())

	reports, err := harness.Run(Config{Depth: 5, Walks: 10})
	require.NoError(err)
	require.Len(reports, 1)
	require.NoError(reports[0].Err)
	require.GreaterOrEqual(reports[0].MemoryUsage, reports[0].DataSize)
	require.GreaterOrEqual(reports[0].Overhead, 0.0)
}

func TestHarness_Run_FootprintCoversTheNodes(t *testing.T) {
	require := require.New(t)
	harness, log, memory := newTestHarness(t, narrow)
	memory.EXPECT().Usage().Return(uint64(1<<20), nil)

	reports, err := harness.Run(Config{Depth: 3, Walks: 1, PrintFootprint: true})
	require.NoError(err)
	footprint := reports[0].Footprint
	require.NotNil(footprint)
	require.GreaterOrEqual(uint64(footprint.Total()), reports[0].DataSize)
	require.Contains(log.messages, "node arena memory:\n"+footprint.String())
}

func TestHarness_Run_InvalidConfigIsRejected(t *testing.T) {
	tests := map[string]Config{
		"too deep":          {Depth: MaxDepth + 1},
		"unknown variant":   {Variant: "fast"},
		"negative chunks":   {ChunkSize: -1},
		"negative progress": {ProgressInterval: -5},
	}
	for name, config := range tests {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			harness := NewHarness(&recordingLog{}, platform.NewMockProbe(ctrl), platform.NewMockMemoryProbe(ctrl))
			_, err := harness.Run(config)
			require.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestPlan_SelectsVariantsByPlatform(t *testing.T) {
	tests := []struct {
		requested Variant
		desc      platform.Descriptor
		want      []Variant
	}{
		{VariantAuto, narrow, []Variant{VariantNative}},
		{VariantBoth, narrow, []Variant{VariantNative}},
		{VariantAuto, wide, []Variant{VariantCompact}},
		{VariantAuto, wideOnly, []Variant{VariantNative}},
		{VariantNative, wide, []Variant{VariantNative}},
		{VariantCompact, wideOnly, []Variant{VariantCompact}},
		{VariantBoth, wide, []Variant{VariantNative, VariantCompact}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s/%v", test.requested, test.desc), func(t *testing.T) {
			got := []Variant{}
			for _, run := range plan(test.requested, test.desc) {
				got = append(got, run.variant)
			}
			require.Equal(t, test.want, got)
		})
	}
}

func TestPlan_CompactNodesComeFromLowMemory(t *testing.T) {
	runs := plan(VariantBoth, wide)
	require.Equal(t, arena.HeapSource, runs[0].source)
	require.Equal(t, arena.LowSource, runs[1].source)
}

func TestOverhead(t *testing.T) {
	require.Equal(t, 0.0, overhead(100, 100))
	require.Equal(t, 100.0, overhead(200, 100))
	require.Equal(t, -50.0, overhead(50, 100))
}

func TestHarness_Run_VariantWithoutNodes_HasNoOverhead(t *testing.T) {
	require := require.New(t)
	harness, log, memory := newTestHarness(t, narrow)
	memory.EXPECT().Usage().Return(uint64(1<<20), nil)

	// The root of this seed has no children at depth 0.
	reports, err := harness.Run(Config{Depth: 0, Walks: 10, Seed: 554607})
	require.NoError(err)
	require.Len(reports, 1)
	require.Equal(0, reports[0].Nodes)
	require.Equal(0.0, reports[0].Overhead)
	require.Equal("using 1.0 MB to store 0.0 MB of data (n/a overhead)", log.messages[3])
}

func TestHarness_Run_ReclaimsMemoryAfterEachVariant(t *testing.T) {
	if strconv.IntSize != 64 || !arena.LowSourceSupported() {
		t.Skip("low address window not available")
	}
	require := require.New(t)
	harness, _, memory := newTestHarness(t, wide)
	events := []string{}
	memory.EXPECT().Usage().DoAndReturn(func() (uint64, error) {
		events = append(events, "usage")
		return uint64(1 << 20), nil
	}).Times(2)
	harness.reclaim = func() {
		events = append(events, "reclaim")
	}

	_, err := harness.Run(Config{Depth: 2, Walks: 10, Variant: VariantBoth})
	require.NoError(err)
	require.Equal([]string{"usage", "reclaim", "usage", "reclaim"}, events)
}

func TestHarness_Run_SecondVariantDoesNotMeasureTheFirstTree(t *testing.T) {
	if testing.Short() {
		t.Skip("builds two trees of several MB")
	}
	if strconv.IntSize != 64 || !arena.LowSourceSupported() {
		t.Skip("low address window not available")
	}
	require := require.New(t)
	ctrl := gomock.NewController(t)
	probe := platform.NewMockProbe(ctrl)
	probe.EXPECT().Describe().Return(wide, nil)
	harness := NewHarness(&recordingLog{}, probe, platform.NewProcessMemoryProbe())

	reports, err := harness.Run(Config{Depth: 7, Walks: 1000, Variant: VariantBoth})
	require.NoError(err)
	require.Len(reports, 2)
	native, compact := reports[0], reports[1]
	require.NoError(native.Err)
	require.NoError(compact.Err)

	// The compact tree takes half the space of the native one. Its
	// measurement would exceed the native one if the native tree were
	// still resident.
	require.Less(compact.MemoryUsage, native.MemoryUsage)
}

func TestDescribeUsage(t *testing.T) {
	require.Equal(t, "using 2.0 MB to store 1.0 MB of data (100.00% overhead)", describeUsage(2<<20, 1<<20))
	require.Equal(t, "using 2.0 MB to store 0.0 MB of data (n/a overhead)", describeUsage(2<<20, 0))
}
