// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package platform describes the environment a benchmark is running in. It
// classifies the host and reports the memory usage of the current process.
package platform

//go:generate mockgen -source platform.go -destination platform_mocks.go -package platform

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/process"
)

// Labels reported by a Probe describing how the process relates to the host.
const (
	// LabelNative is used if the process runs in the host's native mode.
	LabelNative = "native"
	// LabelUnexpected is used if the host is running a mode that could not be
	// classified.
	LabelUnexpected = "unexpected"
	// LabelError is used if the host could not be queried.
	LabelError = "error"
)

// Descriptor classifies the platform the benchmark is running on.
type Descriptor struct {
	// Arch is the architecture the binary was compiled for, using the naming
	// of the host label (e.g. x86-64, arm-64).
	Arch string
	// Label is LabelNative if the binary matches the host, the architecture
	// of the host if the binary runs in a compatibility mode (e.g. a 32-bit
	// binary on a 64-bit kernel), LabelUnexpected or LabelError otherwise.
	Label string
	// PointerBits is the width of native pointers of the process.
	PointerBits int
	// LowWindow is true if memory addressable by compact references can be
	// requested from the operating system.
	LowWindow bool
}

// WideAddresses is true if native pointers are wider than 32 bits.
func (d Descriptor) WideAddresses() bool {
	return d.PointerBits > 32
}

func (d Descriptor) String() string {
	window := "enabled"
	if !d.LowWindow {
		window = "DISABLED"
	}
	return fmt.Sprintf("%s on %s, low address window %s", d.Arch, d.Label, window)
}

// Probe provides a description of the current platform.
type Probe interface {
	Describe() (Descriptor, error)
}

// MemoryProbe reports the memory used by the current process.
type MemoryProbe interface {
	// Usage returns the resident memory of the process in bytes. This is the
	// physical memory currently mapped to the process, not its committed
	// memory: reserved but untouched pages are excluded, and pages swapped
	// out are not counted.
	Usage() (uint64, error)
}

// HostProbe implements Probe for the machine the process is running on.
type HostProbe struct {
	// LowWindow is forwarded into the produced descriptor.
	LowWindow bool
	// kernelArch is used to query the host's architecture, host.KernelArch if nil.
	kernelArch func() (string, error)
}

// NewHostProbe creates a probe for the current host.
func NewHostProbe(lowWindow bool) *HostProbe {
	return &HostProbe{LowWindow: lowWindow}
}

func (p *HostProbe) Describe() (Descriptor, error) {
	res := Descriptor{
		Arch:        archName(runtime.GOARCH),
		PointerBits: strconv.IntSize,
		LowWindow:   p.LowWindow,
	}
	query := p.kernelArch
	if query == nil {
		query = host.KernelArch
	}
	kernel, err := query()
	if err != nil {
		res.Label = LabelError
		return res, fmt.Errorf("failed to query host architecture: %w", err)
	}
	res.Label = classify(res.Arch, archName(kernel))
	return res, nil
}

// classify compares the architecture of the binary with the one of the host.
func classify(binary, host string) string {
	if binary == host {
		return LabelNative
	}
	switch {
	case binary == "x86-32" && host == "x86-64",
		binary == "arm-32" && host == "arm-64":
		return host
	case host == "itanium":
		return host
	}
	return LabelUnexpected
}

// archName maps Go and kernel architecture names to a common naming.
func archName(arch string) string {
	switch arch {
	case "amd64", "x86_64":
		return "x86-64"
	case "386", "i386", "i686":
		return "x86-32"
	case "arm64", "aarch64":
		return "arm-64"
	case "arm", "armv7l", "armv6l":
		return "arm-32"
	case "ia64":
		return "itanium"
	}
	return arch
}

// ProcessMemoryProbe implements MemoryProbe for the current process.
type ProcessMemoryProbe struct {
	pid int32
}

// NewProcessMemoryProbe creates a probe reporting on the current process.
func NewProcessMemoryProbe() *ProcessMemoryProbe {
	return &ProcessMemoryProbe{pid: int32(os.Getpid())}
}

// Usage returns the resident set size (RSS) of the process.
func (p *ProcessMemoryProbe) Usage() (uint64, error) {
	proc, err := process.NewProcess(p.pid)
	if err != nil {
		return 0, fmt.Errorf("failed to access process %d: %w", p.pid, err)
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("failed to query memory usage of process %d: %w", p.pid, err)
	}
	return info.RSS, nil
}
