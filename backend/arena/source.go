// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package arena

import "fmt"

// Source identifies where an arena obtains its memory from.
type Source int

const (
	// HeapSource allocates chunks on the Go heap. Addresses are arbitrary.
	HeapSource Source = iota
	// LowSource maps chunks into the lowest 2 GiB of the address space, such
	// that every value can be referenced by a compact reference.
	LowSource
)

func (s Source) String() string {
	switch s {
	case HeapSource:
		return "heap"
	case LowSource:
		return "low"
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

// ParseSource converts the name of a source into a Source.
func ParseSource(name string) (Source, error) {
	switch name {
	case "heap":
		return HeapSource, nil
	case "low":
		return LowSource, nil
	}
	return 0, fmt.Errorf("unknown memory source %q", name)
}

// LowSourceSupported reports whether LowSource can be used on this platform.
func LowSourceSupported() bool {
	return lowSupported
}
