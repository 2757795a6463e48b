// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"fmt"
	"sort"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// MemoryFootprint describes the memory consumption of a data structure. It
// forms a tree where each node lists the memory directly used by the
// described object and the footprints of its named components.
type MemoryFootprint struct {
	value    uintptr
	note     string
	children map[string]*MemoryFootprint
}

// NewMemoryFootprint creates a footprint with the given amount of bytes
// directly owned by the described object.
func NewMemoryFootprint(value uintptr) *MemoryFootprint {
	return &MemoryFootprint{
		value:    value,
		children: map[string]*MemoryFootprint{},
	}
}

// AddChild registers the footprint of a named component.
func (mf *MemoryFootprint) AddChild(name string, child *MemoryFootprint) {
	if child != nil {
		mf.children[name] = child
	}
}

// GetChild returns the footprint of a named component, nil if not present.
func (mf *MemoryFootprint) GetChild(name string) *MemoryFootprint {
	return mf.children[name]
}

// SetNote attaches a free-form remark printed next to the value.
func (mf *MemoryFootprint) SetNote(note string) {
	mf.note = note
}

// Value returns the bytes directly owned by the described object.
func (mf *MemoryFootprint) Value() uintptr {
	return mf.value
}

// Total returns the bytes used by the described object and all components.
func (mf *MemoryFootprint) Total() uintptr {
	return mf.total(map[*MemoryFootprint]struct{}{})
}

func (mf *MemoryFootprint) total(visited map[*MemoryFootprint]struct{}) uintptr {
	if _, seen := visited[mf]; seen {
		return 0
	}
	visited[mf] = struct{}{}
	res := mf.value
	for _, child := range mf.children {
		res += child.total(visited)
	}
	return res
}

func (mf *MemoryFootprint) String() string {
	var b strings.Builder
	mf.toStringBuilder(&b, ".")
	return b.String()
}

func (mf *MemoryFootprint) toStringBuilder(b *strings.Builder, path string) {
	names := make([]string, 0, len(mf.children))
	for name := range mf.children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		mf.children[name].toStringBuilder(b, path+"/"+name)
	}
	size := ethcommon.StorageSize(mf.Total())
	if mf.note != "" {
		fmt.Fprintf(b, "%s %s %s\n", size, path, mf.note)
	} else {
		fmt.Fprintf(b, "%s %s\n", size, path)
	}
}
