// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package tree

import (
	"github.com/0xsoniclabs/refbench/common/compact"
)

// Fanout is the number of child slots of every node.
const Fanout = 6

// ---- Nodes ----

// Node is the constraint satisfied by pointers to the supported node
// variants. The variants share the same shape, a fixed number of child slots
// and a payload, and only differ in the way child references are stored.
type Node[N any] interface {
	*N

	// Child returns the node referenced by the given slot, nil if empty.
	Child(i int) *N
	// Payload returns the value assigned to this node on construction.
	Payload() int32

	setChild(i int, child *N)
	setPayload(value int32)
}

// ---- Native nodes ----

// NativeNode is a node referencing its children through native pointers.
type NativeNode struct {
	children [Fanout]*NativeNode
	payload  int32
}

func (n *NativeNode) Child(i int) *NativeNode {
	return n.children[i]
}

func (n *NativeNode) Payload() int32 {
	return n.payload
}

func (n *NativeNode) setChild(i int, child *NativeNode) {
	n.children[i] = child
}

func (n *NativeNode) setPayload(value int32) {
	n.payload = value
}

// ---- Compact nodes ----

// CompactNode is a node referencing its children through compact references.
// Children must be located inside the compact address window, see package
// compact for details.
type CompactNode struct {
	children [Fanout]compact.Ref[CompactNode]
	payload  int32
}

func (n *CompactNode) Child(i int) *CompactNode {
	ref := n.children[i]
	if ref.IsNil() {
		return nil
	}
	return ref.Get()
}

func (n *CompactNode) Payload() int32 {
	return n.payload
}

func (n *CompactNode) setChild(i int, child *CompactNode) {
	n.children[i] = compact.Encode(child)
}

func (n *CompactNode) setPayload(value int32) {
	n.payload = value
}
