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

// seedShift is the number of seed bits consumed per level, roughly log2 of
// the fanout.
const seedShift = 3

// Walk descends from the given root along a path selected by the seed and the
// payloads of the visited nodes, and returns the first node whose selected
// slot is empty. The result is deterministic for a given tree and seed. The
// number of steps is bounded by the depth of the tree.
func Walk[N any, P Node[N]](root *N, seed uint64) *N {
	node := P(root)
	for {
		next := node.Child(slot(node.Payload(), seed))
		if next == nil {
			return (*N)(node)
		}
		node = P(next)
		seed >>= seedShift
	}
}

// WalkPath is like Walk but returns all nodes visited on the way, starting
// with the root and ending with the node Walk would return.
func WalkPath[N any, P Node[N]](root *N, seed uint64) []*N {
	res := []*N{root}
	node := P(root)
	for {
		next := node.Child(slot(node.Payload(), seed))
		if next == nil {
			return res
		}
		res = append(res, next)
		node = P(next)
		seed >>= seedShift
	}
}

func slot(payload int32, seed uint64) int {
	return int((uint64(uint32(payload)) ^ seed) % Fanout)
}
