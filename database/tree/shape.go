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
	"encoding/binary"
	"hash"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Fingerprint computes a Keccak-256 hash of the shape and payloads of the
// tree below the given root. Trees built with the same seed and depth have
// the same fingerprint, independently of the node variant.
func Fingerprint[N any, P Node[N]](root *N) common.Hash {
	hasher := sha3.NewLegacyKeccak256()
	fingerprint[N, P](hasher, P(root))
	return common.BytesToHash(hasher.Sum(nil))
}

// fingerprint feeds the nodes in pre-order into the hasher. Each node
// contributes its payload and a bit mask of its occupied slots.
func fingerprint[N any, P Node[N]](hasher hash.Hash, node P) {
	var buffer [5]byte
	binary.BigEndian.PutUint32(buffer[:], uint32(node.Payload()))
	for i := 0; i < Fanout; i++ {
		if node.Child(i) != nil {
			buffer[4] |= 1 << i
		}
	}
	hasher.Write(buffer[:])
	for i := 0; i < Fanout; i++ {
		if child := node.Child(i); child != nil {
			fingerprint[N, P](hasher, P(child))
		}
	}
}

// Stats summarizes the shape of a tree.
type Stats struct {
	// Levels lists the number of nodes per level, starting with the root.
	Levels []int
	// Leaves is the number of nodes without children.
	Leaves int
}

// Nodes returns the number of nodes in the tree, including the root.
func (s Stats) Nodes() int {
	res := 0
	for _, count := range s.Levels {
		res += count
	}
	return res
}

// Height returns the number of edges on the longest path from the root.
func (s Stats) Height() int {
	return len(s.Levels) - 1
}

// CollectStats gathers statistics on the tree below the given root.
func CollectStats[N any, P Node[N]](root *N) Stats {
	res := Stats{}
	collectStats[N, P](&res, P(root), 0)
	return res
}

func collectStats[N any, P Node[N]](stats *Stats, node P, level int) {
	if len(stats.Levels) <= level {
		stats.Levels = append(stats.Levels, 0)
	}
	stats.Levels[level]++
	leaf := true
	for i := 0; i < Fanout; i++ {
		if child := node.Child(i); child != nil {
			leaf = false
			collectStats[N, P](stats, P(child), level+1)
		}
	}
	if leaf {
		stats.Leaves++
	}
}
