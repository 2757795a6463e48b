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
	"fmt"
	"unsafe"

	"github.com/0xsoniclabs/refbench/backend/arena"
	"github.com/0xsoniclabs/refbench/common/compact"
	"golang.org/x/exp/rand"
)

// BuilderConfig lists the parameters of a Builder.
type BuilderConfig struct {
	// Seed initializes the pseudo-random source of payloads and branches.
	Seed uint64
	// CheckRefs makes the builder verify that every stored child reference
	// resolves to the allocated child.
	CheckRefs bool
}

// Builder grows randomly shaped trees. It owns the state shared by all nodes
// of a tree: the pseudo-random source, the allocation counter, and the arena
// providing the memory of the nodes. A builder is not safe for concurrent use.
type Builder[N any, P Node[N]] struct {
	random    *rand.Rand
	nodes     *arena.Arena[N]
	allocated int
	checkRefs bool
}

// NewBuilder creates a builder allocating nodes from the given arena.
func NewBuilder[N any, P Node[N]](nodes *arena.Arena[N], config BuilderConfig) *Builder[N, P] {
	return &Builder[N, P]{
		random:    rand.New(rand.NewSource(config.Seed)),
		nodes:     nodes,
		checkRefs: config.CheckRefs,
	}
}

// NewRoot creates a root node without children. The root is not allocated
// from the arena and not included in the allocation counter.
func (b *Builder[N, P]) NewRoot() *N {
	root := P(new(N))
	root.setPayload(b.draw())
	return (*N)(root)
}

// Build populates the child slots of the given node and recursively those of
// its children up to the given depth. Each slot is filled with a new node with
// a probability of 7/8. This happens for nodes at depth zero as well, so the
// resulting tree may have depth+1 levels below the given node. Any allocation
// failure aborts the build and is returned unmodified.
func (b *Builder[N, P]) Build(parent *N, depth int) error {
	node := P(parent)
	for i := 0; i < Fanout; i++ {
		if b.draw()%8 == 0 {
			continue // < leave some slots empty
		}
		child, err := b.newNode()
		if err != nil {
			return err
		}
		node.setChild(i, child)
		if b.checkRefs && node.Child(i) != child {
			return fmt.Errorf("%w: child at %#x stored in slot %d", compact.ErrAddressTruncated, uintptr(unsafe.Pointer(child)), i)
		}
		b.allocated++
	}
	if depth <= 0 {
		return nil
	}
	for i := 0; i < Fanout; i++ {
		if child := node.Child(i); child != nil {
			if err := b.Build(child, depth-1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder[N, P]) newNode() (*N, error) {
	res, err := b.nodes.New()
	if err != nil {
		return nil, err
	}
	P(res).setPayload(b.draw())
	return res, nil
}

// draw produces the next value of the pseudo-random source, uniformly
// distributed in [0, 2^31).
func (b *Builder[N, P]) draw() int32 {
	return b.random.Int31()
}

// Allocated returns the number of nodes allocated by Build so far.
func (b *Builder[N, P]) Allocated() int {
	return b.allocated
}

// NodeSize returns the size of a single node in bytes.
func (b *Builder[N, P]) NodeSize() uintptr {
	return unsafe.Sizeof(*new(N))
}

// DataSize returns the bytes occupied by the nodes allocated so far.
func (b *Builder[N, P]) DataSize() uint64 {
	return uint64(b.allocated) * uint64(b.NodeSize())
}

// MaxNodes returns the largest number of nodes Build may allocate below a
// root for the given depth.
func MaxNodes(depth int) uint64 {
	res := uint64(0)
	level := uint64(1)
	for i := 0; i <= depth; i++ {
		level *= Fanout
		res += level
	}
	return res
}

// ExpectedNodes returns the mean number of nodes Build allocates below a root
// for the given depth.
func ExpectedNodes(depth int) float64 {
	const branching = Fanout * 7.0 / 8.0
	res := 0.0
	level := 1.0
	for i := 0; i <= depth; i++ {
		level *= branching
		res += level
	}
	return res
}
