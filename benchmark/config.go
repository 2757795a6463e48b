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

	"github.com/0xsoniclabs/refbench/backend/arena"
)

// Default parameters of a benchmark run.
const (
	DefaultDepth            = 9
	DefaultWalks            = 1024 * 65536
	DefaultProgressInterval = 1 << 24
	// MaxDepth bounds the tree depth to keep node counts representable.
	MaxDepth = 20
)

// Variant names a reference representation, or a selection of them.
type Variant string

const (
	// VariantAuto picks the representation based on the platform.
	VariantAuto Variant = "auto"
	// VariantNative uses plain Go pointers between nodes.
	VariantNative Variant = "native"
	// VariantCompact uses 32-bit compact references between nodes.
	VariantCompact Variant = "compact"
	// VariantBoth runs the native and the compact variant one after another.
	VariantBoth Variant = "both"
)

// ErrInvalidConfig is reported for configurations that can not be run.
var ErrInvalidConfig = errors.New("invalid benchmark configuration")

// ParseVariant converts a variant name as used on the command line.
func ParseVariant(name string) (Variant, error) {
	switch v := Variant(name); v {
	case VariantAuto, VariantNative, VariantCompact, VariantBoth:
		return v, nil
	}
	return "", fmt.Errorf("%w: unknown variant %q", ErrInvalidConfig, name)
}

// Config lists the parameters of a benchmark run. Zero fields are replaced by
// defaults where noted.
type Config struct {
	// Depth is the maximum depth passed to the tree builder, DefaultDepth if
	// negative.
	Depth int
	// Walks is the number of walks performed on each tree. Walk i uses i as
	// its seed.
	Walks uint64
	// Seed initializes the random source used for building trees. Each
	// variant restarts from this seed, so all variants build the same shape.
	Seed uint64
	// Variant selects the representations to be measured, VariantAuto if empty.
	Variant Variant
	// ChunkSize is the number of nodes allocated at once by the arenas.
	ChunkSize int
	// MemoryLimit is the byte budget of each tree, see arena.Config.Limit.
	MemoryLimit uint64
	// CheckRefs enables the verification of each stored child reference.
	CheckRefs bool
	// ProgressInterval is the number of walks between progress messages,
	// zero disables progress reporting.
	ProgressInterval int
	// PrintFootprint adds a breakdown of the arena memory to the log.
	PrintFootprint bool
}

// DefaultConfig returns the configuration of a full-sized benchmark run.
func DefaultConfig() Config {
	return Config{
		Depth:            DefaultDepth,
		Walks:            DefaultWalks,
		Variant:          VariantAuto,
		ChunkSize:        arena.DefaultChunkSize,
		ProgressInterval: DefaultProgressInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.Depth < 0 {
		c.Depth = DefaultDepth
	}
	if c.Variant == "" {
		c.Variant = VariantAuto
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = arena.DefaultChunkSize
	}
	return c
}

func (c Config) check() error {
	if c.Depth > MaxDepth {
		return fmt.Errorf("%w: depth %d exceeds maximum of %d", ErrInvalidConfig, c.Depth, MaxDepth)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("%w: negative chunk size %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("%w: negative progress interval %d", ErrInvalidConfig, c.ProgressInterval)
	}
	_, err := ParseVariant(string(c.Variant))
	return err
}
