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

import (
	"errors"
	"fmt"
	"math"
	"unsafe"

	"github.com/0xsoniclabs/refbench/common"
	"github.com/0xsoniclabs/refbench/common/compact"
	"github.com/pbnjay/memory"
)

var (
	// ErrOutOfMemory is reported if an allocation exceeds the arena's memory
	// budget or the operating system refuses to provide more memory.
	ErrOutOfMemory = errors.New("out of memory")
	// ErrAddressWindow is reported if memory outside the compact reference
	// window was obtained while the arena was required to stay inside.
	ErrAddressWindow = errors.New("memory outside of compact address window")
	// ErrReleased is reported when using an arena after its release.
	ErrReleased = errors.New("arena already released")
	// ErrUnsupported is reported if a memory source is not available on the
	// current platform.
	ErrUnsupported = errors.New("memory source not supported on this platform")
)

// DefaultChunkSize is the number of values allocated at once if not
// configured otherwise.
const DefaultChunkSize = 1 << 16

// Config lists the parameters of an arena.
type Config struct {
	// Source selects where chunks are obtained from.
	Source Source
	// ChunkSize is the number of values per chunk, DefaultChunkSize if zero.
	ChunkSize int
	// Limit is the maximum number of bytes reserved by the arena. If zero, 3/4
	// of the physical memory of the host is used.
	Limit uint64
	// RequireCompactWindow makes the arena reject memory that can not be
	// addressed by compact references.
	RequireCompactWindow bool
}

// DefaultLimit is the memory budget used for arenas without explicit limit.
func DefaultLimit() uint64 {
	total := memory.TotalMemory()
	if total == 0 {
		return math.MaxUint64
	}
	return total / 4 * 3
}

// Arena is a bump allocator for values of type T. Values are never freed
// individually; all memory is returned at once by Release. An arena is not
// safe for concurrent use.
type Arena[T any] struct {
	config   Config
	chunks   [][]T
	mapped   [][]byte // < regions obtained from the source, released on Release
	next     int      // < index of the next free slot in the last chunk
	count    int
	reserved uint64
	released bool
}

// New creates an empty arena. Memory is only reserved on the first allocation.
func New[T any](config Config) (*Arena[T], error) {
	if config.ChunkSize < 0 {
		return nil, fmt.Errorf("invalid chunk size %d", config.ChunkSize)
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.Limit == 0 {
		config.Limit = DefaultLimit()
	}
	if config.Source == LowSource && !LowSourceSupported() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, config.Source)
	}
	if unsafe.Sizeof(*new(T)) == 0 {
		return nil, fmt.Errorf("arena values must not be zero sized")
	}
	return &Arena[T]{config: config}, nil
}

// New allocates a zero-initialized value in the arena.
func (a *Arena[T]) New() (*T, error) {
	if a.released {
		return nil, ErrReleased
	}
	if len(a.chunks) == 0 || a.next >= len(a.chunks[len(a.chunks)-1]) {
		if err := a.grow(); err != nil {
			return nil, err
		}
	}
	res := &a.chunks[len(a.chunks)-1][a.next]
	a.next++
	a.count++
	return res, nil
}

func (a *Arena[T]) grow() error {
	valueSize := uint64(a.ValueSize())
	if a.reserved >= a.config.Limit {
		return fmt.Errorf("%w: arena limit of %d bytes reached", ErrOutOfMemory, a.config.Limit)
	}
	num := uint64(a.config.ChunkSize)
	if remaining := (a.config.Limit - a.reserved) / valueSize; remaining < num {
		num = remaining
	}
	if num == 0 {
		return fmt.Errorf("%w: arena limit of %d bytes reached", ErrOutOfMemory, a.config.Limit)
	}

	var chunk []T
	switch a.config.Source {
	case HeapSource:
		chunk = make([]T, num)
	case LowSource:
		region, err := mapLow(uintptr(num * valueSize))
		if err != nil {
			return err
		}
		a.mapped = append(a.mapped, region)
		chunk = unsafe.Slice((*T)(unsafe.Pointer(&region[0])), num)
	default:
		return fmt.Errorf("unknown memory source %v", a.config.Source)
	}

	if a.config.RequireCompactWindow {
		start := uintptr(unsafe.Pointer(&chunk[0]))
		if !compact.RangeFits(start, uintptr(num*valueSize)) {
			return fmt.Errorf("%w: chunk at %#x of %d bytes from %v source", ErrAddressWindow, start, num*valueSize, a.config.Source)
		}
	}

	a.chunks = append(a.chunks, chunk)
	a.next = 0
	a.reserved += num * valueSize
	return nil
}

// Count returns the number of values allocated so far.
func (a *Arena[T]) Count() int {
	return a.count
}

// ValueSize returns the size of a single value in bytes.
func (a *Arena[T]) ValueSize() uintptr {
	return unsafe.Sizeof(*new(T))
}

// DataSize returns the number of bytes occupied by allocated values.
func (a *Arena[T]) DataSize() uint64 {
	return uint64(a.count) * uint64(a.ValueSize())
}

// ReservedBytes returns the number of bytes obtained from the source.
func (a *Arena[T]) ReservedBytes() uint64 {
	return a.reserved
}

// Limit returns the memory budget of this arena in bytes.
func (a *Arena[T]) Limit() uint64 {
	return a.config.Limit
}

// Source returns the source chunks are obtained from.
func (a *Arena[T]) Source() Source {
	return a.config.Source
}

// Release frees all values of this arena. Pointers to values obtained from
// the arena must not be used afterwards. Releasing twice is a no-op.
func (a *Arena[T]) Release() error {
	if a.released {
		return nil
	}
	a.released = true
	a.chunks = nil
	var errs []error
	for _, region := range a.mapped {
		errs = append(errs, unmapLow(region))
	}
	a.mapped = nil
	a.reserved = 0
	a.count = 0
	a.next = 0
	return errors.Join(errs...)
}

func (a *Arena[T]) GetMemoryFootprint() *common.MemoryFootprint {
	mf := common.NewMemoryFootprint(unsafe.Sizeof(*a))
	values := common.NewMemoryFootprint(uintptr(a.DataSize()))
	values.SetNote(fmt.Sprintf("(%d values)", a.count))
	mf.AddChild("values", values)
	unused := common.NewMemoryFootprint(uintptr(a.reserved - a.DataSize()))
	unused.SetNote(fmt.Sprintf("(%d chunks, %v)", len(a.chunks), a.config.Source))
	mf.AddChild("unused", unused)
	return mf
}
