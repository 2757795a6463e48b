// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package compact provides a 32-bit reference type that stands in for a
// native pointer on platforms with 64-bit addresses.
//
// A Ref stores the low 32 bits of the referent's absolute address and recovers
// the full address by sign extension. Although the idea is sometimes described
// as an "offset from the module base", no base is involved: the encoding is
// only lossless for addresses inside the window [-2^31, 2^31) around address
// zero. Encoding an address outside this window silently drops the upper bits
// and decoding then yields a wrong pointer. Callers are responsible for
// placing referents inside the window, e.g. by allocating them from a
// low-address arena; EncodeChecked and Fits are provided to detect
// violations.
//
// A Ref does not keep its referent alive. Referents must live in memory that
// is not managed by the Go garbage collector, or be kept reachable through
// other means, for the whole lifetime of the Ref.
package compact

import (
	"errors"
	"fmt"
	"math"
	"unsafe"
)

// ErrAddressTruncated is returned by EncodeChecked for addresses that do not
// survive a round trip through a Ref.
var ErrAddressTruncated = errors.New("address does not fit into a compact reference")

// Ref is a compact reference to a value of type T. The zero value refers to
// nothing.
type Ref[T any] struct {
	ptr int32
}

// Encode creates a reference to the given value. A nil pointer results in the
// zero reference. No check is performed whether the address fits.
func Encode[T any](p *T) Ref[T] {
	return EncodeAddress[T](uintptr(unsafe.Pointer(p)))
}

// EncodeAddress creates a reference from a raw address by keeping its low 32
// bits.
func EncodeAddress[T any](addr uintptr) Ref[T] {
	return Ref[T]{ptr: int32(uint32(addr))}
}

// EncodeChecked is like Encode but fails with ErrAddressTruncated if the
// referent's address would be altered by the encoding.
func EncodeChecked[T any](p *T) (Ref[T], error) {
	addr := uintptr(unsafe.Pointer(p))
	if !Fits(addr) {
		return Ref[T]{}, fmt.Errorf("%w: %#x", ErrAddressTruncated, addr)
	}
	return EncodeAddress[T](addr), nil
}

// Address returns the sign-extended address stored in this reference.
func (r Ref[T]) Address() uintptr {
	return uintptr(int64(r.ptr))
}

// Get decodes the reference into a native pointer.
func (r Ref[T]) Get() *T {
	return (*T)(unsafe.Pointer(r.Address()))
}

// IsNil is true if the reference refers to nothing.
func (r Ref[T]) IsNil() bool {
	return r.ptr == 0
}

func (r Ref[T]) String() string {
	if r.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("%#x", r.Address())
}

// Fits reports whether the given address is reproduced exactly when being
// truncated to 32 bits and sign-extended back to the native width.
func Fits(addr uintptr) bool {
	return uintptr(int64(int32(uint32(addr)))) == addr
}

// Window returns the lowest and the highest address that can be represented
// by a Ref. On platforms with 32-bit pointers every address fits, and the
// returned range is the full address space.
func Window() (lo, hi uintptr) {
	if unsafe.Sizeof(uintptr(0)) == 4 {
		return 0, ^uintptr(0)
	}
	low := int64(math.MinInt32)
	return uintptr(low), uintptr(math.MaxInt32)
}

// RangeFits reports whether every address in [start, start+size) survives
// the round trip. It is used to validate whole memory regions at once.
func RangeFits(start uintptr, size uintptr) bool {
	if size == 0 {
		return Fits(start)
	}
	end := start + size - 1
	if end < start {
		return false
	}
	// The window is contiguous when addresses are read as signed values.
	return Fits(start) && Fits(end) && (int64(start) <= int64(end))
}
