// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

//go:build linux && amd64

package arena

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const lowSupported = true

// mapLow obtains zeroed anonymous memory placed below 2 GiB by the kernel.
func mapLow(size uintptr) ([]byte, error) {
	region, err := unix.Mmap(
		-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_32BIT,
	)
	if err != nil {
		if errors.Is(err, unix.ENOMEM) {
			return nil, fmt.Errorf("%w: failed to map %d bytes of low memory: %v", ErrOutOfMemory, size, err)
		}
		return nil, fmt.Errorf("failed to map %d bytes of low memory: %w", size, err)
	}
	return region, nil
}

func unmapLow(region []byte) error {
	return unix.Munmap(region)
}
