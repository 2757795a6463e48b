// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package logger

import "time"

// TicksPerSecond is the resolution of tick counts (100 ns units).
const TicksPerSecond = 10_000_000

// tickEpoch is the origin of tick counts, 1601-01-01 UTC.
var tickEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

// Ticks converts a point in time into the number of 100 ns intervals passed
// since 1601-01-01 UTC.
func Ticks(t time.Time) int64 {
	secs := t.Unix() - tickEpoch.Unix()
	return secs*TicksPerSecond + int64(t.Nanosecond())/100
}

// FromTicks is the inverse of Ticks, truncated to 100 ns precision.
func FromTicks(ticks int64) time.Time {
	secs := ticks / TicksPerSecond
	rest := ticks % TicksPerSecond
	return time.Unix(secs+tickEpoch.Unix(), rest*100).UTC()
}

// Seconds converts a tick difference into seconds.
func Seconds(ticks int64) float64 {
	return float64(ticks) / TicksPerSecond
}
