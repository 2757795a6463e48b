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

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Sink is the destination of benchmark reports.
type Sink interface {
	// Printf writes a message annotated with time information.
	Printf(format string, args ...any)
	// Plainf writes a message as a line of its own, without annotations.
	Plainf(format string, args ...any)
}

// Log writes messages annotated with the local wall-clock time and the
// number of seconds passed since the previous message.
type Log struct {
	mutex sync.Mutex
	out   io.Writer
	now   func() time.Time
	last  int64 // < tick count of the previous message
}

// NewLog creates a log writing to the standard output.
func NewLog() *Log {
	return NewLogTo(os.Stdout, time.Now)
}

// NewLogTo creates a log writing to the given writer, using the given clock.
func NewLogTo(out io.Writer, now func() time.Time) *Log {
	return &Log{
		out:  out,
		now:  now,
		last: Ticks(now()),
	}
}

// Print writes a single message.
func (l *Log) Print(msg string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	now := l.now()
	ticks := Ticks(now)
	local := now.Local()
	fmt.Fprintf(l.out, "%02d:%02d:%02d.%03d  [%.2f]  %s\n",
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond()/int(time.Millisecond),
		Seconds(ticks-l.last),
		msg,
	)
	l.last = ticks
}

// Printf formats and writes a single message.
func (l *Log) Printf(format string, args ...any) {
	l.Print(fmt.Sprintf(format, args...))
}

// Plainf formats and writes a single line without time information. The
// elapsed time reported by the next message is not affected.
func (l *Log) Plainf(format string, args ...any) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	fmt.Fprintf(l.out, format+"\n", args...)
}

// Restart makes the elapsed time of the next message count from now.
func (l *Log) Restart() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.last = Ticks(l.now())
}

// NewProgressTracker creates a tracker reporting through this log, see
// NewProgressTracker.
func (l *Log) NewProgressTracker(msg string, interval int) *ProgressLogger {
	return newProgressTracker(l, l.now, msg, interval)
}

// NewProgressTracker creates a tracker reporting to the given sink every time
// another interval steps have been completed. The message format receives
// the number of completed steps and the rate in steps per second.
func NewProgressTracker(sink Sink, msg string, interval int) *ProgressLogger {
	return newProgressTracker(sink, time.Now, msg, interval)
}

func newProgressTracker(sink Sink, now func() time.Time, msg string, interval int) *ProgressLogger {
	return &ProgressLogger{
		sink:     sink,
		now:      now,
		msg:      msg,
		interval: interval,
		last:     now(),
	}
}

// ProgressLogger reports the progress of long-running loops.
type ProgressLogger struct {
	sink     Sink
	now      func() time.Time
	msg      string
	interval int
	counter  int
	last     time.Time
}

// Step records the completion of the given number of steps.
func (p *ProgressLogger) Step(n int) {
	if p.interval <= 0 {
		return
	}
	before := p.counter / p.interval
	p.counter += n
	if p.counter/p.interval == before {
		return
	}
	now := p.now()
	rate := float64(p.interval) / now.Sub(p.last).Seconds()
	p.last = now
	p.sink.Printf(p.msg, p.counter, rate)
}

// Count returns the number of completed steps.
func (p *ProgressLogger) Count() int {
	return p.counter
}
