// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.


// Package diagnostics provides command line flags for profiling tools.
package diagnostics

import (
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"

	"github.com/urfave/cli/v2"
)

var (
	DiagnosticsFlag = cli.IntFlag{
		Name:  "diagnostic-port",
		Usage: "enable hosting of a realtime diagnostic server by providing a port",
		Value: 0,
	}
	CpuProfileFlag = cli.StringFlag{
		Name:  "cpuprofile",
		Usage: "sets the target file for storing CPU profiles to, disabled if empty",
		Value: "",
	}
	MemProfileFlag = cli.StringFlag{
		Name:  "memprofile",
		Usage: "sets the target file for a heap profile taken after the run, disabled if empty",
		Value: "",
	}
	TraceFlag = cli.StringFlag{
		Name:  "tracefile",
		Usage: "sets the target file for traces to, disabled if empty",
		Value: "",
	}
)

// Flags names the command line flags controlling the diagnostics.
type Flags struct {
	Diagnostics *cli.IntFlag
	CpuProfile  *cli.StringFlag
	MemProfile  *cli.StringFlag
	Trace       *cli.StringFlag
}

// DefaultFlags returns the package level flags.
func DefaultFlags() Flags {
	return Flags{
		Diagnostics: &DiagnosticsFlag,
		CpuProfile:  &CpuProfileFlag,
		MemProfile:  &MemProfileFlag,
		Trace:       &TraceFlag,
	}
}

// List returns the flags to be registered with a cli.App or cli.Command.
func (f Flags) List() []cli.Flag {
	return []cli.Flag{f.Diagnostics, f.CpuProfile, f.MemProfile, f.Trace}
}

// AddPerformanceDiagnosticsAction wraps an action function to add performance
// diagnostics. A diagnostic server is started if a port is given, CPU
// profiling and tracing cover the whole action, and a heap profile is written
// once the action completed.
func AddPerformanceDiagnosticsAction(action cli.ActionFunc, flags Flags) cli.ActionFunc {
	return func(context *cli.Context) error {

		// Start the diagnostic service if requested.
		startDiagnosticServer(context.Int(flags.Diagnostics.Names()[0]))

		// Start CPU profiling.
		if filename := strings.TrimSpace(context.String(flags.CpuProfile.Names()[0])); filename != "" {
			stop, err := startCpuProfiler(filename)
			if err != nil {
				return err
			}
			defer stop()
		}

		// Start recording a trace.
		if filename := strings.TrimSpace(context.String(flags.Trace.Names()[0])); filename != "" {
			stop, err := startTracer(filename)
			if err != nil {
				return err
			}
			defer stop()
		}

		if err := action(context); err != nil {
			return err
		}

		if filename := strings.TrimSpace(context.String(flags.MemProfile.Names()[0])); filename != "" {
			return writeHeapProfile(filename)
		}
		return nil
	}
}

func startDiagnosticServer(port int) {
	if port <= 0 || port >= (1<<16) {
		return
	}
	fmt.Printf("Starting diagnostic server at port http://localhost:%d\n", port)
	fmt.Printf("(see https://pkg.go.dev/net/http/pprof#hdr-Usage_examples for usage examples)\n")
	fmt.Printf("Block and mutex sampling rate is set to 100%% for diagnostics, which may impact overall performance\n")
	go func() {
		addr := fmt.Sprintf("localhost:%d", port)
		log.Println(http.ListenAndServe(addr, nil))
	}()
	runtime.SetBlockProfileRate(1)
	runtime.SetMutexProfileFraction(1)
}

func startCpuProfiler(filename string) (func(), error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not start CPU profile: %w", err)
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}, nil
}

func startTracer(filename string) (func(), error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	if err := trace.Start(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to start trace: %w", err)
	}
	return func() {
		trace.Stop()
		f.Close()
	}, nil
}

func writeHeapProfile(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create memory profile: %w", err)
	}
	defer f.Close()
	runtime.GC() // < get up-to-date statistics
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("could not write memory profile: %w", err)
	}
	return nil
}
