// Package main provides the entry point for ox86sim, a cycle-driven
// behavioral simulator of an out-of-order superscalar x86-64 pipeline.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/ox86sim/backend/latency"
	"github.com/sarchlab/ox86sim/core"
	"github.com/sarchlab/ox86sim/emu"
	"github.com/sarchlab/ox86sim/loader"
	"github.com/sarchlab/ox86sim/trace"
)

var (
	cycles     = flag.Uint64("cycles", core.DefaultCycleBound, "Cycle bound (ignored if the program halts on UD2 first)")
	configPath = flag.String("config", "", "Path to a latency configuration JSON file")
	verbose    = flag.Bool("v", false, "Enable per-cycle trace output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: ox86sim [options] <flat-binary>\n\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)

	image, err := loader.LoadFlat(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	mem := emu.NewMemory()
	if err := mem.LoadFlat(image); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading image into memory: %v\n", err)
		os.Exit(1)
	}

	var cfg *latency.Config
	if *configPath != "" {
		cfg, err = latency.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading latency config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = latency.Default()
	}

	opts := []core.Option{core.WithLatencyConfig(cfg)}
	if *verbose {
		opts = append(opts, core.WithLogger(trace.New(os.Stdout, true)))
	}
	sim := core.New(mem, opts...)

	if err := sim.RunCycles(*cycles); err != nil {
		fmt.Fprintf(os.Stderr, "Simulation error: %v\n", err)
		os.Exit(1)
	}

	stats := sim.Stats()
	fmt.Printf("\nProgram: %s\n", programPath)
	fmt.Printf("Halted: %v\n", sim.Halted())
	fmt.Printf("Cycles: %d\n", stats.Cycles)
	fmt.Printf("Retired: %d\n", stats.Retired)
	fmt.Printf("Dispatched: %d\n", stats.Dispatch.Dispatched)
	fmt.Printf("Issued: %d\n", stats.Issue.Issued)
	fmt.Printf("Executed: %d\n", stats.Exec.Completed)
	fmt.Printf("Mispredicts: %d\n", stats.Retire.Mispredicts)
	fmt.Printf("Stores committed: %d\n", stats.Retire.StoresCommitted)
	fmt.Printf("Cache hits/misses: %d/%d\n", stats.Cache.Hits, stats.Cache.Misses)
}
