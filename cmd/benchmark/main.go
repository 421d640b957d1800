// Command benchmark runs the HetSim fabric benchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv    Output results in CSV format (default: human-readable)
//	-ops    Default operation count per benchmark
//
// Example:
//
//	# Run all benchmarks with human-readable output
//	go run ./cmd/benchmark
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
//
// The register and mailbox numbers can be compared against the
// original character-device implementation to sanity check the
// simulation's overhead.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/hetsim/benchmarks"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	ops := flag.Int("ops", 0, "Default operation count per benchmark")
	flag.Parse()

	config := benchmarks.DefaultConfig()
	if *ops > 0 {
		config.Ops = *ops
	}
	config.Output = os.Stdout

	harness := benchmarks.NewHarness(config)
	harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())

	if !*csvOutput {
		fmt.Printf("HetSim Fabric Benchmark Harness\n")
		fmt.Printf("===============================\n")
		fmt.Printf("Default ops: %d\n\n", config.Ops)
	}

	results := harness.RunAll()

	if *csvOutput {
		harness.PrintCSV(results)
	} else {
		harness.PrintResults(results)
	}

	for _, r := range results {
		if r.Err != nil {
			os.Exit(1)
		}
	}
}
