// Package benchmarks provides the throughput and latency harness for
// the fabric: register word traffic, shared-zone bandwidth, and the
// full mailbox round-trip, comparable against the modeled hardware's
// expectations.
package benchmarks

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/hetsim/fabric"
	"github.com/sarchlab/hetsim/regs"
)

// Result holds the measurements of one benchmark run.
type Result struct {
	// Name identifies the benchmark.
	Name string `json:"name"`

	// Description explains what the benchmark measures.
	Description string `json:"description"`

	// Ops is the number of operations performed.
	Ops int `json:"ops"`

	// WallTime is the total elapsed time.
	WallTime time.Duration `json:"wall_time_ns"`

	// OpsPerSec is the measured rate.
	OpsPerSec float64 `json:"ops_per_sec"`

	// Err records a failed run; the other fields are then partial.
	Err error `json:"-"`
}

// Benchmark defines a single fabric benchmark.
type Benchmark struct {
	// Name identifies the benchmark.
	Name string

	// Description explains what the benchmark measures.
	Description string

	// Ops is the operation count for this benchmark. Zero means use
	// the harness default.
	Ops int

	// Run performs ops operations against the fabric.
	Run func(f *fabric.Fabric, ops int) error
}

// HarnessConfig configures a benchmark harness.
type HarnessConfig struct {
	// Ops is the default operation count per benchmark.
	Ops int

	// FabricConfig configures the fabric each benchmark runs
	// against. The IO core delay is the dominant term of the
	// round-trip numbers.
	FabricConfig *fabric.Config

	// Output receives the result tables.
	Output io.Writer
}

// DefaultConfig returns the default harness configuration.
func DefaultConfig() HarnessConfig {
	fcfg := fabric.DefaultConfig()
	fcfg.IOCoreDelay = fabric.Duration(100 * time.Microsecond)
	return HarnessConfig{
		Ops:          100000,
		FabricConfig: fcfg,
		Output:       os.Stdout,
	}
}

// Harness runs a set of benchmarks, each against a fresh fabric.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a harness with the given configuration.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Harness{config: config}
}

// AddBenchmark adds a single benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll runs every benchmark and returns the results.
func (h *Harness) RunAll() []Result {
	results := make([]Result, 0, len(h.benchmarks))
	for _, bench := range h.benchmarks {
		results = append(results, h.runBenchmark(bench))
	}
	return results
}

// runBenchmark runs one benchmark against its own fabric instance.
func (h *Harness) runBenchmark(bench Benchmark) Result {
	result := Result{
		Name:        bench.Name,
		Description: bench.Description,
	}

	ops := bench.Ops
	if ops == 0 {
		ops = h.config.Ops
	}
	result.Ops = ops

	f, err := fabric.New(h.config.FabricConfig)
	if err != nil {
		result.Err = err
		return result
	}
	defer f.Close()

	start := time.Now()
	if err := bench.Run(f, ops); err != nil {
		result.Err = err
		return result
	}
	result.WallTime = time.Since(start)

	if result.WallTime > 0 {
		result.OpsPerSec = float64(ops) / result.WallTime.Seconds()
	}
	return result
}

// PrintResults writes a human-readable result table.
func (h *Harness) PrintResults(results []Result) {
	w := h.config.Output
	fmt.Fprintf(w, "%-20s %10s %12s %14s\n", "Benchmark", "Ops", "Time", "Ops/sec")
	fmt.Fprintf(w, "%-20s %10s %12s %14s\n", "---------", "---", "----", "-------")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%-20s failed: %v\n", r.Name, r.Err)
			continue
		}
		fmt.Fprintf(w, "%-20s %10d %12s %14.0f\n",
			r.Name, r.Ops, r.WallTime.Round(time.Microsecond), r.OpsPerSec)
	}
}

// PrintCSV writes the results in CSV format.
func (h *Harness) PrintCSV(results []Result) {
	w := h.config.Output
	fmt.Fprintln(w, "name,ops,wall_time_ns,ops_per_sec")
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		fmt.Fprintf(w, "%s,%d,%d,%.0f\n", r.Name, r.Ops, r.WallTime.Nanoseconds(), r.OpsPerSec)
	}
}

// GetMicrobenchmarks returns the standard fabric benchmarks.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		{
			Name:        "reg-write-read",
			Description: "Single register word write followed by read-back",
			Run:         runRegisterTraffic,
		},
		{
			Name:        "shared-copy",
			Description: "Full shared-zone copy through a mapped view",
			Ops:         10000,
			Run:         runSharedCopy,
		},
		{
			Name:        "mailbox-roundtrip",
			Description: "PING post, IPI, poll until PONG, ack",
			Ops:         100,
			Run:         runMailboxRoundTrip,
		},
	}
}

// runRegisterTraffic hammers one mailbox data register, the pattern a
// controller's tightest polling loop produces.
func runRegisterTraffic(f *fabric.Fabric, ops int) error {
	block := f.Block()
	for i := 0; i < ops; i++ {
		block.Write32(regs.Mbox0Data, uint32(i))
		if got := block.Read32(regs.Mbox0Data); got != uint32(i) {
			return fmt.Errorf("register read-back mismatch: wrote %d, read %d", i, got)
		}
	}
	return nil
}

// runSharedCopy measures bulk bandwidth into the shared zone.
func runSharedCopy(f *fabric.Fabric, ops int) error {
	view, err := f.Block().View(f.Block().Layout().TotalSize())
	if err != nil {
		return err
	}
	shared := view[f.Block().Layout().SharedBase:]
	payload := make([]byte, len(shared))
	for i := range payload {
		payload[i] = byte(i)
	}

	for i := 0; i < ops; i++ {
		copy(shared, payload)
	}
	return nil
}

// runMailboxRoundTrip measures the full command/response cycle
// against the IO core.
func runMailboxRoundTrip(f *fabric.Fabric, ops int) error {
	mbox, err := f.Mailbox(fabric.IOCore)
	if err != nil {
		return err
	}

	for i := 0; i < ops; i++ {
		mbox.Post(fabric.CmdPing, uint32(i))
		if err := f.SendIPI(fabric.IOCore); err != nil {
			return err
		}

		deadline := time.Now().Add(time.Second)
		for {
			resp, ok := mbox.Poll()
			if ok {
				if resp != fabric.RespPong {
					return fmt.Errorf("op %d: unexpected response 0x%04X", i, resp)
				}
				mbox.Ack()
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("op %d: response timeout", i)
			}
			time.Sleep(10 * time.Microsecond)
		}
	}
	return nil
}
