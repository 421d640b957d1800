// Package main provides the HetSim command line interface.
// It walks the whole fabric once: layout query, register dump, IPI
// delivery, a mailbox PING round-trip with polling, the hardware
// mutex, and the shared-memory zone.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sarchlab/hetsim/control"
	"github.com/sarchlab/hetsim/fabric"
	"github.com/sarchlab/hetsim/regs"
)

var (
	configPath = flag.String("config", "", "Path to fabric configuration JSON file")
	timeout    = flag.Duration("timeout", time.Second, "Mailbox response timeout")
	verbose    = flag.Bool("v", false, "Verbose output (debug logging)")
)

func main() {
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	cfg := fabric.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = fabric.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading fabric config: %v\n", err)
			os.Exit(1)
		}
	}

	surface, err := control.New(cfg, fabric.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating fabric: %v\n", err)
		os.Exit(1)
	}
	defer surface.Close()

	if err := run(surface); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(surface *control.Surface) error {
	info := surface.GetInfo()
	banner("System info")
	fmt.Printf("  Cores:         %d\n", info.NumCores)
	fmt.Printf("  Register zone: %d bytes @ 0x%X\n", info.RegSize, info.RegBase)
	fmt.Printf("  Shared memory: %d KiB @ 0x%X\n", info.SharedSize/1024, info.SharedBase)

	block := surface.Fabric().Block()
	view, err := block.View(info.TotalSize())
	if err != nil {
		return err
	}
	fmt.Printf("  Mapped view:   %d bytes\n", len(view))

	banner("Initial register state")
	dumpRegisters(block)

	banner("IPI to the IO core")
	if err := surface.SendIPI(fabric.IOCore); err != nil {
		return err
	}
	fmt.Println("  IPI sent")

	banner("Mailbox PING to the IO core")
	mbox, err := surface.Fabric().Mailbox(fabric.IOCore)
	if err != nil {
		return err
	}
	mbox.Post(fabric.CmdPing, 0x12345678)
	if err := surface.SendIPI(fabric.IOCore); err != nil {
		return err
	}

	resp, err := waitResponse(mbox, *timeout)
	if err != nil {
		return err
	}
	fmt.Printf("  Response: 0x%04X", resp)
	if resp == fabric.RespPong {
		fmt.Print(" (PONG)")
	}
	fmt.Println()
	mbox.Ack()

	banner("Real-time core")
	if err := surface.Ping(fabric.RTCore); err != nil {
		return err
	}
	rtMbox, err := surface.Fabric().Mailbox(fabric.RTCore)
	if err != nil {
		return err
	}
	resp, err = waitResponse(rtMbox, *timeout)
	if err != nil {
		return err
	}
	fmt.Printf("  Response: 0x%04X\n", resp)
	rtMbox.Ack()

	banner("Hardware mutex")
	mutex := surface.Fabric().Mutex()
	fmt.Printf("  Status: 0x%04X\n", mutex.Status())
	fmt.Printf("  Request lock 0: acquired=%v, status=0x%04X\n",
		mutex.Request(0), mutex.Status())
	mutex.Release(0)
	fmt.Printf("  Release lock 0: status=0x%04X\n", mutex.Status())

	banner("Shared memory")
	shared := view[info.SharedBase:]
	fmt.Printf("  Marker: %.42s\n", shared)
	copy(shared, "hello from the control core\n")
	fmt.Printf("  After write: %.28s\n", block.SharedView())

	banner("Final state")
	dumpRegisters(block)
	fmt.Println()
	fmt.Print(surface.Status())
	return nil
}

// waitResponse busy-polls the mailbox with a short sleep until a
// response arrives or the timeout budget runs out.
func waitResponse(mbox *regs.Mailbox, timeout time.Duration) (uint32, error) {
	deadline := time.Now().Add(timeout)
	for {
		if resp, ok := mbox.Poll(); ok {
			return resp, nil
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("response timeout after %v", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

func banner(title string) {
	fmt.Printf("\n=== %s ===\n", title)
}

func dumpRegisters(block *regs.Block) {
	fmt.Printf("  IPI_STATUS:  0x%08X\n", block.Read32(regs.IPIStatus))
	fmt.Printf("  IPI_ENABLE:  0x%08X\n", block.Read32(regs.IPIEnable))
	fmt.Printf("  MBOX0_CMD:   0x%08X\n", block.Read32(regs.Mbox0Cmd))
	fmt.Printf("  MBOX0_DATA:  0x%08X\n", block.Read32(regs.Mbox0Data))
	fmt.Printf("  MBOX0_RESP:  0x%08X\n", block.Read32(regs.Mbox0Resp))
	fmt.Printf("  MBOX1_RESP:  0x%08X\n", block.Read32(regs.Mbox1Resp))
	fmt.Printf("  MUTEX_STAT:  0x%08X\n", block.Read32(regs.MutexStatus))
}
