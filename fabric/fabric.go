// Package fabric simulates the communication fabric of a
// heterogeneous SoC: a control core exchanging commands with two
// auxiliary small cores through a memory-mapped register block,
// interrupt-style signaling, and per-core mailbox channels, with
// background tasks standing in for the small cores' firmware.
package fabric

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarchlab/hetsim/regs"
)

// Counters are the fabric's diagnostic counters.
type Counters struct {
	// IPIsSent is the number of IPIs raised through SendIPI.
	IPIsSent uint64

	// MessagesProcessed is the number of mailbox responses the
	// emulated cores have published.
	MessagesProcessed uint64
}

// Fabric owns the register block and the two core emulator tasks for
// one simulated SoC instance. Lifecycle is explicit: New starts the
// emulators, Close joins them and releases the block.
type Fabric struct {
	cfg   *Config
	block *regs.Block
	ipi   *IPIController
	mutex *regs.HWMutex
	mbox  [regs.NumAuxCores]*regs.Mailbox
	cores [regs.NumAuxCores]*CoreEmulator
	log   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	ipisSent  atomic.Uint64
	processed atomic.Uint64

	onMessage func(core int, cmd uint32)
}

// Option is a functional option for configuring the Fabric.
type Option func(*Fabric)

// WithLogger sets the logger used by the fabric and its emulators.
func WithLogger(log *slog.Logger) Option {
	return func(f *Fabric) {
		f.log = log
	}
}

// WithMessageHook registers a callback invoked after an emulated core
// publishes a response. The callback runs on the emulator goroutine
// and must not block.
func WithMessageHook(hook func(core int, cmd uint32)) Option {
	return func(f *Fabric) {
		f.onMessage = hook
	}
}

// New allocates the register block described by cfg and starts one
// emulator task per auxiliary core. A nil cfg uses DefaultConfig.
func New(cfg *Config, opts ...Option) (*Fabric, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fabric config: %w", err)
	}

	f := &Fabric{
		cfg: cfg.Clone(),
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	block, err := regs.Allocate(cfg.RegSize, cfg.SharedSize)
	if err != nil {
		return nil, err
	}
	f.block = block
	f.ipi = NewIPIController(block)
	f.ipi.Enable(cfg.EnableMask)
	f.mutex = regs.NewHWMutex(block)

	delays := [regs.NumAuxCores]time.Duration{
		IOCore: time.Duration(cfg.IOCoreDelay),
		RTCore: time.Duration(cfg.RTCoreDelay),
	}
	for core := 0; core < regs.NumAuxCores; core++ {
		f.mbox[core] = regs.NewMailbox(block, core, f.log)
		f.cores[core] = newCoreEmulator(
			core, f.mbox[core], f.ipi, delays[core], f.log, f.completed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	for _, core := range f.cores {
		f.wg.Add(1)
		go core.run(ctx, &f.wg)
	}

	f.log.Debug("fabric up",
		"reg_size", cfg.RegSize, "shared_size", cfg.SharedSize)
	return f, nil
}

// completed is the emulators' completion hook.
func (f *Fabric) completed(core int, cmd uint32) {
	f.processed.Add(1)
	if f.onMessage != nil {
		f.onMessage(core, cmd)
	}
}

// Block returns the fabric's register block.
func (f *Fabric) Block() *regs.Block {
	return f.block
}

// IPI returns the fabric's interrupt controller.
func (f *Fabric) IPI() *IPIController {
	return f.ipi
}

// Mutex returns the fabric's hardware-mutex bit vector.
func (f *Fabric) Mutex() *regs.HWMutex {
	return f.mutex
}

// Mailbox returns the mailbox channel bound to the given auxiliary
// core.
func (f *Fabric) Mailbox(core int) (*regs.Mailbox, error) {
	if err := validCore(core); err != nil {
		return nil, err
	}
	return f.mbox[core], nil
}

// SendIPI raises the IPI for the given core and counts it. It fails
// with ErrInvalidCore for cores outside {0, 1}, leaving all registers
// unmodified.
func (f *Fabric) SendIPI(core int) error {
	if err := f.ipi.Trigger(core); err != nil {
		return err
	}
	f.ipisSent.Add(1)
	return nil
}

// Reset zeroes the register zone and the diagnostic counters. The
// shared-data zone and the block layout are untouched.
func (f *Fabric) Reset() {
	f.block.Reset()
	f.ipisSent.Store(0)
	f.processed.Store(0)
	f.log.Debug("fabric reset")
}

// Counters returns a snapshot of the diagnostic counters.
func (f *Fabric) Counters() Counters {
	return Counters{
		IPIsSent:          f.ipisSent.Load(),
		MessagesProcessed: f.processed.Load(),
	}
}

// Close cancels both emulator tasks, waits for them to finish, and
// only then frees the register block, so a task never touches freed
// memory. Close is idempotent.
func (f *Fabric) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.cancel()
	f.wg.Wait()
	return f.block.Free()
}
