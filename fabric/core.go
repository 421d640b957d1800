package fabric

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sarchlab/hetsim/regs"
)

// Mailbox command and response codes.
const (
	// CmdPing asks a core to answer with RespPong.
	CmdPing = 0x0001

	// CmdReadStatus asks the IO core for its status word.
	CmdReadStatus = 0x0010

	// RespPong is the IO core's answer to CmdPing.
	RespPong = 0x8001

	// RespStatusBase is ored with a time-varying low byte to answer
	// CmdReadStatus.
	RespStatusBase = 0x8010

	// RespUnknown is the sentinel answer to any unrecognized nonzero
	// command.
	RespUnknown = 0xFFFF

	// RespRTBase is the real-time core's fixed response pattern,
	// ored with a time-varying low byte regardless of the posted
	// command.
	RespRTBase = 0x5200
)

// Auxiliary core identifiers.
const (
	IOCore = 0
	RTCore = 1
)

// timeByte is the low-order time-varying byte mixed into status
// responses, standing in for a jiffies read on real firmware.
func timeByte() uint32 {
	return uint32(time.Now().UnixMilli()) & 0xFF
}

// CoreEmulator is the background task standing in for one auxiliary
// core's firmware. It sleeps until its IPI is triggered, interprets
// the pending mailbox command, publishes a response after a simulated
// processing delay, and clears its own interrupt bit.
//
// The emulator path models uncontrollable remote firmware: it never
// returns errors to the control path. Spurious or malformed wakeups
// are logged and answered with the protocol's sentinel responses.
type CoreEmulator struct {
	core  int
	mbox  *regs.Mailbox
	ipi   *IPIController
	delay time.Duration
	log   *slog.Logger

	// trigger has a single slot: a trigger arriving while the task
	// is mid-flight coalesces into one pending wakeup (edge
	// semantics, matching the modeled interrupt line).
	trigger chan struct{}

	// onComplete is invoked after each published response, with the
	// command that was consumed (zero for the RT core's fast path).
	onComplete func(core int, cmd uint32)
}

// newCoreEmulator builds the emulator for one auxiliary core and
// registers its wakeup with the IPI controller.
func newCoreEmulator(core int, mbox *regs.Mailbox, ipi *IPIController,
	delay time.Duration, log *slog.Logger,
	onComplete func(core int, cmd uint32)) *CoreEmulator {
	e := &CoreEmulator{
		core:       core,
		mbox:       mbox,
		ipi:        ipi,
		delay:      delay,
		log:        log.With("core", core),
		trigger:    make(chan struct{}, 1),
		onComplete: onComplete,
	}
	ipi.bind(core, e.wake)
	return e
}

// wake schedules one task run. Non-blocking: if a run is already
// pending the trigger is coalesced.
func (e *CoreEmulator) wake() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// run is the emulator task loop. It exits when ctx is canceled and
// never touches the register block afterward.
func (e *CoreEmulator) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.trigger:
			e.handle(ctx)
		}
	}
}

// handle services one trigger.
func (e *CoreEmulator) handle(ctx context.Context) {
	if e.core == RTCore {
		e.handleRT(ctx)
		return
	}
	e.handleIO(ctx)
}

// handleIO is the IO core's firmware: dispatch on the pending
// command, simulate the processing latency, answer.
func (e *CoreEmulator) handleIO(ctx context.Context) {
	cmd, data := e.mbox.Command()
	if cmd == 0 {
		// Spurious trigger: drop the interrupt, leave the mailbox
		// alone.
		e.log.Debug("spurious IPI, mailbox idle")
		e.ipi.Clear(e.core)
		return
	}

	e.log.Debug("command received",
		"cmd", fmt.Sprintf("0x%04X", cmd),
		"data", fmt.Sprintf("0x%08X", data))

	if !e.pause(ctx, e.delay) {
		return
	}

	var resp uint32
	switch cmd {
	case CmdPing:
		resp = RespPong
	case CmdReadStatus:
		resp = RespStatusBase | timeByte()
	default:
		resp = RespUnknown
	}

	e.mbox.Complete(resp)
	e.ipi.Clear(e.core)
	e.log.Debug("response sent", "resp", fmt.Sprintf("0x%04X", resp))

	if e.onComplete != nil {
		e.onComplete(e.core, cmd)
	}
}

// handleRT is the real-time core's firmware. It is deliberately
// simpler than the IO core: it never reads the command register and
// always answers with its fixed pattern.
func (e *CoreEmulator) handleRT(ctx context.Context) {
	if !e.pause(ctx, e.delay) {
		return
	}

	resp := uint32(RespRTBase) | timeByte()
	e.mbox.Publish(resp)
	e.ipi.Clear(e.core)
	e.log.Debug("response sent", "resp", fmt.Sprintf("0x%04X", resp))

	if e.onComplete != nil {
		e.onComplete(e.core, 0)
	}
}

// pause sleeps for the simulated processing delay without holding any
// lock, bailing out early on cancellation. It reports whether the
// task may keep going.
func (e *CoreEmulator) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
