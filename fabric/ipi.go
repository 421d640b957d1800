package fabric

import (
	"errors"
	"fmt"

	"github.com/sarchlab/hetsim/regs"
)

// ErrInvalidCore indicates a core identifier outside the auxiliary
// core range {0, 1}.
var ErrInvalidCore = errors.New("invalid core id")

// validCore validates an auxiliary core identifier.
func validCore(core int) error {
	if core < 0 || core >= regs.NumAuxCores {
		return fmt.Errorf("%w: %d", ErrInvalidCore, core)
	}
	return nil
}

// IPIController drives the simulated inter-processor interrupt
// registers: one status bit and one enable bit per auxiliary core,
// plus write-to-set trigger and write-to-clear registers.
//
// Triggering is edge semantics: a trigger while the target core's
// emulator is still processing is coalesced into at most one pending
// wakeup, never queued.
type IPIController struct {
	block *regs.Block
	kick  [regs.NumAuxCores]func()
}

// NewIPIController returns a controller over the block's IPI
// registers. Emulator wakeups are attached later via bind, once the
// emulators exist.
func NewIPIController(block *regs.Block) *IPIController {
	return &IPIController{block: block}
}

// bind attaches the wakeup hook for one core's emulator.
func (c *IPIController) bind(core int, kick func()) {
	c.kick[core] = kick
}

// Enable sets the IPI enable mask (one bit per auxiliary core).
func (c *IPIController) Enable(mask uint32) {
	c.block.Write32(regs.IPIEnable, mask)
}

// Enabled returns the current IPI enable mask.
func (c *IPIController) Enabled() uint32 {
	return c.block.Read32(regs.IPIEnable)
}

// Trigger raises the IPI for the given core: the trigger register
// records the interrupt, the core's status bit goes pending, and the
// bound emulator task is scheduled.
func (c *IPIController) Trigger(core int) error {
	if err := validCore(core); err != nil {
		return err
	}

	bit := uint32(1) << core
	c.block.Write32(regs.IPITrigger, bit)
	c.block.SetBits32(regs.IPIStatus, bit)

	if kick := c.kick[core]; kick != nil {
		kick()
	}
	return nil
}

// Clear drops the pending bit for the given core. Emulators call
// this on completion; it is also available externally for a forced
// clear.
func (c *IPIController) Clear(core int) error {
	if err := validCore(core); err != nil {
		return err
	}

	bit := uint32(1) << core
	c.block.SetBits32(regs.IPIClear, bit)
	c.block.ClearBits32(regs.IPIStatus, bit)
	return nil
}

// Pending reports whether the given core's IPI status bit is set.
func (c *IPIController) Pending(core int) bool {
	if validCore(core) != nil {
		return false
	}
	return c.block.Read32(regs.IPIStatus)&(uint32(1)<<core) != 0
}
