package regs

import (
	"fmt"
	"log/slog"
)

// mailbox register offsets per auxiliary core, in cmd/data/status/resp
// order.
var mboxOffsets = [NumAuxCores][4]int{
	{Mbox0Cmd, Mbox0Data, Mbox0Status, Mbox0Resp},
	{Mbox1Cmd, Mbox1Data, Mbox1Status, Mbox1Resp},
}

// Mailbox is the one-command/one-response register quartet binding
// the control core to one auxiliary core.
//
// Lifecycle: the controller writes data then cmd (in that order — cmd
// is the flag the emulator acts on, so writing it first risks the
// emulator reading a stale payload); the emulator consumes both,
// clears cmd, and publishes resp before flipping status nonzero; the
// controller reads resp and calls Ack to rearm the channel.
//
// At most one command may be outstanding. Posting again before the
// previous response is acknowledged is a protocol violation: it is
// logged and the newer command overwrites the pending one. There is
// no queueing.
type Mailbox struct {
	block *Block
	core  int
	log   *slog.Logger

	cmdOff    int
	dataOff   int
	statusOff int
	respOff   int
}

// NewMailbox returns the mailbox channel for the given auxiliary
// core. A nil logger falls back to slog.Default.
func NewMailbox(block *Block, core int, log *slog.Logger) *Mailbox {
	if core < 0 || core >= NumAuxCores {
		panic(fmt.Sprintf("regs: no mailbox for core %d", core))
	}
	if log == nil {
		log = slog.Default()
	}
	offs := mboxOffsets[core]
	return &Mailbox{
		block:     block,
		core:      core,
		log:       log,
		cmdOff:    offs[0],
		dataOff:   offs[1],
		statusOff: offs[2],
		respOff:   offs[3],
	}
}

// Core returns the auxiliary core this mailbox is bound to.
func (m *Mailbox) Core() int {
	return m.core
}

// Post writes a command into the channel, payload first. Posting over
// an unacknowledged response is logged and overwrites it (last write
// wins).
func (m *Mailbox) Post(cmd, data uint32) {
	if m.block.Read32(m.statusOff) != 0 {
		m.log.Warn("mailbox posted before previous response acknowledged",
			"core", m.core, "cmd", fmt.Sprintf("0x%04X", cmd))
	}
	m.block.Write32(m.dataOff, data)
	m.block.Write32(m.cmdOff, cmd)
}

// Command returns the pending command and payload. A zero command
// means the channel is idle.
func (m *Mailbox) Command() (cmd, data uint32) {
	return m.block.Read32(m.cmdOff), m.block.Read32(m.dataOff)
}

// Complete consumes the pending command and publishes a response:
// resp is written, cmd is cleared to zero, and only then does status
// flip nonzero. A poller that observes nonzero status therefore sees
// the final resp value.
func (m *Mailbox) Complete(resp uint32) {
	m.block.Write32(m.respOff, resp)
	m.block.Write32(m.cmdOff, 0)
	m.block.Write32(m.statusOff, 1)
}

// Publish writes a response without consuming any command. This is
// the fast path of the real-time core, which answers without ever
// reading the command register.
func (m *Mailbox) Publish(resp uint32) {
	m.block.Write32(m.respOff, resp)
	m.block.Write32(m.statusOff, 1)
}

// Poll is the non-blocking response read: it returns the response
// only if one is ready and unread. The channel provides no wait
// primitive; callers poll with their own backoff and timeout policy.
func (m *Mailbox) Poll() (resp uint32, ok bool) {
	if m.block.Read32(m.statusOff) == 0 {
		return 0, false
	}
	return m.block.Read32(m.respOff), true
}

// Ack clears the response status, rearming the channel for the next
// round. Acknowledging an idle channel is a no-op.
func (m *Mailbox) Ack() {
	m.block.Write32(m.statusOff, 0)
}
