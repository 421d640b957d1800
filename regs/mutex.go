package regs

// HWMutex is the hardware-mutex emulation: a bit vector of lock
// availability driven by write-only request and release registers.
//
// The model is advisory only. Request performs a plain load of the
// availability word followed by a store, with no compare-and-swap
// arbitration, so two concurrent requesters can both observe a bit as
// available before either request registers. That matches the modeled
// hardware and is a documented limitation, not something callers may
// rely on for mutual exclusion.
type HWMutex struct {
	block *Block
}

// NewHWMutex returns the mutex bit vector backed by the block's
// MUTEX_REQUEST/MUTEX_STATUS/MUTEX_RELEASE registers.
func NewHWMutex(block *Block) *HWMutex {
	return &HWMutex{block: block}
}

// Request records an acquire attempt for the given lock bit. If the
// bit was available it is claimed (cleared in the status word) and
// Request reports true; otherwise the request is silently dropped.
func (m *HWMutex) Request(bit uint) bool {
	mask := uint32(1) << bit
	m.block.SetBits32(MutexRequest, mask)

	status := m.block.Read32(MutexStatus)
	if status&mask == 0 {
		return false
	}
	m.block.Write32(MutexStatus, status&^mask)
	return true
}

// Release marks the given lock bit available again. There is no
// ownership tracking: any caller may release any bit.
func (m *HWMutex) Release(bit uint) {
	mask := uint32(1) << bit
	m.block.SetBits32(MutexRelease, mask)
	m.block.SetBits32(MutexStatus, mask)
}

// Status returns the full availability mask (1 = available).
func (m *HWMutex) Status() uint32 {
	return m.block.Read32(MutexStatus)
}

// Held reports whether the given lock bit is currently claimed.
func (m *HWMutex) Held(bit uint) bool {
	return m.Status()&(uint32(1)<<bit) == 0
}
