// Package regs implements the simulated register space of the
// heterogeneous fabric: a contiguous block holding a 4 KiB register
// zone followed by a 32 KiB shared-data zone, with the IPI, mailbox,
// and hardware-mutex fields packed at fixed byte offsets.
//
// The block is backed by an anonymous memory mapping so that every
// view handed out by the block is a plain slice aliasing the same
// pages. All register fields are 32-bit native-endian words and are
// only ever accessed through sync/atomic loads and stores, which
// gives them uncached-register semantics: full-width, never torn,
// and immediately visible to every accessor.
package regs

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Register field byte offsets within the register zone.
const (
	IPIStatus  = 0x00
	IPITrigger = 0x04
	IPIClear   = 0x08
	IPIEnable  = 0x0C

	Mbox0Cmd    = 0x10
	Mbox0Data   = 0x14
	Mbox0Status = 0x18
	Mbox0Resp   = 0x1C

	Mbox1Cmd    = 0x20
	Mbox1Data   = 0x24
	Mbox1Status = 0x28
	Mbox1Resp   = 0x2C

	MutexRequest = 0x30
	MutexStatus  = 0x34
	MutexRelease = 0x38

	// regZoneUsed is the byte size of the populated register fields.
	// The rest of the register zone is reserved padding.
	regZoneUsed = 0x3C
)

// Default zone sizes.
const (
	DefaultRegSize    = 4096
	DefaultSharedSize = 32 * 1024
)

// Core counts of the modeled SoC: 4 main (Linux) cores plus the
// 2 auxiliary small cores the fabric talks to.
const (
	NumMainCores = 4
	NumAuxCores  = 2
	NumCores     = NumMainCores + NumAuxCores
)

// sharedMarker is stamped into the shared zone at allocation time so
// a mapped view can be recognized from the outside.
const sharedMarker = "6-Core Heterogeneous System Shared Memory\n"

// ErrAllocation indicates the contiguous backing store for a register
// block could not be obtained.
var ErrAllocation = errors.New("cannot allocate register block")

// ErrSizeExceeded indicates a view request larger than the block.
var ErrSizeExceeded = errors.New("requested view exceeds block size")

// Info describes the layout of a register block to callers that have
// not inspected source-level constants. Offsets are relative to the
// start of a full-block view.
type Info struct {
	// NumCores is the total core count of the modeled SoC.
	NumCores int `json:"num_cores"`

	// RegSize is the byte size of the register zone.
	RegSize int `json:"reg_size"`

	// SharedSize is the byte size of the shared-data zone.
	SharedSize int `json:"shared_size"`

	// RegBase is the byte offset of the register zone (always 0).
	RegBase int `json:"reg_base"`

	// SharedBase is the byte offset of the shared-data zone.
	SharedBase int `json:"shared_base"`
}

// TotalSize returns the full mapped size of the block.
func (i Info) TotalSize() int {
	return i.RegSize + i.SharedSize
}

// Block is the simulated register space plus the shared-data zone
// that follows it in the same contiguous backing store. A Block owns
// its mapping for its entire lifetime; emulators and views borrow
// into it and must not outlive Free.
type Block struct {
	mem     []byte
	regSize int
}

// Allocate creates a zero-initialized register block with the given
// zone sizes, then applies the power-on defaults: IPIs enabled for
// both auxiliary cores, all hardware-mutex bits available, and the
// shared zone stamped with a marker string.
//
// Both sizes must be multiples of 4; the register zone must be large
// enough to hold the populated fields. Failures wrap ErrAllocation.
func Allocate(regSize, sharedSize int) (*Block, error) {
	if regSize < regZoneUsed || regSize%4 != 0 {
		return nil, fmt.Errorf("%w: bad register zone size %d", ErrAllocation, regSize)
	}
	if sharedSize < 0 || sharedSize%4 != 0 {
		return nil, fmt.Errorf("%w: bad shared zone size %d", ErrAllocation, sharedSize)
	}

	mem, err := unix.Mmap(-1, 0, regSize+sharedSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %v", ErrAllocation, err)
	}

	b := &Block{mem: mem, regSize: regSize}
	b.Write32(IPIEnable, (1<<NumAuxCores)-1)
	b.Write32(MutexStatus, 0xFFFF)
	copy(b.SharedView(), sharedMarker)

	return b, nil
}

// Layout returns the layout descriptor of the block.
func (b *Block) Layout() Info {
	return Info{
		NumCores:   NumCores,
		RegSize:    b.regSize,
		SharedSize: len(b.mem) - b.regSize,
		RegBase:    0,
		SharedBase: b.regSize,
	}
}

// word returns the atomically accessible word at the given register
// offset. Offsets must be word-aligned and inside the register zone;
// anything else is a programming error on the caller's side.
func (b *Block) word(offset int) *uint32 {
	if offset < 0 || offset+4 > b.regSize || offset%4 != 0 {
		panic(fmt.Sprintf("regs: bad register offset 0x%X", offset))
	}
	return (*uint32)(unsafe.Pointer(&b.mem[offset]))
}

// Read32 atomically reads the register word at the given offset.
func (b *Block) Read32(offset int) uint32 {
	return atomic.LoadUint32(b.word(offset))
}

// Write32 atomically writes the register word at the given offset.
func (b *Block) Write32(offset int, value uint32) {
	atomic.StoreUint32(b.word(offset), value)
}

// SetBits32 atomically ors mask into the register word at offset.
func (b *Block) SetBits32(offset int, mask uint32) {
	atomic.OrUint32(b.word(offset), mask)
}

// ClearBits32 atomically clears mask from the register word at offset.
func (b *Block) ClearBits32(offset int, mask uint32) {
	atomic.AndUint32(b.word(offset), ^mask)
}

// Reset zeroes the entire register zone, including the enable mask,
// the mutex availability word, and any pending mailbox state. The
// shared-data zone is left untouched. Layout is unaffected.
func (b *Block) Reset() {
	for off := 0; off < b.regSize; off += 4 {
		b.Write32(off, 0)
	}
}

// View returns a read/write slice over the first size bytes of the
// block: register zone first, shared-data zone after it. The slice
// aliases the block's backing pages, so emulator writes are visible
// through it without any synchronization call. It fails with
// ErrSizeExceeded if size is larger than the block.
func (b *Block) View(size int) ([]byte, error) {
	if size < 0 || size > len(b.mem) {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrSizeExceeded, size, len(b.mem))
	}
	return b.mem[:size:size], nil
}

// RegisterView returns the view of the register zone.
func (b *Block) RegisterView() []byte {
	return b.mem[:b.regSize:b.regSize]
}

// SharedView returns the view of the shared-data zone.
func (b *Block) SharedView() []byte {
	return b.mem[b.regSize:]
}

// Free releases the backing mapping. All views and borrowed
// references into the block become invalid; the caller must have
// stopped every emulator task first.
func (b *Block) Free() error {
	if b.mem == nil {
		return nil
	}
	mem := b.mem
	b.mem = nil
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("unmap register block: %w", err)
	}
	return nil
}
