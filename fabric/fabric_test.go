package fabric_test

import (
	"encoding/binary"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/hetsim/fabric"
	"github.com/sarchlab/hetsim/regs"
)

// testConfig keeps the IO core delay short but nonzero so specs can
// observe the triggered-but-unanswered window without slowing the
// suite down.
func testConfig() *fabric.Config {
	cfg := fabric.DefaultConfig()
	cfg.IOCoreDelay = fabric.Duration(2 * time.Millisecond)
	return cfg
}

var _ = Describe("Fabric", func() {
	var f *fabric.Fabric

	BeforeEach(func() {
		var err error
		f, err = fabric.New(testConfig())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(f.Close()).To(Succeed())
	})

	pollResp := func(core int) func() (uint32, bool) {
		mbox, err := f.Mailbox(core)
		Expect(err).NotTo(HaveOccurred())
		return func() (uint32, bool) {
			return mbox.Poll()
		}
	}

	respReady := func(core int) func() bool {
		poll := pollResp(core)
		return func() bool {
			_, ok := poll()
			return ok
		}
	}

	Describe("New", func() {
		It("should reject an invalid config", func() {
			cfg := fabric.DefaultConfig()
			cfg.RegSize = -4
			_, err := fabric.New(cfg)
			Expect(err).To(HaveOccurred())
		})

		It("should apply the configured enable mask", func() {
			Expect(f.IPI().Enabled()).To(Equal(uint32(0x3)))
		})
	})

	Describe("IO core (core 0)", func() {
		It("should answer PING with PONG", func() {
			mbox, err := f.Mailbox(fabric.IOCore)
			Expect(err).NotTo(HaveOccurred())

			mbox.Post(fabric.CmdPing, 0x12345678)
			Expect(f.SendIPI(fabric.IOCore)).To(Succeed())

			Eventually(respReady(fabric.IOCore)).
				WithTimeout(time.Second).WithPolling(time.Millisecond).
				Should(BeTrue())

			resp, _ := mbox.Poll()
			Expect(resp).To(Equal(uint32(fabric.RespPong)))
			mbox.Ack()
		})

		It("should not answer before the processing delay elapsed", func() {
			cfg := fabric.DefaultConfig()
			cfg.IOCoreDelay = fabric.Duration(100 * time.Millisecond)
			slow, err := fabric.New(cfg)
			Expect(err).NotTo(HaveOccurred())
			defer slow.Close()

			mbox, err := slow.Mailbox(fabric.IOCore)
			Expect(err).NotTo(HaveOccurred())
			mbox.Post(fabric.CmdPing, 0)
			Expect(slow.SendIPI(fabric.IOCore)).To(Succeed())

			Consistently(func() bool {
				_, ok := mbox.Poll()
				return ok
			}).WithTimeout(50 * time.Millisecond).Should(BeFalse())
		})

		It("should answer READ_STATUS with the status pattern", func() {
			mbox, _ := f.Mailbox(fabric.IOCore)
			mbox.Post(fabric.CmdReadStatus, 0)
			Expect(f.SendIPI(fabric.IOCore)).To(Succeed())

			Eventually(respReady(fabric.IOCore)).
				WithTimeout(time.Second).WithPolling(time.Millisecond).
				Should(BeTrue())

			resp, _ := mbox.Poll()
			Expect(resp & uint32(fabric.RespStatusBase)).
				To(Equal(uint32(fabric.RespStatusBase)))
		})

		It("should answer an unknown command with the sentinel", func() {
			mbox, _ := f.Mailbox(fabric.IOCore)
			mbox.Post(0x00FF, 0)
			Expect(f.SendIPI(fabric.IOCore)).To(Succeed())

			Eventually(respReady(fabric.IOCore)).
				WithTimeout(time.Second).WithPolling(time.Millisecond).
				Should(BeTrue())

			resp, _ := mbox.Poll()
			Expect(resp).To(Equal(uint32(fabric.RespUnknown)))
		})

		It("should consume the command and drop its IPI bit", func() {
			cfg := fabric.DefaultConfig()
			cfg.IOCoreDelay = fabric.Duration(100 * time.Millisecond)
			slow, err := fabric.New(cfg)
			Expect(err).NotTo(HaveOccurred())
			defer slow.Close()

			mbox, err := slow.Mailbox(fabric.IOCore)
			Expect(err).NotTo(HaveOccurred())
			mbox.Post(fabric.CmdPing, 0)
			Expect(slow.SendIPI(fabric.IOCore)).To(Succeed())
			Expect(slow.IPI().Pending(fabric.IOCore)).To(BeTrue())

			Eventually(func() bool {
				_, ok := mbox.Poll()
				return ok
			}).WithTimeout(time.Second).WithPolling(time.Millisecond).
				Should(BeTrue())

			cmd, _ := mbox.Command()
			Expect(cmd).To(BeZero())
			Expect(slow.IPI().Pending(fabric.IOCore)).To(BeFalse())
		})

		It("should ignore a spurious trigger without touching the mailbox", func() {
			Expect(f.SendIPI(fabric.IOCore)).To(Succeed())

			Eventually(func() bool {
				return f.IPI().Pending(fabric.IOCore)
			}).WithTimeout(time.Second).Should(BeFalse())

			Consistently(respReady(fabric.IOCore)).
				WithTimeout(20 * time.Millisecond).Should(BeFalse())
		})

		It("should process the newest command when reposted before ack", func() {
			mbox, _ := f.Mailbox(fabric.IOCore)
			mbox.Post(fabric.CmdPing, 0)
			mbox.Post(0x00FF, 0)
			Expect(f.SendIPI(fabric.IOCore)).To(Succeed())

			Eventually(respReady(fabric.IOCore)).
				WithTimeout(time.Second).WithPolling(time.Millisecond).
				Should(BeTrue())

			resp, _ := mbox.Poll()
			Expect(resp).To(Equal(uint32(fabric.RespUnknown)))
		})
	})

	Describe("RT core (core 1)", func() {
		It("should answer with its fixed pattern regardless of command", func() {
			Expect(f.SendIPI(fabric.RTCore)).To(Succeed())

			Eventually(respReady(fabric.RTCore)).
				WithTimeout(time.Second).WithPolling(time.Millisecond).
				Should(BeTrue())

			mbox, _ := f.Mailbox(fabric.RTCore)
			resp, _ := mbox.Poll()
			Expect(resp & 0xFF00).To(Equal(uint32(fabric.RespRTBase)))
		})

		It("should never consume the posted command", func() {
			mbox, _ := f.Mailbox(fabric.RTCore)
			mbox.Post(0x0042, 0xDEAD)
			Expect(f.SendIPI(fabric.RTCore)).To(Succeed())

			Eventually(respReady(fabric.RTCore)).
				WithTimeout(time.Second).WithPolling(time.Millisecond).
				Should(BeTrue())

			cmd, _ := mbox.Command()
			Expect(cmd).To(Equal(uint32(0x0042)))
		})
	})

	Describe("SendIPI", func() {
		It("should fail with ErrInvalidCore for core 2", func() {
			before := append([]byte(nil), f.Block().RegisterView()...)

			err := f.SendIPI(2)
			Expect(err).To(MatchError(fabric.ErrInvalidCore))
			Expect(f.Block().RegisterView()).To(Equal(before))
			Expect(f.Counters().IPIsSent).To(BeZero())
		})

		It("should fail for negative core ids", func() {
			Expect(f.SendIPI(-1)).To(MatchError(fabric.ErrInvalidCore))
		})

		It("should record the trigger in the registers", func() {
			mbox, _ := f.Mailbox(fabric.IOCore)
			mbox.Post(fabric.CmdPing, 0)
			Expect(f.SendIPI(fabric.IOCore)).To(Succeed())

			Expect(f.Block().Read32(regs.IPITrigger)).To(Equal(uint32(0x1)))
		})
	})

	Describe("Counters", func() {
		It("should count IPIs and processed messages", func() {
			mbox, _ := f.Mailbox(fabric.IOCore)
			for i := 0; i < 2; i++ {
				mbox.Post(fabric.CmdPing, 0)
				Expect(f.SendIPI(fabric.IOCore)).To(Succeed())

				Eventually(respReady(fabric.IOCore)).
					WithTimeout(time.Second).WithPolling(time.Millisecond).
					Should(BeTrue())
				mbox.Ack()
			}

			Expect(f.Counters().IPIsSent).To(Equal(uint64(2)))
			// The completion hook runs just after the response is
			// published, so give it a moment.
			Eventually(func() uint64 {
				return f.Counters().MessagesProcessed
			}).WithTimeout(time.Second).Should(Equal(uint64(2)))
		})
	})

	Describe("Reset", func() {
		It("should zero registers and counters but keep the layout", func() {
			mbox, _ := f.Mailbox(fabric.IOCore)
			mbox.Post(fabric.CmdPing, 0)
			Expect(f.SendIPI(fabric.IOCore)).To(Succeed())
			Eventually(func() uint64 {
				return f.Counters().MessagesProcessed
			}).WithTimeout(time.Second).Should(Equal(uint64(1)))

			layout := f.Block().Layout()
			f.Reset()

			Expect(f.Block().Read32(regs.Mbox0Resp)).To(BeZero())
			Expect(f.Block().Read32(regs.IPIEnable)).To(BeZero())
			Expect(f.Counters()).To(Equal(fabric.Counters{}))
			Expect(f.Block().Layout()).To(Equal(layout))
		})

		It("should not touch the shared zone", func() {
			copy(f.Block().SharedView(), "still here")
			f.Reset()
			Expect(string(f.Block().SharedView()[:10])).To(Equal("still here"))
		})
	})

	Describe("Mapped views", func() {
		It("should expose emulator writes without a sync call", func() {
			view, err := f.Block().View(f.Block().Layout().TotalSize())
			Expect(err).NotTo(HaveOccurred())

			mbox, _ := f.Mailbox(fabric.IOCore)
			mbox.Post(fabric.CmdPing, 0)
			Expect(f.SendIPI(fabric.IOCore)).To(Succeed())

			// The status word is the synchronization point: once it
			// flips, the response bytes are stable and may be read
			// straight out of the view with no further sync call.
			Eventually(func() uint32 {
				return f.Block().Read32(regs.Mbox0Status)
			}).WithTimeout(time.Second).WithPolling(time.Millisecond).
				ShouldNot(BeZero())

			resp := binary.NativeEndian.Uint32(view[regs.Mbox0Resp:])
			Expect(resp).To(Equal(uint32(fabric.RespPong)))
		})
	})

	Describe("Close", func() {
		It("should be idempotent", func() {
			extra, err := fabric.New(testConfig())
			Expect(err).NotTo(HaveOccurred())
			Expect(extra.Close()).To(Succeed())
			Expect(extra.Close()).To(Succeed())
		})

		It("should join in-flight work before freeing the block", func() {
			cfg := fabric.DefaultConfig()
			cfg.IOCoreDelay = fabric.Duration(20 * time.Millisecond)
			busy, err := fabric.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			mbox, _ := busy.Mailbox(fabric.IOCore)
			mbox.Post(fabric.CmdPing, 0)
			Expect(busy.SendIPI(fabric.IOCore)).To(Succeed())

			// Closing mid-processing must not race the emulator
			// against the unmap.
			Expect(busy.Close()).To(Succeed())
		})
	})
})
