package regs_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/hetsim/regs"
)

var _ = Describe("Mailbox", func() {
	var (
		b    *regs.Block
		mbox *regs.Mailbox
	)

	BeforeEach(func() {
		var err error
		b, err = regs.Allocate(regs.DefaultRegSize, 0)
		Expect(err).NotTo(HaveOccurred())
		mbox = regs.NewMailbox(b, 0, nil)
	})

	AfterEach(func() {
		Expect(b.Free()).To(Succeed())
	})

	Describe("Post", func() {
		It("should write the payload and the command registers", func() {
			mbox.Post(0x0001, 0xCAFEBABE)

			Expect(b.Read32(regs.Mbox0Cmd)).To(Equal(uint32(0x0001)))
			Expect(b.Read32(regs.Mbox0Data)).To(Equal(uint32(0xCAFEBABE)))
		})

		It("should let the last post win when reposting before ack", func() {
			mbox.Post(0x0001, 0x1111)
			mbox.Post(0x00FF, 0x2222)

			cmd, data := mbox.Command()
			Expect(cmd).To(Equal(uint32(0x00FF)))
			Expect(data).To(Equal(uint32(0x2222)))
		})

		It("should target the core 1 registers for the second channel", func() {
			m1 := regs.NewMailbox(b, 1, nil)
			m1.Post(0x0001, 0x55)

			Expect(b.Read32(regs.Mbox1Cmd)).To(Equal(uint32(0x0001)))
			Expect(b.Read32(regs.Mbox0Cmd)).To(BeZero())
		})
	})

	Describe("Poll", func() {
		It("should report nothing while no response is ready", func() {
			_, ok := mbox.Poll()
			Expect(ok).To(BeFalse())
		})

		It("should return the response once Complete runs", func() {
			mbox.Post(0x0001, 0)
			mbox.Complete(0x8001)

			resp, ok := mbox.Poll()
			Expect(ok).To(BeTrue())
			Expect(resp).To(Equal(uint32(0x8001)))
		})
	})

	Describe("Complete", func() {
		It("should consume the command", func() {
			mbox.Post(0x0001, 0)
			mbox.Complete(0x8001)

			cmd, _ := mbox.Command()
			Expect(cmd).To(BeZero())
		})
	})

	Describe("Publish", func() {
		It("should leave the command register alone", func() {
			mbox.Post(0x0001, 0)
			mbox.Publish(0x5242)

			cmd, _ := mbox.Command()
			Expect(cmd).To(Equal(uint32(0x0001)))

			resp, ok := mbox.Poll()
			Expect(ok).To(BeTrue())
			Expect(resp).To(Equal(uint32(0x5242)))
		})
	})

	Describe("Ack", func() {
		It("should rearm the channel", func() {
			mbox.Complete(0x8001)
			mbox.Ack()

			_, ok := mbox.Poll()
			Expect(ok).To(BeFalse())
		})

		It("should be a no-op on an already-acknowledged channel", func() {
			mbox.Complete(0x8001)
			mbox.Ack()
			mbox.Ack()

			Expect(b.Read32(regs.Mbox0Status)).To(BeZero())
		})
	})
})
