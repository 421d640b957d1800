package fabric_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/hetsim/fabric"
)

var _ = Describe("Config", func() {
	Describe("DefaultConfig", func() {
		It("should validate", func() {
			Expect(fabric.DefaultConfig().Validate()).To(Succeed())
		})

		It("should match the modeled hardware", func() {
			cfg := fabric.DefaultConfig()
			Expect(cfg.RegSize).To(Equal(4096))
			Expect(cfg.SharedSize).To(Equal(32 * 1024))
			Expect(cfg.EnableMask).To(Equal(uint32(0x3)))
			Expect(time.Duration(cfg.IOCoreDelay)).To(Equal(time.Millisecond))
			Expect(time.Duration(cfg.RTCoreDelay)).To(BeZero())
		})
	})

	Describe("Validate", func() {
		It("should reject a zero IO core delay", func() {
			cfg := fabric.DefaultConfig()
			cfg.IOCoreDelay = 0
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject unaligned zone sizes", func() {
			cfg := fabric.DefaultConfig()
			cfg.SharedSize = 10
			Expect(cfg.Validate()).NotTo(Succeed())
		})
	})

	Describe("Save and Load", func() {
		It("should round-trip through a JSON file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "fabric.json")

			cfg := fabric.DefaultConfig()
			cfg.IOCoreDelay = fabric.Duration(5 * time.Millisecond)
			cfg.SharedSize = 16 * 1024
			Expect(cfg.SaveConfig(path)).To(Succeed())

			loaded, err := fabric.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("should keep defaults for missing fields", func() {
			path := filepath.Join(GinkgoT().TempDir(), "partial.json")
			Expect(os.WriteFile(path, []byte(`{"shared_size": 8192}`), 0644)).
				To(Succeed())

			loaded, err := fabric.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.SharedSize).To(Equal(8192))
			Expect(loaded.RegSize).To(Equal(4096))
			Expect(time.Duration(loaded.IOCoreDelay)).To(Equal(time.Millisecond))
		})

		It("should accept duration strings", func() {
			path := filepath.Join(GinkgoT().TempDir(), "delay.json")
			Expect(os.WriteFile(path, []byte(`{"io_core_delay": "250us"}`), 0644)).
				To(Succeed())

			loaded, err := fabric.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(time.Duration(loaded.IOCoreDelay)).
				To(Equal(250 * time.Microsecond))
		})

		It("should fail on a missing file", func() {
			_, err := fabric.LoadConfig("/nonexistent/fabric.json")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Clone", func() {
		It("should return an independent copy", func() {
			cfg := fabric.DefaultConfig()
			clone := cfg.Clone()
			clone.RegSize = 8192
			Expect(cfg.RegSize).To(Equal(4096))
		})
	})
})
