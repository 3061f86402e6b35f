package memory_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/inference-sim/procsim/sim/memory"
)

var _ = Describe("BackingStore", func() {
	var bs *memory.BackingStore

	BeforeEach(func() {
		bs = memory.NewBackingStore()
	})

	It("should key records by process name and page", func() {
		Expect(memory.RecordKey("auto_proc_3", 7)).To(Equal("auto_proc_3:page7"))
	})

	It("should treat an absent key as never evicted", func() {
		Expect(bs.Has("p1", 0)).To(BeFalse())
		Expect(bs.Load("p1", 0)).To(BeFalse())

		bs.Evict("p1", 0)
		Expect(bs.Has("p1", 0)).To(BeTrue())
		Expect(bs.Load("p1", 0)).To(BeTrue())
		Expect(bs.Has("p1", 0)).To(BeTrue())

		in, out := bs.Counters()
		Expect(in).To(Equal(int64(1)))
		Expect(out).To(Equal(int64(1)))
	})

	It("should purge only the owner's records", func() {
		bs.Evict("p1", 0)
		bs.Evict("p1", 3)
		bs.Evict("p10", 0)

		Expect(bs.Purge("p1")).To(Equal(2))
		Expect(bs.Len()).To(Equal(1))
		Expect(bs.Has("p10", 0)).To(BeTrue())
	})

	It("should dump one sorted line per record with a fixed-size payload", func() {
		bs.Evict("b", 1)
		bs.Evict("a", 2)

		var buf bytes.Buffer
		n, err := bs.WriteTo(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(buf.Len())))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines).To(HaveLen(2))
		Expect(lines[0]).To(HavePrefix("a:page2 "))
		Expect(lines[1]).To(HavePrefix("b:page1 "))
		payload := strings.TrimPrefix(lines[0], "a:page2 ")
		Expect(payload).To(HaveLen(memory.PayloadSize))
	})
})
