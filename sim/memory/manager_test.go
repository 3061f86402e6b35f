package memory_test

import (
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/inference-sim/procsim/sim/memory"
)

const kb = 1024

// checkFrameInvariants asserts that occupancy is bounded and that every
// (pid, page) pair lives in at most one frame.
func checkFrameInvariants(m *memory.Manager) {
	frames := m.Frames()
	seen := make(map[[2]int]int)
	occupied := 0
	for _, f := range frames {
		if !f.Occupied {
			continue
		}
		occupied++
		key := [2]int{f.PID, f.Page}
		_, dup := seen[key]
		Expect(dup).To(BeFalse(), "pid %d page %d resident twice", f.PID, f.Page)
		seen[key] = f.Number
	}
	Expect(occupied).To(BeNumerically("<=", m.TotalFrames()))
}

var _ = Describe("Manager", func() {
	var m *memory.Manager

	BeforeEach(func() {
		// 16KB / 4KB = 4 frames
		m = memory.NewManager(16*kb, 4*kb)
	})

	Describe("construction", func() {
		It("should derive the frame count from total memory and frame size", func() {
			Expect(m.TotalFrames()).To(Equal(4))
			Expect(m.FreeFrames()).To(Equal(4))
			Expect(m.FrameSize()).To(Equal(4 * kb))
		})

		It("should round page counts up", func() {
			Expect(m.PagesFor(1)).To(Equal(1))
			Expect(m.PagesFor(4 * kb)).To(Equal(1))
			Expect(m.PagesFor(4*kb + 1)).To(Equal(2))
		})

		It("should panic when total memory is not a multiple of the frame size", func() {
			Expect(func() { memory.NewManager(10, 4) }).To(Panic())
		})
	})

	Describe("page access", func() {
		BeforeEach(func() {
			Expect(m.Register(1, "A", 8*kb)).To(Succeed())
		})

		It("should fault on first touch and hit afterwards", func() {
			acc, err := m.AccessPage(1, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(acc.Fault).To(BeTrue())
			Expect(acc.Evicted).To(BeFalse())

			again, err := m.AccessPage(1, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Fault).To(BeFalse())
			Expect(again.Frame).To(Equal(acc.Frame))

			stats := m.Stats()
			Expect(stats.PageFaults).To(Equal(int64(1)))
			Expect(stats.PageHits).To(Equal(int64(1)))
			Expect(stats.PagesPagedIn).To(BeZero())
		})

		It("should mark a valid page-table entry for the loaded frame", func() {
			acc, err := m.AccessPage(1, 1)
			Expect(err).NotTo(HaveOccurred())

			pt, ok := m.PageTable(1)
			Expect(ok).To(BeTrue())
			Expect(pt[1].Valid).To(BeTrue())
			Expect(pt[1].Frame).To(Equal(acc.Frame))
			Expect(pt[0].Valid).To(BeFalse())
			Expect(pt[0].Frame).To(Equal(-1))
		})

		It("should serve repeated reads from the residency cache", func() {
			_, err := m.AccessPage(1, 0)
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < 5; i++ {
				_, err = m.AccessPage(1, 0)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(m.Stats().ResidencyHits).To(BeNumerically(">=", 4))
		})

		It("should mark pages dirty on write", func() {
			acc, err := m.AccessAddress(1, 4*kb+10, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(acc.Page).To(Equal(1))

			pt, _ := m.PageTable(1)
			Expect(pt[1].Dirty).To(BeTrue())
			Expect(m.Frames()[acc.Frame].Dirty).To(BeTrue())
		})

		It("should reject pages beyond the footprint", func() {
			_, err := m.AccessPage(1, 2)
			Expect(err).To(MatchError(memory.ErrPageOutOfRange))
			_, err = m.AccessAddress(1, -2, false)
			Expect(err).To(MatchError(memory.ErrPageOutOfRange))
		})

		It("should reject unknown processes", func() {
			_, err := m.AccessPage(99, 0)
			Expect(err).To(MatchError(memory.ErrUnknownProcess))
		})

		It("should reject a name held by a live process", func() {
			Expect(m.Register(2, "A", 4*kb)).To(MatchError(memory.ErrNameInUse))
			Expect(m.Free(1)).To(Succeed())
			Expect(m.Register(3, "A", 4*kb)).To(Succeed())
		})

		It("should reject registering the same pid twice", func() {
			Expect(m.Register(1, "A", 4*kb)).To(MatchError(memory.ErrAlreadyRegistered))
		})

		It("should never hold more frames than the footprint allows", func() {
			for i := 0; i < 10; i++ {
				_, err := m.AccessPage(1, i%2)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(m.ProcessUsage(1)).To(Equal(8 * kb))
			Expect(m.FreeFrames()).To(Equal(2))
		})
	})

	Describe("eviction", func() {
		BeforeEach(func() {
			Expect(m.Register(1, "A", 8*kb)).To(Succeed())  // 2 pages
			Expect(m.Register(2, "B", 12*kb)).To(Succeed()) // 3 pages
		})

		It("should evict A's oldest page when B needs a third frame", func() {
			for _, p := range []int{0, 1} {
				_, err := m.AccessPage(1, p)
				Expect(err).NotTo(HaveOccurred())
			}
			first, err := m.AccessPage(2, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Evicted).To(BeFalse())
			_, err = m.AccessPage(2, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.FreeFrames()).To(Equal(0))

			acc, err := m.AccessPage(2, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(acc.Fault).To(BeTrue())
			Expect(acc.Evicted).To(BeTrue())
			Expect(acc.EvictedPID).To(Equal(1))
			Expect(acc.EvictedPage).To(Equal(0))

			ptA, _ := m.PageTable(1)
			Expect(ptA[0].Valid).To(BeFalse())
			Expect(ptA[1].Valid).To(BeTrue())
			Expect(m.BackingStore().Has("A", 0)).To(BeTrue())
			Expect(m.Stats().PagesPagedOut).To(Equal(int64(1)))
			checkFrameInvariants(m)
		})

		It("should pick the globally oldest load, not the least recently used", func() {
			order := [][2]int{{1, 0}, {2, 0}, {1, 1}, {2, 1}}
			frameOf := map[[2]int]int{}
			for _, o := range order {
				acc, err := m.AccessPage(o[0], o[1])
				Expect(err).NotTo(HaveOccurred())
				frameOf[o] = acc.Frame
			}
			// touching A page 0 again must not refresh its FIFO age
			_, err := m.AccessPage(1, 0)
			Expect(err).NotTo(HaveOccurred())

			acc, err := m.AccessPage(2, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(acc.EvictedPID).To(Equal(1))
			Expect(acc.EvictedPage).To(Equal(0))
			Expect(acc.Frame).To(Equal(frameOf[[2]int{1, 0}]))

			next, err := m.AccessPage(1, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(next.EvictedPID).To(Equal(2))
			Expect(next.EvictedPage).To(Equal(0))
		})

		It("should count only reloads of evicted pages as paged in", func() {
			for _, o := range [][2]int{{1, 0}, {1, 1}, {2, 0}, {2, 1}} {
				acc, err := m.AccessPage(o[0], o[1])
				Expect(err).NotTo(HaveOccurred())
				Expect(acc.SwappedIn).To(BeFalse())
			}
			_, err := m.AccessPage(2, 2) // evicts A page 0
			Expect(err).NotTo(HaveOccurred())

			acc, err := m.AccessPage(1, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(acc.SwappedIn).To(BeTrue())

			stats := m.Stats()
			Expect(stats.PageFaults).To(Equal(int64(6)))
			Expect(stats.PagesPagedIn).To(Equal(int64(1)))
			Expect(stats.PagesPagedOut).To(Equal(int64(2)))
		})

		It("should stamp the reloaded page so it becomes the youngest", func() {
			for _, o := range [][2]int{{1, 0}, {1, 1}, {2, 0}, {2, 1}, {2, 2}} {
				_, err := m.AccessPage(o[0], o[1])
				Expect(err).NotTo(HaveOccurred())
			}
			var maxStamp int64
			var youngest memory.Frame
			for _, f := range m.Frames() {
				if f.LoadTime > maxStamp {
					maxStamp = f.LoadTime
					youngest = f
				}
			}
			Expect(youngest.PID).To(Equal(2))
			Expect(youngest.Page).To(Equal(2))
		})
	})

	Describe("Free", func() {
		BeforeEach(func() {
			Expect(m.Register(1, "A", 8*kb)).To(Succeed())
			Expect(m.Register(2, "B", 12*kb)).To(Succeed())
			for _, o := range [][2]int{{1, 0}, {1, 1}, {2, 0}, {2, 1}, {2, 2}} {
				_, err := m.AccessPage(o[0], o[1])
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should release every frame, page table and backing record of the process", func() {
			Expect(m.BackingStore().Has("A", 0)).To(BeTrue())

			Expect(m.Free(1)).To(Succeed())

			for _, f := range m.Frames() {
				if f.Occupied {
					Expect(f.PID).NotTo(Equal(1))
				}
			}
			_, ok := m.PageTable(1)
			Expect(ok).To(BeFalse())
			Expect(m.BackingStore().Has("A", 0)).To(BeFalse())
			Expect(m.ProcessUsage(1)).To(Equal(0))
			Expect(m.FreeFrames()).To(Equal(1))
		})

		It("should detect a second free", func() {
			Expect(m.Free(1)).To(Succeed())
			Expect(m.Free(1)).To(MatchError(memory.ErrDoubleFree))
		})

		It("should refuse access and re-registration after free", func() {
			Expect(m.Free(2)).To(Succeed())
			_, err := m.AccessPage(2, 0)
			Expect(err).To(MatchError(memory.ErrDoubleFree))
			Expect(m.Register(2, "B", 4*kb)).To(MatchError(memory.ErrAlreadyRegistered))
		})

		It("should keep another process's records when one is freed", func() {
			// A page 0 is already out; C's two pages push out A page 1 then B page 0
			Expect(m.Register(3, "C", 8*kb)).To(Succeed())
			for _, page := range []int{0, 1} {
				_, err := m.AccessPage(3, page)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(m.BackingStore().Has("B", 0)).To(BeTrue())

			Expect(m.Free(1)).To(Succeed())

			Expect(m.BackingStore().Has("A", 0)).To(BeFalse())
			Expect(m.BackingStore().Has("B", 0)).To(BeTrue())
			ptB, _ := m.PageTable(2)
			Expect(ptB[0].Valid).To(BeFalse())
		})

		It("should report unknown pids", func() {
			Expect(m.Free(42)).To(MatchError(memory.ErrUnknownProcess))
		})
	})

	Describe("concurrent access", func() {
		It("should keep frame invariants under contention", func() {
			const procs = 6
			for pid := 1; pid <= procs; pid++ {
				Expect(m.Register(pid, fmt.Sprintf("P%d", pid), 8*kb)).To(Succeed())
			}

			var wg sync.WaitGroup
			for pid := 1; pid <= procs; pid++ {
				wg.Add(1)
				go func(pid int) {
					defer GinkgoRecover()
					defer wg.Done()
					for i := 0; i < 200; i++ {
						_, err := m.AccessAddress(pid, (i%2)*4*kb, i%3 == 0)
						Expect(err).NotTo(HaveOccurred())
					}
				}(pid)
			}
			wg.Wait()

			checkFrameInvariants(m)
			for pid := 1; pid <= procs; pid++ {
				pt, ok := m.PageTable(pid)
				Expect(ok).To(BeTrue())
				frames := m.Frames()
				for page, e := range pt {
					if e.Valid {
						Expect(frames[e.Frame].PID).To(Equal(pid))
						Expect(frames[e.Frame].Page).To(Equal(page))
					}
				}
			}
			stats := m.Stats()
			Expect(stats.PagesPagedIn).To(BeNumerically("<=", stats.PageFaults))
			Expect(stats.PagesPagedIn).To(BeNumerically("<=", stats.PagesPagedOut))
		})
	})
})
