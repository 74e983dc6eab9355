package paging

import (
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/pagesim/mem/frame"
	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/mem/storage"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/mmu"
	"github.com/sarchlab/pagesim/sim/hooking"
)

type machine struct {
	memory      *storage.Storage
	registry    *frame.Registry
	kernelPool  *frame.Pool
	processPool *frame.Pool
	cpu         *mmu.Comp
}

func newMachine() *machine {
	m := &machine{
		memory:   storage.New(32 * mm.MB),
		registry: frame.NewRegistry(),
	}

	var err error
	m.kernelPool, err = frame.MakeBuilder().
		WithMemory(m.memory).
		WithRegistry(m.registry).
		WithBaseFrame(512).
		WithNumFrames(512).
		Build("KernelPool")
	Expect(err).NotTo(HaveOccurred())

	info, err := m.kernelPool.GetFrames(1)
	Expect(err).NotTo(HaveOccurred())

	m.processPool, err = frame.MakeBuilder().
		WithMemory(m.memory).
		WithRegistry(m.registry).
		WithBaseFrame(1024).
		WithNumFrames(7168).
		WithInfoFrame(info).
		Build("ProcessPool")
	Expect(err).NotTo(HaveOccurred())

	m.cpu = mmu.MakeBuilder().
		WithMemory(m.memory).
		WithNumWays(16).
		Build("MMU")

	return m
}

func (m *machine) managerBuilder() Builder {
	return MakeBuilder().
		WithKernelPool(m.kernelPool).
		WithProcessPool(m.processPool).
		WithFrameReleaser(m.registry).
		WithMemory(m.memory).
		WithCPU(m.cpu)
}

func readPhysical(memory *storage.Storage, table mm.Frame, index uint32) vm.Entry {
	raw, err := memory.Read32(uint64(vm.EntryAddr(table, index)))
	Expect(err).NotTo(HaveOccurred())

	return vm.Entry(raw)
}

var _ = Describe("Manager", func() {
	const region = mm.VAddr(4 * mm.MB)

	var (
		mockCtrl *gomock.Controller
		mach     *machine
		manager  *Manager
		pt       *PageTable
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		mach = newMachine()
		manager = mach.managerBuilder().Build("Paging")
		mach.cpu.RegisterFaultHandler(manager)

		var err error
		pt, err = manager.NewPageTable()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("when constructing a page table", func() {
		It("should take the directory from the kernel pool", func() {
			Expect(pt.DirectoryFrame()).To(Equal(mm.Frame(514)))
			Expect(pt.Tables()).To(Equal([]mm.Frame{1024}))
		})

		It("should install the self-map entry", func() {
			e := readPhysical(mach.memory, pt.DirectoryFrame(), vm.SelfMapIndex)

			Expect(e.Present()).To(BeTrue())
			Expect(e.HasFlags(vm.FlagRW)).To(BeTrue())
			Expect(e.Frame()).To(Equal(pt.DirectoryFrame()))
		})

		It("should leave other directory entries writable but absent", func() {
			e := readPhysical(mach.memory, pt.DirectoryFrame(), 1)

			Expect(e.Present()).To(BeFalse())
			Expect(e.HasFlags(vm.FlagRW)).To(BeTrue())
		})

		It("should identity map the shared region", func() {
			pde := readPhysical(mach.memory, pt.DirectoryFrame(), 0)
			Expect(pde.HasFlags(vm.FlagPresent | vm.FlagRW)).To(BeTrue())
			Expect(pde.Frame()).To(Equal(mm.Frame(1024)))

			for _, i := range []uint32{0, 1, 512, 1023} {
				pte := readPhysical(mach.memory, pde.Frame(), i)
				Expect(pte.HasFlags(vm.FlagPresent | vm.FlagRW)).To(BeTrue())
				Expect(pte.HasFlags(vm.FlagUserAccessible)).To(BeFalse())
				Expect(pte.Frame()).To(Equal(mm.Frame(i)))
			}
		})

		It("should mark the shared region user accessible when asked", func() {
			m := mach.managerBuilder().WithUserShared(true).Build("UserPaging")
			pt2, err := m.NewPageTable()
			Expect(err).NotTo(HaveOccurred())

			pde := readPhysical(mach.memory, pt2.DirectoryFrame(), 0)
			pte := readPhysical(mach.memory, pde.Frame(), 3)
			Expect(pde.HasFlags(vm.FlagUserAccessible)).To(BeTrue())
			Expect(pte.HasFlags(vm.FlagUserAccessible)).To(BeTrue())
		})

		It("should use as many tables as the shared region needs", func() {
			m := mach.managerBuilder().WithSharedSize(5 * mm.MB).Build("Big")
			pt2, err := m.NewPageTable()
			Expect(err).NotTo(HaveOccurred())
			Expect(pt2.Tables()).To(HaveLen(2))

			mapped, err := pt2.IsMapped(mm.PageFromAddress(mm.VAddr(5*mm.MB - 1)))
			Expect(err).NotTo(HaveOccurred())
			Expect(mapped).To(BeTrue())

			mapped, err = pt2.IsMapped(mm.PageFromAddress(mm.VAddr(5 * mm.MB)))
			Expect(err).NotTo(HaveOccurred())
			Expect(mapped).To(BeFalse())
		})

		It("should report kernel pool exhaustion", func() {
			kernel := NewMockFrameSource(mockCtrl)
			kernel.EXPECT().
				GetFrames(uint64(1)).
				Return(mm.InvalidFrame, fmt.Errorf("empty: %w", mm.ErrResourceExhausted))

			m := mach.managerBuilder().WithKernelPool(kernel).Build("Empty")
			_, err := m.NewPageTable()
			Expect(err).To(MatchError(mm.ErrResourceExhausted))
		})
	})

	It("should refuse to enable paging before a table is loaded", func() {
		Expect(manager.Enable()).To(MatchError(mm.ErrProtocolViolation))
		Expect(manager.PagingEnabled()).To(BeFalse())
	})

	Context("when paging is enabled", func() {
		BeforeEach(func() {
			pt.Load()
			Expect(manager.Enable()).To(Succeed())
		})

		It("should only enable once", func() {
			Expect(manager.Current()).To(BeIdenticalTo(pt))
			Expect(manager.Enable()).To(MatchError(mm.ErrProtocolViolation))
			Expect(mach.cpu.PagingEnabled()).To(BeTrue())
		})

		It("should keep the shared region accessible", func() {
			Expect(mach.memory.Write32(0x2000, 77)).To(Succeed())

			v, err := mach.cpu.Read32(0x2000)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(77)))
			Expect(manager.Stats().Faults).To(BeZero())
		})

		It("should map on demand without catalogs", func() {
			Expect(mach.cpu.Write32(0x10000000, 5)).To(Succeed())

			v, err := mach.cpu.Read32(0x10000000)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(5)))
		})

		Context("with a catalog covering [4MB, 5MB)", func() {
			var catalog *MockRegionCatalog

			BeforeEach(func() {
				catalog = NewMockRegionCatalog(mockCtrl)
				catalog.EXPECT().
					IsLegitimate(gomock.Any()).
					DoAndReturn(func(addr mm.VAddr) bool {
						return addr >= region && addr < region+mm.VAddr(mm.MB)
					}).
					AnyTimes()
				manager.RegisterCatalog(catalog)
			})

			It("should create the table and the page on first write", func() {
				free := mach.processPool.NumFreeFrames()

				Expect(mach.cpu.Write32(region+100, 0xcafe)).To(Succeed())

				v, err := mach.cpu.Read32(region + 100)
				Expect(err).NotTo(HaveOccurred())
				Expect(v).To(Equal(uint32(0xcafe)))

				Expect(mach.processPool.NumFreeFrames()).To(Equal(free - 2))
				Expect(manager.Stats()).To(Equal(Stats{
					Faults: 1, NewTables: 1, Mapped: 1,
				}))
				Expect(pt.Tables()).To(HaveLen(2))

				pde := readPhysical(mach.memory, pt.DirectoryFrame(), 1)
				Expect(pde.HasFlags(vm.FlagPresent | vm.FlagRW |
					vm.FlagUserAccessible)).To(BeTrue())

				pte := readPhysical(mach.memory, pde.Frame(), 0)
				Expect(pte.HasFlags(vm.FlagPresent | vm.FlagRW |
					vm.FlagUserAccessible)).To(BeTrue())

				empty := readPhysical(mach.memory, pde.Frame(), 1)
				Expect(empty).To(Equal(vm.Entry(vm.FlagUserAccessible)))
			})

			It("should reuse the table for the next page", func() {
				Expect(mach.cpu.Write32(region, 1)).To(Succeed())
				Expect(mach.cpu.Write32(region+mm.PageSize, 2)).To(Succeed())

				Expect(manager.Stats().NewTables).To(Equal(uint64(1)))
				Expect(manager.Stats().Mapped).To(Equal(uint64(2)))
			})

			It("should reject addresses outside every catalog", func() {
				err := mach.cpu.Write32(region+mm.VAddr(2*mm.MB), 1)

				Expect(err).To(MatchError(mm.ErrIllegalAccess))
				Expect(mm.IsFatal(err)).To(BeTrue())
				Expect(manager.Stats().Mapped).To(BeZero())
			})

			It("should accept an address covered by a later catalog", func() {
				other := NewMockRegionCatalog(mockCtrl)
				other.EXPECT().IsLegitimate(gomock.Any()).Return(true).AnyTimes()
				manager.RegisterCatalog(other)

				Expect(mach.cpu.Write32(0x20000000, 1)).To(Succeed())
				Expect(manager.Catalogs()).To(HaveLen(2))
			})

			It("should demand map again after a page is freed", func() {
				page := mm.PageFromAddress(region)
				Expect(mach.cpu.Write32(region+100, 0xcafe)).To(Succeed())
				free := mach.processPool.NumFreeFrames()

				Expect(manager.FreePage(page)).To(Succeed())
				Expect(mach.processPool.NumFreeFrames()).To(Equal(free + 1))

				mapped, err := pt.IsMapped(page)
				Expect(err).NotTo(HaveOccurred())
				Expect(mapped).To(BeFalse())

				pde := readPhysical(mach.memory, pt.DirectoryFrame(), 1)
				pte := readPhysical(mach.memory, pde.Frame(), 0)
				Expect(pte.HasFlags(vm.FlagRW | vm.FlagUserAccessible)).To(BeTrue())

				Expect(mach.cpu.Write32(region+100, 1)).To(Succeed())

				stats := manager.Stats()
				Expect(stats.Faults).To(Equal(uint64(2)))
				Expect(stats.NewTables).To(Equal(uint64(1)))
				Expect(stats.Mapped).To(Equal(uint64(2)))
				Expect(stats.Freed).To(Equal(uint64(1)))
			})

			It("should reject freeing a page that is not mapped", func() {
				err := manager.FreePage(mm.PageFromAddress(region))
				Expect(err).To(MatchError(mm.ErrProtocolViolation))

				err = manager.FreePage(mm.PageFromAddress(0x30000000))
				Expect(err).To(MatchError(mm.ErrProtocolViolation))
			})

			It("should list the mappings", func() {
				Expect(mach.cpu.Write32(region, 1)).To(Succeed())

				mappings, err := pt.Entries()
				Expect(err).NotTo(HaveOccurred())
				Expect(mappings).To(HaveLen(1025))

				last := mappings[len(mappings)-1]
				Expect(last.Page).To(Equal(mm.PageFromAddress(region)))

				paddr, found, err := pt.Translate(region + 8)
				Expect(err).NotTo(HaveOccurred())
				Expect(found).To(BeTrue())
				Expect(paddr).To(Equal(last.Frame.Address() + 8))
			})

			It("should map one page for concurrent faults on it", func() {
				var wg sync.WaitGroup
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						defer GinkgoRecover()

						Expect(mach.cpu.Write32(region+8, 3)).To(Succeed())
					}()
				}
				wg.Wait()

				Expect(manager.Stats().Mapped).To(Equal(uint64(1)))
				Expect(manager.Stats().NewTables).To(Equal(uint64(1)))
			})

			It("should invoke hooks", func() {
				hook := hooking.NewCountHook()
				manager.AcceptHook(hook)

				Expect(mach.cpu.Write32(region, 1)).To(Succeed())
				Expect(manager.FreePage(mm.PageFromAddress(region))).To(Succeed())

				Expect(hook.Count(hooking.HookPosPageFault)).To(Equal(uint64(1)))
				Expect(hook.Count(hooking.HookPosPageMapped)).To(Equal(uint64(1)))
				Expect(hook.Count(hooking.HookPosPageFreed)).To(Equal(uint64(1)))
			})
		})

		It("should not resolve protection faults", func() {
			err := manager.HandleFault(0x1000, vm.FaultProtection|vm.FaultWrite)

			Expect(err).To(MatchError(mm.ErrUnsupportedFault))
		})

		It("should report process pool exhaustion", func() {
			process := NewMockFrameSource(mockCtrl)
			process.EXPECT().
				GetFrames(uint64(1)).
				Return(mm.InvalidFrame, fmt.Errorf("empty: %w", mm.ErrResourceExhausted))

			m := mach.managerBuilder().WithProcessPool(process).Build("Starved")
			m.Load(pt)

			err := m.HandleFault(region, vm.FaultWrite)
			Expect(err).To(MatchError(mm.ErrResourceExhausted))
		})
	})
})

var _ = Describe("Accessors", func() {
	It("should see the same entries through the window and physically", func() {
		mach := newMachine()
		manager := mach.managerBuilder().Build("Paging")
		pt, err := manager.NewPageTable()
		Expect(err).NotTo(HaveOccurred())
		pt.Load()
		Expect(manager.Enable()).To(Succeed())

		window := NewWindowAccessor(mach.cpu)
		physical := NewPhysicalAccessor(mach.memory, pt.DirectoryFrame())

		Expect(window.SetTableEntry(0, 7, vm.NewEntry(99, vm.FlagPresent))).
			To(Succeed())

		e, err := physical.TableEntry(0, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(Equal(vm.NewEntry(99, vm.FlagPresent)))

		w, err := window.DirectoryEntry(vm.SelfMapIndex)
		Expect(err).NotTo(HaveOccurred())
		p, err := physical.DirectoryEntry(vm.SelfMapIndex)
		Expect(err).NotTo(HaveOccurred())
		Expect(w).To(Equal(p))

		_, err = physical.TableEntry(3, 0)
		Expect(err).To(MatchError(mm.ErrProtocolViolation))
	})
})
