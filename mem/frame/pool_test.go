package frame_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pagesim/mem/frame"
	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/mem/storage"
	"github.com/sarchlab/pagesim/sim/hooking"
)

var _ = Describe("Pool", func() {
	var (
		memory   *storage.Storage
		registry *frame.Registry
		kernel   *frame.Pool
	)

	BeforeEach(func() {
		var err error

		memory = storage.New(32 * mm.MB)
		registry = frame.NewRegistry()
		kernel, err = frame.MakeBuilder().
			WithMemory(memory).
			WithRegistry(registry).
			WithBaseFrame(512).
			WithNumFrames(512).
			Build("KernelPool")
		Expect(err).NotTo(HaveOccurred())
	})

	It("should keep its bitmap in its own first frame", func() {
		Expect(kernel.InfoFrame()).To(Equal(mm.Frame(512)))
		Expect(kernel.NumFreeFrames()).To(Equal(uint64(511)))

		state, err := kernel.State(512)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(Equal(frame.Allocated))
	})

	It("should store states as two bits per frame", func() {
		f, err := kernel.GetFrames(3)
		Expect(err).NotTo(HaveOccurred())
		Expect(f).To(Equal(mm.Frame(513)))

		b, err := memory.Read(uint64(mm.Frame(512).Address()), 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(b[0]).To(Equal(byte(0b01_01_11_01)))
	})

	It("should allocate first fit", func() {
		a, _ := kernel.GetFrames(2)
		b, _ := kernel.GetFrames(3)
		c, _ := kernel.GetFrames(1)

		Expect(a).To(Equal(mm.Frame(513)))
		Expect(b).To(Equal(mm.Frame(515)))
		Expect(c).To(Equal(mm.Frame(518)))

		Expect(kernel.ReleaseFrames(b)).To(Succeed())

		d, _ := kernel.GetFrames(2)
		Expect(d).To(Equal(mm.Frame(515)))

		e, _ := kernel.GetFrames(2)
		Expect(e).To(Equal(mm.Frame(519)))
	})

	It("should account free frames", func() {
		f, _ := kernel.GetFrames(10)
		Expect(kernel.NumFreeFrames()).To(Equal(uint64(501)))

		Expect(kernel.ReleaseFrames(f)).To(Succeed())
		Expect(kernel.NumFreeFrames()).To(Equal(uint64(511)))
	})

	It("should return a run to its original state", func() {
		before := kernel.Snapshot()

		f, err := kernel.GetFrames(7)
		Expect(err).NotTo(HaveOccurred())
		Expect(registry.Release(f)).To(Succeed())

		Expect(kernel.Snapshot()).To(Equal(before))
		for i := mm.Frame(0); i < 7; i++ {
			state, _ := kernel.State(f + i)
			Expect(state).To(Equal(frame.Free))
		}
	})

	It("should not merge adjacent runs on release", func() {
		a, _ := kernel.GetFrames(2)
		b, _ := kernel.GetFrames(2)

		Expect(kernel.ReleaseFrames(a)).To(Succeed())

		state, _ := kernel.State(b)
		Expect(state).To(Equal(frame.HeadOfSequence))
		state, _ = kernel.State(b + 1)
		Expect(state).To(Equal(frame.Allocated))
		Expect(kernel.NumFreeFrames()).To(Equal(uint64(509)))
	})

	It("should reject releasing a frame that does not start a run", func() {
		f, _ := kernel.GetFrames(4)
		free := kernel.NumFreeFrames()

		err := kernel.ReleaseFrames(f + 1)
		Expect(err).To(MatchError(mm.ErrProtocolViolation))
		Expect(kernel.NumFreeFrames()).To(Equal(free))

		err = kernel.ReleaseFrames(f + 10)
		Expect(err).To(MatchError(mm.ErrProtocolViolation))
	})

	It("should reject a request for zero frames", func() {
		f, err := kernel.GetFrames(0)
		Expect(err).To(MatchError(mm.ErrProtocolViolation))
		Expect(f).To(Equal(mm.InvalidFrame))
	})

	It("should report exhaustion", func() {
		f, err := kernel.GetFrames(512)
		Expect(err).To(MatchError(mm.ErrResourceExhausted))
		Expect(f).To(Equal(mm.InvalidFrame))

		_, err = kernel.GetFrames(511)
		Expect(err).NotTo(HaveOccurred())

		_, err = kernel.GetFrames(1)
		Expect(err).To(MatchError(mm.ErrResourceExhausted))
	})

	It("should report fragmentation as exhaustion", func() {
		var heads []mm.Frame
		for i := 0; i < 511; i++ {
			f, err := kernel.GetFrames(1)
			Expect(err).NotTo(HaveOccurred())
			heads = append(heads, f)
		}

		for i := 0; i < len(heads); i += 2 {
			Expect(kernel.ReleaseFrames(heads[i])).To(Succeed())
		}

		_, err := kernel.GetFrames(2)
		Expect(err).To(MatchError(mm.ErrResourceExhausted))
		Expect(kernel.Snapshot().LargestRun).To(Equal(uint64(1)))
	})

	It("should never hand out frames marked inaccessible", func() {
		Expect(kernel.MarkInaccessible(520, 100)).To(Succeed())
		Expect(kernel.NumFreeFrames()).To(Equal(uint64(411)))

		for {
			f, err := kernel.GetFrames(1)
			if err != nil {
				Expect(err).To(MatchError(mm.ErrResourceExhausted))
				break
			}
			Expect(f < 520 || f >= 620).To(BeTrue())
		}
	})

	It("should reject marking a range outside the pool", func() {
		err := kernel.MarkInaccessible(1000, 100)
		Expect(err).To(MatchError(mm.ErrProtocolViolation))
	})

	It("should reject a mark whose length wraps around", func() {
		before := kernel.Snapshot()

		err := kernel.MarkInaccessible(600, math.MaxUint64-50)

		Expect(err).To(MatchError(mm.ErrProtocolViolation))
		Expect(kernel.Snapshot()).To(Equal(before))
		state, err := kernel.State(600)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(Equal(frame.Free))
	})

	It("should use an external info frame", func() {
		process, err := frame.MakeBuilder().
			WithMemory(memory).
			WithRegistry(registry).
			WithBaseFrame(1024).
			WithNumFrames(7168).
			WithInfoFrame(600).
			Build("ProcessPool")
		Expect(err).NotTo(HaveOccurred())

		Expect(process.NumFreeFrames()).To(Equal(uint64(7168)))

		f, err := process.GetFrames(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(f).To(Equal(mm.Frame(1024)))

		owner, found := registry.Owner(f)
		Expect(found).To(BeTrue())
		Expect(owner).To(BeIdenticalTo(process))
		Expect(registry.Pools()).To(HaveLen(2))
	})

	It("should reject overlapping pools", func() {
		_, err := frame.MakeBuilder().
			WithMemory(memory).
			WithRegistry(registry).
			WithBaseFrame(1000).
			WithNumFrames(64).
			WithInfoFrame(600).
			Build("Overlap")
		Expect(err).To(MatchError(frame.ErrInvalidLayout))
	})

	It("should leave an overlapped pool untouched when rejecting a pool", func() {
		f, err := kernel.GetFrames(4)
		Expect(err).NotTo(HaveOccurred())
		Expect(f).To(Equal(mm.Frame(513)))
		before := kernel.Snapshot()

		_, err = frame.MakeBuilder().
			WithMemory(memory).
			WithRegistry(registry).
			WithBaseFrame(512).
			WithNumFrames(64).
			Build("Overlap")
		Expect(err).To(MatchError(frame.ErrInvalidLayout))

		Expect(kernel.Snapshot()).To(Equal(before))
		state, err := kernel.State(513)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(Equal(frame.HeadOfSequence))
		Expect(kernel.GetFrames(1)).To(Equal(mm.Frame(517)))
		Expect(registry.Pools()).To(HaveLen(1))
	})

	It("should reject a frame count that is not a multiple of 8", func() {
		_, err := frame.MakeBuilder().
			WithMemory(memory).
			WithRegistry(registry).
			WithBaseFrame(2048).
			WithNumFrames(10).
			Build("Odd")
		Expect(err).To(MatchError(frame.ErrInvalidLayout))
	})

	It("should reject a pool beyond physical memory", func() {
		_, err := frame.MakeBuilder().
			WithMemory(memory).
			WithRegistry(registry).
			WithBaseFrame(8190).
			WithNumFrames(8).
			Build("Beyond")
		Expect(err).To(MatchError(frame.ErrInvalidLayout))
	})

	It("should release through the registry", func() {
		err := registry.Release(4000)
		Expect(err).To(MatchError(mm.ErrProtocolViolation))
	})

	It("should invoke hooks", func() {
		hook := hooking.NewCountHook()
		kernel.AcceptHook(hook)

		f, _ := kernel.GetFrames(2)
		_ = kernel.ReleaseFrames(f)
		_ = kernel.MarkInaccessible(600, 8)

		Expect(hook.Count(hooking.HookPosFramesAllocated)).To(Equal(uint64(1)))
		Expect(hook.Count(hooking.HookPosFramesReleased)).To(Equal(uint64(1)))
		Expect(hook.Count(hooking.HookPosFramesMarked)).To(Equal(uint64(1)))
	})
})

var _ = Describe("NeededInfoFrames", func() {
	It("should round up to whole frames", func() {
		Expect(frame.NeededInfoFrames(8)).To(Equal(uint64(1)))
		Expect(frame.NeededInfoFrames(7168)).To(Equal(uint64(1)))
		Expect(frame.NeededInfoFrames(16384)).To(Equal(uint64(1)))
		Expect(frame.NeededInfoFrames(16392)).To(Equal(uint64(2)))
		Expect(frame.NeededInfoFrames(65536)).To(Equal(uint64(4)))
	})
})

var _ = Describe("State", func() {
	It("should print", func() {
		Expect(frame.HeadOfSequence.String()).To(Equal("HeadOfSequence"))
		Expect(frame.State(2).String()).To(Equal("State(2)"))
	})
})
