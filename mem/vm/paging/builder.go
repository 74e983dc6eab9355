package paging

import (
	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/mem/vm"
)

// A Builder can build paging managers.
type Builder struct {
	kernelPool  FrameSource
	processPool FrameSource
	releaser    FrameReleaser
	memory      PhysicalMemory
	cpu         CPU
	sharedSize  uint64
	userShared  bool
}

// MakeBuilder creates a builder with a 4 MiB shared region.
func MakeBuilder() Builder {
	return Builder{
		sharedSize: 4 * mm.MB,
	}
}

// WithKernelPool sets the pool that directories are taken from.
func (b Builder) WithKernelPool(p FrameSource) Builder {
	b.kernelPool = p
	return b
}

// WithProcessPool sets the pool that tables and data pages are taken from.
func (b Builder) WithProcessPool(p FrameSource) Builder {
	b.processPool = p
	return b
}

// WithFrameReleaser sets where unmapped frames are returned to.
func (b Builder) WithFrameReleaser(r FrameReleaser) Builder {
	b.releaser = r
	return b
}

// WithMemory sets the physical memory that holds the structures.
func (b Builder) WithMemory(memory PhysicalMemory) Builder {
	b.memory = memory
	return b
}

// WithCPU sets the CPU whose translation registers are driven.
func (b Builder) WithCPU(cpu CPU) Builder {
	b.cpu = cpu
	return b
}

// WithSharedSize sets the size of the region that is identity-mapped in
// every page table. It is rounded up to whole pages.
func (b Builder) WithSharedSize(size uint64) Builder {
	b.sharedSize = size
	return b
}

// WithUserShared makes the shared region accessible from user mode.
func (b Builder) WithUserShared(user bool) Builder {
	b.userShared = user
	return b
}

// Build creates a new manager.
func (b Builder) Build(name string) *Manager {
	b.mustBeValid()

	return &Manager{
		name:        name,
		kernelPool:  b.kernelPool,
		processPool: b.processPool,
		releaser:    b.releaser,
		memory:      b.memory,
		cpu:         b.cpu,
		window:      NewWindowAccessor(b.cpu),
		sharedSize:  mm.AlignUp(b.sharedSize),
		userShared:  b.userShared,
	}
}

func (b Builder) mustBeValid() {
	if b.kernelPool == nil || b.processPool == nil {
		panic("paging manager requires a kernel pool and a process pool")
	}

	if b.releaser == nil {
		panic("paging manager requires a frame releaser")
	}

	if b.memory == nil || b.cpu == nil {
		panic("paging manager requires a memory and a cpu")
	}

	if mm.AlignUp(b.sharedSize) > uint64(vm.TableWindow) {
		panic("shared region overlaps the self-map window")
	}
}
