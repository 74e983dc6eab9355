package paging

import "github.com/sarchlab/pagesim/mem/mm"

// A FrameSource hands out runs of contiguous frames.
type FrameSource interface {
	GetFrames(n uint64) (mm.Frame, error)
}

// A FrameReleaser takes a run back, given the first frame of the run.
type FrameReleaser interface {
	Release(first mm.Frame) error
}

// A CPU provides the translation registers and kernel-mode virtual accesses
// that do not dispatch faults.
type CPU interface {
	LoadRoot(frame mm.Frame)
	EnablePaging()
	Peek32(addr mm.VAddr) (uint32, error)
	Poke32(addr mm.VAddr, value uint32) error
}

// PhysicalMemory gives word access to physical memory.
type PhysicalMemory interface {
	Read32(address uint64) (uint32, error)
	Write32(address uint64, value uint32) error
}

// A RegionCatalog knows which virtual addresses have been handed out.
type RegionCatalog interface {
	Name() string
	IsLegitimate(addr mm.VAddr) bool
}
