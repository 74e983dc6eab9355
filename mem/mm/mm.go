// Package mm defines the basic memory-management types shared by the frame
// allocator and the virtual memory system.
package mm

import "math"

const (
	// PageShift is equal to log2(PageSize). It converts between addresses
	// and page or frame numbers.
	PageShift = 12

	// PageSize defines the size of a page and of a frame in bytes.
	PageSize = 1 << PageShift
)

// Common memory block sizes.
const (
	KB uint64 = 1 << 10
	MB uint64 = 1 << 20
	GB uint64 = 1 << 30
)

// PAddr is a physical memory address.
type PAddr uint64

// VAddr is a 32-bit virtual memory address.
type VAddr uint32

// Frame describes a physical memory page index.
type Frame uint64

// InvalidFrame is returned together with an error by the frame allocators
// when they fail to reserve the requested frames.
const InvalidFrame = Frame(0)

// NoFrame is the largest representable frame number. It is never owned by any
// pool.
const NoFrame = Frame(math.MaxUint64)

// Address returns the physical address where this frame starts.
func (f Frame) Address() PAddr {
	return PAddr(f << PageShift)
}

// FrameFromAddress returns the Frame that contains the given physical address.
func FrameFromAddress(addr PAddr) Frame {
	return Frame(addr >> PageShift)
}

// Page describes a virtual memory page index. Only the low 20 bits are used.
type Page uint32

// Address returns the virtual address where this page starts.
func (p Page) Address() VAddr {
	return VAddr(p << PageShift)
}

// PageFromAddress returns the Page that contains the given virtual address.
// Unaligned addresses are rounded down.
func PageFromAddress(addr VAddr) Page {
	return Page(addr >> PageShift)
}

// PagesForSize returns the number of pages needed to hold size bytes.
func PagesForSize(size uint64) uint64 {
	return (size + PageSize - 1) >> PageShift
}

// AlignUp rounds size up to the next page boundary.
func AlignUp(size uint64) uint64 {
	return PagesForSize(size) << PageShift
}
