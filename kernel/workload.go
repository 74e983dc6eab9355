package kernel

import (
	"errors"
	"fmt"

	"github.com/sarchlab/pagesim/mem/mm"
)

// ErrCheckFailed is returned when a workload reads back a value other than
// the one it wrote.
var ErrCheckFailed = errors.New("memory check failed")

// WordAccessor reads and writes 32-bit words at virtual addresses.
type WordAccessor interface {
	Read32(addr mm.VAddr) (uint32, error)
	Write32(addr mm.VAddr, value uint32) error
}

// Allocator hands out virtual ranges.
type Allocator interface {
	Name() string
	Allocate(size uint64) (mm.VAddr, error)
	Release(addr mm.VAddr) error
	IsLegitimate(addr mm.VAddr) bool
}

// Progress is told about the work a workload has done.
type Progress interface {
	IncrementFinished(amount uint64)
}

type noProgress struct{}

func (noProgress) IncrementFinished(uint64) {}

const wordSize = 4

// PageTableReferences writes the index of each of n words starting at start
// and then reads them all back.
func PageTableReferences(
	cpu WordAccessor,
	start mm.VAddr,
	n uint32,
	progress Progress,
) error {
	if progress == nil {
		progress = noProgress{}
	}

	if err := fillWords(cpu, start, n); err != nil {
		return err
	}

	for i := uint32(0); i < n; i++ {
		if err := checkWord(cpu, start, i); err != nil {
			return err
		}
		progress.IncrementFinished(1)
	}

	return nil
}

// RegionReferences runs size1-1 rounds against pool. Round i allocates an
// array of size2*i words, checks that the array start is legitimate, fills
// it, verifies it backwards and releases it.
func RegionReferences(
	cpu WordAccessor,
	pool Allocator,
	size1, size2 uint32,
	progress Progress,
) error {
	if progress == nil {
		progress = noProgress{}
	}

	for i := uint32(1); i < size1; i++ {
		n := size2 * i

		arr, err := pool.Allocate(uint64(n) * wordSize)
		if err != nil {
			return err
		}

		if !pool.IsLegitimate(arr) {
			return fmt.Errorf("%s: address 0x%08x not legitimate after allocation: %w",
				pool.Name(), uint32(arr), ErrCheckFailed)
		}

		if err := fillWords(cpu, arr, n); err != nil {
			return err
		}

		for j := n; j > 0; j-- {
			if err := checkWord(cpu, arr, j-1); err != nil {
				return err
			}
		}

		if err := pool.Release(arr); err != nil {
			return err
		}

		progress.IncrementFinished(1)
	}

	return nil
}

func fillWords(cpu WordAccessor, start mm.VAddr, n uint32) error {
	for i := uint32(0); i < n; i++ {
		if err := cpu.Write32(start+mm.VAddr(i*wordSize), i); err != nil {
			return err
		}
	}

	return nil
}

func checkWord(cpu WordAccessor, start mm.VAddr, i uint32) error {
	addr := start + mm.VAddr(i*wordSize)

	v, err := cpu.Read32(addr)
	if err != nil {
		return err
	}

	if v != i {
		return fmt.Errorf("word at 0x%08x: want %d, got %d: %w",
			uint32(addr), i, v, ErrCheckFailed)
	}

	return nil
}
