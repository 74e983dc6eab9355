// Package vmpool provides region catalogs: pools of virtual address ranges
// that decide which faulting addresses are legitimate.
package vmpool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/mem/vm/paging"
	"github.com/sarchlab/pagesim/sim/hooking"
)

// A Region is a page-aligned virtual range.
type Region struct {
	Base   mm.VAddr `json:"base"`
	Length uint64   `json:"length"`
}

// End returns the first address after the region.
func (r Region) End() uint64 {
	return uint64(r.Base) + r.Length
}

// Contains returns true if addr falls into the region.
func (r Region) Contains(addr mm.VAddr) bool {
	return addr >= r.Base && uint64(addr) < r.End()
}

// Pages returns the pages covered by the region.
func (r Region) Pages() []mm.Page {
	first := mm.PageFromAddress(r.Base)
	n := mm.PagesForSize(r.Length)

	pages := make([]mm.Page, 0, n)
	for i := uint64(0); i < n; i++ {
		pages = append(pages, first+mm.Page(i))
	}

	return pages
}

// Mapper is the part of the paging manager that a pool uses to unmap the
// pages of a released region.
type Mapper interface {
	FreeTablePage(pt *paging.PageTable, page mm.Page) error
}

// Pool hands out page-aligned ranges from a fixed virtual window, first fit.
type Pool struct {
	hooking.HookableBase

	name   string
	window Region
	table  *paging.PageTable
	mapper Mapper

	lock      sync.RWMutex
	free      []Region
	allocated []Region
}

// Name returns the name of the pool.
func (p *Pool) Name() string {
	return p.name
}

// Window returns the virtual range managed by the pool.
func (p *Pool) Window() Region {
	return p.window
}

// Allocate reserves a range of at least size bytes and returns its base
// address.
func (p *Pool) Allocate(size uint64) (mm.VAddr, error) {
	if size == 0 {
		return 0, fmt.Errorf("%s: zero-sized allocation: %w",
			p.name, mm.ErrProtocolViolation)
	}

	length := mm.AlignUp(size)

	p.lock.Lock()

	i := p.firstFit(length)
	if i < 0 {
		p.lock.Unlock()

		return 0, fmt.Errorf("%s: no gap of %d bytes: %w",
			p.name, length, mm.ErrResourceExhausted)
	}

	region := Region{Base: p.free[i].Base, Length: length}
	p.free[i].Base += mm.VAddr(length)
	p.free[i].Length -= length
	if p.free[i].Length == 0 {
		p.free = append(p.free[:i], p.free[i+1:]...)
	}

	p.insertAllocated(region)

	p.lock.Unlock()

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    hooking.HookPosRegionAllocated,
		Item: hooking.RegionInfo{
			Base:   uint64(region.Base),
			Length: region.Length,
		},
	})

	return region.Base, nil
}

func (p *Pool) firstFit(length uint64) int {
	for i, r := range p.free {
		if r.Length >= length {
			return i
		}
	}

	return -1
}

func (p *Pool) insertAllocated(region Region) {
	i := sort.Search(len(p.allocated), func(i int) bool {
		return p.allocated[i].Base > region.Base
	})

	p.allocated = append(p.allocated, Region{})
	copy(p.allocated[i+1:], p.allocated[i:])
	p.allocated[i] = region
}

// Release returns the region that starts at addr to the pool. Pages of the
// region that were mapped on demand are unmapped from the pool's page table,
// whether or not that table is the active one. The range becomes available
// again only after all its pages are unmapped; if unmapping fails the region
// stays allocated and Release can be retried.
func (p *Pool) Release(addr mm.VAddr) error {
	p.lock.Lock()

	i := p.findAllocated(addr)
	if i < 0 {
		p.lock.Unlock()

		return fmt.Errorf("%s: no region starts at 0x%08x: %w",
			p.name, uint32(addr), mm.ErrProtocolViolation)
	}

	region := p.allocated[i]
	p.allocated = append(p.allocated[:i], p.allocated[i+1:]...)

	p.lock.Unlock()

	if err := p.unmap(region); err != nil {
		p.lock.Lock()
		p.insertAllocated(region)
		p.lock.Unlock()

		return err
	}

	p.lock.Lock()
	p.insertFree(region)
	p.lock.Unlock()

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    hooking.HookPosRegionReleased,
		Item: hooking.RegionInfo{
			Base:   uint64(region.Base),
			Length: region.Length,
		},
	})

	return nil
}

func (p *Pool) findAllocated(addr mm.VAddr) int {
	i := sort.Search(len(p.allocated), func(i int) bool {
		return p.allocated[i].Base >= addr
	})

	if i < len(p.allocated) && p.allocated[i].Base == addr {
		return i
	}

	return -1
}

// insertFree adds a range to the free list, merging it with the neighbors it
// touches.
func (p *Pool) insertFree(region Region) {
	i := sort.Search(len(p.free), func(i int) bool {
		return p.free[i].Base > region.Base
	})

	if i > 0 && p.free[i-1].End() == uint64(region.Base) {
		p.free[i-1].Length += region.Length

		if i < len(p.free) && p.free[i-1].End() == uint64(p.free[i].Base) {
			p.free[i-1].Length += p.free[i].Length
			p.free = append(p.free[:i], p.free[i+1:]...)
		}

		return
	}

	if i < len(p.free) && region.End() == uint64(p.free[i].Base) {
		p.free[i].Base = region.Base
		p.free[i].Length += region.Length

		return
	}

	p.free = append(p.free, Region{})
	copy(p.free[i+1:], p.free[i:])
	p.free[i] = region
}

func (p *Pool) unmap(region Region) error {
	if p.mapper == nil || p.table == nil {
		return nil
	}

	for _, page := range region.Pages() {
		mapped, err := p.table.IsMapped(page)
		if err != nil {
			return err
		}

		if !mapped {
			continue
		}

		if err := p.mapper.FreeTablePage(p.table, page); err != nil {
			return err
		}
	}

	return nil
}

// IsLegitimate returns true if addr falls into an allocated region.
func (p *Pool) IsLegitimate(addr mm.VAddr) bool {
	p.lock.RLock()
	defer p.lock.RUnlock()

	i := sort.Search(len(p.allocated), func(i int) bool {
		return p.allocated[i].Base > addr
	})

	return i > 0 && p.allocated[i-1].Contains(addr)
}

// Regions returns the allocated regions in address order.
func (p *Pool) Regions() []Region {
	p.lock.RLock()
	defer p.lock.RUnlock()

	regions := make([]Region, len(p.allocated))
	copy(regions, p.allocated)

	return regions
}

// FreeRegions returns the gaps in address order.
func (p *Pool) FreeRegions() []Region {
	p.lock.RLock()
	defer p.lock.RUnlock()

	regions := make([]Region, len(p.free))
	copy(regions, p.free)

	return regions
}
