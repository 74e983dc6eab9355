// Package mmu provides a software memory management unit. It walks the
// two-level translation structure stored in physical memory, caches the
// translations it finds and raises page faults to a registered handler.
package mmu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/mmu/internal"
	"github.com/sarchlab/pagesim/sim/hooking"
)

// ErrUnresolvedFault is returned when the fault handler returns without
// error but the access keeps faulting.
var ErrUnresolvedFault = errors.New("page fault not resolved by handler")

// ErrNoFaultHandler is returned when an access faults and no handler is
// registered.
var ErrNoFaultHandler = errors.New("no page fault handler registered")

// Memory is the physical memory behind the MMU.
type Memory interface {
	Read32(address uint64) (uint32, error)
	Write32(address uint64, value uint32) error
	Capacity() uint64
}

// A FaultHandler resolves page faults.
type FaultHandler interface {
	HandleFault(addr mm.VAddr, code vm.FaultCode) error
}

// A Fault is the error produced by a translation that cannot complete.
type Fault struct {
	Address mm.VAddr
	Code    vm.FaultCode
}

func (f *Fault) Error() string {
	return fmt.Sprintf("page fault at 0x%08x: %s",
		uint32(f.Address), f.Code.Describe())
}

// Stats counts the work done by the MMU.
type Stats struct {
	Accesses  uint64 `json:"accesses"`
	Faults    uint64 `json:"faults"`
	CacheHits uint64 `json:"cache_hits"`
	Walks     uint64 `json:"walks"`
	Flushes   uint64 `json:"flushes"`
}

// Comp is the software MMU.
//
// The root register holds the frame of the active directory. While paging is
// disabled, virtual addresses are physical addresses. The fault address
// register keeps the address of the last fault that was dispatched.
type Comp struct {
	hooking.HookableBase

	name     string
	memory   Memory
	maxRetry int

	lock      sync.Mutex
	root      mm.Frame
	paging    bool
	userMode  bool
	faultAddr mm.VAddr
	handler   FaultHandler
	cache     internal.Set
	stats     Stats
}

// Name returns the name of the MMU.
func (c *Comp) Name() string {
	return c.name
}

// RegisterFaultHandler sets the handler that page faults are dispatched to.
func (c *Comp) RegisterFaultHandler(h FaultHandler) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.handler = h
}

// LoadRoot installs the directory stored in frame as the active translation
// root. All cached translations are dropped.
func (c *Comp) LoadRoot(frame mm.Frame) {
	c.lock.Lock()
	c.root = frame
	c.cache.Reset()
	c.stats.Flushes++
	c.lock.Unlock()

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    hooking.HookPosTableLoaded,
		Item:   hooking.MappingInfo{Frame: uint64(frame)},
	})
}

// Root returns the frame of the active directory.
func (c *Comp) Root() mm.Frame {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.root
}

// EnablePaging turns address translation on.
func (c *Comp) EnablePaging() {
	c.lock.Lock()
	already := c.paging
	c.paging = true
	c.lock.Unlock()

	if already {
		return
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    hooking.HookPosPagingEnabled,
	})
}

// PagingEnabled returns true if address translation is on.
func (c *Comp) PagingEnabled() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.paging
}

// SetUserMode switches the privilege level of the accesses issued through
// Read32 and Write32.
func (c *Comp) SetUserMode(user bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.userMode = user
}

// FaultAddress returns the address of the last dispatched fault.
func (c *Comp) FaultAddress() mm.VAddr {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.faultAddr
}

// InvalidatePage drops the cached translation of one page.
func (c *Comp) InvalidatePage(page mm.Page) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.cache.Invalidate(page)
}

// Stats returns a copy of the counters.
func (c *Comp) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.stats
}

// Translate converts a virtual address to a physical address without raising
// a fault. A failed translation returns a *Fault.
func (c *Comp) Translate(
	addr mm.VAddr,
	write, user bool,
) (mm.PAddr, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.translate(addr, write, user)
}

// Read32 reads a 32-bit word at a virtual address. Faults are dispatched to
// the fault handler and the access is retried after the handler returns.
func (c *Comp) Read32(addr mm.VAddr) (uint32, error) {
	paddr, err := c.access(addr, false)
	if err != nil {
		return 0, err
	}

	return c.memory.Read32(uint64(paddr))
}

// Write32 writes a 32-bit word at a virtual address. Faults are dispatched
// the same way as in Read32.
func (c *Comp) Write32(addr mm.VAddr, value uint32) error {
	paddr, err := c.access(addr, true)
	if err != nil {
		return err
	}

	return c.memory.Write32(uint64(paddr), value)
}

// Peek32 reads a word at a virtual address in kernel mode. A fault is
// returned to the caller and is never dispatched, so it is safe to call from
// inside a fault handler.
func (c *Comp) Peek32(addr mm.VAddr) (uint32, error) {
	paddr, err := c.Translate(addr, false, false)
	if err != nil {
		return 0, err
	}

	return c.memory.Read32(uint64(paddr))
}

// Poke32 writes a word at a virtual address in kernel mode, with the same
// fault behavior as Peek32.
func (c *Comp) Poke32(addr mm.VAddr, value uint32) error {
	paddr, err := c.Translate(addr, true, false)
	if err != nil {
		return err
	}

	return c.memory.Write32(uint64(paddr), value)
}

func (c *Comp) access(addr mm.VAddr, write bool) (mm.PAddr, error) {
	for attempt := 0; ; attempt++ {
		c.lock.Lock()
		c.stats.Accesses++
		paddr, err := c.translate(addr, write, c.userMode)

		var fault *Fault
		if !errors.As(err, &fault) {
			c.lock.Unlock()
			return paddr, err
		}

		c.stats.Faults++
		c.faultAddr = addr
		handler := c.handler
		c.lock.Unlock()

		if attempt >= c.maxRetry {
			return 0, fmt.Errorf("%w: %v", ErrUnresolvedFault, fault)
		}

		if handler == nil {
			return 0, fmt.Errorf("%w: %v", ErrNoFaultHandler, fault)
		}

		if err := handler.HandleFault(addr, fault.Code); err != nil {
			return 0, err
		}
	}
}

func (c *Comp) translate(
	addr mm.VAddr,
	write, user bool,
) (mm.PAddr, error) {
	if !c.paging {
		return mm.PAddr(addr), nil
	}

	page := mm.PageFromAddress(addr)
	offset := mm.PAddr(vm.PageOffset(addr))

	if wayID, t, found := c.cache.Lookup(page); found {
		if permits(t.Entry, write, user) {
			c.cache.Visit(wayID)
			c.stats.CacheHits++

			return t.Entry.Frame().Address() + offset, nil
		}
	}

	c.stats.Walks++

	entry, err := c.walk(addr, write, user)
	if err != nil {
		return 0, err
	}

	c.fill(page, entry)

	return entry.Frame().Address() + offset, nil
}

// walk resolves the table entry for addr. The access must be allowed by the
// directory entry as well as by the table entry.
func (c *Comp) walk(addr mm.VAddr, write, user bool) (vm.Entry, error) {
	code := vm.FaultCode(0)
	if write {
		code |= vm.FaultWrite
	}
	if user {
		code |= vm.FaultUser
	}

	table := c.root
	indices := []uint32{vm.DirectoryIndex(addr), vm.TableIndex(addr)}

	var entry vm.Entry
	for _, index := range indices {
		raw, err := c.memory.Read32(uint64(vm.EntryAddr(table, index)))
		if err != nil {
			return 0, err
		}

		entry = vm.Entry(raw)
		if !entry.Present() {
			return 0, &Fault{Address: addr, Code: code}
		}

		if !permits(entry, write, user) {
			return 0, &Fault{Address: addr, Code: code | vm.FaultProtection}
		}

		table = entry.Frame()
	}

	return entry, nil
}

func (c *Comp) fill(page mm.Page, entry vm.Entry) {
	wayID, ok := c.cache.Evict()
	if !ok {
		return
	}

	c.cache.Update(wayID, internal.Translation{Page: page, Entry: entry})
	c.cache.Visit(wayID)
}

func permits(entry vm.Entry, write, user bool) bool {
	if write && !entry.HasFlags(vm.FlagRW) {
		return false
	}

	if user && !entry.HasFlags(vm.FlagUserAccessible) {
		return false
	}

	return true
}
