// Package paging builds two-level translation structures and resolves page
// faults by mapping frames on demand.
//
// A Manager is the paging state of one machine: the pools that back
// directories, tables and data pages, the active page table and the chain of
// region catalogs that decide whether a faulting address is legitimate. The
// fault path edits the active structure through the self-map window only.
package paging

import (
	"fmt"
	"sync"

	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/sim/hooking"
)

// Stats counts the work done by the fault path.
type Stats struct {
	Faults    uint64 `json:"faults"`
	NewTables uint64 `json:"new_tables"`
	Mapped    uint64 `json:"mapped"`
	Freed     uint64 `json:"freed"`
}

// Manager owns the paging state.
type Manager struct {
	hooking.HookableBase

	name        string
	kernelPool  FrameSource
	processPool FrameSource
	releaser    FrameReleaser
	memory      PhysicalMemory
	cpu         CPU
	window      EntryAccessor
	sharedSize  uint64
	userShared  bool

	lock     sync.Mutex
	current  *PageTable
	enabled  bool
	catalogs []RegionCatalog
	stats    Stats
}

// Name returns the name of the manager.
func (m *Manager) Name() string {
	return m.name
}

// SharedSize returns the size of the identity-mapped shared region.
func (m *Manager) SharedSize() uint64 {
	return m.sharedSize
}

// NewPageTable builds a new translation structure. The directory comes from
// the kernel pool and the tables that map the shared region come from the
// process pool. The structure is written through physical memory, as it is
// not active yet.
func (m *Manager) NewPageTable() (*PageTable, error) {
	directory, err := m.kernelPool.GetFrames(1)
	if err != nil {
		return nil, fmt.Errorf("%s: directory: %w", m.name, err)
	}

	pt := &PageTable{
		manager:   m,
		directory: directory,
		physical:  NewPhysicalAccessor(m.memory, directory),
	}

	if err := m.initDirectory(pt); err != nil {
		return nil, err
	}

	numTables := (m.sharedSize + vm.TableSpan - 1) / vm.TableSpan
	if numTables == 0 {
		numTables = 1
	}

	for i := uint32(0); i < uint32(numTables); i++ {
		if err := m.initSharedTable(pt, i); err != nil {
			return nil, err
		}
	}

	return pt, nil
}

func (m *Manager) sharedFlags() vm.EntryFlag {
	flags := vm.FlagPresent | vm.FlagRW
	if m.userShared {
		flags |= vm.FlagUserAccessible
	}

	return flags
}

func (m *Manager) initDirectory(pt *PageTable) error {
	for pdi := uint32(0); pdi < vm.EntriesPerTable; pdi++ {
		e := vm.Entry(vm.FlagRW)
		if pdi == vm.SelfMapIndex {
			e = vm.NewEntry(pt.directory, vm.FlagPresent|vm.FlagRW)
		}

		if err := pt.physical.SetDirectoryEntry(pdi, e); err != nil {
			return fmt.Errorf("%s: directory: %w", m.name, err)
		}
	}

	return nil
}

func (m *Manager) initSharedTable(pt *PageTable, pdi uint32) error {
	table, err := m.processPool.GetFrames(1)
	if err != nil {
		return fmt.Errorf("%s: shared table: %w", m.name, err)
	}

	err = pt.physical.SetDirectoryEntry(pdi, vm.NewEntry(table, m.sharedFlags()))
	if err != nil {
		return fmt.Errorf("%s: shared table: %w", m.name, err)
	}

	pt.addTable(table)

	for pti := uint32(0); pti < vm.EntriesPerTable; pti++ {
		page := mm.PageFromAddress(vm.MakeAddr(pdi, pti, 0))

		e := vm.Entry(vm.FlagUserAccessible)
		if uint64(page.Address()) < m.sharedSize {
			e = vm.NewEntry(mm.Frame(page), m.sharedFlags())
		}

		if err := pt.physical.SetTableEntry(pdi, pti, e); err != nil {
			return fmt.Errorf("%s: shared table: %w", m.name, err)
		}
	}

	return nil
}

// Load makes pt the active page table and flushes cached translations.
func (m *Manager) Load(pt *PageTable) {
	m.lock.Lock()
	m.current = pt
	m.lock.Unlock()

	m.cpu.LoadRoot(pt.directory)
}

// Current returns the active page table, or nil if none is loaded.
func (m *Manager) Current() *PageTable {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.current
}

// Enable turns paging on. It must be called exactly once, after a page table
// has been loaded.
func (m *Manager) Enable() error {
	m.lock.Lock()

	if m.enabled {
		m.lock.Unlock()
		return fmt.Errorf("%s: paging already enabled: %w",
			m.name, mm.ErrProtocolViolation)
	}

	if m.current == nil {
		m.lock.Unlock()
		return fmt.Errorf("%s: no page table loaded: %w",
			m.name, mm.ErrProtocolViolation)
	}

	m.enabled = true
	m.lock.Unlock()

	m.cpu.EnablePaging()

	return nil
}

// PagingEnabled returns true once Enable has succeeded.
func (m *Manager) PagingEnabled() bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.enabled
}

// RegisterCatalog appends a catalog to the chain consulted by the fault
// handler. Catalogs cannot be removed.
func (m *Manager) RegisterCatalog(c RegionCatalog) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.catalogs = append(m.catalogs, c)
}

// Catalogs returns the catalog chain in registration order.
func (m *Manager) Catalogs() []RegionCatalog {
	m.lock.Lock()
	defer m.lock.Unlock()

	catalogs := make([]RegionCatalog, len(m.catalogs))
	copy(catalogs, m.catalogs)

	return catalogs
}

// Stats returns a copy of the fault path counters.
func (m *Manager) Stats() Stats {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.stats
}

func (m *Manager) isLegitimate(addr mm.VAddr) bool {
	if len(m.catalogs) == 0 {
		return true
	}

	for _, c := range m.catalogs {
		if c.IsLegitimate(addr) {
			return true
		}
	}

	return false
}
