package paging

import (
	"fmt"

	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/sim/hooking"
)

// HandleFault resolves a fault on addr by mapping a fresh frame from the
// process pool, creating the table first if the directory entry is absent.
// Protection faults and faults on addresses that no catalog covers are not
// resolved.
func (m *Manager) HandleFault(addr mm.VAddr, code vm.FaultCode) error {
	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    hooking.HookPosPageFault,
		Item:   hooking.FaultInfo{Address: uint64(addr), ErrorCode: uint64(code)},
	})

	if code.Has(vm.FaultProtection) {
		return fmt.Errorf("%s: 0x%08x: %s: %w",
			m.name, uint32(addr), code.Describe(), mm.ErrUnsupportedFault)
	}

	m.lock.Lock()
	m.stats.Faults++

	mapping, mapped, err := m.mapOnDemand(addr)

	m.lock.Unlock()

	if err != nil {
		return fmt.Errorf("%s: 0x%08x: %w", m.name, uint32(addr), err)
	}

	if mapped {
		m.InvokeHook(hooking.HookCtx{
			Domain: m,
			Pos:    hooking.HookPosPageMapped,
			Item:   mapping,
		})
	}

	return nil
}

// mapOnDemand must be called with the lock held.
func (m *Manager) mapOnDemand(addr mm.VAddr) (
	mapping hooking.MappingInfo,
	mapped bool,
	err error,
) {
	if m.current == nil {
		return mapping, false, fmt.Errorf("no page table loaded: %w",
			mm.ErrProtocolViolation)
	}

	if !m.isLegitimate(addr) {
		return mapping, false, fmt.Errorf("no region covers the address: %w",
			mm.ErrIllegalAccess)
	}

	directoryIndex := vm.DirectoryIndex(addr)
	tableIndex := vm.TableIndex(addr)

	pde, err := m.window.DirectoryEntry(directoryIndex)
	if err != nil {
		return mapping, false, err
	}

	if !pde.Present() {
		if err := m.installTable(directoryIndex); err != nil {
			return mapping, false, err
		}

		mapping.NewTable = true
	} else {
		pte, err := m.window.TableEntry(directoryIndex, tableIndex)
		if err != nil {
			return mapping, false, err
		}

		// Another fault mapped the page first.
		if pte.Present() {
			return mapping, false, nil
		}
	}

	data, err := m.processPool.GetFrames(1)
	if err != nil {
		return mapping, false, err
	}

	pte := vm.NewEntry(data, vm.FlagPresent|vm.FlagRW|vm.FlagUserAccessible)
	if err := m.window.SetTableEntry(directoryIndex, tableIndex, pte); err != nil {
		return mapping, false, err
	}

	m.stats.Mapped++
	mapping.Page = uint64(mm.PageFromAddress(addr))
	mapping.Frame = uint64(data)

	return mapping, true, nil
}

func (m *Manager) installTable(directoryIndex uint32) error {
	table, err := m.processPool.GetFrames(1)
	if err != nil {
		return err
	}

	pde := vm.NewEntry(table, vm.FlagPresent|vm.FlagRW|vm.FlagUserAccessible)
	if err := m.window.SetDirectoryEntry(directoryIndex, pde); err != nil {
		return err
	}

	for pti := uint32(0); pti < vm.EntriesPerTable; pti++ {
		err := m.window.SetTableEntry(directoryIndex, pti,
			vm.Entry(vm.FlagUserAccessible))
		if err != nil {
			return err
		}
	}

	m.current.addTable(table)
	m.stats.NewTables++

	return nil
}

// FreePage unmaps a page of the active page table and returns its frame to
// the pool that owns it. Only the present bit of the entry is cleared.
func (m *Manager) FreePage(page mm.Page) error {
	current := m.Current()
	if current == nil {
		return fmt.Errorf("%s: page 0x%05x: no page table loaded: %w",
			m.name, uint32(page), mm.ErrProtocolViolation)
	}

	return m.FreeTablePage(current, page)
}

// FreeTablePage unmaps a page of the given page table. The active table is
// edited through the self-map window and the translation cache is flushed;
// an inactive table is edited in physical memory.
func (m *Manager) FreeTablePage(pt *PageTable, page mm.Page) error {
	m.lock.Lock()

	accessor := pt.physical
	active := pt == m.current
	if active {
		accessor = m.window
	}

	frame, err := m.unmap(accessor, page)

	m.lock.Unlock()

	if err != nil {
		return fmt.Errorf("%s: page 0x%05x: %w", m.name, uint32(page), err)
	}

	if active {
		m.cpu.LoadRoot(pt.directory)
	}

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    hooking.HookPosPageFreed,
		Item: hooking.MappingInfo{
			Page:  uint64(page),
			Frame: uint64(frame),
		},
	})

	return nil
}

// unmap must be called with the lock held.
func (m *Manager) unmap(accessor EntryAccessor, page mm.Page) (mm.Frame, error) {
	directoryIndex, tableIndex := vm.PageIndices(page)

	pde, err := accessor.DirectoryEntry(directoryIndex)
	if err != nil {
		return 0, err
	}

	if !pde.Present() {
		return 0, fmt.Errorf("not mapped: %w", mm.ErrProtocolViolation)
	}

	pte, err := accessor.TableEntry(directoryIndex, tableIndex)
	if err != nil {
		return 0, err
	}

	if !pte.Present() {
		return 0, fmt.Errorf("not mapped: %w", mm.ErrProtocolViolation)
	}

	frame := pte.Frame()
	if err := m.releaser.Release(frame); err != nil {
		return 0, err
	}

	pte.ClearFlags(vm.FlagPresent)
	if err := accessor.SetTableEntry(directoryIndex, tableIndex, pte); err != nil {
		return 0, err
	}

	m.stats.Freed++

	return frame, nil
}
