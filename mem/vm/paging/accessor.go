package paging

import (
	"fmt"

	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/mem/vm"
)

// An EntryAccessor reads and writes the directory and table entries of one
// translation structure.
type EntryAccessor interface {
	DirectoryEntry(directoryIndex uint32) (vm.Entry, error)
	SetDirectoryEntry(directoryIndex uint32, e vm.Entry) error
	TableEntry(directoryIndex, tableIndex uint32) (vm.Entry, error)
	SetTableEntry(directoryIndex, tableIndex uint32, e vm.Entry) error
}

// NewWindowAccessor returns an accessor that reaches the entries of the
// active structure through the self-map window. It only works while paging
// is enabled and the self-map entry is installed in the active directory.
func NewWindowAccessor(cpu CPU) EntryAccessor {
	return windowAccessor{cpu: cpu}
}

type windowAccessor struct {
	cpu CPU
}

func (a windowAccessor) DirectoryEntry(directoryIndex uint32) (vm.Entry, error) {
	raw, err := a.cpu.Peek32(vm.DirectoryEntryAddr(directoryIndex))
	return vm.Entry(raw), err
}

func (a windowAccessor) SetDirectoryEntry(directoryIndex uint32, e vm.Entry) error {
	return a.cpu.Poke32(vm.DirectoryEntryAddr(directoryIndex), uint32(e))
}

func (a windowAccessor) TableEntry(directoryIndex, tableIndex uint32) (vm.Entry, error) {
	raw, err := a.cpu.Peek32(vm.TableEntryAddr(directoryIndex, tableIndex))
	return vm.Entry(raw), err
}

func (a windowAccessor) SetTableEntry(directoryIndex, tableIndex uint32, e vm.Entry) error {
	return a.cpu.Poke32(vm.TableEntryAddr(directoryIndex, tableIndex), uint32(e))
}

// NewPhysicalAccessor returns an accessor that reaches the entries of the
// structure rooted at directory through physical memory. It works whether or
// not the structure is active.
func NewPhysicalAccessor(memory PhysicalMemory, directory mm.Frame) EntryAccessor {
	return physicalAccessor{memory: memory, directory: directory}
}

type physicalAccessor struct {
	memory    PhysicalMemory
	directory mm.Frame
}

func (a physicalAccessor) DirectoryEntry(directoryIndex uint32) (vm.Entry, error) {
	raw, err := a.memory.Read32(uint64(vm.EntryAddr(a.directory, directoryIndex)))
	return vm.Entry(raw), err
}

func (a physicalAccessor) SetDirectoryEntry(directoryIndex uint32, e vm.Entry) error {
	return a.memory.Write32(
		uint64(vm.EntryAddr(a.directory, directoryIndex)), uint32(e))
}

func (a physicalAccessor) table(directoryIndex uint32) (mm.Frame, error) {
	pde, err := a.DirectoryEntry(directoryIndex)
	if err != nil {
		return 0, err
	}

	if !pde.Present() {
		return 0, fmt.Errorf("directory entry %d is not present: %w",
			directoryIndex, mm.ErrProtocolViolation)
	}

	return pde.Frame(), nil
}

func (a physicalAccessor) TableEntry(directoryIndex, tableIndex uint32) (vm.Entry, error) {
	table, err := a.table(directoryIndex)
	if err != nil {
		return 0, err
	}

	raw, err := a.memory.Read32(uint64(vm.EntryAddr(table, tableIndex)))

	return vm.Entry(raw), err
}

func (a physicalAccessor) SetTableEntry(directoryIndex, tableIndex uint32, e vm.Entry) error {
	table, err := a.table(directoryIndex)
	if err != nil {
		return err
	}

	return a.memory.Write32(uint64(vm.EntryAddr(table, tableIndex)), uint32(e))
}
