package paging

import (
	"sync"

	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/mem/vm"
)

// A PageTable is one two-level translation structure. The directory is the
// root; each present directory entry points to a table and each present
// table entry points to a data frame.
type PageTable struct {
	manager   *Manager
	directory mm.Frame
	physical  EntryAccessor

	lock   sync.Mutex
	tables []mm.Frame
}

// A Mapping is one present leaf entry of a page table.
type Mapping struct {
	Page  mm.Page      `json:"page"`
	Frame mm.Frame     `json:"frame"`
	Flags vm.EntryFlag `json:"flags"`
}

// DirectoryFrame returns the frame that holds the directory.
func (pt *PageTable) DirectoryFrame() mm.Frame {
	return pt.directory
}

// Tables returns the frames of the tables installed in the directory, in the
// order they were installed.
func (pt *PageTable) Tables() []mm.Frame {
	pt.lock.Lock()
	defer pt.lock.Unlock()

	tables := make([]mm.Frame, len(pt.tables))
	copy(tables, pt.tables)

	return tables
}

func (pt *PageTable) addTable(frame mm.Frame) {
	pt.lock.Lock()
	defer pt.lock.Unlock()

	pt.tables = append(pt.tables, frame)
}

// Load makes this page table the active one.
func (pt *PageTable) Load() {
	pt.manager.Load(pt)
}

// IsMapped returns true if the page has a present table entry.
func (pt *PageTable) IsMapped(page mm.Page) (bool, error) {
	directoryIndex, tableIndex := vm.PageIndices(page)

	pde, err := pt.physical.DirectoryEntry(directoryIndex)
	if err != nil || !pde.Present() {
		return false, err
	}

	pte, err := pt.physical.TableEntry(directoryIndex, tableIndex)
	if err != nil {
		return false, err
	}

	return pte.Present(), nil
}

// Translate walks the structure in physical memory and returns the physical
// address behind addr. The second return value is false if the address is not
// mapped.
func (pt *PageTable) Translate(addr mm.VAddr) (mm.PAddr, bool, error) {
	pde, err := pt.physical.DirectoryEntry(vm.DirectoryIndex(addr))
	if err != nil || !pde.Present() {
		return 0, false, err
	}

	pte, err := pt.physical.TableEntry(vm.DirectoryIndex(addr), vm.TableIndex(addr))
	if err != nil || !pte.Present() {
		return 0, false, err
	}

	return pte.Frame().Address() + mm.PAddr(vm.PageOffset(addr)), true, nil
}

// Entries lists every present leaf mapping, in page order. The self-map
// window is skipped.
func (pt *PageTable) Entries() ([]Mapping, error) {
	var mappings []Mapping

	for pdi := uint32(0); pdi < vm.SelfMapIndex; pdi++ {
		pde, err := pt.physical.DirectoryEntry(pdi)
		if err != nil {
			return nil, err
		}

		if !pde.Present() {
			continue
		}

		for pti := uint32(0); pti < vm.EntriesPerTable; pti++ {
			pte, err := pt.physical.TableEntry(pdi, pti)
			if err != nil {
				return nil, err
			}

			if !pte.Present() {
				continue
			}

			mappings = append(mappings, Mapping{
				Page:  mm.PageFromAddress(vm.MakeAddr(pdi, pti, 0)),
				Frame: pte.Frame(),
				Flags: pte.Flags(),
			})
		}
	}

	return mappings, nil
}
