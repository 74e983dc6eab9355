package vm

import "github.com/sarchlab/pagesim/mem/mm"

const (
	// EntrySize is the size of one entry in bytes.
	EntrySize = 4

	// EntriesPerTable is the number of entries in a directory or a table.
	EntriesPerTable = mm.PageSize / EntrySize

	// indexBits is the number of virtual address bits used per level.
	indexBits = 10

	// indexMask keeps the low indexBits bits.
	indexMask = (1 << indexBits) - 1

	// directoryShift selects the top 10 bits of a virtual address.
	directoryShift = mm.PageShift + indexBits

	// TableSpan is the number of bytes of virtual address space covered
	// by one directory entry.
	TableSpan = uint64(1) << directoryShift

	// SelfMapIndex is the directory entry that maps the directory frame
	// back onto itself.
	SelfMapIndex = EntriesPerTable - 1
)

const (
	// TableWindow is the virtual address through which the tables of the
	// active structure are visible: table pdi lives at
	// TableWindow | pdi<<12.
	TableWindow = mm.VAddr(SelfMapIndex << directoryShift)

	// DirectoryWindow is the virtual address at which the active
	// directory itself is visible. Walking it resolves the self-map entry
	// twice.
	DirectoryWindow = TableWindow | mm.VAddr(SelfMapIndex<<mm.PageShift)
)

// DirectoryIndex returns the top 10 bits of a virtual address.
func DirectoryIndex(addr mm.VAddr) uint32 {
	return uint32(addr>>directoryShift) & indexMask
}

// TableIndex returns bits 21:12 of a virtual address.
func TableIndex(addr mm.VAddr) uint32 {
	return uint32(addr>>mm.PageShift) & indexMask
}

// PageOffset returns the offset of a virtual address inside its page.
func PageOffset(addr mm.VAddr) uint32 {
	return uint32(addr) & (mm.PageSize - 1)
}

// PageIndices splits a page number into its directory and table indices.
func PageIndices(page mm.Page) (directoryIndex, tableIndex uint32) {
	addr := page.Address()
	return DirectoryIndex(addr), TableIndex(addr)
}

// MakeAddr composes a virtual address from indices and an offset.
func MakeAddr(directoryIndex, tableIndex, offset uint32) mm.VAddr {
	return mm.VAddr(((directoryIndex & indexMask) << directoryShift) |
		((tableIndex & indexMask) << mm.PageShift) |
		(offset & (mm.PageSize - 1)))
}

// DirectoryEntryAddr returns the virtual address of directory entry
// directoryIndex inside the self-map window.
func DirectoryEntryAddr(directoryIndex uint32) mm.VAddr {
	return DirectoryWindow + mm.VAddr((directoryIndex&indexMask)*EntrySize)
}

// TableEntryAddr returns the virtual address of entry tableIndex of the table
// installed at directoryIndex, inside the self-map window.
func TableEntryAddr(directoryIndex, tableIndex uint32) mm.VAddr {
	return MakeAddr(SelfMapIndex, directoryIndex, (tableIndex&indexMask)*EntrySize)
}

// EntryAddr returns the physical address of entry index inside the directory
// or table stored in frame.
func EntryAddr(table mm.Frame, index uint32) mm.PAddr {
	return table.Address() + mm.PAddr((index&indexMask)*EntrySize)
}
