// Package vm provides the binary layout of the two-level translation
// structure: the 32-bit directory and table entries, the split of a virtual
// address into indices and the self-map window addresses.
package vm

import "github.com/sarchlab/pagesim/mem/mm"

// EntryFlag describes a flag that can be applied to a directory or table
// entry.
type EntryFlag uint32

const (
	// FlagPresent is set when the entry points to a valid table or frame.
	FlagPresent EntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode code can access the page. If
	// not set only kernel code can access it.
	FlagUserAccessible
)

// entryFrameMask extracts the frame-aligned physical address held in bits
// 31:12 of an entry.
const entryFrameMask = uint32(0xfffff000)

// Entry is one 32-bit directory or table entry.
type Entry uint32

// NewEntry creates an entry that points to frame with the given flags.
func NewEntry(frame mm.Frame, flags EntryFlag) Entry {
	var e Entry
	e.SetFrame(frame)
	e.SetFlags(flags)

	return e
}

// HasFlags returns true if this entry has all the input flags set.
func (e Entry) HasFlags(flags EntryFlag) bool {
	return (uint32(e) & uint32(flags)) == uint32(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags
// set.
func (e Entry) HasAnyFlag(flags EntryFlag) bool {
	return (uint32(e) & uint32(flags)) != 0
}

// SetFlags sets the input list of flags.
func (e *Entry) SetFlags(flags EntryFlag) {
	*e = Entry(uint32(*e) | uint32(flags))
}

// ClearFlags unsets the input list of flags.
func (e *Entry) ClearFlags(flags EntryFlag) {
	*e = Entry(uint32(*e) &^ uint32(flags))
}

// Flags returns the flag bits of the entry.
func (e Entry) Flags() EntryFlag {
	return EntryFlag(uint32(e) &^ entryFrameMask)
}

// Frame returns the physical frame that this entry points to.
func (e Entry) Frame() mm.Frame {
	return mm.Frame((uint32(e) & entryFrameMask) >> mm.PageShift)
}

// SetFrame updates the entry to point to the given physical frame.
func (e *Entry) SetFrame(frame mm.Frame) {
	addr := uint32(frame.Address()) & entryFrameMask
	*e = Entry((uint32(*e) &^ entryFrameMask) | addr)
}

// Present is a shorthand for HasFlags(FlagPresent).
func (e Entry) Present() bool {
	return e.HasFlags(FlagPresent)
}
