package vm

// FaultCode is the error code that comes with a page fault.
type FaultCode uint32

const (
	// FaultProtection is set when the page was present and the access
	// violated its protection. When clear, the page was not present.
	FaultProtection FaultCode = 1 << iota

	// FaultWrite is set when the faulting access was a write.
	FaultWrite

	// FaultUser is set when the faulting access came from user mode.
	FaultUser
)

// Has returns true if all bits of c are set.
func (f FaultCode) Has(c FaultCode) bool {
	return f&c == c
}

// Describe returns a short description of the fault reason.
func (f FaultCode) Describe() string {
	switch f &^ FaultUser {
	case 0:
		return "read from non-present page"
	case FaultProtection:
		return "page protection violation (read)"
	case FaultWrite:
		return "write to non-present page"
	case FaultProtection | FaultWrite:
		return "page protection violation (write)"
	default:
		return "unknown"
	}
}
