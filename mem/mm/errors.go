package mm

import "errors"

// The error taxonomy of the memory system. Components wrap these errors with
// fmt.Errorf so that callers can classify failures with errors.Is.
var (
	// ErrResourceExhausted reports that no frames or no virtual range large
	// enough is left.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrProtocolViolation reports a request that does not match the state
	// of the allocator, such as releasing a frame that does not start a run.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrIllegalAccess reports a fault on an address that no region catalog
	// covers.
	ErrIllegalAccess = errors.New("illegal access")

	// ErrUnsupportedFault reports a protection fault, which the demand
	// pager does not resolve.
	ErrUnsupportedFault = errors.New("unsupported fault")
)

// IsFatal returns true if err must halt the system.
func IsFatal(err error) bool {
	return errors.Is(err, ErrResourceExhausted) ||
		errors.Is(err, ErrIllegalAccess) ||
		errors.Is(err, ErrUnsupportedFault)
}
