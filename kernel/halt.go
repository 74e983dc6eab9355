package kernel

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/sim/hooking"
)

var exitFn = atexit.Exit

// HaltPolicy receives the errors that reach the top level and decides whether
// the machine halts. Fatal errors are reported to the hooks and then end the
// process through atexit, so that registered flushers still run. Other errors
// are handed back to the caller.
type HaltPolicy struct {
	hooking.HookableBase
	halted bool
}

// NewHaltPolicy creates a HaltPolicy.
func NewHaltPolicy() *HaltPolicy {
	return &HaltPolicy{}
}

// Name returns "Kernel".
func (h *HaltPolicy) Name() string {
	return "Kernel"
}

// Check halts on fatal errors and returns all others unchanged.
func (h *HaltPolicy) Check(err error) error {
	if err == nil {
		return nil
	}

	if mm.IsFatal(err) {
		h.Halt(err)
	}

	return err
}

// Halt reports err and exits with status 1.
func (h *HaltPolicy) Halt(err error) {
	h.halted = true

	h.InvokeHook(hooking.HookCtx{
		Domain: h,
		Pos:    hooking.HookPosFatal,
		Detail: err,
	})

	exitFn(1)
}

// Halted returns true once Halt has been called.
func (h *HaltPolicy) Halted() bool {
	return h.halted
}
