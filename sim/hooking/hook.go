// Package hooking provides the hook mechanism that memory-system components
// use to report what they are doing.
package hooking

import "sync"

// HookPos defines the enum of possible hooking positions.
type HookPos struct {
	Name string
}

// HookCtx is the context that holds all the information about the site that a
// hook is triggered.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable defines an object that accept Hooks.
type Hookable interface {
	// Name returns the name of the object that triggers the hook.
	Name() string

	// AcceptHook registers a hook.
	AcceptHook(hook Hook)

	// NumHooks returns the number of hooks registered.
	NumHooks() int

	// Hooks returns all the hooks registered.
	Hooks() []Hook
}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// HookFunc adapts a plain function into a Hook.
type HookFunc func(ctx HookCtx)

// Func calls f(ctx).
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// A HookableBase provides some utility function for other type that implement
// the Hookable interface.
type HookableBase struct {
	lock     sync.RWMutex
	hookList []Hook
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	h.lock.RLock()
	defer h.lock.RUnlock()

	return len(h.hookList)
}

// Hooks returns all the hooks registered.
func (h *HookableBase) Hooks() []Hook {
	h.lock.RLock()
	defer h.lock.RUnlock()

	hooks := make([]Hook, len(h.hookList))
	copy(hooks, h.hookList)

	return hooks
}

// AcceptHook register a hook.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.mustNotHaveDuplicatedHook(hook)
	h.hookList = append(h.hookList, hook)
}

func (h *HookableBase) mustNotHaveDuplicatedHook(hook Hook) {
	if _, isFunc := hook.(HookFunc); isFunc {
		return
	}

	for _, h := range h.hookList {
		if h == hook {
			panic("duplicated hook")
		}
	}
}

// InvokeHook triggers the register Hooks.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks() {
		hook.Func(ctx)
	}
}

// Hook positions triggered by the memory-system components.
var (
	// HookPosFramesAllocated is triggered after a run of frames is handed
	// out. Item is a FrameRun.
	HookPosFramesAllocated = &HookPos{Name: "FramesAllocated"}

	// HookPosFramesReleased is triggered after a run is returned to its
	// pool. Item is a FrameRun.
	HookPosFramesReleased = &HookPos{Name: "FramesReleased"}

	// HookPosFramesMarked is triggered when a range is carved out of a pool
	// without searching. Item is a FrameRun.
	HookPosFramesMarked = &HookPos{Name: "FramesMarked"}

	// HookPosPageFault is triggered when a fault reaches the paging
	// manager. Item is a FaultInfo.
	HookPosPageFault = &HookPos{Name: "PageFault"}

	// HookPosPageMapped is triggered when a fault installs a mapping.
	// Item is a MappingInfo.
	HookPosPageMapped = &HookPos{Name: "PageMapped"}

	// HookPosPageFreed is triggered when a mapped page is unmapped. Item
	// is a MappingInfo.
	HookPosPageFreed = &HookPos{Name: "PageFreed"}

	// HookPosTableLoaded is triggered when a page table becomes the active
	// translation root. Item is a MappingInfo with only the Frame set.
	HookPosTableLoaded = &HookPos{Name: "TableLoaded"}

	// HookPosPagingEnabled is triggered once, when paging is turned on.
	HookPosPagingEnabled = &HookPos{Name: "PagingEnabled"}

	// HookPosRegionAllocated is triggered when a region catalog hands out
	// a range. Item is a RegionInfo.
	HookPosRegionAllocated = &HookPos{Name: "RegionAllocated"}

	// HookPosRegionReleased is triggered when a region catalog takes a
	// range back. Item is a RegionInfo.
	HookPosRegionReleased = &HookPos{Name: "RegionReleased"}

	// HookPosFatal is triggered right before the system halts. Detail is
	// the error.
	HookPosFatal = &HookPos{Name: "Fatal"}
)

// FrameRun describes a run of physical frames.
type FrameRun struct {
	First uint64
	Count uint64
	Free  uint64
}

// FaultInfo describes a page fault.
type FaultInfo struct {
	Address   uint64
	ErrorCode uint64
}

// MappingInfo describes a virtual page and the frame behind it.
type MappingInfo struct {
	Page     uint64
	Frame    uint64
	NewTable bool
}

// RegionInfo describes a virtual range managed by a region catalog.
type RegionInfo struct {
	Base   uint64
	Length uint64
}
