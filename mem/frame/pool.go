// Package frame provides the contiguous physical frame allocator.
//
// A Pool owns a contiguous range of frame numbers and tracks the state of
// every frame in a 2-bit bitmap kept in simulated physical memory. Pools hand
// out runs of contiguous frames and get them back by the number of the first
// frame only; the length of a run is recovered from the bitmap.
package frame

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/sim/hooking"
)

// ErrInvalidLayout is returned when a pool cannot be built with the requested
// geometry.
var ErrInvalidLayout = errors.New("invalid frame pool layout")

// Pool is a contiguous frame pool.
type Pool struct {
	hooking.HookableBase

	name     string
	registry *Registry

	lock      sync.Mutex
	base      mm.Frame
	numFrames uint64
	numFree   uint64
	infoFrame mm.Frame
	bitmap    bitmap
}

// Name returns the name of the pool.
func (p *Pool) Name() string {
	return p.name
}

// BaseFrame returns the first frame number owned by the pool.
func (p *Pool) BaseFrame() mm.Frame {
	return p.base
}

// NumFrames returns the number of frames owned by the pool.
func (p *Pool) NumFrames() uint64 {
	return p.numFrames
}

// InfoFrame returns the frame that holds the bitmap.
func (p *Pool) InfoFrame() mm.Frame {
	return p.infoFrame
}

// NumFreeFrames returns the number of frames in the Free state.
func (p *Pool) NumFreeFrames() uint64 {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.numFree
}

// Contains returns true if the frame number falls into the pool's range.
func (p *Pool) Contains(frame mm.Frame) bool {
	return frame >= p.base && uint64(frame-p.base) < p.numFrames
}

// State returns the state of a frame owned by the pool.
func (p *Pool) State(frame mm.Frame) (State, error) {
	if !p.Contains(frame) {
		return Free, fmt.Errorf("%s: frame %d not in pool: %w",
			p.name, frame, mm.ErrProtocolViolation)
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	return p.bitmap.get(uint64(frame - p.base)), nil
}

// GetFrames allocates a run of n contiguous frames and returns the number of
// the first one. The lowest-addressed run that fits is used.
func (p *Pool) GetFrames(n uint64) (mm.Frame, error) {
	if n == 0 {
		return mm.InvalidFrame, fmt.Errorf("%s: zero frames requested: %w",
			p.name, mm.ErrProtocolViolation)
	}

	p.lock.Lock()

	if n > p.numFree || n > p.numFrames {
		free := p.numFree
		p.lock.Unlock()

		return mm.InvalidFrame, fmt.Errorf(
			"%s: %d frames requested, %d free: %w",
			p.name, n, free, mm.ErrResourceExhausted)
	}

	first, found := p.findFreeRun(n)
	if !found {
		p.lock.Unlock()

		return mm.InvalidFrame, fmt.Errorf(
			"%s: no run of %d contiguous free frames: %w",
			p.name, n, mm.ErrResourceExhausted)
	}

	p.markRun(first, n)
	p.numFree -= n
	run := p.run(first, n)
	p.lock.Unlock()

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    hooking.HookPosFramesAllocated,
		Item:   run,
	})

	return p.base + mm.Frame(first), nil
}

func (p *Pool) findFreeRun(n uint64) (first uint64, found bool) {
	count := uint64(0)

	for i := uint64(0); i < p.numFrames; i++ {
		if p.bitmap.get(i) != Free {
			count = 0
			continue
		}

		count++
		if count == n {
			return i + 1 - n, true
		}
	}

	return 0, false
}

func (p *Pool) markRun(first, n uint64) {
	p.bitmap.set(first, HeadOfSequence)

	for i := first + 1; i < first+n; i++ {
		p.bitmap.set(i, Allocated)
	}
}

func (p *Pool) run(first, n uint64) hooking.FrameRun {
	return hooking.FrameRun{
		First: uint64(p.base) + first,
		Count: n,
		Free:  p.numFree,
	}
}

// MarkInaccessible marks the exact range [first, first+n) as one allocated
// run without searching. It is meant for carving out holes and reserved
// ranges before any allocation happens; the previous state of the range is
// not checked.
func (p *Pool) MarkInaccessible(first mm.Frame, n uint64) error {
	if n == 0 || !p.Contains(first) || n > p.numFrames-uint64(first-p.base) {
		return fmt.Errorf("%s: %d frames from %d not in pool: %w",
			p.name, n, first, mm.ErrProtocolViolation)
	}

	p.lock.Lock()

	p.markRun(uint64(first-p.base), n)
	if n > p.numFree {
		p.numFree = 0
	} else {
		p.numFree -= n
	}
	run := p.run(uint64(first-p.base), n)

	p.lock.Unlock()

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    hooking.HookPosFramesMarked,
		Item:   run,
	})

	return nil
}

// ReleaseFrames returns the run that starts at first to the pool. The frame
// must be owned by this pool. Use Registry.Release when the owner is not
// known.
func (p *Pool) ReleaseFrames(first mm.Frame) error {
	if !p.Contains(first) {
		return fmt.Errorf("%s: frame %d not in pool: %w",
			p.name, first, mm.ErrProtocolViolation)
	}

	p.lock.Lock()

	index := uint64(first - p.base)
	if state := p.bitmap.get(index); state != HeadOfSequence {
		p.lock.Unlock()

		return fmt.Errorf("%s: frame %d is %s, not a head of sequence: %w",
			p.name, first, state, mm.ErrProtocolViolation)
	}

	p.bitmap.set(index, Free)
	released := uint64(1)

	for i := index + 1; i < p.numFrames; i++ {
		state := p.bitmap.get(i)
		if state == Free || state == HeadOfSequence {
			break
		}

		p.bitmap.set(i, Free)
		released++
	}

	p.numFree += released
	run := p.run(index, released)

	p.lock.Unlock()

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    hooking.HookPosFramesReleased,
		Item:   run,
	})

	return nil
}

// Snapshot is a point-in-time view of a pool.
type Snapshot struct {
	Name       string `json:"name"`
	BaseFrame  uint64 `json:"base_frame"`
	NumFrames  uint64 `json:"num_frames"`
	NumFree    uint64 `json:"num_free"`
	InfoFrame  uint64 `json:"info_frame"`
	NumRuns    uint64 `json:"num_runs"`
	LargestRun uint64 `json:"largest_free_run"`
}

// Snapshot returns the current counters of the pool.
func (p *Pool) Snapshot() Snapshot {
	p.lock.Lock()
	defer p.lock.Unlock()

	s := Snapshot{
		Name:      p.name,
		BaseFrame: uint64(p.base),
		NumFrames: p.numFrames,
		NumFree:   p.numFree,
		InfoFrame: uint64(p.infoFrame),
	}

	freeRun := uint64(0)
	for i := uint64(0); i < p.numFrames; i++ {
		switch p.bitmap.get(i) {
		case HeadOfSequence:
			s.NumRuns++
			freeRun = 0
		case Allocated:
			freeRun = 0
		case Free:
			freeRun++
			if freeRun > s.LargestRun {
				s.LargestRun = freeRun
			}
		}
	}

	return s
}
