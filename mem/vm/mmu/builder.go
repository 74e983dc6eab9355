package mmu

import "github.com/sarchlab/pagesim/mem/vm/mmu/internal"

// A Builder can build MMU components.
type Builder struct {
	memory   Memory
	numWays  int
	maxRetry int
	handler  FaultHandler
	userMode bool
}

// MakeBuilder creates a new builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		numWays:  64,
		maxRetry: 3,
	}
}

// WithMemory sets the physical memory that holds the translation structures.
func (b Builder) WithMemory(memory Memory) Builder {
	b.memory = memory
	return b
}

// WithNumWays sets the number of translations that are cached.
func (b Builder) WithNumWays(n int) Builder {
	b.numWays = n
	return b
}

// WithMaxRetry sets how many times a faulting access is dispatched to the
// fault handler before the access fails.
func (b Builder) WithMaxRetry(n int) Builder {
	b.maxRetry = n
	return b
}

// WithFaultHandler sets the handler that page faults are dispatched to.
func (b Builder) WithFaultHandler(h FaultHandler) Builder {
	b.handler = h
	return b
}

// WithUserMode makes accesses run in user mode.
func (b Builder) WithUserMode(user bool) Builder {
	b.userMode = user
	return b
}

// Build creates a new MMU.
func (b Builder) Build(name string) *Comp {
	if b.memory == nil {
		panic("mmu requires a memory")
	}

	numWays := b.numWays
	if numWays < 1 {
		numWays = 1
	}

	c := &Comp{
		name:     name,
		memory:   b.memory,
		maxRetry: b.maxRetry,
		handler:  b.handler,
		userMode: b.userMode,
		cache:    internal.NewSet(numWays),
	}

	return c
}
