package frame

import (
	"fmt"

	"github.com/sarchlab/pagesim/mem/mm"
)

// A Builder can build frame pools.
type Builder struct {
	memory    Memory
	registry  *Registry
	base      mm.Frame
	numFrames uint64
	infoFrame mm.Frame
}

// MakeBuilder returns a Builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithMemory sets the physical memory that holds the bitmap.
func (b Builder) WithMemory(memory Memory) Builder {
	b.memory = memory
	return b
}

// WithRegistry sets the registry that the pool joins.
func (b Builder) WithRegistry(registry *Registry) Builder {
	b.registry = registry
	return b
}

// WithBaseFrame sets the first frame number owned by the pool.
func (b Builder) WithBaseFrame(base mm.Frame) Builder {
	b.base = base
	return b
}

// WithNumFrames sets the number of frames owned by the pool. It must be a
// multiple of 8.
func (b Builder) WithNumFrames(n uint64) Builder {
	b.numFrames = n
	return b
}

// WithInfoFrame sets the frame that holds the bitmap. With 0 (the default),
// the first frame of the pool itself holds the bitmap and is taken out of
// circulation.
func (b Builder) WithInfoFrame(frame mm.Frame) Builder {
	b.infoFrame = frame
	return b
}

// Build creates a new pool and registers it.
func (b Builder) Build(name string) (*Pool, error) {
	if err := b.mustBeValid(name); err != nil {
		return nil, err
	}

	p := &Pool{
		name:      name,
		registry:  b.registry,
		base:      b.base,
		numFrames: b.numFrames,
		numFree:   b.numFrames,
		infoFrame: b.infoFrame,
	}

	if b.infoFrame == 0 {
		p.infoFrame = b.base
	}

	if err := b.registry.register(p); err != nil {
		return nil, err
	}

	p.bitmap = bitmap{memory: b.memory, addr: uint64(p.infoFrame.Address())}
	if err := p.bitmap.clear(p.numFrames); err != nil {
		b.registry.unregister(p)
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if b.infoFrame == 0 {
		p.bitmap.set(0, Allocated)
		p.numFree--
	}

	return p, nil
}

func (b Builder) mustBeValid(name string) error {
	if b.memory == nil || b.registry == nil {
		return fmt.Errorf("%s: memory and registry are required: %w",
			name, ErrInvalidLayout)
	}

	if b.numFrames == 0 || b.numFrames%8 != 0 {
		return fmt.Errorf("%s: %d frames is not a positive multiple of 8: %w",
			name, b.numFrames, ErrInvalidLayout)
	}

	if b.numFrames > framesPerFrame {
		return fmt.Errorf("%s: %d frames do not fit in one bitmap frame: %w",
			name, b.numFrames, ErrInvalidLayout)
	}

	end := uint64(b.base.Address()) + b.numFrames*mm.PageSize
	if end > b.memory.Capacity() {
		return fmt.Errorf("%s: frames beyond physical memory: %w",
			name, ErrInvalidLayout)
	}

	if uint64(b.infoFrame.Address())+mm.PageSize > b.memory.Capacity() {
		return fmt.Errorf("%s: info frame beyond physical memory: %w",
			name, ErrInvalidLayout)
	}

	return nil
}
