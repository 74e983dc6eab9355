package vmpool

import (
	"errors"
	"fmt"

	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/paging"
)

// ErrInvalidWindow is returned when a pool cannot manage the requested
// virtual window.
var ErrInvalidWindow = errors.New("invalid region pool window")

// A Registrar accepts region catalogs.
type Registrar interface {
	RegisterCatalog(c paging.RegionCatalog)
}

// A Builder can build region pools.
type Builder struct {
	base      mm.VAddr
	size      uint64
	table     *paging.PageTable
	registrar Registrar
	mapper    Mapper
}

// MakeBuilder returns a Builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithBase sets the first address of the window. It must be page aligned.
func (b Builder) WithBase(base mm.VAddr) Builder {
	b.base = base
	return b
}

// WithSize sets the size of the window. It must be a multiple of the page
// size.
func (b Builder) WithSize(size uint64) Builder {
	b.size = size
	return b
}

// WithPageTable sets the page table that the window belongs to.
func (b Builder) WithPageTable(pt *paging.PageTable) Builder {
	b.table = pt
	return b
}

// WithManager registers the pool with the manager and lets it unmap released
// pages.
func (b Builder) WithManager(m *paging.Manager) Builder {
	b.registrar = m
	b.mapper = m
	return b
}

// WithMapper replaces the mapper that unmaps released pages. WithManager
// already sets the manager as the mapper.
func (b Builder) WithMapper(m Mapper) Builder {
	b.mapper = m
	return b
}

// Build creates the pool and registers it as a region catalog.
func (b Builder) Build(name string) (*Pool, error) {
	if err := b.validate(name); err != nil {
		return nil, err
	}

	window := Region{Base: b.base, Length: b.size}
	p := &Pool{
		name:   name,
		window: window,
		table:  b.table,
		mapper: b.mapper,
		free:   []Region{window},
	}

	if b.registrar != nil {
		b.registrar.RegisterCatalog(p)
	}

	return p, nil
}

func (b Builder) validate(name string) error {
	if b.size == 0 || b.size%mm.PageSize != 0 {
		return fmt.Errorf("%s: size %d is not a positive page multiple: %w",
			name, b.size, ErrInvalidWindow)
	}

	if uint64(b.base)%mm.PageSize != 0 {
		return fmt.Errorf("%s: base 0x%08x is not page aligned: %w",
			name, uint32(b.base), ErrInvalidWindow)
	}

	if uint64(b.base)+b.size > uint64(vm.TableWindow) {
		return fmt.Errorf("%s: window reaches the self-map window: %w",
			name, ErrInvalidWindow)
	}

	return nil
}
