// Package kernel boots the simulated machine: it lays out the frame pools,
// builds and activates the first page table and creates the region catalogs.
package kernel

import (
	"fmt"

	"github.com/sarchlab/pagesim/mem/frame"
	"github.com/sarchlab/pagesim/mem/storage"
	"github.com/sarchlab/pagesim/mem/vm/mmu"
	"github.com/sarchlab/pagesim/mem/vm/paging"
	"github.com/sarchlab/pagesim/mem/vm/vmpool"
	"github.com/sarchlab/pagesim/sim/hooking"
)

// System holds every component of a booted machine.
type System struct {
	Config      Config
	Memory      *storage.Storage
	Registry    *frame.Registry
	KernelPool  *frame.Pool
	ProcessPool *frame.Pool
	MMU         *mmu.Comp
	Paging      *paging.Manager
	PageTable   *paging.PageTable
	Code        *vmpool.Pool
	Heap        *vmpool.Pool
}

// Boot builds the machine described by cfg. Hooks that must see the boot
// itself can be passed in and are attached to every component as soon as it
// is created.
func Boot(cfg Config, hooks ...hooking.Hook) (*System, error) {
	s := &System{
		Config:   cfg,
		Memory:   storage.New(cfg.MemorySize),
		Registry: frame.NewRegistry(),
	}

	if err := s.initPools(hooks); err != nil {
		return nil, err
	}

	if err := s.initPaging(hooks); err != nil {
		return nil, err
	}

	if cfg.CreateRegions {
		if err := s.initRegions(hooks); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func attach(d hooking.Hookable, hooks []hooking.Hook) {
	for _, h := range hooks {
		d.AcceptHook(h)
	}
}

func (s *System) initPools(hooks []hooking.Hook) error {
	var err error

	s.KernelPool, err = frame.MakeBuilder().
		WithMemory(s.Memory).
		WithRegistry(s.Registry).
		WithBaseFrame(s.Config.KernelPoolBase).
		WithNumFrames(s.Config.KernelPoolFrames).
		Build("KernelPool")
	if err != nil {
		return fmt.Errorf("kernel pool: %w", err)
	}
	attach(s.KernelPool, hooks)

	numInfoFrames := frame.NeededInfoFrames(s.Config.ProcessPoolFrames)
	info, err := s.KernelPool.GetFrames(numInfoFrames)
	if err != nil {
		return fmt.Errorf("process pool info frame: %w", err)
	}

	s.ProcessPool, err = frame.MakeBuilder().
		WithMemory(s.Memory).
		WithRegistry(s.Registry).
		WithBaseFrame(s.Config.ProcessPoolBase).
		WithNumFrames(s.Config.ProcessPoolFrames).
		WithInfoFrame(info).
		Build("ProcessPool")
	if err != nil {
		return fmt.Errorf("process pool: %w", err)
	}
	attach(s.ProcessPool, hooks)

	if s.Config.HoleFrames > 0 {
		err = s.ProcessPool.MarkInaccessible(s.Config.HoleBase, s.Config.HoleFrames)
		if err != nil {
			return fmt.Errorf("memory hole: %w", err)
		}
	}

	return nil
}

func (s *System) initPaging(hooks []hooking.Hook) error {
	s.MMU = mmu.MakeBuilder().
		WithMemory(s.Memory).
		WithNumWays(s.Config.TLBWays).
		Build("MMU")
	attach(s.MMU, hooks)

	s.Paging = paging.MakeBuilder().
		WithKernelPool(s.KernelPool).
		WithProcessPool(s.ProcessPool).
		WithFrameReleaser(s.Registry).
		WithMemory(s.Memory).
		WithCPU(s.MMU).
		WithSharedSize(s.Config.SharedSize).
		WithUserShared(s.Config.UserShared).
		Build("Paging")
	attach(s.Paging, hooks)

	s.MMU.RegisterFaultHandler(s.Paging)

	pt, err := s.Paging.NewPageTable()
	if err != nil {
		return fmt.Errorf("page table: %w", err)
	}

	s.PageTable = pt
	pt.Load()

	return s.Paging.Enable()
}

func (s *System) initRegions(hooks []hooking.Hook) error {
	var err error

	s.Code, err = vmpool.MakeBuilder().
		WithBase(s.Config.CodeBase).
		WithSize(s.Config.CodeSize).
		WithPageTable(s.PageTable).
		WithManager(s.Paging).
		Build("CodePool")
	if err != nil {
		return fmt.Errorf("code pool: %w", err)
	}
	attach(s.Code, hooks)

	s.Heap, err = vmpool.MakeBuilder().
		WithBase(s.Config.HeapBase).
		WithSize(s.Config.HeapSize).
		WithPageTable(s.PageTable).
		WithManager(s.Paging).
		Build("HeapPool")
	if err != nil {
		return fmt.Errorf("heap pool: %w", err)
	}
	attach(s.Heap, hooks)

	return nil
}

// Domains returns every component that invokes hooks.
func (s *System) Domains() []hooking.Hookable {
	domains := []hooking.Hookable{
		s.KernelPool, s.ProcessPool, s.MMU, s.Paging,
	}

	if s.Code != nil {
		domains = append(domains, s.Code, s.Heap)
	}

	return domains
}
