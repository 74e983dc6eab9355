package hooking

import (
	"bytes"
	"errors"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type namedDomain struct {
	HookableBase
}

func (d *namedDomain) Name() string { return "Domain" }

var _ = Describe("HookableBase", func() {
	var domain *namedDomain

	BeforeEach(func() {
		domain = &namedDomain{}
	})

	It("should invoke hooks in registration order", func() {
		var order []int
		domain.AcceptHook(HookFunc(func(HookCtx) { order = append(order, 1) }))
		domain.AcceptHook(HookFunc(func(HookCtx) { order = append(order, 2) }))

		domain.InvokeHook(HookCtx{Domain: domain, Pos: HookPosPageFault})

		Expect(order).To(Equal([]int{1, 2}))
		Expect(domain.NumHooks()).To(Equal(2))
	})

	It("should panic when the same hook is registered twice", func() {
		hook := NewCountHook()
		domain.AcceptHook(hook)

		Expect(func() { domain.AcceptHook(hook) }).To(Panic())
	})

	It("should count events per position", func() {
		hook := NewCountHook()
		domain.AcceptHook(hook)

		domain.InvokeHook(HookCtx{Domain: domain, Pos: HookPosPageFault})
		domain.InvokeHook(HookCtx{Domain: domain, Pos: HookPosPageMapped})
		domain.InvokeHook(HookCtx{Domain: domain, Pos: HookPosPageFault})

		Expect(hook.Count(HookPosPageFault)).To(Equal(uint64(2)))
		Expect(hook.Count(HookPosPageMapped)).To(Equal(uint64(1)))
		Expect(hook.PosNames()).To(Equal([]string{"PageFault", "PageMapped"}))
	})

	It("should log events with their payload", func() {
		buf := new(bytes.Buffer)
		domain.AcceptHook(NewLogHook(log.New(buf, "", 0)))

		domain.InvokeHook(HookCtx{
			Domain: domain,
			Pos:    HookPosFramesAllocated,
			Item:   FrameRun{First: 1024, Count: 2, Free: 10},
		})
		domain.InvokeHook(HookCtx{
			Domain: domain,
			Pos:    HookPosFatal,
			Item:   FaultInfo{Address: 0x400064, ErrorCode: 2},
			Detail: errors.New("boom"),
		})

		Expect(buf.String()).To(Equal(
			"Domain FramesAllocated first=1024 count=2 free=10\n" +
				"Domain Fatal addr=0x00400064 code=2: boom\n"))
	})
})
