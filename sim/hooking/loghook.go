package hooking

import (
	"fmt"
	"log"
)

// A LogHook is a hook that renders every event it receives as one line in a
// log. It is the diagnostic sink of the memory system.
type LogHook struct {
	*log.Logger
}

// NewLogHook creates a LogHook that writes into the given logger.
func NewLogHook(logger *log.Logger) *LogHook {
	return &LogHook{Logger: logger}
}

// Func writes the event into the log.
func (h *LogHook) Func(ctx HookCtx) {
	h.Print(FormatEvent(ctx))
}

// FormatEvent renders a hook context as a human-readable line.
func FormatEvent(ctx HookCtx) string {
	domain := "-"
	if ctx.Domain != nil {
		domain = ctx.Domain.Name()
	}

	line := fmt.Sprintf("%s %s", domain, ctx.Pos.Name)

	switch item := ctx.Item.(type) {
	case FrameRun:
		line += fmt.Sprintf(" first=%d count=%d free=%d",
			item.First, item.Count, item.Free)
	case FaultInfo:
		line += fmt.Sprintf(" addr=0x%08x code=%d", item.Address, item.ErrorCode)
	case MappingInfo:
		line += fmt.Sprintf(" page=0x%05x frame=%d", item.Page, item.Frame)
		if item.NewTable {
			line += " new-table"
		}
	case RegionInfo:
		line += fmt.Sprintf(" base=0x%08x len=0x%x", item.Base, item.Length)
	}

	if err, ok := ctx.Detail.(error); ok {
		line += ": " + err.Error()
	}

	return line
}
