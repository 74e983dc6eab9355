// Package trace turns memory-system hook events into persistent records.
package trace

import (
	"fmt"
	"sync"

	"github.com/sarchlab/pagesim/datarecording"
	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/sim/hooking"
	"github.com/sarchlab/pagesim/sim/id"
)

// TableName is the table that the DBTracer writes into.
const TableName = "memory_events"

// Event is one row of the event table.
type Event struct {
	ID       string
	Seq      uint64
	Domain   string
	Pos      string
	Address  uint64
	Frame    uint64
	Count    uint64
	Free     uint64
	Length   uint64
	NewTable bool
	Detail   string
}

// EventFromCtx flattens a hook context into an Event. ID and Seq are left
// empty.
func EventFromCtx(ctx hooking.HookCtx) Event {
	e := Event{Pos: ctx.Pos.Name}

	if ctx.Domain != nil {
		e.Domain = ctx.Domain.Name()
	}

	switch item := ctx.Item.(type) {
	case hooking.FrameRun:
		e.Frame = item.First
		e.Count = item.Count
		e.Free = item.Free
	case hooking.FaultInfo:
		e.Address = item.Address
		e.Detail = fmt.Sprintf("code=%d", item.ErrorCode)
	case hooking.MappingInfo:
		e.Address = item.Page << mm.PageShift
		e.Frame = item.Frame
		e.NewTable = item.NewTable
	case hooking.RegionInfo:
		e.Address = item.Base
		e.Length = item.Length
	}

	if err, ok := ctx.Detail.(error); ok {
		e.Detail = err.Error()
	}

	return e
}

// DBTracer is a hook that stores every event it receives into a data
// recorder.
type DBTracer struct {
	lock     sync.Mutex
	recorder datarecording.DataRecorder
	idGen    id.IDGenerator
	seq      uint64
}

// NewDBTracer creates the event table and returns a tracer that fills it.
func NewDBTracer(
	recorder datarecording.DataRecorder,
	idGen id.IDGenerator,
) *DBTracer {
	recorder.CreateTable(TableName, Event{})

	return &DBTracer{
		recorder: recorder,
		idGen:    idGen,
	}
}

// Func records the event.
func (t *DBTracer) Func(ctx hooking.HookCtx) {
	e := EventFromCtx(ctx)

	t.lock.Lock()
	t.seq++
	e.Seq = t.seq
	t.lock.Unlock()

	e.ID = t.idGen.Generate()

	t.recorder.InsertData(TableName, e)
}

// NumEvents returns the number of events recorded so far.
func (t *DBTracer) NumEvents() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.seq
}

// Flush writes the buffered events into the database.
func (t *DBTracer) Flush() {
	t.recorder.Flush()
}

// Attach registers the hook with all the given domains.
func Attach(hook hooking.Hook, domains ...hooking.Hookable) {
	for _, d := range domains {
		d.AcceptHook(hook)
	}
}
