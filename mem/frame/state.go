package frame

import (
	"fmt"

	"github.com/sarchlab/pagesim/mem/mm"
)

// State is the allocation state of one frame.
type State uint8

// The encoding of the states is the on-memory encoding of the bitmap.
const (
	// Free frames can be handed out.
	Free State = 0b00

	// Allocated frames belong to a run but do not start it.
	Allocated State = 0b01

	// HeadOfSequence marks the first frame of an allocated run.
	HeadOfSequence State = 0b11
)

func (s State) String() string {
	switch s {
	case Free:
		return "Free"
	case Allocated:
		return "Allocated"
	case HeadOfSequence:
		return "HeadOfSequence"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

const (
	bitsPerFrame   = 2
	framesPerByte  = 8 / bitsPerFrame
	stateMask      = (1 << bitsPerFrame) - 1
	framesPerFrame = mm.PageSize * framesPerByte
)

// Memory is where the bitmap of a pool is kept.
type Memory interface {
	Read(address uint64, length uint64) ([]byte, error)
	Write(address uint64, data []byte) error
	Capacity() uint64
}

// bitmap stores 2 bits per frame, 4 frames per byte. Frame i lives in byte
// i/4 at bit position 2*(i%4).
type bitmap struct {
	memory Memory
	addr   uint64
}

func (b bitmap) byteAddr(index uint64) uint64 {
	return b.addr + index/framesPerByte
}

func (b bitmap) shift(index uint64) uint {
	return uint(bitsPerFrame * (index % framesPerByte))
}

func (b bitmap) get(index uint64) State {
	buf, err := b.memory.Read(b.byteAddr(index), 1)
	if err != nil {
		panic(err)
	}

	return State((buf[0] >> b.shift(index)) & stateMask)
}

func (b bitmap) set(index uint64, state State) {
	addr := b.byteAddr(index)

	buf, err := b.memory.Read(addr, 1)
	if err != nil {
		panic(err)
	}

	shift := b.shift(index)
	buf[0] = (buf[0] &^ (stateMask << shift)) | (byte(state) << shift)

	if err := b.memory.Write(addr, buf); err != nil {
		panic(err)
	}
}

func (b bitmap) clear(numFrames uint64) error {
	numBytes := (numFrames + framesPerByte - 1) / framesPerByte
	return b.memory.Write(b.addr, make([]byte, numBytes))
}

// NeededInfoFrames returns the number of frames needed to hold the bitmap of
// a pool with numFrames frames.
func NeededInfoFrames(numFrames uint64) uint64 {
	bits := bitsPerFrame * numFrames
	bitsPerInfoFrame := uint64(8 * mm.PageSize)

	return (bits + bitsPerInfoFrame - 1) / bitsPerInfoFrame
}
