// Package storage provides the simulated physical memory.
package storage

import (
	"encoding/binary"
	"errors"
	"sync"
)

// ErrOutOfRange is returned when an access reaches beyond the capacity of the
// storage.
var ErrOutOfRange = errors.New(
	"accessing physical address beyond the storage capacity")

// A Storage keeps the content of the simulated physical memory.
//
// The storage manages the data in units of one page. Units that are never
// touched by Read or Write do not take any host memory and read as zero.
type Storage struct {
	lock     sync.Mutex
	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// New creates a storage object with the specified capacity in bytes.
func New(capacity uint64) *Storage {
	storage := new(Storage)

	storage.unitSize = 4096
	storage.capacity = capacity
	storage.data = make(map[uint64][]byte)

	return storage
}

// Capacity returns the number of bytes the storage can hold.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// NumUnitsTouched returns how many units have been materialized.
func (s *Storage) NumUnitsTouched() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.data)
}

func (s *Storage) mustBeInRange(address, length uint64) error {
	if address+length > s.capacity || address+length < address {
		return ErrOutOfRange
	}

	return nil
}

// createOrGetStorageUnit retrieves a storage unit if the unit has been created
// before. Otherwise it initializes a storage unit in the storage object.
func (s *Storage) createOrGetStorageUnit(address uint64) []byte {
	baseAddr, _ := s.parseAddress(address)

	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return
}

// Read returns length bytes starting at address.
func (s *Storage) Read(address uint64, length uint64) ([]byte, error) {
	if err := s.mustBeInRange(address, length); err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	currAddr := address
	lenLeft := length
	dataOffset := uint64(0)
	res := make([]byte, length)

	for currAddr < address+length {
		unit := s.createOrGetStorageUnit(currAddr)

		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenToRead := baseAddr + s.unitSize - currAddr
		if lenLeft < lenToRead {
			lenToRead = lenLeft
		}

		copy(res[dataOffset:dataOffset+lenToRead],
			unit[inUnitAddr:inUnitAddr+lenToRead])
		lenLeft -= lenToRead
		dataOffset += lenToRead
		currAddr += lenToRead
	}

	return res, nil
}

// Write copies data into the storage starting at address.
func (s *Storage) Write(address uint64, data []byte) error {
	if err := s.mustBeInRange(address, uint64(len(data))); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < uint64(len(data)) {
		unit := s.createOrGetStorageUnit(currAddr)

		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenToWrite := baseAddr + s.unitSize - currAddr
		if lenLeftInData := uint64(len(data)) - dataOffset; lenLeftInData < lenToWrite {
			lenToWrite = lenLeftInData
		}

		copy(unit[inUnitAddr:inUnitAddr+lenToWrite],
			data[dataOffset:dataOffset+lenToWrite])
		dataOffset += lenToWrite
		currAddr += lenToWrite
	}

	return nil
}

// Read32 reads a little-endian 32-bit word.
func (s *Storage) Read32(address uint64) (uint32, error) {
	buf, err := s.Read(address, 4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(buf), nil
}

// Write32 writes a little-endian 32-bit word.
func (s *Storage) Write32(address uint64, value uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)

	return s.Write(address, buf)
}

// Fill sets length bytes starting at address to value.
func (s *Storage) Fill(address, length uint64, value byte) error {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = value
	}

	return s.Write(address, buf)
}
