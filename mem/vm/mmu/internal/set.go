// Package internal provides the translation cache used by the MMU.
package internal

import (
	"sort"

	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/mem/vm"
)

// A Translation is a cached page to frame mapping, together with the table
// entry it came from.
type Translation struct {
	Page  mm.Page
	Entry vm.Entry
}

// A Set holds a certain number of translations and evicts the least recently
// used one.
type Set interface {
	Lookup(page mm.Page) (wayID int, t Translation, found bool)
	Update(wayID int, t Translation)
	Evict() (wayID int, ok bool)
	Visit(wayID int)
	Invalidate(page mm.Page)
	Reset()
}

// NewSet creates a new translation set.
func NewSet(numWays int) Set {
	s := &setImpl{}
	s.blocks = make([]*block, numWays)
	s.visitList = make([]*block, 0, numWays)
	s.pageWayIDMap = make(map[mm.Page]int)

	for i := range s.blocks {
		b := &block{}
		s.blocks[i] = b
		b.wayID = i
		s.Visit(i)
	}

	return s
}

type block struct {
	translation Translation
	valid       bool
	wayID       int
	lastVisit   uint64
}

type setImpl struct {
	blocks       []*block
	pageWayIDMap map[mm.Page]int
	visitList    []*block
	visitCount   uint64
}

func (s *setImpl) Lookup(page mm.Page) (
	wayID int,
	t Translation,
	found bool,
) {
	wayID, ok := s.pageWayIDMap[page]
	if !ok {
		return 0, Translation{}, false
	}

	block := s.blocks[wayID]

	return block.wayID, block.translation, true
}

func (s *setImpl) Update(wayID int, t Translation) {
	block := s.blocks[wayID]
	if block.valid {
		delete(s.pageWayIDMap, block.translation.Page)
	}

	block.translation = t
	block.valid = true
	s.pageWayIDMap[t.Page] = wayID
}

// Evict picks the least recently used way and takes it out of the visit
// list. The caller is expected to Update and Visit the way afterwards.
func (s *setImpl) Evict() (wayID int, ok bool) {
	if s.hasNothingToEvict() {
		return 0, false
	}

	leastVisited := s.visitList[0]
	wayID = leastVisited.wayID
	s.visitList = s.visitList[1:]

	return wayID, true
}

func (s *setImpl) Visit(wayID int) {
	block := s.blocks[wayID]

	for i, b := range s.visitList {
		if b.wayID == wayID {
			s.visitList = append(s.visitList[:i], s.visitList[i+1:]...)
			break
		}
	}

	s.visitCount++
	block.lastVisit = s.visitCount

	index := sort.Search(len(s.visitList), func(i int) bool {
		return s.visitList[i].lastVisit > block.lastVisit
	})

	s.visitList = append(s.visitList, nil)
	copy(s.visitList[index+1:], s.visitList[index:])
	s.visitList[index] = block
}

func (s *setImpl) Invalidate(page mm.Page) {
	wayID, ok := s.pageWayIDMap[page]
	if !ok {
		return
	}

	delete(s.pageWayIDMap, page)
	s.blocks[wayID].valid = false
}

func (s *setImpl) Reset() {
	s.pageWayIDMap = make(map[mm.Page]int)
	s.visitList = s.visitList[:0]

	for _, b := range s.blocks {
		b.valid = false
		b.translation = Translation{}
		s.Visit(b.wayID)
	}
}

func (s *setImpl) hasNothingToEvict() bool {
	return len(s.visitList) == 0
}
