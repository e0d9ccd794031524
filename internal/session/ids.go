package session

import (
	"math/rand"
	"time"
)

// TxID is a 32-bit transaction id correlating a control-channel request
// with its responses.
type TxID uint32

// idGenerator produces transaction ids with no duplicates among the
// currently live set, regenerating on collision.
type idGenerator struct {
	live map[TxID]bool
	rng  *rand.Rand
}

func newIDGenerator() *idGenerator {
	return &idGenerator{
		live: make(map[TxID]bool),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// next allocates and marks live a fresh transaction id.
func (g *idGenerator) next() TxID {
	for {
		id := TxID(g.rng.Uint32())
		if id == 0 {
			continue
		}
		if !g.live[id] {
			g.live[id] = true
			return id
		}
	}
}

// release marks id no longer live, allowing it to be reused.
func (g *idGenerator) release(id TxID) {
	delete(g.live, id)
}

// writeInProgress tracks one emitted-but-not-yet-reclaimed write chunk.
// A slice of these, appended in increasing seq order, forms the
// sequence-ordered set §4.5 describes: the head is always the oldest
// unacknowledged chunk.
type writeInProgress struct {
	seq       uint64
	id        TxID
	n         uint32
	completed bool
}

// writeInProgressSet is an ordered-by-seq collection of in-flight write
// chunks, realizing the reference implementation's sequence-ordered
// bookkeeping as a plain slice rather than a separate collection type.
type writeInProgressSet struct {
	records []*writeInProgress
}

func (s *writeInProgressSet) insert(r *writeInProgress) {
	s.records = append(s.records, r)
}

func (s *writeInProgressSet) find(id TxID) *writeInProgress {
	for _, r := range s.records {
		if r.id == id {
			return r
		}
	}
	return nil
}

func (s *writeInProgressSet) isHead(r *writeInProgress) bool {
	return len(s.records) > 0 && s.records[0] == r
}

// popHead removes the head record, if any.
func (s *writeInProgressSet) popHead() {
	if len(s.records) > 0 {
		s.records = s.records[1:]
	}
}

// popCompletedPrefix removes and returns every record from the head of
// the set that is marked completed, stopping at the first incomplete
// record (or the explicitly-released head itself, which the caller
// removes first via popHead).
func (s *writeInProgressSet) popCompletedPrefix() []*writeInProgress {
	var popped []*writeInProgress
	for len(s.records) > 0 && s.records[0].completed {
		popped = append(popped, s.records[0])
		s.records = s.records[1:]
	}
	return popped
}

func (s *writeInProgressSet) empty() bool {
	return len(s.records) == 0
}
