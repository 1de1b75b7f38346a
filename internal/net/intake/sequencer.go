package intake

import (
	"errors"
	"fmt"

	"hindsight/client/internal/net/proto"
)

// ErrSequenceGap is returned when more messages are held waiting for a
// missing predecessor than the sequencer allows.
var ErrSequenceGap = errors.New("sequence gap")

const defaultMaxPending = 64

// SequencerStats reports delivery counters.
type SequencerStats struct {
	Next       uint64
	Pending    int
	Released   uint64
	Reordered  uint64
	Duplicates uint64
}

// Sequencer releases sequenced server messages in order. Messages with
// sequence zero bypass it. It is not safe for concurrent use.
type Sequencer struct {
	next       uint64
	pending    map[uint64]proto.ServerMessage
	maxPending int

	released   uint64
	reordered  uint64
	duplicates uint64
}

func NewSequencer(maxPending int) *Sequencer {
	if maxPending <= 0 {
		maxPending = defaultMaxPending
	}
	return &Sequencer{
		next:       1,
		pending:    make(map[uint64]proto.ServerMessage),
		maxPending: maxPending,
	}
}

// Offer accepts msg and returns every message that is now deliverable in
// order. Already-released or already-held sequences are dropped.
func (s *Sequencer) Offer(msg proto.ServerMessage) ([]proto.ServerMessage, error) {
	if msg.Seq == 0 {
		s.released++
		return []proto.ServerMessage{msg}, nil
	}
	if msg.Seq < s.next {
		s.duplicates++
		return nil, nil
	}
	if msg.Seq > s.next {
		if _, held := s.pending[msg.Seq]; held {
			s.duplicates++
			return nil, nil
		}
		s.pending[msg.Seq] = msg
		s.reordered++
		if len(s.pending) > s.maxPending {
			return nil, fmt.Errorf("%w: waiting for %d with %d messages held", ErrSequenceGap, s.next, len(s.pending))
		}
		return nil, nil
	}

	ready := []proto.ServerMessage{msg}
	s.next++
	for {
		held, ok := s.pending[s.next]
		if !ok {
			break
		}
		delete(s.pending, s.next)
		ready = append(ready, held)
		s.next++
	}
	s.released += uint64(len(ready))
	return ready, nil
}

// Expected returns the next sequence the sequencer will release.
func (s *Sequencer) Expected() uint64 {
	return s.next
}

func (s *Sequencer) Stats() SequencerStats {
	return SequencerStats{
		Next:       s.next,
		Pending:    len(s.pending),
		Released:   s.released,
		Reordered:  s.reordered,
		Duplicates: s.duplicates,
	}
}
