package server

import (
	"sync"
)

// HighWaterSource reads the highest sequence number already persisted for a
// room. It is consulted once per room, when the counter is first used.
type HighWaterSource interface {
	HighestSeqId(roomId int) (int64, error)
}

// Sequencer hands out strictly increasing per-room sequence numbers. Each
// counter is warmed lazily from the store's high-water mark, so numbers are
// never reused across process restarts. Warm-up runs under the same
// per-room lock as steady-state assignment.
type Sequencer struct {
	mu    sync.Mutex
	src   HighWaterSource
	rooms map[int]*roomCounter
}

type roomCounter struct {
	mu     sync.Mutex
	warmed bool
	last   int64
}

func NewSequencer(src HighWaterSource) *Sequencer {
	return &Sequencer{
		src:   src,
		rooms: make(map[int]*roomCounter),
	}
}

func (s *Sequencer) counter(roomId int) *roomCounter {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.rooms[roomId]
	if !ok {
		c = &roomCounter{}
		s.rooms[roomId] = c
	}

	return c
}

// Do runs fn with the room's next sequence number inside the room's
// critical section. The counter advances whether or not fn succeeds: a
// failed persistence attempt burns its number, leaving a gap but never a
// duplicate. The number and fn's error are returned. If the warm-up read
// fails, no number is consumed.
func (s *Sequencer) Do(roomId int, fn func(seqId int64) error) (int64, error) {
	c := s.counter(roomId)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.warmed {
		last, err := s.src.HighestSeqId(roomId)
		if err != nil {
			return 0, err
		}
		c.last = last
		c.warmed = true
	}

	seqId := c.last + 1
	err := fn(seqId)
	c.last = seqId

	return seqId, err
}

// Current returns the last issued sequence number for a room without
// warming the counter.
func (s *Sequencer) Current(roomId int) (int64, bool) {
	s.mu.Lock()
	c, ok := s.rooms[roomId]
	s.mu.Unlock()
	if !ok {
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.warmed {
		return 0, false
	}
	return c.last, true
}
