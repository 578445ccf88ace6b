package collection

// sequencer applies completions for the same key in the order the requests
// were issued. Completions that arrive early are parked until every earlier
// one for that key has been applied. Keys are independent. Owner-only.
type sequencer struct {
	issued  map[string]uint64
	applied map[string]uint64
	parked  map[string]map[uint64]func()
}

func newSequencer() *sequencer {
	return &sequencer{
		issued:  make(map[string]uint64),
		applied: make(map[string]uint64),
		parked:  make(map[string]map[uint64]func()),
	}
}

func (s *sequencer) issue(key string) uint64 {
	s.issued[key]++
	return s.issued[key]
}

func (s *sequencer) complete(key string, seq uint64, apply func()) {
	waiting := s.parked[key]
	if waiting == nil {
		waiting = make(map[uint64]func())
		s.parked[key] = waiting
	}
	waiting[seq] = apply

	for {
		next := s.applied[key] + 1
		fn, ok := waiting[next]
		if !ok {
			break
		}
		delete(waiting, next)
		s.applied[key] = next
		fn()
	}

	// Everything issued has been applied; forget the key.
	if s.applied[key] == s.issued[key] {
		delete(s.issued, key)
		delete(s.applied, key)
		delete(s.parked, key)
	}
}

func (s *sequencer) inFlight(key string) uint64 {
	return s.issued[key] - s.applied[key]
}
