package store

// Observer receives write/read notifications for external metrics
// aggregation. The store itself computes nothing from them.
type Observer interface {
	OnWriteMessage(streamID string, sizeBytes int)
	OnReadMessage(streamID string, sizeBytes int)
}

// Subscribe registers an observer and returns its cancel function.
// Notifications stop once the cancel function returns.
func (s *Store) Subscribe(o Observer) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = o
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store) notifyWrite(streamID string, sizeBytes int) {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	for _, o := range s.observers {
		o.OnWriteMessage(streamID, sizeBytes)
	}
}

func (s *Store) notifyRead(streamID string, sizeBytes int) {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	for _, o := range s.observers {
		o.OnReadMessage(streamID, sizeBytes)
	}
}
