package memory

import "time"

// DeleteRateLimitEventsBefore 惰性清理窗口之外的限流事件。
func (s *Store) DeleteRateLimitEventsBefore(key string, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.rateEvents[key]
	kept := events[:0]
	for _, at := range events {
		if at.Before(cutoff) {
			continue
		}
		kept = append(kept, at)
	}
	if len(kept) == 0 {
		delete(s.rateEvents, key)
		return nil
	}
	s.rateEvents[key] = kept
	return nil
}

// CountRateLimitEvents 统计指定 Key 的事件数量。
func (s *Store) CountRateLimitEvents(key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rateEvents[key]), nil
}

// InsertRateLimitEvent 追加一条限流事件。
func (s *Store) InsertRateLimitEvent(key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateEvents[key] = append(s.rateEvents[key], at)
	return nil
}
