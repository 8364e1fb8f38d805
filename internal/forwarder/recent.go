package forwarder

import (
	"sync"
	"time"

	"github.com/akave-ai/apicapture/internal/model"
)

const DefaultRecentSize = 200

// RecentRecord is a forwarded record and when it arrived.
type RecentRecord struct {
	ReceivedAt time.Time    `json:"received_at"`
	Record     model.Record `json:"record"`
}

// RecentStore keeps the last N forwarded records in a ring.
type RecentStore struct {
	mu    sync.Mutex
	items []RecentRecord
	next  int
	full  bool
}

func NewRecentStore(size int) *RecentStore {
	if size <= 0 {
		size = DefaultRecentSize
	}
	return &RecentStore{items: make([]RecentRecord, size)}
}

func (s *RecentStore) Add(rec model.Record, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[s.next] = RecentRecord{ReceivedAt: at, Record: rec}
	s.next = (s.next + 1) % len(s.items)
	if s.next == 0 {
		s.full = true
	}
}

// Recent returns up to limit records, newest first. limit <= 0 returns all of them.
func (s *RecentStore) Recent(limit int) []RecentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	if s.full {
		n = len(s.items)
	}
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]RecentRecord, 0, n)
	for i := 1; i <= n; i++ {
		idx := (s.next - i + len(s.items)) % len(s.items)
		out = append(out, s.items[idx])
	}
	return out
}

func (s *RecentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return len(s.items)
	}
	return s.next
}
