package news

import "sort"

// DefaultMaxItems caps a SentSet when no explicit limit is configured.
const DefaultMaxItems = 1000

// SentSet is an insertion-ordered set of already notified identifiers.
// It keeps at most Cap() entries, evicting the least recently seen first.
// Not safe for concurrent use; each loop owns its own set.
type SentSet struct {
	max   int
	seq   uint64
	order map[string]uint64
}

// NewSentSet creates an empty set. maxItems <= 0 falls back to DefaultMaxItems.
func NewSentSet(maxItems int) *SentSet {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &SentSet{max: maxItems, order: make(map[string]uint64)}
}

// SentSetFrom builds a set from identifiers ordered oldest first.
// When ids exceeds the cap only the newest entries are kept.
func SentSetFrom(ids []string, maxItems int) *SentSet {
	s := NewSentSet(maxItems)
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Cap returns the configured maximum size.
func (s *SentSet) Cap() int { return s.max }

// Len returns the number of identifiers held.
func (s *SentSet) Len() int { return len(s.order) }

// Contains reports exact-string membership.
func (s *SentSet) Contains(id string) bool {
	_, ok := s.order[id]
	return ok
}

// Add inserts id as the most recent entry, evicting the oldest one when full.
// Adding an existing id refreshes its recency.
func (s *SentSet) Add(id string) {
	s.seq++
	s.order[id] = s.seq
	for len(s.order) > s.max {
		s.evictOldest()
	}
}

// Touch refreshes the recency of id if present and reports whether it was.
func (s *SentSet) Touch(id string) bool {
	if _, ok := s.order[id]; !ok {
		return false
	}
	s.seq++
	s.order[id] = s.seq
	return true
}

// IDs returns the identifiers ordered oldest first.
func (s *SentSet) IDs() []string {
	ids := make([]string, 0, len(s.order))
	for id := range s.order {
		ids = append(ids, id)
	}
	sortBySeq(ids, s.order)
	return ids
}

// Clone returns an independent copy.
func (s *SentSet) Clone() *SentSet {
	c := &SentSet{max: s.max, seq: s.seq, order: make(map[string]uint64, len(s.order))}
	for id, n := range s.order {
		c.order[id] = n
	}
	return c
}

func (s *SentSet) evictOldest() {
	var (
		oldest string
		lowest uint64
		first  = true
	)
	for id, n := range s.order {
		if first || n < lowest {
			oldest, lowest, first = id, n, false
		}
	}
	delete(s.order, oldest)
}

func sortBySeq(ids []string, order map[string]uint64) {
	sort.Slice(ids, func(i, j int) bool { return order[ids[i]] < order[ids[j]] })
}
