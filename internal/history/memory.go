package history

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store for development and tests. Queries
// rank cases by keyword overlap instead of embeddings, which is enough
// to exercise retrieval paths without the sidecar.
type MemoryStore struct {
	mu    sync.RWMutex
	cases []Case
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Add(_ context.Context, c Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases = append(s.cases, c)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, query string, k int) ([]Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := tokenize(query)
	scored := make([]Case, 0, len(s.cases))
	for _, c := range s.cases {
		score := overlap(terms, tokenize(c.Text+" "+c.Meta.Entity+" "+c.Meta.Reason))
		if score > 0 {
			c.Score = score
			scored = append(scored, c)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (s *MemoryStore) All(_ context.Context) ([]Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Case, len(s.cases))
	copy(out, s.cases)
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Count: len(s.cases)}, nil
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,:;\"'()[]{}")
		if len(w) > 1 {
			out[w] = struct{}{}
		}
	}
	return out
}

func overlap(a, b map[string]struct{}) float64 {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	if len(a) == 0 {
		return 0
	}
	return float64(n) / float64(len(a))
}
