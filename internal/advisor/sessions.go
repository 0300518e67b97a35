package advisor

import "sync"

// Sessions holds completed retrievals while the caller decides whether to
// synthesize an answer or discard the data.
type Sessions struct {
	mu sync.Mutex
	m  map[string]*Retrieval
}

func NewSessions() *Sessions {
	return &Sessions{m: make(map[string]*Retrieval)}
}

func (s *Sessions) Put(r *Retrieval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[r.ID] = r
}

func (s *Sessions) Get(id string) (*Retrieval, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.m[id]
	return r, ok
}

func (s *Sessions) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
}
