package kyc

import (
	"context"
	"sort"
	"sync"
)

// InMemory implements Store with in-process locking.
type InMemory struct {
	mu    sync.RWMutex
	cases map[pairKey]*Case
	byID  map[string]pairKey
}

type pairKey struct {
	subject string
	role    Role
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		cases: make(map[pairKey]*Case),
		byID:  make(map[string]pairKey),
	}
}

func (s *InMemory) Get(ctx context.Context, subjectID string, role Role) (Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[pairKey{subjectID, role}]
	if !ok {
		return Case{}, ErrNotFound
	}
	return *c, nil
}

func (s *InMemory) GetByID(ctx context.Context, id string) (Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byID[id]
	if !ok {
		return Case{}, ErrNotFound
	}
	return *s.cases[key], nil
}

func (s *InMemory) MutateSubject(ctx context.Context, subjectID string, role Role, fn MutateFunc) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{subjectID, role}
	cur := Case{SubjectID: subjectID, Role: role, State: State{Status: StatusNone}}
	if c, ok := s.cases[key]; ok {
		cur = *c
	}
	return s.apply(key, cur, fn)
}

func (s *InMemory) MutateByID(ctx context.Context, id string, fn MutateFunc) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if !ok {
		return Case{}, ErrNotFound
	}
	return s.apply(key, *s.cases[key], fn)
}

func (s *InMemory) apply(key pairKey, cur Case, fn MutateFunc) (Case, error) {
	next, err := fn(cur)
	if err != nil {
		return Case{}, err
	}
	next.SubjectID = key.subject
	next.Role = key.role
	if cur.ID != "" && cur.ID != next.ID {
		delete(s.byID, cur.ID)
	}
	stored := next
	s.cases[key] = &stored
	if next.ID != "" {
		s.byID[next.ID] = key
	}
	return next, nil
}

func (s *InMemory) List(ctx context.Context, status Status, limit int) ([]Case, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Case
	for _, c := range s.cases {
		if c.Status == status {
			res = append(res, *c)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].SubmittedAt.Equal(res[j].SubmittedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].SubmittedAt.Before(res[j].SubmittedAt)
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *InMemory) Count(ctx context.Context, status Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.cases {
		if c.Status == status {
			n++
		}
	}
	return n, nil
}
