// Package memory is an in-process [goCred.PrincipalStore] for tests, demos
// and single-instance deployments. Conditional updates are serialized by a
// mutex, which gives the same compare-and-set semantics as the Postgres store.
package memory

import (
	"context"
	"sync"

	goCred "github.com/MrEthical07/goCred"
)

// Store keeps principals in maps keyed by id and email.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]goCred.Principal
	byEmail map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:    make(map[string]goCred.Principal),
		byEmail: make(map[string]string),
	}
}

func (s *Store) FindByID(_ context.Context, id string) (goCred.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return goCred.Principal{}, goCred.ErrPrincipalNotFound
	}
	return p.Clone(), nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (goCred.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return goCred.Principal{}, goCred.ErrPrincipalNotFound
	}
	return s.byID[id].Clone(), nil
}

// Create inserts p. Duplicate ids or emails return [goCred.ErrPrincipalExists].
func (s *Store) Create(_ context.Context, p goCred.Principal) (goCred.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[p.ID]; ok {
		return goCred.Principal{}, goCred.ErrPrincipalExists
	}
	if _, ok := s.byEmail[p.Email]; ok {
		return goCred.Principal{}, goCred.ErrPrincipalExists
	}
	s.byID[p.ID] = p.Clone()
	s.byEmail[p.Email] = p.ID
	return p.Clone(), nil
}

// UpdateFields applies patch when the stored principal satisfies cond.
func (s *Store) UpdateFields(_ context.Context, id string, cond goCred.Condition, patch goCred.Patch) (goCred.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return goCred.Principal{}, goCred.ErrPrincipalNotFound
	}
	if !p.Satisfies(cond) {
		return goCred.Principal{}, goCred.ErrPrincipalConflict
	}
	next := p.Apply(patch)
	s.byID[id] = next
	return next.Clone(), nil
}

// Len returns the number of stored principals.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
