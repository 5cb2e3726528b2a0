package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

// IdentityStore is an in-memory employee table for tests and dev.
type IdentityStore struct {
	mu        sync.RWMutex
	employees []types.Employee
}

func NewIdentityStore(employees ...types.Employee) *IdentityStore {
	s := &IdentityStore{}
	for _, e := range employees {
		s.Put(e)
	}
	return s
}

// Put adds or replaces an employee by ID.
func (s *IdentityStore) Put(e types.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.employees {
		if s.employees[i].ID == e.ID {
			s.employees[i] = e
			return
		}
	}
	s.employees = append(s.employees, e)
}

func (s *IdentityStore) FindByCredential(_ context.Context, credential string) ([]types.Employee, error) {
	credential = strings.TrimSpace(credential)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Employee
	for _, e := range s.employees {
		if e.CardNumber == credential {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *IdentityStore) GetEmployee(_ context.Context, id string) (*types.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.employees {
		if e.ID == id {
			e := e
			return &e, nil
		}
	}
	return nil, nil
}
