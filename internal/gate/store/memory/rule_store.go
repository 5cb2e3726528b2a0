package memory

import (
	"context"
	"sync"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

type RuleStore struct {
	mu    sync.RWMutex
	rules []types.AccessRule
}

func NewRuleStore(rules ...types.AccessRule) *RuleStore {
	return &RuleStore{rules: append([]types.AccessRule(nil), rules...)}
}

func (s *RuleStore) Add(r types.AccessRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, r)
}

func (s *RuleStore) RulesForEmployee(_ context.Context, employeeID string) ([]types.AccessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.AccessRule
	for _, r := range s.rules {
		if r.EmployeeID == employeeID {
			out = append(out, r)
		}
	}
	return out, nil
}
