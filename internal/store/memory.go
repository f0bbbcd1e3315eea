package store

import (
	"sync"

	"github.com/tripnavi/tripnavi/internal/models"
)

type historyKey struct {
	userID string
	plan   models.Plan
}

// InMemoryStore keeps sessions and history in process memory. State is
// lost on restart; intended for tests and single-process deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	plans   map[string]models.Plan
	history map[historyKey][]models.Turn
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		plans:   make(map[string]models.Plan),
		history: make(map[historyKey][]models.Turn),
	}
}

func (s *InMemoryStore) SetPlan(userID string, plan models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[userID] = plan
	return nil
}

func (s *InMemoryStore) GetPlan(userID string) (models.Plan, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[userID]
	return plan, ok, nil
}

func (s *InMemoryStore) AppendTurns(userID string, plan models.Plan, turns ...models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := historyKey{userID: userID, plan: plan}
	s.history[key] = append(s.history[key], turns...)
	return nil
}

func (s *InMemoryStore) GetTurns(userID string, plan models.Plan) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.history[historyKey{userID: userID, plan: plan}]
	out := make([]models.Turn, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
