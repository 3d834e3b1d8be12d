package workflow

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*Instance
	decisions map[string][]Decision
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]*Instance),
		decisions: make(map[string][]Decision),
	}
}

func (s *MemoryStore) CreateInstance(_ context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; ok {
		return errors.Wrapf(ErrAlreadyExists, "id %s", inst.ID)
	}

	cp := *inst
	s.instances[inst.ID] = &cp
	return nil
}

func (s *MemoryStore) GetInstance(_ context.Context, id string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	cp := *inst
	return &cp, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; !ok {
		return errors.Wrapf(ErrNotFound, "id %s", inst.ID)
	}
	cp := *inst
	s.instances[inst.ID] = &cp
	return nil
}

func (s *MemoryStore) AppendDecision(_ context.Context, instanceID string, d Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[instanceID]; !ok {
		return errors.Wrapf(ErrNotFound, "id %s", instanceID)
	}
	s.decisions[instanceID] = append(s.decisions[instanceID], d)
	return nil
}

func (s *MemoryStore) ListDecisions(_ context.Context, instanceID string) ([]Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.decisions[instanceID]
	out := make([]Decision, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemoryStore) ListRunning(_ context.Context) ([]*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Instance
	for _, inst := range s.instances {
		if !inst.Status.IsTerminal() {
			cp := *inst
			out = append(out, &cp)
		}
	}
	return out, nil
}
