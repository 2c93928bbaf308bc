package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/roomkit/ports"
)

// RoleStore is an in-memory implementation of ports.RoleStore.
type RoleStore struct {
	mu    sync.RWMutex
	roles map[string]ports.RoleAssignment // by auth
}

// NewRoleStore creates a new in-memory role store.
func NewRoleStore() *RoleStore {
	return &RoleStore{
		roles: make(map[string]ports.RoleAssignment),
	}
}

// Get retrieves an assignment by auth identity.
func (s *RoleStore) Get(ctx context.Context, auth string) (ports.RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.roles[auth]
	if !ok {
		return ports.RoleAssignment{}, ports.ErrNotFound
	}
	return a, nil
}

// Put creates or replaces an assignment.
func (s *RoleStore) Put(ctx context.Context, a ports.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roles[a.Auth] = a
	return nil
}

// Delete removes an assignment.
func (s *RoleStore) Delete(ctx context.Context, auth string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[auth]; !ok {
		return ports.ErrNotFound
	}
	delete(s.roles, auth)
	return nil
}

// List returns all assignments ordered by auth.
func (s *RoleStore) List(ctx context.Context) ([]ports.RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ports.RoleAssignment, 0, len(s.roles))
	for _, a := range s.roles {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Auth < result[j].Auth })
	return result, nil
}

// Ensure interface compliance.
var _ ports.RoleStore = (*RoleStore)(nil)
