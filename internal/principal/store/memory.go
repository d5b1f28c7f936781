// Package store persists principals and their role assignments.
package store

import (
	"context"
	"sync"

	"healthtrack/internal/principal/models"
	id "healthtrack/pkg/domain"
	"healthtrack/pkg/platform/sentinel"
)

type InMemory struct {
	mu      sync.RWMutex
	byID    map[id.PrincipalID]*models.Principal
	byEmail map[string]id.PrincipalID
	roles   map[id.PrincipalID]models.RoleAssignment
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[id.PrincipalID]*models.Principal),
		byEmail: make(map[string]id.PrincipalID),
		roles:   make(map[id.PrincipalID]models.RoleAssignment),
	}
}

// Create returns sentinel.ErrAlreadyUsed when the email is taken.
func (s *InMemory) Create(_ context.Context, p *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[p.Email]; taken {
		return sentinel.ErrAlreadyUsed
	}
	if _, exists := s.byID[p.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *p
	s.byID[p.ID] = &cp
	s.byEmail[p.Email] = p.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, principalID id.PrincipalID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[principalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemory) FindByEmail(_ context.Context, address string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	principalID, ok := s.byEmail[address]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[principalID]
	return &cp, nil
}

// UpdateProfile overwrites the contact fields of an existing principal.
func (s *InMemory) UpdateProfile(_ context.Context, p *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[p.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	cur.FullName = p.FullName
	cur.Phone = p.Phone
	cur.UpdatedAt = p.UpdatedAt
	return nil
}

// AssignRole returns sentinel.ErrAlreadyUsed if the principal already has a
// role; assignments are never replaced.
func (s *InMemory) AssignRole(_ context.Context, a models.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[a.PrincipalID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, exists := s.roles[a.PrincipalID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.roles[a.PrincipalID] = a
	return nil
}

func (s *InMemory) RoleOf(_ context.Context, principalID id.PrincipalID) (id.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.roles[principalID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return a.Role, nil
}
