// Package store persists doctor profiles and their approval state.
package store

import (
	"context"
	"sort"
	"sync"

	"healthtrack/internal/doctor/models"
	id "healthtrack/pkg/domain"
	"healthtrack/pkg/platform/sentinel"
)

// InMemory keeps profiles in a map. Execute holds the write lock across
// validate and mutate.
type InMemory struct {
	mu       sync.RWMutex
	profiles map[id.PrincipalID]*models.DoctorProfile
}

func NewInMemory() *InMemory {
	return &InMemory{profiles: make(map[id.PrincipalID]*models.DoctorProfile)}
}

func (s *InMemory) Create(_ context.Context, profile *models.DoctorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[profile.DoctorID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *profile
	s.profiles[profile.DoctorID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, doctorID id.PrincipalID) (*models.DoctorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[doctorID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// IsApproved is false for unknown doctors.
func (s *InMemory) IsApproved(_ context.Context, doctorID id.PrincipalID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[doctorID]
	return ok && p.Approved(), nil
}

// ListByState returns profiles in state, oldest first.
func (s *InMemory) ListByState(_ context.Context, state models.ApprovalState) ([]*models.DoctorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.DoctorProfile, 0)
	for _, p := range s.profiles {
		if p.State == state {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemory) Execute(_ context.Context, doctorID id.PrincipalID, validate func(*models.DoctorProfile) error, mutate func(*models.DoctorProfile)) (*models.DoctorProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[doctorID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	cp.Version = p.Version + 1
	s.profiles[doctorID] = &cp

	out := cp
	return &out, nil
}
