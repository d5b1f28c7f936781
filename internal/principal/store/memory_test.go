package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"healthtrack/internal/principal/models"
	id "healthtrack/pkg/domain"
	"healthtrack/pkg/platform/sentinel"
)

type PrincipalStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestPrincipalStoreSuite(t *testing.T) {
	suite.Run(t, new(PrincipalStoreSuite))
}

func (s *PrincipalStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *PrincipalStoreSuite) newPrincipal(address string) *models.Principal {
	now := time.Now()
	return &models.Principal{ID: id.NewPrincipalID(), Email: address, FullName: "Test User", CreatedAt: now, UpdatedAt: now}
}

func (s *PrincipalStoreSuite) TestCreate() {
	s.Run("email is unique", func() {
		s.Require().NoError(s.store.Create(s.ctx, s.newPrincipal("a@example.com")))
		s.ErrorIs(s.store.Create(s.ctx, s.newPrincipal("a@example.com")), sentinel.ErrAlreadyUsed)
	})

	s.Run("concurrent sign-ups with one email produce one principal", func() {
		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 25 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if s.store.Create(s.ctx, s.newPrincipal("race@example.com")) == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		s.Equal(int32(1), wins.Load())
	})
}

func (s *PrincipalStoreSuite) TestRoles() {
	p := s.newPrincipal("roles@example.com")
	s.Require().NoError(s.store.Create(s.ctx, p))

	_, err := s.store.RoleOf(s.ctx, p.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.AssignRole(s.ctx, models.RoleAssignment{PrincipalID: p.ID, Role: id.RoleDoctor, AssignedAt: time.Now()}))
	s.ErrorIs(s.store.AssignRole(s.ctx, models.RoleAssignment{PrincipalID: p.ID, Role: id.RoleAdmin, AssignedAt: time.Now()}), sentinel.ErrAlreadyUsed)

	role, err := s.store.RoleOf(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(id.RoleDoctor, role)

	s.ErrorIs(s.store.AssignRole(s.ctx, models.RoleAssignment{PrincipalID: id.NewPrincipalID(), Role: id.RolePatient}), sentinel.ErrNotFound)
}

func (s *PrincipalStoreSuite) TestUpdateProfile() {
	p := s.newPrincipal("update@example.com")
	s.Require().NoError(s.store.Create(s.ctx, p))

	p.FullName = "Renamed"
	p.Email = "ignored@example.com"
	s.Require().NoError(s.store.UpdateProfile(s.ctx, p))

	found, err := s.store.FindByEmail(s.ctx, "update@example.com")
	s.Require().NoError(err)
	s.Equal("Renamed", found.FullName)

	s.ErrorIs(s.store.UpdateProfile(s.ctx, s.newPrincipal("ghost@example.com")), sentinel.ErrNotFound)
}
