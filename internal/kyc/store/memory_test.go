package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"healthtrack/internal/kyc/models"
	"healthtrack/internal/kyc/validation"
	id "healthtrack/pkg/domain"
	"healthtrack/pkg/platform/sentinel"
)

type KycStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *KycStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestKycStoreSuite(t *testing.T) {
	suite.Run(t, new(KycStoreSuite))
}

func (s *KycStoreSuite) newDoc(principal id.PrincipalID, submittedAt time.Time) *models.KycDocument {
	doc, err := models.NewKycDocument(id.NewKycID(), principal, validation.Fields{
		DocumentType:   validation.DocumentNIN,
		DocumentNumber: "12345678901",
		FullName:       "Jane Doe",
		DateOfBirth:    time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
	}, submittedAt)
	s.Require().NoError(err)
	return doc
}

func (s *KycStoreSuite) TestCreateAndLookup() {
	s.Run("finds by id and principal", func() {
		principal := id.NewPrincipalID()
		doc := s.newDoc(principal, time.Now())
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, doc))

		byID, err := s.store.FindByID(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(principal, byID.PrincipalID)

		byPrincipal, err := s.store.FindByPrincipal(s.ctx, principal)
		s.Require().NoError(err)
		s.Equal(doc.ID, byPrincipal.ID)
	})

	s.Run("returns ErrNotFound for unknown ids", func() {
		_, err := s.store.FindByID(s.ctx, id.NewKycID())
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FindByPrincipal(s.ctx, id.NewPrincipalID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("second document for a principal is rejected", func() {
		principal := id.NewPrincipalID()
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, s.newDoc(principal, time.Now())))
		err := s.store.CreateIfAbsent(s.ctx, s.newDoc(principal, time.Now()))
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("returned documents are copies", func() {
		doc := s.newDoc(id.NewPrincipalID(), time.Now())
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, doc))
		found, err := s.store.FindByID(s.ctx, doc.ID)
		s.Require().NoError(err)
		found.Status = models.StatusVerified

		again, err := s.store.FindByID(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, again.Status)
	})
}

func (s *KycStoreSuite) TestConcurrentCreate() {
	principal := id.NewPrincipalID()
	const goroutines = 50

	var wg sync.WaitGroup
	var successes, conflicts atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.CreateIfAbsent(s.ctx, s.newDoc(principal, time.Now()))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *KycStoreSuite) TestListByStatusOrdersBySubmission() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := s.newDoc(id.NewPrincipalID(), base.Add(time.Hour))
	early := s.newDoc(id.NewPrincipalID(), base)
	s.Require().NoError(s.store.CreateIfAbsent(s.ctx, late))
	s.Require().NoError(s.store.CreateIfAbsent(s.ctx, early))

	pending, err := s.store.ListByStatus(s.ctx, models.StatusPending)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(early.ID, pending[0].ID)
	s.Equal(late.ID, pending[1].ID)

	verified, err := s.store.ListByStatus(s.ctx, models.StatusVerified)
	s.Require().NoError(err)
	s.Empty(verified)
}

func (s *KycStoreSuite) TestExecute() {
	admin := id.NewPrincipalID()

	s.Run("applies mutation and bumps version", func() {
		doc := s.newDoc(id.NewPrincipalID(), time.Now())
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, doc))

		updated, err := s.store.Execute(s.ctx, doc.ID,
			func(d *models.KycDocument) error { return d.CanVerify() },
			func(d *models.KycDocument) { d.ApplyVerify(admin, time.Now()) },
		)
		s.Require().NoError(err)
		s.Equal(models.StatusVerified, updated.Status)
		s.Equal(int64(2), updated.Version)
	})

	s.Run("validation failure leaves record untouched", func() {
		doc := s.newDoc(id.NewPrincipalID(), time.Now())
		s.Require().NoError(s.store.CreateIfAbsent(s.ctx, doc))

		mutated := false
		_, err := s.store.Execute(s.ctx, doc.ID,
			func(*models.KycDocument) error { return errors.New("nope") },
			func(*models.KycDocument) { mutated = true },
		)
		s.Require().Error(err)
		s.False(mutated)

		found, err := s.store.FindByID(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(int64(1), found.Version)
	})

	s.Run("unknown id", func() {
		_, err := s.store.Execute(s.ctx, id.NewKycID(),
			func(*models.KycDocument) error { return nil },
			func(*models.KycDocument) {},
		)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestConcurrentVerifyAndReject races two reviewers on one pending record.
func (s *KycStoreSuite) TestConcurrentVerifyAndReject() {
	doc := s.newDoc(id.NewPrincipalID(), time.Now())
	s.Require().NoError(s.store.CreateIfAbsent(s.ctx, doc))

	var wg sync.WaitGroup
	var successes atomic.Int32
	run := func(validate func(*models.KycDocument) error, mutate func(*models.KycDocument)) {
		defer wg.Done()
		if _, err := s.store.Execute(s.ctx, doc.ID, validate, mutate); err == nil {
			successes.Add(1)
		}
	}
	wg.Add(2)
	go run(func(d *models.KycDocument) error { return d.CanVerify() },
		func(d *models.KycDocument) { d.ApplyVerify(id.NewPrincipalID(), time.Now()) })
	go run(func(d *models.KycDocument) error { return d.CanReject() },
		func(d *models.KycDocument) { d.ApplyReject(id.NewPrincipalID(), "blurry", time.Now()) })
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	final, err := s.store.FindByID(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.True(final.Status.IsTerminal())
}

func (s *KycStoreSuite) TestAuditLog() {
	doc := s.newDoc(id.NewPrincipalID(), time.Now())
	s.Require().NoError(s.store.CreateIfAbsent(s.ctx, doc))

	for _, action := range []models.AuditAction{models.AuditActionReject, models.AuditActionVerifyDenied} {
		s.Require().NoError(s.store.AppendAudit(s.ctx, &models.AuditEntry{
			ID:         id.NewAuditEntryID(),
			KycID:      doc.ID,
			ActorID:    id.NewPrincipalID(),
			Action:     action,
			Outcome:    models.OutcomeSuccess,
			OccurredAt: time.Now(),
		}))
	}

	entries, err := s.store.ListAudit(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(models.AuditActionReject, entries[0].Action)
	s.Equal(models.AuditActionVerifyDenied, entries[1].Action)

	err = s.store.AppendAudit(s.ctx, &models.AuditEntry{ID: id.NewAuditEntryID(), KycID: id.NewKycID()})
	s.ErrorIs(err, sentinel.ErrNotFound)
}
