//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"healthtrack/internal/kyc/models"
	"healthtrack/internal/kyc/store"
	"healthtrack/internal/kyc/validation"
	"healthtrack/internal/platform/postgres"
	id "healthtrack/pkg/domain"
	dErrors "healthtrack/pkg/domain-errors"
	"healthtrack/pkg/platform/sentinel"
	"healthtrack/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	tx       *postgres.TxRunner
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.tx = postgres.NewTxRunner(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
}

func (s *PostgresStoreSuite) newDoc(principal id.PrincipalID) *models.KycDocument {
	doc, err := models.NewKycDocument(id.NewKycID(), principal, validation.Fields{
		DocumentType:   validation.DocumentPassport,
		DocumentNumber: "A12345678",
		FullName:       "Jane Doe",
		DateOfBirth:    time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
	}, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return doc
}

func (s *PostgresStoreSuite) seed(role string) id.PrincipalID {
	return id.PrincipalID(s.postgres.SeedPrincipal(context.Background(), s.T(), role))
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	doc := s.newDoc(s.seed("patient"))
	s.Require().NoError(s.store.CreateIfAbsent(ctx, doc))

	found, err := s.store.FindByPrincipal(ctx, doc.PrincipalID)
	s.Require().NoError(err)
	s.Equal(doc.ID, found.ID)
	s.Equal(doc.DocumentNumber, found.DocumentNumber)
	s.Equal(doc.DateOfBirth, found.DateOfBirth)
	s.Equal(models.StatusPending, found.Status)
	s.Nil(found.VerifiedBy)

	_, err = s.store.FindByID(ctx, id.NewKycID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentSubmission verifies that concurrent submissions for the same
// principal result in exactly one row.
func (s *PostgresStoreSuite) TestConcurrentSubmission() {
	ctx := context.Background()
	principal := s.seed("patient")
	const goroutines = 20

	var wg sync.WaitGroup
	var successes, duplicates atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.CreateIfAbsent(ctx, s.newDoc(principal))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				duplicates.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), duplicates.Load())
}

// TestConcurrentVerifyAndReject races two transactions on one pending record.
// The loser sees either the terminal state or a version conflict.
func (s *PostgresStoreSuite) TestConcurrentVerifyAndReject() {
	ctx := context.Background()
	doc := s.newDoc(s.seed("patient"))
	s.Require().NoError(s.store.CreateIfAbsent(ctx, doc))
	adminA, adminB := s.seed("admin"), s.seed("admin")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	run := func(i int, validate func(*models.KycDocument) error, mutate func(*models.KycDocument)) {
		defer wg.Done()
		errs[i] = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			_, err := s.store.Execute(txCtx, doc.ID, validate, mutate)
			return err
		})
	}

	wg.Add(2)
	go run(0, func(d *models.KycDocument) error { return d.CanVerify() },
		func(d *models.KycDocument) { d.ApplyVerify(adminA, time.Now()) })
	go run(1, func(d *models.KycDocument) error { return d.CanReject() },
		func(d *models.KycDocument) { d.ApplyReject(adminB, "blurry scan", time.Now()) })
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		s.True(errors.Is(err, sentinel.ErrConflict) || dErrors.HasReason(err, dErrors.ReasonInvalidTransition),
			"loser must see a conflict or invalid transition, got %v", err)
	}
	s.Equal(1, winners)

	final, err := s.store.FindByID(ctx, doc.ID)
	s.Require().NoError(err)
	s.True(final.Status.IsTerminal())
	s.Equal(int64(2), final.Version)
	s.Equal(final.Status == models.StatusRejected, final.RejectionReason != "")
}

func (s *PostgresStoreSuite) TestAuditLogIsAppendOnly() {
	ctx := context.Background()
	doc := s.newDoc(s.seed("patient"))
	s.Require().NoError(s.store.CreateIfAbsent(ctx, doc))
	admin := s.seed("admin")

	entry := &models.AuditEntry{
		ID:          id.NewAuditEntryID(),
		KycID:       doc.ID,
		ActorID:     admin,
		Action:      models.AuditActionReject,
		Outcome:     models.OutcomeSuccess,
		PriorStatus: models.StatusPending,
		NewStatus:   models.StatusRejected,
		Reason:      "document illegible",
		OccurredAt:  time.Now().UTC(),
	}
	s.Require().NoError(s.store.AppendAudit(ctx, entry))

	entries, err := s.store.ListAudit(ctx, doc.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("document illegible", entries[0].Reason)

	_, err = s.postgres.DB.ExecContext(ctx, `UPDATE kyc_audit_log SET reason = 'edited'`)
	s.Error(err, "audit log rows must not be updatable")
	_, err = s.postgres.DB.ExecContext(ctx, `DELETE FROM kyc_audit_log`)
	s.Error(err, "audit log rows must not be deletable")
}
