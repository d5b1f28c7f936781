// Package store persists KYC documents and their append-only audit log.
package store

import (
	"context"
	"sort"
	"sync"

	"healthtrack/internal/kyc/models"
	id "healthtrack/pkg/domain"
	"healthtrack/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded store for tests and database-less runs.
// Execute holds the lock across validate and mutate, which gives the same
// single-winner guarantee as the versioned UPDATE in PostgresStore.
type InMemory struct {
	mu          sync.RWMutex
	docs        map[id.KycID]*models.KycDocument
	byPrincipal map[id.PrincipalID]id.KycID
	audit       map[id.KycID][]*models.AuditEntry
}

func NewInMemory() *InMemory {
	return &InMemory{
		docs:        make(map[id.KycID]*models.KycDocument),
		byPrincipal: make(map[id.PrincipalID]id.KycID),
		audit:       make(map[id.KycID][]*models.AuditEntry),
	}
}

func (s *InMemory) CreateIfAbsent(_ context.Context, doc *models.KycDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byPrincipal[doc.PrincipalID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *doc
	s.docs[doc.ID] = &cp
	s.byPrincipal[doc.PrincipalID] = doc.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, kycID id.KycID) (*models.KycDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[kycID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *InMemory) FindByPrincipal(_ context.Context, principalID id.PrincipalID) (*models.KycDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kycID, ok := s.byPrincipal[principalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.docs[kycID]
	return &cp, nil
}

// ListByStatus returns documents in status, oldest submission first.
func (s *InMemory) ListByStatus(_ context.Context, status models.Status) ([]*models.KycDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.KycDocument, 0)
	for _, doc := range s.docs {
		if doc.Status == status {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

// Execute runs validate then mutate on a copy of the document under the
// write lock and stores the result with an incremented version.
func (s *InMemory) Execute(_ context.Context, kycID id.KycID, validate func(*models.KycDocument) error, mutate func(*models.KycDocument)) (*models.KycDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[kycID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *doc
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	cp.Version = doc.Version + 1
	s.docs[kycID] = &cp

	out := cp
	return &out, nil
}

func (s *InMemory) AppendAudit(_ context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[entry.KycID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *entry
	s.audit[entry.KycID] = append(s.audit[entry.KycID], &cp)
	return nil
}

// ListAudit returns entries for kycID in append order.
func (s *InMemory) ListAudit(_ context.Context, kycID id.KycID) ([]*models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.audit[kycID]
	out := make([]*models.AuditEntry, len(entries))
	for i, e := range entries {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}
