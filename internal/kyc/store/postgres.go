package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"healthtrack/internal/kyc/models"
	"healthtrack/internal/kyc/validation"
	"healthtrack/internal/platform/postgres"
	id "healthtrack/pkg/domain"
	"healthtrack/pkg/platform/sentinel"
	txcontext "healthtrack/pkg/platform/tx"
)

// PostgresStore persists KYC documents. Transitions use optimistic
// concurrency on the version column; a writer that loses the race gets
// sentinel.ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const documentColumns = `id, principal_id, document_type, document_number, full_name, date_of_birth,
	status, rejection_reason, verified_by, verified_at, version, submitted_at, updated_at`

// CreateIfAbsent relies on UNIQUE (principal_id) so concurrent submissions
// for the same principal produce exactly one row.
func (s *PostgresStore) CreateIfAbsent(ctx context.Context, doc *models.KycDocument) error {
	query := `
		INSERT INTO kyc_documents (id, principal_id, document_type, document_number, full_name,
			date_of_birth, status, version, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(doc.ID),
		uuid.UUID(doc.PrincipalID),
		string(doc.DocumentType),
		doc.DocumentNumber,
		doc.FullName,
		doc.DateOfBirth,
		string(doc.Status),
		doc.Version,
		doc.SubmittedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert kyc document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, kycID id.KycID) (*models.KycDocument, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM kyc_documents WHERE id = $1`, uuid.UUID(kycID))
	return scanDocument(row)
}

func (s *PostgresStore) FindByPrincipal(ctx context.Context, principalID id.PrincipalID) (*models.KycDocument, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM kyc_documents WHERE principal_id = $1`, uuid.UUID(principalID))
	return scanDocument(row)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.KycDocument, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+documentColumns+` FROM kyc_documents WHERE status = $1 ORDER BY submitted_at ASC, id ASC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("query kyc documents: %w", err)
	}
	defer rows.Close()

	out := make([]*models.KycDocument, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kyc documents: %w", err)
	}
	return out, nil
}

// Execute reads the document, runs validate and mutate, then writes it back
// guarded by the version that was read.
func (s *PostgresStore) Execute(ctx context.Context, kycID id.KycID, validate func(*models.KycDocument) error, mutate func(*models.KycDocument)) (*models.KycDocument, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)

	doc, err := scanDocument(exec.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM kyc_documents WHERE id = $1`, uuid.UUID(kycID)))
	if err != nil {
		return nil, err
	}
	if err := validate(doc); err != nil {
		return nil, err
	}
	expected := doc.Version
	mutate(doc)
	doc.Version = expected + 1

	var verifiedBy uuid.NullUUID
	if doc.VerifiedBy != nil {
		verifiedBy = uuid.NullUUID{UUID: uuid.UUID(*doc.VerifiedBy), Valid: true}
	}
	var verifiedAt sql.NullTime
	if doc.VerifiedAt != nil {
		verifiedAt = sql.NullTime{Time: *doc.VerifiedAt, Valid: true}
	}
	var reason sql.NullString
	if doc.RejectionReason != "" {
		reason = sql.NullString{String: doc.RejectionReason, Valid: true}
	}

	res, err := exec.ExecContext(ctx, `
		UPDATE kyc_documents
		SET status = $1, rejection_reason = $2, verified_by = $3, verified_at = $4,
			version = $5, updated_at = $6
		WHERE id = $7 AND version = $8
	`, string(doc.Status), reason, verifiedBy, verifiedAt, doc.Version, doc.UpdatedAt, uuid.UUID(kycID), expected)
	if err != nil {
		return nil, fmt.Errorf("update kyc document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update kyc document: %w", err)
	}
	if affected == 0 {
		return nil, sentinel.ErrConflict
	}
	return doc, nil
}

func (s *PostgresStore) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO kyc_audit_log (id, kyc_id, actor_id, action, outcome, prior_status, new_status,
			reason, device, request_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.KycID),
		uuid.UUID(entry.ActorID),
		string(entry.Action),
		string(entry.Outcome),
		string(entry.PriorStatus),
		string(entry.NewStatus),
		entry.Reason,
		entry.Device,
		entry.RequestID,
		entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert kyc audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, kycID id.KycID) ([]*models.AuditEntry, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, `
		SELECT id, kyc_id, actor_id, action, outcome, prior_status, new_status, reason, device, request_id, occurred_at
		FROM kyc_audit_log
		WHERE kyc_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, uuid.UUID(kycID))
	if err != nil {
		return nil, fmt.Errorf("query kyc audit log: %w", err)
	}
	defer rows.Close()

	out := make([]*models.AuditEntry, 0)
	for rows.Next() {
		var (
			e                          models.AuditEntry
			entryID, docID, actorID    uuid.UUID
			action, outcome, prior, to string
		)
		if err := rows.Scan(&entryID, &docID, &actorID, &action, &outcome, &prior, &to,
			&e.Reason, &e.Device, &e.RequestID, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan kyc audit entry: %w", err)
		}
		e.ID = id.AuditEntryID(entryID)
		e.KycID = id.KycID(docID)
		e.ActorID = id.PrincipalID(actorID)
		e.Action = models.AuditAction(action)
		e.Outcome = models.Outcome(outcome)
		e.PriorStatus = models.Status(prior)
		e.NewStatus = models.Status(to)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kyc audit log: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.KycDocument, error) {
	var (
		doc                models.KycDocument
		docID, principalID uuid.UUID
		docType, status    string
		reason             sql.NullString
		verifiedBy         uuid.NullUUID
		verifiedAt         sql.NullTime
		dateOfBirth        time.Time
	)
	err := row.Scan(&docID, &principalID, &docType, &doc.DocumentNumber, &doc.FullName, &dateOfBirth,
		&status, &reason, &verifiedBy, &verifiedAt, &doc.Version, &doc.SubmittedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan kyc document: %w", err)
	}

	doc.ID = id.KycID(docID)
	doc.PrincipalID = id.PrincipalID(principalID)
	doc.DocumentType = validation.DocumentType(docType)
	doc.DateOfBirth = dateOfBirth.UTC()
	doc.Status = models.Status(status)
	doc.RejectionReason = reason.String
	if verifiedBy.Valid {
		v := id.PrincipalID(verifiedBy.UUID)
		doc.VerifiedBy = &v
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		doc.VerifiedAt = &t
	}
	return &doc, nil
}
