package models

import (
	"strings"
	"time"

	"healthtrack/internal/kyc/validation"
	id "healthtrack/pkg/domain"
	dErrors "healthtrack/pkg/domain-errors"
)

// Status is the verification state of a KYC document.
type Status string

const (
	// StatusNone is reported by reads when no document exists. It is never
	// persisted.
	StatusNone     Status = "none"
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// CanTransitionTo encodes pending -> {verified, rejected}. Terminal states
// have no outgoing edges, so a rejected record is never reopened.
func (s Status) CanTransitionTo(target Status) bool {
	return s == StatusPending && target.IsTerminal()
}

// KycDocument is the aggregate for one principal's identity document.
//
// Invariants:
//   - at most one per principal
//   - RejectionReason is set iff Status is rejected
//   - VerifiedBy and VerifiedAt are set iff Status is terminal
//   - Version increments on every persisted transition
type KycDocument struct {
	ID              id.KycID                `json:"id"`
	PrincipalID     id.PrincipalID          `json:"principal_id"`
	DocumentType    validation.DocumentType `json:"document_type"`
	DocumentNumber  string                  `json:"document_number"`
	FullName        string                  `json:"full_name"`
	DateOfBirth     time.Time               `json:"date_of_birth"`
	Status          Status                  `json:"status"`
	RejectionReason string                  `json:"rejection_reason,omitempty"`
	VerifiedBy      *id.PrincipalID         `json:"verified_by,omitempty"`
	VerifiedAt      *time.Time              `json:"verified_at,omitempty"`
	Version         int64                   `json:"-"`
	SubmittedAt     time.Time               `json:"submitted_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// NewKycDocument builds a pending document from validated fields.
func NewKycDocument(kycID id.KycID, principalID id.PrincipalID, fields validation.Fields, now time.Time) (*KycDocument, error) {
	if kycID.IsNil() || principalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "kyc document requires identifiers")
	}
	return &KycDocument{
		ID:             kycID,
		PrincipalID:    principalID,
		DocumentType:   fields.DocumentType,
		DocumentNumber: fields.DocumentNumber,
		FullName:       fields.FullName,
		DateOfBirth:    fields.DateOfBirth,
		Status:         StatusPending,
		Version:        1,
		SubmittedAt:    now,
		UpdatedAt:      now,
	}, nil
}

// CanVerify checks the pending -> verified edge.
func (k *KycDocument) CanVerify() error {
	if !k.Status.CanTransitionTo(StatusVerified) {
		return dErrors.NewReason(dErrors.CodeInvariantViolation, dErrors.ReasonInvalidTransition,
			"kyc document is "+string(k.Status)+", only pending documents can be verified")
	}
	return nil
}

// ApplyVerify stamps the verifier. Call CanVerify first.
func (k *KycDocument) ApplyVerify(admin id.PrincipalID, now time.Time) {
	k.Status = StatusVerified
	k.VerifiedBy = &admin
	k.VerifiedAt = &now
	k.UpdatedAt = now
}

// CanReject checks the pending -> rejected edge.
func (k *KycDocument) CanReject() error {
	if !k.Status.CanTransitionTo(StatusRejected) {
		return dErrors.NewReason(dErrors.CodeInvariantViolation, dErrors.ReasonInvalidTransition,
			"kyc document is "+string(k.Status)+", only pending documents can be rejected")
	}
	return nil
}

// ApplyReject stores the reason and the reviewing admin. Call CanReject first.
func (k *KycDocument) ApplyReject(admin id.PrincipalID, reason string, now time.Time) {
	k.Status = StatusRejected
	k.RejectionReason = reason
	k.VerifiedBy = &admin
	k.VerifiedAt = &now
	k.UpdatedAt = now
}

// Masked returns a copy with the document number masked.
func (k *KycDocument) Masked() *KycDocument {
	cp := *k
	cp.DocumentNumber = MaskNumber(k.DocumentNumber)
	return &cp
}

// MaskNumber reveals the first and last four characters. Numbers of eight
// characters or fewer reveal two on each side so the mask never shows the
// whole value.
func MaskNumber(number string) string {
	runes := []rune(number)
	keep := 4
	if len(runes) <= 8 {
		keep = 2
	}
	if len(runes) <= keep*2 {
		keep = len(runes) / 4
	}
	return string(runes[:keep]) + "****" + string(runes[len(runes)-keep:])
}

// AuditAction labels an audit log entry.
type AuditAction string

const (
	AuditActionVerify       AuditAction = "verify"
	AuditActionReject       AuditAction = "reject"
	AuditActionVerifyDenied AuditAction = "verify_denied"
	AuditActionRejectDenied AuditAction = "reject_denied"
)

// Outcome of the audited attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
)

// AuditEntry is one append-only record of an action on a KycDocument.
type AuditEntry struct {
	ID          id.AuditEntryID `json:"id"`
	KycID       id.KycID        `json:"kyc_id"`
	ActorID     id.PrincipalID  `json:"actor_id"`
	Action      AuditAction     `json:"action"`
	Outcome     Outcome         `json:"outcome"`
	PriorStatus Status          `json:"prior_status"`
	NewStatus   Status          `json:"new_status"`
	Reason      string          `json:"reason,omitempty"`
	Device      string          `json:"device,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// StatusView is the read model returned by GetStatus.
type StatusView struct {
	Status   Status       `json:"status"`
	Document *KycDocument `json:"document,omitempty"`
	Masked   bool         `json:"masked"`
}

// SubmitRequest is the transport shape of a submission.
type SubmitRequest struct {
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	FullName       string `json:"full_name"`
	DateOfBirth    string `json:"date_of_birth"`
}

// Input converts the request for the validator.
func (r SubmitRequest) Input() validation.Input {
	return validation.Input{
		DocumentType:   strings.TrimSpace(r.DocumentType),
		DocumentNumber: r.DocumentNumber,
		FullName:       r.FullName,
		DateOfBirth:    r.DateOfBirth,
	}
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}
