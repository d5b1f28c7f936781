package domain

import (
	"github.com/google/uuid"

	dErrors "healthtrack/pkg/domain-errors"
)

// Typed identifiers. Each is a distinct named type over uuid.UUID so a KYC
// record ID can never be passed where a principal ID is expected.
type (
	// PrincipalID identifies an authenticated actor. Doctor profiles are keyed
	// by the owning principal's ID.
	PrincipalID uuid.UUID
	// KycID identifies a single KYC document submission.
	KycID uuid.UUID
	// AuditEntryID identifies an append-only KYC audit log entry.
	AuditEntryID uuid.UUID
)

func (id PrincipalID) String() string  { return uuid.UUID(id).String() }
func (id PrincipalID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id KycID) String() string        { return uuid.UUID(id).String() }
func (id KycID) IsNil() bool           { return uuid.UUID(id) == uuid.Nil }
func (id AuditEntryID) String() string { return uuid.UUID(id).String() }
func (id AuditEntryID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders IDs as canonical UUID strings in JSON and logs.
func (id PrincipalID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id KycID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id AuditEntryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *PrincipalID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *KycID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *AuditEntryID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// NewPrincipalID, NewKycID and NewAuditEntryID mint random v4 identifiers.
func NewPrincipalID() PrincipalID   { return PrincipalID(uuid.New()) }
func NewKycID() KycID               { return KycID(uuid.New()) }
func NewAuditEntryID() AuditEntryID { return AuditEntryID(uuid.New()) }

// ParsePrincipalID parses external input into a PrincipalID.
// Empty, malformed and nil UUIDs are rejected with CodeInvalidInput.
func ParsePrincipalID(s string) (PrincipalID, error) {
	u, err := parseUUID(s, "principal ID")
	return PrincipalID(u), err
}

// ParseKycID parses external input into a KycID.
func ParseKycID(s string) (KycID, error) {
	u, err := parseUUID(s, "KYC ID")
	return KycID(u), err
}

// ParseAuditEntryID parses external input into an AuditEntryID.
func ParseAuditEntryID(s string) (AuditEntryID, error) {
	u, err := parseUUID(s, "audit entry ID")
	return AuditEntryID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
