package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "healthtrack/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers decisions with regulatory significance:
	// registrations, doctor approvals and every KYC transition or attempt.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers access violations worth alerting on.
	CategorySecurity EventCategory = "security"
)

type AuditEvent string

const (
	EventPrincipalRegistered AuditEvent = "principal_registered"

	EventDoctorApproved AuditEvent = "doctor_approved"
	EventDoctorRejected AuditEvent = "doctor_rejected"

	EventKycSubmitted      AuditEvent = "kyc_submitted"
	EventKycVerified       AuditEvent = "kyc_verified"
	EventKycRejected       AuditEvent = "kyc_rejected"
	EventKycVerifyDenied   AuditEvent = "kyc_verify_denied"
	EventKycRejectDenied   AuditEvent = "kyc_reject_denied"
	// EventKycDocumentViewed records an unmasked read by an admin.
	EventKycDocumentViewed AuditEvent = "kyc_document_viewed"

	EventAuthorizationDenied AuditEvent = "authz_denied"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventPrincipalRegistered: CategoryCompliance,
	EventDoctorApproved:      CategoryCompliance,
	EventDoctorRejected:      CategoryCompliance,
	EventKycSubmitted:        CategoryCompliance,
	EventKycVerified:         CategoryCompliance,
	EventKycRejected:         CategoryCompliance,
	EventKycVerifyDenied:     CategoryCompliance,
	EventKycRejectDenied:     CategoryCompliance,
	EventKycDocumentViewed:   CategoryCompliance,

	EventAuthorizationDenied: CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategorySecurity so they are never sampled away.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategorySecurity
}

// Event is the transport-agnostic record handed to the outbox. Stores
// serialize it as the Kafka payload.
type Event struct {
	Timestamp time.Time
	// Subject is the principal the event is about (the KYC owner, the doctor).
	Subject id.PrincipalID
	// ActorID is the principal who performed the action; equal to Subject for
	// self-service operations.
	ActorID id.PrincipalID

	Action   AuditEvent
	TargetID string
	Outcome  string
	Reason   string

	// PriorStatus and NewStatus describe a state transition when there is one.
	PriorStatus string
	NewStatus   string

	RequestID string
	Device    string
}

// Category derives the event's category from its action.
func (e Event) Category() EventCategory { return e.Action.Category() }

// OutboxEntry is one row waiting to be relayed to the event stream.
type OutboxEntry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	Attempts      int
	LastError     string
}

// Store persists audit events into the outbox. Implementations must join the
// transaction carried by ctx when one is present.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Outbox is the relay side of the store.
type Outbox interface {
	ListUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
	MarkFailed(ctx context.Context, entryID uuid.UUID, cause error) error
}

// Payload is the JSON document published to the audit topic.
type Payload struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Timestamp   string `json:"timestamp"`
	Subject     string `json:"subject"`
	ActorID     string `json:"actor_id,omitempty"`
	Action      string `json:"action"`
	TargetID    string `json:"target_id,omitempty"`
	Outcome     string `json:"outcome,omitempty"`
	Reason      string `json:"reason,omitempty"`
	PriorStatus string `json:"prior_status,omitempty"`
	NewStatus   string `json:"new_status,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Device      string `json:"device,omitempty"`
}

// NewPayload builds the wire form of event.
func NewPayload(eventID uuid.UUID, event Event) Payload {
	p := Payload{
		ID:          eventID.String(),
		Category:    string(event.Category()),
		Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
		Subject:     event.Subject.String(),
		Action:      string(event.Action),
		TargetID:    event.TargetID,
		Outcome:     event.Outcome,
		Reason:      event.Reason,
		PriorStatus: event.PriorStatus,
		NewStatus:   event.NewStatus,
		RequestID:   event.RequestID,
		Device:      event.Device,
	}
	if !event.ActorID.IsNil() {
		p.ActorID = event.ActorID.String()
	}
	return p
}
