package audit

import (
	"context"
	"time"

	id "transplant/pkg/domain"
	"transplant/pkg/requestcontext"
)

// EventCategory classifies audit entries by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers entries with clinical or legal significance:
	// matches, consent decisions, confidential data access.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers access to sensitive records and authorization-relevant changes.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// ActionType names what happened.
type ActionType string

const (
	// Request lifecycle
	ActionRequestCreated       ActionType = "REQUEST_CREATED"
	ActionMatch                ActionType = "MATCH"
	ActionMatchRejected        ActionType = "MATCH_REJECTED"
	ActionEligibilityValidated ActionType = "ELIGIBILITY_VALIDATED"
	ActionEligibilityRejected  ActionType = "ELIGIBILITY_REJECTED"
	ActionConsentGiven         ActionType = "CONSENT_GIVEN"
	ActionConsentDenied        ActionType = "CONSENT_DENIED"
	ActionSurgeryScheduled     ActionType = "SURGERY_SCHEDULED"
	ActionOutcomeRecorded      ActionType = "OUTCOME_RECORDED"
	ActionRequestCancelled     ActionType = "REQUEST_CANCELLED"
	ActionRequestExpired       ActionType = "REQUEST_EXPIRED"
	ActionSLABreach            ActionType = "SLA_BREACH"

	// Disclosure
	ActionConfidentialDataAccess   ActionType = "CONFIDENTIAL_DATA_ACCESS"
	ActionConfidentialBundleAccess ActionType = "CONFIDENTIAL_BUNDLE_ACCESS"

	// Donor registry
	ActionDonorRegistered         ActionType = "DONOR_REGISTERED"
	ActionDonorStatusChanged      ActionType = "DONOR_STATUS_CHANGED"
	ActionConsentRequested        ActionType = "CONSENT_REQUESTED"
	ActionConsentRequestAccepted  ActionType = "CONSENT_REQUEST_ACCEPTED"
	ActionConsentRequestRejected  ActionType = "CONSENT_REQUEST_REJECTED"
	ActionPublicProfileRegistered ActionType = "PUBLIC_PROFILE_REGISTERED"
)

var actionCategories = map[ActionType]EventCategory{
	ActionMatch:                    CategoryCompliance,
	ActionEligibilityValidated:     CategoryCompliance,
	ActionEligibilityRejected:      CategoryCompliance,
	ActionConsentGiven:             CategoryCompliance,
	ActionConsentDenied:            CategoryCompliance,
	ActionSurgeryScheduled:         CategoryCompliance,
	ActionOutcomeRecorded:          CategoryCompliance,
	ActionRequestCancelled:         CategoryCompliance,
	ActionSLABreach:                CategoryCompliance,
	ActionConsentRequestAccepted:   CategoryCompliance,
	ActionConsentRequestRejected:   CategoryCompliance,
	ActionConfidentialDataAccess:   CategorySecurity,
	ActionConfidentialBundleAccess: CategorySecurity,
	ActionDonorStatusChanged:       CategorySecurity,

	ActionRequestCreated:          CategoryOperations,
	ActionMatchRejected:           CategoryOperations,
	ActionRequestExpired:          CategoryOperations,
	ActionDonorRegistered:         CategoryOperations,
	ActionConsentRequested:        CategoryOperations,
	ActionPublicProfileRegistered: CategoryOperations,
}

// Category returns the EventCategory for this action.
// Unknown actions default to CategoryOperations.
func (a ActionType) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// EntityType names the kind of record an entry is about.
type EntityType string

const (
	EntityRequest       EntityType = "request"
	EntityDonor         EntityType = "donor"
	EntityPublicProfile EntityType = "public_profile"
	EntityTransplant    EntityType = "transplant"
)

// Performer identifies who performed the action.
type Performer struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Role id.Role `json:"role"`
}

// PerformerOf snapshots an actor at the time of the action.
func PerformerOf(a id.Actor) Performer {
	p := Performer{Name: a.Name, Role: a.Role}
	if !a.ID.IsNil() {
		p.ID = a.ID.String()
	}
	return p
}

// Entry is a write-once audit record. Once appended it is never updated or
// deleted; stores expose only Append and reads.
//
// This log is system-wide. A request's own lifecycle list is the per-entity
// trail and is kept separately.
type Entry struct {
	ID          id.EntryID `json:"id"`
	ActionType  ActionType `json:"action_type"`
	PerformedBy Performer  `json:"performed_by"`
	EntityType  EntityType `json:"entity_type"`
	EntityID    string     `json:"entity_id"`
	Details     string     `json:"details"`
	Timestamp   time.Time  `json:"timestamp"`
	// RequestID is the HTTP correlation id, when the action came from a request.
	RequestID string `json:"request_id,omitempty"`
	// Client is a display string for the caller's user agent.
	Client string `json:"client,omitempty"`
}

// NewEntry builds an entry for actor and copies the correlation id and client
// description from ctx.
func NewEntry(ctx context.Context, actor id.Actor, action ActionType, entityType EntityType, entityID, details string, at time.Time) Entry {
	return Entry{
		ActionType:  action,
		PerformedBy: PerformerOf(actor),
		EntityType:  entityType,
		EntityID:    entityID,
		Details:     details,
		Timestamp:   at,
		RequestID:   requestcontext.RequestID(ctx),
		Client:      requestcontext.Client(ctx),
	}
}
