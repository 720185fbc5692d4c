package models

import (
	"strings"
	"time"

	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
)

// Status is the primary lifecycle state of a request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusMatched   Status = "matched"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusMatched, StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// HasMatchedDonor reports whether a request in this status must carry a donor.
func (s Status) HasMatchedDonor() bool {
	return s == StatusMatched || s == StatusCompleted
}

type EligibilityStatus string

const (
	EligibilityPending   EligibilityStatus = "pending"
	EligibilityValidated EligibilityStatus = "validated"
	EligibilityRejected  EligibilityStatus = "rejected"
)

type ConsentStatus string

const (
	ConsentPending ConsentStatus = "pending"
	ConsentGiven   ConsentStatus = "given"
	ConsentDenied  ConsentStatus = "denied"
)

// ParseConsentDecision accepts only a final decision.
func ParseConsentDecision(s string) (ConsentStatus, error) {
	switch c := ConsentStatus(strings.ToLower(strings.TrimSpace(s))); c {
	case ConsentGiven, ConsentDenied:
		return c, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "consent decision must be given or denied")
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func ParseUrgency(s string) (Urgency, error) {
	switch u := Urgency(strings.ToLower(strings.TrimSpace(s))); u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return u, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "urgency must be one of low, medium, high, critical")
}

// Stage names a lifecycle position, including the substates of matched.
type Stage string

const (
	StagePending              Stage = "pending"
	StageMatched              Stage = "matched"
	StageEligibilityValidated Stage = "eligibility_validated"
	StageEligibilityRejected  Stage = "eligibility_rejected"
	StageConsentGiven         Stage = "consent_given"
	StageConsentDenied        Stage = "consent_denied"
	StageScheduled            Stage = "scheduled"
	StageCompleted            Stage = "completed"
	StageCancelled            Stage = "cancelled"
	StageExpired              Stage = "expired"
)

// LifecycleEntry is one immutable, timestamped stage change.
type LifecycleEntry struct {
	Stage     Stage     `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
	Notes     string    `json:"notes,omitempty"`
}

// Patient is the clinical snapshot taken when the request is created.
type Patient struct {
	Name      string       `json:"name"`
	Age       int          `json:"age"`
	BloodType id.BloodType `json:"blood_type"`
	Condition string       `json:"condition"`
}

// Request is the aggregate root for one organ need.
//
// Invariants:
//   - MatchedDonor is set iff Status is matched or completed
//   - ConfidentialDataRevealed only becomes true while eligibility is
//     validated and consent is given, and never returns to false
//   - Every transition appends exactly one lifecycle entry; entries are never
//     rewritten or removed
//   - SLABreachedAt is set at most once and never cleared
//   - TransplantID is set at most once (the scheduled substate)
//
// Transitions follow the CanX / ApplyX / X convention: CanX validates,
// ApplyX mutates and assumes validation passed, X does both. Failed checks
// return CodeConflict naming the current and attempted stage.
type Request struct {
	ID                       id.RequestID      `json:"id"`
	HospitalID               id.HospitalID     `json:"hospital_id"`
	Patient                  Patient           `json:"patient"`
	Urgency                  Urgency           `json:"urgency"`
	OrganType                id.OrganType      `json:"organ_type"`
	Status                   Status            `json:"status"`
	EligibilityStatus        EligibilityStatus `json:"eligibility_status"`
	ConsentStatus            ConsentStatus     `json:"consent_status"`
	MatchedDonor             *id.DonorRef      `json:"matched_donor,omitempty"`
	TransplantID             *id.TransplantID  `json:"transplant_id,omitempty"`
	ConfidentialDataRevealed bool              `json:"confidential_data_revealed"`
	SLABreachedAt            *time.Time        `json:"sla_breached_at,omitempty"`
	DelayReason              string            `json:"delay_reason,omitempty"`
	ExpiryDate               time.Time         `json:"expiry_date"`
	Lifecycle                []LifecycleEntry  `json:"lifecycle"`
	CreatedAt                time.Time         `json:"created_at"`
	UpdatedAt                time.Time         `json:"updated_at"`
	Version                  int               `json:"version"`
}

// NewRequest builds a pending request with its first lifecycle entry.
// A zero ttl leaves ExpiryDate at CreatedAt, which callers should avoid.
func NewRequest(requestID id.RequestID, hospitalID id.HospitalID, patient Patient, urgency Urgency, organ id.OrganType, now time.Time, ttl time.Duration) (*Request, error) {
	if requestID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request id is required")
	}
	if hospitalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "owning hospital is required")
	}
	if strings.TrimSpace(patient.Name) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "patient name is required")
	}
	if patient.Age < 0 || patient.Age > 130 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "patient age must be between 0 and 130")
	}
	if !patient.BloodType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid patient blood type")
	}
	if !organ.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid organ type")
	}
	if _, err := ParseUrgency(string(urgency)); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid urgency")
	}
	now = now.UTC()
	r := &Request{
		ID:                requestID,
		HospitalID:        hospitalID,
		Patient:           patient,
		Urgency:           urgency,
		OrganType:         organ,
		Status:            StatusPending,
		EligibilityStatus: EligibilityPending,
		ConsentStatus:     ConsentPending,
		ExpiryDate:        now.Add(ttl),
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}
	r.appendLifecycle(StagePending, now, "request created")
	return r, nil
}

// CurrentStage resolves the matched substates for messages and lifecycle.
func (r *Request) CurrentStage() Stage {
	if r.Status != StatusMatched {
		return Stage(r.Status)
	}
	switch {
	case r.TransplantID != nil:
		return StageScheduled
	case r.ConsentStatus == ConsentGiven:
		return StageConsentGiven
	case r.EligibilityStatus == EligibilityValidated:
		return StageEligibilityValidated
	}
	return StageMatched
}

// IsScheduled reports whether surgery has been booked.
func (r *Request) IsScheduled() bool {
	return r.TransplantID != nil
}

func (r *Request) IsCritical() bool {
	return r.Urgency == UrgencyCritical
}

// LastEntry returns the most recent lifecycle entry.
func (r *Request) LastEntry() LifecycleEntry {
	if len(r.Lifecycle) == 0 {
		return LifecycleEntry{}
	}
	return r.Lifecycle[len(r.Lifecycle)-1]
}

// IsMatchedTo reports whether ref is the request's matched donor.
func (r *Request) IsMatchedTo(ref id.DonorRef) bool {
	return r.MatchedDonor != nil && *r.MatchedDonor == ref
}

func (r *Request) appendLifecycle(stage Stage, now time.Time, notes string) {
	r.Lifecycle = append(r.Lifecycle, LifecycleEntry{Stage: stage, Timestamp: now.UTC(), Notes: notes})
	r.UpdatedAt = now.UTC()
}

func transitionConflict(from, to Stage) error {
	return dErrors.Newf(dErrors.CodeConflict, "cannot transition request from %s to %s", from, to)
}

// CanMatch checks the pending → matched transition.
func (r *Request) CanMatch() error {
	if r.Status != StatusPending {
		return transitionConflict(r.CurrentStage(), StageMatched)
	}
	return nil
}

func (r *Request) ApplyMatch(ref id.DonorRef, now time.Time, notes string) {
	r.Status = StatusMatched
	r.MatchedDonor = &ref
	r.appendLifecycle(StageMatched, now, notes)
}

func (r *Request) Match(ref id.DonorRef, now time.Time, notes string) error {
	if err := r.CanMatch(); err != nil {
		return err
	}
	r.ApplyMatch(ref, now, notes)
	return nil
}

// CanValidateEligibility reports whether validation would change anything.
// A request that is already validated returns (false, nil).
func (r *Request) CanValidateEligibility() (bool, error) {
	if r.Status != StatusMatched || r.IsScheduled() {
		return false, transitionConflict(r.CurrentStage(), StageEligibilityValidated)
	}
	switch r.EligibilityStatus {
	case EligibilityValidated:
		return false, nil
	case EligibilityRejected:
		return false, transitionConflict(StageEligibilityRejected, StageEligibilityValidated)
	}
	return true, nil
}

func (r *Request) ApplyEligibilityValidated(now time.Time, notes string) {
	r.EligibilityStatus = EligibilityValidated
	r.appendLifecycle(StageEligibilityValidated, now, notes)
}

// CanRejectEligibility mirrors CanValidateEligibility for the rejection path.
func (r *Request) CanRejectEligibility() (bool, error) {
	if r.Status != StatusMatched || r.IsScheduled() {
		return false, transitionConflict(r.CurrentStage(), StageEligibilityRejected)
	}
	switch r.EligibilityStatus {
	case EligibilityRejected:
		return false, nil
	case EligibilityValidated:
		return false, transitionConflict(StageEligibilityValidated, StageEligibilityRejected)
	}
	return true, nil
}

func (r *Request) ApplyEligibilityRejected(now time.Time, reason string) {
	r.EligibilityStatus = EligibilityRejected
	r.appendLifecycle(StageEligibilityRejected, now, reason)
}

// CanRecordConsent checks a consent decision. Repeating the recorded
// decision returns (false, nil); changing it is a conflict.
func (r *Request) CanRecordConsent(decision ConsentStatus) (bool, error) {
	target := consentStage(decision)
	if r.Status != StatusMatched || r.IsScheduled() {
		return false, transitionConflict(r.CurrentStage(), target)
	}
	if r.ConsentStatus == decision {
		return false, nil
	}
	if r.ConsentStatus != ConsentPending {
		return false, transitionConflict(consentStage(r.ConsentStatus), target)
	}
	return true, nil
}

func (r *Request) ApplyConsent(decision ConsentStatus, now time.Time, notes string) {
	r.ConsentStatus = decision
	r.appendLifecycle(consentStage(decision), now, notes)
}

func consentStage(c ConsentStatus) Stage {
	if c == ConsentDenied {
		return StageConsentDenied
	}
	return StageConsentGiven
}

// CanSchedule checks the consent_given → scheduled transition for ref.
func (r *Request) CanSchedule(ref id.DonorRef) error {
	if r.Status != StatusMatched || r.IsScheduled() ||
		r.EligibilityStatus != EligibilityValidated || r.ConsentStatus != ConsentGiven {
		return transitionConflict(r.CurrentStage(), StageScheduled)
	}
	if !r.IsMatchedTo(ref) {
		return dErrors.New(dErrors.CodeValidation, "donor is not the matched donor for this request")
	}
	return nil
}

func (r *Request) ApplySchedule(transplantID id.TransplantID, now time.Time, notes string) {
	r.TransplantID = &transplantID
	r.appendLifecycle(StageScheduled, now, notes)
}

// CanComplete checks the scheduled → completed transition.
func (r *Request) CanComplete() error {
	if r.Status != StatusMatched || !r.IsScheduled() {
		return transitionConflict(r.CurrentStage(), StageCompleted)
	}
	return nil
}

func (r *Request) ApplyCompletion(now time.Time, notes string) {
	r.Status = StatusCompleted
	r.appendLifecycle(StageCompleted, now, notes)
}

// CanCancel allows cancellation from any non-terminal stage.
func (r *Request) CanCancel() error {
	if r.Status.IsTerminal() {
		return transitionConflict(r.CurrentStage(), StageCancelled)
	}
	return nil
}

// ApplyCancel clears the matched donor. The caller releases it.
func (r *Request) ApplyCancel(now time.Time, reason string) {
	r.Status = StatusCancelled
	r.MatchedDonor = nil
	r.appendLifecycle(StageCancelled, now, reason)
}

func (r *Request) Cancel(now time.Time, reason string) error {
	if err := r.CanCancel(); err != nil {
		return err
	}
	r.ApplyCancel(now, reason)
	return nil
}

// CanExpire checks the implicit pending → expired transition at now.
func (r *Request) CanExpire(now time.Time) error {
	if r.Status != StatusPending {
		return transitionConflict(r.CurrentStage(), StageExpired)
	}
	if r.ExpiryDate.After(now) {
		return dErrors.New(dErrors.CodeConflict, "request has not reached its expiry date")
	}
	return nil
}

func (r *Request) ApplyExpiry(now time.Time) {
	r.Status = StatusExpired
	r.appendLifecycle(StageExpired, now, "expired without a match")
}

// CanReveal reports whether confidential donor data may be disclosed.
func (r *Request) CanReveal() bool {
	return r.Status.HasMatchedDonor() &&
		r.EligibilityStatus == EligibilityValidated &&
		r.ConsentStatus == ConsentGiven
}

// RecordBreach sets the breach record once. It returns false and leaves the
// request untouched when a breach is already recorded.
func (r *Request) RecordBreach(at time.Time, reason string) bool {
	if r.SLABreachedAt != nil {
		return false
	}
	at = at.UTC()
	r.SLABreachedAt = &at
	r.DelayReason = reason
	return true
}

// CheckInvariants verifies the aggregate invariants on a loaded request.
func (r *Request) CheckInvariants() error {
	if (r.MatchedDonor != nil) != r.Status.HasMatchedDonor() {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"matched donor presence does not agree with status %s", r.Status)
	}
	if r.ConfidentialDataRevealed &&
		(r.EligibilityStatus != EligibilityValidated || r.ConsentStatus != ConsentGiven) {
		return dErrors.New(dErrors.CodeInvariantViolation, "confidential data revealed without validated eligibility and given consent")
	}
	if len(r.Lifecycle) == 0 || r.Lifecycle[0].Stage != StagePending {
		return dErrors.New(dErrors.CodeInvariantViolation, "lifecycle must start at pending")
	}
	return nil
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (r *Request) Clone() *Request {
	c := *r
	if r.MatchedDonor != nil {
		ref := *r.MatchedDonor
		c.MatchedDonor = &ref
	}
	if r.TransplantID != nil {
		tid := *r.TransplantID
		c.TransplantID = &tid
	}
	if r.SLABreachedAt != nil {
		at := *r.SLABreachedAt
		c.SLABreachedAt = &at
	}
	c.Lifecycle = append([]LifecycleEntry(nil), r.Lifecycle...)
	return &c
}
