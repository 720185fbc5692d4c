package models

import (
	"time"

	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
)

type ConsentRequestStatus string

const (
	ConsentRequestPending  ConsentRequestStatus = "pending"
	ConsentRequestAccepted ConsentRequestStatus = "accepted"
	ConsentRequestRejected ConsentRequestStatus = "rejected"
)

// ConsentRequest is a hospital asking the donor for access to the
// confidential bundle. At most one exists per hospital and donor.
type ConsentRequest struct {
	HospitalID  id.HospitalID        `json:"hospital_id"`
	Status      ConsentRequestStatus `json:"status"`
	RequestedAt time.Time            `json:"requested_at"`
	RespondedAt *time.Time           `json:"responded_at,omitempty"`
}

func NewConsentRequest(hospitalID id.HospitalID, now time.Time) ConsentRequest {
	return ConsentRequest{HospitalID: hospitalID, Status: ConsentRequestPending, RequestedAt: now.UTC()}
}

func (c ConsentRequest) IsAccepted() bool { return c.Status == ConsentRequestAccepted }

// Respond applies the donor's answer to a pending request.
func (c ConsentRequest) Respond(accept bool, now time.Time) (ConsentRequest, error) {
	if c.Status != ConsentRequestPending {
		return c, dErrors.Newf(dErrors.CodeConflict, "consent request already %s", c.Status)
	}
	at := now.UTC()
	c.RespondedAt = &at
	c.Status = ConsentRequestRejected
	if accept {
		c.Status = ConsentRequestAccepted
	}
	return c, nil
}

// DocumentRef names a confidential document held in object storage.
type DocumentRef struct {
	Name      string `json:"name"`
	ObjectKey string `json:"object_key"`
}

// ConfidentialRecord holds the donor's sensitive documents. It is stored
// apart from the donor and never returned by default queries.
type ConfidentialRecord struct {
	DonorID           id.DonorID    `json:"donor_id"`
	IdentityDocuments []DocumentRef `json:"identity_documents"`
	LabReports        []DocumentRef `json:"lab_reports"`
	LegalConsentForms []DocumentRef `json:"legal_consent_forms"`
}

// All returns every document in a stable order.
func (r ConfidentialRecord) All() []DocumentRef {
	out := make([]DocumentRef, 0, len(r.IdentityDocuments)+len(r.LabReports)+len(r.LegalConsentForms))
	out = append(out, r.IdentityDocuments...)
	out = append(out, r.LabReports...)
	return append(out, r.LegalConsentForms...)
}
